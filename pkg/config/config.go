package config

import (
	"NSSaDS/batchxfer/internal/domain"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type Config struct {
	Sender   SenderConfig   `json:"sender"`
	Receiver ReceiverConfig `json:"receiver"`
	UDP      UDPConfig      `json:"udp"`
	Log      LogConfig      `json:"log"`
}

type SenderConfig struct {
	Host       string        `json:"host"`
	Port       int           `json:"port"`
	UnitSize   int           `json:"unit_size"`
	Cadence    string        `json:"cadence"`
	AckTimeout time.Duration `json:"ack_timeout"`
	MaxRetries int           `json:"max_retries"`
}

func (s *SenderConfig) UnmarshalJSON(data []byte) error {
	type plain SenderConfig
	aux := struct {
		*plain
		AckTimeout jsonDuration `json:"ack_timeout"`
	}{plain: (*plain)(s), AckTimeout: jsonDuration(s.AckTimeout)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.AckTimeout = time.Duration(aux.AckTimeout)
	return nil
}

type ReceiverConfig struct {
	Host      string        `json:"host"`
	Port      int           `json:"port"`
	Cadence   string        `json:"cadence"`
	AckPolicy string        `json:"ack_policy"`
	Linger    time.Duration `json:"linger"`
	OutputDir string        `json:"output_dir"`
}

func (r *ReceiverConfig) UnmarshalJSON(data []byte) error {
	type plain ReceiverConfig
	aux := struct {
		*plain
		Linger jsonDuration `json:"linger"`
	}{plain: (*plain)(r), Linger: jsonDuration(r.Linger)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Linger = time.Duration(aux.Linger)
	return nil
}

// jsonDuration decodes "1.5s" style strings as well as plain nanoseconds.
type jsonDuration time.Duration

func (d *jsonDuration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = jsonDuration(parsed)
	case float64:
		*d = jsonDuration(v)
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
	return nil
}

type UDPConfig struct {
	ReadBuffer  int        `json:"read_buffer"`
	WriteBuffer int        `json:"write_buffer"`
	TOS         int        `json:"tos"`
	Impairment  Impairment `json:"impairment"`
}

// Impairment rates are probabilities in [0,1] applied to outgoing datagrams.
type Impairment struct {
	LossRate      float64 `json:"loss_rate"`
	DuplicateRate float64 `json:"duplicate_rate"`
	ReorderRate   float64 `json:"reorder_rate"`
	Seed          uint64  `json:"seed"`
}

func (i Impairment) Enabled() bool {
	return i.LossRate > 0 || i.DuplicateRate > 0 || i.ReorderRate > 0
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

func NewConfig() *Config {
	return &Config{
		Sender: SenderConfig{
			Host:       "127.0.0.1",
			Port:       9000,
			UnitSize:   domain.MaxUnitSize,
			Cadence:    domain.CadenceVarying.String(),
			AckTimeout: 300 * time.Millisecond,
			MaxRetries: 50,
		},
		Receiver: ReceiverConfig{
			Host:      "0.0.0.0",
			Port:      9000,
			Cadence:   domain.CadenceVarying.String(),
			AckPolicy: domain.AckCadence.String(),
			Linger:    time.Second,
			OutputDir: ".",
		},
		UDP: UDPConfig{},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load overlays the JSON file at path on the defaults. An empty path
// returns the defaults. Durations are written as strings ("300ms") or as
// integer nanoseconds.
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Sender.Validate(); err != nil {
		return err
	}
	if err := c.Receiver.Validate(); err != nil {
		return err
	}
	return c.UDP.Validate()
}

func (s *SenderConfig) Validate() error {
	if err := ValidateUnitSize(s.UnitSize); err != nil {
		return err
	}
	if _, err := domain.ParseCadence(s.Cadence); err != nil {
		return err
	}
	if s.AckTimeout <= 0 {
		return fmt.Errorf("%w: ack timeout must be positive, got %v", domain.ErrInvalidConfiguration, s.AckTimeout)
	}
	if s.MaxRetries <= 0 {
		return fmt.Errorf("%w: max retries must be positive, got %d", domain.ErrInvalidConfiguration, s.MaxRetries)
	}
	return validatePort(s.Port)
}

func (r *ReceiverConfig) Validate() error {
	if _, err := domain.ParseCadence(r.Cadence); err != nil {
		return err
	}
	if _, err := domain.ParseAckPolicy(r.AckPolicy); err != nil {
		return err
	}
	if r.Linger < 0 {
		return fmt.Errorf("%w: linger must not be negative, got %v", domain.ErrInvalidConfiguration, r.Linger)
	}
	return validatePort(r.Port)
}

func (u *UDPConfig) Validate() error {
	if u.ReadBuffer < 0 || u.WriteBuffer < 0 {
		return fmt.Errorf("%w: socket buffer sizes must not be negative", domain.ErrInvalidConfiguration)
	}
	if u.TOS < 0 || u.TOS > 0xff {
		return fmt.Errorf("%w: tos %d out of range", domain.ErrInvalidConfiguration, u.TOS)
	}
	for name, rate := range map[string]float64{
		"loss_rate":      u.Impairment.LossRate,
		"duplicate_rate": u.Impairment.DuplicateRate,
		"reorder_rate":   u.Impairment.ReorderRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%w: %s %.3f outside [0,1]", domain.ErrInvalidConfiguration, name, rate)
		}
	}
	return nil
}

// ValidateUnitSize checks a unit size against the protocol maximum.
func ValidateUnitSize(size int) error {
	if size <= 0 || size > domain.MaxUnitSize {
		return fmt.Errorf("%w: unit size %d not in (0, %d]", domain.ErrInvalidConfiguration, size, domain.MaxUnitSize)
	}
	return nil
}

func validatePort(port int) error {
	if port < 0 || port > 0xffff {
		return fmt.Errorf("%w: port %d out of range", domain.ErrInvalidConfiguration, port)
	}
	return nil
}

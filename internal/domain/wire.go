package domain

import (
	"encoding/binary"
	"fmt"
)

// Wire layout, little-endian, packed:
//
//	data unit: seq(4) batch_id(4) len(2) fin(1) payload(len)
//	ack:       batch_id(4) next_seq(4)
const (
	offsetSeq     = 0
	offsetBatchID = offsetSeq + 4
	offsetLen     = offsetBatchID + 4
	offsetFin     = offsetLen + 2

	DataHeaderSize = offsetFin + 1

	offsetAckBatchID = 0
	offsetAckNextSeq = offsetAckBatchID + 4

	AckSize = offsetAckNextSeq + 4

	MaxUnitSize     = 8192
	MaxDatagramSize = DataHeaderSize + MaxUnitSize
)

type DataUnit struct {
	Seq     uint32
	BatchID uint32
	Fin     bool
	Payload []byte
}

type Ack struct {
	BatchID uint32
	NextSeq uint32
}

func NewDataUnit(seq, batchID uint32, payload []byte, fin bool) *DataUnit {
	return &DataUnit{
		Seq:     seq,
		BatchID: batchID,
		Fin:     fin,
		Payload: payload,
	}
}

// Size is the number of bytes AppendTo writes.
func (du *DataUnit) Size() int {
	return DataHeaderSize + len(du.Payload)
}

// AppendTo encodes the unit into buf[:0] and returns the result, reusing
// buf's capacity when it is large enough.
func (du *DataUnit) AppendTo(buf []byte) ([]byte, error) {
	if len(du.Payload) > MaxUnitSize {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrInvalidConfiguration, len(du.Payload), MaxUnitSize)
	}

	buf = buf[:0]
	buf = binary.LittleEndian.AppendUint32(buf, du.Seq)
	buf = binary.LittleEndian.AppendUint32(buf, du.BatchID)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(du.Payload)))
	if du.Fin {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return append(buf, du.Payload...), nil
}

func (du *DataUnit) Serialize() ([]byte, error) {
	return du.AppendTo(make([]byte, 0, du.Size()))
}

func (du *DataUnit) String() string {
	return fmt.Sprintf("DataUnit{Seq:%d, Batch:%d, Len:%d, Fin:%t}", du.Seq, du.BatchID, len(du.Payload), du.Fin)
}

// DeserializeDataUnit parses a data unit datagram. The returned payload
// aliases data.
func DeserializeDataUnit(data []byte) (*DataUnit, error) {
	if len(data) < DataHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the data unit header", ErrMalformedDatagram, len(data))
	}

	length := int(binary.LittleEndian.Uint16(data[offsetLen:]))
	if length > MaxUnitSize {
		return nil, fmt.Errorf("%w: declared length %d exceeds %d", ErrMalformedDatagram, length, MaxUnitSize)
	}
	if length > len(data)-DataHeaderSize {
		return nil, fmt.Errorf("%w: declared length %d, only %d payload bytes", ErrMalformedDatagram, length, len(data)-DataHeaderSize)
	}

	return &DataUnit{
		Seq:     binary.LittleEndian.Uint32(data[offsetSeq:]),
		BatchID: binary.LittleEndian.Uint32(data[offsetBatchID:]),
		Fin:     data[offsetFin] != 0,
		Payload: data[DataHeaderSize : DataHeaderSize+length],
	}, nil
}

func NewAck(batchID, nextSeq uint32) *Ack {
	return &Ack{BatchID: batchID, NextSeq: nextSeq}
}

func (a *Ack) Serialize() []byte {
	buf := make([]byte, AckSize)
	binary.LittleEndian.PutUint32(buf[offsetAckBatchID:], a.BatchID)
	binary.LittleEndian.PutUint32(buf[offsetAckNextSeq:], a.NextSeq)
	return buf
}

func (a *Ack) String() string {
	return fmt.Sprintf("Ack{Batch:%d, NextSeq:%d}", a.BatchID, a.NextSeq)
}

func DeserializeAck(data []byte) (*Ack, error) {
	if len(data) != AckSize {
		return nil, fmt.Errorf("%w: ack of %d bytes, want %d", ErrMalformedDatagram, len(data), AckSize)
	}

	return &Ack{
		BatchID: binary.LittleEndian.Uint32(data[offsetAckBatchID:]),
		NextSeq: binary.LittleEndian.Uint32(data[offsetAckNextSeq:]),
	}, nil
}

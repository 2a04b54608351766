package main

import (
	"NSSaDS/batchxfer/internal/infrastructure/logging"
	"NSSaDS/batchxfer/internal/infrastructure/network"
	"NSSaDS/batchxfer/internal/infrastructure/repository"
	"NSSaDS/batchxfer/pkg/config"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	var (
		configPath = flag.String("config", "", "JSON config file")
		port       = flag.Int("port", 0, "Server port (default 9000)")
		unitSize   = flag.Int("du", 0, "Data unit size in bytes (default 8192)")
		mode       = flag.String("mode", "", "Cadence: fixed|varying")
		timeout    = flag.Duration("timeout", 0, "Ack wait timeout")
		retries    = flag.Int("retries", 0, "Retry budget per batch")
		loss       = flag.Float64("loss", -1, "Simulated loss rate")
		dup        = flag.Float64("dup", -1, "Simulated duplication rate")
		reorder    = flag.Float64("reorder", -1, "Simulated reorder rate")
		logLevel   = flag.String("log-level", "", "Log level")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <server_ip> <file_path>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 2 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	cfg.Sender.Host = flag.Arg(0)
	filePath := flag.Arg(1)

	if *port > 0 {
		cfg.Sender.Port = *port
	}
	if *unitSize != 0 {
		cfg.Sender.UnitSize = *unitSize
	}
	if *mode != "" {
		cfg.Sender.Cadence = *mode
	}
	if *timeout > 0 {
		cfg.Sender.AckTimeout = *timeout
	}
	if *retries > 0 {
		cfg.Sender.MaxRetries = *retries
	}
	if *loss >= 0 {
		cfg.UDP.Impairment.LossRate = *loss
	}
	if *dup >= 0 {
		cfg.UDP.Impairment.DuplicateRate = *dup
	}
	if *reorder >= 0 {
		cfg.UDP.Impairment.ReorderRate = *reorder
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Sender.Validate(); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if err := cfg.UDP.Validate(); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	payload, err := repository.NewFileManager(".").ReadFile(filePath)
	if err != nil {
		logger.Fatalf("Failed to load %s: %v", filePath, err)
	}

	client := network.NewUDPClient(&cfg.Sender, &cfg.UDP, logger)
	if err := client.Connect(ctx); err != nil {
		logger.Fatalf("Failed to connect to server: %v", err)
	}

	stats, err := client.Send(ctx, payload)
	if discErr := client.Disconnect(); discErr != nil {
		logger.WithError(discErr).Warn("Error closing socket")
	}

	monitor := network.NewPerformanceMonitor(network.RoleSender, logger)
	monitor.Record(filePath, stats, err)
	monitor.PrintReport(os.Stdout)

	if err != nil {
		os.Exit(1)
	}
}

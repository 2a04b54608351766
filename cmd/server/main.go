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
		host       = flag.String("host", "", "Bind address (default all interfaces)")
		port       = flag.Int("port", 0, "Bind port (default 9000)")
		mode       = flag.String("mode", "", "Sender cadence: fixed|varying")
		ackPolicy  = flag.String("ack", "", "Ack policy: cadence|every-unit")
		linger     = flag.Duration("linger", -1, "Keep re-acknowledging after completion")
		loss       = flag.Float64("loss", -1, "Simulated ack loss rate")
		logLevel   = flag.String("log-level", "", "Log level")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <output_file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	outfile := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if *host != "" {
		cfg.Receiver.Host = *host
	}
	if *port > 0 {
		cfg.Receiver.Port = *port
	}
	if *mode != "" {
		cfg.Receiver.Cadence = *mode
	}
	if *ackPolicy != "" {
		cfg.Receiver.AckPolicy = *ackPolicy
	}
	if *linger >= 0 {
		cfg.Receiver.Linger = *linger
	}
	if *loss >= 0 {
		cfg.UDP.Impairment.LossRate = *loss
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Receiver.Validate(); err != nil {
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

	fileMgr := repository.NewFileManager(cfg.Receiver.OutputDir)
	sink, err := fileMgr.CreateSink(outfile)
	if err != nil {
		logger.Fatalf("Failed to open output: %v", err)
	}

	server := network.NewUDPServer(&cfg.Receiver, &cfg.UDP, logger)
	if err := server.Start(ctx); err != nil {
		sink.Close()
		logger.Fatalf("Server error: %v", err)
	}

	stats, err := server.Receive(ctx, sink)

	if closeErr := sink.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if stopErr := server.Stop(); stopErr != nil {
		logger.WithError(stopErr).Warn("Error stopping server")
	}

	monitor := network.NewPerformanceMonitor(network.RoleReceiver, logger)
	monitor.Record(sink.Name(), stats, err)
	monitor.PrintReport(os.Stdout)

	if err != nil {
		os.Exit(1)
	}
}

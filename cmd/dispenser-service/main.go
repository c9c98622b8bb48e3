package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"dispenser-service/internal/backend"
	"dispenser-service/internal/config"
	"dispenser-service/internal/core"
	"dispenser-service/internal/dispense"
	"dispenser-service/internal/hardware"
	"dispenser-service/internal/logger"
	"dispenser-service/internal/messaging"
	"dispenser-service/internal/metrics"
)

func main() {
	// Service log level
	var serviceLogLevel int
	flag.IntVar(&serviceLogLevel, "log", 3, "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")

	flag.Parse()

	// Create standard logger with appropriate format
	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, use minimal format
		stdLogger = log.New(os.Stdout, "", 0)
	} else {
		// Running interactively, use timestamps
		stdLogger = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}

	// Create leveled logger
	l := logger.NewLogger(stdLogger, logger.LogLevel(serviceLogLevel))

	l.Infof("Starting dispenser service...")

	cfg, err := config.Load()
	if err != nil {
		l.Fatalf("Failed to load configuration: %v", err)
	}

	metrics.Serve(cfg.MetricsAddr, l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kioskIO := hardware.NewLinuxKioskIO()

	servo := hardware.NewImxPwmServo()
	if err := servo.Init(); err != nil {
		l.Fatalf("Failed to initialize servo driver: %v", err)
	}
	defer servo.Cleanup()

	rangefinder := hardware.NewSerialRangefinder(cfg.RangefinderPort, l)
	if err := rangefinder.Open(); err != nil {
		l.Fatalf("Failed to open rangefinder: %v", err)
	}
	defer rangefinder.Close()
	go rangefinder.Monitor(ctx)

	redisClient := messaging.NewRedisClient(cfg.RedisAddr, l, messaging.Callbacks{})
	backendClient := backend.NewClient(cfg.BackendURL, cfg.BackendToken, cfg.KioskID, l)
	controller := dispense.NewController(servo, l)

	system := core.NewKioskSystem(kioskIO, redisClient, backendClient, rangefinder, controller, l)
	if err := system.Start(ctx); err != nil {
		l.Fatalf("Failed to start system: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	l.Infof("Received signal %v, shutting down...", sig)
	cancel()
	system.Shutdown()
	l.Infof("Shutdown complete")
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/pairup/internal/loadtest"
)

// Default configuration constants.
const (
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:9080", "Base URL of the service")
		participants = flag.Int("participants", loadtest.DefaultParticipants, "Number of simulated participants")
		perProfile   = flag.Int("per-profile", loadtest.DefaultPerProfile, "Skills and slots per participant")
		workers      = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent connection setups")
		timeout      = flag.Duration("timeout", loadtest.DefaultTimeout, "Dial and HTTP timeout")
		settle       = flag.Duration("settle", loadtest.DefaultSettle, "Wait for matches after the last join")
		outputFile   = flag.String("output", "", "Write the JSON report to this file")
		logFile      = flag.String("log", "", "Log file (default: loadtest_TIMESTAMP.log)")
		verbose      = flag.Bool("verbose", false, "Log every notice")
		help         = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadtest.ShowHelp()
		return
	}

	if _, err := loadtest.SetupLogging(*logFile); err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	cfg := &loadtest.Config{
		BaseURL:      *baseURL,
		Participants: *participants,
		PerProfile:   *perProfile,
		Workers:      *workers,
		Timeout:      *timeout,
		Settle:       *settle,
		OutputFile:   *outputFile,
		Verbose:      *verbose,
	}

	if err := run(cfg); err != nil {
		_, _ = os.Stderr.WriteString("Load run failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(cfg *loadtest.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultTestTimeout)
	defer cancel()

	_, err := loadtest.Run(ctx, cfg)
	return err
}

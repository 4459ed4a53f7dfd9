package loadtest

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/pairup/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0o600
)

// SetupLogging sends log output to stdout and to logFile. An empty logFile
// gets a timestamped name; "-" logs to stdout only.
func SetupLogging(logFile string) (string, error) {
	if logFile == "-" {
		return "", logger.Init()
	}
	if logFile == "" {
		logFile = "loadtest_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return "", fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWith(io.MultiWriter(os.Stdout, file), "text"); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logFile, nil
}

// ShowHelp prints usage information for the load tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`pairup load tool
================

Opens one WebSocket per simulated participant, sends joinQueue for each,
waits for matches and checks that nobody was matched twice.

Usage:
  go run ./cmd/loadtest [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -participants int
        Number of simulated participants (default 200)
  -per-profile int
        Skills and availability slots per participant (default 2)
  -workers int
        Concurrent connection setups (default CPU cores * 2)
  -timeout duration
        Dial and HTTP timeout (default 10s)
  -settle duration
        Wait for matches after the last join (default 3s)
  -output string
        Write the JSON report to this file
  -log string
        Log file; "-" for stdout only (default: loadtest_TIMESTAMP.log)
  -verbose
        Log every notice
  -help
        Show this help message

Examples:
  go run ./cmd/loadtest -participants 2000 -workers 64
  go run ./cmd/loadtest -url http://matcher:9080 -output report.json -log -
`)
}

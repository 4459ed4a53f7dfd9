package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/okian/pairup/internal/adapters/notify"
	"github.com/okian/pairup/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// File permission constants.
const (
	directoryPermission = 0o750
	reportPermission    = 0o600
)

func applyDefaults(cfg *Config) {
	if cfg.Participants <= 0 {
		cfg.Participants = DefaultParticipants
	}
	if len(cfg.Skills) == 0 {
		cfg.Skills = DefaultSkills
	}
	if len(cfg.Slots) == 0 {
		cfg.Slots = DefaultSlots
	}
	if cfg.PerProfile <= 0 {
		cfg.PerProfile = DefaultPerProfile
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}
}

// Run executes a complete load run and returns the verification report.
func Run(ctx context.Context, cfg *Config) (Report, error) {
	applyDefaults(cfg)
	log := logger.Get().Named("loadtest")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("participants", cfg.Participants),
		logger.Int("workers", cfg.Workers),
		logger.Duration("settle", cfg.Settle),
	)

	api := newHTTPClient(cfg.BaseURL, cfg.Timeout)
	if err := api.checkHealth(ctx); err != nil {
		return Report{}, err
	}
	before, err := api.sessionCount(ctx)
	if err != nil {
		return Report{}, err
	}
	stats.ServerBefore = before

	endpoint, err := wsURL(cfg.BaseURL)
	if err != nil {
		return Report{}, err
	}

	profiles := generateProfiles(cfg)
	clients, err := connectAndJoin(ctx, cfg, endpoint, profiles, stats)
	// Close whatever connected even when a join failed.
	defer func() {
		for _, c := range clients {
			if c != nil {
				_ = c.conn.Close()
			}
		}
	}()
	if err != nil {
		return Report{}, err
	}

	log.Info(ctx, "joins sent; waiting for matches", logger.Int("joins", stats.JoinsSent))
	select {
	case <-ctx.Done():
		return Report{}, ctx.Err()
	case <-time.After(cfg.Settle):
	}

	// Count server sessions before closing so disconnects cannot race it.
	after, err := api.sessionCount(ctx)
	if err != nil {
		return Report{}, err
	}
	stats.ServerAfter = after

	results := make([]Result, 0, len(clients))
	for _, c := range clients {
		r := c.close()
		results = append(results, r)
		stats.Notices += len(r.Notices)
		if slices.Contains(r.Notices, noticeBusy) {
			stats.Busy++
		}
	}
	clients = nil

	rep, verr := verify(results)
	rep.ServerSessions = stats.ServerAfter - stats.ServerBefore
	stats.Matched = rep.Matched
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	rep.Duration = stats.Duration.String()

	if rep.ServerSessions != rep.Sessions {
		log.Warn(ctx, "server session count differs from observed sessions",
			logger.Int("server", rep.ServerSessions),
			logger.Int("observed", rep.Sessions),
		)
	}
	if cfg.OutputFile != "" {
		if err := saveReport(cfg.OutputFile, rep); err != nil {
			log.Warn(ctx, "failed to save report", logger.Error(err))
		}
	}
	displayFinalStats(ctx, stats, rep)
	return rep, verr
}

// connectAndJoin dials one WebSocket per profile and sends its join, at
// most cfg.Workers at a time.
func connectAndJoin(ctx context.Context, cfg *Config, endpoint string, profiles []notify.ProfileView, stats *Stats) ([]*client, error) {
	clients := make([]*client, len(profiles))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, p := range profiles {
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(gctx, cfg.Timeout)
			defer cancel()

			c, err := dial(dctx, endpoint, p, cfg.Verbose)
			if err != nil {
				return err
			}
			clients[i] = c

			err = c.join()
			mu.Lock()
			defer mu.Unlock()
			stats.Connected++
			if err != nil {
				stats.JoinsFailed++
				return fmt.Errorf("join %s: %w", p.ID, err)
			}
			stats.JoinsSent++
			return nil
		})
	}
	return clients, g.Wait()
}

func saveReport(filename string, rep Report) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), reportPermission); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func displayFinalStats(ctx context.Context, stats *Stats, rep Report) {
	var joinsPerSecond float64
	if stats.Duration > 0 {
		joinsPerSecond = float64(stats.JoinsSent) / stats.Duration.Seconds()
	}
	logger.Get().Info(ctx, "final statistics",
		logger.Int("connected", stats.Connected),
		logger.Int("joinsSent", stats.JoinsSent),
		logger.Int("joinsFailed", stats.JoinsFailed),
		logger.Int("matched", rep.Matched),
		logger.Int("unmatched", rep.Unmatched),
		logger.Int("sessions", rep.Sessions),
		logger.Int("serverSessions", rep.ServerSessions),
		logger.Int("busy", stats.Busy),
		logger.Int("notices", stats.Notices),
		logger.Int("doubleMatched", len(rep.DoubleMatched)),
		logger.Duration("duration", stats.Duration),
		logger.Float64("joinsPerSecond", joinsPerSecond),
	)
}

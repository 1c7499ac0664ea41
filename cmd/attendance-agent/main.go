// Command attendance-agent watches classroom beacons through a scanner
// gateway and keeps a student's attendance status synchronized with the
// schedule service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/soohan/attendance-agent/internal/beacon"
	"github.com/soohan/attendance-agent/internal/config"
	"github.com/soohan/attendance-agent/internal/engine"
	"github.com/soohan/attendance-agent/internal/led"
	"github.com/soohan/attendance-agent/internal/schedule"
	"github.com/soohan/attendance-agent/internal/status"
	"github.com/soohan/attendance-agent/internal/syncer"
	"github.com/soohan/attendance-agent/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	baseURL := flag.String("base-url", cfg.BaseURL, "Attendance service base URL")
	studentID := flag.Int("student", cfg.StudentID, "Student id")
	broker := flag.String("broker", cfg.Broker, "MQTT broker address for the scanner gateway")
	httpAddr := flag.String("http", cfg.HTTPAddr, "HTTP status address (empty to disable)")
	cachePath := flag.String("cache", cfg.CachePath, "Schedule cache file path")
	policyStr := flag.String("policy", cfg.Policy, `Monitor policy: "all-today" or "active-only"`)
	absence := flag.Duration("absence-threshold", cfg.AbsenceThreshold, "Silence duration before a checked-in session goes absent")
	watchdog := flag.Duration("watchdog", 10*time.Second, "Absence watchdog tick interval")
	reconcile := flag.Duration("reconcile", time.Minute, "Monitoring reconcile tick interval")
	refresh := flag.Duration("refresh", 10*time.Minute, "Schedule refresh interval")
	lead := flag.Duration("lead", schedule.DefaultLeadBuffer, "Active-window lead buffer before session start")
	ledPin := flag.Int("led-pin", 0, "BCM pin for the presence LED (0 to disable)")
	anyResets := flag.Bool("any-sample-resets-silence", false, "Let far/unknown samples reset the silence timer")

	flag.Parse()

	logger := newLogger(cfg.Environment)
	defer logger.Sync()

	err = run(runConfig{
		baseURL:   *baseURL,
		studentID: *studentID,
		broker:    *broker,
		httpAddr:  *httpAddr,
		cachePath: *cachePath,
		policy:    *policyStr,
		absence:   *absence,
		watchdog:  *watchdog,
		reconcile: *reconcile,
		refresh:   *refresh,
		lead:      *lead,
		ledPin:    *ledPin,
		anyResets: *anyResets,
	}, logger)
	if err != nil {
		logger.Fatal("fatal", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.OutputPaths = []string{"stdout"}

	logger, err := cfg.Build()
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	return logger
}

type runConfig struct {
	baseURL   string
	studentID int
	broker    string
	httpAddr  string
	cachePath string
	policy    string
	absence   time.Duration
	watchdog  time.Duration
	reconcile time.Duration
	refresh   time.Duration
	lead      time.Duration
	ledPin    int
	anyResets bool
}

func run(rc runConfig, logger *zap.Logger) error {
	policy, err := engine.ParsePolicy(rc.policy)
	if err != nil {
		return err
	}

	store := schedule.NewStore(rc.lead, logger.Named("store"))
	cache := schedule.NewCache(rc.cachePath, logger.Named("cache"))
	fetcher := schedule.NewFetcher(rc.baseURL, rc.studentID, nil, logger.Named("fetch"))
	provider := schedule.NewProvider(cache, fetcher, logger.Named("schedule"))

	// Initial load: same-day cache, else fetch. No data is degraded mode,
	// not fatal — the refresh tick keeps trying.
	ctx := context.Background()
	if sched, err := provider.GetDaily(ctx, time.Now()); err != nil {
		logger.Warn("no schedule available, starting empty", zap.Error(err))
	} else {
		store.Replace(sched)
	}

	scanner, err := beacon.NewRealScanner(rc.broker, logger.Named("beacon"))
	if err != nil {
		return fmt.Errorf("init scanner: %w", err)
	}
	defer scanner.Close()

	client := syncer.NewHTTPClient(rc.baseURL, nil, logger.Named("sync"))
	eng := engine.New(store, engine.Config{
		AbsenceThreshold:       rc.absence,
		AnySampleResetsSilence: rc.anyResets,
	}, logger.Named("engine"))
	mon := engine.NewMonitor(store, scanner, policy, logger.Named("monitor"))

	tracker := status.NewTracker(time.Now(), status.Config{
		Broker:             rc.broker,
		BaseURL:            rc.baseURL,
		StudentID:          rc.studentID,
		Policy:             policy.String(),
		AbsenceThresholdMs: rc.absence.Milliseconds(),
		WatchdogMs:         rc.watchdog.Milliseconds(),
		RefreshMs:          rc.refresh.Milliseconds(),
		HTTPAddr:           rc.httpAddr,
		CachePath:          rc.cachePath,
	})

	var ledDrv led.Driver
	if rc.ledPin > 0 {
		drv, err := led.NewRealDriver(rc.ledPin)
		if err != nil {
			logger.Warn("presence led disabled", zap.Error(err))
		} else {
			ledDrv = drv
			defer drv.Close()
		}
	}

	if rc.httpAddr != "" {
		srv := web.New(rc.httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", zap.String("addr", rc.httpAddr))
	}

	// Publish startup event with a full status snapshot.
	snap := tracker.Snapshot()
	startup := beacon.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := scanner.PublishSystem(startup); err != nil {
		logger.Warn("failed to publish startup event", zap.Error(err))
	}

	mon.Reconcile(time.Now())

	logger.Info("started",
		zap.String("policy", policy.String()),
		zap.Duration("absence_threshold", rc.absence),
		zap.String("broker", rc.broker),
		zap.String("base_url", rc.baseURL))

	watchdogTicker := time.NewTicker(rc.watchdog)
	defer watchdogTicker.Stop()
	reconcileTicker := time.NewTicker(rc.reconcile)
	defer reconcileTicker.Stop()
	refreshTicker := time.NewTicker(rc.refresh)
	defer refreshTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(loopDeps{
		store:    store,
		provider: provider,
		scanner:  scanner,
		sys:      scanner,
		conn:     scanner,
		client:   client,
		engine:   eng,
		monitor:  mon,
		tracker:  tracker,
		led:      ledDrv,
		log:      logger,
		now:      time.Now,
	}, watchdogTicker.C, reconcileTicker.C, refreshTicker.C, sigCh)
}

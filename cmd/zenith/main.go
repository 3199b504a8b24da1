package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zenith/hydra/internal/bridge"
	"github.com/zenith/hydra/internal/config"
	"github.com/zenith/hydra/internal/core/ecs"
	"github.com/zenith/hydra/internal/core/event"
	"github.com/zenith/hydra/internal/core/mailbox"
	"github.com/zenith/hydra/internal/dom"
	"github.com/zenith/hydra/internal/exec"
	"github.com/zenith/hydra/internal/host"
	"github.com/zenith/hydra/internal/island"
	"github.com/zenith/hydra/internal/manifest"
	"github.com/zenith/hydra/internal/persist"
	"github.com/zenith/hydra/internal/render"
	sig "github.com/zenith/hydra/internal/signal"
	"github.com/zenith/hydra/internal/system"
	"github.com/zenith/hydra/internal/trust"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config
	cfgPath := "config/zenith.toml"
	if p := os.Getenv("ZENITH_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// 3. Manifest and page
	m, err := manifest.Load(cfg.Hydration.Manifest)
	if err != nil {
		return err
	}
	doc, err := loadDocument(cfg.Hydration.Document, m)
	if err != nil {
		return fmt.Errorf("document: %w", err)
	}
	descs, err := m.Descriptors(doc)
	if err != nil {
		return fmt.Errorf("bind manifest to document: %w", err)
	}
	log.Info("page loaded", zap.Int("islands", len(descs)))

	// 4. Runtime core
	world := ecs.NewWorld()
	rt := sig.NewRuntime()
	br := bridge.New(rt, world, log.Named("bridge"))
	bus := event.NewBus()
	mb := mailbox.New(cfg.Runtime.MailboxSize)
	defer mb.Close()
	hostEnv := host.New(log.Named("host"))

	// 5. Execution targets
	local, err := exec.NewLocalTarget(cfg.Hydration.ScriptsDir, log.Named("local"))
	if err != nil {
		return fmt.Errorf("local target: %w", err)
	}
	defer local.Close()
	targets := island.Targets{island.ExecLocal: local}
	if cfg.Remote.URL != "" {
		targets[island.ExecRemote] = exec.NewRemoteTarget(exec.RemoteConfig{
			URL:         cfg.Remote.URL,
			Origin:      cfg.Remote.Origin,
			DialTimeout: cfg.Remote.DialTimeout,
		}, log.Named("remote"))
	}
	if cfg.Edge.Endpoint != "" {
		targets[island.ExecEdge] = exec.NewEdgeTarget(exec.EdgeConfig{
			Endpoint:    cfg.Edge.Endpoint,
			MaxAttempts: cfg.Edge.MaxAttempts,
			Backoff: exec.BackoffConfig{
				InitialDelay: cfg.Edge.InitialDelay,
				Multiplier:   cfg.Edge.Multiplier,
				MaxDelay:     cfg.Edge.MaxDelay,
				Jitter:       cfg.Edge.Jitter,
			},
		}, log.Named("edge"))
	}

	opts := island.Options{
		Host:    hostEnv,
		Targets: targets,
		Mailbox: mb,
		Bus:     bus,
		Logger:  log.Named("island"),
		Timeout: cfg.Hydration.Timeout,
	}
	if cfg.Trust.PublicKey != "" {
		key, err := trust.ParsePublicKey(cfg.Trust.PublicKey)
		if err != nil {
			return fmt.Errorf("trust key: %w", err)
		}
		verifier, err := trust.NewJWTVerifier(trust.Config{
			Issuer:   cfg.Trust.Issuer,
			Audience: cfg.Trust.Audience,
			Key:      key,
		}, log.Named("trust"))
		if err != nil {
			return fmt.Errorf("trust verifier: %w", err)
		}
		opts.Verifier = verifier
	}

	reg := island.NewRegistry(br, log.Named("registry"))
	orch := island.NewOrchestrator(reg, br, opts)
	defer orch.Close()

	// 6. Journal (optional)
	var journalSys *system.JournalSystem
	if cfg.Journal.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		db, err := persist.NewDB(ctx, cfg.Journal, log.Named("journal"))
		if err != nil {
			cancel()
			return fmt.Errorf("journal database: %w", err)
		}
		defer db.Close()
		if err := persist.RunMigrations(ctx, db.Pool); err != nil {
			cancel()
			return fmt.Errorf("journal migrations: %w", err)
		}
		cancel()
		journalSys = system.NewJournalSystem(persist.NewJournalRepo(db), log.Named("journal"),
			cfg.Journal.FlushInterval, cfg.Journal.BatchSize)
		reg.Observe(journalSys.Record)
	}

	// 7. Systems
	world.AddSystem(system.NewMailboxSystem(mb, cfg.Runtime.MaxMailboxPerTick, log.Named("mailbox")))
	world.AddSystem(system.NewEventSystem(bus))
	world.AddSystem(system.NewFrameSystem(hostEnv, mb, cfg.Runtime.IdleBudget))
	if journalSys != nil {
		world.AddSystem(journalSys)
	}
	world.AddSystem(system.NewCleanupSystem(world, log.Named("cleanup")))

	settled := false
	checkSettled := func() {
		if settled || len(reg.ByState(island.StateLoading)) > 0 {
			return
		}
		settled = true
		logSummary(log, "page settled", reg)
	}
	event.Subscribe(bus, func(event.IslandHydrated) { checkSettled() })
	event.Subscribe(bus, func(event.IslandFailed) { checkSettled() })

	// 8. Register islands
	for _, d := range descs {
		if err := orch.Register(d); err != nil {
			log.Error("island registration rejected", zap.String("island", d.ID), zap.Error(err))
		}
	}
	if cfg.Hydration.AssumeVisible {
		hostEnv.RevealAll()
	}

	// 9. Loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Runtime.TickRate)
	defer ticker.Stop()

	log.Info("hydra loop started", zap.Duration("tick", cfg.Runtime.TickRate))

	for {
		select {
		case <-ticker.C:
			world.Tick(cfg.Runtime.TickRate)
		case s := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", s.String()))
			orch.Close()
			if journalSys != nil {
				journalSys.Flush()
			}
			logSummary(log, "islands at shutdown", reg)
			log.Debug("final document", zap.String("html", doc.HTML()))
			return nil
		}
	}
}

// loadDocument parses the configured page, or renders one from the
// manifest placeholders when no page is configured.
func loadDocument(path string, m *manifest.Manifest) (*dom.Document, error) {
	var markup string
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		markup = string(raw)
	} else {
		page, err := render.String(context.Background(), render.Document("zenith", m.Placeholders()...))
		if err != nil {
			return nil, err
		}
		markup = page
	}
	return dom.Parse(markup)
}

func logSummary(log *zap.Logger, msg string, reg *island.Registry) {
	log.Info(msg,
		zap.Int("hydrated", len(reg.ByState(island.StateHydrated))),
		zap.Int("error", len(reg.ByState(island.StateError))),
		zap.Int("loading", len(reg.ByState(island.StateLoading))),
	)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sensorwatch/internal/api"
	"sensorwatch/internal/config"
	"sensorwatch/internal/logging"
	"sensorwatch/internal/mirror"
	"sensorwatch/internal/model"
	"sensorwatch/internal/notify"
	"sensorwatch/internal/pipeline"
	"sensorwatch/internal/storage"
	"sensorwatch/internal/version"
)

func main() {
	configPath := flag.String("config", "sensors_config.json", "Path to the sensor configuration (YAML or JSON)")
	source := flag.String("source", "", "Start a session on this source at startup (tcp, websocket, replay, kafka)")
	replayPath := flag.String("replay", "", "Replay an exported session file at startup")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	writeConfig := flag.String("write-config", "", "Write the effective configuration (defaults applied) to this path and exit")
	flag.Parse()

	cfg, err := config.Load(config.ResolvePath(*configPath))
	if err != nil {
		logging.NewLogger("info", "json").Error("failed to load configuration", "path", *configPath, "err", err)
		os.Exit(1)
	}
	if *writeConfig != "" {
		if err := config.Save(config.ResolvePath(*writeConfig), cfg); err != nil {
			logging.NewLogger("info", "json").Error("failed to write configuration", "path", *writeConfig, "err", err)
			os.Exit(1)
		}
		return
	}
	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	logger := logging.NewLogger(level, cfg.LogFormat).With("version", version.GetVersion())
	logger.Info("starting sensorwatch", "build", version.GetFullVersion(), "sensors", cfg.SensorNames())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage setup failed", "err", err)
		os.Exit(1)
	}
	if store != nil {
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = store.Init(initCtx)
		cancel()
		if err != nil {
			logger.Error("storage init failed", "driver", cfg.Storage.Driver, "err", err)
			os.Exit(1)
		}
		defer store.Close()
		logger.Info("storage enabled", "driver", cfg.Storage.Driver)
	}

	notifier, closeNotifiers, err := notify.Build(cfg.Notify, logger)
	if err != nil {
		logger.Error("notifier setup failed", "err", err)
		os.Exit(1)
	}
	defer closeNotifiers()

	var observers []pipeline.Observer
	if cfg.Mirror.Enabled {
		m := mirror.NewRedisMirror(mirror.NewClient(cfg.Mirror), cfg.Mirror, logger)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := m.Ping(pingCtx); err != nil {
			logger.Warn("redis mirror unreachable, continuing", "addr", cfg.Mirror.Addr, "err", err)
		}
		cancel()
		defer m.Close()
		observers = append(observers, m)
	}

	p := pipeline.New(cfg, pipeline.Options{
		Notifier:  notifier,
		Store:     store,
		Observers: observers,
		Logger:    logger,
		LogBuffer: 1000,
	})

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline stopped", "err", err)
		}
	}()

	api.Start(ctx, cfg, p, logger, version.GetVersion())

	kind := model.SourceKind(*source)
	if *replayPath != "" {
		kind = model.SourceReplay
	}
	if kind != "" {
		info, err := p.StartSession(ctx, kind, config.ResolvePath(*replayPath))
		if err != nil {
			logger.Error("failed to start session", "source", string(kind), "err", err)
		} else {
			logger.Info("session requested", "session_id", info.ID, "target", info.Target)
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")
	p.StopSession()
	<-runDone
	logger.Info("stopped")
}

package main

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/compendiumnav/boatrelay/internal/ais"
	"github.com/compendiumnav/boatrelay/internal/batch"
	"github.com/compendiumnav/boatrelay/internal/buildinfo"
	"github.com/compendiumnav/boatrelay/internal/command"
	"github.com/compendiumnav/boatrelay/internal/config"
	"github.com/compendiumnav/boatrelay/internal/dashboard"
	"github.com/compendiumnav/boatrelay/internal/derive"
	"github.com/compendiumnav/boatrelay/internal/directserver"
	"github.com/compendiumnav/boatrelay/internal/httpkit"
	"github.com/compendiumnav/boatrelay/internal/journal"
	"github.com/compendiumnav/boatrelay/internal/mqttbridge"
	"github.com/compendiumnav/boatrelay/internal/signalk"
	"github.com/compendiumnav/boatrelay/internal/state"
	"github.com/compendiumnav/boatrelay/internal/statebus"
	"github.com/compendiumnav/boatrelay/internal/statepath"
	clientsync "github.com/compendiumnav/boatrelay/internal/sync"
	"github.com/compendiumnav/boatrelay/internal/units"
	"github.com/compendiumnav/boatrelay/internal/upstream"
)

// runServe wires every collaborator described in SPEC_FULL.md §2's
// dataflow and starts the relay. Component construction is sequential
// and fail-fast, matching the teacher's cmd/thane runServe shape:
// each fallible step logs and os.Exit(1)s rather than accumulating
// errors, since a boat relay with a half-built dependency graph has
// no safe degraded mode to fall back into.
func runServe(configPath string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("starting boatrelay", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			logger.Error("invalid log_level in config", "error", err)
			os.Exit(1)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"node_env", cfg.NodeEnv,
		"signalk_url", cfg.SignalK.URL,
		"direct_port", cfg.Direct.Port,
		"upstream_host", cfg.Upstream.Host,
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	store, err := journal.Open(cfg.DataDir + "/boatrelay.db")
	if err != nil {
		logger.Error("failed to open journal store", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("journal store opened", "path", cfg.DataDir+"/boatrelay.db")

	appUUID, err := journal.LoadOrCreateAppUUID(cfg.DataDir)
	if err != nil {
		logger.Error("failed to load app uuid", "error", err)
		os.Exit(1)
	}
	logger.Info("app identity", "uuid", appUUID)

	identity, err := buildIdentity(cfg, appUUID)
	if err != nil {
		logger.Error("failed to build upstream identity", "error", err)
		os.Exit(1)
	}

	prefs := units.DefaultPreferences(units.Metric)
	if found, err := store.LoadUnitPreferences(&prefs); err != nil {
		logger.Error("failed to load unit preferences", "error", err)
		os.Exit(1)
	} else if found {
		logger.Info("unit preferences loaded from journal")
	}

	doc := state.NewDocument()
	engine := derive.New(derive.DefaultConfig())
	bus := statebus.New(doc, engine, logger)

	if fences, err := store.LoadFences(); err != nil {
		logger.Error("failed to load fences", "error", err)
		os.Exit(1)
	} else if len(fences) > 0 {
		if _, _, err := bus.Commit(map[statepath.Path]any{statepath.AnchorFences: fences}); err != nil {
			logger.Error("failed to seed fences", "error", err)
			os.Exit(1)
		}
		logger.Info("fences loaded from journal", "count", len(fences))
	}

	router := command.New(bus)
	coord := clientsync.New(bus, router, logger)

	batcher := batch.New(batch.DefaultConfig(), bus, logger)

	httpClient := httpkit.NewClient(httpkit.WithRetry(3, 500*time.Millisecond), httpkit.WithLogger(logger))

	ingestor := signalk.New(cfg.SignalK, batcher, bus, prefs, httpClient, logger)
	extractor := ais.New(ais.Config{
		URL:          cfg.AIS.URL,
		SelfMMSI:     cfg.AIS.SelfMMSI,
		PollInterval: cfg.AIS.PollInterval,
	}, batcher, httpClient, logger)

	direct := directserver.New(cfg.Direct.Port, coord, logger)
	tunnel := upstream.New(cfg.Upstream, cfg.Production(), identity, coord, logger)
	bridge := mqttbridge.New(cfg.MQTT, batcher, prefs, logger)
	dash := dashboard.New(cfg.DashboardPort, bus, store, bridge, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	patchCh, unsubPatch := bus.OnPatch(64)
	go func() {
		defer unsubPatch()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-patchCh:
				if err := store.AppendPatch(ev.Seq, ev.Patch); err != nil {
					logger.Warn("failed to append patch to journal", "seq", ev.Seq, "error", err)
				}
			}
		}
	}()

	coord.Start()
	go batcher.Run(ctx)
	go extractor.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 4)
	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}
	run("signalk ingestor", ingestor.Run)
	run("direct server", direct.Run)
	run("upstream tunnel", tunnel.Run)
	run("mqtt bridge", bridge.Run)
	run("dashboard", dash.Run)

	logger.Info("boatrelay serving",
		"direct_port", cfg.Direct.Port,
		"dashboard_port", cfg.DashboardPort,
		"mqtt_enabled", cfg.MQTT.Enabled(),
	)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()
	case err := <-errCh:
		logger.Error("component failed, shutting down", "error", err)
		cancel()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out waiting for components")
	}

	logger.Info("boatrelay stopped")
}

// buildIdentity constructs the upstream.Identity used for the cloud
// relay handshake, selecting JWT vs. keypair auth per
// config.Config.UsesTokenAuth, matching §4.10 step 3/4.
func buildIdentity(cfg *config.Config, boatID string) (upstream.Identity, error) {
	if cfg.UsesTokenAuth() {
		return upstream.Identity{
			BoatID:      boatID,
			TokenSecret: cfg.Auth.TokenSecret,
			TokenExpiry: cfg.Auth.TokenExpiry,
		}, nil
	}

	privPEM, pubPEM, err := journal.LoadOrCreateKeypair(cfg.DataDir)
	if err != nil {
		return upstream.Identity{}, err
	}

	block, _ := pem.Decode([]byte(privPEM))
	if block == nil {
		return upstream.Identity{}, fmt.Errorf("buildrelay: no PEM block in private key")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return upstream.Identity{}, fmt.Errorf("buildrelay: parse private key: %w", err)
	}

	return upstream.Identity{
		BoatID:       boatID,
		PrivateKey:   key,
		PublicKeyPEM: pubPEM,
	}, nil
}

// Package main provides the CLI entry point for the ACE version assignment
// service.
//
// handlers.go contains the RunE handler functions for all CLI commands.
// These functions implement the business logic for each command.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fciannella/ace-versioning/internal/admin"
	"github.com/fciannella/ace-versioning/internal/analytics"
	"github.com/fciannella/ace-versioning/internal/assignment"
	"github.com/fciannella/ace-versioning/internal/config"
	"github.com/fciannella/ace-versioning/internal/observability"
	"github.com/fciannella/ace-versioning/internal/versioning"
)

// =============================================================================
// Application Wiring
// =============================================================================

// app bundles the wired-up service stack shared by all commands.
type app struct {
	cfg        *config.Config
	logger     *observability.Logger
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	stopTracer func(context.Context) error
	stores     assignment.StoreSet
	service    *assignment.Service
	aggregator *analytics.Aggregator
}

// buildApp loads the configuration and wires the registry, storage, and
// service. Callers must Close the returned app.
func buildApp(ctx context.Context, configPath string, debug bool) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logCfg := observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	}
	if debug {
		logCfg.Level = "debug"
	}
	logger := observability.NewLogger(logCfg)

	tracer, stopTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "aceversion",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})

	registry := versioning.NewRegistry()
	if err := registry.RegisterAll(cfg.Characters); err != nil {
		_ = stopTracer(ctx)
		return nil, fmt.Errorf("register characters: %w", err)
	}

	stores, err := openStores(ctx, cfg)
	if err != nil {
		_ = stopTracer(ctx)
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}

	metrics := observability.NewMetrics()
	service, err := assignment.NewService(assignment.ServiceConfig{
		Registry: registry,
		Stores:   stores,
		Logger:   logger,
		Metrics:  metrics,
		Tracer:   tracer,
	})
	if err != nil {
		_ = stores.Close()
		_ = stopTracer(ctx)
		return nil, err
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		tracer:     tracer,
		stopTracer: stopTracer,
		stores:     stores,
		service:    service,
		aggregator: analytics.NewAggregator(registry, stores.Assignments, metrics),
	}, nil
}

// Close releases storage and flushes any buffered trace spans.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if err := a.stores.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stores: %w", err))
	}
	if err := a.stopTracer(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop tracer: %w", err))
	}
	return errors.Join(errs...)
}

// loadConfig resolves and reads the config file. Only when no path was
// given anywhere (flag or ACEVERSION_CONFIG) may a missing default file
// fall back to the built-in memory configuration, so "aceversion serve"
// works out of the box; an explicitly named file must exist.
func loadConfig(flagPath string) (*config.Config, error) {
	explicit := flagPath != "" || os.Getenv("ACEVERSION_CONFIG") != ""
	cfg, err := config.Load(resolveConfigPath(flagPath))
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// openStores selects the storage backend from the config.
func openStores(ctx context.Context, cfg *config.Config) (assignment.StoreSet, error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case config.DriverSQLite:
		return assignment.NewSQLiteStores(cfg.Storage.DSN)
	case config.DriverPostgres:
		return assignment.NewPostgresStores(ctx, cfg.Storage.DSN, nil)
	default:
		return assignment.StoreSet{
			Assignments: assignment.NewMemoryStore(),
			Events:      assignment.NewMemoryEventStore(cfg.Storage.MaxEventsPerCharacter),
		}, nil
	}
}

// =============================================================================
// Serve Command Handler
// =============================================================================

// runServe implements the serve command logic. It handles configuration
// loading, service initialization, and graceful shutdown.
func runServe(ctx context.Context, configPath string, debug bool) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := buildApp(ctx, configPath, debug)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		if err := app.Close(closeCtx); err != nil {
			app.logger.Error(closeCtx, "shutdown cleanup failed", "error", err)
		}
	}()

	server, err := admin.NewServer(admin.Config{
		Host: app.cfg.Server.Host,
		Port: app.cfg.Server.Port,
	}, app.service, app.aggregator, app.logger)
	if err != nil {
		return err
	}

	app.logger.Info(ctx, "starting version assignment service",
		"version", version,
		"storage", app.cfg.Storage.Driver,
		"characters", len(app.cfg.Characters))

	return server.Start(ctx)
}

// =============================================================================
// Validate Command Handler
// =============================================================================

func runValidate(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	fmt.Printf("%s: configuration valid (%d characters, %s storage)\n",
		configPath, len(cfg.Characters), cfg.Storage.Driver)
	return nil
}

// =============================================================================
// Assignment Command Handlers
// =============================================================================

func runAssign(ctx context.Context, configPath, userID, characterID string) error {
	app, err := buildApp(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	versionID, err := app.service.GetVersionForUser(ctx, userID, characterID)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"user_id":      userID,
		"character_id": characterID,
		"version_id":   versionID,
	})
}

func runReassign(ctx context.Context, configPath, userID, characterID, versionID string) error {
	app, err := buildApp(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	if err := app.service.Reassign(ctx, userID, characterID, versionID); err != nil {
		return err
	}
	return printJSON(map[string]string{
		"user_id":      userID,
		"character_id": characterID,
		"version_id":   versionID,
	})
}

// =============================================================================
// Reporting Command Handlers
// =============================================================================

func runDistribution(ctx context.Context, configPath, characterID string, draws int) error {
	app, err := buildApp(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	report, err := app.service.TestDistribution(ctx, characterID, draws)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runSimulate(ctx context.Context, configPath, characterID string, users int) error {
	app, err := buildApp(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	report, err := app.service.SimulateUserAssignments(ctx, characterID, users)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runAnalytics(ctx context.Context, configPath, characterID string) error {
	app, err := buildApp(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	snapshot, err := app.aggregator.AssignmentAnalytics(ctx, characterID)
	if err != nil {
		return err
	}
	return printJSON(snapshot)
}

func runHealth(ctx context.Context, configPath string) error {
	app, err := buildApp(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	report, err := app.aggregator.HealthCheck(ctx)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

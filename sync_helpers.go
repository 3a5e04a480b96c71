package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ultimaforsan/ultima/internal/config"
	"github.com/ultimaforsan/ultima/internal/gcal"
	"github.com/ultimaforsan/ultima/internal/notify"
	"github.com/ultimaforsan/ultima/internal/sync"
)

// dataDirPermissions applies to directories created for the database.
const dataDirPermissions = 0o700

// openStore opens (and migrates) the mirror database, creating its parent
// directory on first use.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sync.SQLiteStore, error) {
	dbPath := cfg.Store.DBPath
	if dbPath == "" {
		return nil, errors.New("cannot determine database path; set [store] db_path or --db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), dataDirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return sync.NewSQLiteStore(ctx, dbPath, logger)
}

// selectionFromConfig builds the engine's calendar selection from [sync].
func selectionFromConfig(cfg *config.Config) sync.Selection {
	return sync.Selection{
		Include: cfg.Sync.Calendars,
		Skip:    cfg.Sync.SkipCalendars,
	}
}

// syncSession bundles everything a sync or watch run needs. Close releases
// the store and the notification connection.
type syncSession struct {
	Store     *sync.SQLiteStore
	Engine    *sync.Engine
	publisher *notify.Publisher
	logger    *slog.Logger
}

// newSyncSession authenticates against Google, opens the store, and wires
// the engine. The caller must Close the session.
func newSyncSession(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*syncSession, error) {
	oauthCfg, err := gcal.OAuthConfig(cfg.Google.CredentialsFile)
	if err != nil {
		return nil, err
	}

	ts, err := gcal.TokenSourceFromPath(ctx, oauthCfg, cfg.Google.TokenFile, logger)
	if err != nil {
		if errors.Is(err, gcal.ErrNotLoggedIn) {
			return nil, errors.New("not logged in, run 'ultima login' first")
		}

		return nil, err
	}

	httpClient := gcal.NewHTTPClient(ts, gcal.TransportOptions{
		ConnectTimeout:    cfg.Network.ConnectTimeoutDuration(),
		DataTimeout:       cfg.Network.DataTimeoutDuration(),
		MaxRetries:        cfg.Network.MaxRetries,
		RequestsPerSecond: cfg.Network.RequestsPerSecond,
	}, logger)

	client, err := gcal.NewClient(ctx, httpClient, gcal.ClientOptions{
		UserAgent:   cfg.Network.UserAgent,
		PageSize:    int64(cfg.Google.PageSize),
		ShowDeleted: cfg.Google.ShowDeleted,
	}, logger)
	if err != nil {
		return nil, err
	}

	return assembleSession(ctx, cfg, client, logger)
}

// assembleSession wires store, publisher, and engine around a listing
// source. Split from newSyncSession so tests can supply a fake source.
func assembleSession(ctx context.Context, cfg *config.Config, source sync.ListingSource, logger *slog.Logger) (*syncSession, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &syncSession{Store: store, logger: logger}

	ecfg := &sync.EngineConfig{
		Source:    source,
		Store:     store,
		Selection: selectionFromConfig(cfg),
		MaxPages:  cfg.Sync.MaxPages,
		Logger:    logger,
	}

	if cfg.Notify.NATSURL != "" {
		pub, err := notify.Connect(cfg.Notify.NATSURL, cfg.Notify.Subject,
			cfg.Network.ConnectTimeoutDuration(), logger)
		if err != nil {
			// The mirror works without notifications.
			logger.Warn("pass notifications disabled", slog.String("error", err.Error()))
		} else {
			s.publisher = pub
			ecfg.OnPassComplete = pub.OnPassComplete
		}
	}

	engine, err := sync.NewEngine(ecfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Engine = engine

	return s, nil
}

// Close releases the session's resources.
func (s *syncSession) Close() {
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Warn("closing notification publisher", slog.String("error", err.Error()))
		}
	}

	if err := s.Store.Close(); err != nil {
		s.logger.Warn("closing store", slog.String("error", err.Error()))
	}
}

// withStore opens the store for the duration of fn.
func withStore(ctx context.Context, cc *CLIContext, fn func(*sync.SQLiteStore) error) error {
	store, err := openStore(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(store)
}

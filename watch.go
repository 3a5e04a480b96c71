package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ultimaforsan/ultima/internal/config"
	"github.com/ultimaforsan/ultima/internal/sync"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run sync passes continuously",
		Long: `Run a sync pass immediately and then on every tick of [sync] schedule
(a cron expression) or, when no schedule is set, every [sync] poll_interval.

The config file is watched for changes and re-read on SIGHUP; calendar
selection changes apply to the next pass. SIGINT/SIGTERM stop the watcher
after the page in flight is committed.`,
		RunE: runWatch,
	}
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask the running watcher to re-read its config",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			pid, err := sendSIGHUP(pidFilePath(cc.Cfg.Store.DBPath))
			if err != nil {
				return err
			}

			cc.Statusf("Reload signal sent to watcher (PID %d).\n", pid)

			return nil
		},
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger

	release, err := lockMirror(cc.Cfg.Store.DBPath)
	if err != nil {
		return err
	}
	defer release()

	cleanup, err := writePIDFile(pidFilePath(cc.Cfg.Store.DBPath))
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := shutdownContext(cmd.Context(), logger)

	session, err := newSyncSession(ctx, cc.Cfg, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	holder := config.NewHolder(cc.Cfg, cc.CfgPath)
	env := config.ReadEnvOverrides()
	cli := config.CLIOverrides{ConfigPath: cc.Flags.ConfigPath, DBPath: cc.Flags.DBPath}

	loop := &watchLoop{
		runner: session.Engine,
		holder: holder,
		reloadFn: func() (*config.Config, error) {
			return config.Resolve(holder.Path(), env, cli)
		},
		logger: logger,
	}

	return loop.run(ctx)
}

// passRunner is the engine surface the watch loop drives.
type passRunner interface {
	RunPass(ctx context.Context) (*sync.PassReport, error)
	SetSelection(sel sync.Selection)
}

// watchLoop runs passes on a schedule and applies config reloads between
// passes. Passes never overlap.
type watchLoop struct {
	runner   passRunner
	holder   *config.Holder
	reloadFn func() (*config.Config, error)
	logger   *slog.Logger

	// Injectable for tests; nil means derived from config and OS signals.
	triggers <-chan struct{}
	reloads  <-chan struct{}
}

func (w *watchLoop) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	triggers := w.triggers
	if triggers == nil {
		tc := make(chan struct{}, 1)
		triggers = tc

		cfg := w.holder.Config()

		g.Go(func() error {
			return runScheduler(gctx, &cfg.Sync, tc, w.logger)
		})
	}

	reloads := w.reloads
	if reloads == nil {
		rc := make(chan struct{}, 1)
		reloads = rc

		g.Go(func() error {
			return watchConfigFile(gctx, w.holder.Path(), rc, w.logger)
		})

		sighup := reloadSignals(gctx)

		g.Go(func() error {
			forward(gctx, sighup, rc)
			return nil
		})
	}

	g.Go(func() error {
		return w.passLoop(gctx, triggers, reloads)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// passLoop runs a pass immediately, then one per trigger.
func (w *watchLoop) passLoop(ctx context.Context, triggers, reloads <-chan struct{}) error {
	w.runPass(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped")
			return ctx.Err()
		case <-reloads:
			w.reload()
		case <-triggers:
			w.runPass(ctx)
		}
	}
}

func (w *watchLoop) runPass(ctx context.Context) {
	report, err := w.runner.RunPass(ctx)

	switch {
	case errors.Is(err, sync.ErrPassInProgress):
		w.logger.Warn("previous pass still running, skipping tick")
	case err != nil && ctx.Err() == nil:
		w.logger.Error("sync pass failed", slog.String("error", err.Error()))
	case report != nil && len(report.FailedDrains()) > 0:
		w.logger.Warn("sync pass finished with failed drains",
			slog.Int("failed", len(report.FailedDrains())),
		)
	}
}

// reload re-reads the config. A broken file keeps the current config.
func (w *watchLoop) reload() {
	next, err := w.reloadFn()
	if err != nil {
		w.logger.Warn("config reload failed, keeping current config",
			slog.String("error", err.Error()),
		)

		return
	}

	prev := w.holder.Config()
	w.holder.Update(next)
	w.runner.SetSelection(selectionFromConfig(next))

	w.logger.Info("config reloaded",
		slog.String("path", w.holder.Path()),
		slog.Int("calendars", len(next.Sync.Calendars)),
		slog.Int("skip_calendars", len(next.Sync.SkipCalendars)),
	)

	if needsRestart(prev, next) {
		w.logger.Warn("schedule, database, or credentials changed; restart the watcher to apply")
	}
}

func needsRestart(prev, next *config.Config) bool {
	return prev.Sync.Schedule != next.Sync.Schedule ||
		prev.Sync.PollInterval != next.Sync.PollInterval ||
		prev.Store.DBPath != next.Store.DBPath ||
		prev.Google != next.Google ||
		prev.Network != next.Network ||
		prev.Notify != next.Notify
}

// runScheduler sends on triggers per the cron schedule, or every poll
// interval when no schedule is configured.
func runScheduler(ctx context.Context, s *config.SyncConfig, triggers chan<- struct{}, logger *slog.Logger) error {
	fire := func() {
		select {
		case triggers <- struct{}{}:
		default: // a pass is already queued
		}
	}

	if s.Schedule != "" {
		sched, err := config.ParseSchedule(s.Schedule)
		if err != nil {
			return err
		}

		c := cron.New()
		c.Schedule(sched, cron.FuncJob(fire))
		c.Start()

		logger.Info("watch scheduled", slog.String("schedule", s.Schedule))

		<-ctx.Done()
		<-c.Stop().Done()

		return nil
	}

	interval := s.PollDuration()
	if interval <= 0 {
		return fmt.Errorf("invalid poll interval %q", s.PollInterval)
	}

	logger.Info("watch polling", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fire()
		}
	}
}

// fileWatcher is the fsnotify surface used for config hot reload.
type fileWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct{ w *fsnotify.Watcher }

func (f fsnotifyWatcher) Add(name string) error         { return f.w.Add(name) }
func (f fsnotifyWatcher) Close() error                  { return f.w.Close() }
func (f fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f fsnotifyWatcher) Errors() <-chan error          { return f.w.Errors }

// newFileWatcher is swapped in tests.
var newFileWatcher = func() (fileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return fsnotifyWatcher{w: w}, nil
}

// watchConfigFile signals reloads when the config file is written or
// replaced. The parent directory is watched because editors save by
// renaming a temp file over the original.
func watchConfigFile(ctx context.Context, path string, reloads chan<- struct{}, logger *slog.Logger) error {
	if path == "" {
		return nil
	}

	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); err != nil {
		logger.Debug("config directory missing, hot reload disabled", slog.String("dir", dir))
		return nil
	}

	watcher, err := newFileWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		logger.Warn("cannot watch config directory, hot reload disabled",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)

		return nil
	}

	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target || (!ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create)) {
				continue
			}

			logger.Debug("config file changed", slog.String("op", ev.Op.String()))

			select {
			case reloads <- struct{}{}:
			default:
			}
		case err, ok := <-watcher.Errors():
			if !ok {
				return nil
			}

			logger.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}

// forward copies signals from src to dst without blocking.
func forward(ctx context.Context, src <-chan struct{}, dst chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-src:
			select {
			case dst <- struct{}{}:
			default:
			}
		}
	}
}

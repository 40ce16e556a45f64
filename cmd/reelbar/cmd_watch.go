package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"reelbar/internal/adapter"
	"reelbar/internal/browser"
	"reelbar/internal/config"
	"reelbar/internal/dom"
	"reelbar/internal/engine"
	"reelbar/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultWatchURL = "https://www.youtube.com/shorts"

var watchTarget string

var watchCmd = &cobra.Command{
	Use:   "watch [url]",
	Short: "Decorate a live page until interrupted",
	Long: `Opens url (default ` + defaultWatchURL + `) in a new page, or attaches to an existing
page with --target, and keeps the progress bar on the active item. In-page
navigations and edits to the adapters or config file re-bootstrap the engine.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchTarget, "target", "", "Attach to an existing DevTools target id instead of opening a page")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	bc := browserSettings(cfg)
	mgr := browser.NewSessionManager(bc)
	startCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := mgr.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	ownsBrowser := bc.DebuggerURL == ""
	defer func() {
		if err := mgr.Shutdown(context.Background(), ownsBrowser); err != nil {
			logger.Warn("Browser shutdown failed", zap.Error(err))
		}
	}()

	session, err := openSession(startCtx, mgr, args)
	if err != nil {
		return err
	}
	page, _ := mgr.Page(session.ID)
	logger.Info("Watching page",
		zap.String("session", session.ID),
		zap.String("target", session.TargetID),
		zap.String("url", session.URL))

	audit := logging.AuditWithSession(session.ID)
	audit.SessionStart(session.URL)
	started := time.Now()

	host, err := mgr.Host(ctx, session.ID)
	if err != nil {
		return err
	}
	defer host.Close()

	adapters, err := registry.Bind(host)
	if err != nil {
		return err
	}
	opts := cfg.EngineOptions()
	opts.OnEvent = eventLogger(audit)
	sup := engine.NewSupervisor(host, adapters, opts)
	defer sup.Stop()

	n, err := sup.Bootstrap(ctx, "")
	if err != nil {
		return err
	}
	audit.Bootstrap(session.URL, n)

	triggers := make(chan engine.Trigger, 16)
	send := func(ctx context.Context, t engine.Trigger) {
		select {
		case triggers <- t:
		case <-ctx.Done():
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return browser.WatchNavigation(gctx, page, bc.TriggerPrefix, func(t engine.Trigger) {
			send(gctx, t)
		})
	})
	g.Go(func() error {
		return watchFiles(gctx, registry, host, sup, audit, func() { send(gctx, engine.Trigger{}) })
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case t := <-triggers:
				audit.Trigger(t.ID, t.URL)
				n, err := sup.Handle(gctx, t)
				if err != nil {
					logger.Warn("Re-bootstrap failed", zap.Int64("trigger", t.ID), zap.Error(err))
					continue
				}
				logger.Debug("Re-bootstrapped", zap.Int64("trigger", t.ID), zap.String("url", t.URL), zap.Int("runs", n))
				audit.Bootstrap(t.URL, n)
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	audit.SessionEnd(time.Since(started), err)
	if err != nil {
		return err
	}
	logger.Info("Stopped watching")
	return nil
}

// openSession attaches to --target or opens a new page. A url given with --target
// is navigated to after attaching.
func openSession(ctx context.Context, mgr *browser.SessionManager, args []string) (*browser.Session, error) {
	url := ""
	if len(args) > 0 {
		url = args[0]
	}
	if watchTarget == "" {
		if url == "" {
			url = defaultWatchURL
		}
		return mgr.OpenPage(ctx, url)
	}

	session, err := mgr.AttachPage(ctx, watchTarget)
	if err != nil {
		return nil, err
	}
	if url != "" {
		if err := mgr.Navigate(ctx, session.ID, url); err != nil {
			return nil, err
		}
		s, _ := mgr.GetSession(session.ID)
		session = &s
	}
	return session, nil
}

// watchFiles reloads the config and the adapter registry when their files change,
// then asks for a re-bootstrap.
func watchFiles(ctx context.Context, registry *adapter.Registry, host dom.Host, sup *engine.Supervisor, audit *logging.AuditLogger, rebootstrap func()) error {
	var w *config.Watcher
	w, err := config.NewWatcher(func(path string) {
		err := reloadFrom(path, registry, host, sup)
		audit.Reload(path, err)
		if err != nil {
			logger.Warn("Reload failed", zap.String("path", path), zap.Error(err))
			return
		}
		// A reloaded config may point at a different adapters file.
		if err := w.Add(cfg.AdaptersFile); err != nil {
			logger.Warn("Cannot watch adapters file", zap.String("path", cfg.AdaptersFile), zap.Error(err))
		}
		rebootstrap()
	}, cfg.AdaptersFile, configPath)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	st := w.Stats()
	logger.Debug("File watcher stopped",
		zap.Int("events", st.Events),
		zap.Int("reloads", st.Reloads),
		zap.Int("errors", st.Errors))
	return nil
}

// reloadFrom applies a changed file. A config change replaces the global config,
// re-initializes logging and hands the new engine options to sup; the adapters file
// is re-read when its path changed. An adapters file change rebinds the registry.
func reloadFrom(path string, registry *adapter.Registry, host dom.Host, sup *engine.Supervisor) error {
	if !isSameFile(path, configPath) {
		return rebind(registry, host, sup)
	}

	fresh, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := fresh.Validate(); err != nil {
		return err
	}
	if err := initLogging(fresh); err != nil {
		return err
	}
	prevAdapters := cfg.AdaptersFile
	cfg = fresh

	opts := cfg.EngineOptions()
	opts.OnEvent = sup.Options().OnEvent
	sup.SetOptions(opts)
	logger.Info("Config reloaded",
		zap.String("path", path),
		zap.String("mount_id", opts.MountID),
		zap.Duration("ready_interval", opts.ReadyInterval))

	if cfg.AdaptersFile != prevAdapters {
		return rebind(registry, host, sup)
	}
	return nil
}

// rebind reloads the registry from the configured adapters file and hands the
// bound adapters to sup.
func rebind(registry *adapter.Registry, host dom.Host, sup *engine.Supervisor) error {
	if err := registry.Reload(cfg.AdaptersFile); err != nil {
		return err
	}
	adapters, err := registry.Bind(host)
	if err != nil {
		return err
	}
	sup.SetAdapters(adapters)
	logger.Info("Adapters reloaded", zap.String("path", cfg.AdaptersFile), zap.Int("kinds", len(adapters)))
	return nil
}

func isSameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

// eventLogger reports engine lifecycle events to the zap logger and the audit trail.
func eventLogger(audit *logging.AuditLogger) func(engine.Event) {
	return func(e engine.Event) {
		logger.Info("Engine event",
			zap.String("run", e.RunID),
			zap.String("type", string(e.Type)),
			zap.Int64("item", int64(e.Item)),
			zap.Int64("mount", int64(e.Mount)),
			zap.Int("items", e.Items),
			zap.Bool("reuse", e.Reuse))
		auditEvent(audit, e)
	}
}

func auditEvent(audit *logging.AuditLogger, e engine.Event) {
	audit.Lifecycle(logging.AuditEventType(e.Type), e.RunID, int64(e.Item), int64(e.Mount), e.Items, e.Reuse)
}

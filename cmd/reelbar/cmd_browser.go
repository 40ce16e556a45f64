package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"reelbar/internal/browser"
	"reelbar/internal/config"
	"reelbar/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Launch a browser for watch to attach to",
	Long: `Launches Chromium and writes its DevTools control URL next to the session
store. Later 'reelbar watch' invocations attach to it instead of launching their own.`,
	RunE: runLaunch,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List persisted browser sessions",
	RunE:  runSessions,
}

// controlFile is where launch records the control URL.
func controlFile(c *config.Config) string {
	return filepath.Join(filepath.Dir(c.BrowserSettings().SessionStore), "control.txt")
}

// browserSettings returns the browser config, picking up a launched browser's
// control URL when none is configured.
func browserSettings(c *config.Config) browser.Config {
	bc := c.BrowserSettings()
	if bc.DebuggerURL != "" {
		return bc
	}
	if data, err := os.ReadFile(controlFile(c)); err == nil {
		if url := strings.TrimSpace(string(data)); url != "" {
			bc.DebuggerURL = url
			logger.Info("Connecting to launched browser", zap.String("url", url))
		}
	}
	return bc
}

func runLaunch(cmd *cobra.Command, args []string) error {
	logger.Info("Launching browser")

	bc := cfg.BrowserSettings()
	bc.DebuggerURL = ""
	mgr := browser.NewSessionManager(bc)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}

	path := controlFile(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logging.BootWarn("failed to create %s: %v", filepath.Dir(path), err)
	} else if err := os.WriteFile(path, []byte(mgr.ControlURL()), 0o644); err != nil {
		logging.BootWarn("failed to write browser control file: %v", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Browser launched. Control URL: %s\n", mgr.ControlURL())
	fmt.Fprintf(out, "Control file: %s\n", path)
	fmt.Fprintln(out, "Press Ctrl+C to shutdown")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.BootWarn("failed to remove browser control file: %v", err)
	}
	if err := mgr.Shutdown(context.Background(), true); err != nil {
		logging.BootWarn("failed to shutdown browser: %v", err)
	}
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	store := cfg.BrowserSettings().SessionStore
	sessions, err := browser.ReadSessionStore(store)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintf(out, "No sessions in %s\n", store)
		return nil
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.Before(sessions[j].CreatedAt) })
	for _, s := range sessions {
		fmt.Fprintf(out, "%s  target=%s  [%s] %s\n", s.ID, s.TargetID, s.Status, s.URL)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"reelbar/internal/engine"
	"reelbar/internal/logging"
	"reelbar/internal/memdom"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var replayInterval time.Duration

var replayCmd = &cobra.Command{
	Use:   "replay [scenario.yaml]",
	Short: "Replay a page scenario against the engine without a browser",
	Long: `Loads a scenario, builds an in-memory page from it and runs the engine against
the page while the steps play. Decoration transitions are printed as they happen.
The command fails if an expect_decorated step does not hold.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().DurationVar(&replayInterval, "interval", 10*time.Millisecond, "Polling interval for every wait during replay (0 uses the configured polling)")
}

// eventPrinter serializes output from the run loop and the scenario goroutine.
type eventPrinter struct {
	mu    sync.Mutex
	out   io.Writer
	audit *logging.AuditLogger
}

func (p *eventPrinter) printf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *eventPrinter) event(e engine.Event) {
	if p.audit != nil {
		auditEvent(p.audit, e)
	}
	switch e.Type {
	case engine.EventAttached:
		reuse := ""
		if e.Reuse {
			reuse = " (reused)"
		}
		p.printf("  attached  item=%d mount=%d%s\n", e.Item, e.Mount, reuse)
	case engine.EventRemoved:
		p.printf("  removed   item=%d mount=%d\n", e.Item, e.Mount)
	case engine.EventActiveChanged:
		p.printf("  active    item=%d\n", e.Item)
	case engine.EventItemsChanged:
		p.printf("  items     %d\n", e.Items)
	case engine.EventContainerFound:
		p.printf("  container found\n")
	}
}

func replayOptions(sc *memdom.Scenario, p *eventPrinter) engine.Options {
	opts := cfg.EngineOptions()
	if replayInterval > 0 {
		opts.ContainerInterval = replayInterval
		opts.ItemsInterval = replayInterval
		opts.ActiveInterval = replayInterval
		opts.ReadyInterval = replayInterval
	}
	if sc.MountID != "" {
		opts.MountID = sc.MountID
	}
	opts.OnEvent = p.event
	return opts
}

func runReplay(cmd *cobra.Command, args []string) error {
	sc, err := memdom.LoadScenario(args[0])
	if err != nil {
		return err
	}
	doc, err := sc.NewDocument()
	if err != nil {
		return err
	}
	registry, err := loadRegistry()
	if err != nil {
		return err
	}
	adapters, err := registry.Bind(doc)
	if err != nil {
		return err
	}

	name := sc.Name
	if name == "" {
		name = args[0]
	}
	p := &eventPrinter{out: cmd.OutOrStdout(), audit: logging.AuditWithSession(name)}
	sup := engine.NewSupervisor(doc, adapters, replayOptions(sc, p))
	defer sup.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := time.Now()
	p.audit.SessionStart(sc.URL)
	p.printf("scenario %s (%d steps)\n", name, len(sc.Steps))
	logger.Debug("Replaying scenario", zap.String("file", args[0]), zap.String("url", sc.URL))
	logging.Replay("scenario %s: %d steps against %s", name, len(sc.Steps), sc.URL)

	n, err := sup.Bootstrap(ctx, "")
	if err != nil {
		return err
	}
	p.audit.Bootstrap(sc.URL, n)
	if n == 0 {
		p.printf("  no page kind applies to %s\n", sc.URL)
	}

	err = sc.Run(ctx, doc, memdom.Hooks{
		Navigate: func(ctx context.Context, url string) error {
			p.printf("navigate %s\n", url)
			p.audit.Trigger(0, url)
			n, err := sup.Handle(ctx, engine.Trigger{URL: url})
			p.audit.Bootstrap(url, n)
			return err
		},
		Decorated: sup.Decorated,
		Step: func(i int, s memdom.Step) {
			if verbose {
				p.printf("step %d: %s %s\n", i+1, s.Op, s.Selector)
			}
		},
	})
	p.audit.SessionEnd(time.Since(started), err)
	logging.Replay("scenario %s finished in %v (err=%v)", name, time.Since(started), err)
	if err != nil {
		p.printf("FAIL: %v\n", err)
		return err
	}
	p.printf("PASS\n")
	return nil
}

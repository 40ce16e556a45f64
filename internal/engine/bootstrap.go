package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"reelbar/internal/dom"
	"reelbar/internal/logging"
)

// Bootstrap starts a run for a if it applies to the host's current URL.
func Bootstrap(ctx context.Context, host dom.Host, a PageAdapter, opts Options) (*Run, bool, error) {
	url, err := host.URL(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("read page url: %w", err)
	}
	if !Applies(a, url) {
		return nil, false, nil
	}
	r := NewRun(host, a, opts)
	r.Start(ctx)
	return r, true, nil
}

// Supervisor owns the runs on one host. Every bootstrap supersedes the previous one,
// so repeated navigation triggers never stack runs.
type Supervisor struct {
	host dom.Host
	opts Options

	mu       sync.Mutex
	adapters []PageAdapter
	runs     []*Run
}

// NewSupervisor creates a supervisor over host for the given adapters.
func NewSupervisor(host dom.Host, adapters []PageAdapter, opts Options) *Supervisor {
	return &Supervisor{host: host, opts: opts, adapters: adapters}
}

// SetAdapters replaces the adapter set used by subsequent bootstraps.
func (s *Supervisor) SetAdapters(adapters []PageAdapter) {
	s.mu.Lock()
	s.adapters = adapters
	s.mu.Unlock()
}

// Options returns the options new runs start with.
func (s *Supervisor) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// SetOptions replaces the options used by subsequent bootstraps. Live runs keep
// theirs until they are superseded.
func (s *Supervisor) SetOptions(opts Options) {
	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()
}

// Bootstrap stops every current run and starts one run per adapter that applies to
// url. An empty url is read from the host. It returns the number of runs started.
func (s *Supervisor) Bootstrap(ctx context.Context, url string) (int, error) {
	if url == "" {
		u, err := s.host.URL(ctx)
		if err != nil {
			return 0, fmt.Errorf("read page url: %w", err)
		}
		url = u
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	for _, a := range s.adapters {
		if !Applies(a, url) {
			continue
		}
		r := NewRun(s.host, a, s.opts)
		r.Start(ctx)
		s.runs = append(s.runs, r)
	}
	if len(s.runs) == 0 {
		logging.EngineDebug("no adapter applies to %s", url)
	} else {
		logging.Engine("bootstrapped %d run(s) for %s", len(s.runs), url)
	}
	return len(s.runs), nil
}

// Handle re-bootstraps for a trigger. The trigger's ID is opaque: a source may send
// the same ID for every navigation, and each one re-bootstraps.
func (s *Supervisor) Handle(ctx context.Context, t Trigger) (int, error) {
	logging.EngineDebug("trigger %d for %s", t.ID, t.URL)
	return s.Bootstrap(ctx, t.URL)
}

// Runs returns the live runs.
func (s *Supervisor) Runs() []*Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Run(nil), s.runs...)
}

// Decorated returns the item carrying a decoration in any live run, or dom.None.
func (s *Supervisor) Decorated(ctx context.Context) (dom.NodeID, error) {
	for _, r := range s.Runs() {
		st, err := r.Snapshot(ctx)
		if errors.Is(err, ErrStopped) {
			continue
		}
		if err != nil {
			return dom.None, err
		}
		if st.Decorated != dom.None {
			return st.Decorated, nil
		}
	}
	return dom.None, nil
}

// Stop stops every run and waits for them.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Supervisor) stopLocked() {
	for _, r := range s.runs {
		r.Stop()
	}
	s.runs = nil
}

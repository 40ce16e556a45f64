package adapter

import (
	"context"
	"regexp"

	"reelbar/internal/dom"
)

// Selector answers the page-adapter questions for one Definition against one Host.
type Selector struct {
	def      Definition
	patterns []*regexp.Regexp
	host     dom.Host
}

// New binds def to host.
func New(def Definition, host dom.Host) (*Selector, error) {
	patterns, err := def.Validate()
	if err != nil {
		return nil, err
	}
	return &Selector{def: def, patterns: patterns, host: host}, nil
}

// Kind returns the page kind.
func (s *Selector) Kind() string { return s.def.Kind }

// Patterns returns the compiled URL patterns.
func (s *Selector) Patterns() []*regexp.Regexp { return s.patterns }

func (s *Selector) QueryContainer(ctx context.Context) (dom.NodeID, error) {
	return s.host.QuerySelector(ctx, s.def.Container)
}

func (s *Selector) QueryItems(ctx context.Context) ([]dom.NodeID, error) {
	return s.host.QuerySelectorAll(ctx, s.def.Items)
}

func (s *Selector) AttachPoint(ctx context.Context, item dom.NodeID) (dom.NodeID, error) {
	return s.host.QueryWithin(ctx, item, s.def.AttachPoint)
}

// MediaElement returns nil when the item has no media element yet.
func (s *Selector) MediaElement(ctx context.Context, item dom.NodeID) (dom.Media, error) {
	node, err := s.host.QueryWithin(ctx, item, s.def.Media)
	if err != nil || node == dom.None {
		return nil, err
	}
	return s.host.Media(ctx, node)
}

// IsReady holds once every readiness selector matches inside the item.
func (s *Selector) IsReady(ctx context.Context, item dom.NodeID) (bool, error) {
	for _, sel := range s.def.Ready {
		node, err := s.host.QueryWithin(ctx, item, sel)
		if err != nil {
			return false, err
		}
		if node == dom.None {
			return false, nil
		}
	}
	return true, nil
}

func (s *Selector) IsActive(ctx context.Context, item dom.NodeID) (bool, error) {
	return s.host.HasAttribute(ctx, item, s.def.ActiveAttribute)
}

func (s *Selector) IsStructuralChange(m dom.Mutation) bool {
	return m.Type == s.def.StructuralMutation
}

func (s *Selector) IsActivationChange(m dom.Mutation) bool {
	return m.Type == dom.MutationAttributes && m.AttributeName == s.def.ActivationAttribute
}

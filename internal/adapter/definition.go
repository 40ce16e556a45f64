// Package adapter holds the per-page lookup tables: which selectors find the feed
// container, its items, the mount point and the video, and which mutations matter.
package adapter

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"reelbar/internal/dom"

	"gopkg.in/yaml.v3"
)

// ErrUnknownKind is returned when a page kind is not registered.
var ErrUnknownKind = errors.New("adapter: unknown page kind")

// Definition is the declarative description of one page kind.
type Definition struct {
	Kind        string   `yaml:"kind"`
	URLPatterns []string `yaml:"url_patterns"`

	Container   string   `yaml:"container"`
	Items       string   `yaml:"items"`
	AttachPoint string   `yaml:"attach_point"`
	Media       string   `yaml:"media"`
	Ready       []string `yaml:"ready"` // all must match inside the item

	ActiveAttribute     string `yaml:"active_attribute"`
	StructuralMutation  string `yaml:"structural_mutation"`  // mutation type that triggers an item re-scan
	ActivationAttribute string `yaml:"activation_attribute"` // attribute whose change triggers re-resolution
}

// YouTubeShorts is the built-in definition for youtube.com/shorts.
//
//	#shorts-inner-container
//	  .reel-video-in-sequence[is-active]   <- item
//	    #overlay                           <- attach point
//	    .html5-video-container > video     <- media
func YouTubeShorts() Definition {
	return Definition{
		Kind:                "youtube-shorts",
		URLPatterns:         []string{`^https://www\.youtube\.com/shorts`},
		Container:           "#shorts-inner-container",
		Items:               ".reel-video-in-sequence",
		AttachPoint:         "#overlay",
		Media:               "video",
		Ready:               []string{".html5-video-container", "#overlay"},
		ActiveAttribute:     "is-active",
		StructuralMutation:  dom.MutationChildList,
		ActivationAttribute: "is-active",
	}
}

// Validate checks required fields and compiles the URL patterns.
func (d Definition) Validate() ([]*regexp.Regexp, error) {
	switch {
	case d.Kind == "":
		return nil, errors.New("adapter: definition without kind")
	case d.Container == "" || d.Items == "":
		return nil, fmt.Errorf("adapter %s: container and items selectors are required", d.Kind)
	case d.AttachPoint == "" || d.Media == "":
		return nil, fmt.Errorf("adapter %s: attach_point and media selectors are required", d.Kind)
	case d.ActiveAttribute == "":
		return nil, fmt.Errorf("adapter %s: active_attribute is required", d.Kind)
	case len(d.URLPatterns) == 0:
		return nil, fmt.Errorf("adapter %s: at least one url pattern is required", d.Kind)
	}

	patterns := make([]*regexp.Regexp, 0, len(d.URLPatterns))
	for _, p := range d.URLPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("adapter %s: url pattern %q: %w", d.Kind, p, err)
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}

type definitionsFile struct {
	Adapters []Definition `yaml:"adapters"`
}

// LoadFile reads definitions from a YAML file of the form `adapters: [...]`.
func LoadFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read adapters: %w", err)
	}
	var f definitionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse adapters: %w", err)
	}
	for i := range f.Adapters {
		if f.Adapters[i].StructuralMutation == "" {
			f.Adapters[i].StructuralMutation = dom.MutationChildList
		}
		if f.Adapters[i].ActivationAttribute == "" {
			f.Adapters[i].ActivationAttribute = f.Adapters[i].ActiveAttribute
		}
	}
	return f.Adapters, nil
}

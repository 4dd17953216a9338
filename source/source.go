// Package source describes the contest listing sites the crawler knows and
// binds each one to its extractor, normalizer and page planner.
package source

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/eun2chd/allround/config"
	"github.com/eun2chd/allround/extractor"
	"github.com/eun2chd/allround/planner"
	"github.com/eun2chd/allround/runner"
)

var (
	// ErrUnknownSource is returned for a slug that is not registered or is disabled.
	ErrUnknownSource = errors.New("unknown source")

	// ErrInvalidSettings is returned for page counts or delays a planner
	// cannot work with.
	ErrInvalidSettings = errors.New("invalid source settings")
)

type Mode string

const (
	// ModeCountGated picks full or incremental from the stored row count.
	ModeCountGated Mode = "count_gated"
	// ModeRotating walks the catalog with a persisted cursor.
	ModeRotating Mode = "rotating"
)

// Definition is the static description of a listing site.
type Definition struct {
	Slug      string
	Name      string
	BaseURL   string
	Mode      Mode
	PageURL   func(page int) string
	Extractor extractor.Extractor
	Fallbacks extractor.Fallbacks
}

// Builtin returns the sites the crawler ships with.
func Builtin() []Definition {
	wevityFallbacks := extractor.DefaultFallbacks
	wevityFallbacks.DDay = "-"

	return []Definition{
		{
			Slug:    "allforyoung",
			Name:    "요즘것들",
			BaseURL: "https://www.allforyoung.com",
			Mode:    ModeCountGated,
			PageURL: func(page int) string {
				return fmt.Sprintf("https://www.allforyoung.com/posts/contest?page=%d", page)
			},
			Extractor: extractor.ExtractFunc(extractor.ExtractAllForYoung),
			Fallbacks: extractor.DefaultFallbacks,
		},
		{
			Slug:    "wevity",
			Name:    "위비티",
			BaseURL: "https://www.wevity.com/",
			Mode:    ModeRotating,
			PageURL: func(page int) string {
				return fmt.Sprintf("https://www.wevity.com/?c=find&s=1&gbn=list&gp=%d", page)
			},
			Extractor: extractor.ExtractFunc(extractor.ExtractWevity),
			Fallbacks: wevityFallbacks,
		},
	}
}

// Source is a definition combined with its runtime tuning.
type Source struct {
	Definition
	Config     config.SourceConfig
	Normalizer *extractor.Normalizer
	CountGated planner.CountGated
	Rotating   planner.Rotating
}

// Target is what the runner needs for this source.
func (s *Source) Target() runner.Target {
	return runner.Target{
		Source:     s.Name,
		PageURL:    s.PageURL,
		Extractor:  s.Extractor,
		Normalizer: s.Normalizer,
	}
}

// Delay returns the pause between pages for a full or incremental run.
func (s *Source) Delay(full bool) time.Duration {
	if full {
		return s.Config.FullDelay
	}
	return s.Config.IncrementalDelay
}

type Registry struct {
	sources map[string]*Source
}

// NewRegistry builds the enabled sources from defs and their settings.
// A definition without settings is skipped.
func NewRegistry(defs []Definition, settings map[string]config.SourceConfig) (*Registry, error) {
	r := &Registry{sources: make(map[string]*Source, len(defs))}
	for _, def := range defs {
		sc, ok := settings[def.Slug]
		if !ok || !sc.Enabled {
			continue
		}
		if err := validateSettings(def.Mode, sc); err != nil {
			return nil, fmt.Errorf("source %s: %w", def.Slug, err)
		}
		norm, err := extractor.NewNormalizer(def.Name, def.BaseURL, def.Fallbacks)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", def.Slug, err)
		}
		r.sources[def.Slug] = &Source{
			Definition: def,
			Config:     sc,
			Normalizer: norm,
			CountGated: planner.CountGated{
				FullPages:        sc.FullPages,
				IncrementalPages: sc.IncrementalPages,
			},
			Rotating: planner.Rotating{
				PagesPerFull:     sc.PagesPerFull,
				IncrementalPages: sc.IncrementalPages,
				Cap:              sc.PageCap,
				Exhaustive:       sc.Exhaustive,
			},
		}
	}
	return r, nil
}

// validateSettings checks the settings the source's mode actually reads.
func validateSettings(mode Mode, sc config.SourceConfig) error {
	positive := map[string]int{"incremental_pages": sc.IncrementalPages}
	switch mode {
	case ModeRotating:
		positive["pages_per_full"] = sc.PagesPerFull
		positive["page_cap"] = sc.PageCap
	default:
		positive["full_pages"] = sc.FullPages
	}
	for _, key := range []string{"full_pages", "incremental_pages", "pages_per_full", "page_cap"} {
		if v, ok := positive[key]; ok && v < 1 {
			return fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalidSettings, key, v)
		}
	}
	if sc.FullDelay < 0 || sc.IncrementalDelay < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidSettings)
	}
	return nil
}

func (r *Registry) Get(slug string) (*Source, error) {
	s, ok := r.sources[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, slug)
	}
	return s, nil
}

// All returns the registered sources ordered by slug.
func (r *Registry) All() []*Source {
	out := make([]*Source, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

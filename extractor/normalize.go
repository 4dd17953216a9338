// Package extractor turns listing HTML into contest records: one goquery
// extractor per source plus a shared normalizer.
package extractor

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/eun2chd/allround/model"
)

// Extractor pulls raw entries out of one listing page.
type Extractor interface {
	Extract(html []byte) ([]model.RawRecord, error)
}

// ExtractFunc adapts a function to Extractor.
type ExtractFunc func(html []byte) ([]model.RawRecord, error)

func (f ExtractFunc) Extract(html []byte) ([]model.RawRecord, error) { return f(html) }

const maxCategoryLen = 200

// Fallbacks fill fields the listing left empty.
type Fallbacks struct {
	Title    string
	Host     string
	Category string
	DDay     string
}

var DefaultFallbacks = Fallbacks{
	Title:    "(제목 없음)",
	Host:     "-",
	Category: "공모전",
}

// Normalizer produces canonical records for one source. Timestamps are left
// unset; reconciliation owns them.
type Normalizer struct {
	Source    string
	BaseURL   *url.URL
	Fallbacks Fallbacks
}

func NewNormalizer(source, baseURL string, fb Fallbacks) (*Normalizer, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Normalizer{Source: source, BaseURL: u, Fallbacks: fb}, nil
}

// Normalize drops entries without a numeric id or a resolvable link.
func (n *Normalizer) Normalize(raws []model.RawRecord) []model.ContestRecord {
	out := make([]model.ContestRecord, 0, len(raws))
	for _, r := range raws {
		id := strings.TrimSpace(r.ID)
		if !isNumericID(id) {
			continue
		}
		link, ok := n.resolve(r.Href)
		if !ok {
			continue
		}
		out = append(out, model.ContestRecord{
			Source:   n.Source,
			ID:       id,
			Title:    orDefault(clean(r.Title), n.Fallbacks.Title),
			DDay:     orDefault(clean(r.DDay), n.Fallbacks.DDay),
			Host:     orDefault(clean(r.Host), n.Fallbacks.Host),
			URL:      link,
			Category: orDefault(truncate(clean(r.Category), maxCategoryLen), n.Fallbacks.Category),
		})
	}
	return out
}

func (n *Normalizer) resolve(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := n.BaseURL.ResolveReference(ref)
	if abs.Scheme == "" || abs.Host == "" {
		return "", false
	}
	return abs.String(), true
}

func isNumericID(id string) bool {
	if id == "" {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// clean trims and collapses internal whitespace runs to a single space.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

package extractor

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/eun2chd/allround/model"
)

var (
	wevityIDPattern  = regexp.MustCompile(`ix=(\d+)`)
	wevityTagPattern = regexp.MustCompile(`(?i)\s+(SPECIAL|IDEA)\s*$`)
	wevityCatPattern = regexp.MustCompile(`분야\s*:\s*(.+)`)
	wevityDayPattern = regexp.MustCompile(`(D-\d+|오늘\s*마감|마감)`)
)

// ExtractWevity reads wevity.com list rows. Pinned rows (li.top) repeat
// entries from the regular list and are skipped.
func ExtractWevity(html []byte) ([]model.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var out []model.RawRecord
	seen := make(map[string]struct{})

	doc.Find("ul.list > li").Each(func(_ int, li *goquery.Selection) {
		if li.HasClass("top") {
			return
		}
		link := li.Find(`div.tit a[href*="gbn=view"][href*="ix="]`).First()
		href, _ := link.Attr("href")
		m := wevityIDPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id := m[1]
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}

		title := strings.TrimSpace(ownText(link))
		for wevityTagPattern.MatchString(title) {
			title = wevityTagPattern.ReplaceAllString(title, "")
		}

		var category string
		if cm := wevityCatPattern.FindStringSubmatch(li.Find("div.sub-tit").First().Text()); cm != nil {
			category = cm[1]
		}

		dday := strings.TrimSpace(ownText(li.Find("div.day").First()))
		if dm := wevityDayPattern.FindStringSubmatch(dday); dm != nil {
			dday = dm[1]
		}

		out = append(out, model.RawRecord{
			ID:       id,
			Title:    title,
			DDay:     dday,
			Host:     li.Find("div.organ").First().Text(),
			Href:     href,
			Category: category,
		})
	})

	return out, nil
}

// ownText is the text of s without the text of its child elements.
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			b.WriteString(c.Text())
		}
	})
	return b.String()
}

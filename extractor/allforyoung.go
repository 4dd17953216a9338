package extractor

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/eun2chd/allround/model"
)

var postIDPattern = regexp.MustCompile(`/posts/(\d+)(?:\?|$)`)

// ExtractAllForYoung reads allforyoung.com contest cards. Post links outside
// a list item (navigation, footer) are ignored.
func ExtractAllForYoung(html []byte) ([]model.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var out []model.RawRecord
	seen := make(map[string]struct{})

	doc.Find(`a[href*="/posts/"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := postIDPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id := m[1]
		if _, dup := seen[id]; dup {
			return
		}
		li := a.Closest("li")
		if li.Length() == 0 {
			return
		}
		seen[id] = struct{}{}

		title, _ := li.Find("img[alt]").First().Attr("alt")
		category := li.Find(`[data-slot="card-content"]`).First().
			Find(`[data-slot="badge"]`).First().Text()

		out = append(out, model.RawRecord{
			ID:       id,
			Title:    title,
			DDay:     li.Find(`[data-slot="badge"]`).First().Text(),
			Host:     li.Find(`[data-slot="card-footer"]`).First().Text(),
			Href:     href,
			Category: category,
		})
	})

	return out, nil
}

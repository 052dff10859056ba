package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

const userAgent = "feedbot/1.0 RSS bridge"

// Fetcher retrieves and parses one feed document per call.
type Fetcher struct {
	parser *gofeed.Parser
	client *http.Client
}

// NewFetcher creates a fetcher whose HTTP requests are bounded by timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		parser: gofeed.NewParser(),
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch downloads and parses url, returning its items oldest-first.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return convertItems(parsed), nil
}

// convertItems maps gofeed entries to Items, oldest-first. Feed documents
// usually list newest-first; the order is flipped when the timestamps say
// so, otherwise document order is kept.
func convertItems(parsed *gofeed.Feed) []Item {
	origin := parsed.Title
	if origin == "" {
		origin = "Unknown"
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, gi := range parsed.Items {
		title := gi.Title
		if title == "" {
			title = "Unknown"
		}

		links := gi.Links
		if len(links) == 0 && gi.Link != "" {
			links = []string{gi.Link}
		}
		if len(links) == 0 {
			continue
		}

		published := time.Now()
		if gi.PublishedParsed != nil {
			published = *gi.PublishedParsed
		} else if gi.UpdatedParsed != nil {
			published = *gi.UpdatedParsed
		}

		items = append(items, Item{
			Origin:    origin,
			Title:     title,
			Links:     append([]string(nil), links...),
			Published: published,
			Hash:      HashLinks(links),
		})
	}

	if len(items) > 1 && items[0].Published.After(items[len(items)-1].Published) {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	return items
}

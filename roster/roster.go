// Package roster extracts brawler names from an HTML roster page so brawlers
// that never showed up in the battle log still take part in drafts.
package roster

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultSelector matches a roster table's name cells or a roster list.
const DefaultSelector = "table.roster td.name, ul.roster li"

const userAgent = "brawldraft/1.0 (roster-import)"

// Parse returns the trimmed, deduplicated and sorted text of the elements
// matched by selector.
func Parse(r io.Reader, selector string) ([]string, error) {
	if selector == "" {
		selector = DefaultSelector
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse roster html: %w", err)
	}

	seen := make(map[string]bool)
	var names []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		name := strings.Join(strings.Fields(s.Text()), " ")
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	})
	sort.Strings(names)
	return names, nil
}

// Load reads a roster from a local file or, for http(s) sources, from the web.
func Load(ctx context.Context, source, selector string) ([]string, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return Fetch(ctx, &http.Client{Timeout: 30 * time.Second}, source, selector)
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()
	return Parse(f, selector)
}

// Fetch downloads url and parses it.
func Fetch(ctx context.Context, client *http.Client, url, selector string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch roster: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch roster: unexpected status code: %d", resp.StatusCode)
	}
	return Parse(resp.Body, selector)
}

// Merge returns the sorted union of the given name lists.
func Merge(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, name := range list {
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

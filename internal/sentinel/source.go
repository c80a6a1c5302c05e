package sentinel

import (
	"context"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/rawblock/memecoin-radar/internal/httpfetch"
)

// ExchangeSource fetches and parses one exchange's announcement index into a
// list of Announcements, newest first. Implementations own the page-specific
// scraping; the Sentinel owns dedup, listing classification and emission.
type ExchangeSource interface {
	Exchange() string
	FetchAnnouncements(ctx context.Context) ([]Announcement, error)
}

// HTMLExchangeSource is a generic announcement-index scraper: fetch a page,
// strip HTML tags down to visible text blocks, then regex-extract tokens and
// markets per block. Real per-exchange quirks (pagination, JSON APIs some
// exchanges expose instead of HTML) are expected to be layered in via
// dedicated Source implementations; this one covers the common
// server-rendered-announcement-list case.
type HTMLExchangeSource struct {
	ExchangeName string
	IndexURL     string
	Fetcher      *httpfetch.Fetcher
}

func (h *HTMLExchangeSource) Exchange() string { return h.ExchangeName }

func (h *HTMLExchangeSource) FetchAnnouncements(ctx context.Context) ([]Announcement, error) {
	body, ferr := h.Fetcher.Get(ctx, "sentinel_"+h.ExchangeName, h.IndexURL, 10*time.Second, nil)
	if ferr != nil {
		return nil, ferr
	}

	blocks, err := extractTextBlocks(body)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]Announcement, 0, len(blocks))
	for _, title := range blocks {
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		out = append(out, Announcement{
			Exchange:    h.ExchangeName,
			Title:       title,
			Url:         h.IndexURL,
			PublishedAt: now,
			Tokens:      extractTokens(title),
			Markets:     extractMarkets(title),
		})
	}
	return out, nil
}

// extractTextBlocks walks the HTML document and collects the visible text of
// anchor and list-item nodes, which is where exchange announcement indices
// typically place each announcement's title.
func extractTextBlocks(body []byte) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "a" || n.Data == "li") {
			text := collectText(n)
			if text != "" {
				blocks = append(blocks, text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return blocks, nil
}

func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

package fetcher

import (
	"context"
	"encoding/xml"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ellis-vester/backloggd-discord/internal/modules/feed/domain"
	"github.com/samber/oops"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/94.0.4606.81 Safari/537.36"

// Backloggd serves pubDate in RFC-2822 form. The extra layouts cover
// the single-digit-day and named-zone variants seen in the wild.
var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
}

// rssDocument mirrors the Backloggd review feed dialect, including the
// item-level image element and the backloggd-namespaced extension
// fields. Field tags match on local name so the namespace prefix does
// not need to be declared in the document.
type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Description string    `xml:"description"`
	Link        string    `xml:"link"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	PubDate     string   `xml:"pubDate"`
	Description string   `xml:"description"`
	GUID        string   `xml:"guid"`
	UserRating  int      `xml:"user_rating"`
	Reviewer    string   `xml:"reviewer"`
	Image       rssImage `xml:"image"`
}

type rssImage struct {
	URL string `xml:"url"`
}

// Fetcher retrieves and parses review feeds.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

// New creates a fetcher with a bounded request timeout.
func New(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		logger: slog.Default(),
	}
}

// SetLogger sets the logger.
func (f *Fetcher) SetLogger(logger *slog.Logger) {
	f.logger = logger
}

// Fetch retrieves url and parses it into a FeedDocument. Failures are
// classified as domain.FetchError: transport problems as Network,
// non-2xx responses as HTTPStatus, unparseable bodies as Malformed.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*domain.FeedDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchErrorNetwork, Err: oops.With("feed_url", url).Wrap(err)}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchErrorNetwork, Err: oops.With("feed_url", url).Wrap(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused; the body itself is not logged
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &domain.FetchError{Kind: domain.FetchErrorHTTPStatus, StatusCode: resp.StatusCode}
	}

	var raw rssDocument
	decoder := xml.NewDecoder(resp.Body)
	if err := decoder.Decode(&raw); err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchErrorMalformed, Err: oops.With("feed_url", url).Wrap(err)}
	}

	return f.convert(url, raw), nil
}

// convert maps the wire document into the domain model, skipping
// single items that are missing required fields.
func (f *Fetcher) convert(url string, raw rssDocument) *domain.FeedDocument {
	doc := &domain.FeedDocument{
		Title:       raw.Channel.Title,
		Description: raw.Channel.Description,
		Link:        raw.Channel.Link,
	}

	for _, item := range raw.Channel.Items {
		if item.Title == "" || item.Link == "" {
			f.logger.Warn("Skipping feed item with missing required fields",
				"feed_url", url, "guid", item.GUID)
			continue
		}

		published, err := parsePubDate(item.PubDate)
		if err != nil {
			f.logger.Warn("Skipping feed item with unparseable pubDate",
				"feed_url", url, "guid", item.GUID, "pub_date", item.PubDate)
			continue
		}

		doc.Items = append(doc.Items, domain.FeedItem{
			Title:       item.Title,
			Link:        item.Link,
			Published:   published,
			Description: item.Description,
			GUID:        item.GUID,
			Rating:      item.UserRating,
			Reviewer:    item.Reviewer,
			ImageURL:    item.Image.URL,
		})
	}

	return doc
}

func parsePubDate(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range pubDateLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, oops.With("pub_date", value).Wrap(lastErr)
}

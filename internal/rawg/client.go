// Package rawg is a client for the RAWG game catalog API. Calls go
// through a circuit breaker so a failing provider is not hammered during
// bootstrap or search supplementation.
package rawg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/iliyamo/game-tracker/internal/apperr"
	"github.com/iliyamo/game-tracker/internal/metrics"
)

const service = "rawg"

var errNotFound = errors.New("not found")

// Named is a RAWG reference object such as a genre or platform.
type Named struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// PlatformEntry wraps a platform reference as RAWG nests it.
type PlatformEntry struct {
	Platform Named `json:"platform"`
}

// Game is a catalog record as returned by list and detail endpoints.
type Game struct {
	ID              int64           `json:"id"`
	Slug            string          `json:"slug"`
	Name            string          `json:"name"`
	Released        string          `json:"released"`
	BackgroundImage string          `json:"background_image"`
	Rating          float64         `json:"rating"`
	RatingsCount    int             `json:"ratings_count"`
	Metacritic      *int            `json:"metacritic"`
	Platforms       []PlatformEntry `json:"platforms"`
	Genres          []Named         `json:"genres"`
	Description     string          `json:"description"`
	DescriptionRaw  string          `json:"description_raw"`
}

// ReleaseDate parses Released; an empty or malformed value yields nil.
func (g Game) ReleaseDate() *time.Time {
	if g.Released == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", g.Released)
	if err != nil {
		return nil
	}
	return &t
}

// GenreNames returns the genre names in order.
func (g Game) GenreNames() []string {
	out := make([]string, 0, len(g.Genres))
	for _, n := range g.Genres {
		if n.Name != "" {
			out = append(out, n.Name)
		}
	}
	return out
}

// Page is one page of a list response. A nil Next marks the last page.
type Page struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []Game  `json:"results"`
}

// HasNext reports whether another page follows.
func (p Page) HasNext() bool { return p.Next != nil && *p.Next != "" }

// ListParams are the query parameters of GET /games. Zero values are
// omitted from the request.
type ListParams struct {
	Search       string
	Page         int
	PageSize     int
	Ordering     string // e.g. "-metacritic"
	Platforms    string
	Metacritic   string // range "80,89"
	RatingsCount string
}

func (p ListParams) values() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("search", p.Search)
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(p.PageSize))
	}
	set("ordering", p.Ordering)
	set("platforms", p.Platforms)
	set("metacritic", p.Metacritic)
	set("ratings_count", p.RatingsCount)
	return q
}

// Client is safe for concurrent use.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[[]byte]
}

// NewClient builds a Client for baseURL (e.g. https://api.rawg.io/api).
// A nil hc gets a client with the given timeout.
func NewClient(apiKey, baseURL string, timeout time.Duration, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "rawg-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return &Client{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), http: hc, cb: cb}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool { return c.apiKey != "" }

// List fetches one page of GET /games.
func (c *Client) List(ctx context.Context, p ListParams) (Page, error) {
	var page Page
	if err := c.getJSON(ctx, "/games", p.values(), &page); err != nil {
		return Page{}, err
	}
	return page, nil
}

// Search is List with a search term.
func (c *Client) Search(ctx context.Context, query string, page, pageSize int) (Page, error) {
	return c.List(ctx, ListParams{Search: query, Page: page, PageSize: pageSize})
}

// GetGame fetches the detail record of one game. An unknown id fails with
// apperr.ErrGameNotFound.
func (c *Client) GetGame(ctx context.Context, id int64) (Game, error) {
	var g Game
	err := c.getJSON(ctx, "/games/"+strconv.FormatInt(id, 10), url.Values{}, &g)
	if errors.Is(err, errNotFound) {
		return Game{}, apperr.ErrGameNotFound
	}
	return g, err
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	if !c.Configured() {
		return apperr.ErrConfiguration
	}
	q.Set("key", c.apiKey)
	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.fetch(ctx, c.baseURL+path+"?"+q.Encode())
	})
	metrics.RemoteRequests.WithLabelValues(service, metrics.Outcome(err)).Inc()
	if err != nil {
		if errors.Is(err, errNotFound) {
			return err
		}
		return apperr.Remote(service, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Remote(service, fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errNotFound
	case resp.StatusCode/100 != 2:
		return nil, fmt.Errorf("GET %s: status %d", req.URL.Path, resp.StatusCode)
	}
	return body, nil
}

// Package steam talks to the Steam Web API and Steam's OpenID 2.0
// provider.
package steam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/iliyamo/game-tracker/internal/apperr"
	"github.com/iliyamo/game-tracker/internal/metrics"
)

const (
	openIDNamespace   = "http://specs.openid.net/auth/2.0"
	identifierSelect  = "http://specs.openid.net/auth/2.0/identifier_select"
	headerImageFormat = "https://cdn.cloudflare.steamstatic.com/steam/apps/%d/header.jpg"
	maxBodyBytes      = 8 << 20
)

var claimedIDPattern = regexp.MustCompile(`^https://steamcommunity\.com/openid/id/(\d+)$`)

// ErrNoPlayer is returned when the profile API answers without a player
// record for the requested id.
var ErrNoPlayer = errors.New("no player in response")

// Config holds the endpoints and credentials used by Client.
type Config struct {
	APIKey    string
	APIBase   string // e.g. https://api.steampowered.com
	OpenIDURL string // e.g. https://steamcommunity.com/openid/login
	RealmURL  string
	ReturnURL string
	Timeout   time.Duration
}

// Player is one entry of GetPlayerSummaries.
type Player struct {
	SteamID     string `json:"steamid"`
	PersonaName string `json:"personaname"`
	ProfileURL  string `json:"profileurl"`
	Avatar      string `json:"avatar"`
}

// OwnedGame is one entry of GetOwnedGames. AppID and the timestamps are
// pointers because Steam omits them for some entries.
type OwnedGame struct {
	AppID           *int64 `json:"appid"`
	Name            string `json:"name"`
	ImgIconURL      string `json:"img_icon_url"`
	PlaytimeForever int    `json:"playtime_forever"`
	RTimeLastPlayed *int64 `json:"rtime_last_played"`
}

// Client is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a Client. A nil hc gets a client with cfg.Timeout.
func NewClient(cfg Config, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return &Client{cfg: cfg, http: hc}
}

// Configured reports whether a Web API key is set. OpenID validation
// works without one; profile and library calls do not.
func (c *Client) Configured() bool { return c.cfg.APIKey != "" }

// LoginURL returns the checkid_setup redirect that starts a Steam login.
func (c *Client) LoginURL() string {
	q := url.Values{}
	q.Set("openid.ns", openIDNamespace)
	q.Set("openid.mode", "checkid_setup")
	q.Set("openid.return_to", c.cfg.ReturnURL)
	q.Set("openid.realm", c.cfg.RealmURL)
	q.Set("openid.identity", identifierSelect)
	q.Set("openid.claimed_id", identifierSelect)
	return c.cfg.OpenIDURL + "?" + q.Encode()
}

// ValidateAssertion re-posts the callback parameters with the mode set to
// check_authentication. It returns true only when Steam answers with
// is_valid:true; transport failures are returned as errors.
func (c *Client) ValidateAssertion(ctx context.Context, params url.Values) (bool, error) {
	form := url.Values{}
	for k, v := range params {
		form[k] = append([]string(nil), v...)
	}
	form.Set("openid.mode", "check_authentication")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OpenIDURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	body, err := c.do(req)
	if err != nil {
		return false, err
	}
	return strings.Contains(string(body), "is_valid:true"), nil
}

// ExtractSteamID returns the numeric id at the end of an openid.claimed_id.
func ExtractSteamID(claimedID string) (string, bool) {
	m := claimedIDPattern.FindStringSubmatch(claimedID)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// GetPlayerSummary fetches the public profile of steamID.
func (c *Client) GetPlayerSummary(ctx context.Context, steamID string) (Player, error) {
	if !c.Configured() {
		return Player{}, apperr.ErrConfiguration
	}
	q := url.Values{"key": {c.cfg.APIKey}, "steamids": {steamID}}
	var out struct {
		Response struct {
			Players []Player `json:"players"`
		} `json:"response"`
	}
	if err := c.getJSON(ctx, "/ISteamUser/GetPlayerSummaries/v2/", q, &out); err != nil {
		return Player{}, err
	}
	if len(out.Response.Players) == 0 {
		return Player{}, apperr.Remote("steam", ErrNoPlayer)
	}
	return out.Response.Players[0], nil
}

// GetOwnedGames lists the games owned by steamID including app info and
// played free games.
func (c *Client) GetOwnedGames(ctx context.Context, steamID string) ([]OwnedGame, error) {
	if !c.Configured() {
		return nil, apperr.ErrConfiguration
	}
	q := url.Values{
		"key":                       {c.cfg.APIKey},
		"steamid":                   {steamID},
		"include_appinfo":           {"1"},
		"include_played_free_games": {"1"},
		"format":                    {"json"},
	}
	var out struct {
		Response struct {
			GameCount int         `json:"game_count"`
			Games     []OwnedGame `json:"games"`
		} `json:"response"`
	}
	if err := c.getJSON(ctx, "/IPlayerService/GetOwnedGames/v1/", q, &out); err != nil {
		return nil, err
	}
	return out.Response.Games, nil
}

// HeaderImageURL returns the CDN header image for a Steam app.
func HeaderImageURL(appID int64) string { return fmt.Sprintf(headerImageFormat, appID) }

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBase+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Remote("steam", fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RemoteRequests.WithLabelValues("steam", "error").Inc()
		return nil, apperr.Remote("steam", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.RemoteRequests.WithLabelValues("steam", "error").Inc()
		return nil, apperr.Remote("steam", err)
	}
	if resp.StatusCode/100 != 2 {
		metrics.RemoteRequests.WithLabelValues("steam", "error").Inc()
		return nil, apperr.Remote("steam", fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode))
	}
	metrics.RemoteRequests.WithLabelValues("steam", "ok").Inc()
	return body, nil
}

package tracks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultSpotifyAPI      = "https://api.spotify.com/v1"
	defaultSpotifyTokenURL = "https://accounts.spotify.com/api/token"
	defaultSearchLimit     = 10
)

// SpotifyConfig configures the Spotify search provider.
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
	Limit        int
	Timeout      time.Duration
	Transport    http.RoundTripper
}

// SpotifyProvider searches the Spotify catalogue by genre using the
// client-credentials flow.
type SpotifyProvider struct {
	baseURL string
	limit   int
	timeout time.Duration
	http    *http.Client
}

// NewSpotifyProvider builds a provider whose HTTP client refreshes its access
// token transparently.
func NewSpotifyProvider(cfg SpotifyConfig) (*SpotifyProvider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("tracks: spotify client id and secret required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultSpotifyAPI
	}
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = defaultSpotifyTokenURL
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rt := cfg.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	baseClient := &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(rt)}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, baseClient)
	client := cc.Client(tokenCtx)
	client.Timeout = timeout
	return &SpotifyProvider{baseURL: base, limit: limit, timeout: timeout, http: client}, nil
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			PreviewURL string `json:"preview_url"`
			Artists    []struct {
				Name string `json:"name"`
			} `json:"artists"`
		} `json:"items"`
	} `json:"tracks"`
}

// Search queries tracks tagged with the genre.
func (p *SpotifyProvider) Search(ctx context.Context, genre string) ([]Track, error) {
	genre = strings.TrimSpace(genre)
	if genre == "" {
		return nil, ErrUnknownGenre
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	query := url.Values{}
	query.Set("q", "genre:"+genre)
	query.Set("type", "track")
	query.Set("limit", strconv.Itoa(p.limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/search?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: spotify search: %w", ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tracks: spotify search failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload spotifySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode spotify response: %w", ErrTransport, err)
	}
	out := make([]Track, 0, len(payload.Tracks.Items))
	for _, item := range payload.Tracks.Items {
		title := SanitizeTitle(item.Name)
		if title == "" {
			continue
		}
		artist := ""
		if len(item.Artists) > 0 {
			artist = SanitizeTitle(item.Artists[0].Name)
		}
		out = append(out, Track{
			ID:               item.ID,
			Title:            title,
			PrimaryArtist:    artist,
			PreviewAvailable: strings.TrimSpace(item.PreviewURL) != "",
		})
	}
	return out, nil
}

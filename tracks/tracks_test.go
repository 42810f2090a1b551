package tracks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSanitizeTitle(t *testing.T) {
	require.Equal(t, "Say My Name", SanitizeTitle(`  "Say  My Name"  `))
	require.Equal(t, "fi", SanitizeTitle("\ufb01"))
	require.Equal(t, "", SanitizeTitle(`""`))
}

func TestGenreKeyIsCaseInsensitive(t *testing.T) {
	require.Equal(t, GenreKey("Hip-Hop"), GenreKey(" hip-hop "))
	require.NotEqual(t, GenreKey("Pop"), GenreKey("Rock"))
}

func TestDistinctDropsDuplicateIDs(t *testing.T) {
	out := Distinct([]Track{
		{ID: "a", Title: "A"},
		{ID: "a", Title: "A again"},
		{ID: "", Title: "B"},
		{ID: "", Title: `"B"`},
		{ID: "", Title: ""},
		{ID: "c", Title: "C"},
	})
	require.Equal(t, []Track{{ID: "a", Title: "A"}, {ID: "", Title: "B"}, {ID: "c", Title: "C"}}, out)
}

func TestDistinctCollapsesSameSongAcrossReleases(t *testing.T) {
	out := Distinct([]Track{
		{ID: "album", Title: "Blinding Lights", PrimaryArtist: "The Weeknd"},
		{ID: "single", Title: ` "blinding  lights" `, PrimaryArtist: "the weeknd"},
		{ID: "cover", Title: "Blinding Lights", PrimaryArtist: "Someone Else"},
		{ID: "other", Title: "Save Your Tears", PrimaryArtist: "The Weeknd"},
	})
	ids := make([]string, 0, len(out))
	for _, tr := range out {
		ids = append(ids, tr.ID)
	}
	require.Equal(t, []string{"album", "cover", "other"}, ids)
}

func TestCatalogProvider(t *testing.T) {
	p := NewCatalogProvider(DefaultCatalog())
	got, err := p.Search(context.Background(), "pop")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Pop Song 1", got[0].Title)
	require.Equal(t, "0x14dC79964da2C08b23698B3D3cc7Ca32193d9955", got[0].Creator)

	got[0].Title = "mutated"
	again, err := p.Search(context.Background(), "Pop")
	require.NoError(t, err)
	require.Equal(t, "Pop Song 1", again[0].Title)

	_, err = p.Search(context.Background(), "Jazz")
	require.ErrorIs(t, err, ErrUnknownGenre)
}

func TestSpotifyProviderSearch(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.Equal(t, "genre:Pop", r.URL.Query().Get("q"))
		require.Equal(t, "track", r.URL.Query().Get("type"))
		require.Equal(t, "10", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"tracks": map[string]interface{}{
				"items": []map[string]interface{}{
					{"id": "1", "name": `"Quoted" Hit`, "preview_url": "https://p", "artists": []map[string]string{{"name": "Artist"}}},
					{"id": "2", "name": "Second", "preview_url": nil, "artists": []map[string]string{}},
					{"id": "3", "name": "   "},
				},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p, err := NewSpotifyProvider(SpotifyConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		BaseURL:      srv.URL + "/v1",
		TokenURL:     srv.URL + "/token",
	})
	require.NoError(t, err)

	got, err := p.Search(context.Background(), "Pop")
	require.NoError(t, err)
	require.Equal(t, []Track{
		{ID: "1", Title: "Quoted Hit", PrimaryArtist: "Artist", PreviewAvailable: true},
		{ID: "2", Title: "Second"},
	}, got)

	_, err = p.Search(context.Background(), "Pop")
	require.NoError(t, err)
	require.Equal(t, int32(1), tokenCalls.Load(), "token is cached between searches")
}

func TestSpotifyProviderErrorStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p, err := NewSpotifyProvider(SpotifyConfig{ClientID: "id", ClientSecret: "s", BaseURL: srv.URL + "/v1", TokenURL: srv.URL + "/token"})
	require.NoError(t, err)
	_, err = p.Search(context.Background(), "Rock")
	require.ErrorContains(t, err, "status=429")
	require.NotErrorIs(t, err, ErrTransport)
}

func TestNewSpotifyProviderRequiresCredentials(t *testing.T) {
	_, err := NewSpotifyProvider(SpotifyConfig{ClientID: "id"})
	require.Error(t, err)
}

func TestSpotifyProviderTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p, err := NewSpotifyProvider(SpotifyConfig{
		ClientID:     "id",
		ClientSecret: "s",
		BaseURL:      srv.URL + "/v1",
		TokenURL:     srv.URL + "/token",
		Timeout:      50 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = p.Search(context.Background(), "Pop")
	require.ErrorIs(t, err, ErrTransport)
	require.NotContains(t, Detail(err), ErrTransport.Error())
}

func TestSpotifyProviderUnreadableBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p, err := NewSpotifyProvider(SpotifyConfig{ClientID: "id", ClientSecret: "s", BaseURL: srv.URL + "/v1", TokenURL: srv.URL + "/token"})
	require.NoError(t, err)
	_, err = p.Search(context.Background(), "Pop")
	require.ErrorIs(t, err, ErrTransport)
}

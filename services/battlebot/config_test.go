package battlebot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	t.Setenv("BATTLEBOT_TEST_HMAC", "  s3cret  ")
	path := writeConfig(t, "battlebot.yaml", `
settlement:
  base_url: "http://backend:3000"
auth:
  hmac_secret_env: BATTLEBOT_TEST_HMAC
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":8088" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.Auth.HMACSecret != "s3cret" {
		t.Fatalf("expected secret from env, got %q", cfg.Auth.HMACSecret)
	}
	if len(cfg.Genres) != 4 || cfg.Genres[0].Name != "Pop" || cfg.Genres[0].Amount != "5" {
		t.Fatalf("unexpected default genres: %+v", cfg.Genres)
	}
	if len(cfg.Creators) != 8 {
		t.Fatalf("expected default creator roster, got %d", len(cfg.Creators))
	}
	if cfg.Tracks.Provider != "catalog" || len(cfg.Tracks.Catalog) == 0 {
		t.Fatalf("expected default catalog provider, got %q", cfg.Tracks.Provider)
	}
	if cfg.Settlement.Timeout.Duration != 15*time.Second {
		t.Fatalf("unexpected settlement timeout %s", cfg.Settlement.Timeout.Duration)
	}
	if cfg.Wallets.Driver != "file" || cfg.Wallets.Path != "user_wallets.json" {
		t.Fatalf("unexpected wallets config %+v", cfg.Wallets)
	}
	if cfg.Dedupe.Driver != "memory" || cfg.Dedupe.Window.Duration != 10*time.Minute {
		t.Fatalf("unexpected dedupe config %+v", cfg.Dedupe)
	}
	if cfg.RateLimit.EventsPerMinute != 30 || cfg.RateLimit.Burst != 5 {
		t.Fatalf("unexpected rate limit %+v", cfg.RateLimit)
	}
	if cfg.Journal.Driver != "" {
		t.Fatalf("journal should be disabled by default, got %q", cfg.Journal.Driver)
	}
}

func TestLoadConfigTOML(t *testing.T) {
	path := writeConfig(t, "battlebot.toml", `
listen = "127.0.0.1:9000"

[[genres]]
name = "Jazz"
amount = "7"

[settlement]
base_url = "http://backend:3000"
timeout = "3s"

[wallets]
driver = "BOLT"

[dedupe]
driver = "leveldb"
path = "/var/lib/battlebot/dedupe"
window = "30m"

[auth]
disabled = true
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:9000" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if len(cfg.Genres) != 1 || cfg.Genres[0].Name != "Jazz" {
		t.Fatalf("unexpected genres %+v", cfg.Genres)
	}
	if cfg.Settlement.Timeout.Duration != 3*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.Settlement.Timeout.Duration)
	}
	if cfg.Wallets.Driver != "bolt" || cfg.Wallets.Path != "wallets.db" {
		t.Fatalf("unexpected wallets config %+v", cfg.Wallets)
	}
	if cfg.Dedupe.Window.Duration != 30*time.Minute {
		t.Fatalf("unexpected dedupe window %s", cfg.Dedupe.Window.Duration)
	}
	book, err := cfg.genreBook()
	if err != nil {
		t.Fatalf("genre book: %v", err)
	}
	if genre, err := book.Lookup("jazz"); err != nil || genre.Amount.String() != "7" {
		t.Fatalf("unexpected jazz lookup: %+v %v", genre, err)
	}
}

func TestLoadConfigSecretFromFile(t *testing.T) {
	secretPath := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(secretPath, []byte("backend-token\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	path := writeConfig(t, "battlebot.yaml", `
settlement:
  base_url: "http://backend:3000"
  auth_token_file: "`+secretPath+`"
auth:
  disabled: true
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Settlement.AuthToken != "backend-token" {
		t.Fatalf("unexpected token %q", cfg.Settlement.AuthToken)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing backend",
			yaml: "auth:\n  disabled: true\n",
			want: "settlement base_url must be configured",
		},
		{
			name: "missing auth secret",
			yaml: "settlement:\n  base_url: http://b\n",
			want: "configure auth hmac_secret or set auth.disabled",
		},
		{
			name: "empty secret env",
			yaml: "settlement:\n  base_url: http://b\nauth:\n  hmac_secret_env: BATTLEBOT_TEST_UNSET\n",
			want: "env BATTLEBOT_TEST_UNSET is empty",
		},
		{
			name: "bad genre amount",
			yaml: "settlement:\n  base_url: http://b\nauth:\n  disabled: true\ngenres:\n  - name: Pop\n    amount: \"1.5\"\n",
			want: `genre "Pop" amount`,
		},
		{
			name: "single creator",
			yaml: "settlement:\n  base_url: http://b\nauth:\n  disabled: true\ncreators:\n  - address: \"0x14dC79964da2C08b23698B3D3cc7Ca32193d9955\"\n",
			want: "at least two distinct addresses",
		},
		{
			name: "spotify without credentials",
			yaml: "settlement:\n  base_url: http://b\nauth:\n  disabled: true\ntracks:\n  provider: Spotify\n",
			want: "spotify client_id and client_secret must be configured",
		},
		{
			name: "leveldb without path",
			yaml: "settlement:\n  base_url: http://b\nauth:\n  disabled: true\ndedupe:\n  driver: leveldb\n",
			want: "dedupe path must be configured for leveldb",
		},
		{
			name: "journal without dsn",
			yaml: "settlement:\n  base_url: http://b\nauth:\n  disabled: true\njournal:\n  driver: sqlite\n",
			want: "journal dsn must be configured",
		},
		{
			name: "unknown wallets driver",
			yaml: "settlement:\n  base_url: http://b\nauth:\n  disabled: true\nwallets:\n  driver: redis\n",
			want: `unknown wallets driver "redis"`,
		},
		{
			name: "bad duration",
			yaml: "settlement:\n  base_url: http://b\n  timeout: soon\n",
			want: `parse duration "soon"`,
		},
	}
	t.Setenv("BATTLEBOT_TEST_UNSET", "")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, "battlebot.yaml", tc.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("unexpected error: got %q, want substring %q", err.Error(), tc.want)
			}
		})
	}
}

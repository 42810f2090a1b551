package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"musicbattle/cmd/internal/passphrase"
	"musicbattle/journal"
	"musicbattle/services/battlebot"
)

const (
	tokenCommand   = "token"
	exportCommand  = "export"
	consoleCommand = "console"

	defaultConfig    = "battlebot.yaml"
	defaultSecretEnv = "BATTLEBOT_HMAC_SECRET"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case tokenCommand:
		err = runToken(os.Args[2:], os.Stdout)
	case exportCommand:
		err = runExport(os.Args[2:], os.Stdout)
	case consoleCommand:
		err = runConsole(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: battlectl <command> [flags]

Commands:
  %-8s mint a bearer token for a chat adapter
  %-8s write journal entries to a parquet file
  %-8s run the bot interactively against the configured backend
`, tokenCommand, exportCommand, consoleCommand)
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	configPath := fs.String("config", "", "Read secret, issuer and audience from this battlebot config")
	secretEnv := fs.String("secret-env", defaultSecretEnv, "Environment variable containing the HMAC secret")
	subject := fs.String("subject", "", "Adapter name recorded as the token subject")
	scopes := fs.String("scopes", battlebot.ScopeEvents+","+battlebot.ScopeRelay, "Comma separated scopes to grant")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	issuer := fs.String("issuer", "", "Issuer claim (overrides config)")
	audience := fs.String("audience", "", "Audience claim (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*subject) == "" {
		return fmt.Errorf("-subject is required")
	}

	req := battlebot.TokenRequest{
		Subject: strings.TrimSpace(*subject),
		Scopes:  splitList(*scopes),
		TTL:     *ttl,
	}
	var secret string
	if *configPath != "" {
		cfg, err := battlebot.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		if cfg.Auth.Disabled {
			return fmt.Errorf("config %s has auth disabled", *configPath)
		}
		secret = cfg.Auth.HMACSecret
		req.Issuer = cfg.Auth.Issuer
		req.Audience = cfg.Auth.Audience
	} else {
		value, err := passphrase.NewSource(*secretEnv, "battlebot HMAC secret").Get()
		if err != nil {
			return err
		}
		secret = value
	}
	if *issuer != "" {
		req.Issuer = *issuer
	}
	if *audience != "" {
		req.Audience = *audience
	}

	token, err := battlebot.MintToken(secret, req, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func runExport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(exportCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to battlebot configuration")
	output := fs.String("out", "journal.parquet", "Output parquet file")
	since := fs.String("since", "", "Only entries at or after this RFC3339 time")
	until := fs.String("until", "", "Only entries before this RFC3339 time")
	battleID := fs.String("battle", "", "Only entries for this battle id")
	kind := fs.String("kind", "", "Only entries of this kind (e.g. vote_cast)")
	limit := fs.Int("limit", 0, "Maximum number of entries (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := battlebot.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Journal.Driver == "" {
		return fmt.Errorf("config %s has no journal configured", *configPath)
	}
	filter := journal.Filter{BattleID: *battleID, Kind: *kind, Limit: *limit}
	if filter.Since, err = parseTime(*since); err != nil {
		return fmt.Errorf("-since: %w", err)
	}
	if filter.Until, err = parseTime(*until); err != nil {
		return fmt.Errorf("-until: %w", err)
	}

	j, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		return err
	}
	defer j.Close()
	n, err := j.ExportParquet(context.Background(), *output, filter)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "exported %d entries to %s\n", n, *output)
	return nil
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

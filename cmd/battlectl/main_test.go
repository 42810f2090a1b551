package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestRunTokenFromEnvironment(t *testing.T) {
	t.Setenv("BATTLECTL_TEST_HMAC", "s3cret")
	var out bytes.Buffer
	err := runToken([]string{"-secret-env", "BATTLECTL_TEST_HMAC", "-subject", "telegram", "-scopes", "events", "-ttl", "1h"}, &out)
	if err != nil {
		t.Fatalf("run token: %v", err)
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(strings.TrimSpace(out.String()), claims, func(*jwt.Token) (interface{}, error) {
		return []byte("s3cret"), nil
	})
	if err != nil {
		t.Fatalf("parse minted token: %v", err)
	}
	if claims["sub"] != "telegram" || claims["scope"] != "events" {
		t.Fatalf("unexpected claims: %v", claims)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || time.Until(exp.Time) > time.Hour {
		t.Fatalf("unexpected expiry %v (%v)", exp, err)
	}
}

func TestRunTokenFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battlebot.yaml")
	contents := "settlement:\n  base_url: http://backend\nauth:\n  hmac_secret: from-config\n  issuer: battlectl\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	var out bytes.Buffer
	if err := runToken([]string{"-config", path, "-subject", "web"}, &out); err != nil {
		t.Fatalf("run token: %v", err)
	}
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(strings.TrimSpace(out.String()), claims, func(*jwt.Token) (interface{}, error) {
		return []byte("from-config"), nil
	}); err != nil {
		t.Fatalf("parse minted token: %v", err)
	}
	if iss, _ := claims.GetIssuer(); iss != "battlectl" {
		t.Fatalf("unexpected issuer %q", iss)
	}
}

func TestRunTokenRequiresSubject(t *testing.T) {
	if err := runToken([]string{"-secret-env", "BATTLECTL_TEST_HMAC"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error without subject")
	}
}

func TestRunExportWritesParquet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "battlebot.yaml")
	contents := "settlement:\n  base_url: http://backend\nauth:\n  disabled: true\njournal:\n  driver: sqlite\n  dsn: " + filepath.Join(dir, "journal.db") + "\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	output := filepath.Join(dir, "out", "journal.parquet")
	var out bytes.Buffer
	if err := runExport([]string{"-config", path, "-out", output, "-since", "2024-01-01T00:00:00Z"}, &out); err != nil {
		t.Fatalf("run export: %v", err)
	}
	if !strings.Contains(out.String(), "exported 0 entries") {
		t.Fatalf("unexpected output %q", out.String())
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("expected parquet file: %v", err)
	}
}

func TestRunExportRejectsBadTime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "battlebot.yaml")
	contents := "settlement:\n  base_url: http://backend\nauth:\n  disabled: true\njournal:\n  driver: sqlite\n  dsn: " + filepath.Join(dir, "journal.db") + "\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := runExport([]string{"-config", path, "-since", "yesterday"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for malformed -since")
	}
}

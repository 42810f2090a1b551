package passphrase

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSourcePrefersEnvironment(t *testing.T) {
	t.Setenv("BATTLECTL_TEST_SECRET", "  hunter2 ")
	src := NewSource("BATTLECTL_TEST_SECRET", "hmac secret")
	got, err := src.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "hunter2" {
		t.Fatalf("unexpected secret %q", got)
	}
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	t.Setenv("BATTLECTL_TEST_SECRET", "   ")
	if _, err := NewSource("BATTLECTL_TEST_SECRET", "hmac secret").Get(); err == nil {
		t.Fatalf("expected error for blank env value")
	}
}

func TestSourceWithoutTerminal(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "stdin"))
	if err != nil {
		t.Fatalf("create stdin: %v", err)
	}
	defer f.Close()

	src := NewSource("BATTLECTL_TEST_UNSET_SECRET", "hmac secret")
	src.stdin = f
	_, err = src.Get()
	if err == nil || !strings.Contains(err.Error(), "set BATTLECTL_TEST_UNSET_SECRET") {
		t.Fatalf("unexpected error: %v", err)
	}
}

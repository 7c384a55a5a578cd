package common

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("LR_DOTENV_NEW=from-file\nLR_DOTENV_SET=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LR_DOTENV_NEW", "")
	os.Unsetenv("LR_DOTENV_NEW")
	t.Setenv("LR_DOTENV_SET", "from-env")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() err = %v", err)
	}
	if got := os.Getenv("LR_DOTENV_NEW"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := os.Getenv("LR_DOTENV_SET"); got != "from-env" {
		t.Fatalf("environment must win, got %q", got)
	}
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored, got %v", err)
	}
}

func TestParseBool(t *testing.T) {
	cases := map[string]bool{"1": true, "TRUE": true, "yes": true, "0": false, "false": false, "No": false}
	for in, want := range cases {
		if got := ParseBool(in, !want); got != want {
			t.Fatalf("ParseBool(%q) = %v, want %v", in, got, want)
		}
	}
	if got := ParseBool("maybe", true); !got {
		t.Fatal("expected fallback for unknown value")
	}
}

func TestParseDurationFallback(t *testing.T) {
	if got := ParseDuration("2s", time.Minute); got != 2*time.Second {
		t.Fatalf("expected 2s, got %s", got)
	}
	if got := ParseDuration("soon", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %s", got)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" a, ,b ,, c")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected split: %q", got)
	}
	if SplitList("  ") != nil {
		t.Fatal("expected nil for blank list")
	}
}

func TestNewLoggerLevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "worker", "warn", "json")
	log.Info().Msg("dropped")
	log.Warn().Str("host", "example.com").Msg("kept")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatalf("invalid json log line: %v", err)
	}
	if entry["service"] != "worker" || entry["host"] != "example.com" || entry["message"] != "kept" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewLoggerBadLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "api", "loud", "json")
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")
	if bytes.Contains(buf.Bytes(), []byte("hidden")) || !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

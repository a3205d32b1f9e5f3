package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	t.Setenv("BF_MARKET_ID", "market_1")
	cfg, err := Load(writeEnv(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" || !cfg.Server.EnableAdminHTTP || cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Fatalf("server: %+v", cfg.Server)
	}
	if got := cfg.Market.Tuning(); got != filepath.Join("configs", "tuning.yaml") {
		t.Fatalf("tuning path: %s", got)
	}
	if got := cfg.Storage.PagesPath("m"); got != filepath.Join("data", "markets", "m", "pages.sqlite") {
		t.Fatalf("pages path: %s", got)
	}
}

func TestEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	t.Setenv("BF_ADDR", ":9000")
	path := writeEnv(t, "BF_ADDR=:7000\nBF_MARKET_ID=bazaar\nBF_PAGES_DB=:memory:\n")
	t.Cleanup(func() {
		os.Unsetenv("BF_MARKET_ID")
		os.Unsetenv("BF_PAGES_DB")
	})
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("addr: %s", cfg.Server.Addr)
	}
	if cfg.Market.ID != "bazaar" || cfg.Storage.PagesPath("bazaar") != ":memory:" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
}

func TestMissingEnvFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.env")); err == nil {
		t.Fatalf("expected error")
	}
}

func writeEnv(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadYAMLNormalizesExtensions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `db_driver: SQLite
db_path: ` + filepath.Join(dir, "t.db") + `
session_ttl: 2h
attachments:
  storage_dir: ` + filepath.Join(dir, "uploads") + `
  allowed_extensions: [".PDF", "txt", "pdf", ""]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("expected lowercased driver, got %q", cfg.DBDriver)
	}
	if len(cfg.Attachments.AllowedExtensions) != 2 || cfg.Attachments.AllowedExtensions[0] != "pdf" || cfg.Attachments.AllowedExtensions[1] != "txt" {
		t.Fatalf("unexpected extensions: %v", cfg.Attachments.AllowedExtensions)
	}
	if cfg.EffectiveSessionTTL() != 2*time.Hour {
		t.Fatalf("unexpected ttl %s", cfg.EffectiveSessionTTL())
	}
	if cfg.EffectiveMaxUploadBytes() != 16<<20 {
		t.Fatalf("expected default upload limit, got %d", cfg.EffectiveMaxUploadBytes())
	}
}

func TestLoadRejectsPostgresWithoutURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("db_driver: postgres\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for postgres without db_url")
	}
}

func TestEffectiveSessionTTLIsCapped(t *testing.T) {
	cfg := &AppConfig{SessionTTL: 30 * 24 * time.Hour}
	if got := cfg.EffectiveSessionTTL(); got != maxUserSessionTTL {
		t.Fatalf("expected cap %s, got %s", maxUserSessionTTL, got)
	}
	var nilCfg *AppConfig
	if nilCfg.EffectiveSessionTTL() != 12*time.Hour {
		t.Fatalf("nil config should use default ttl")
	}
}

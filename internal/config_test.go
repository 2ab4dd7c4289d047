package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/notegraph/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Graph.Backend != BackendSQLite {
		t.Errorf("backend = %q, want sqlite", cfg.Graph.Backend)
	}
	if !cfg.Sync.ReconcileOnStart || !cfg.Sync.ReconcileOnOutOfSync {
		t.Error("reconcile flags should default to true")
	}
}

func TestGraphConfig_UnknownBackend(t *testing.T) {
	cfg := GraphConfig{Backend: "postgres"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown backend should fail validation")
	}
}

func TestGraphConfig_Neo4jNeedsURI(t *testing.T) {
	cfg := GraphConfig{Backend: BackendNeo4j}
	if err := cfg.Validate(); err == nil {
		t.Fatal("neo4j without uri should fail validation")
	}
	cfg.Neo4j = Neo4jConfig{URI: "bolt://localhost:7687", User: "neo4j"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("neo4j with uri and user should pass: %v", err)
	}
}

func TestVaultConfig_Extension(t *testing.T) {
	cfg := VaultConfig{Path: "./vault"}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Extension != ".md" {
		t.Errorf("extension = %q, want .md", cfg.Extension)
	}
	cfg.Extension = "md"
	if err := cfg.Validate(); err == nil {
		t.Fatal("extension without dot should fail")
	}
}

func TestVectorRequiresEmbedding(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Vector.Enabled = true
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "embedding is disabled") {
		t.Fatalf("vector without embedding: %v", err)
	}
	cfg.Embedding.Enabled = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("vector with embedding should pass: %v", err)
	}
}

func TestVectorConfig_BadSimilarity(t *testing.T) {
	cfg := VectorConfig{Enabled: true, Similarity: "dot"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown similarity should fail")
	}
}

func TestSyncConfig_NegativeDuration(t *testing.T) {
	cfg := SyncConfig{Debounce: -time.Millisecond}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative debounce should fail")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("NOTEGRAPH_TEST_TOKEN", "s3cret")
	data := `app:
  log_level: debug
  http:
    port: 9090
vault:
  path: /tmp/vault
sync:
  debounce: 25ms
  move_window: 250ms
auth:
  mode: token
  token: ${NOTEGRAPH_TEST_TOKEN}
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v", cfg.App.LogLevel)
	}
	if cfg.Sync.Debounce != 25*time.Millisecond || cfg.Sync.MoveWindow != 250*time.Millisecond {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Sync.EvictAfter != time.Second {
		t.Errorf("evict_after default lost: %v", cfg.Sync.EvictAfter)
	}
	if cfg.Auth.Token != "s3cret" {
		t.Errorf("token = %q, want env expansion", cfg.Auth.Token)
	}
}

package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notegraph/internal/debounce"
	"github.com/starford/notegraph/internal/graphstore"
	"github.com/starford/notegraph/internal/parser"
	"github.com/starford/notegraph/internal/storage"
	"github.com/starford/notegraph/internal/watcher"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Graph backends.
const (
	BackendSQLite = "sqlite"
	BackendNeo4j  = "neo4j"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Vault     VaultConfig       `yaml:"vault"`
	Graph     GraphConfig       `yaml:"graph"`
	Sync      SyncConfig        `yaml:"sync"`
	Embedding EmbeddingConfig   `yaml:"embedding"`
	Vector    VectorConfig      `yaml:"vector"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Graph.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.Embedding.Validate(); err != nil {
		return err
	}
	if err := c.Vector.Validate(); err != nil {
		return err
	}
	if c.Vector.Enabled && !c.Embedding.Enabled {
		return fmt.Errorf("vector: enabled but embedding is disabled")
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the vault directory and the document extension.
type VaultConfig struct {
	Path      string `yaml:"path"`
	Extension string `yaml:"extension"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	if c.Extension == "" {
		c.Extension = storage.DefaultExtension
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Extension, validation.By(func(any) error {
			if !strings.HasPrefix(c.Extension, ".") {
				return fmt.Errorf("must start with a dot")
			}
			return nil
		})),
	)
}

// GraphConfig selects and configures the graph store.
type GraphConfig struct {
	Backend string       `yaml:"backend"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
	Neo4j   Neo4jConfig  `yaml:"neo4j"`
}

// Validate validates the graph configuration. Only the selected backend's
// settings are checked.
func (c *GraphConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.In(BackendSQLite, BackendNeo4j)),
	); err != nil {
		return err
	}
	if c.Backend == BackendNeo4j {
		return c.Neo4j.Validate()
	}
	return c.SQLite.Validate()
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// Neo4jConfig holds the Neo4j connection settings.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// Validate validates the Neo4j configuration.
func (c *Neo4jConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URI, validation.Required),
		validation.Field(&c.User, validation.Required),
	)
}

// SyncConfig tunes the watcher and the sync engine.
type SyncConfig struct {
	Debounce             time.Duration `yaml:"debounce"`
	EvictAfter           time.Duration `yaml:"evict_after"`
	MoveWindow           time.Duration `yaml:"move_window"`
	ReconcileOnStart     bool          `yaml:"reconcile_on_start"`
	ReconcileOnOutOfSync bool          `yaml:"reconcile_on_out_of_sync"`
	MaxChunkSize         int           `yaml:"max_chunk_size"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.EvictAfter, validation.Min(time.Duration(0))),
		validation.Field(&c.MoveWindow, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxChunkSize, validation.Min(0)),
	)
}

// EmbeddingConfig configures the OpenAI-compatible embeddings client.
type EmbeddingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

// Validate validates the embedding configuration.
func (c *EmbeddingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Dimension, validation.Required, validation.Min(1)),
	)
}

// VectorConfig configures the vector indexes.
type VectorConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Similarity     string `yaml:"similarity"`
	M              int    `yaml:"m"`
	EfConstruction int    `yaml:"ef_construction"`
}

// Validate validates the vector configuration.
func (c *VectorConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Similarity == "" {
		c.Similarity = graphstore.SimilarityCosine
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Similarity, validation.In(graphstore.SimilarityCosine, graphstore.SimilarityEuclidean)),
		validation.Field(&c.M, validation.Min(0)),
		validation.Field(&c.EfConstruction, validation.Min(0)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:      "./vault",
			Extension: storage.DefaultExtension,
		},
		Graph: GraphConfig{
			Backend: BackendSQLite,
			SQLite: SQLiteConfig{
				Path: "./notegraph.db",
			},
			Neo4j: Neo4jConfig{
				Database: "neo4j",
			},
		},
		Sync: SyncConfig{
			Debounce:             debounce.DefaultThreshold,
			EvictAfter:           debounce.DefaultEvictAfter,
			MoveWindow:           watcher.DefaultMoveWindow,
			ReconcileOnStart:     true,
			ReconcileOnOutOfSync: true,
			MaxChunkSize:         parser.DefaultMaxChunkSize,
		},
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-3-small",
			Dimension: 1536,
		},
		Vector: VectorConfig{
			Similarity:     graphstore.SimilarityCosine,
			M:              16,
			EfConstruction: 100,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

// Package config loads the factgraph configuration.
//
// Sources are applied in order: built-in defaults, an optional YAML file,
// an optional .env file and finally FACTGRAPH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/duynguyendang/factgraph/internal/manager"
	"github.com/duynguyendang/factgraph/pkg/graph"
	"github.com/duynguyendang/factgraph/pkg/service"
	"github.com/duynguyendang/factgraph/pkg/store"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "FACTGRAPH_"

type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Server     ServerConfig     `yaml:"server"`
	Graph      GraphConfig      `yaml:"graph"`
	Traversal  TraversalConfig  `yaml:"traversal"`
	Retraction RetractionConfig `yaml:"retraction"`
	Security   SecurityConfig   `yaml:"security"`
	Log        LogConfig        `yaml:"log"`
}

type StoreConfig struct {
	DataDir      string `yaml:"dataDir"`
	InMemory     bool   `yaml:"inMemory"`
	ReadOnly     bool   `yaml:"readOnly"`
	SyncWrites   bool   `yaml:"syncWrites"`
	Profile      string `yaml:"profile"`
	BlockCacheMB int64  `yaml:"blockCacheMB"`
	IndexCacheMB int64  `yaml:"indexCacheMB"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type GraphConfig struct {
	VertexCacheSize int           `yaml:"vertexCacheSize"`
	EdgeCacheSize   int           `yaml:"edgeCacheSize"`
	MaxViewers      int           `yaml:"maxViewers"`
	ViewerTTL       time.Duration `yaml:"viewerTTL"`
}

type TraversalConfig struct {
	MaxSteps    int `yaml:"maxSteps"`
	MaxResults  int `yaml:"maxResults"`
	Concurrency int `yaml:"concurrency"`
}

type RetractionConfig struct {
	// FactType is the name of the FactType whose Facts are retractions.
	FactType string `yaml:"factType"`
}

type SecurityConfig struct {
	// AccessControlFile is a YAML file listing subjects and their grants.
	AccessControlFile string `yaml:"accessControlFile"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			DataDir:      "./data",
			Profile:      store.ProfileServing,
			BlockCacheMB: 256,
			IndexCacheMB: 64,
		},
		Server: ServerConfig{Addr: ":8080"},
		Graph: GraphConfig{
			VertexCacheSize: graph.DefaultVertexCacheSize,
			EdgeCacheSize:   graph.DefaultEdgeCacheSize,
			MaxViewers:      manager.DefaultMaxViewers,
			ViewerTTL:       manager.DefaultViewerTTL,
		},
		Traversal: TraversalConfig{
			MaxSteps:    service.DefaultMaxSteps,
			MaxResults:  service.DefaultMaxResults,
			Concurrency: service.DefaultConcurrency,
		},
		Retraction: RetractionConfig{FactType: "Retraction"},
		Security:   SecurityConfig{AccessControlFile: "access.yaml"},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. path names an optional YAML file; envFile
// an optional dotenv file, ".env" when empty. Missing dotenv files are
// ignored, a missing YAML file is not.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	str("DATA_DIR", &c.Store.DataDir)
	boolean("IN_MEMORY", &c.Store.InMemory)
	boolean("READ_ONLY", &c.Store.ReadOnly)
	boolean("SYNC_WRITES", &c.Store.SyncWrites)
	str("STORE_PROFILE", &c.Store.Profile)
	str("LISTEN_ADDR", &c.Server.Addr)
	integer("VERTEX_CACHE_SIZE", &c.Graph.VertexCacheSize)
	integer("EDGE_CACHE_SIZE", &c.Graph.EdgeCacheSize)
	integer("MAX_VIEWERS", &c.Graph.MaxViewers)
	integer("MAX_STEPS", &c.Traversal.MaxSteps)
	integer("MAX_RESULTS", &c.Traversal.MaxResults)
	str("RETRACTION_TYPE", &c.Retraction.FactType)
	str("ACCESS_CONTROL_FILE", &c.Security.AccessControlFile)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := os.LookupEnv(envPrefix + "VIEWER_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sVIEWER_TTL: %w", envPrefix, err))
		} else {
			c.Graph.ViewerTTL = d
		}
	}

	// PORT is honoured for container platforms.
	if port := os.Getenv("PORT"); port != "" && os.Getenv(envPrefix+"LISTEN_ADDR") == "" {
		c.Server.Addr = ":" + port
	}

	return errors.Join(errs...)
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := c.StoreConfig().Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if c.Graph.VertexCacheSize <= 0 || c.Graph.EdgeCacheSize <= 0 {
		return fmt.Errorf("graph cache sizes must be positive")
	}
	if c.Graph.MaxViewers <= 0 {
		return fmt.Errorf("graph.maxViewers must be positive, got %d", c.Graph.MaxViewers)
	}
	if c.Graph.ViewerTTL <= 0 {
		return fmt.Errorf("graph.viewerTTL must be positive, got %s", c.Graph.ViewerTTL)
	}
	if c.Traversal.MaxSteps <= 0 || c.Traversal.MaxResults <= 0 || c.Traversal.Concurrency <= 0 {
		return fmt.Errorf("traversal limits must be positive")
	}
	if strings.TrimSpace(c.Retraction.FactType) == "" {
		return fmt.Errorf("retraction.factType must be set")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// StoreConfig converts the store section into a store.Config.
func (c *Config) StoreConfig() *store.Config {
	sc := store.DefaultConfig(c.Store.DataDir)
	sc.InMemory = c.Store.InMemory
	sc.ReadOnly = c.Store.ReadOnly
	sc.SyncWrites = c.Store.SyncWrites
	sc.Profile = c.Store.Profile
	sc.BlockCacheSize = c.Store.BlockCacheMB << 20
	sc.IndexCacheSize = c.Store.IndexCacheMB << 20
	return sc
}

// ManagerOptions converts the graph section into manager options.
func (c *Config) ManagerOptions(logger *slog.Logger) manager.Options {
	return manager.Options{
		MaxViewers: c.Graph.MaxViewers,
		TTL:        c.Graph.ViewerTTL,
		Factory: graph.FactoryConfig{
			VertexCacheSize: c.Graph.VertexCacheSize,
			EdgeCacheSize:   c.Graph.EdgeCacheSize,
		},
		Logger: logger,
	}
}

// NewLogger builds the slog logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

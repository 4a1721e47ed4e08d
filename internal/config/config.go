// Package config loads rowgate's YAML configuration file.
//
// Loading happens in three steps: the raw YAML is validated against the
// embedded CUE schema, decoded over Default() with unknown keys rejected,
// and finally ${VAR} references in secrets are expanded from the
// environment. Command-line overrides are applied with Apply, then
// Validate checks the result.
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/rowgate/internal/database"
	"github.com/koustreak/rowgate/internal/errs"
	"github.com/koustreak/rowgate/internal/filestore"
	"github.com/koustreak/rowgate/internal/logger"
	"github.com/koustreak/rowgate/internal/server"
	"github.com/koustreak/rowgate/internal/snapshot"
)

type Config struct {
	Database DatabaseSection  `yaml:"database"`
	Server   ServerSection    `yaml:"server"`
	Log      LogSection       `yaml:"log"`
	Snapshot *SnapshotSection `yaml:"snapshot"`
}

type DatabaseSection struct {
	Driver          string   `yaml:"driver"`
	DSN             string   `yaml:"dsn"`
	Schema          string   `yaml:"schema"`
	MaxConns        int32    `yaml:"max_conns"`
	MinConns        int32    `yaml:"min_conns"`
	MaxConnLifetime Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime Duration `yaml:"max_conn_idle_time"`
	ConnectTimeout  Duration `yaml:"connect_timeout"`
	QueryTimeout    Duration `yaml:"query_timeout"`
	RetryReads      bool     `yaml:"retry_reads"`
}

type ServerSection struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes"`
}

type LogSection struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SnapshotSection configures the object store that archives schema
// snapshots. Snapshots are disabled when the section is absent.
type SnapshotSection struct {
	Endpoint  string   `yaml:"endpoint"`
	AccessKey string   `yaml:"access_key"`
	SecretKey string   `yaml:"secret_key"`
	UseSSL    bool     `yaml:"use_ssl"`
	Region    string   `yaml:"region"`
	Bucket    string   `yaml:"bucket"`
	Prefix    string   `yaml:"prefix"`
	URLExpiry Duration `yaml:"url_expiry"`
}

// Duration is a time.Duration written as "30s" or "5m" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidValue, "invalid duration "+s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns the settings used for anything the file leaves out.
func Default() *Config {
	db := database.DefaultConfig("")
	srv := server.DefaultConfig()
	return &Config{
		Database: DatabaseSection{
			Driver:          string(db.Driver),
			MaxConns:        db.MaxConns,
			MinConns:        db.MinConns,
			MaxConnLifetime: Duration(db.MaxConnLifetime),
			MaxConnIdleTime: Duration(db.MaxConnIdleTime),
			ConnectTimeout:  Duration(db.ConnectTimeout),
			QueryTimeout:    Duration(db.QueryTimeout),
			RetryReads:      db.RetryReads,
		},
		Server: ServerSection{
			Addr:            srv.Addr,
			ReadTimeout:     Duration(srv.ReadTimeout),
			WriteTimeout:    Duration(srv.WriteTimeout),
			IdleTimeout:     Duration(srv.IdleTimeout),
			ShutdownTimeout: Duration(srv.ShutdownTimeout),
			MaxBodyBytes:    srv.MaxBodyBytes,
		},
		Log: LogSection{Level: "info", Format: "json"},
	}
}

// LoadFile reads the config at path. An empty path yields Default().
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindNotFound, "cannot open config file", err)
	}
	defer f.Close()
	return Load(filepath.Base(path), f)
}

// Load validates and decodes the YAML read from r. name is used in
// validation messages.
func Load(name string, r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindUnknown, "cannot read config", err)
	}
	if err := cueValidate(name, raw); err != nil {
		return nil, err
	}

	cfg := Default()
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidValue, "cannot decode "+name, err)
		}
	}
	expandEnv(cfg)
	return cfg, nil
}

// expandEnv resolves ${VAR} references in fields that usually carry secrets.
func expandEnv(cfg *Config) {
	cfg.Database.DSN = os.ExpandEnv(cfg.Database.DSN)
	if s := cfg.Snapshot; s != nil {
		s.Endpoint = os.ExpandEnv(s.Endpoint)
		s.AccessKey = os.ExpandEnv(s.AccessKey)
		s.SecretKey = os.ExpandEnv(s.SecretKey)
	}
}

// Overrides are command-line values that take precedence over the file.
// Empty fields leave the file value alone.
type Overrides struct {
	Driver   string
	DSN      string
	Addr     string
	LogLevel string
}

func (c *Config) Apply(o Overrides) {
	if o.Driver != "" {
		c.Database.Driver = o.Driver
	}
	if o.DSN != "" {
		c.Database.DSN = os.ExpandEnv(o.DSN)
	}
	if o.Addr != "" {
		c.Server.Addr = o.Addr
	}
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
}

// Validate checks the settings that overrides can change or that the
// schema cannot express.
func (c *Config) Validate() error {
	switch database.Driver(c.Database.Driver) {
	case database.DriverPostgres, database.DriverMySQL, database.DriverSQLite, database.DriverSQLServer:
	default:
		return errs.Newf(errs.ErrKindInvalidValue, "unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errs.New(errs.ErrKindInvalidValue, "database dsn is required")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return errs.Newf(errs.ErrKindInvalidValue, "min_conns (%d) exceeds max_conns (%d)", c.Database.MinConns, c.Database.MaxConns)
	}
	if c.Snapshot != nil {
		return c.StoreConfig().Validate()
	}
	return nil
}

// --- component configs ---

func (c *Config) DatabaseConfig() *database.Config {
	d := c.Database
	return &database.Config{
		Driver:          database.Driver(d.Driver),
		DSN:             d.DSN,
		Schema:          d.Schema,
		MaxConns:        d.MaxConns,
		MinConns:        d.MinConns,
		MaxConnLifetime: time.Duration(d.MaxConnLifetime),
		MaxConnIdleTime: time.Duration(d.MaxConnIdleTime),
		ConnectTimeout:  time.Duration(d.ConnectTimeout),
		QueryTimeout:    time.Duration(d.QueryTimeout),
		RetryReads:      d.RetryReads,
	}
}

func (c *Config) ServerConfig() server.Config {
	s := c.Server
	return server.Config{
		Addr:            s.Addr,
		ReadTimeout:     time.Duration(s.ReadTimeout),
		WriteTimeout:    time.Duration(s.WriteTimeout),
		IdleTimeout:     time.Duration(s.IdleTimeout),
		ShutdownTimeout: time.Duration(s.ShutdownTimeout),
		MaxBodyBytes:    s.MaxBodyBytes,
	}
}

func (c *Config) LoggerConfig(out io.Writer) *logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = c.Log.Format
	if out != nil {
		cfg.Output = out
	}
	return cfg
}

// StoreConfig returns nil when snapshots are not configured.
func (c *Config) StoreConfig() *filestore.Config {
	s := c.Snapshot
	if s == nil {
		return nil
	}
	fc := filestore.DefaultConfig(s.Endpoint, s.AccessKey, s.SecretKey)
	fc.UseSSL = s.UseSSL
	fc.Region = s.Region
	if s.Bucket != "" {
		fc.Bucket = s.Bucket
	}
	return fc
}

func (c *Config) SnapshotConfig() snapshot.Config {
	cfg := snapshot.DefaultConfig(filestore.DefaultConfig("", "", "").Bucket)
	if s := c.Snapshot; s != nil {
		if s.Bucket != "" {
			cfg.Bucket = s.Bucket
		}
		if s.Prefix != "" {
			cfg.Prefix = s.Prefix
		}
		if s.URLExpiry > 0 {
			cfg.URLExpiry = time.Duration(s.URLExpiry)
		}
	}
	return cfg
}

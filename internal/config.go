package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/fiche/internal/models"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Session backends.
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Files    FilesConfig       `yaml:"files"`
	Auth     AuthConfig        `yaml:"auth"`
	Session  SessionConfig     `yaml:"session"`
	Registry RegistryConfig    `yaml:"registry"`
	Seed     SeedConfig        `yaml:"seed"`
	MCP      MCPConfig         `yaml:"mcp"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.SQLite, &c.Files, &c.Auth, &c.Session, &c.Registry, &c.Seed, &c.MCP,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
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

// FilesConfig holds uploaded file storage configuration. URLPrefix is the
// public path files are served under and must match the /api/files route.
type FilesConfig struct {
	Root           string `yaml:"root"`
	URLPrefix      string `yaml:"url_prefix"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// Validate validates the files configuration.
func (c *FilesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.URLPrefix, validation.Required),
		validation.Field(&c.MaxUploadBytes, validation.Min(int64(1))),
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

// SessionConfig selects where form session state lives.
type SessionConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
}

// Validate validates the session configuration.
func (c *SessionConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(SessionBackendMemory, SessionBackendRedis)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Minute)),
	); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if c.Backend == SessionBackendRedis {
		return c.Redis.Validate()
	}
	return nil
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Validate validates the Redis configuration.
func (c *RedisConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.DB, validation.Min(0)),
	)
}

// RegistryConfig configures the business registry used for company lookups.
// URL contains an {id} placeholder; Paths are JMESPath expressions.
type RegistryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	Paths         RegistryPaths `yaml:"paths"`
}

// RegistryPaths locate company attributes in the registry reply.
type RegistryPaths struct {
	Name       string `yaml:"name"`
	Address    string `yaml:"address"`
	City       string `yaml:"city"`
	PostalCode string `yaml:"postal_code"`
	TaxID      string `yaml:"tax_id"`
}

// Validate validates the registry configuration.
func (c *RegistryConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required),
		validation.Field(&c.Timeout, validation.Required),
		validation.Field(&c.RatePerSecond, validation.Required, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.Required, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	return validation.ValidateStruct(&c.Paths,
		validation.Field(&c.Paths.Name, validation.Required),
	)
}

// SeedConfig holds the template definition directory.
type SeedConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// Validate validates the seed configuration.
func (c *SeedConfig) Validate() error {
	if c.Watch && c.Dir == "" {
		return fmt.Errorf("seed: watch is enabled but dir is empty")
	}
	return nil
}

// MCPConfig is the identity MCP tool calls run as.
type MCPConfig struct {
	UserID    string `yaml:"user_id"`
	CompanyID string `yaml:"company_id"`
	Role      string `yaml:"role"`
}

// Validate validates the MCP configuration.
func (c *MCPConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.UserID, validation.Required),
		validation.Field(&c.Role, validation.Required,
			validation.In(models.RoleUser, models.RoleAdmin, models.RoleSuperAdmin)),
	); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	if c.Role != models.RoleSuperAdmin && c.CompanyID == "" {
		return fmt.Errorf("mcp: role %q needs a company_id", c.Role)
	}
	return nil
}

// Identity returns the identity MCP tool calls run as.
func (c *MCPConfig) Identity() models.Identity {
	return models.Identity{UserID: c.UserID, CompanyID: c.CompanyID, Role: c.Role}
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
		SQLite: SQLiteConfig{
			Path: "./fiche.db",
		},
		Files: FilesConfig{
			Root:           "./files",
			URLPrefix:      "/api/files/",
			MaxUploadBytes: 50 << 20,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Session: SessionConfig{
			Backend: SessionBackendMemory,
			TTL:     12 * time.Hour,
		},
		Registry: RegistryConfig{
			Timeout:       5 * time.Second,
			RatePerSecond: 5,
			Burst:         5,
		},
		Seed: SeedConfig{
			Dir: "./templates",
		},
		MCP: MCPConfig{
			UserID: "mcp",
			Role:   models.RoleSuperAdmin,
		},
	}
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Permission identifiers checked by the HTTP layer.
const (
	PermOKRRead   = "okr:read"
	PermOKRCreate = "okr:create"
	PermOKRUpdate = "okr:update"
	PermOKRDelete = "okr:delete"
)

// Config models okrline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Auth struct {
		AllowLegacyActorHeader bool `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	OKR struct {
		// StrictStatus rejects unknown objective status values in patches instead of dropping them.
		StrictStatus bool `yaml:"strict_status"`
		MaxPageSize  int  `yaml:"max_page_size"`
	} `yaml:"okr"`
	RBAC struct {
		DefaultRole string              `yaml:"default_role"`
		Roles       map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with okr config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("config.database.driver must be sqlite or postgres")
	}
	if strings.EqualFold(c.Database.Driver, "postgres") && c.Database.DSN == "" {
		return fmt.Errorf("config.database.dsn is required for postgres")
	}
	if c.OKR.MaxPageSize < 0 {
		return fmt.Errorf("config.okr.max_page_size must not be negative")
	}
	if len(c.RBAC.Roles) == 0 {
		return fmt.Errorf("config.rbac.roles is required")
	}
	if _, ok := c.RBAC.Roles["owner"]; !ok {
		return fmt.Errorf("config.rbac.roles must include owner")
	}
	for roleID, role := range c.RBAC.Roles {
		if roleID == "" {
			return fmt.Errorf("config.rbac.roles contains empty role id")
		}
		for _, perm := range role.Permissions {
			if perm == "" {
				return fmt.Errorf("role %s has empty permission id", roleID)
			}
		}
	}
	if c.RBAC.DefaultRole != "" {
		if _, ok := c.RBAC.Roles[c.RBAC.DefaultRole]; !ok {
			return fmt.Errorf("config.rbac.default_role references unknown role %s", c.RBAC.DefaultRole)
		}
	}
	return nil
}

// PageSizeLimit returns the cap applied to list requests.
func (c *Config) PageSizeLimit() int {
	if c == nil || c.OKR.MaxPageSize <= 0 {
		return 100
	}
	return c.OKR.MaxPageSize
}

// RolePermissions returns the permissions granted to roleID.
func (c *Config) RolePermissions(roleID string) []string {
	if c == nil {
		return nil
	}
	return c.RBAC.Roles[roleID].Permissions
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "okrline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing sections keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	cfg.RBAC.Roles = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if len(cfg.RBAC.Roles) == 0 {
		cfg.RBAC.Roles = Default().RBAC.Roles
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

database:
  driver: sqlite
  dsn: ""

log:
  level: info

auth:
  allow_legacy_actor_header: false

okr:
  strict_status: false
  max_page_size: 100

rbac:
  default_role: member
  roles:
    owner:
      description: "Team owner"
      permissions: [okr:read, okr:create, okr:update, okr:delete, team:manage]
    admin:
      description: "Team administrator"
      permissions: [okr:read, okr:create, okr:update, okr:delete]
    member:
      description: "Team member"
      permissions: [okr:read, okr:create, okr:update]
    viewer:
      description: "Read-only access"
      permissions: [okr:read]
`

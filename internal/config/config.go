package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for the ENI gateway.
type Config struct {
	GatewayID       string           `toml:"gateway_id"`
	BaseDir         string           `toml:"base_dir"`
	LogDir          string           `toml:"log_dir"`
	LogLevel        string           `toml:"log_level"` // "debug", "info" (default), "warn" or "error"
	Listen          string           `toml:"listen"`
	DispatchTimeout string           `toml:"dispatch_timeout"` // Go duration, "" or "0" disables
	Repository      RepositoryConfig `toml:"repository"`
	Database        DatabaseConfig   `toml:"database"`
	Types           []TypeConfig     `toml:"types"`
	Users           []UserConfig     `toml:"users"`
	Server          ServerConfig     `toml:"server"`
	Snapshot        SnapshotConfig   `toml:"snapshot"`
}

// RepositoryConfig describes the git working copy.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RepositoryConfig struct {
	Type         string   `toml:"type"`                   // "git" or "memory"
	WorkingCopy  string   `toml:"working_copy,omitempty"` // only used for type=git
	Root         string   `toml:"root"`                   // namespace root inside the working copy
	Remote       string   `toml:"remote,omitempty"`       // only used for type=git
	Username     string   `toml:"remote_username,omitempty"`
	Password     string   `toml:"remote_password,omitempty"`
	AuthorDomain string   `toml:"author_domain"` // commit authors are user@author_domain
	Ignore       []string `toml:"ignore"`
}

// DatabaseConfig represents configuration for the property store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// TypeConfig registers one object type.
type TypeConfig struct {
	GUID        string `toml:"guid"`
	Extension   string `toml:"extension"`
	Description string `toml:"description"`
}

// UserConfig declares one user.
type UserConfig struct {
	Name        string `toml:"name"`
	FullName    string `toml:"full_name"`
	Description string `toml:"description"`
}

// ServerConfig holds the values reported by get-server-settings and
// get-permissions.
type ServerConfig struct {
	CommTimeout      int    `toml:"comm_timeout"`
	IdleInterval     int    `toml:"idle_interval"`
	AllowAnonymous   bool   `toml:"allow_anonymous"`
	ClientExpiration int    `toml:"client_expiration"`
	MaxTrials        int    `toml:"max_trials"`
	ObjectAccess     uint16 `toml:"object_access"`
	FolderAccess     uint16 `toml:"folder_access"`
}

// SnapshotConfig selects where property-store snapshots go.
type SnapshotConfig struct {
	Enabled    bool             `toml:"enabled"`
	Vault      VaultConfig      `toml:"vault"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// VaultConfig represents configuration for a vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for snapshots.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// Timeout parses DispatchTimeout. An empty value disables the deadline.
func (c *Config) Timeout() (time.Duration, error) {
	if c.DispatchTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.DispatchTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid dispatch_timeout %q: %w", c.DispatchTimeout, err)
	}
	return d, nil
}

// DefaultTypes are the object kinds registered by a fresh config.
func DefaultTypes() []TypeConfig {
	return []TypeConfig{
		{GUID: "{6654496C-404D-11D5-9F2B-00A0C9C2D5A7}", Extension: "pou", Description: "Program organisation unit"},
		{GUID: "{6654496C-404D-11D5-9F2B-00A0C9C2D5AB}", Extension: "gvl", Description: "Global variable list"},
	}
}

// NewConfig creates a new Config with the provided values and defaults for
// everything else.
func NewConfig(gatewayID, baseDir string) *Config {
	return &Config{
		GatewayID:       gatewayID,
		BaseDir:         baseDir,
		LogDir:          filepath.Join(baseDir, "log"),
		LogLevel:        "info",
		Listen:          ":8080",
		DispatchTimeout: "30s",
		Repository: RepositoryConfig{
			Type:         "git",
			WorkingCopy:  filepath.Join(baseDir, "repository"),
			AuthorDomain: "eni.local",
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Types: DefaultTypes(),
		Server: ServerConfig{
			CommTimeout:    60,
			IdleInterval:   300,
			AllowAnonymous: true,
			MaxTrials:      3,
			ObjectAccess:   0x0700,
			FolderAccess:   0x0FFF,
		},
		Snapshot: SnapshotConfig{
			Vault: VaultConfig{Type: "filesystem", Name: "local", FSVaultRoot: filepath.Join(baseDir, "vault")},
			Encryption: EncryptionConfig{
				Type:           "none",
				PublicKeyPath:  filepath.Join(baseDir, "keys", "eni.pub"),
				PrivateKeyPath: filepath.Join(baseDir, "keys", "eni.key"),
			},
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

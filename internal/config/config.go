package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Project describes one managed deployment.
type Project struct {
	// Path is the live deployment directory on the target host.
	Path string `yaml:"path"`
	// UpdateURL is where update archives for this project are served from.
	// It may be an absolute local path or an HTTP(S) URL.
	UpdateURL string `yaml:"update_url"`
	// Service is the optional systemd unit restarted after a successful update.
	Service string `yaml:"service,omitempty"`
}

// Config holds the project registry and host-level settings shared by the binaries.
type Config struct {
	// Projects maps project names to their deployment settings.
	Projects map[string]Project `yaml:"projects"`
	// ListenAddress is the address the HTTP facade binds to in serve mode.
	ListenAddress string `yaml:"listen_addr"`
	// Owner is the remote account under which releases and repositories are created.
	Owner string `yaml:"owner"`
	// ArchiveDir is where the packager writes versioned archives and the latest alias.
	ArchiveDir string `yaml:"archive_dir"`
	// ArchiveEnabled switches archive creation (and therefore publishing) on or off.
	ArchiveEnabled bool `yaml:"archive_enabled"`
	// AuxiliaryFiles are absolute paths always added to every archive by base name.
	AuxiliaryFiles []string `yaml:"auxiliary_files"`
	// ProtectedPaths are glob patterns never overwritten during extraction.
	ProtectedPaths []string `yaml:"protected_paths"`
	// StateFile is the path of the JSON file recording applied updates.
	StateFile string `yaml:"state_file"`
	// Timeout bounds network operations (artifact fetches and API calls).
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultConfigPath is the default location of the registry on a host.
	DefaultConfigPath = "/opt/fleet-updater/config.yaml"

	// DefaultListenAddress is the default bind address for serve mode.
	DefaultListenAddress = ":9010"

	// DefaultArchiveDir is the default output directory for archives.
	DefaultArchiveDir = "/opt/fleet-updater/archives"

	// DefaultStateFilename is the default path of the apply-record state file.
	DefaultStateFilename = "/opt/fleet-updater/state.json"

	// DefaultTimeout is the default bound for network operations.
	DefaultTimeout = 60 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errNoProjects is returned when the registry defines no projects.
	errNoProjects = errors.New("no projects configured")
	// errProjectPathRequired is returned when a project omits its deployment path.
	errProjectPathRequired = errors.New("project path must be provided")
	// errProjectUpdateURLRequired is returned when a project omits its update source.
	errProjectUpdateURLRequired = errors.New("project update_url must be provided")
)

// DefaultAuxiliaryFiles are archived into every build when present on disk.
func DefaultAuxiliaryFiles() []string {
	return []string{
		DefaultConfigPath,
		"/opt/fleet-updater/fleet-updater.service",
	}
}

// DefaultProtectedPaths shield the virtualenv interpreter a running
// deployment may depend on from being overwritten mid-update.
func DefaultProtectedPaths() []string {
	return []string{
		"venv/bin/python*",
		".venv/bin/python*",
	}
}

// Load reads the registry from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the registry to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Validate checks required fields and fills defaults in place.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if len(cfg.Projects) == 0 {
		return errNoProjects
	}

	for name, project := range cfg.Projects {
		if err := validateProject(name, project); err != nil {
			return err
		}
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = DefaultArchiveDir
	}

	if cfg.StateFile == "" {
		cfg.StateFile = DefaultStateFilename
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.AuxiliaryFiles == nil {
		cfg.AuxiliaryFiles = DefaultAuxiliaryFiles()
	}

	if cfg.ProtectedPaths == nil {
		cfg.ProtectedPaths = DefaultProtectedPaths()
	}

	return nil
}

// validateProject checks one registry entry.
func validateProject(name string, project Project) error {
	if project.Path == "" {
		return fmt.Errorf("project %s: %w", name, errProjectPathRequired)
	}

	if project.UpdateURL == "" {
		return fmt.Errorf("project %s: %w", name, errProjectUpdateURLRequired)
	}

	// Local sources are absolute paths; anything else must parse as a URL.
	if strings.HasPrefix(project.UpdateURL, "/") {
		return nil
	}

	if _, err := url.ParseRequestURI(project.UpdateURL); err != nil {
		return fmt.Errorf("project %s: invalid update_url: %w", name, err)
	}

	return nil
}

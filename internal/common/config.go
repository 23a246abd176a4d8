package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	AzureDevOps AzureConfig    `toml:"azure_devops"`
	Storage     StorageConfig  `toml:"storage"`
	OpenSpec    OpenSpecConfig `toml:"openspec"`
	Logging     LoggingConfig  `toml:"logging"`
}

type AzureConfig struct {
	// BaseURL is overridable for on-premises servers and tests
	BaseURL      string `toml:"base_url"`
	Organization string `toml:"organization"`
	Project      string `toml:"project"`
	Token        string `toml:"token"`
	APIVersion   string `toml:"api_version"`
}

type StorageConfig struct {
	BaseDirectory  string `toml:"base_directory"`
	TicketsSubdir  string `toml:"tickets_subdir"`
	OpenSpecSubdir string `toml:"openspec_subdir"`
	CachePath      string `toml:"cache_path"`

	// LocalMode creates the ticket and openspec folders in the current
	// working directory instead of BaseDirectory
	LocalMode bool `toml:"local_mode"`
}

type OpenSpecConfig struct {
	// CommandTemplate is the external AI command. The prompt is always
	// supplied on stdin; an optional {prompt_file} placeholder expands to
	// the path of a temp file holding the same prompt.
	CommandTemplate string `toml:"command_template"`
	AutoGenerate    bool   `toml:"auto_generate"`
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	Output     string `toml:"output"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		AzureDevOps: AzureConfig{
			BaseURL:    "https://dev.azure.com",
			APIVersion: "7.1",
		},
		Storage: StorageConfig{
			BaseDirectory:  filepath.Join(home, "devops-data"),
			TicketsSubdir:  "Tickets",
			OpenSpecSubdir: "openspec",
			CachePath:      filepath.Join(ConfigDir(), "bakery.db"),
		},
		OpenSpec: OpenSpecConfig{
			CommandTemplate: "claude -p",
			AutoGenerate:    true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     "both",
			MaxSize:    100,
			MaxBackups: 3,
		},
	}
}

// ConfigDir returns the per-user configuration directory
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bakery"
	}
	return filepath.Join(home, ".bakery")
}

// ConfigPath returns the default configuration file path
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "bakery-config.toml")
}

// LoadConfig reads the TOML config file, creating it with defaults on
// first run. An empty path selects the default location.
func LoadConfig(configFile string) (*Config, error) {
	config := DefaultConfig()

	if configFile == "" {
		configFile = ConfigPath()
		if err := os.MkdirAll(ConfigDir(), 0755); err != nil {
			return nil, NewStorageError("failed to create config directory").WithCause(err)
		}
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			if err := writeDefaultConfig(configFile, config); err != nil {
				return nil, err
			}
		}
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, NewConfigurationError(fmt.Sprintf("failed to read config file %s", configFile)).WithCause(err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, NewConfigurationError("failed to parse config file").WithCause(err)
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func writeDefaultConfig(path string, config *Config) error {
	data, err := toml.Marshal(config)
	if err != nil {
		return NewConfigurationError("failed to encode default config").WithCause(err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return NewStorageError(fmt.Sprintf("failed to write default config to %s", path)).WithCause(err)
	}
	return nil
}

func applyEnvOverrides(config *Config) {
	if token := os.Getenv("AZURE_DEVOPS_PAT"); token != "" {
		config.AzureDevOps.Token = token
	}
	if baseDir := os.Getenv("BAKERY_BASE_DIR"); baseDir != "" {
		config.Storage.BaseDirectory = baseDir
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}
	if logOutput := os.Getenv("LOG_OUTPUT"); logOutput != "" {
		config.Logging.Output = logOutput
	}
}

// Validate checks structural settings. Credential checks are separate so
// the config subcommand can run against an unfinished file.
func (c *Config) Validate() error {
	if c.Storage.BaseDirectory == "" {
		return NewConfigurationError("storage base_directory is required")
	}
	if c.AzureDevOps.APIVersion == "" {
		c.AzureDevOps.APIVersion = "7.1"
	}
	if c.AzureDevOps.BaseURL == "" {
		c.AzureDevOps.BaseURL = "https://dev.azure.com"
	}
	if c.Storage.TicketsSubdir == "" {
		c.Storage.TicketsSubdir = "Tickets"
	}
	if c.Storage.OpenSpecSubdir == "" {
		c.Storage.OpenSpecSubdir = "openspec"
	}

	validLogLevels := []string{"debug", "info", "warn", "error", "fatal", "panic"}
	validLevel := false
	for _, level := range validLogLevels {
		if c.Logging.Level == level {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return NewConfigurationError(fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}

	validOutputs := []string{"console", "file", "both"}
	validOutput := false
	for _, output := range validOutputs {
		if c.Logging.Output == output {
			validOutput = true
			break
		}
	}
	if !validOutput {
		return NewConfigurationError(fmt.Sprintf("invalid log output: %s", c.Logging.Output))
	}

	return nil
}

// ValidateCredentials fails fast when the connection settings are not
// usable. There is deliberately no fallback credential.
func (c *Config) ValidateCredentials() error {
	if c.AzureDevOps.Organization == "" {
		return NewConfigurationError("azure_devops organization is required (set it in the config file or pass -organization)")
	}
	if c.AzureDevOps.Project == "" {
		return NewConfigurationError("azure_devops project is required (set it in the config file or pass -project)")
	}
	if c.AzureDevOps.Token == "" {
		return NewConfigurationError("no access token configured: set azure_devops token, pass -token, or export AZURE_DEVOPS_PAT")
	}
	return nil
}

// EffectiveBaseDir returns the working directory when local mode is on,
// otherwise the configured base directory.
func (c *Config) EffectiveBaseDir() string {
	if c.Storage.LocalMode {
		if dir, err := os.Getwd(); err == nil {
			return dir
		}
	}
	return c.Storage.BaseDirectory
}

// TicketsDir returns the directory holding scraped tickets
func (c *Config) TicketsDir() string {
	return filepath.Join(c.EffectiveBaseDir(), c.Storage.TicketsSubdir)
}

// OpenSpecDir returns the directory holding generated plans
func (c *Config) OpenSpecDir() string {
	return filepath.Join(c.EffectiveBaseDir(), c.Storage.OpenSpecSubdir)
}

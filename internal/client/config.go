package client

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forcedotcom/sf-fx-bulk/internal/config"
	"github.com/forcedotcom/sf-fx-bulk/pkg/bulk"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/client-go/util/homedir"
	"sigs.k8s.io/yaml"
)

const (
	// TestRootDirEnvKey is the environment variable key used to set the file system root when testing.
	TestRootDirEnvKey = "BULKCTL_TEST_ROOT_DIR"
)

// Config holds the information needed to reach an org's bulk job service.
type Config struct {
	Connection Connection `json:"connection"`

	// testRootDir prefixes the default config path when set.
	testRootDir string `json:"-"`
}

// Connection is the persisted form of bulk.Connection.
type Connection struct {
	// InstanceURL is the org URL, without the /services/data/... suffix.
	InstanceURL string `json:"instanceUrl"`
	AccessToken string `json:"accessToken"`
	APIVersion  string `json:"apiVersion,omitempty"`
}

func (c *Config) Equal(c2 *Config) bool {
	if c == c2 {
		return true
	}
	if c == nil || c2 == nil {
		return false
	}
	return c.Connection == c2.Connection
}

func (c *Config) DeepCopy() *Config {
	if c == nil {
		return nil
	}
	c2 := *c
	return &c2
}

func NewDefault() *Config {
	c := &Config{}

	if value := os.Getenv(TestRootDirEnvKey); value != "" {
		c.testRootDir = filepath.Clean(value)
	}

	return c
}

// ApplyEnv overrides the persisted connection with the values set in the
// environment.
func (c *Config) ApplyEnv(cfg *config.Config) {
	if cfg == nil || cfg.Connection == nil {
		return
	}
	if cfg.Connection.InstanceURL != "" {
		c.Connection.InstanceURL = cfg.Connection.InstanceURL
	}
	if cfg.Connection.AccessToken != "" {
		c.Connection.AccessToken = cfg.Connection.AccessToken
	}
	if c.Connection.APIVersion == "" {
		c.Connection.APIVersion = cfg.Connection.APIVersion
	}
}

// BulkConnection returns the connection in the form bulk.New expects.
func (c *Config) BulkConnection() bulk.Connection {
	return bulk.Connection{
		InstanceURL: strings.TrimSuffix(c.Connection.InstanceURL, "/"),
		AccessToken: c.Connection.AccessToken,
		APIVersion:  c.Connection.APIVersion,
	}
}

// NewHTTPClientFromConfig returns a new HTTP Client from the given config.
func NewHTTPClientFromConfig(cfg *config.Config) *http.Client {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     false,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
	if cfg != nil && cfg.Client != nil {
		httpClient.Timeout = cfg.Client.RequestTimeout
	}
	return httpClient
}

// DefaultConfigPath returns the default path to the bulkctl config file.
func DefaultConfigPath() string {
	return NewDefault().configPath()
}

func (c *Config) configPath() string {
	home := homedir.HomeDir()
	if c.testRootDir != "" {
		home = filepath.Join(c.testRootDir, home)
	}
	return filepath.Join(home, ".bulkctl", "config.yaml")
}

func ParseConfigFile(filename string) (*Config, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := NewDefault()
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteConfig writes a client config file using the given parameters.
func WriteConfig(filename string, conn Connection) error {
	cfg := NewDefault()
	cfg.Connection = conn

	if err := cfg.Validate(); err != nil {
		return err
	}
	return cfg.Persist(filename)
}

func (c *Config) Persist(filename string) error {
	contents, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.WriteFile(filename, contents, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	validationErrors := validateConnection(c.Connection)
	if len(validationErrors) > 0 {
		return fmt.Errorf("invalid configuration: %v", utilerrors.NewAggregate(validationErrors).Error())
	}
	return nil
}

func validateConnection(conn Connection) []error {
	validationErrors := make([]error, 0)
	if len(conn.InstanceURL) == 0 {
		validationErrors = append(validationErrors, fmt.Errorf("no instance url found"))
	} else {
		u, err := url.Parse(conn.InstanceURL)
		if err != nil {
			validationErrors = append(validationErrors, fmt.Errorf("invalid instance url format %q: %w", conn.InstanceURL, err))
		}
		if err == nil && len(u.Hostname()) == 0 {
			validationErrors = append(validationErrors, fmt.Errorf("invalid instance url format %q: no hostname", conn.InstanceURL))
		}
	}
	if len(conn.AccessToken) == 0 {
		validationErrors = append(validationErrors, fmt.Errorf("no access token found"))
	}
	return validationErrors
}

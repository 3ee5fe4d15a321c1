// Package settings loads the birdsync configuration file.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/birdsync/birdsync/pkg/audit"
	"github.com/birdsync/birdsync/pkg/birdc"
	"github.com/birdsync/birdsync/pkg/birdconf"
	"github.com/birdsync/birdsync/pkg/poller"
	"github.com/birdsync/birdsync/pkg/reconcile"
	"github.com/birdsync/birdsync/pkg/util"
)

// EnvConfig overrides the default configuration path.
const EnvConfig = "BIRDSYNC_CONFIG"

// Settings holds the agent and editor configuration.
type Settings struct {
	// HostID names this router in store keys. Defaults to the hostname.
	HostID string `yaml:"host_id,omitempty"`

	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	RouteTTL     time.Duration `yaml:"route_ttl,omitempty"`

	// MetricsAddr is the listen address for /metrics; empty disables it.
	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	// AuditLog records route edits made with the birdsync command.
	AuditLog string `yaml:"audit_log,omitempty"`

	Redis RedisSettings `yaml:"redis"`
	Bird  BirdSettings  `yaml:"bird"`
	// SSH, when Host is set, runs birdc on a remote router.
	SSH SSHSettings `yaml:"ssh,omitempty"`
	Log LogSettings `yaml:"log"`
}

// RedisSettings locates the route store.
type RedisSettings struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// BirdSettings locates the routing daemon.
type BirdSettings struct {
	Birdc        string        `yaml:"birdc,omitempty"`
	Socket       string        `yaml:"socket,omitempty"`
	Table        string        `yaml:"table,omitempty"`
	ConfigPath   string        `yaml:"config_path,omitempty"`
	StaticMarker string        `yaml:"static_marker,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
}

// SSHSettings mirrors birdc.SSHConfig.
type SSHSettings struct {
	Host       string `yaml:"host,omitempty"`
	User       string `yaml:"user,omitempty"`
	Password   string `yaml:"password,omitempty"`
	KeyFile    string `yaml:"key_file,omitempty"`
	KnownHosts string `yaml:"known_hosts,omitempty"`
	Insecure   bool   `yaml:"insecure,omitempty"`
}

// LogSettings controls util.Logger.
type LogSettings struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// DefaultSettingsPath returns the configuration path, honoring $BIRDSYNC_CONFIG.
func DefaultSettingsPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return "/etc/birdsync/birdsync.yaml"
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from path. A missing file yields the defaults.
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	s.ApplyDefaults()
	return s, nil
}

// ApplyDefaults fills every unset field.
func (s *Settings) ApplyDefaults() {
	if s.HostID == "" {
		if h, err := os.Hostname(); err == nil {
			s.HostID = h
		}
	}
	if s.PollInterval == 0 {
		s.PollInterval = poller.DefaultInterval
	}
	if s.RouteTTL == 0 {
		s.RouteTTL = reconcile.DefaultTTL
	}
	if s.AuditLog == "" {
		s.AuditLog = audit.DefaultPath
	}
	if s.Redis.Addr == "" {
		s.Redis.Addr = "127.0.0.1:6379"
	}
	if s.Redis.Timeout == 0 {
		s.Redis.Timeout = 5 * time.Second
	}
	if s.Bird.Birdc == "" {
		s.Bird.Birdc = "birdc"
	}
	if s.Bird.ConfigPath == "" {
		s.Bird.ConfigPath = birdconf.DefaultPath
	}
	if s.Bird.StaticMarker == "" {
		s.Bird.StaticMarker = birdconf.DefaultStaticMarker
	}
	if s.Bird.Timeout == 0 {
		s.Bird.Timeout = birdc.DefaultTimeout
	}
	if s.Log.Level == "" {
		s.Log.Level = "info"
	}
	if s.Log.Format == "" {
		s.Log.Format = "text"
	}
}

// Validate checks the settings after defaults are applied.
func (s *Settings) Validate() error {
	vb := &util.ValidationBuilder{}
	vb.Add(s.HostID != "", "host_id is required")
	vb.Add(s.PollInterval > 0, "poll_interval must be positive")
	// a route must outlive the gap between two cycles or it flickers out
	vb.Add(s.RouteTTL > s.PollInterval,
		fmt.Sprintf("route_ttl (%s) must exceed poll_interval (%s)", s.RouteTTL, s.PollInterval))
	vb.Add(s.Redis.DB >= 0, "redis.db must not be negative")
	vb.Add(s.Log.Format == "text" || s.Log.Format == "json",
		fmt.Sprintf("log.format %q must be text or json", s.Log.Format))
	if s.SSH.Host != "" {
		vb.Add(s.SSH.User != "", "ssh.user is required with ssh.host")
		vb.Add(s.SSH.Password != "" || s.SSH.KeyFile != "", "ssh needs a password or key_file")
		vb.Add(s.SSH.KnownHosts != "" || s.SSH.Insecure, "ssh needs known_hosts unless insecure is set")
	}
	return vb.Build()
}

// Remote reports whether birdc runs over SSH.
func (s *Settings) Remote() bool {
	return s.SSH.Host != ""
}

// SSHConfig converts the ssh section for birdc.DialSSH.
func (s *Settings) SSHConfig() birdc.SSHConfig {
	return birdc.SSHConfig{
		Host:       s.SSH.Host,
		User:       s.SSH.User,
		Password:   s.SSH.Password,
		KeyFile:    s.SSH.KeyFile,
		KnownHosts: s.SSH.KnownHosts,
		Insecure:   s.SSH.Insecure,
	}
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

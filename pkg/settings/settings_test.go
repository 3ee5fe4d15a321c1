package settings

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/birdsync/birdsync/pkg/util"
)

func TestLoadFrom_MissingFileGivesDefaults(t *testing.T) {
	s, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if s.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %s, want 30s", s.PollInterval)
	}
	if s.RouteTTL != 60*time.Second {
		t.Errorf("RouteTTL = %s, want 60s", s.RouteTTL)
	}
	if s.Redis.Addr != "127.0.0.1:6379" {
		t.Errorf("Redis.Addr = %q", s.Redis.Addr)
	}
	if s.Bird.ConfigPath != "/etc/bird/bird.conf" {
		t.Errorf("Bird.ConfigPath = %q", s.Bird.ConfigPath)
	}
	if s.Bird.StaticMarker != "protocol static" {
		t.Errorf("Bird.StaticMarker = %q", s.Bird.StaticMarker)
	}
	if s.AuditLog != "/var/log/birdsync/audit.log" {
		t.Errorf("AuditLog = %q", s.AuditLog)
	}
	if s.Remote() {
		t.Error("Remote() = true without ssh.host")
	}
	if err := s.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadFrom_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "birdsync.yaml")
	data := `host_id: edge1
poll_interval: 10s
route_ttl: 45s
metrics_addr: ":9324"
redis:
  addr: redis.example.net:6379
  db: 2
bird:
  table: master4
  config_path: /etc/bird.conf
ssh:
  host: 192.0.2.10
  user: admin
  key_file: /root/.ssh/id_ed25519
  known_hosts: /root/.ssh/known_hosts
log:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if s.HostID != "edge1" || s.PollInterval != 10*time.Second || s.RouteTTL != 45*time.Second {
		t.Errorf("top level = %+v", s)
	}
	if s.Redis.Addr != "redis.example.net:6379" || s.Redis.DB != 2 {
		t.Errorf("Redis = %+v", s.Redis)
	}
	if s.Bird.Table != "master4" || s.Bird.ConfigPath != "/etc/bird.conf" || s.Bird.Birdc != "birdc" {
		t.Errorf("Bird = %+v", s.Bird)
	}
	if !s.Remote() {
		t.Error("Remote() = false with ssh.host")
	}
	if cfg := s.SSHConfig(); cfg.Host != "192.0.2.10" || cfg.User != "admin" {
		t.Errorf("SSHConfig() = %+v", cfg)
	}
	if s.Log.Level != "debug" || s.Log.Format != "json" {
		t.Errorf("Log = %+v", s.Log)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadFrom_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("poll_interval: [1, 2"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom() should fail on invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Settings)
		want   string
	}{
		{"ttl equal to interval", func(s *Settings) { s.RouteTTL = s.PollInterval }, "route_ttl"},
		{"ttl below interval", func(s *Settings) { s.RouteTTL = time.Second }, "route_ttl"},
		{"empty host", func(s *Settings) { s.HostID = "" }, "host_id"},
		{"bad log format", func(s *Settings) { s.Log.Format = "xml" }, "log.format"},
		{"ssh without user", func(s *Settings) {
			s.SSH = SSHSettings{Host: "r1", Password: "x", Insecure: true}
		}, "ssh.user"},
		{"ssh without host key check", func(s *Settings) {
			s.SSH = SSHSettings{Host: "r1", User: "u", Password: "x"}
		}, "known_hosts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Settings{HostID: "edge1"}
			s.ApplyDefaults()
			tt.modify(s)
			err := s.Validate()
			if !errors.Is(err, util.ErrValidationFailed) {
				t.Fatalf("Validate() = %v, want validation error", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %q, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "birdsync.yaml")
	s := &Settings{HostID: "edge2", RouteTTL: 90 * time.Second}
	s.ApplyDefaults()

	if err := s.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}
	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if got.HostID != "edge2" || got.RouteTTL != 90*time.Second || got.PollInterval != s.PollInterval {
		t.Errorf("round trip = %+v", got)
	}
}

func TestDefaultSettingsPath_Env(t *testing.T) {
	t.Setenv(EnvConfig, "/tmp/custom.yaml")
	if got := DefaultSettingsPath(); got != "/tmp/custom.yaml" {
		t.Errorf("DefaultSettingsPath() = %q", got)
	}
}

func TestLoadAndSave_DefaultPath(t *testing.T) {
	t.Setenv(EnvConfig, filepath.Join(t.TempDir(), "etc", "birdsync.yaml"))

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	s.HostID = "edge4"
	s.MetricsAddr = ":9324"
	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load() after Save() error = %v", err)
	}
	if got.HostID != "edge4" || got.MetricsAddr != ":9324" {
		t.Errorf("Load() = %+v", got)
	}
}

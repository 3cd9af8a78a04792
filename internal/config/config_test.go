package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "salvo.json")
	data := `{
		"role": "client",
		"transport": "ws",
		"host": "192.168.1.20",
		"port": 9000,
		"connect_timeout": "250ms",
		"retry_refused": true
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Role != RoleClient || cfg.Transport != TransportWS {
		t.Errorf("role/transport = %q/%q", cfg.Role, cfg.Transport)
	}
	if cfg.Address() != "192.168.1.20:9000" {
		t.Errorf("Address = %q", cfg.Address())
	}
	if time.Duration(cfg.ConnectTimeout) != 250*time.Millisecond {
		t.Errorf("ConnectTimeout = %v", time.Duration(cfg.ConnectTimeout))
	}
	if !cfg.RetryRefused {
		t.Error("RetryRefused not read")
	}
	// Fields absent from the file keep their defaults.
	if time.Duration(cfg.RetryInterval) != time.Second {
		t.Errorf("RetryInterval = %v, want default", time.Duration(cfg.RetryInterval))
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("Load of an explicit missing file succeeded")
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte(`{"connect_timeout": "soon"}`), 0o600)
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted a bad duration")
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"host ephemeral port", func(c *Config) { c.Port = 0 }, true},
		{"client port zero", func(c *Config) { c.Role = RoleClient; c.Port = 0 }, false},
		{"port too large", func(c *Config) { c.Port = 70000 }, false},
		{"unknown role", func(c *Config) { c.Role = "spectator" }, false},
		{"unknown transport", func(c *Config) { c.Transport = "udp" }, false},
		{"client without host", func(c *Config) { c.Role = RoleClient; c.Host = "" }, false},
		{"negative timeout", func(c *Config) { c.ConnectTimeout = -1 }, false},
		{"webrtc client", func(c *Config) { c.Role = RoleClient; c.Transport = TransportWebRTC }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(&cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("Validate = %v, want nil", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalid) {
				t.Fatalf("Validate = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	if err := d.UnmarshalJSON([]byte(`"1m30s"`)); err != nil || time.Duration(d) != 90*time.Second {
		t.Fatalf("UnmarshalJSON = %v, %v", time.Duration(d), err)
	}
	if err := d.UnmarshalJSON([]byte(`1000`)); err != nil || time.Duration(d) != time.Microsecond {
		t.Fatalf("UnmarshalJSON(number) = %v, %v", time.Duration(d), err)
	}
	out, err := Duration(2 * time.Second).MarshalJSON()
	if err != nil || string(out) != `"2s"` {
		t.Fatalf("MarshalJSON = %s, %v", out, err)
	}
}

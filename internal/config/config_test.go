package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/pacebench/internal/config"
	"github.com/torosent/pacebench/internal/wire"
)

func TestParseFlagsDefaults(t *testing.T) {
	loader := config.NewLoader()

	cfg, err := loader.Load([]string{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ServerMode {
		t.Error("ServerMode = true, want false")
	}
	if cfg.Mode != config.ModeStream {
		t.Errorf("Mode = %q, want stream", cfg.Mode)
	}
	if cfg.Protocol != "udp" {
		t.Errorf("Protocol = %q, want udp", cfg.Protocol)
	}
	if cfg.Host != "127.0.0.1" || cfg.Port != 4321 {
		t.Errorf("target = %s:%d, want 127.0.0.1:4321", cfg.Host, cfg.Port)
	}
	if cfg.TCPPort != 1234 || cfg.UDPPort != 4321 || cfg.WSPort != 0 || cfg.QUICPort != 0 {
		t.Errorf("echo ports = %d/%d/%d/%d", cfg.TCPPort, cfg.UDPPort, cfg.WSPort, cfg.QUICPort)
	}
	if cfg.Num != 6 {
		t.Errorf("Num = %d, want 6", cfg.Num)
	}
	if cfg.Interval != 1000 {
		t.Errorf("Interval = %d, want 1000", cfg.Interval)
	}
	if cfg.PaceInterval() != time.Millisecond {
		t.Errorf("PaceInterval() = %v, want 1ms", cfg.PaceInterval())
	}
	if cfg.PayloadSize != 1024 {
		t.Errorf("PayloadSize = %d, want 1024", cfg.PayloadSize)
	}
	if cfg.InactivityTimeout != 5*time.Second {
		t.Errorf("InactivityTimeout = %v, want 5s", cfg.InactivityTimeout)
	}
	if cfg.Runs != 1 {
		t.Errorf("Runs = %d, want 1", cfg.Runs)
	}
	if cfg.JSONOutput {
		t.Error("JSONOutput = true, want false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestEchoModeDefaultInterval(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"-m", "echo"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Interval != 100 {
		t.Errorf("Interval = %d, want 100", cfg.Interval)
	}
	if cfg.PaceInterval() != 100*time.Millisecond {
		t.Errorf("PaceInterval() = %v, want 100ms", cfg.PaceInterval())
	}
}

func TestExplicitZeroIntervalIsKept(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"-m", "echo", "-i", "0"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Interval != 0 {
		t.Errorf("Interval = %d, want 0", cfg.Interval)
	}
}

func TestHelpRequested(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--help"})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load(--help) error = %v, want ErrHelpRequested", err)
	}
}

func TestUnknownFlag(t *testing.T) {
	if _, err := config.NewLoader().Load([]string{"--target=x"}); err == nil {
		t.Fatal("Load() error = nil, want unknown flag error")
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.yaml")
	if err := os.WriteFile(path, []byte(`
mode: echo
server_mode: true
tcp_port: 2345
udp_port: 0
ws_port: 8080
interval: 20
log_level: debug
tracing:
  endpoint: localhost:4318
  protocol: http
`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path, "--tcp-port", "3456"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
	if cfg.Mode != config.ModeEcho || !cfg.ServerMode {
		t.Errorf("role = %s server=%v, want echo server", cfg.Mode, cfg.ServerMode)
	}
	if cfg.TCPPort != 3456 {
		t.Errorf("TCPPort = %d, want flag value 3456", cfg.TCPPort)
	}
	if cfg.Interval != 20 {
		t.Errorf("Interval = %d, want 20", cfg.Interval)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Tracing.Protocol != "http" || cfg.Tracing.Endpoint != "localhost:4318" {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}

	eps := cfg.EchoEndpoints()
	if len(eps) != 2 {
		t.Fatalf("EchoEndpoints() = %v, want tcp and ws", eps)
	}
	if eps[0].Tag != wire.TagTCP || eps[0].Port != 3456 {
		t.Errorf("EchoEndpoints()[0] = %v", eps[0])
	}
	if eps[1].Tag != wire.TagWebSocket || eps[1].Port != 8080 {
		t.Errorf("EchoEndpoints()[1] = %v", eps[1])
	}
}

func TestLoadConfigFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.json")
	if err := os.WriteFile(path, []byte(`{
		"protocol": "tcp",
		"port": 9000,
		"num": 2,
		"payload_size": 64,
		"json_output": true
	}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path, "-n", "3"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	ep, err := cfg.Endpoint()
	if err != nil {
		t.Fatalf("Endpoint() error = %v", err)
	}
	if ep.String() != "tcp://127.0.0.1:9000" {
		t.Errorf("Endpoint() = %s, want tcp://127.0.0.1:9000", ep)
	}
	if cfg.Limit() != 1000 {
		t.Errorf("Limit() = %d, want 1000", cfg.Limit())
	}
	if cfg.PayloadSize != 64 || !cfg.JSONOutput {
		t.Errorf("PayloadSize = %d JSONOutput = %v", cfg.PayloadSize, cfg.JSONOutput)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	if err == nil {
		t.Fatal("Load() error = nil, want error for missing file")
	}
}

func TestURIOverridesProtocolHostPort(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"-P", "tcp", "-p", "1", "-u", "ws://example.com:8080"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	ep, err := cfg.Endpoint()
	if err != nil {
		t.Fatalf("Endpoint() error = %v", err)
	}
	if ep.Tag != wire.TagWebSocket || ep.Host != "example.com" || ep.Port != 8080 {
		t.Errorf("Endpoint() = %+v", ep)
	}
}

func TestServersBindAllInterfacesByDefault(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"-s", "-P", "tcp", "-H", "10.0.0.5", "-p", "7000"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	ep, err := cfg.ListenEndpoint()
	if err != nil {
		t.Fatalf("ListenEndpoint() error = %v", err)
	}
	if ep.String() != "tcp://0.0.0.0:7000" {
		t.Errorf("ListenEndpoint() = %s, want tcp://0.0.0.0:7000", ep)
	}
	for _, ep := range cfg.EchoEndpoints() {
		if ep.Host != "0.0.0.0" {
			t.Errorf("EchoEndpoints() host = %q, want 0.0.0.0", ep.Host)
		}
	}
}

func TestBindAndURIChooseListenAddress(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bind flag", []string{"-s", "-P", "udp", "--bind", "127.0.0.1", "-p", "5000"}, "udp://127.0.0.1:5000"},
		{"uri", []string{"-s", "--bind", "127.0.0.1", "-u", "ws://192.168.1.2:9000"}, "ws://192.168.1.2:9000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.NewLoader().Load(tt.args)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			ep, err := cfg.ListenEndpoint()
			if err != nil {
				t.Fatalf("ListenEndpoint() error = %v", err)
			}
			if ep.String() != tt.want {
				t.Errorf("ListenEndpoint() = %s, want %s", ep, tt.want)
			}
		})
	}
}

func TestPow10(t *testing.T) {
	want := uint64(1)
	for n := 0; n <= config.MaxNum; n++ {
		got, err := config.Pow10(n)
		if err != nil {
			t.Fatalf("Pow10(%d) error = %v", n, err)
		}
		if got != want {
			t.Errorf("Pow10(%d) = %d, want %d", n, got, want)
		}
		want *= 10
	}
	if got, _ := config.Pow10(18); got != 1_000_000_000_000_000_000 {
		t.Errorf("Pow10(18) = %d", got)
	}
	for _, n := range []int{-1, 19, 100} {
		if _, err := config.Pow10(n); err == nil {
			t.Errorf("Pow10(%d) error = nil, want error", n)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"num too large", func(c *config.Config) { c.Num = 19 }, "num must be between 0 and 18"},
		{"negative num", func(c *config.Config) { c.Num = -1 }, "num must be between 0 and 18"},
		{"bad mode", func(c *config.Config) { c.Mode = "flood" }, "mode must be stream or echo"},
		{"bad protocol", func(c *config.Config) { c.Protocol = "sctp" }, "sctp"},
		{"bad uri", func(c *config.Config) { c.URI = "tcp://nohost" }, "missing port"},
		{"udp payload", func(c *config.Config) { c.PayloadSize = 70000 }, "payload-size must be <= 65000 for udp"},
		{"tcp payload", func(c *config.Config) { c.PayloadSize = 70000; c.Protocol = "tcp" }, ""},
		{"negative interval", func(c *config.Config) { c.Interval = -5 }, "interval must be >= 0"},
		{"zero grace", func(c *config.Config) { c.InactivityTimeout = 0 }, "inactivity-timeout must be > 0"},
		{"negative runs", func(c *config.Config) { c.Runs = -1 }, "runs must be >= 0"},
		{"port range", func(c *config.Config) { c.WSPort = 70000 }, "ws-port must be between 0 and 65535"},
		{"echo server without listeners", func(c *config.Config) {
			c.ServerMode, c.Mode = true, config.ModeEcho
			c.TCPPort, c.UDPPort = 0, 0
		}, "echo server needs at least one"},
		{"echo server ignores client protocol", func(c *config.Config) {
			c.ServerMode, c.Mode = true, config.ModeEcho
			c.Protocol = "bogus"
		}, ""},
		{"tracing protocol", func(c *config.Config) { c.Tracing.Protocol = "udp" }, "tracing protocol"},
		{"sample rate", func(c *config.Config) { c.Tracing.SampleRate = 1.5 }, "sample-rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			var verr config.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error type = %T, want ValidationError", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidationErrorAggregates(t *testing.T) {
	cfg := config.Default()
	cfg.Num = 40
	cfg.Runs = -2
	err := cfg.Validate()

	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %v, want ValidationError", err)
	}
	if got := len(verr.Issues()); got != 2 {
		t.Errorf("Issues() = %v, want 2 entries", verr.Issues())
	}
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/torosent/pacebench/internal/transport"
	"github.com/torosent/pacebench/internal/wire"
)

type Mode string

const (
	ModeStream Mode = "stream"
	ModeEcho   Mode = "echo"
)

const (
	// MaxNum is the largest exponent whose power of ten fits a 63-bit sequence index.
	MaxNum = 18
	// MaxUDPPayload keeps a stream message inside one datagram.
	MaxUDPPayload = 65000

	DefaultStreamInterval = 1000 // microseconds
	DefaultEchoInterval   = 100  // milliseconds
)

type Config struct {
	ServerMode        bool          `mapstructure:"server_mode"`
	Mode              Mode          `mapstructure:"mode"`
	Protocol          string        `mapstructure:"protocol"`
	Host              string        `mapstructure:"host"`
	Bind              string        `mapstructure:"bind"`
	Port              int           `mapstructure:"port"`
	URI               string        `mapstructure:"uri"`
	TCPPort           int           `mapstructure:"tcp_port"`
	UDPPort           int           `mapstructure:"udp_port"`
	WSPort            int           `mapstructure:"ws_port"`
	QUICPort          int           `mapstructure:"quic_port"`
	Num               int           `mapstructure:"num"`
	Interval          int           `mapstructure:"interval"`
	PayloadSize       int           `mapstructure:"payload_size"`
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`
	Runs              int           `mapstructure:"runs"`
	JSONOutput        bool          `mapstructure:"json_output"`
	Progress          bool          `mapstructure:"progress"`
	ProgressInterval  time.Duration `mapstructure:"progress_interval"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`
	LogLevel          string        `mapstructure:"log_level"`
	LogFormat         string        `mapstructure:"log_format"`
	Tracing           TracingConfig `mapstructure:"tracing"`
	ConfigFile        string        `mapstructure:"-"`
}

// TracingConfig configures OTLP span export. Tracing is off unless an endpoint is set
// here or through OTEL_EXPORTER_OTLP_ENDPOINT.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
}

// Default returns the configuration used when no flag or file overrides a value.
func Default() Config {
	return Config{
		Mode:              ModeStream,
		Protocol:          "udp",
		Host:              "127.0.0.1",
		Bind:              "0.0.0.0",
		Port:              4321,
		TCPPort:           1234,
		UDPPort:           4321,
		Num:               6,
		Interval:          DefaultStreamInterval,
		PayloadSize:       1024,
		InactivityTimeout: 5 * time.Second,
		Runs:              1,
		ProgressInterval:  time.Second,
		LogLevel:          "info",
		LogFormat:         "text",
		Tracing:           TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

// DefaultInterval returns the interval used for a mode when none is configured.
func DefaultInterval(m Mode) int {
	if m == ModeEcho {
		return DefaultEchoInterval
	}
	return DefaultStreamInterval
}

// Pow10 returns 10^n using exact integer arithmetic.
func Pow10(n int) (uint64, error) {
	if n < 0 || n > MaxNum {
		return 0, fmt.Errorf("num must be between 0 and %d, got %d", MaxNum, n)
	}
	v := uint64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v, nil
}

// Limit is the number of messages a client run sends.
func (c Config) Limit() uint64 {
	v, err := Pow10(c.Num)
	if err != nil {
		return 0
	}
	return v
}

// PaceInterval converts Interval to a duration: microseconds in stream mode and
// milliseconds in echo mode.
func (c Config) PaceInterval() time.Duration {
	if c.Mode == ModeEcho {
		return time.Duration(c.Interval) * time.Millisecond
	}
	return time.Duration(c.Interval) * time.Microsecond
}

// Endpoint is the client target.
func (c Config) Endpoint() (transport.Endpoint, error) {
	if uri := strings.TrimSpace(c.URI); uri != "" {
		return transport.ParseEndpoint(uri)
	}
	return transport.NewEndpoint(c.Protocol, c.Host, c.Port)
}

// ListenEndpoint is the stream server's listen address. A URI pins the address;
// otherwise the server binds Bind on Port.
func (c Config) ListenEndpoint() (transport.Endpoint, error) {
	if uri := strings.TrimSpace(c.URI); uri != "" {
		return transport.ParseEndpoint(uri)
	}
	return transport.NewEndpoint(c.Protocol, c.Bind, c.Port)
}

// EchoEndpoints lists the listeners of an echo server, one per enabled transport.
func (c Config) EchoEndpoints() []transport.Endpoint {
	ports := []struct {
		tag  wire.Tag
		port int
	}{
		{wire.TagTCP, c.TCPPort},
		{wire.TagUDP, c.UDPPort},
		{wire.TagWebSocket, c.WSPort},
		{wire.TagQUIC, c.QUICPort},
	}
	var eps []transport.Endpoint
	for _, p := range ports {
		if p.port > 0 {
			eps = append(eps, transport.Endpoint{Tag: p.tag, Host: c.Bind, Port: p.port})
		}
	}
	return eps
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	switch c.Mode {
	case ModeStream, ModeEcho:
	default:
		issues = append(issues, fmt.Sprintf("mode must be stream or echo, got %q", c.Mode))
	}

	if c.Num < 0 || c.Num > MaxNum {
		issues = append(issues, fmt.Sprintf("num must be between 0 and %d", MaxNum))
	}
	if c.Interval < 0 {
		issues = append(issues, "interval must be >= 0")
	}
	if c.PayloadSize < 0 {
		issues = append(issues, "payload-size must be >= 0")
	}
	if c.InactivityTimeout <= 0 {
		issues = append(issues, "inactivity-timeout must be > 0")
	}
	if c.Runs < 0 {
		issues = append(issues, "runs must be >= 0")
	}
	if c.ProgressInterval <= 0 {
		issues = append(issues, "progress-interval must be > 0")
	}

	issues = append(issues, validatePorts(c)...)

	needsEndpoint := !c.ServerMode || c.Mode == ModeStream
	if needsEndpoint {
		endpoint := c.Endpoint
		if c.ServerMode {
			endpoint = c.ListenEndpoint
		}
		ep, err := endpoint()
		if err != nil {
			issues = append(issues, err.Error())
		} else if ep.Tag == wire.TagUDP && c.Mode == ModeStream && c.PayloadSize > MaxUDPPayload {
			issues = append(issues, fmt.Sprintf("payload-size must be <= %d for udp", MaxUDPPayload))
		}
	}
	if c.ServerMode && c.Mode == ModeEcho && len(c.EchoEndpoints()) == 0 {
		issues = append(issues, "echo server needs at least one of tcp-port, udp-port, ws-port or quic-port")
	}

	issues = append(issues, validateTracing(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validatePorts(c Config) []string {
	var issues []string
	check := func(name string, port int) {
		if port < 0 || port > 65535 {
			issues = append(issues, fmt.Sprintf("%s must be between 0 and 65535", name))
		}
	}
	check("port", c.Port)
	check("tcp-port", c.TCPPort)
	check("udp-port", c.UDPPort)
	check("ws-port", c.WSPort)
	check("quic-port", c.QUICPort)
	return issues
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol must be grpc or http, got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing sample-rate must be between 0.0 and 1.0")
	}
	return issues
}

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pacebench",
		Short:         "Paced stream and echo benchmark over tcp, udp, ws and quic",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	def := Default()

	// Role
	flags.BoolP("server-mode", "s", false, "Run as server")
	flags.StringP("mode", "m", string(def.Mode), "Benchmark mode: 'stream' or 'echo'")

	// Client target and stream server address
	flags.StringP("protocol", "P", def.Protocol, "Transport: 'tcp', 'udp', 'ws' or 'quic'")
	flags.StringP("host", "H", def.Host, "Host to connect to (client)")
	flags.String("bind", def.Bind, "Address servers listen on")
	flags.IntP("port", "p", def.Port, "Port to connect to (client) or listen on (stream server)")
	flags.StringP("uri", "u", "", "Full endpoint URI such as udp://127.0.0.1:4321; overrides protocol, host and port")

	// Echo server listeners
	flags.Int("tcp-port", def.TCPPort, "Echo server TCP port (0 disables)")
	flags.Int("udp-port", def.UDPPort, "Echo server UDP port (0 disables)")
	flags.Int("ws-port", def.WSPort, "Echo server WebSocket port (0 disables)")
	flags.Int("quic-port", def.QUICPort, "Echo server QUIC port (0 disables)")

	// Pacing
	flags.IntP("num", "n", def.Num, "Send 10^num messages")
	flags.IntP("interval", "i", DefaultStreamInterval, "Interval between messages: microseconds in stream mode (default 1000), milliseconds in echo mode (default 100)")
	flags.IntP("payload-size", "S", def.PayloadSize, "Stream payload size in bytes")
	flags.Duration("inactivity-timeout", def.InactivityTimeout, "How long the stream server waits for the next message")
	flags.Int("runs", def.Runs, "Stream server: tracked runs before exiting (0 means unlimited)")

	// Output
	flags.Bool("json-output", false, "Emit JSON formatted report")
	flags.Bool("progress", false, "Print a periodic progress line to stderr")
	flags.Duration("progress-interval", def.ProgressInterval, "Interval between progress lines")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.String("log-level", def.LogLevel, "Log level: debug, info, warn or error")
	flags.String("log-format", def.LogFormat, "Log format: text or json")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", def.Tracing.Protocol, "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", def.Tracing.SampleRate, "Trace sampling ratio between 0.0 and 1.0")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("server-mode") {
		val, err := fs.GetBool("server-mode")
		if err != nil {
			return err
		}
		cfg.ServerMode = val
	}
	if fs.Changed("mode") {
		val, err := fs.GetString("mode")
		if err != nil {
			return err
		}
		cfg.Mode = Mode(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("protocol") {
		val, err := fs.GetString("protocol")
		if err != nil {
			return err
		}
		cfg.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("host") {
		val, err := fs.GetString("host")
		if err != nil {
			return err
		}
		cfg.Host = strings.TrimSpace(val)
	}
	if fs.Changed("bind") {
		val, err := fs.GetString("bind")
		if err != nil {
			return err
		}
		cfg.Bind = strings.TrimSpace(val)
	}
	if fs.Changed("uri") {
		val, err := fs.GetString("uri")
		if err != nil {
			return err
		}
		cfg.URI = strings.TrimSpace(val)
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"port", &cfg.Port},
		{"tcp-port", &cfg.TCPPort},
		{"udp-port", &cfg.UDPPort},
		{"ws-port", &cfg.WSPort},
		{"quic-port", &cfg.QUICPort},
		{"num", &cfg.Num},
		{"interval", &cfg.Interval},
		{"payload-size", &cfg.PayloadSize},
		{"runs", &cfg.Runs},
	}
	for _, f := range ints {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetInt(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	if fs.Changed("inactivity-timeout") {
		val, err := fs.GetDuration("inactivity-timeout")
		if err != nil {
			return err
		}
		cfg.InactivityTimeout = val
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("progress") {
		val, err := fs.GetBool("progress")
		if err != nil {
			return err
		}
		cfg.Progress = val
	}
	if fs.Changed("progress-interval") {
		val, err := fs.GetDuration("progress-interval")
		if err != nil {
			return err
		}
		cfg.ProgressInterval = val
	}
	if fs.Changed("metrics-addr") {
		val, err := fs.GetString("metrics-addr")
		if err != nil {
			return err
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = val
	}
	if fs.Changed("log-format") {
		val, err := fs.GetString("log-format")
		if err != nil {
			return err
		}
		cfg.LogFormat = val
	}

	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	return nil
}

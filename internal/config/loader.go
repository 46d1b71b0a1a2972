package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and an optional configuration file. Flags take
// precedence over the file, which takes precedence over the defaults.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	settings := cfgViper.AllSettings()

	cfg := Default()
	cfg.ConfigFile = configPath

	intervalSet, err := applyConfigSettings(&cfg, settings)
	if err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}
	if !intervalSet && !flagSet.Changed("interval") {
		cfg.Interval = DefaultInterval(cfg.Mode)
	}

	return &cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct. It
// reports whether the file set an explicit interval.
func applyConfigSettings(cfg *Config, raw map[string]any) (bool, error) {
	if len(raw) == 0 {
		return false, nil
	}
	s := newFileSettings(raw)

	s.boolean("server_mode", &cfg.ServerMode)
	if s.str("mode", (*string)(&cfg.Mode)) {
		cfg.Mode = Mode(strings.ToLower(string(cfg.Mode)))
	}
	if s.str("protocol", &cfg.Protocol) {
		cfg.Protocol = strings.ToLower(cfg.Protocol)
	}
	s.str("host", &cfg.Host)
	s.str("bind", &cfg.Bind)
	s.str("uri", &cfg.URI)
	s.integer("port", &cfg.Port)
	s.integer("tcp_port", &cfg.TCPPort)
	s.integer("udp_port", &cfg.UDPPort)
	s.integer("ws_port", &cfg.WSPort)
	s.integer("quic_port", &cfg.QUICPort)

	s.integer("num", &cfg.Num)
	intervalSet := s.integer("interval", &cfg.Interval)
	s.integer("payload_size", &cfg.PayloadSize)
	s.duration("inactivity_timeout", &cfg.InactivityTimeout)
	s.integer("runs", &cfg.Runs)

	s.boolean("json_output", &cfg.JSONOutput)
	s.boolean("progress", &cfg.Progress)
	s.duration("progress_interval", &cfg.ProgressInterval)
	s.str("metrics_addr", &cfg.MetricsAddr)
	s.str("log_level", &cfg.LogLevel)
	s.str("log_format", &cfg.LogFormat)

	if t, ok := s.section("tracing"); ok {
		tc := &cfg.Tracing
		t.str("endpoint", &tc.Endpoint)
		if t.str("protocol", &tc.Protocol) {
			tc.Protocol = strings.ToLower(tc.Protocol)
		}
		t.str("service_name", &tc.ServiceName)
		t.boolean("insecure", &tc.Insecure)
		t.float("sample_rate", &tc.SampleRate)
		if err := t.Err(); err != nil {
			return false, fmt.Errorf("tracing: %w", err)
		}
	}

	return intervalSet, s.Err()
}

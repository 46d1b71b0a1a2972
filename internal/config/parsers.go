// Package config loads benchmark settings from flags and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

var keyFolder = strings.NewReplacer("-", "", "_", "")

// settingKey folds a config file key so payload_size, payload-size and payloadSize
// address the same setting.
func settingKey(k string) string {
	return keyFolder.Replace(strings.ToLower(strings.TrimSpace(k)))
}

// fileSettings reads typed values out of a decoded config file. The first coercion
// error sticks; later reads are skipped and Err reports it.
type fileSettings struct {
	values map[string]any
	err    error
}

func newFileSettings(raw map[string]any) *fileSettings {
	values := make(map[string]any, len(raw))
	for k, v := range raw {
		values[settingKey(k)] = v
	}
	return &fileSettings{values: values}
}

func (s *fileSettings) Err() error { return s.err }

func (s *fileSettings) lookup(key string) (any, bool) {
	if s.err != nil {
		return nil, false
	}
	v, ok := s.values[settingKey(key)]
	return v, ok
}

func (s *fileSettings) fail(key string, err error) {
	if s.err == nil {
		s.err = fmt.Errorf("%s: %w", key, err)
	}
}

// str sets *dst when key is present and reports whether it was.
func (s *fileSettings) str(key string, dst *string) bool {
	raw, ok := s.lookup(key)
	if !ok {
		return false
	}
	v, err := cast.ToStringE(raw)
	if err != nil {
		s.fail(key, err)
		return false
	}
	*dst = strings.TrimSpace(v)
	return true
}

func (s *fileSettings) integer(key string, dst *int) bool {
	raw, ok := s.lookup(key)
	if !ok {
		return false
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		s.fail(key, err)
		return false
	}
	*dst = v
	return true
}

func (s *fileSettings) boolean(key string, dst *bool) bool {
	raw, ok := s.lookup(key)
	if !ok {
		return false
	}
	v, err := cast.ToBoolE(raw)
	if err != nil {
		s.fail(key, err)
		return false
	}
	*dst = v
	return true
}

func (s *fileSettings) float(key string, dst *float64) bool {
	raw, ok := s.lookup(key)
	if !ok {
		return false
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		s.fail(key, err)
		return false
	}
	*dst = v
	return true
}

// duration accepts Go duration strings; bare numbers are seconds.
func (s *fileSettings) duration(key string, dst *time.Duration) bool {
	raw, ok := s.lookup(key)
	if !ok {
		return false
	}
	var (
		v   time.Duration
		err error
	)
	switch raw.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		var secs float64
		secs, err = cast.ToFloat64E(raw)
		v = time.Duration(secs * float64(time.Second))
	default:
		v, err = cast.ToDurationE(raw)
	}
	if err != nil {
		s.fail(key, err)
		return false
	}
	*dst = v
	return true
}

// section returns a nested table such as tracing.
func (s *fileSettings) section(key string) (*fileSettings, bool) {
	raw, ok := s.lookup(key)
	if !ok {
		return nil, false
	}
	m, err := cast.ToStringMapE(raw)
	if err != nil {
		s.fail(key, err)
		return nil, false
	}
	return newFileSettings(m), true
}

package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/park285/baduk-omok-server/internal/clock"
)

//go:embed presets.yaml
var defaultPresets []byte

// Presets maps a time-control name to its byoyomi settings.
type Presets map[string]clock.TimeControl

type presetFile struct {
	Presets map[string]clock.TimeControl `yaml:"presets"`
}

// LoadPresets parses the embedded presets and merges path on top when set.
func LoadPresets(path string) (Presets, error) {
	out, err := parsePresets(defaultPresets)
	if err != nil {
		return nil, fmt.Errorf("embedded presets: %w", err)
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return out, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	extra, err := parsePresets(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for k, v := range extra {
		out[k] = v
	}
	return out, nil
}

func parsePresets(raw []byte) (Presets, error) {
	var f presetFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	out := make(Presets, len(f.Presets))
	for name, tc := range f.Presets {
		if tc.MainTime < 0 || tc.PeriodTime < 0 || tc.Periods < 0 {
			return nil, fmt.Errorf("preset %q has negative values", name)
		}
		out[strings.ToLower(strings.TrimSpace(name))] = tc
	}
	return out, nil
}

// Names lists preset names in order.
func (p Presets) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Resolve accepts a preset name or an inline "main/period/periods" triple.
func (p Presets) Resolve(value string) (clock.TimeControl, error) {
	s := strings.ToLower(strings.TrimSpace(value))
	if tc, ok := p[s]; ok {
		return tc, nil
	}
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return clock.TimeControl{}, fmt.Errorf("unknown preset %q (have %s)", value, strings.Join(p.Names(), ", "))
	}
	main, err := time.ParseDuration(strings.TrimSpace(parts[0]))
	if err != nil {
		return clock.TimeControl{}, fmt.Errorf("main time: %w", err)
	}
	period, err := time.ParseDuration(strings.TrimSpace(parts[1]))
	if err != nil {
		return clock.TimeControl{}, fmt.Errorf("period time: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return clock.TimeControl{}, fmt.Errorf("periods: %w", err)
	}
	if main < 0 || period < 0 || n < 0 {
		return clock.TimeControl{}, fmt.Errorf("time control %q has negative values", value)
	}
	return clock.TimeControl{MainTime: main, PeriodTime: period, Periods: n}, nil
}

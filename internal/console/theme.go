package console

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// ThemeFile is a custom color theme loaded from YAML.
type ThemeFile struct {
	// Name is the theme's display name
	Name string `yaml:"name"`
	// Version is the theme file format version (currently "1")
	Version string `yaml:"version"`
	// Colors overrides entries of the default palette
	Colors ThemeColors `yaml:"colors"`
}

// ThemeColors holds hex colors (#RGB or #RRGGBB). Empty entries keep the
// default.
type ThemeColors struct {
	PeerA   string `yaml:"peer_a,omitempty"`
	PeerB   string `yaml:"peer_b,omitempty"`
	System  string `yaml:"system,omitempty"`
	Error   string `yaml:"error,omitempty"`
	Info    string `yaml:"info,omitempty"`
	Success string `yaml:"success,omitempty"`
	Muted   string `yaml:"muted,omitempty"`
}

// hexColorRegex validates hex color format.
var hexColorRegex = regexp.MustCompile(`^#([0-9A-Fa-f]{3}|[0-9A-Fa-f]{6})$`)

// LoadThemeFile loads a theme from a YAML file.
func LoadThemeFile(path string) (*ThemeFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading theme file: %w", err)
	}

	var theme ThemeFile
	if err := yaml.Unmarshal(data, &theme); err != nil {
		return nil, fmt.Errorf("parsing theme file: %w", err)
	}

	if err := theme.Validate(); err != nil {
		return nil, fmt.Errorf("invalid theme: %w", err)
	}

	return &theme, nil
}

// Validate checks that the theme file is well-formed.
func (t *ThemeFile) Validate() error {
	if t.Name == "" {
		return errors.New("theme name is required")
	}
	if t.Version != "1" {
		return fmt.Errorf("unsupported theme version: %q (supported: 1)", t.Version)
	}

	colors := []struct {
		name  string
		value string
	}{
		{"peer_a", t.Colors.PeerA},
		{"peer_b", t.Colors.PeerB},
		{"system", t.Colors.System},
		{"error", t.Colors.Error},
		{"info", t.Colors.Info},
		{"success", t.Colors.Success},
		{"muted", t.Colors.Muted},
	}
	for _, c := range colors {
		if c.value != "" && !hexColorRegex.MatchString(c.value) {
			return fmt.Errorf("color '%s' has invalid format: %s (expected #RGB or #RRGGBB)", c.name, c.value)
		}
	}
	return nil
}

// Apply returns base with the theme's colors laid over it.
func (t *ThemeFile) Apply(base Palette) Palette {
	set := func(dst *lipgloss.Color, v string) {
		if v != "" {
			*dst = lipgloss.Color(v)
		}
	}
	p := base
	set(&p.PeerA, t.Colors.PeerA)
	set(&p.PeerB, t.Colors.PeerB)
	set(&p.System, t.Colors.System)
	set(&p.Error, t.Colors.Error)
	set(&p.Info, t.Colors.Info)
	set(&p.Success, t.Colors.Success)
	set(&p.Muted, t.Colors.Muted)
	return p
}

// SampleTheme returns a complete theme close to the default palette, as a
// starting point for customization.
func SampleTheme() *ThemeFile {
	return &ThemeFile{
		Name:    "custom",
		Version: "1",
		Colors: ThemeColors{
			PeerA:   "#00AFAF",
			PeerB:   "#5FAF00",
			System:  "#D7AF00",
			Error:   "#D70000",
			Info:    "#0087D7",
			Success: "#5FAF00",
			Muted:   "#808080",
		},
	}
}

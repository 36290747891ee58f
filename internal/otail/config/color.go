package config

import (
	"fmt"
	"strings"
)

// Color names a terminal colour used by a ColouringRule. The zero value is
// None (no colour applied).
type Color int

// Supported colours, matching the basic ANSI palette.
const (
	None Color = iota
	Black
	Red
	Green
	Blue
	Yellow
	Magenta
	Cyan
	White
	Gray
)

var colorNames = [...]string{
	None:    "none",
	Black:   "black",
	Red:     "red",
	Green:   "green",
	Blue:    "blue",
	Yellow:  "yellow",
	Magenta: "magenta",
	Cyan:    "cyan",
	White:   "white",
	Gray:    "gray",
}

func (c Color) String() string {
	if int(c) < 0 || int(c) >= len(colorNames) {
		return "none"
	}
	return colorNames[c]
}

// ParseColor resolves a colour name (case-insensitive) to a Color. An empty
// or unrecognised string resolves to None.
func ParseColor(s string) Color {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range colorNames {
		if name == s {
			return Color(c)
		}
	}
	return None
}

// MarshalYAML renders the colour by name.
func (c Color) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

// UnmarshalYAML resolves a colour by name.
func (c *Color) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return fmt.Errorf("color: %w", err)
	}
	*c = ParseColor(s)
	return nil
}

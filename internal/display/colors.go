package display

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Color identifies a terminal foreground color
type Color int

const (
	ColorReset Color = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
	ColorBrightRed
	ColorBrightGreen
	ColorBrightYellow
	ColorBrightBlue
	ColorBrightCyan
)

// ColorTheme maps message roles to colors
type ColorTheme struct {
	Primary   Color
	Success   Color
	Warning   Color
	Error     Color
	Info      Color
	Muted     Color
	Highlight Color
}

// ColorSystem applies theme colors to text when the terminal supports it
type ColorSystem interface {
	Colorize(text string, clr Color) string
	Sprintf(clr Color, format string, args ...interface{}) string
	IsColorSupported() bool
	Theme() ColorTheme
}

type colorSystem struct {
	theme          ColorTheme
	colorSupported bool
	profile        termenv.Profile
	colorMap       map[Color]*color.Color
}

// NewColorSystem creates a color system with terminal detection. Colors
// are dropped automatically when stdout is not a terminal or NO_COLOR is
// set.
func NewColorSystem(theme ColorTheme) ColorSystem {
	cs := &colorSystem{
		theme:          theme,
		colorSupported: detectColorSupport(),
		profile:        termenv.ColorProfile(),
	}
	cs.initColorMap()
	return cs
}

// NewPlainColorSystem creates a color system that never emits escape
// codes, regardless of terminal capabilities
func NewPlainColorSystem(theme ColorTheme) ColorSystem {
	cs := &colorSystem{
		theme:          theme,
		colorSupported: false,
		profile:        termenv.Ascii,
	}
	cs.initColorMap()
	return cs
}

func detectColorSupport() bool {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return false
	}
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	return true
}

func (cs *colorSystem) initColorMap() {
	cs.colorMap = map[Color]*color.Color{
		ColorReset:        color.New(color.Reset),
		ColorRed:          color.New(color.FgRed),
		ColorGreen:        color.New(color.FgGreen),
		ColorYellow:       color.New(color.FgYellow),
		ColorBlue:         color.New(color.FgBlue),
		ColorMagenta:      color.New(color.FgMagenta),
		ColorCyan:         color.New(color.FgCyan),
		ColorWhite:        color.New(color.FgWhite),
		ColorBrightRed:    color.New(color.FgHiRed),
		ColorBrightGreen:  color.New(color.FgHiGreen),
		ColorBrightYellow: color.New(color.FgHiYellow),
		ColorBrightBlue:   color.New(color.FgHiBlue),
		ColorBrightCyan:   color.New(color.FgHiCyan),
	}
	for _, c := range cs.colorMap {
		if cs.colorSupported {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

// Colorize applies the color to text when colors are supported
func (cs *colorSystem) Colorize(text string, clr Color) string {
	if !cs.colorSupported || clr == ColorReset {
		return text
	}
	if fn, ok := cs.colorMap[clr]; ok {
		return fn.Sprint(text)
	}
	return text
}

// Sprintf formats and colorizes in one step
func (cs *colorSystem) Sprintf(clr Color, format string, args ...interface{}) string {
	return cs.Colorize(fmt.Sprintf(format, args...), clr)
}

// IsColorSupported reports whether escape codes will be emitted
func (cs *colorSystem) IsColorSupported() bool {
	return cs.colorSupported
}

// Theme returns the active color theme
func (cs *colorSystem) Theme() ColorTheme {
	return cs.theme
}

// DarkColorTheme returns a theme for dark terminals
func DarkColorTheme() ColorTheme {
	return ColorTheme{
		Primary:   ColorBrightBlue,
		Success:   ColorBrightGreen,
		Warning:   ColorBrightYellow,
		Error:     ColorBrightRed,
		Info:      ColorCyan,
		Muted:     ColorWhite,
		Highlight: ColorBrightCyan,
	}
}

// LightColorTheme returns a theme for light terminals
func LightColorTheme() ColorTheme {
	return ColorTheme{
		Primary:   ColorBlue,
		Success:   ColorGreen,
		Warning:   ColorYellow,
		Error:     ColorRed,
		Info:      ColorCyan,
		Muted:     ColorMagenta,
		Highlight: ColorBlue,
	}
}

// PlainTextTheme returns a theme with no colors at all
func PlainTextTheme() ColorTheme {
	return ColorTheme{
		Primary:   ColorReset,
		Success:   ColorReset,
		Warning:   ColorReset,
		Error:     ColorReset,
		Info:      ColorReset,
		Muted:     ColorReset,
		Highlight: ColorReset,
	}
}

// GetThemeByName resolves a theme name, falling back to the dark theme
func GetThemeByName(name string) ColorTheme {
	switch name {
	case "light":
		return LightColorTheme()
	case "plain", "none":
		return PlainTextTheme()
	default:
		return DarkColorTheme()
	}
}

package display

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// FormatBytes renders a byte count with a binary unit suffix
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	value := float64(n)
	exp := 0
	for value >= unit && exp < 4 {
		value /= unit
		exp++
	}
	suffixes := []string{"KB", "MB", "GB", "TB"}
	return fmt.Sprintf("%.1f %s", value, suffixes[exp-1])
}

// FormatDuration renders a duration at a precision a human cares about:
// milliseconds under a second, otherwise tenths of a second
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

// FormatTime renders a timestamp in the fixed layout used across command
// output
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

// Encoder writes values in one structured output format
type Encoder struct {
	format OutputFormat
	writer io.Writer
}

// NewEncoder creates an encoder for the given format and writer
func NewEncoder(format OutputFormat, writer io.Writer) *Encoder {
	return &Encoder{format: format, writer: writer}
}

// Encode marshals v and writes it followed by a newline where the format
// needs one
func (e *Encoder) Encode(v interface{}) error {
	switch e.format {
	case FormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode JSON output: %w", err)
		}
		_, err = fmt.Fprintln(e.writer, string(data))
		return err

	case FormatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode YAML output: %w", err)
		}
		_, err = fmt.Fprint(e.writer, string(data))
		return err

	default:
		return fmt.Errorf("unsupported output format: %s", e.format)
	}
}

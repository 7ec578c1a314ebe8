package display

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// OutputFormat selects how command results are rendered
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// Options configures a display service
type Options struct {
	ColorEnabled bool
	Theme        string
	Format       OutputFormat
	Quiet        bool
	Writer       io.Writer
}

// Service renders human-facing command output: status lines, headers,
// tables, and structured encodings of result values. Log output goes
// through the logging package instead; the two never share a writer.
type Service struct {
	opts   Options
	colors ColorSystem
	writer io.Writer
}

// NewService creates a display service. A nil writer defaults to stdout.
func NewService(opts Options) *Service {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	if opts.Format == "" {
		opts.Format = FormatTable
	}

	theme := GetThemeByName(opts.Theme)
	var colors ColorSystem
	if opts.ColorEnabled {
		colors = NewColorSystem(theme)
	} else {
		colors = NewPlainColorSystem(theme)
	}

	return &Service{
		opts:   opts,
		colors: colors,
		writer: opts.Writer,
	}
}

// Format returns the configured output format
func (s *Service) Format() OutputFormat {
	return s.opts.Format
}

// Structured reports whether results should be machine-encoded rather
// than rendered as text
func (s *Service) Structured() bool {
	return s.opts.Format == FormatJSON || s.opts.Format == FormatYAML
}

// Header prints a prominent section header
func (s *Service) Header(title string) {
	if s.opts.Quiet || s.Structured() {
		return
	}

	separator := strings.Repeat("=", len(title)+4)
	header := fmt.Sprintf("\n%s\n  %s\n%s\n", separator, title, separator)
	fmt.Fprint(s.writer, s.colors.Colorize(header, s.colors.Theme().Primary))
}

// Success prints a success status line
func (s *Service) Success(message string) {
	s.statusLine("OK", message, s.colors.Theme().Success)
}

// Warning prints a warning status line
func (s *Service) Warning(message string) {
	s.statusLine("WARN", message, s.colors.Theme().Warning)
}

// Error prints an error status line. Errors print even in quiet mode.
func (s *Service) Error(message string) {
	prefix := s.colors.Colorize("[ERROR]", s.colors.Theme().Error)
	fmt.Fprintf(s.writer, "%s %s\n", prefix, message)
}

// Info prints an informational status line
func (s *Service) Info(message string) {
	s.statusLine("INFO", message, s.colors.Theme().Info)
}

// Printf prints formatted text, suppressed in quiet mode
func (s *Service) Printf(format string, args ...interface{}) {
	if s.opts.Quiet {
		return
	}
	fmt.Fprintf(s.writer, format, args...)
}

// Table renders headers and rows in the configured format. Table format
// draws a bordered table; JSON and YAML emit one object per row keyed by
// header.
func (s *Service) Table(headers []string, rows [][]string) error {
	if s.Structured() {
		data := make([]map[string]string, 0, len(rows))
		for _, row := range rows {
			entry := make(map[string]string, len(headers))
			for i, header := range headers {
				if i < len(row) {
					entry[header] = row[i]
				}
			}
			data = append(data, entry)
		}
		return s.Encode(data)
	}

	formatter := s.NewTable()
	formatter.SetHeaders(headers)
	for _, row := range rows {
		formatter.AddRow(row)
	}
	formatter.RenderTo(s.writer)
	return nil
}

// NewTable returns a table formatter sharing the service's color setup
func (s *Service) NewTable() TableFormatter {
	return NewTableFormatter(s.colors)
}

// Encode writes v in the configured structured format. Table format has
// no generic encoding and reports an error.
func (s *Service) Encode(v interface{}) error {
	if !s.Structured() {
		return fmt.Errorf("format %q has no structured encoding", s.opts.Format)
	}
	return NewEncoder(s.opts.Format, s.writer).Encode(v)
}

// Colors exposes the color system for callers composing their own output
func (s *Service) Colors() ColorSystem {
	return s.colors
}

// Helper methods

func (s *Service) statusLine(level, message string, clr Color) {
	if s.opts.Quiet {
		return
	}
	prefix := s.colors.Colorize("["+level+"]", clr)
	fmt.Fprintf(s.writer, "%s %s\n", prefix, message)
}

package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// TableFormatter builds fixed-width text tables
type TableFormatter interface {
	SetHeaders(headers []string)
	AddRow(row []string)
	SetColumnAlignment(column int, alignment Alignment)
	SetStyle(style TableStyle)
	Render() string
	RenderTo(writer io.Writer)
}

// Alignment positions cell content within its column
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// TableStyle defines the borders and spacing of a table
type TableStyle struct {
	Name            string
	Borders         BorderSet
	HeaderSeparator bool
	Padding         int
	MaxWidth        int // 0 means fit the terminal
}

// BorderSet holds the characters drawn around cells
type BorderSet struct {
	TopLeft     string
	TopRight    string
	BottomLeft  string
	BottomRight string
	Horizontal  string
	Vertical    string
	Cross       string
	TopTee      string
	BottomTee   string
	LeftTee     string
	RightTee    string
}

var (
	// DefaultTableStyle draws plain ASCII borders
	DefaultTableStyle = TableStyle{
		Name:            "default",
		Borders:         asciiBorders,
		HeaderSeparator: true,
		Padding:         1,
	}

	// RoundedTableStyle draws Unicode box borders
	RoundedTableStyle = TableStyle{
		Name:            "rounded",
		Borders:         roundedBorders,
		HeaderSeparator: true,
		Padding:         1,
	}

	// MinimalTableStyle draws no borders at all
	MinimalTableStyle = TableStyle{
		Name:    "minimal",
		Padding: 1,
	}
)

var (
	asciiBorders = BorderSet{
		TopLeft: "+", TopRight: "+", BottomLeft: "+", BottomRight: "+",
		Horizontal: "-", Vertical: "|", Cross: "+",
		TopTee: "+", BottomTee: "+", LeftTee: "+", RightTee: "+",
	}

	roundedBorders = BorderSet{
		TopLeft: "╭", TopRight: "╮", BottomLeft: "╰", BottomRight: "╯",
		Horizontal: "─", Vertical: "│", Cross: "┼",
		TopTee: "┬", BottomTee: "┴", LeftTee: "├", RightTee: "┤",
	}
)

// GetTableStyleByName resolves a style name, falling back to the default
func GetTableStyleByName(name string) TableStyle {
	switch name {
	case "rounded":
		return RoundedTableStyle
	case "minimal":
		return MinimalTableStyle
	default:
		return DefaultTableStyle
	}
}

type tableFormatter struct {
	headers       []string
	rows          [][]string
	alignments    map[int]Alignment
	style         TableStyle
	colors        ColorSystem
	terminalWidth int
}

// NewTableFormatter creates a table formatter using the default style
func NewTableFormatter(colors ColorSystem) TableFormatter {
	return &tableFormatter{
		alignments:    make(map[int]Alignment),
		style:         DefaultTableStyle,
		colors:        colors,
		terminalWidth: terminalWidth(),
	}
}

// SetHeaders sets the header row
func (tf *tableFormatter) SetHeaders(headers []string) {
	tf.headers = headers
}

// AddRow appends a data row
func (tf *tableFormatter) AddRow(row []string) {
	tf.rows = append(tf.rows, row)
}

// SetColumnAlignment sets the alignment of one column
func (tf *tableFormatter) SetColumnAlignment(column int, alignment Alignment) {
	tf.alignments[column] = alignment
}

// SetStyle replaces the table style
func (tf *tableFormatter) SetStyle(style TableStyle) {
	tf.style = style
}

// Render returns the table as a string
func (tf *tableFormatter) Render() string {
	if len(tf.headers) == 0 && len(tf.rows) == 0 {
		return ""
	}

	widths := tf.columnWidths()
	widths = tf.fitWidths(widths)

	var out strings.Builder
	bordered := tf.style.Borders.Horizontal != ""

	if bordered {
		out.WriteString(tf.borderLine(widths, tf.style.Borders.TopLeft, tf.style.Borders.TopTee, tf.style.Borders.TopRight))
		out.WriteString("\n")
	}
	if len(tf.headers) > 0 {
		out.WriteString(tf.renderRow(tf.headers, widths, true))
		out.WriteString("\n")
		if bordered && tf.style.HeaderSeparator {
			out.WriteString(tf.borderLine(widths, tf.style.Borders.LeftTee, tf.style.Borders.Cross, tf.style.Borders.RightTee))
			out.WriteString("\n")
		}
	}
	for _, row := range tf.rows {
		out.WriteString(tf.renderRow(row, widths, false))
		out.WriteString("\n")
	}
	if bordered {
		out.WriteString(tf.borderLine(widths, tf.style.Borders.BottomLeft, tf.style.Borders.BottomTee, tf.style.Borders.BottomRight))
		out.WriteString("\n")
	}

	return out.String()
}

// RenderTo writes the table to the writer
func (tf *tableFormatter) RenderTo(writer io.Writer) {
	fmt.Fprint(writer, tf.Render())
}

// Helper methods

func (tf *tableFormatter) columnCount() int {
	count := len(tf.headers)
	for _, row := range tf.rows {
		if len(row) > count {
			count = len(row)
		}
	}
	return count
}

func (tf *tableFormatter) columnWidths() []int {
	count := tf.columnCount()
	widths := make([]int, count)

	for i, header := range tf.headers {
		widths[i] = utf8.RuneCountInString(header)
	}
	for _, row := range tf.rows {
		for i, cell := range row {
			if w := utf8.RuneCountInString(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for i := range widths {
		widths[i] += tf.style.Padding * 2
	}
	return widths
}

// fitWidths shrinks columns proportionally when the table would overflow
// the terminal
func (tf *tableFormatter) fitWidths(widths []int) []int {
	maxWidth := tf.style.MaxWidth
	if maxWidth == 0 {
		maxWidth = tf.terminalWidth
	}
	if maxWidth <= 0 || len(widths) == 0 {
		return widths
	}

	total := 0
	for _, w := range widths {
		total += w
	}
	if tf.style.Borders.Vertical != "" {
		total += len(widths) + 1
	}
	if total <= maxWidth {
		return widths
	}

	minWidth := tf.style.Padding*2 + 3
	excess := total - maxWidth
	reduction := excess/len(widths) + 1
	for i := range widths {
		if widths[i]-reduction < minWidth {
			widths[i] = minWidth
		} else {
			widths[i] -= reduction
		}
	}
	return widths
}

func (tf *tableFormatter) borderLine(widths []int, left, mid, right string) string {
	var out strings.Builder
	out.WriteString(left)
	for i, width := range widths {
		out.WriteString(strings.Repeat(tf.style.Borders.Horizontal, width))
		if i < len(widths)-1 {
			out.WriteString(mid)
		}
	}
	out.WriteString(right)
	return out.String()
}

func (tf *tableFormatter) renderRow(row []string, widths []int, isHeader bool) string {
	var out strings.Builder
	vertical := tf.style.Borders.Vertical

	out.WriteString(vertical)
	for i, width := range widths {
		var cell string
		if i < len(row) {
			cell = row[i]
		}
		out.WriteString(tf.formatCell(cell, width, tf.alignments[i], isHeader))
		out.WriteString(vertical)
	}
	return out.String()
}

func (tf *tableFormatter) formatCell(content string, width int, alignment Alignment, isHeader bool) string {
	contentWidth := width - tf.style.Padding*2
	if contentWidth < 0 {
		contentWidth = 0
	}

	if utf8.RuneCountInString(content) > contentWidth {
		runes := []rune(content)
		if contentWidth > 3 {
			content = string(runes[:contentWidth-3]) + "..."
		} else {
			content = string(runes[:contentWidth])
		}
	}

	fill := contentWidth - utf8.RuneCountInString(content)
	if isHeader && tf.colors != nil {
		content = tf.colors.Colorize(content, tf.colors.Theme().Primary)
	}

	leftPad, rightPad := tf.style.Padding, tf.style.Padding
	if alignment == AlignRight {
		leftPad += fill
	} else {
		rightPad += fill
	}
	return strings.Repeat(" ", leftPad) + content + strings.Repeat(" ", rightPad)
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 120
	}
	return width
}

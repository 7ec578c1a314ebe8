package display

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
		{2 * 1024 * 1024 * 1024 * 1024, "2.0 TB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{-5 * time.Second, "0s"},
		{437 * time.Millisecond, "437ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m30s"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := FormatTime(ts); got != "2024-01-02 03:04:05" {
		t.Errorf("FormatTime() = %q", got)
	}
	if got := FormatTime(time.Time{}); got != "-" {
		t.Errorf("FormatTime(zero) = %q, want -", got)
	}
}

func TestEncoderJSON(t *testing.T) {
	var buf bytes.Buffer
	encoder := NewEncoder(FormatJSON, &buf)

	if err := encoder.Encode(map[string]int{"objects": 3}); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var decoded map[string]int
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["objects"] != 3 {
		t.Errorf("decoded objects = %d, want 3", decoded["objects"])
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Error("JSON output should end with a newline")
	}
}

func TestEncoderYAML(t *testing.T) {
	var buf bytes.Buffer
	encoder := NewEncoder(FormatYAML, &buf)

	if err := encoder.Encode(map[string]string{"root": "srv1/srv1_2024-01-02-03-04-05"}); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var decoded map[string]string
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if decoded["root"] != "srv1/srv1_2024-01-02-03-04-05" {
		t.Errorf("decoded root = %q", decoded["root"])
	}
}

func TestEncoderRejectsTableFormat(t *testing.T) {
	encoder := NewEncoder(FormatTable, &bytes.Buffer{})
	if err := encoder.Encode("anything"); err == nil {
		t.Error("Encode() accepted the table format")
	}
}

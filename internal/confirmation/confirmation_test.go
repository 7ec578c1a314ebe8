package confirmation

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"mongo-blob-backup/internal/display"
)

func newTestService(t *testing.T, answers string) (Service, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	disp := display.NewService(display.Options{Writer: buf})
	return NewServiceWithInput(disp, strings.NewReader(answers)), buf
}

func testPrompt() RestorePrompt {
	return RestorePrompt{
		Snapshot: "srv1/srv1_2024-01-02-03-04-05",
		Taken:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Target:   "mongodb://localhost:27017",
		Units:    3,
	}
}

func TestConfirmRestoreAccepts(t *testing.T) {
	tests := []struct {
		name    string
		answers string
		want    bool
	}{
		{"yes", "y\n", true},
		{"yes spelled out", "yes\n", true},
		{"no", "n\n", false},
		{"empty defaults to no", "\n", false},
		{"uppercase", "Y\n", true},
		{"retries after junk", "maybe\ny\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, tt.answers)
			got, err := svc.ConfirmRestore(testPrompt(), false)
			if err != nil {
				t.Fatalf("ConfirmRestore() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ConfirmRestore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfirmRestoreAssumeYes(t *testing.T) {
	svc, buf := newTestService(t, "")

	got, err := svc.ConfirmRestore(testPrompt(), true)
	if err != nil {
		t.Fatalf("ConfirmRestore() error = %v", err)
	}
	if !got {
		t.Error("ConfirmRestore() with assumeYes = false, want true")
	}
	if strings.Contains(buf.String(), "[y/N]") {
		t.Error("assumeYes still prompted for input")
	}
}

func TestConfirmRestoreEOFDeclines(t *testing.T) {
	svc, _ := newTestService(t, "")

	got, err := svc.ConfirmRestore(testPrompt(), false)
	if err != nil {
		t.Fatalf("ConfirmRestore() error = %v", err)
	}
	if got {
		t.Error("ConfirmRestore() on closed input = true, want false")
	}
}

func TestConfirmRestoreShowsPlan(t *testing.T) {
	svc, buf := newTestService(t, "n\n")

	if _, err := svc.ConfirmRestore(testPrompt(), false); err != nil {
		t.Fatalf("ConfirmRestore() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"srv1/srv1_2024-01-02-03-04-05",
		"2024-01-02 03:04:05",
		"mongodb://localhost:27017",
		"drops every collection",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("plan output is missing %q:\n%s", want, out)
		}
	}
}

func TestConfirmRestoreAnswerWithoutNewline(t *testing.T) {
	// piped input may end without a trailing newline
	svc, _ := newTestService(t, "y")

	got, err := svc.ConfirmRestore(testPrompt(), false)
	if err != nil {
		t.Fatalf("ConfirmRestore() error = %v", err)
	}
	if !got {
		t.Error("ConfirmRestore() = false, want true")
	}
}

package confirmation

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mongo-blob-backup/internal/display"
	apperrors "mongo-blob-backup/internal/errors"
)

// Service asks the operator to approve destructive operations
type Service interface {
	ConfirmRestore(prompt RestorePrompt, assumeYes bool) (bool, error)
}

// RestorePrompt describes what an approved restore will do
type RestorePrompt struct {
	// Snapshot is the snapshot root in storage
	Snapshot string
	// Taken is zero when the snapshot carries no manifest
	Taken time.Time
	// Target is the connection target with credentials redacted
	Target string
	// Units is zero when the unit count is unknown
	Units int
}

type service struct {
	display *display.Service
	input   io.Reader
}

// NewService creates a confirmation service reading answers from stdin
func NewService(disp *display.Service) Service {
	return &service{display: disp, input: os.Stdin}
}

// NewServiceWithInput creates a confirmation service reading answers from
// the given reader
func NewServiceWithInput(disp *display.Service, input io.Reader) Service {
	return &service{display: disp, input: input}
}

// ConfirmRestore shows the restore plan and waits for a yes or no answer.
// An interrupt while waiting counts as an interruption, not a decline,
// so callers can exit with the matching code.
func (s *service) ConfirmRestore(prompt RestorePrompt, assumeYes bool) (bool, error) {
	s.displaySummary(prompt)

	if assumeYes {
		s.display.Info("Proceeding without confirmation")
		return true, nil
	}

	interruptChan := make(chan os.Signal, 1)
	signal.Notify(interruptChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interruptChan)

	reader := bufio.NewReader(s.input)

	for {
		s.display.Printf("Continue with the restore? [y/N]: ")

		inputChan := make(chan string, 1)
		errorChan := make(chan error, 1)
		go func() {
			line, err := reader.ReadString('\n')
			answer := strings.ToLower(strings.TrimSpace(line))
			if err != nil && answer == "" {
				errorChan <- err
				return
			}
			inputChan <- answer
		}()

		select {
		case <-interruptChan:
			s.display.Warning("Restore canceled")
			return false, apperrors.NewAppError(apperrors.ErrorTypeInterruption,
				"restore canceled at confirmation", nil)

		case err := <-errorChan:
			if err == io.EOF {
				s.display.Warning("No confirmation received; nothing restored")
				return false, nil
			}
			return false, apperrors.NewValidationError("failed to read confirmation input", err)

		case answer := <-inputChan:
			switch answer {
			case "y", "yes":
				return true, nil
			case "n", "no", "":
				return false, nil
			default:
				s.display.Warning(fmt.Sprintf("Unrecognized answer %q; enter y or n", answer))
			}
		}
	}
}

// Helper methods

func (s *service) displaySummary(prompt RestorePrompt) {
	s.display.Header("Restore Plan")
	s.display.Printf("  Snapshot: %s\n", prompt.Snapshot)
	if !prompt.Taken.IsZero() {
		s.display.Printf("  Taken:    %s\n", display.FormatTime(prompt.Taken))
	}
	if prompt.Units > 0 {
		s.display.Printf("  Units:    %d\n", prompt.Units)
	}
	if prompt.Target != "" {
		s.display.Printf("  Target:   %s\n", prompt.Target)
	}
	s.display.Printf("\n")
	s.display.Warning("Loading drops every collection in the target instance first.")
}

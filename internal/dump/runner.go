package dump

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	apperrors "mongo-blob-backup/internal/errors"
	"mongo-blob-backup/internal/logging"
)

// Result captures one tool invocation. Callers always receive the captured
// output, success or not, so failures carry the tool's own diagnostics.
type Result struct {
	Bin      string
	Args     []string
	Output   string
	Duration time.Duration
}

// CommandLine renders the invocation for logs and error context
func (r Result) CommandLine() string {
	return r.Bin + " " + strings.Join(r.Args, " ")
}

// Runner executes dump tool command lines
type Runner interface {
	Run(ctx context.Context, bin string, args []string) (Result, error)
}

// ExecRunner runs commands through os/exec
type ExecRunner struct {
	logger *logging.Logger
}

// NewExecRunner creates a runner with the given logger
func NewExecRunner(logger *logging.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run executes the command and captures combined output. Tool failures come
// back as dump errors carrying the trailing output.
func (r *ExecRunner) Run(ctx context.Context, bin string, args []string) (Result, error) {
	startTime := time.Now()

	cmd := exec.CommandContext(ctx, bin, args...)
	output, err := cmd.CombinedOutput()

	result := Result{
		Bin:      bin,
		Args:     args,
		Output:   string(output),
		Duration: time.Since(startTime),
	}

	r.logger.WithFields(map[string]interface{}{
		"bin":      bin,
		"duration": result.Duration.String(),
		"success":  err == nil,
	}).Debug("Executed dump tool")

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, apperrors.NewAppError(apperrors.ErrorTypeInterruption,
				fmt.Sprintf("%s interrupted", bin), ctxErr)
		}
		return result, apperrors.NewDumpError(
			fmt.Sprintf("%s failed", bin), err).
			WithContext("command", result.CommandLine()).
			WithContext("output", tailOutput(result.Output, 2000))
	}

	return result, nil
}

// tailOutput keeps the last n bytes of tool output, where the tools put
// their error summary
func tailOutput(output string, n int) string {
	output = strings.TrimSpace(output)
	if len(output) <= n {
		return output
	}
	return "..." + output[len(output)-n:]
}

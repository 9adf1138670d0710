package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/campuscode/autograder-api/internal/models"
	"github.com/campuscode/autograder-api/pkg/sandbox"
)

// ErrSandboxUnavailable indicates the execution backend could not run the
// solution at all, as opposed to the solution itself failing.
var ErrSandboxUnavailable = errors.New("sandbox unavailable")

// CodeRunner executes a solution against a question's test cases and returns
// one ordered outcome per case.
type CodeRunner interface {
	Run(ctx context.Context, language models.Language, source string, cases []models.TestCase) ([]models.TestCaseRun, error)
}

// RunnerConfig bounds each sandboxed execution.
type RunnerConfig struct {
	WorkspaceRoot string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
}

type sandboxRunner struct {
	executor sandbox.Executor
	config   RunnerConfig
	logger   zerolog.Logger
}

// NewSandboxRunner constructs a CodeRunner on top of the container executor.
func NewSandboxRunner(executor sandbox.Executor, cfg RunnerConfig, logger zerolog.Logger) CodeRunner {
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}
	return &sandboxRunner{
		executor: executor,
		config:   cfg,
		logger:   logger.With().Str("component", "sandbox_runner").Logger(),
	}
}

// Run compiles the source once when the language needs it, then runs one
// container per test case with the case input on stdin via input.txt. A
// compile failure short-circuits every case to Compile Error.
func (r *sandboxRunner) Run(ctx context.Context, language models.Language, source string, cases []models.TestCase) ([]models.TestCaseRun, error) {
	spec, ok := language.Spec()
	if !ok {
		return nil, ErrUnsupportedLanguage
	}

	workspace, err := os.MkdirTemp(r.config.WorkspaceRoot, "run-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	if err := os.WriteFile(filepath.Join(workspace, spec.FileName), []byte(source), 0600); err != nil {
		return nil, fmt.Errorf("write source: %w", err)
	}

	if len(spec.Compile) > 0 {
		compileResult, err := r.executor.Run(ctx, sandbox.RunRequest{
			Image:         spec.Image,
			Cmd:           spec.Compile,
			Workspace:     workspace,
			Timeout:       r.config.Timeout,
			MemoryLimitMB: r.config.MemoryLimitMB,
			CPUShares:     r.config.CPUShares,
		})
		if err != nil && !compileResult.TimedOut {
			return nil, fmt.Errorf("%w: %v", ErrSandboxUnavailable, err)
		}
		if compileResult.TimedOut || compileResult.ExitCode != 0 {
			return compileErrorRuns(cases, compileResult), nil
		}
	}

	results := make([]models.TestCaseRun, 0, len(cases))
	for i, testCase := range cases {
		run := models.TestCaseRun{
			TestCase: i + 1,
			Input:    testCase.Input,
			Expected: testCase.Expected,
		}

		if err := os.WriteFile(filepath.Join(workspace, "input.txt"), []byte(testCase.Input), 0600); err != nil {
			return nil, fmt.Errorf("write test input: %w", err)
		}

		result, err := r.executor.Run(ctx, sandbox.RunRequest{
			Image:         spec.Image,
			Cmd:           spec.Run,
			Workspace:     workspace,
			Timeout:       r.config.Timeout,
			MemoryLimitMB: r.config.MemoryLimitMB,
			CPUShares:     r.config.CPUShares,
		})

		switch {
		case result.TimedOut:
			run.Status = models.TestRunError
			run.Error = fmt.Sprintf("time limit exceeded (%s)", r.config.Timeout)
		case err != nil:
			return nil, fmt.Errorf("%w: %v", ErrSandboxUnavailable, err)
		case result.ExitCode != 0:
			run.Status = models.TestRunError
			run.Error = runtimeError(result)
		case strings.TrimSpace(result.Stdout) == strings.TrimSpace(testCase.Expected):
			run.Status = models.TestRunPassed
			run.Actual = strings.TrimSpace(result.Stdout)
		default:
			run.Status = models.TestRunFailed
			run.Actual = strings.TrimSpace(result.Stdout)
		}

		results = append(results, run)
	}

	return results, nil
}

func compileErrorRuns(cases []models.TestCase, result sandbox.RunResult) []models.TestCaseRun {
	message := strings.TrimSpace(result.Stderr)
	if result.TimedOut {
		message = "compilation timed out"
	}
	if message == "" {
		message = fmt.Sprintf("compiler exited with code %d", result.ExitCode)
	}

	runs := make([]models.TestCaseRun, 0, len(cases))
	for i, testCase := range cases {
		runs = append(runs, models.TestCaseRun{
			TestCase: i + 1,
			Status:   models.TestRunCompileError,
			Input:    testCase.Input,
			Expected: testCase.Expected,
			Error:    message,
		})
	}
	return runs
}

func runtimeError(result sandbox.RunResult) string {
	if message := strings.TrimSpace(result.Stderr); message != "" {
		return message
	}
	return fmt.Sprintf("process exited with code %d", result.ExitCode)
}

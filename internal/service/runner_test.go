package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/campuscode/autograder-api/internal/models"
	"github.com/campuscode/autograder-api/pkg/sandbox"
)

// scriptedExecutor replays canned results in order.
type scriptedExecutor struct {
	results []sandbox.RunResult
	errs    []error
	calls   []sandbox.RunRequest
}

func (s *scriptedExecutor) Run(_ context.Context, req sandbox.RunRequest) (sandbox.RunResult, error) {
	index := len(s.calls)
	s.calls = append(s.calls, req)

	var err error
	if index < len(s.errs) {
		err = s.errs[index]
	}
	var result sandbox.RunResult
	if index < len(s.results) {
		result = s.results[index]
	}
	return result, err
}

func testCases() []models.TestCase {
	return []models.TestCase{
		{Input: "1 2", Expected: "3", Position: 0},
		{Input: "10 5", Expected: "15", Position: 1},
	}
}

func TestSandboxRunnerInterpretedLanguage(t *testing.T) {
	executor := &scriptedExecutor{
		results: []sandbox.RunResult{
			{Stdout: "3\n", ExitCode: 0},
			{Stdout: "14", ExitCode: 0},
		},
	}

	runner := NewSandboxRunner(executor, RunnerConfig{WorkspaceRoot: t.TempDir(), Timeout: time.Second}, zerolog.Nop())

	runs, err := runner.Run(context.Background(), models.LanguagePython, "print(input())", testCases())
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Python has no compile step, so the executor saw exactly one container
	// per test case.
	require.Len(t, executor.calls, 2)
	require.Equal(t, models.TestRunPassed, runs[0].Status)
	require.Equal(t, "3", runs[0].Actual)
	require.Equal(t, models.TestRunFailed, runs[1].Status)
	require.Equal(t, "14", runs[1].Actual)

	// The case input lands in the workspace as input.txt before each run.
	for _, call := range executor.calls {
		require.True(t, strings.Contains(strings.Join(call.Cmd, " "), "input.txt"))
	}
}

func TestSandboxRunnerCompileFailure(t *testing.T) {
	executor := &scriptedExecutor{
		results: []sandbox.RunResult{
			{Stderr: "Main.c:3: error: expected ';'", ExitCode: 1},
		},
	}

	runner := NewSandboxRunner(executor, RunnerConfig{WorkspaceRoot: t.TempDir(), Timeout: time.Second}, zerolog.Nop())

	runs, err := runner.Run(context.Background(), models.LanguageC, "int main( {}", testCases())
	require.NoError(t, err)
	require.Len(t, executor.calls, 1, "no test case runs after a compile failure")

	for _, run := range runs {
		require.Equal(t, models.TestRunCompileError, run.Status)
		require.Contains(t, run.Error, "expected ';'")
	}
}

func TestSandboxRunnerTimeout(t *testing.T) {
	executor := &scriptedExecutor{
		results: []sandbox.RunResult{
			{TimedOut: true},
			{Stdout: "15", ExitCode: 0},
		},
	}

	runner := NewSandboxRunner(executor, RunnerConfig{WorkspaceRoot: t.TempDir(), Timeout: time.Second}, zerolog.Nop())

	runs, err := runner.Run(context.Background(), models.LanguagePython, "while True: pass", testCases())
	require.NoError(t, err)
	require.Equal(t, models.TestRunError, runs[0].Status)
	require.Contains(t, runs[0].Error, "time limit exceeded")
	require.Equal(t, models.TestRunPassed, runs[1].Status)
}

func TestSandboxRunnerExecutorFailure(t *testing.T) {
	executor := &scriptedExecutor{
		errs: []error{errors.New("docker daemon unreachable")},
	}

	runner := NewSandboxRunner(executor, RunnerConfig{WorkspaceRoot: t.TempDir(), Timeout: time.Second}, zerolog.Nop())

	_, err := runner.Run(context.Background(), models.LanguagePython, "print(3)", testCases())
	require.ErrorIs(t, err, ErrSandboxUnavailable)
}

func TestSandboxRunnerWritesSourceFile(t *testing.T) {
	root := t.TempDir()
	var seenWorkspace string
	executor := &scriptedExecutor{
		results: []sandbox.RunResult{{Stdout: "3", ExitCode: 0}, {Stdout: "15", ExitCode: 0}},
	}

	runner := NewSandboxRunner(executor, RunnerConfig{WorkspaceRoot: root, Timeout: time.Second}, zerolog.Nop())

	_, err := runner.Run(context.Background(), models.LanguagePython, "print(3)", testCases()[:1])
	require.NoError(t, err)
	require.Len(t, executor.calls, 1)

	seenWorkspace = executor.calls[0].Workspace
	require.True(t, strings.HasPrefix(seenWorkspace, root))

	// The workspace is removed once the run finishes.
	_, statErr := os.Stat(filepath.Join(seenWorkspace, "Main.py"))
	require.True(t, os.IsNotExist(statErr))
}

package errors

import (
	"fmt"
	"os"

	"github.com/julianstephens/habitline/internal/logger"
)

// Format formats an error message with a consistent "Error: " prefix.
// Retryable store failures get a hint so scripted callers know to retry.
func Format(err error) string {
	if err == nil {
		return ""
	}
	if IsTransient(err) {
		return fmt.Sprintf("Error: %v (temporary failure, safe to retry)", err)
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// ExitCode maps an error to the process exit status: 0 for nil, 75 (EX_TEMPFAIL)
// for retryable failures, 1 otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case IsTransient(err):
		return 75
	default:
		return 1
	}
}

// Fatal logs an error and exits the program with ExitCode(err)
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err, "retryable", IsTransient(err))
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		os.Exit(ExitCode(err))
	}
}

// Fatalf logs and formats an error message, then exits the program with exit code 1
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Error("Command execution failed", "error", msg)
	fmt.Fprintf(os.Stderr, "%s\n", Formatf(format, args...))
	os.Exit(1)
}

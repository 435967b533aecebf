package cli

import (
	"errors"
	"fmt"
	"io"

	sqlkit "github.com/vango-go/vango-sqlkit"
)

// Exit codes.
const (
	ExitSuccess   = 0
	ExitGeneral   = 1
	ExitConfig    = 2
	ExitQuery     = 3
	ExitDBConnect = 4
)

// ExitError wraps an error with an exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ConfigError creates an ExitError with ExitConfig code.
func ConfigError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitConfig, Message: msg, Err: err}
}

// DBError classifies a sqlkit failure by kind: configuration problems,
// connection problems and statement problems each get their own code.
func DBError(msg string, err error) *ExitError {
	code := ExitGeneral
	switch sqlkit.KindOf(err) {
	case sqlkit.KindConfig:
		code = ExitConfig
	case sqlkit.KindConnection, sqlkit.KindPoolExhausted:
		code = ExitDBConnect
	case sqlkit.KindQuery, sqlkit.KindStream, sqlkit.KindStatement, sqlkit.KindEmptyIn:
		code = ExitQuery
	}
	return &ExitError{Code: code, Message: msg, Err: err}
}

// Report prints err to w and returns the process exit code for it.
func Report(w io.Writer, err error) int {
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintln(w, "Error:", err)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitGeneral
}

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"go.uber.org/multierr"
)

func TestReconcilerError(t *testing.T) {
	tests := []struct {
		name        string
		category    ErrorCategory
		code        ErrorCode
		message     string
		cause       error
		expectCode  int
		expectError string
	}{
		{
			name:        "file error",
			category:    CategoryFile,
			code:        CodeFileNotFound,
			message:     "file not found",
			cause:       errors.New("no such file"),
			expectCode:  2,
			expectError: "file not found: no such file",
		},
		{
			name:        "parse error",
			category:    CategoryParse,
			code:        CodeInvalidFormat,
			message:     "invalid format",
			cause:       nil,
			expectCode:  3,
			expectError: "invalid format",
		},
		{
			name:        "configuration error",
			category:    CategoryConfiguration,
			code:        CodeInvalidConfig,
			message:     "invalid config",
			cause:       errors.New("missing field"),
			expectCode:  4,
			expectError: "invalid config: missing field",
		},
		{
			name:        "persistence error",
			category:    CategoryPersistence,
			code:        CodeQueryFailed,
			message:     "query failed",
			cause:       errors.New("connection reset"),
			expectCode:  7,
			expectError: "query failed: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconcilerError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.expectError {
				t.Errorf("expected error string %q, got %q", tt.expectError, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
			if len(err.StackTrace) == 0 {
				t.Error("expected a stack trace")
			}
		})
	}
}

func TestReconcilerErrorWithContext(t *testing.T) {
	err := New(CategoryFile, CodeFileNotFound, "test error").
		WithContext("file", "/path/to/file").
		WithContext("line", 42).
		WithSuggestion("check file path")

	if err.Context["file"] != "/path/to/file" {
		t.Errorf("expected file context '/path/to/file', got %v", err.Context["file"])
	}
	if err.Context["line"] != 42 {
		t.Errorf("expected line context 42, got %v", err.Context["line"])
	}

	expected := "test error (suggestion: check file path)"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		category ErrorCategory
		status   int
	}{
		{CategoryParse, http.StatusBadRequest},
		{CategoryValidation, http.StatusBadRequest},
		{CategoryConfiguration, http.StatusInternalServerError},
		{CategoryPersistence, http.StatusInternalServerError},
		{CategoryInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			if got := New(tt.category, "code", "msg").HTTPStatus(); got != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, got)
			}
		})
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("FileError", func(t *testing.T) {
		cause := errors.New("permission denied")
		err := FileError(CodeFilePermission, "/test/file.csv", cause)

		if err.Category != CategoryFile {
			t.Errorf("expected file category, got %s", err.Category)
		}
		if err.Context["file_path"] != "/test/file.csv" {
			t.Errorf("expected file_path context, got %v", err.Context["file_path"])
		}
		if err.Suggestion == "" {
			t.Error("expected suggestion to be set")
		}
		if err.Cause != cause {
			t.Errorf("expected cause to be %v, got %v", cause, err.Cause)
		}
	})

	t.Run("ParseError", func(t *testing.T) {
		err := ParseError(CodeInvalidFormat, "test.csv", 10, "valor", "12.3.4", nil)

		if err.Category != CategoryParse {
			t.Errorf("expected parse category, got %s", err.Category)
		}
		if err.Context["line"] != 10 {
			t.Errorf("expected line context, got %v", err.Context["line"])
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError(CodeOutOfRange, "company_cnpj", "x", nil)

		if err.Category != CategoryValidation {
			t.Errorf("expected validation category, got %s", err.Category)
		}
		if err.Context["field"] != "company_cnpj" {
			t.Errorf("expected field context, got %v", err.Context["field"])
		}
	})

	t.Run("ConfigurationError", func(t *testing.T) {
		err := ConfigurationError(CodeMissingConfig, "database.dsn", nil, nil)

		if err.GetExitCode() != 4 {
			t.Errorf("expected exit code 4, got %d", err.GetExitCode())
		}
		if err.Context["setting"] != "database.dsn" {
			t.Errorf("expected setting context, got %v", err.Context["setting"])
		}
	})

	t.Run("PersistenceError", func(t *testing.T) {
		cause := errors.New("duplicate key")
		err := PersistenceError(CodeWriteFailed, "insert alerts", cause)

		if err.Category != CategoryPersistence {
			t.Errorf("expected persistence category, got %s", err.Category)
		}
		if !errors.Is(err, cause) {
			t.Error("expected errors.Is to find the cause")
		}
	})
}

func TestAsReconcilerError_ThroughWrapping(t *testing.T) {
	inner := PersistenceError(CodeWriteFailed, "insert reconciliations", errors.New("timeout"))

	wrapped := fmt.Errorf("run failed: %w", inner)
	if got, ok := AsReconcilerError(wrapped); !ok || got != inner {
		t.Error("expected to extract the error through fmt wrapping")
	}

	combined := multierr.Combine(inner, errors.New("other"))
	if got, ok := AsReconcilerError(combined); !ok || got != inner {
		t.Error("expected to extract the error from a combined error")
	}

	if _, ok := AsReconcilerError(errors.New("generic")); ok {
		t.Error("expected AsReconcilerError to return false for generic error")
	}
	if _, ok := AsReconcilerError(nil); ok {
		t.Error("expected AsReconcilerError to return false for nil")
	}
}

func TestErrorSummary(t *testing.T) {
	errs := []*ReconcilerError{
		New(CategoryFile, CodeFileNotFound, "error 1"),
		New(CategoryParse, CodeInvalidFormat, "error 2"),
		New(CategoryParse, CodeInvalidData, "error 3"),
		New(CategoryValidation, CodeInvalidAmount, "error 4"),
	}

	summary := NewErrorSummary(errs)

	if summary.Total != 4 {
		t.Errorf("expected total 4, got %d", summary.Total)
	}
	if summary.ByCategory[CategoryParse] != 2 {
		t.Errorf("expected 2 parse errors, got %d", summary.ByCategory[CategoryParse])
	}
	if !summary.HasCode(CodeInvalidAmount) {
		t.Error("expected to have invalid amount code")
	}
	if summary.HasCategory(CategoryNetwork) {
		t.Error("expected not to have network category")
	}

	expected := "4 errors occurred (file: 1, parse: 2, validation: 1)"
	if summary.Error() != expected {
		t.Errorf("expected %q, got %q", expected, summary.Error())
	}
	if summary.GetExitCode() != 3 {
		t.Errorf("expected highest exit code 3, got %d", summary.GetExitCode())
	}
}

func TestEmptyAndSingleErrorSummary(t *testing.T) {
	empty := NewErrorSummary(nil)
	if empty.Error() != "no errors" || empty.GetExitCode() != 0 {
		t.Errorf("unexpected empty summary: %q, %d", empty.Error(), empty.GetExitCode())
	}

	single := NewErrorSummary([]*ReconcilerError{New(CategoryFile, CodeFileNotFound, "single error")})
	if single.Error() != "single error" {
		t.Errorf("expected 'single error', got '%s'", single.Error())
	}
}

func TestWrapIfNeeded(t *testing.T) {
	reconcilerErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	if WrapIfNeeded(reconcilerErr, CategoryParse, CodeInvalidFormat, "wrapped") != reconcilerErr {
		t.Error("expected WrapIfNeeded to return original ReconcilerError")
	}

	wrapped := WrapIfNeeded(genericErr, CategoryInternal, CodeUnexpectedError, "wrapped")
	if wrapped.Cause != genericErr || wrapped.Category != CategoryInternal {
		t.Error("expected WrapIfNeeded to wrap generic error")
	}

	if WrapIfNeeded(nil, CategoryParse, CodeInvalidFormat, "wrapped") != nil {
		t.Error("expected WrapIfNeeded to return nil for nil input")
	}
}

func TestIsReconcilerError(t *testing.T) {
	if !IsReconcilerError(New(CategoryFile, CodeFileNotFound, "test")) {
		t.Error("expected IsReconcilerError to return true for ReconcilerError")
	}
	if IsReconcilerError(errors.New("generic error")) {
		t.Error("expected IsReconcilerError to return false for generic error")
	}
}

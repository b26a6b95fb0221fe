package errors

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "sitebuild.yaml").
			Build()

		if err.Category() != CategoryConfig {
			t.Errorf("expected category %s, got %s", CategoryConfig, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		file, exists := err.Context().GetString("file")
		if !exists || file != "sitebuild.yaml" {
			t.Errorf("expected context file=sitebuild.yaml, got %v", file)
		}
		if got := err.Error(); got != "[config:fatal] invalid configuration" {
			t.Errorf("unexpected message %q", got)
		}
	})

	t.Run("Wrapped cause", func(t *testing.T) {
		cause := errors.New("permission denied")
		err := WrapError(cause, CategoryFileSystem, "write output").
			WithContext("path", "dist/a.css").
			Build()

		if !errors.Is(err, cause) {
			t.Error("expected error to wrap cause")
		}
		if err.IsFatal() {
			t.Error("filesystem errors default to non-fatal")
		}
	})

	t.Run("Classification survives fmt wrapping", func(t *testing.T) {
		inner := TransformError("unresolved import").Build()
		outer := fmt.Errorf("step styles: %w", inner)

		if !HasCategory(outer, CategoryTransform) {
			t.Error("expected transform category through wrapping")
		}
		if GetCategory(errors.New("plain")) != CategoryInternal {
			t.Error("unclassified errors default to internal")
		}
	})

	t.Run("WithContext copies", func(t *testing.T) {
		base := ValidationError("bad step").Build()
		withPath := base.WithContext("step", "icons")

		if _, ok := base.Context().Get("step"); ok {
			t.Error("original context must not be modified")
		}
		if v, _ := withPath.Context().GetString("step"); v != "icons" {
			t.Errorf("expected step=icons, got %q", v)
		}
	})
}

func TestCLIExitCodes(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, nil)
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("boom"), 1},
		{ValidationError("x").Build(), 2},
		{ConfigError("x").Build(), 7},
		{FileSystemError("x").Build(), 11},
		{TransformError("x").Build(), 11},
		{OrchestrationError("x").Build(), 12},
		{RuntimeError("x").Build(), 12},
		{InternalError("x").Build(), 10},
		{fmt.Errorf("node styles: %w", TransformError("x").Build()), 11},
	}
	for _, tc := range cases {
		if got := adapter.ExitCodeFor(tc.err); got != tc.want {
			t.Errorf("ExitCodeFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestCLIHandleError(t *testing.T) {
	var out bytes.Buffer
	code := -1
	adapter := NewCLIErrorAdapter(false, nil)
	adapter.out = &out
	adapter.exit = func(c int) { code = c }

	adapter.HandleError(InternalError("nil step").Build())

	if code != 10 {
		t.Errorf("expected exit 10, got %d", code)
	}
	if out.String() != "Internal error occurred (use -v for details)\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}

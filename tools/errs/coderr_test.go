package errs

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestCodeErrorIs(t *testing.T) {
	err := ErrArgs.WrapMsg("receiverId required", "receiverId", 0)
	if !errors.Is(err, ErrArgs) {
		t.Fatalf("errors.Is(%v, ErrArgs) = false", err)
	}
	if errors.Is(err, ErrNoPermission) {
		t.Fatal("different code must not match")
	}
	if !strings.Contains(err.Error(), "receiverId=0") {
		t.Fatalf("detail not rendered: %q", err.Error())
	}
}

func TestAsCode(t *testing.T) {
	wrapped := WrapMsg(ErrRecordNotFound.Wrap(), "load friend request", "id", 9)
	ce, ok := AsCode(wrapped)
	if !ok || ce.Code != RecordNotFoundError {
		t.Fatalf("AsCode = %v, %v", ce, ok)
	}
	ce, ok = AsCode(errors.New("boom"))
	if ok || ce.Code != ServerInternalError {
		t.Fatalf("plain error should map to internal, got %v %v", ce, ok)
	}
}

func TestWithDetailDoesNotMutate(t *testing.T) {
	d := ErrStateConflict.WithDetail("a").WithDetail("b")
	if d.Detail != "a, b" {
		t.Fatalf("detail = %q", d.Detail)
	}
	if ErrStateConflict.Detail != "" {
		t.Fatal("base error mutated")
	}
}

func TestErrPanic(t *testing.T) {
	if ErrPanic(nil) != nil {
		t.Fatal("nil recover value should give nil error")
	}
	err := ErrPanic("kaboom")
	if !errors.Is(err, ErrInternalServer) {
		t.Fatalf("panic error should carry internal code: %v", err)
	}
}

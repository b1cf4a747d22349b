package xerrors

import (
	"errors"
	"runtime"
	"strings"
	"testing"
)

var errSentinel = errors.New("sentinel")

func stackHas(pcs []uintptr, fn string) bool {
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if strings.Contains(fr.Function, fn) {
			return true
		}
		if !more {
			return false
		}
	}
}

func TestNew_MessageAndStack(t *testing.T) {
	err := New("token store unavailable")
	if err.Error() != "token store unavailable" {
		t.Fatalf("Error() = %q", err.Error())
	}

	var hs interface{ StackPCs() []uintptr }
	if !errors.As(err, &hs) {
		t.Fatal("New error should expose StackPCs")
	}
	if !stackHas(hs.StackPCs(), "TestNew_MessageAndStack") {
		t.Fatal("stack should start at the caller")
	}
	if stackHas(hs.StackPCs()[:1], "xerrors.attach") {
		t.Fatal("stack should not start inside xerrors")
	}
}

func TestNewf_WrapsWithPercentW(t *testing.T) {
	err := Newf("render %s: %w", "/node/1", errSentinel)
	if err.Error() != "render /node/1: sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, errSentinel) {
		t.Fatal("errors.Is should see through Newf with %w")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "x %d", 1) != nil {
		t.Fatal("Wrapf(nil) should be nil")
	}

	err := Wrapf(errSentinel, "insert token for nid %d", 12)
	if err.Error() != "insert token for nid 12: sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, errSentinel) {
		t.Fatal("errors.Is should unwrap")
	}

	var hp interface{ PC() uintptr }
	if !errors.As(err, &hp) {
		t.Fatal("Wrap should expose PC")
	}
	fn := runtime.FuncForPC(hp.PC())
	if fn == nil || !strings.Contains(fn.Name(), "TestWrap") {
		t.Fatalf("PC should point at the caller, got %v", fn)
	}
}

func TestWithStack(t *testing.T) {
	if WithStack(nil) != nil {
		t.Fatal("WithStack(nil) should be nil")
	}
	err := WithStack(errSentinel)
	if !errors.Is(err, errSentinel) {
		t.Fatal("errors.Is should unwrap WithStack")
	}
	if err.Error() != "sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestEnsureTrace(t *testing.T) {
	if EnsureTrace(nil) != nil {
		t.Fatal("EnsureTrace(nil) should be nil")
	}

	plain := EnsureTrace(errSentinel)
	var hs interface{ StackPCs() []uintptr }
	if !errors.As(plain, &hs) {
		t.Fatal("EnsureTrace should add a stack to a plain error")
	}

	already := New("has stack")
	if got := EnsureTrace(already); got != already {
		t.Fatal("EnsureTrace should not re-wrap an error that already has a stack")
	}

	wrapped := Wrap(already, "outer")
	if got := EnsureTrace(wrapped); got != wrapped {
		t.Fatal("EnsureTrace should find a stack deeper in the chain")
	}
}

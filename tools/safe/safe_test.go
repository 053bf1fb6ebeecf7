package safe

import (
	"testing"
	"time"
)

func TestRunRecovers(t *testing.T) {
	ran := false
	Run("test", func() {
		ran = true
		panic("boom")
	})
	if !ran {
		t.Fatal("function did not run")
	}
}

func TestSafeGo(t *testing.T) {
	done := make(chan struct{})
	SafeGo("test", func() {
		defer close(done)
		panic("boom")
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

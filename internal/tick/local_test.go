package tick

import (
	"testing"
	"time"
)

func TestLocalSourceEmitsMonotonicSequence(t *testing.T) {
	src := NewLocalSource(5 * time.Millisecond)
	defer src.Stop()

	var last uint64
	for i := 0; i < 3; i++ {
		select {
		case tk := <-src.Ticks():
			if tk.Seq <= last {
				t.Errorf("sequence not increasing: %d after %d", tk.Seq, last)
			}
			last = tk.Seq
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for tick")
		}
	}
}

func TestLocalSourceStopClosesChannel(t *testing.T) {
	src := NewLocalSource(5 * time.Millisecond)

	if err := src.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// Drain until close; must not hang.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-src.Ticks():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after Stop")
		}
	}
}

func TestLocalSourceStopIsIdempotent(t *testing.T) {
	src := NewLocalSource(time.Millisecond)
	if err := src.Stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

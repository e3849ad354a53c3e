package audio

import (
	"sync"
	"testing"
)

func TestRingWriteRead(t *testing.T) {
	r := NewRing(8)

	n := r.Write([]float32{1, 2, 3})
	if n != 3 {
		t.Fatalf("Write = %d, want 3", n)
	}
	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}

	out := make([]float32, 5)
	n = r.Read(out)
	if n != 3 {
		t.Fatalf("Read = %d, want 3", n)
	}
	if out[0] != 1 || out[1] != 2 || out[2] != 3 {
		t.Errorf("out = %v", out[:3])
	}
}

func TestRingUnderrunReturnsShort(t *testing.T) {
	r := NewRing(8)
	out := make([]float32, 4)
	if n := r.Read(out); n != 0 {
		t.Fatalf("Read on empty = %d, want 0", n)
	}
}

func TestRingOverrunDropsExcess(t *testing.T) {
	r := NewRing(4)
	n := r.Write([]float32{1, 2, 3, 4, 5, 6})
	if n != 4 {
		t.Fatalf("Write = %d, want capacity 4", n)
	}
	out := make([]float32, 4)
	r.Read(out)
	if out[3] != 4 {
		t.Errorf("out = %v, excess should be dropped", out)
	}
}

func TestRingCapacityRoundsToPowerOfTwo(t *testing.T) {
	r := NewRing(100)
	if r.Cap() != 128 {
		t.Errorf("Cap = %d, want 128", r.Cap())
	}
}

func TestRingSPSCStress(t *testing.T) {
	r := NewRing(1024)
	const total = 100_000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		buf := make([]float32, 64)
		sent := 0
		for sent < total {
			for i := range buf {
				buf[i] = float32(sent + i)
			}
			n := r.Write(buf)
			sent += n
			// Only the first n values were consumed from this batch; keep
			// the sequence monotone by regenerating next iteration.
		}
	}()

	var mismatch bool
	go func() {
		defer wg.Done()
		buf := make([]float32, 64)
		expect := float32(0)
		received := 0
		for received < total {
			n := r.Read(buf)
			for i := 0; i < n; i++ {
				if buf[i] != expect {
					mismatch = true
					return
				}
				expect++
			}
			received += n
		}
	}()

	wg.Wait()
	if mismatch {
		t.Fatal("ring reordered or corrupted samples")
	}
}

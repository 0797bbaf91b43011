package queue

import (
	"sync"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFIFOPushPop(t *testing.T) {
	f := NewFIFO(4)
	if _, ok := f.Pop(); ok {
		t.Fatal("Pop on empty queue returned ok")
	}
	if err := f.Push([]byte("a")); err != nil {
		t.Fatalf("Push: %v", err)
	}
	got, ok := f.Pop()
	if !ok || string(got) != "a" {
		t.Fatalf("Pop = %q, %v", got, ok)
	}
}

func TestFIFOOverflow(t *testing.T) {
	f := NewFIFO(2)
	if err := f.Push([]byte("1")); err != nil {
		t.Fatalf("Push 1: %v", err)
	}
	if err := f.Push([]byte("2")); err != nil {
		t.Fatalf("Push 2: %v", err)
	}
	if err := f.Push([]byte("3")); err != ErrOverflow {
		t.Fatalf("Push 3 = %v, want ErrOverflow", err)
	}
}

func TestFIFODrain(t *testing.T) {
	f := NewFIFO(8)
	for _, s := range []string{"a", "b", "c"} {
		if err := f.Push([]byte(s)); err != nil {
			t.Fatalf("Push(%q): %v", s, err)
		}
	}
	got := f.Drain()
	if len(got) != 3 {
		t.Fatalf("Drain len = %d, want 3", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(got[i]) != want {
			t.Fatalf("Drain[%d] = %q, want %q", i, got[i], want)
		}
	}
	if len(f.Drain()) != 0 {
		t.Fatal("second Drain not empty")
	}
}

// TestFIFOProducerOrderPreserved verifies §8: the consumer observes each
// single producer's pushes in that producer's own order, for N concurrent
// producers each pushing its own monotonically increasing sequence.
func TestFIFOProducerOrderPreserved(t *testing.T) {
	const producers = 8
	const perProducer = 200
	f := NewFIFO(producers * perProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				b := []byte{byte(p), byte(i), byte(i >> 8)}
				for f.Push(b) == ErrOverflow {
					// capacity sized to never overflow in this test
				}
			}
		}(p)
	}
	wg.Wait()

	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	drained := f.Drain()
	if len(drained) != producers*perProducer {
		t.Fatalf("drained %d packets, want %d", len(drained), producers*perProducer)
	}
	for _, b := range drained {
		p := int(b[0])
		seq := int(b[1]) | int(b[2])<<8
		if seq <= last[p] {
			t.Fatalf("producer %d: saw seq %d after %d, order violated", p, seq, last[p])
		}
		last[p] = seq
	}
}

package ring

import (
	"errors"
	"testing"
	"time"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name      string
		slots     int
		blockSize int
		wantErr   bool
	}{
		{"minimum slots", 2, 16, false},
		{"many slots", 16, 16384, false},
		{"one slot", 1, 16, true},
		{"zero slots", 0, 16, true},
		{"zero block size", 4, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.slots, tt.blockSize)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r.Cap() != tt.slots {
				t.Errorf("Cap() = %d, want %d", r.Cap(), tt.slots)
			}
		})
	}
}

func TestOverrunAndRecovery(t *testing.T) {
	const slots = 4

	r, err := New(slots, 8)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < slots; i++ {
		if _, err := r.AcquireWrite(); err != nil {
			t.Fatalf("acquire %d: unexpected error: %v", i, err)
		}
	}

	// All slots reserved: the next acquire must fail without blocking.
	if _, err := r.AcquireWrite(); !errors.Is(err, ErrOverrun) {
		t.Fatalf("acquire past capacity: got %v, want ErrOverrun", err)
	}

	for i := 0; i < slots; i++ {
		r.CommitWrite(nil)
	}

	slot, err := r.AcquireRead()
	if err != nil {
		t.Fatalf("acquire read: %v", err)
	}
	r.ReleaseRead(slot)

	if _, err := r.AcquireWrite(); err != nil {
		t.Fatalf("acquire after release: got %v, want success", err)
	}
}

func TestCommitAgainstTwoSlots(t *testing.T) {
	r, err := New(2, 8)
	if err != nil {
		t.Fatal(err)
	}

	var drops int
	for i := 0; i < 3; i++ {
		slot, err := r.AcquireWrite()
		if err != nil {
			drops++
			continue
		}
		slot.Data[0] = byte(i)
		slot.Len = 1
		r.CommitWrite(slot)
	}

	if drops != 1 {
		t.Fatalf("drops = %d, want 1", drops)
	}

	// The two committed blocks survive in order.
	for want := 0; want < 2; want++ {
		slot, err := r.AcquireRead()
		if err != nil {
			t.Fatalf("read %d: %v", want, err)
		}
		if got := int(slot.Data[0]); got != want {
			t.Errorf("read %d: payload = %d, want %d", want, got, want)
		}
		r.ReleaseRead(slot)
	}
}

func TestEmptyRead(t *testing.T) {
	r, err := New(2, 8)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.AcquireRead(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("read on empty ring: got %v, want ErrEmpty", err)
	}

	slot, err := r.AcquireWrite()
	if err != nil {
		t.Fatal(err)
	}

	// Reserved but not committed: still nothing to read.
	if _, err := r.AcquireRead(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("read before commit: got %v, want ErrEmpty", err)
	}

	r.CommitWrite(slot)
	if _, err := r.AcquireRead(); err != nil {
		t.Fatalf("read after commit: %v", err)
	}
}

func TestReadySignal(t *testing.T) {
	r, err := New(2, 8)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-r.Ready():
		t.Fatal("ready before any commit")
	default:
	}

	slot, _ := r.AcquireWrite()
	r.CommitWrite(slot)

	select {
	case <-r.Ready():
	case <-time.After(time.Second):
		t.Fatal("no ready signal after commit")
	}
}

func TestFIFOAcrossWrap(t *testing.T) {
	const slots, total = 3, 10

	r, err := New(slots, 8)
	if err != nil {
		t.Fatal(err)
	}

	written := 0
	read := 0
	for read < total {
		for written < total {
			slot, err := r.AcquireWrite()
			if err != nil {
				break
			}
			slot.Data[0] = byte(written)
			slot.Center = uint64(written)
			r.CommitWrite(slot)
			written++
		}
		slot, err := r.AcquireRead()
		if err != nil {
			t.Fatalf("read %d: %v", read, err)
		}
		if int(slot.Data[0]) != read || slot.Center != uint64(read) {
			t.Fatalf("read %d: got payload %d center %d", read, slot.Data[0], slot.Center)
		}
		r.ReleaseRead(slot)
		read++
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	const total = 1000

	r, err := New(4, 8)
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		sent := 0
		for sent < total {
			slot, err := r.AcquireWrite()
			if err != nil {
				// Consumer is behind; producers never block, they retry
				// on the next tick. A real capture path would drop here.
				time.Sleep(time.Microsecond)
				continue
			}
			slot.Center = uint64(sent)
			r.CommitWrite(slot)
			sent++
		}
	}()

	deadline := time.After(10 * time.Second)
	for want := 0; want < total; {
		slot, err := r.AcquireRead()
		if errors.Is(err, ErrEmpty) {
			select {
			case <-r.Ready():
			case <-time.After(time.Millisecond):
			case <-deadline:
				t.Fatalf("timed out at %d/%d", want, total)
			}
			continue
		}
		if slot.Center != uint64(want) {
			t.Fatalf("out of order: got %d, want %d", slot.Center, want)
		}
		r.ReleaseRead(slot)
		want++
	}
}

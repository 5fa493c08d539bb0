package stitch

import (
	"math"
	"testing"
)

func mustLayout(t *testing.T, size int, rate uint64, pol RetentionPolicy, width int) *Layout {
	t.Helper()
	l, err := NewLayout(size, rate, pol, width)
	if err != nil {
		t.Fatalf("NewLayout(%d, %d, %+v, %d): %v", size, rate, pol, width, err)
	}
	return l
}

func TestNewLayoutBins(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		pol   RetentionPolicy
		width int
		want  []int
	}{
		{
			name:  "default retention narrow exclusion",
			size:  20,
			width: 1,
			want:  []int{2, 3, 4, 5, 6, 12, 13, 14, 15, 16},
		},
		{
			name:  "wide exclusion trims quarter ends",
			size:  20,
			width: 3,
			want:  []int{3, 4, 5, 6, 13, 14, 15, 16},
		},
		{
			name:  "exclusion disabled",
			size:  20,
			width: 0,
			want:  []int{2, 3, 4, 5, 6, 12, 13, 14, 15, 16},
		},
		{
			name:  "custom retention",
			size:  20,
			pol:   RetentionPolicy{LowerEighth: 2, UpperEighth: 5},
			width: 0,
			want:  []int{5, 6, 7, 8, 9, 12, 13, 14, 15, 16},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := mustLayout(t, tt.size, 20e6, tt.pol, tt.width)
			got := l.Bins()
			if len(got) != len(tt.want) {
				t.Fatalf("got %d bins %v, want %d bins %v", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("bin[%d] = %d, want %d (all: %v)", i, got[i], tt.want[i], got)
				}
			}
		})
	}
}

func TestNewLayoutErrors(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		pol   RetentionPolicy
		width int
	}{
		{name: "size not multiple of four", size: 18},
		{name: "size too small", size: 0},
		{name: "negative exclusion", size: 20, width: -1},
		{name: "quarter past band edge", size: 20, pol: RetentionPolicy{LowerEighth: 7, UpperEighth: 5}},
		{name: "quarters overlap", size: 20, pol: RetentionPolicy{LowerEighth: 2, UpperEighth: 3}},
		{name: "exclusion eats every bin", size: 4, width: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLayout(tt.size, 20e6, tt.pol, tt.width); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLayoutFrequency(t *testing.T) {
	l := mustLayout(t, 20, 20e6, RetentionPolicy{}, 1)

	if bw := l.BinWidth(); bw != 1e6 {
		t.Fatalf("BinWidth() = %g, want 1e6", bw)
	}

	tests := []struct {
		bin  int
		want float64
	}{
		{bin: 10, want: 2400e6},
		{bin: 2, want: 2392e6},
		{bin: 16, want: 2406e6},
		{bin: 0, want: 2390e6},
	}
	for _, tt := range tests {
		if got := l.Frequency(2400e6, tt.bin); got != tt.want {
			t.Errorf("Frequency(2400e6, %d) = %g, want %g", tt.bin, got, tt.want)
		}
	}
}

// segPower builds a full-size power buffer whose bin values encode the
// originating segment, so overwrite order is visible after a merge.
func segPower(size, segment int) []float64 {
	p := make([]float64, size)
	for b := range p {
		p[b] = float64(segment*100 + b)
	}
	return p
}

type trace struct {
	freqs  []float64
	powers []float64
}

func flushInto(a *Assembler) trace {
	var tr trace
	a.Flush(func(freqHz, powerDB float64) {
		tr.freqs = append(tr.freqs, freqHz)
		tr.powers = append(tr.powers, powerDB)
	})
	return tr
}

func (tr trace) powerAt(t *testing.T, freqHz float64) float64 {
	t.Helper()
	for i, f := range tr.freqs {
		if f == freqHz {
			return tr.powers[i]
		}
	}
	t.Fatalf("no sample at %g Hz", freqHz)
	return math.NaN()
}

func checkAscendingBy(t *testing.T, freqs []float64, stepHz float64) {
	t.Helper()
	for i := 1; i < len(freqs); i++ {
		if got := freqs[i] - freqs[i-1]; got != stepHz {
			t.Fatalf("step between sample %d and %d is %g Hz, want %g", i-1, i, got, stepHz)
		}
	}
}

func TestAssemblerFullSweep(t *testing.T) {
	const (
		first    = uint64(2400e6)
		segments = 16
	)
	l := mustLayout(t, 20, 20e6, RetentionPolicy{}, 1)
	a, err := NewAssembler(l, first, segments)
	if err != nil {
		t.Fatal(err)
	}

	for k := 0; k < segments; k++ {
		if err := a.Add(k, segPower(20, k)); err != nil {
			t.Fatalf("Add(%d): %v", k, err)
		}
	}
	if got := a.Filled(); got != 90 {
		t.Fatalf("Filled() = %d, want 90", got)
	}

	tr := flushInto(a)
	if len(tr.freqs) != 90 {
		t.Fatalf("flushed %d samples, want 90", len(tr.freqs))
	}
	if tr.freqs[0] != 2392e6 || tr.freqs[89] != 2481e6 {
		t.Fatalf("trace spans [%g, %g] Hz, want [2.392e9, 2.481e9]", tr.freqs[0], tr.freqs[89])
	}
	checkAscendingBy(t, tr.freqs, 1e6)

	// Overlapped slots keep the later segment: 2402 MHz is bin 12 of
	// segment 0 and bin 2 of segment 2.
	if got := tr.powerAt(t, 2402e6); got != 202 {
		t.Errorf("power at 2402 MHz = %g, want 202 (segment 2 bin 2)", got)
	}
	// Slots only one segment reaches keep that segment's value.
	if got := tr.powerAt(t, 2392e6); got != 2 {
		t.Errorf("power at 2392 MHz = %g, want 2 (segment 0 bin 2)", got)
	}
	if got := tr.powerAt(t, 2481e6); got != 1516 {
		t.Errorf("power at 2481 MHz = %g, want 1516 (segment 15 bin 16)", got)
	}

	if got := a.Filled(); got != 0 {
		t.Fatalf("Filled() after flush = %d, want 0", got)
	}
	if again := flushInto(a); len(again.freqs) != 0 {
		t.Fatalf("second flush emitted %d samples, want 0", len(again.freqs))
	}
}

func TestAssemblerDroppedFirstSegment(t *testing.T) {
	l := mustLayout(t, 20, 20e6, RetentionPolicy{}, 1)
	a, err := NewAssembler(l, 2400e6, 16)
	if err != nil {
		t.Fatal(err)
	}
	for k := 1; k < 16; k++ {
		if err := a.Add(k, segPower(20, k)); err != nil {
			t.Fatal(err)
		}
	}

	tr := flushInto(a)
	if len(tr.freqs) != 85 {
		t.Fatalf("flushed %d samples, want 85", len(tr.freqs))
	}
	if tr.freqs[0] != 2397e6 {
		t.Fatalf("first sample at %g Hz, want 2.397e9", tr.freqs[0])
	}
	checkAscendingBy(t, tr.freqs, 1e6)
}

func TestAssemblerDroppedInteriorSegment(t *testing.T) {
	l := mustLayout(t, 20, 20e6, RetentionPolicy{}, 1)
	a, err := NewAssembler(l, 2400e6, 16)
	if err != nil {
		t.Fatal(err)
	}
	for k := 0; k < 16; k++ {
		if k == 7 {
			continue
		}
		if err := a.Add(k, segPower(20, k)); err != nil {
			t.Fatal(err)
		}
	}

	// The quarter-step overlap covers the missing segment entirely.
	tr := flushInto(a)
	if len(tr.freqs) != 90 {
		t.Fatalf("flushed %d samples, want 90", len(tr.freqs))
	}
	checkAscendingBy(t, tr.freqs, 1e6)

	// 2427 MHz would have been bin 2 of segment 7; segment 5's bin 12
	// covered it instead.
	if got := tr.powerAt(t, 2427e6); got != 512 {
		t.Errorf("power at 2427 MHz = %g, want 512 (segment 5 bin 12)", got)
	}
}

func TestAssemblerExclusionHoles(t *testing.T) {
	l := mustLayout(t, 20, 20e6, RetentionPolicy{}, 3)
	a, err := NewAssembler(l, 2400e6, 3)
	if err != nil {
		t.Fatal(err)
	}
	for k := 0; k < 3; k++ {
		if err := a.Add(k, segPower(20, k)); err != nil {
			t.Fatal(err)
		}
	}

	tr := flushInto(a)
	if len(tr.freqs) != 20 {
		t.Fatalf("flushed %d samples, want 20", len(tr.freqs))
	}
	// Excluded bins leave periodic holes the stepping never backfills.
	f0 := l.Frequency(2400e6, 3)
	for _, f := range tr.freqs {
		if f == f0+4e6 {
			t.Fatalf("sample at %g Hz falls on an excluded slot", f)
		}
	}
	for i := 1; i < len(tr.freqs); i++ {
		if tr.freqs[i] <= tr.freqs[i-1] {
			t.Fatalf("frequencies not strictly increasing at %d: %g then %g", i, tr.freqs[i-1], tr.freqs[i])
		}
	}
}

func TestAssemblerReset(t *testing.T) {
	l := mustLayout(t, 20, 20e6, RetentionPolicy{}, 1)
	a, err := NewAssembler(l, 2400e6, 16)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Add(3, segPower(20, 3)); err != nil {
		t.Fatal(err)
	}
	if a.Filled() == 0 {
		t.Fatal("Filled() = 0 after Add")
	}

	a.Reset()
	if got := a.Filled(); got != 0 {
		t.Fatalf("Filled() after reset = %d, want 0", got)
	}
	if tr := flushInto(a); len(tr.freqs) != 0 {
		t.Fatalf("flush after reset emitted %d samples, want 0", len(tr.freqs))
	}
}

func TestAssemblerAddErrors(t *testing.T) {
	l := mustLayout(t, 20, 20e6, RetentionPolicy{}, 1)
	a, err := NewAssembler(l, 2400e6, 16)
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Add(-1, segPower(20, 0)); err == nil {
		t.Error("Add(-1) succeeded, want error")
	}
	if err := a.Add(16, segPower(20, 0)); err == nil {
		t.Error("Add(16) succeeded, want error")
	}
	if err := a.Add(0, make([]float64, 19)); err == nil {
		t.Error("Add with short power buffer succeeded, want error")
	}

	if _, err := NewAssembler(l, 2400e6, 0); err == nil {
		t.Error("NewAssembler with zero segments succeeded, want error")
	}
}

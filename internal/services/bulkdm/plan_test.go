package bulkdm

import "testing"

func TestNewPlanBatchCounts(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		total     int
		batchSize int
		batches   int
	}{
		{"empty", 0, 100, 0},
		{"single partial batch", 50, 100, 1},
		{"exact multiple", 200, 100, 2},
		{"remainder batch", 250, 100, 3},
		{"batch size clamped up", 10, 0, 1},
		{"batch size clamped down", 250, 1000, 3},
		{"one per batch", 3, 1, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newPlan(tc.total, tc.batchSize)
			if p.batches != tc.batches {
				t.Fatalf("newPlan(%d, %d).batches = %d, want %d", tc.total, tc.batchSize, p.batches, tc.batches)
			}
		})
	}
}

func TestPlanBounds(t *testing.T) {
	t.Parallel()
	p := newPlan(250, 100)
	wantBounds := [][2]int{{0, 100}, {100, 200}, {200, 250}}
	for i, want := range wantBounds {
		lo, hi := p.bounds(i)
		if lo != want[0] || hi != want[1] {
			t.Fatalf("bounds(%d) = [%d, %d), want [%d, %d)", i, lo, hi, want[0], want[1])
		}
	}

	recipients := make([]string, 250)
	if got := len(p.slice(recipients, 2)); got != 50 {
		t.Fatalf("final batch length = %d, want 50", got)
	}
}

func TestPercent(t *testing.T) {
	t.Parallel()
	cases := []struct {
		done, total, want int
	}{
		{0, 0, 0},
		{5, 0, 0},
		{0, 100, 0},
		{1, 3, 33},
		{2, 3, 67},
		{50, 100, 50},
		{100, 100, 100},
		{150, 100, 100},
	}
	for _, tc := range cases {
		if got := percent(tc.done, tc.total); got != tc.want {
			t.Fatalf("percent(%d, %d) = %d, want %d", tc.done, tc.total, got, tc.want)
		}
	}
}

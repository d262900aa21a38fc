package bulkdm

// plan slices a recipient list into fixed-size batches. Pure arithmetic
// so the dispatch loop stays easy to reason about.
type plan struct {
	total     int
	batchSize int
	batches   int
}

func newPlan(total, batchSize int) plan {
	if batchSize < 1 {
		batchSize = defaultBatchSize
	}
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}
	p := plan{total: total, batchSize: batchSize}
	if total > 0 {
		p.batches = (total + batchSize - 1) / batchSize
	}
	return p
}

// bounds returns the half-open [lo, hi) recipient range of batch i.
func (p plan) bounds(i int) (lo, hi int) {
	lo = i * p.batchSize
	hi = lo + p.batchSize
	if hi > p.total {
		hi = p.total
	}
	return lo, hi
}

func (p plan) slice(recipients []string, i int) []string {
	lo, hi := p.bounds(i)
	return recipients[lo:hi]
}

// percent rounds done/total to an integer percentage. Zero totals map
// to zero so an empty batch never divides by zero.
func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	p := (done*100 + total/2) / total
	if p > 100 {
		p = 100
	}
	return p
}

package matrix

// DefaultDebounceDepth is the number of consecutive identical raw samples
// required before a switch is considered settled.
const DefaultDebounceDepth = 5

// Debouncer filters contact bounce per coordinate. A coordinate changes
// its settled state only after depth consecutive raw samples that all
// disagree with it; a single agreeing sample restarts the count.
type Debouncer struct {
	depth   uint8
	settled Snapshot
	count   [MaxRows][MaxCols]uint8
}

// NewDebouncer returns a debouncer with every switch settled released.
// A depth of 0 selects DefaultDebounceDepth.
func NewDebouncer(depth uint8) *Debouncer {
	if depth == 0 {
		depth = DefaultDebounceDepth
	}
	return &Debouncer{depth: depth}
}

// Depth returns the configured debounce depth.
func (d *Debouncer) Depth() uint8 { return d.depth }

// Settled returns the current debounced state.
func (d *Debouncer) Settled() Snapshot { return d.settled }

// Update feeds one raw sample for the coordinates inside size and records
// every coordinate whose settled state flipped into changed.
func (d *Debouncer) Update(raw *Snapshot, size Size, changed *Snapshot) {
	*changed = Snapshot{}
	for r := uint8(0); r < size.Rows; r++ {
		for c := uint8(0); c < size.Cols; c++ {
			if raw.Get(r, c) == d.settled.Get(r, c) {
				d.count[r][c] = 0
				continue
			}
			d.count[r][c]++
			if d.count[r][c] < d.depth {
				continue
			}
			d.count[r][c] = 0
			d.settled.Set(r, c, raw.Get(r, c))
			changed.Set(r, c, true)
		}
	}
}

// reset forgets any pending count for (row, col) without touching its
// settled state.
func (d *Debouncer) reset(row, col uint8) {
	d.count[row][col] = 0
}

package calendar

// RangeChange is delivered to range observers.
type RangeChange struct {
	Range Range  `json:"range"`
	Title string `json:"title"`
}

// RangeNotifier remembers the last published range and title and calls its
// observers only when they change. Callbacks run synchronously, in
// registration order.
type RangeNotifier struct {
	last    *RangeChange
	onRange []func(RangeChange)
	onTitle []func(string)
}

func (n *RangeNotifier) OnRangeChanged(fn func(RangeChange)) {
	n.onRange = append(n.onRange, fn)
}

func (n *RangeNotifier) OnTitleChanged(fn func(string)) {
	n.onTitle = append(n.onTitle, fn)
}

// Observe publishes rng and title if either differs from the previous call
// and reports whether anything was published.
func (n *RangeNotifier) Observe(rng Range, title string) bool {
	rangeChanged := n.last == nil || !n.last.Range.Equal(rng)
	titleChanged := n.last == nil || n.last.Title != title
	if !rangeChanged && !titleChanged {
		return false
	}

	change := RangeChange{Range: rng, Title: title}
	n.last = &change

	if rangeChanged {
		for _, fn := range n.onRange {
			fn(change)
		}
	}
	if titleChanged {
		for _, fn := range n.onTitle {
			fn(title)
		}
	}
	return true
}

// Reset forgets the last published value so the next Observe always fires.
func (n *RangeNotifier) Reset() {
	n.last = nil
}

package engine

// Order is a participant's session sequence.
type Order []int

// GenerateOrder returns a Fisher-Yates permutation of ids. intn must return
// a uniform value in [0, n); pass rand.IntN in production and a scripted
// function in tests.
func GenerateOrder(ids []int, intn func(n int) int) Order {
	out := make(Order, len(ids))
	copy(out, ids)
	for i := len(out) - 1; i > 0; i-- {
		j := intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// First returns the first session, or false for an empty order.
func (o Order) First() (int, bool) {
	if len(o) == 0 {
		return 0, false
	}
	return o[0], true
}

// Next returns the session after current. It returns false when current is
// the last entry or is not part of the order, which means the run is over.
func (o Order) Next(current int) (int, bool) {
	for i, id := range o {
		if id == current {
			if i+1 < len(o) {
				return o[i+1], true
			}
			return 0, false
		}
	}
	return 0, false
}

// Contains reports whether id is part of the order.
func (o Order) Contains(id int) bool {
	for _, v := range o {
		if v == id {
			return true
		}
	}
	return false
}

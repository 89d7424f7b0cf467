package game

// Quantity is the cardinality constraint attached to move and pick rules.
type Quantity string

const (
	Exactly  Quantity = "exactly"
	AtMost   Quantity = "atMost"
	AtLeast  Quantity = "atLeast"
	MoreThan Quantity = "moreThan"
	LessThan Quantity = "lessThan"
	All      Quantity = "all"
)

// Valid reports whether q is one of the known quantity kinds.
func (q Quantity) Valid() bool {
	switch q {
	case Exactly, AtMost, AtLeast, MoreThan, LessThan, All:
		return true
	}
	return false
}

// IsCountComplete compares value against count using q. All always reports
// false: its cardinality is the size of the available set, not count.
func IsCountComplete(q Quantity, count, value int) bool {
	switch q {
	case Exactly:
		return value == count
	case AtMost:
		return value <= count
	case AtLeast:
		return value >= count
	case MoreThan:
		return value > count
	case LessThan:
		return value < count
	}
	return false
}

// Sizes lists every selection size in 0..available that satisfies q against
// count, ascending. For All the only size is available.
func (q Quantity) Sizes(count, available int) []int {
	if q == All {
		return []int{available}
	}
	var out []int
	for n := 0; n <= available; n++ {
		if IsCountComplete(q, count, n) {
			out = append(out, n)
		}
	}
	return out
}

// Position is an insertion or removal policy for a Location.
type Position string

const (
	Default Position = ""
	Top     Position = "top"
	Bottom  Position = "bottom"
	Random  Position = "random"
)

// Resolve maps Default to Top.
func (p Position) Resolve() Position {
	if p == Default {
		return Top
	}
	return p
}

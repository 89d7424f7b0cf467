package game

// UniqueList is an ordered set with soft delete, used for turn rotation.
// Removing a value keeps its slot so traversal positions stay stable; adding
// it again appends a fresh slot at the end.
type UniqueList[T comparable] struct {
	slots   []T
	removed []bool
	index   map[T]int // live value -> slot
}

func NewUniqueList[T comparable](values ...T) *UniqueList[T] {
	l := &UniqueList[T]{}
	for _, v := range values {
		l.Add(v)
	}
	return l
}

// Add appends v. Reports false if v is already live.
func (l *UniqueList[T]) Add(v T) bool {
	if l.index == nil {
		l.index = map[T]int{}
	}
	if _, ok := l.index[v]; ok {
		return false
	}
	l.index[v] = len(l.slots)
	l.slots = append(l.slots, v)
	l.removed = append(l.removed, false)
	return true
}

// Remove marks v removed. Reports false if v is not live.
func (l *UniqueList[T]) Remove(v T) bool {
	i, ok := l.index[v]
	if !ok {
		return false
	}
	l.removed[i] = true
	delete(l.index, v)
	return true
}

func (l *UniqueList[T]) Contains(v T) bool {
	_, ok := l.index[v]
	return ok
}

// Len counts live values.
func (l *UniqueList[T]) Len() int { return len(l.index) }

// Values returns the live values in order.
func (l *UniqueList[T]) Values() []T {
	out := make([]T, 0, len(l.index))
	for i, v := range l.slots {
		if !l.removed[i] {
			out = append(out, v)
		}
	}
	return out
}

// Next returns the first live value after v. A removed v is located by its
// most recent slot. With loop the search wraps around.
func (l *UniqueList[T]) Next(v T, loop bool) (T, bool) {
	return l.step(v, 1, loop)
}

// Prev is Next in the other direction.
func (l *UniqueList[T]) Prev(v T, loop bool) (T, bool) {
	return l.step(v, -1, loop)
}

func (l *UniqueList[T]) step(v T, dir int, loop bool) (T, bool) {
	var zero T
	start := l.slotOf(v)
	if start < 0 {
		return zero, false
	}
	n := len(l.slots)
	for k := 1; k <= n; k++ {
		i := start + dir*k
		if i < 0 || i >= n {
			if !loop {
				break
			}
			i = ((i % n) + n) % n
		}
		if !l.removed[i] {
			return l.slots[i], true
		}
	}
	return zero, false
}

func (l *UniqueList[T]) slotOf(v T) int {
	if i, ok := l.index[v]; ok {
		return i
	}
	for i := len(l.slots) - 1; i >= 0; i-- {
		if l.slots[i] == v {
			return i
		}
	}
	return -1
}

package game

type EventKind string

const (
	EventMove     EventKind = "move"
	EventShuffle  EventKind = "shuffle"
	EventLabel    EventKind = "label"
	EventVariable EventKind = "variable"
	EventMessage  EventKind = "message"
)

// Event reports a board mutation to views and observers. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind       EventKind
	CardID     int
	FromID     int
	LocationID int
	Index      int
	Key        string
	Value      any
	Labels     []string
	Message    string
	Detail     any
	Bubbles    bool
}

// Subscribe registers fn for every emitted event and returns a function that
// removes it.
func (b *Board) Subscribe(fn func(Event)) func() {
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	return func() { delete(b.subs, id) }
}

func (b *Board) Emit(e Event) {
	for i := 0; i < b.nextSub; i++ {
		if fn, ok := b.subs[i]; ok {
			fn(e)
		}
	}
}

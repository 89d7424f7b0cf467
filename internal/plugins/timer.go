package plugins

import (
	"fmt"
	"sync"
	"time"

	"example.com/tabletop/internal/game"
	"example.com/tabletop/internal/rule"
)

const (
	TypeDelay        = "delay"
	TypeSetTemporary = "setTemporary"
)

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Delay answers with an empty batch once Timeout seconds have passed.
type Delay struct{}

func (Delay) RuleTypes() []string    { return []string{TypeDelay} }
func (Delay) CommandTypes() []string { return nil }

func (Delay) CreateRule(_ *game.Board, args rule.Fields) (*rule.Rule, error) {
	r := &rule.Rule{Type: TypeDelay, User: args.String("user"), Timeout: args.Float("timeout", 0)}
	if r.Timeout < 0 {
		return nil, fmt.Errorf("%w: negative delay", rule.ErrMalformedRule)
	}
	return r, nil
}

func (Delay) PerformRule(ctx *rule.Context, r *rule.Rule) ([][]rule.Command, error) {
	if r.Timeout == 0 {
		return [][]rule.Command{{}}, nil
	}
	ctx.After(seconds(r.Timeout), func() { ctx.Send(nil) })
	return nil, nil
}

func (Delay) UpdateBoard(*game.Board, rule.Command) error { return nil }

func (Delay) CreateResult(*game.Board, rule.Command) (any, error) { return nil, nil }

// Temporary sets a card variable on the resolving client's board only,
// reverts it after Timeout seconds and then answers with an empty batch.
// Used to peek at cards without other boards seeing the change.
//
// A client speaking for several addressed users performs the rule once per
// user on the same board; only the first performance saves and reverts.
type Temporary struct {
	mu   sync.Mutex
	held map[heldKey]bool
}

type heldKey struct {
	board *game.Board
	rule  int
}

func NewTemporary() *Temporary { return &Temporary{held: map[heldKey]bool{}} }

func (*Temporary) RuleTypes() []string    { return []string{TypeSetTemporary} }
func (*Temporary) CommandTypes() []string { return nil }

func (*Temporary) CreateRule(b *game.Board, args rule.Fields) (*rule.Rule, error) {
	affects, ok := args.IDString(b, "cards")
	if !ok {
		return nil, fmt.Errorf("%w: setTemporary needs 'cards'", rule.ErrMalformedRule)
	}
	r := &rule.Rule{
		Type:    TypeSetTemporary,
		User:    args.String("user"),
		Key:     args.String("key"),
		Value:   args["value"],
		Affects: affects,
		Timeout: args.Float("timeout", 1),
	}
	if r.Key == "" {
		return nil, fmt.Errorf("%w: setTemporary needs 'key'", rule.ErrMalformedRule)
	}
	return r, nil
}

type savedVariable struct {
	card *game.Card
	val  any
	had  bool
}

// hold reports whether the caller is the first to change b for rule id.
func (t *Temporary) hold(b *game.Board, id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := heldKey{b, id}
	if t.held[k] {
		return false
	}
	if t.held == nil {
		t.held = map[heldKey]bool{}
	}
	t.held[k] = true
	return true
}

func (t *Temporary) release(b *game.Board, id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.held, heldKey{b, id})
}

func (t *Temporary) PerformRule(ctx *rule.Context, r *rule.Rule) ([][]rule.Command, error) {
	b := ctx.Board
	if !t.hold(b, r.ID) {
		ctx.After(seconds(r.Timeout), func() { ctx.Send(nil) })
		return nil, nil
	}
	var saved []savedVariable
	for _, c := range b.QueryCards(r.Affects) {
		v, had := c.Variable(r.Key)
		saved = append(saved, savedVariable{card: c, val: v, had: had})
		c.SetVariable(r.Key, r.Value)
		b.Emit(game.Event{Kind: game.EventVariable, CardID: c.ID, Key: r.Key, Value: r.Value})
	}
	ctx.After(seconds(r.Timeout), func() {
		for _, s := range saved {
			if s.had {
				s.card.SetVariable(r.Key, s.val)
			} else {
				s.card.DeleteVariable(r.Key)
			}
			b.Emit(game.Event{Kind: game.EventVariable, CardID: s.card.ID, Key: r.Key, Value: s.val})
		}
		t.release(b, r.ID)
		ctx.Send(nil)
	})
	return nil, nil
}

func (*Temporary) UpdateBoard(*game.Board, rule.Command) error { return nil }

func (*Temporary) CreateResult(*game.Board, rule.Command) (any, error) { return nil, nil }

// Package script supplies the rule sequences a game server steps through.
// A script is single pass: once Next reports done it stays done.
package script

import (
	"sort"
	"sync"
	"sync/atomic"

	"example.com/tabletop/internal/rule"
)

// Responses maps each user to the results of the commands they sent for the
// previous rule.
type Responses map[string][]any

// Users lists the users named in responses, sorted.
func (r Responses) Users() []string {
	out := make([]string, 0, len(r))
	for u := range r {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Script yields the next rule given the responses to the previous one. ok is
// false once the game is over.
type Script interface {
	Next(responses Responses) (r *rule.Rule, ok bool)
}

// Func adapts a plain function.
type Func func(Responses) (*rule.Rule, bool)

func (f Func) Next(responses Responses) (*rule.Rule, bool) { return f(responses) }

// Sequence plays a fixed list of rules and ignores responses.
type Sequence struct {
	rules []*rule.Rule
	next  int
}

func NewSequence(rules ...*rule.Rule) *Sequence {
	return &Sequence{rules: rules}
}

func (s *Sequence) Next(Responses) (*rule.Rule, bool) {
	if s.next >= len(s.rules) {
		return nil, false
	}
	r := s.rules[s.next]
	s.next++
	return r, true
}

// Yielder is the body's side of a Generator.
type Yielder struct {
	out  chan *rule.Rule
	in   chan Responses
	stop chan struct{}
}

// Yield hands r to the server and blocks until the responses to it arrive.
// ok is false when the generator was stopped; the body should return.
func (y *Yielder) Yield(r *rule.Rule) (Responses, bool) {
	select {
	case y.out <- r:
	case <-y.stop:
		return nil, false
	}
	select {
	case resp := <-y.in:
		return resp, true
	case <-y.stop:
		return nil, false
	}
}

// Generator runs body on its own goroutine and hands rules across one at a
// time, so game logic can be written as straight-line code.
type Generator struct {
	body    func(*Yielder)
	y       *Yielder
	started bool
	done    atomic.Bool
	once    sync.Once
}

func NewGenerator(body func(*Yielder)) *Generator {
	return &Generator{
		body: body,
		y: &Yielder{
			out:  make(chan *rule.Rule),
			in:   make(chan Responses),
			stop: make(chan struct{}),
		},
	}
}

func (g *Generator) Next(responses Responses) (*rule.Rule, bool) {
	if g.done.Load() {
		return nil, false
	}
	if !g.started {
		g.started = true
		go func() {
			defer close(g.y.out)
			g.body(g.y)
		}()
	} else {
		// the body is parked in Yield waiting for these
		select {
		case g.y.in <- responses:
		case <-g.y.stop:
			return nil, false
		}
	}
	r, open := <-g.y.out
	if !open {
		g.done.Store(true)
		return nil, false
	}
	return r, true
}

// Stop releases a body blocked in Yield.
func (g *Generator) Stop() {
	g.done.Store(true)
	g.once.Do(func() { close(g.y.stop) })
}

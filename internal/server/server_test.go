package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/tabletop/internal/client"
	"example.com/tabletop/internal/game"
	"example.com/tabletop/internal/plugins"
	"example.com/tabletop/internal/rule"
	"example.com/tabletop/internal/script"
	"example.com/tabletop/internal/transport"
)

type fakeTransport struct {
	transport.Base
	mu   sync.Mutex
	sent []transport.Message
}

func newFake(users ...string) *fakeTransport {
	return &fakeTransport{Base: transport.NewBase(users...)}
}

func (f *fakeTransport) Send(m transport.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) of(k transport.Kind) []transport.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []transport.Message
	for _, m := range f.sent {
		if m.Command == k {
			out = append(out, m)
		}
	}
	return out
}

type fakeRecorder struct {
	mu      sync.Mutex
	batches []*rule.Batch
}

func (r *fakeRecorder) Record(_ context.Context, _ *rule.Rule, b *rule.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
	return nil
}

func table() *game.Board {
	b := game.NewBoard(1)
	hand := b.CreateLocation("hand", 1)
	b.CreateLocation("pile", 2)
	for i, name := range []string{"two", "five", "nine"} {
		c := b.CreateCard(name, 10+i)
		c.SetVariable("rank", []int{2, 5, 9}[i])
		hand.AddCard(c)
	}
	return b
}

func newServer(opts Options) *GameServer {
	if opts.Board == nil {
		opts.Board = table()
	}
	opts.Registry = plugins.MustInstall(rule.NewRegistry(zerolog.Nop()))
	opts.Logger = zerolog.Nop()
	return New(opts)
}

func moveRule(users string) *rule.Rule {
	return &rule.Rule{Type: plugins.TypeMove, User: users, From: "hand", To: "pile", Quantity: game.Exactly, Count: 1}
}

func moveBatch(id int, user string, card int) *rule.Batch {
	b := rule.NewBatch(id)
	b.Commands[user] = []rule.Command{{Type: plugins.TypeMove, CardID: card, FromID: 1, ToID: 2, Index: -1}}
	return b
}

func TestProtocolBatching(t *testing.T) {
	rec := &fakeRecorder{}
	s := newServer(Options{Recorder: rec})
	p1, p2, obs := newFake("P1"), newFake("P2"), newFake("OBS")
	s.AddTransport(p1)
	s.AddTransport(p2)
	s.AddTransport(obs)
	assert.Equal(t, Idle, s.Status())

	s.NewGame(script.NewSequence(moveRule("P1,P2")))
	require.Equal(t, Ready, s.Status())
	id := s.Current().ID

	assert.Len(t, p1.of(transport.KindBoard), 1)
	assert.Len(t, p1.of(transport.KindRule), 1)
	assert.Len(t, p2.of(transport.KindRule), 1)
	assert.Empty(t, obs.of(transport.KindRule))

	s.HandleMessage(p1, transport.BatchMessage(moveBatch(id, "P1", 12)))
	assert.Equal(t, Ready, s.Status())
	assert.Empty(t, obs.of(transport.KindBatch))

	s.HandleMessage(p2, transport.BatchMessage(moveBatch(id, "P2", 11)))
	assert.Equal(t, Complete, s.Status())

	for _, f := range []*fakeTransport{p1, p2, obs} {
		got := f.of(transport.KindBatch)
		require.Len(t, got, 1)
		assert.Equal(t, id, got[0].Batch.RuleID)
		assert.Equal(t, []string{"P1", "P2"}, got[0].Batch.Users())
	}
	snap := s.Snapshot()
	board, err := game.Load(snap, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, board.FindLocationByName("pile").Len())
	assert.Len(t, rec.batches, 1)
}

func TestHandleCommandsResults(t *testing.T) {
	s := newServer(Options{})
	s.AddTransport(newFake("P1", "P2"))
	s.NewGame(script.NewSequence(moveRule("P1,P2")))
	id := s.Current().ID

	out := script.Responses{}
	assert.False(t, s.HandleCommands(moveBatch(id, "P1", 12), out))
	require.Len(t, out["P1"], 1)
	card, ok := out["P1"][0].(*game.Card)
	require.True(t, ok)
	assert.Equal(t, 12, card.ID)

	assert.True(t, s.HandleCommands(moveBatch(id, "P2", 11), out))
	assert.Len(t, out["P2"], 1)
}

func TestStaleAndDuplicateRejected(t *testing.T) {
	s := newServer(Options{})
	p1, p2 := newFake("P1"), newFake("P2")
	s.AddTransport(p1)
	s.AddTransport(p2)
	s.NewGame(script.NewSequence(moveRule("P1,P2")))
	id := s.Current().ID

	_, err := s.collect(moveBatch(id-1, "P1", 12), nil)
	assert.True(t, errors.Is(err, ErrStaleBatch))
	assert.False(t, s.HandleCommands(moveBatch(id-1, "P1", 12), nil))

	_, err = s.collect(moveBatch(id, "P1", 12), nil)
	require.NoError(t, err)
	_, err = s.collect(moveBatch(id, "P1", 11), nil)
	assert.True(t, errors.Is(err, ErrDuplicateResponse))

	_, err = s.collect(moveBatch(id, "P3", 11), nil)
	assert.True(t, errors.Is(err, ErrUnexpectedUser))

	// P1's transport cannot answer for P2
	s.HandleMessage(p1, transport.BatchMessage(moveBatch(id, "P2", 11)))
	assert.Equal(t, Ready, s.Status())
	assert.Empty(t, p1.of(transport.KindBatch))
}

func TestStepErrors(t *testing.T) {
	s := newServer(Options{})
	s.AddTransport(newFake("P1"))
	s.NewGame(script.NewSequence(moveRule("P9")))
	assert.Equal(t, Error, s.Status())

	s.NewGame(script.NewSequence(moveRule("")))
	assert.Equal(t, Error, s.Status())

	s.NewGame(script.Func(func(script.Responses) (*rule.Rule, bool) { return nil, true }))
	assert.Equal(t, Error, s.Status())

	s.NewGame(script.NewSequence())
	assert.Equal(t, Complete, s.Status())

	_, err := s.collect(moveBatch(1, "P1", 12), nil)
	assert.True(t, errors.Is(err, ErrNotReady))
}

func TestRuleIDsIncrease(t *testing.T) {
	s := newServer(Options{})
	bank := newFake("BANK")
	s.AddTransport(bank)
	msg := func(id int) *rule.Rule {
		return &rule.Rule{ID: id, Type: plugins.TypeSendMessage, User: "BANK", Message: "hi"}
	}
	s.NewGame(script.NewSequence(msg(0), msg(0), msg(50), msg(3)))

	var ids []int
	for s.Status() == Ready {
		id := s.Current().ID
		ids = append(ids, id)
		b := rule.NewBatch(id)
		b.Commands["BANK"] = []rule.Command{{Type: plugins.TypeSendMessage, Message: "hi"}}
		s.HandleMessage(bank, transport.BatchMessage(b))
	}
	assert.Equal(t, []int{1, 2, 50, 51}, ids)
	assert.Equal(t, Complete, s.Status())
}

func TestResponsesReachScript(t *testing.T) {
	s := newServer(Options{})
	p1 := newFake("P1")
	s.AddTransport(p1)

	var got []script.Responses
	calls := 0
	s.NewGame(script.Func(func(resp script.Responses) (*rule.Rule, bool) {
		got = append(got, resp)
		calls++
		if calls > 2 {
			return nil, false
		}
		return &rule.Rule{Type: plugins.TypePick, User: "P1", Values: []any{"a", "b"}, Quantity: game.Exactly, Count: 1}, true
	}))
	id := s.Current().ID
	b := rule.NewBatch(id)
	b.Commands["P1"] = []rule.Command{{Type: plugins.TypePick, Values: []any{"b"}}}
	s.HandleMessage(p1, transport.BatchMessage(b))

	require.Len(t, got, 2)
	assert.Nil(t, got[0])
	assert.Equal(t, script.Responses{"P1": {[]any{"b"}}}, got[1])
}

func TestAddTransportResendsOpenRule(t *testing.T) {
	s := newServer(Options{})
	s.AddTransport(newFake("P1", "P2"))
	s.NewGame(script.NewSequence(moveRule("P1,P2")))
	id := s.Current().ID
	require.False(t, s.HandleCommands(moveBatch(id, "P1", 12), nil))

	again := newFake("P2")
	s.AddTransport(again)
	assert.Len(t, again.of(transport.KindBoard), 1)
	require.Len(t, again.of(transport.KindRule), 1)

	done := newFake("P1")
	s.AddTransport(done)
	assert.Empty(t, done.of(transport.KindRule))

	s.RemoveTransport(again)
	s.HandleMessage(again, transport.BatchMessage(moveBatch(id, "P2", 11)))
	assert.Equal(t, Complete, s.Status())
	assert.Empty(t, again.of(transport.KindBatch))
	assert.Len(t, done.of(transport.KindBatch), 1)
}

func TestTimeoutFallback(t *testing.T) {
	board := table()
	reg := plugins.MustInstall(rule.NewRegistry(zerolog.Nop()))
	s := New(Options{
		Board:           board,
		Registry:        reg,
		Logger:          zerolog.Nop(),
		ResponseTimeout: 20 * time.Millisecond,
		Fallback:        client.NewBankClient(board, reg, 1, zerolog.Nop()),
	})
	p1 := newFake("P1")
	s.AddTransport(p1)
	s.NewGame(script.NewSequence(moveRule("P1"), &rule.Rule{Type: plugins.TypeDelay, User: "P1", Timeout: 0.01}))

	assert.Eventually(t, func() bool { return s.Status() == Complete }, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, p1.of(transport.KindBatch), 2)
	assert.Equal(t, 1, board.FindLocationByName("pile").Len())
}

func TestFallbackTemporaryStaysOffServerBoard(t *testing.T) {
	board := table()
	reg := plugins.MustInstall(rule.NewRegistry(zerolog.Nop()))
	s := New(Options{
		Board:           board,
		Registry:        reg,
		Logger:          zerolog.Nop(),
		ResponseTimeout: 5 * time.Millisecond,
		Fallback:        client.NewBankClient(game.NewBoard(0), reg, 1, zerolog.Nop()),
	})
	p1 := newFake("P1")
	s.AddTransport(p1)
	s.NewGame(script.NewSequence(&rule.Rule{
		Type: plugins.TypeSetTemporary, User: "P1", Affects: "10", Key: "peek", Value: "up", Timeout: 0.02,
	}))

	exposed := func() bool {
		for _, c := range s.Snapshot().Cards {
			if _, ok := c.Variables["peek"]; ok {
				return true
			}
		}
		return false
	}
	var seen atomic.Bool
	assert.Eventually(t, func() bool {
		if exposed() {
			seen.Store(true)
		}
		return s.Status() == Complete
	}, 2*time.Second, time.Millisecond)
	assert.False(t, seen.Load(), "server board carried the temporary value")
	assert.False(t, exposed())
	assert.Len(t, p1.of(transport.KindBatch), 1)
}

func TestTimeoutWithoutFallbackKeepsWaiting(t *testing.T) {
	s := newServer(Options{ResponseTimeout: 5 * time.Millisecond})
	s.AddTransport(newFake("P1"))
	s.NewGame(script.NewSequence(moveRule("P1")))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, Ready, s.Status())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "status(9)", Status(9).String())
}

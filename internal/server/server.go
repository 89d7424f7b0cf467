// Package server drives a game: it pulls rules from a script, routes each
// rule to the transports of its users, collects their command batches and
// broadcasts every completed batch to all transports.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"example.com/tabletop/internal/client"
	"example.com/tabletop/internal/game"
	"example.com/tabletop/internal/rule"
	"example.com/tabletop/internal/script"
	"example.com/tabletop/internal/transport"
)

var (
	ErrNoTransport       = errors.New("no transport for rule users")
	ErrStaleBatch        = errors.New("batch for a rule that is not open")
	ErrDuplicateResponse = errors.New("user already responded")
	ErrUnexpectedUser    = errors.New("user not addressed by rule")
	ErrNotReady          = errors.New("server is not waiting for a batch")
)

type Status int

const (
	Idle Status = iota
	Ready
	Complete
	Error
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Complete:
		return "complete"
	case Error:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Recorder persists completed batches.
type Recorder interface {
	Record(ctx context.Context, r *rule.Rule, b *rule.Batch) error
}

type Options struct {
	Board    *game.Board
	Registry *rule.Registry
	Logger   zerolog.Logger
	Recorder Recorder

	// ResponseTimeout bounds the wait for a rule's users. Zero waits
	// forever.
	ResponseTimeout time.Duration
	// Fallback answers for users who missed the timeout. It resolves
	// against a fresh copy of the server board and never receives
	// broadcasts.
	Fallback client.Client
}

// GameServer is safe for concurrent use; every transport handler is
// serialised on one mutex.
type GameServer struct {
	mu         sync.Mutex
	board      *game.Board
	reg        *rule.Registry
	logger     zerolog.Logger
	recorder   Recorder
	timeout    time.Duration
	fallback   client.Client
	transports []transport.Transport

	script    script.Script
	status    Status
	lastID    int
	current   *rule.Rule
	batch     *rule.Batch
	responses script.Responses
	timer     *time.Timer
}

func New(opts Options) *GameServer {
	return &GameServer{
		board:    opts.Board,
		reg:      opts.Registry,
		logger:   opts.Logger,
		recorder: opts.Recorder,
		timeout:  opts.ResponseTimeout,
		fallback: opts.Fallback,
	}
}

func (s *GameServer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Current returns the open rule, if any.
func (s *GameServer) Current() *rule.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Ready {
		return nil
	}
	return s.current
}

// Snapshot saves the server board.
func (s *GameServer) Snapshot() game.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Save()
}

// AddTransport connects t. It receives the current board and, when it speaks
// for a user the open rule still waits on, that rule.
func (s *GameServer) AddTransport(t transport.Transport) {
	t.SetHandler(func(m transport.Message) { s.HandleMessage(t, m) })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.transports = append(s.transports, t)
	s.logger.Info().Strs("users", t.Users()).Int("transports", len(s.transports)).Msg("transport added")

	if s.board != nil {
		s.send(t, transport.BoardMessage(s.board.Save()))
	}
	if s.status == Ready && transport.Overlaps(t, s.missing()) {
		s.send(t, transport.RuleMessage(s.current))
	}
}

func (s *GameServer) RemoveTransport(t transport.Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, have := range s.transports {
		if have == t {
			s.transports = append(s.transports[:i], s.transports[i+1:]...)
			s.logger.Info().Strs("users", t.Users()).Msg("transport removed")
			return
		}
	}
}

// NewGame starts sc and sends its first rule.
func (s *GameServer) NewGame(sc script.Script) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = sc
	s.status = Idle
	s.current, s.batch = nil, nil
	s.step(nil)
}

// Step pulls the next rule, feeding it the responses to the previous one.
func (s *GameServer) Step(responses script.Responses) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step(responses)
}

func (s *GameServer) step(responses script.Responses) {
	s.stopTimer()
	if s.script == nil {
		s.fail("no game script")
		return
	}
	r, ok := s.script.Next(responses)
	if !ok {
		s.status = Complete
		s.current, s.batch = nil, nil
		s.logger.Info().Int("lastRule", s.lastID).Msg("game complete")
		return
	}
	if r == nil {
		s.fail("script produced no rule")
		return
	}
	users := r.Users()
	if len(users) == 0 {
		s.fail("rule has no user")
		return
	}

	if r.ID <= s.lastID {
		r.ID = s.lastID + 1
	}
	s.lastID = r.ID

	var matched []transport.Transport
	for _, t := range s.transports {
		if transport.Overlaps(t, users) {
			matched = append(matched, t)
		}
	}
	if len(matched) == 0 {
		s.logger.Error().Err(ErrNoTransport).Int("rule", r.ID).Strs("users", users).Msg("cannot route rule")
		s.status = Error
		return
	}

	s.current = r
	s.batch = rule.NewBatch(r.ID)
	s.responses = script.Responses{}
	s.status = Ready
	s.logger.Debug().Int("rule", r.ID).Str("type", r.Type).Strs("users", users).Msg("rule sent")
	for _, t := range matched {
		s.send(t, transport.RuleMessage(r))
	}
	s.startTimer(r.ID)
}

func (s *GameServer) fail(msg string) {
	s.logger.Error().Int("lastRule", s.lastID).Msg(msg)
	s.status = Error
	s.current, s.batch = nil, nil
}

// HandleCommands merges b into the open batch and adds each sender's command
// results to out. It reports true once every addressed user has answered;
// rejected batches are logged and report false.
func (s *GameServer) HandleCommands(b *rule.Batch, out script.Responses) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	done, err := s.collect(b, out)
	if err != nil {
		s.reject(b, err)
	}
	return done
}

// HandleMessage is the handler installed on every transport.
func (s *GameServer) HandleMessage(from transport.Transport, m transport.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Command != transport.KindBatch || m.Batch == nil {
		s.logger.Warn().Str("command", string(m.Command)).Msg("unexpected message from client")
		return
	}
	if err := s.owns(from, m.Batch); err != nil {
		s.reject(m.Batch, err)
		return
	}
	s.accept(m.Batch)
}

// accept collects b and steps when the rule is complete.
func (s *GameServer) accept(b *rule.Batch) {
	done, err := s.collect(b, s.responses)
	if err != nil {
		s.reject(b, err)
		return
	}
	if done {
		s.step(s.responses)
	}
}

func (s *GameServer) reject(b *rule.Batch, err error) {
	ev := s.logger.Warn().Err(err).Int("rule", b.RuleID).Strs("users", b.Users())
	if s.batch != nil {
		ev = ev.Int("open", s.batch.RuleID)
	}
	ev.Msg("batch rejected")
}

// owns checks that a transport only answers for its own users.
func (s *GameServer) owns(t transport.Transport, b *rule.Batch) error {
	mine := map[string]bool{}
	for _, u := range t.Users() {
		mine[u] = true
	}
	for u := range b.Commands {
		if !mine[u] {
			return fmt.Errorf("%w: %q from transport for %v", ErrUnexpectedUser, u, t.Users())
		}
	}
	return nil
}

func (s *GameServer) collect(b *rule.Batch, out script.Responses) (bool, error) {
	if s.status != Ready || s.batch == nil {
		return false, ErrNotReady
	}
	if b.RuleID != s.batch.RuleID {
		return false, fmt.Errorf("%w: got %d, open %d", ErrStaleBatch, b.RuleID, s.batch.RuleID)
	}
	addressed := map[string]bool{}
	for _, u := range s.current.Users() {
		addressed[u] = true
	}
	for _, u := range b.Users() {
		if _, dup := s.batch.Commands[u]; dup {
			return false, fmt.Errorf("%w: %q", ErrDuplicateResponse, u)
		}
		if !addressed[u] {
			return false, fmt.Errorf("%w: %q", ErrUnexpectedUser, u)
		}
	}

	for _, u := range b.Users() {
		cmds := b.Commands[u]
		if cmds == nil {
			cmds = []rule.Command{}
		}
		s.batch.Commands[u] = cmds
		if out == nil {
			continue
		}
		for _, cmd := range cmds {
			v, err := s.reg.Result(s.board, cmd)
			if err != nil {
				s.logger.Warn().Err(err).Str("type", cmd.Type).Str("user", u).Msg("command result")
				continue
			}
			out[u] = append(out[u], v)
		}
		if _, ok := out[u]; !ok {
			out[u] = []any{}
		}
	}

	if len(s.missing()) > 0 {
		return false, nil
	}
	s.complete()
	return true, nil
}

// missing lists addressed users without a response.
func (s *GameServer) missing() []string {
	var out []string
	for _, u := range s.current.Users() {
		if _, ok := s.batch.Commands[u]; !ok {
			out = append(out, u)
		}
	}
	return out
}

// complete applies the finished batch, records it and broadcasts it.
func (s *GameServer) complete() {
	s.stopTimer()
	for _, u := range s.batch.Users() {
		for _, cmd := range s.batch.Commands[u] {
			s.reg.Apply(s.board, cmd)
		}
	}
	if s.recorder != nil {
		if err := s.recorder.Record(context.Background(), s.current, s.batch); err != nil {
			s.logger.Error().Err(err).Int("rule", s.batch.RuleID).Msg("record batch")
		}
	}
	msg := transport.BatchMessage(s.batch)
	for _, t := range s.transports {
		s.send(t, msg)
	}
	s.logger.Debug().Int("rule", s.batch.RuleID).Strs("users", s.batch.Users()).Msg("batch broadcast")
}

func (s *GameServer) send(t transport.Transport, m transport.Message) {
	if err := t.Send(m); err != nil {
		s.logger.Warn().Err(err).Str("command", string(m.Command)).Strs("users", t.Users()).Msg("send failed")
	}
}

func (s *GameServer) startTimer(ruleID int) {
	if s.timeout <= 0 {
		return
	}
	s.timer = time.AfterFunc(s.timeout, func() { s.expire(ruleID) })
}

func (s *GameServer) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// expire answers for every user still missing on ruleID through the
// fallback client.
func (s *GameServer) expire(ruleID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Ready || s.current == nil || s.current.ID != ruleID {
		return
	}
	missing := s.missing()
	if s.fallback == nil {
		s.logger.Warn().Int("rule", ruleID).Strs("users", missing).Msg("response timeout, no fallback")
		return
	}
	s.logger.Warn().Int("rule", ruleID).Strs("users", missing).Msg("response timeout, using fallback")

	// plugins may mutate the board they resolve on, so the fallback never
	// sees the authoritative one
	view, err := game.Load(s.board.Save(), int64(ruleID))
	if err != nil {
		s.logger.Error().Err(err).Int("rule", ruleID).Msg("copy board for fallback")
		return
	}
	s.fallback.SetBoard(view)

	r := s.current
	for _, u := range missing {
		user := u
		req := client.Request{
			Rule: r,
			User: user,
			Reply: func(cmds []rule.Command) {
				go s.fallbackReply(ruleID, user, cmds)
			},
			Defer: s.after,
		}
		cmds := s.fallback.ResolveRule(req)
		if cmds == nil {
			continue
		}
		b := rule.NewBatch(ruleID)
		b.Commands[user] = cmds
		s.accept(b)
		if s.status != Ready || s.current.ID != ruleID {
			return
		}
	}
}

// after runs fn once d has passed, holding the server lock.
func (s *GameServer) after(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		fn()
	})
}

func (s *GameServer) fallbackReply(ruleID int, user string, cmds []rule.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := rule.NewBatch(ruleID)
	b.Commands[user] = cmds
	s.accept(b)
}

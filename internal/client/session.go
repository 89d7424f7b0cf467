package client

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"example.com/tabletop/internal/game"
	"example.com/tabletop/internal/rule"
	"example.com/tabletop/internal/transport"
)

// Session connects a Client to its transport. Inbound messages and plugin
// timers run one at a time.
type Session struct {
	mu     sync.Mutex
	client Client
	t      transport.Transport
	seed   int64
	logger zerolog.Logger

	// OnBoard runs, under the session lock, after a snapshot replaced the
	// client's board.
	OnBoard func(*game.Board)
}

// NewSession installs itself as t's handler. seed drives the rng of boards
// rebuilt from snapshots.
func NewSession(c Client, t transport.Transport, seed int64, logger zerolog.Logger) *Session {
	s := &Session{client: c, t: t, seed: seed, logger: logger}
	t.SetHandler(s.Handle)
	return s
}

func (s *Session) Client() Client { return s.client }

// Do runs fn with the session lock held, for reading the board safely.
func (s *Session) Do(fn func(Client)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.client)
}

func (s *Session) Handle(m transport.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m.Command {
	case transport.KindRule:
		if m.Rule == nil {
			s.logger.Error().Msg("rule message without rule")
			return
		}
		s.resolve(m.Rule)
	case transport.KindBatch:
		if m.Batch == nil {
			s.logger.Error().Msg("batch message without batch")
			return
		}
		s.client.BroadcastCommands(m.Batch)
	case transport.KindBoard:
		if m.Board == nil {
			s.logger.Error().Msg("board message without snapshot")
			return
		}
		b, err := game.Load(*m.Board, s.seed)
		if err != nil {
			s.logger.Error().Err(err).Msg("load board")
			return
		}
		s.client.SetBoard(b)
		if s.OnBoard != nil {
			s.OnBoard(b)
		}
	default:
		s.logger.Warn().Str("command", string(m.Command)).Msg("unknown message")
	}
}

func (s *Session) resolve(r *rule.Rule) {
	mine := map[string]bool{}
	for _, u := range s.client.Users() {
		mine[u] = true
	}
	for _, u := range r.Users() {
		if !mine[u] {
			continue
		}
		user := u
		req := Request{
			Rule:  r,
			User:  user,
			Reply: func(cmds []rule.Command) { s.reply(r.ID, user, cmds) },
			Defer: s.after,
		}
		if cmds := s.client.ResolveRule(req); cmds != nil {
			s.reply(r.ID, user, cmds)
		}
	}
}

func (s *Session) reply(ruleID int, user string, cmds []rule.Command) {
	b := rule.NewBatch(ruleID)
	b.Commands[user] = cmds
	if err := s.t.Send(transport.BatchMessage(b)); err != nil {
		s.logger.Error().Err(err).Int("rule", ruleID).Str("user", user).Msg("send batch")
	}
}

func (s *Session) after(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		fn()
	})
}

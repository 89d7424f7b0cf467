// Package client implements the roles that answer rules: the identity base
// client, the authoritative BANK, interactive players and headless AI.
package client

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"example.com/tabletop/internal/game"
	"example.com/tabletop/internal/rule"
)

// Request is one rule addressed to one of the client's users.
type Request struct {
	Rule *rule.Rule
	User string
	// Reply delivers commands produced after ResolveRule returned nil.
	Reply func([]rule.Command)
	// Defer schedules fn serialised with the client, for plugin timers.
	Defer func(time.Duration, func())
}

// Client answers rules and replays broadcast batches on its own board.
type Client interface {
	Users() []string
	Board() *game.Board
	SetBoard(*game.Board)
	// ResolveRule returns the commands for req, or nil while waiting for a
	// deferred answer.
	ResolveRule(req Request) []rule.Command
	BroadcastCommands(b *rule.Batch)
}

// BaseClient answers every rule with the rule itself.
type BaseClient struct {
	users  []string
	board  *game.Board
	reg    *rule.Registry
	rng    *rand.Rand
	logger zerolog.Logger
}

func NewBaseClient(board *game.Board, reg *rule.Registry, logger zerolog.Logger, users ...string) *BaseClient {
	return &BaseClient{users: users, board: board, reg: reg, rng: board.Rand(), logger: logger}
}

func (c *BaseClient) Users() []string          { return append([]string(nil), c.users...) }
func (c *BaseClient) Board() *game.Board       { return c.board }
func (c *BaseClient) SetBoard(b *game.Board)   { c.board = b }
func (c *BaseClient) Registry() *rule.Registry { return c.reg }

func (c *BaseClient) ResolveRule(req Request) []rule.Command {
	return []rule.Command{rule.CommandFromRule(req.Rule)}
}

// BroadcastCommands applies every command, users in name order so every
// replica mutates identically.
func (c *BaseClient) BroadcastCommands(b *rule.Batch) {
	for _, u := range b.Users() {
		for _, cmd := range b.Commands[u] {
			c.reg.Apply(c.board, cmd)
		}
	}
}

func (c *BaseClient) context(req Request) *rule.Context {
	return &rule.Context{
		Board:  c.board,
		User:   req.User,
		Rand:   c.rng,
		Reply:  req.Reply,
		Defer:  req.Defer,
		Logger: c.logger,
	}
}

// candidates runs the owning plugin. handled is false when the caller
// should fall back to the identity answer.
func (c *BaseClient) candidates(req Request) (results [][]rule.Command, handled bool) {
	results, owned, err := c.reg.Perform(c.context(req), req.Rule)
	if err != nil {
		c.logger.Error().Err(err).Int("rule", req.Rule.ID).Str("type", req.Rule.Type).Msg("perform rule")
		return nil, true
	}
	if !owned {
		return nil, false
	}
	if len(results) == 0 {
		c.logger.Info().Int("rule", req.Rule.ID).Str("type", req.Rule.Type).Str("user", req.User).Msg("waiting on plugin")
	}
	return results, true
}

// BankClient is the full-knowledge arbiter. It picks uniformly among every
// candidate batch.
type BankClient struct {
	*BaseClient
}

func NewBankClient(board *game.Board, reg *rule.Registry, seed int64, logger zerolog.Logger, users ...string) *BankClient {
	base := NewBaseClient(board, reg, logger, users...)
	base.rng = rand.New(rand.NewSource(seed))
	return &BankClient{BaseClient: base}
}

func (c *BankClient) ResolveRule(req Request) []rule.Command {
	results, handled := c.candidates(req)
	if !handled {
		return c.BaseClient.ResolveRule(req)
	}
	if len(results) == 0 {
		return nil
	}
	return results[c.rng.Intn(len(results))]
}

// Interactor lets a person choose among candidates. Choose must not block;
// the choice arrives later through submit.
type Interactor interface {
	Choose(r *rule.Rule, user string, candidates [][]rule.Command, submit func([]rule.Command))
}

// InteractiveClient answers with the first candidate, or defers to an
// Interactor when one is set.
type InteractiveClient struct {
	*BaseClient
	interactor Interactor
}

func NewInteractiveClient(board *game.Board, reg *rule.Registry, in Interactor, logger zerolog.Logger, users ...string) *InteractiveClient {
	return &InteractiveClient{BaseClient: NewBaseClient(board, reg, logger, users...), interactor: in}
}

func (c *InteractiveClient) ResolveRule(req Request) []rule.Command {
	results, handled := c.candidates(req)
	if !handled {
		return c.BaseClient.ResolveRule(req)
	}
	if len(results) == 0 {
		return nil
	}
	if c.interactor == nil {
		return results[0]
	}
	submit := req.Reply
	if submit == nil {
		submit = func([]rule.Command) {
			c.logger.Warn().Int("rule", req.Rule.ID).Msg("choice submitted without a reply hook")
		}
	}
	c.interactor.Choose(req.Rule, req.User, results, submit)
	return nil
}

// Strategy ranks candidates for a headless player.
type Strategy interface {
	Choose(b *game.Board, r *rule.Rule, user string, candidates [][]rule.Command) []rule.Command
}

// AIClient resolves rules with a Strategy. Without one it behaves like
// BaseClient.
type AIClient struct {
	*BaseClient
	strategy Strategy
}

func NewAIClient(board *game.Board, reg *rule.Registry, s Strategy, logger zerolog.Logger, users ...string) *AIClient {
	return &AIClient{BaseClient: NewBaseClient(board, reg, logger, users...), strategy: s}
}

func (c *AIClient) ResolveRule(req Request) []rule.Command {
	if c.strategy == nil {
		return c.BaseClient.ResolveRule(req)
	}
	results, handled := c.candidates(req)
	if !handled {
		return c.BaseClient.ResolveRule(req)
	}
	if len(results) == 0 {
		return nil
	}
	return c.strategy.Choose(c.board, req.Rule, req.User, results)
}

package rule

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"example.com/tabletop/internal/game"
)

// Plugin defines the behaviour of one family of rule and command types.
type Plugin interface {
	// RuleTypes and CommandTypes list the type keys the plugin owns.
	RuleTypes() []string
	CommandTypes() []string

	// CreateRule normalises author arguments into a wire rule.
	CreateRule(b *game.Board, args Fields) (*Rule, error)

	// PerformRule enumerates every candidate command batch for the rule
	// against the resolving client's board. No candidates means the client
	// is waiting; a deferred answer may arrive later through ctx.Reply.
	PerformRule(ctx *Context, r *Rule) ([][]Command, error)

	// UpdateBoard applies one broadcast command.
	UpdateBoard(b *game.Board, cmd Command) error

	// CreateResult maps a command back to live values for the next rule.
	CreateResult(b *game.Board, cmd Command) (any, error)
}

// Context carries what a plugin may touch while resolving a rule.
type Context struct {
	Board *game.Board
	User  string
	Rand  *rand.Rand
	// Reply delivers commands produced after PerformRule returned.
	Reply func([]Command)
	// Defer runs fn once after d, serialised with the owning client. Nil
	// means a plain timer.
	Defer  func(d time.Duration, fn func())
	Logger zerolog.Logger
}

// After schedules fn through ctx.Defer, or a plain timer without one.
func (ctx *Context) After(d time.Duration, fn func()) {
	if ctx.Defer != nil {
		ctx.Defer(d, fn)
		return
	}
	time.AfterFunc(d, fn)
}

// Send delivers a deferred answer. Without a Reply hook it is dropped.
func (ctx *Context) Send(cmds []Command) {
	if ctx.Reply == nil {
		ctx.Logger.Warn().Str("user", ctx.User).Msg("deferred reply without a reply hook")
		return
	}
	if cmds == nil {
		cmds = []Command{}
	}
	ctx.Reply(cmds)
}

// Registry dispatches rule and command types to their plugin. Build one at
// start-up and share it; it is read-only once populated.
type Registry struct {
	rules    map[string]Plugin
	commands map[string]Plugin
	logger   zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		rules:    map[string]Plugin{},
		commands: map[string]Plugin{},
		logger:   logger,
	}
}

// Register installs p for every type it owns. Nothing is installed if any
// type is taken.
func (r *Registry) Register(p Plugin) error {
	for _, t := range p.RuleTypes() {
		if _, ok := r.rules[t]; ok {
			return fmt.Errorf("%w: rule %q", ErrDuplicateType, t)
		}
	}
	for _, t := range p.CommandTypes() {
		if _, ok := r.commands[t]; ok {
			return fmt.Errorf("%w: command %q", ErrDuplicateType, t)
		}
	}
	for _, t := range p.RuleTypes() {
		r.rules[t] = p
	}
	for _, t := range p.CommandTypes() {
		r.commands[t] = p
	}
	return nil
}

func (r *Registry) RulePlugin(ruleType string) (Plugin, bool) {
	p, ok := r.rules[ruleType]
	return p, ok
}

func (r *Registry) CommandPlugin(cmdType string) (Plugin, bool) {
	p, ok := r.commands[cmdType]
	return p, ok
}

// Perform runs the owning plugin's enumeration. owned is false when no plugin
// claims the rule type.
func (r *Registry) Perform(ctx *Context, rl *Rule) (batches [][]Command, owned bool, err error) {
	p, ok := r.rules[rl.Type]
	if !ok {
		r.logger.Debug().Str("type", rl.Type).Int("rule", rl.ID).Msg("no plugin for rule")
		return nil, false, nil
	}
	batches, err = p.PerformRule(ctx, rl)
	return batches, true, err
}

// Apply mutates b with cmd. Unknown command types are no-ops.
func (r *Registry) Apply(b *game.Board, cmd Command) bool {
	p, ok := r.commands[cmd.Type]
	if !ok {
		r.logger.Debug().Str("type", cmd.Type).Msg("no plugin for command")
		return false
	}
	if err := p.UpdateBoard(b, cmd); err != nil {
		r.logger.Error().Err(err).Str("type", cmd.Type).Msg("apply command")
		return false
	}
	return true
}

// Result resolves cmd into a value for the next rule. Unknown command types
// pass the command through.
func (r *Registry) Result(b *game.Board, cmd Command) (any, error) {
	p, ok := r.commands[cmd.Type]
	if !ok {
		return cmd, nil
	}
	return p.CreateResult(b, cmd)
}

// Bindings installs named rule factories on one board, so setup code can
// call "move" or "pick" without importing plugins.
type Bindings struct {
	board     *game.Board
	factories map[string]Plugin
}

func NewBindings(b *game.Board) *Bindings {
	return &Bindings{board: b, factories: map[string]Plugin{}}
}

func (bs *Bindings) Board() *game.Board { return bs.board }

func (bs *Bindings) Bind(name string, p Plugin) {
	bs.factories[name] = p
}

func (bs *Bindings) Bound(name string) bool {
	_, ok := bs.factories[name]
	return ok
}

// Call builds a rule with the factory bound to name and stamps it with a
// fresh board id.
func (bs *Bindings) Call(name string, args Fields) (*Rule, error) {
	p, ok := bs.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	r, err := p.CreateRule(bs.board, args)
	if err != nil {
		return nil, err
	}
	r.ID = bs.board.NextUniqueID()
	return r, nil
}

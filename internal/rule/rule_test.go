package rule

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/tabletop/internal/game"
)

type stubPlugin struct {
	rules, cmds []string
	applied     []Command
}

func (s *stubPlugin) RuleTypes() []string    { return s.rules }
func (s *stubPlugin) CommandTypes() []string { return s.cmds }

func (s *stubPlugin) CreateRule(_ *game.Board, args Fields) (*Rule, error) {
	return &Rule{Type: s.rules[0], User: args.String("user")}, nil
}

func (s *stubPlugin) PerformRule(_ *Context, r *Rule) ([][]Command, error) {
	return [][]Command{{CommandFromRule(r)}}, nil
}

func (s *stubPlugin) UpdateBoard(_ *game.Board, cmd Command) error {
	s.applied = append(s.applied, cmd)
	return nil
}

func (s *stubPlugin) CreateResult(_ *game.Board, cmd Command) (any, error) {
	return cmd.Type, nil
}

func TestRegistryDispatch(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	p := &stubPlugin{rules: []string{"stub"}, cmds: []string{"stub"}}
	require.NoError(t, reg.Register(p))

	err := reg.Register(&stubPlugin{rules: []string{"other"}, cmds: []string{"stub"}})
	assert.ErrorIs(t, err, ErrDuplicateType)
	_, ok := reg.RulePlugin("other")
	assert.False(t, ok, "failed registration must not install anything")

	b := game.NewBoard(1)
	batches, owned, err := reg.Perform(&Context{Board: b}, &Rule{Type: "stub"})
	require.NoError(t, err)
	assert.True(t, owned)
	assert.Len(t, batches, 1)

	_, owned, _ = reg.Perform(&Context{Board: b}, &Rule{Type: "nope"})
	assert.False(t, owned)

	assert.True(t, reg.Apply(b, Command{Type: "stub"}))
	assert.False(t, reg.Apply(b, Command{Type: "nope"}))
	assert.Len(t, p.applied, 1)

	v, err := reg.Result(b, Command{Type: "nope", Key: "k"})
	require.NoError(t, err)
	assert.Equal(t, Command{Type: "nope", Key: "k"}, v)
}

func TestBindingsStampIDs(t *testing.T) {
	b := game.NewBoard(1)
	bs := NewBindings(b)
	bs.Bind("waitStub", &stubPlugin{rules: []string{"stub"}})

	r1, err := bs.Call("waitStub", Fields{"user": "P1"})
	require.NoError(t, err)
	r2, err := bs.Call("waitStub", Fields{"user": "P2"})
	require.NoError(t, err)
	assert.Equal(t, "stub", r1.Type)
	assert.Greater(t, r2.ID, r1.ID)

	_, err = bs.Call("missing", nil)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestFieldsIDString(t *testing.T) {
	b := game.NewBoard(1)
	l1 := b.CreateLocation("L1", 1)
	l2 := b.CreateLocation("L2", 2)
	c := b.CreateCard("c", 5)

	tests := []struct {
		name string
		v    any
		want string
		ok   bool
	}{
		{"query", ".hand", ".hand", true},
		{"location", l1, "1", true},
		{"locations", []*game.Location{l1, l2}, "1,2", true},
		{"card", c, "5", true},
		{"refs", []game.Ref{game.CardRef(5), game.LocationRef(2)}, "5,2", true},
		{"mixed", []any{l2, "hand", 3}, "2,hand,3", true},
		{"number", 7.0, "7", true},
		{"empty", "", "", false},
		{"nil", nil, "", false},
		{"unsupported", struct{}{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Fields{"k": tt.v}.IDString(b, "k")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	_, ok := Fields{}.IDString(b, "k")
	assert.False(t, ok)
}

func TestFieldsAccessors(t *testing.T) {
	f := Fields{"n": 3.0, "s": "4", "b": "true", "list": []any{"a", 1}, "users": "P1, P2"}
	assert.Equal(t, 3, f.Int("n", 0))
	assert.Equal(t, 4, f.Int("s", 0))
	assert.Equal(t, 9, f.Int("missing", 9))
	assert.True(t, f.Bool("b"))
	assert.Equal(t, []string{"a", "1"}, f.Strings("list"))
	assert.Equal(t, []string{"P1", "P2"}, f.Strings("users"))
	assert.Equal(t, 1.5, Fields{"x": "1.5"}.Float("x", 0))
}

func TestRuleWire(t *testing.T) {
	r := &Rule{ID: 4, Type: "pick", User: "P1, P2 ,", Values: []any{"x"}, Where: func(any) bool { return true }}
	assert.Equal(t, []string{"P1", "P2"}, r.Users())

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "where")

	b := NewBatch(4)
	b.Commands["P2"] = nil
	b.Commands["P1"] = nil
	assert.Equal(t, []string{"P1", "P2"}, b.Users())
}

package script

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/tabletop/internal/game"
	"example.com/tabletop/internal/plugins"
	"example.com/tabletop/internal/rule"
)

func bindings(t *testing.T) *rule.Bindings {
	t.Helper()
	b := game.NewBoard(1)
	bind := rule.NewBindings(b)
	require.NoError(t, plugins.Install(rule.NewRegistry(zerolog.Nop()), bind))
	return bind
}

func TestSequence(t *testing.T) {
	a, b := &rule.Rule{ID: 1}, &rule.Rule{ID: 2}
	s := NewSequence(a, b)
	r, ok := s.Next(nil)
	require.True(t, ok)
	assert.Same(t, a, r)
	r, ok = s.Next(Responses{"P1": {"x"}})
	require.True(t, ok)
	assert.Same(t, b, r)
	_, ok = s.Next(nil)
	assert.False(t, ok)
	_, ok = s.Next(nil)
	assert.False(t, ok)
}

func TestGeneratorPassesResponses(t *testing.T) {
	var seen []Responses
	g := NewGenerator(func(y *Yielder) {
		for i := 1; i <= 2; i++ {
			resp, ok := y.Yield(&rule.Rule{ID: i, User: "P1"})
			if !ok {
				return
			}
			seen = append(seen, resp)
		}
	})

	r, ok := g.Next(nil)
	require.True(t, ok)
	assert.Equal(t, 1, r.ID)
	r, ok = g.Next(Responses{"P1": {"first"}})
	require.True(t, ok)
	assert.Equal(t, 2, r.ID)
	_, ok = g.Next(Responses{"P1": {"second"}})
	assert.False(t, ok)
	_, ok = g.Next(nil)
	assert.False(t, ok)

	assert.Equal(t, []Responses{{"P1": {"first"}}, {"P1": {"second"}}}, seen)
}

func TestGeneratorStop(t *testing.T) {
	exited := make(chan struct{})
	g := NewGenerator(func(y *Yielder) {
		defer close(exited)
		for {
			if _, ok := y.Yield(&rule.Rule{User: "P1"}); !ok {
				return
			}
		}
	})
	_, ok := g.Next(nil)
	require.True(t, ok)
	g.Stop()
	<-exited
	_, ok = g.Next(nil)
	assert.False(t, ok)
}

func TestGeneratorStopFromAnotherGoroutine(t *testing.T) {
	g := NewGenerator(func(y *Yielder) {
		for {
			if _, ok := y.Yield(&rule.Rule{User: "P1"}); !ok {
				return
			}
		}
	})
	_, ok := g.Next(nil)
	require.True(t, ok)

	go g.Stop()
	steps := 0
	for {
		if _, ok := g.Next(nil); !ok {
			break
		}
		steps++
	}
	assert.False(t, func() bool { _, ok := g.Next(nil); return ok }())
	t.Logf("%d steps before stop", steps)
}

const pickThenMove = `
function setup()
  local a = board.createLocation("a", 1, {labels = {"start"}, variables = {zone = "home"}})
  board.createLocation("b", 2)
  board.createCard("x", 10, {location = a, variables = {rank = 3}})
end

function game()
  local res = coroutine.yield(rule("pick", {user = "P1", list = {"red", "blue"}}))
  local color = res.P1[1][1]
  coroutine.yield(rule("move", {user = "BANK", from = board.location("a"), to = "b"}))
  local card = board.card("10")
  coroutine.yield(rule("sendMessage", {user = players[1], message = color, detail = {rank = card:variable("rank"), at = card.location.name}}))
end
`

func TestLuaCoroutine(t *testing.T) {
	bind := bindings(t)
	s, err := NewLua(bind, pickThenMove, []string{"P1", "P2"}, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	b := bind.Board()
	require.NotNil(t, b.FindLocationByName("a"))
	x := b.FindCardByID(10)
	require.NotNil(t, x)
	assert.Equal(t, "a", x.Location().Name)
	zone, _ := x.Variable("zone")
	assert.Equal(t, "home", zone)
	assert.True(t, b.FindLocationByName("a").HasLabel("start"))

	r, ok := s.Next(nil)
	require.True(t, ok)
	require.NotNil(t, r)
	assert.Equal(t, plugins.TypePick, r.Type)
	assert.Equal(t, []any{"red", "blue"}, r.Values)
	assert.Positive(t, r.ID)

	r, ok = s.Next(Responses{"P1": {[]any{"blue"}}})
	require.True(t, ok)
	require.NotNil(t, r)
	assert.Equal(t, plugins.TypeMove, r.Type)
	assert.Equal(t, "1", r.From)
	assert.Equal(t, "b", r.To)

	b.FindLocationByName("b").AddCard(x)
	r, ok = s.Next(Responses{"BANK": {x}})
	require.True(t, ok)
	require.NotNil(t, r)
	assert.Equal(t, "blue", r.Message)
	assert.Equal(t, "P1", r.User)
	assert.Equal(t, map[string]any{"rank": 3, "at": "b"}, r.Detail)

	_, ok = s.Next(nil)
	assert.False(t, ok)
}

func TestLuaErrors(t *testing.T) {
	_, err := NewLua(bindings(t), `function setup() end`, nil, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewLua(bindings(t), `function game( end`, nil, zerolog.Nop())
	assert.Error(t, err)

	s, err := NewLua(bindings(t), `function game() coroutine.yield(rule("move", {user = "P1"})) end`, nil, zerolog.Nop())
	require.NoError(t, err)
	r, ok := s.Next(nil)
	assert.True(t, ok)
	assert.Nil(t, r)
	_, ok = s.Next(nil)
	assert.False(t, ok)

	s, err = NewLua(bindings(t), `function game() coroutine.yield(42) end`, nil, zerolog.Nop())
	require.NoError(t, err)
	r, ok = s.Next(nil)
	assert.True(t, ok)
	assert.Nil(t, r)
}

func TestHighCardSetup(t *testing.T) {
	src, err := Game("highcard")
	require.NoError(t, err)
	bind := bindings(t)
	s, err := NewLua(bind, src, []string{"P1", "P2"}, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	b := bind.Board()
	assert.Equal(t, 52, b.FindLocationByName("draw").Len())
	assert.Len(t, b.QueryLocations(".hand"), 2)
	assert.Len(t, b.Users(), 2)
	back, _ := b.FindCardByID(101).Variable("back")
	assert.Equal(t, "blue", back)

	r, ok := s.Next(nil)
	require.True(t, ok)
	assert.Equal(t, plugins.TypeShuffle, r.Type)
	assert.Equal(t, "BANK", r.User)

	_, err = Game("missing")
	assert.Error(t, err)
}

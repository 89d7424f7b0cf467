package script

import (
	"embed"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"example.com/tabletop/internal/game"
	"example.com/tabletop/internal/rule"
)

//go:embed games/*.lua
var games embed.FS

// Game returns the source of a bundled game, e.g. "highcard".
func Game(name string) (string, error) {
	b, err := games.ReadFile("games/" + name + ".lua")
	if err != nil {
		return "", fmt.Errorf("game %q: %w", name, err)
	}
	return string(b), nil
}

const (
	cardType     = "card"
	locationType = "location"
	deckType     = "deck"
	ruleType     = "rule"
)

// Lua runs a game written in Lua. The source defines an optional setup()
// that builds the board and a game() function run as a coroutine:
// coroutine.yield(rule(...)) hands a rule to the server and returns the
// responses table, keyed by user.
type Lua struct {
	L       *lua.LState
	co      *lua.LState
	fn      *lua.LFunction
	bind    *rule.Bindings
	logger  zerolog.Logger
	started bool
	done    bool
}

// NewLua loads source against the board behind bind and runs setup. players
// is exposed to the script as the global `players` array.
func NewLua(bind *rule.Bindings, source string, players []string, logger zerolog.Logger) (*Lua, error) {
	s := &Lua{L: lua.NewState(), bind: bind, logger: logger}
	s.install(players)

	if err := s.L.DoString(source); err != nil {
		s.L.Close()
		return nil, fmt.Errorf("load script: %w", err)
	}
	if setup, ok := s.L.GetGlobal("setup").(*lua.LFunction); ok {
		if err := s.L.CallByParam(lua.P{Fn: setup, Protect: true}); err != nil {
			s.L.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}
	fn, ok := s.L.GetGlobal("game").(*lua.LFunction)
	if !ok {
		s.L.Close()
		return nil, fmt.Errorf("script has no game() function")
	}
	s.fn = fn
	s.co, _ = s.L.NewThread()
	return s, nil
}

func (s *Lua) Next(responses Responses) (*rule.Rule, bool) {
	if s.done {
		return nil, false
	}
	var args []lua.LValue
	if s.started {
		args = append(args, s.toLua(s.co, map[string][]any(responses)))
	}
	s.started = true

	st, err, values := s.L.Resume(s.co, s.fn, args...)
	switch st {
	case lua.ResumeError:
		s.done = true
		s.logger.Error().Err(err).Msg("script failed")
		return nil, true
	case lua.ResumeOK:
		s.done = true
		return nil, false
	}
	if len(values) == 0 {
		s.logger.Error().Msg("script yielded nothing")
		return nil, true
	}
	ud, ok := values[0].(*lua.LUserData)
	if !ok {
		s.logger.Error().Str("value", values[0].String()).Msg("script yielded a non-rule")
		return nil, true
	}
	r, ok := ud.Value.(*rule.Rule)
	if !ok {
		s.logger.Error().Msg("script yielded a non-rule")
		return nil, true
	}
	return r, true
}

func (s *Lua) Close() {
	s.done = true
	s.L.Close()
}

func (s *Lua) install(players []string) {
	L := s.L

	ps := L.NewTable()
	for _, p := range players {
		ps.Append(lua.LString(p))
	}
	L.SetGlobal("players", ps)

	L.SetGlobal("rule", L.NewFunction(s.luaRule))
	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		s.logger.Info().Str("source", "lua").Msg(L.CheckString(1))
		return 0
	}))

	board := L.NewTable()
	L.SetFuncs(board, map[string]lua.LGFunction{
		"createUser":     s.createUser,
		"createRegion":   s.createRegion,
		"createLocation": s.createLocation,
		"createDeck":     s.createDeck,
		"createCard":     s.createCard,
		"location":       s.findLocation,
		"locations":      s.queryLocations,
		"card":           s.findCard,
		"cards":          s.queryCards,
		"count":          s.count,
	})
	L.SetGlobal("board", board)

	card := L.NewTypeMetatable(cardType)
	L.SetField(card, "__index", L.NewFunction(s.cardIndex))
	loc := L.NewTypeMetatable(locationType)
	L.SetField(loc, "__index", L.NewFunction(s.locationIndex))
	deck := L.NewTypeMetatable(deckType)
	L.SetField(deck, "__index", L.NewFunction(s.deckIndex))
	r := L.NewTypeMetatable(ruleType)
	L.SetField(r, "__index", L.NewFunction(s.ruleIndex))
}

func (s *Lua) board() *game.Board { return s.bind.Board() }

// rule(name, args) builds a rule with the factory bound to name.
func (s *Lua) luaRule(L *lua.LState) int {
	name := L.CheckString(1)
	args := rule.Fields{}
	if tbl := L.OptTable(2, nil); tbl != nil {
		tbl.ForEach(func(k, v lua.LValue) {
			args[k.String()] = fromLua(v)
		})
	}
	r, err := s.bind.Call(name, args)
	if err != nil {
		L.RaiseError("rule %s: %v", name, err)
		return 0
	}
	L.Push(s.wrap(L, r, ruleType))
	return 1
}

func (s *Lua) createUser(L *lua.LState) int {
	name := L.CheckString(1)
	u := s.board().CreateUser(name, L.OptInt(2, len(s.board().Users())+1))
	L.Push(lua.LString(u.Name))
	return 1
}

func (s *Lua) createRegion(L *lua.LState) int {
	r := s.board().CreateRegion(L.CheckString(1))
	L.Push(lua.LString(r.Name))
	return 1
}

// createLocation(name, id, {toPosition=, fromPosition=, labels={}, regions={}, variables={}})
func (s *Lua) createLocation(L *lua.LState) int {
	l := s.board().CreateLocation(L.CheckString(1), L.CheckInt(2))
	if opts := L.OptTable(3, nil); opts != nil {
		l.ToPosition = game.Position(lua.LVAsString(opts.RawGetString("toPosition")))
		l.FromPosition = game.Position(lua.LVAsString(opts.RawGetString("fromPosition")))
		l.AddLabels(stringList(opts.RawGetString("labels"))...)
		for _, r := range stringList(opts.RawGetString("regions")) {
			l.JoinRegion(r)
		}
		for k, v := range varMap(opts.RawGetString("variables")) {
			l.SetVariable(k, v)
		}
	}
	L.Push(s.wrap(L, l, locationType))
	return 1
}

// createDeck(name, id, variables)
func (s *Lua) createDeck(L *lua.LState) int {
	d := s.board().CreateDeck(L.CheckString(1), L.CheckInt(2))
	for k, v := range varMap(L.Get(3)) {
		d.SetVariable(k, v)
	}
	L.Push(s.wrap(L, d, deckType))
	return 1
}

// createCard(name, id, {deck=, location=, labels={}, variables={}})
func (s *Lua) createCard(L *lua.LState) int {
	c := s.board().CreateCard(L.CheckString(1), L.CheckInt(2))
	if opts := L.OptTable(3, nil); opts != nil {
		for k, v := range varMap(opts.RawGetString("variables")) {
			c.SetVariable(k, v)
		}
		c.AddLabels(stringList(opts.RawGetString("labels"))...)
		if d, ok := unwrap[*game.Deck](opts.RawGetString("deck")); ok {
			d.AddCard(c)
		}
		if l, ok := unwrap[*game.Location](opts.RawGetString("location")); ok {
			l.AddCard(c)
		}
	}
	L.Push(s.wrap(L, c, cardType))
	return 1
}

func (s *Lua) findLocation(L *lua.LState) int {
	ls := s.board().QueryLocations(L.CheckString(1))
	if len(ls) == 0 {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(s.wrap(L, ls[0], locationType))
	return 1
}

func (s *Lua) queryLocations(L *lua.LState) int {
	L.Push(s.toLua(L, s.board().QueryLocations(L.CheckString(1))))
	return 1
}

func (s *Lua) findCard(L *lua.LState) int {
	cs := s.board().QueryCards(L.CheckString(1))
	if len(cs) == 0 {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(s.wrap(L, cs[0], cardType))
	return 1
}

// cards(query) lists the cards inside the matching locations.
func (s *Lua) queryCards(L *lua.LState) int {
	var out []*game.Card
	for _, l := range s.board().QueryLocations(L.CheckString(1)) {
		out = append(out, l.Cards()...)
	}
	L.Push(s.toLua(L, out))
	return 1
}

func (s *Lua) count(L *lua.LState) int {
	n := 0
	for _, l := range s.board().QueryLocations(L.CheckString(1)) {
		n += l.Len()
	}
	L.Push(lua.LNumber(n))
	return 1
}

func (s *Lua) cardIndex(L *lua.LState) int {
	c := checkUD[*game.Card](L)
	switch key := L.CheckString(2); key {
	case "id":
		L.Push(lua.LNumber(c.ID))
	case "name":
		L.Push(lua.LString(c.Name))
	case "location":
		if l := c.Location(); l != nil {
			L.Push(s.wrap(L, l, locationType))
		} else {
			L.Push(lua.LNil)
		}
	case "variable":
		L.Push(L.NewFunction(func(L *lua.LState) int {
			v, _ := checkUD[*game.Card](L).Variable(L.CheckString(2))
			L.Push(s.toLua(L, v))
			return 1
		}))
	case "hasLabel":
		L.Push(L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LBool(checkUD[*game.Card](L).HasLabel(L.CheckString(2))))
			return 1
		}))
	default:
		L.Push(lua.LNil)
	}
	return 1
}

func (s *Lua) locationIndex(L *lua.LState) int {
	l := checkUD[*game.Location](L)
	switch key := L.CheckString(2); key {
	case "id":
		L.Push(lua.LNumber(l.ID))
	case "name":
		L.Push(lua.LString(l.Name))
	case "count":
		L.Push(lua.LNumber(l.Len()))
	case "cards":
		L.Push(s.toLua(L, l.Cards()))
	case "top":
		if top := l.Top(1); len(top) == 1 {
			L.Push(s.wrap(L, top[0], cardType))
		} else {
			L.Push(lua.LNil)
		}
	case "variable":
		L.Push(L.NewFunction(func(L *lua.LState) int {
			v, _ := checkUD[*game.Location](L).Variable(L.CheckString(2))
			L.Push(s.toLua(L, v))
			return 1
		}))
	case "hasLabel":
		L.Push(L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LBool(checkUD[*game.Location](L).HasLabel(L.CheckString(2))))
			return 1
		}))
	default:
		L.Push(lua.LNil)
	}
	return 1
}

func (s *Lua) deckIndex(L *lua.LState) int {
	d := checkUD[*game.Deck](L)
	switch L.CheckString(2) {
	case "id":
		L.Push(lua.LNumber(d.ID))
	case "name":
		L.Push(lua.LString(d.Name))
	case "count":
		L.Push(lua.LNumber(d.Len()))
	default:
		L.Push(lua.LNil)
	}
	return 1
}

func (s *Lua) ruleIndex(L *lua.LState) int {
	r := checkUD[*rule.Rule](L)
	switch L.CheckString(2) {
	case "id":
		L.Push(lua.LNumber(r.ID))
	case "type":
		L.Push(lua.LString(r.Type))
	case "user":
		L.Push(lua.LString(r.User))
	default:
		L.Push(lua.LNil)
	}
	return 1
}

func (s *Lua) wrap(L *lua.LState, v any, typ string) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = v
	L.SetMetatable(ud, L.GetTypeMetatable(typ))
	return ud
}

func checkUD[T any](L *lua.LState) T {
	ud := L.CheckUserData(1)
	v, ok := ud.Value.(T)
	if !ok {
		L.ArgError(1, fmt.Sprintf("unexpected %T", ud.Value))
	}
	return v
}

func unwrap[T any](v lua.LValue) (T, bool) {
	var zero T
	ud, ok := v.(*lua.LUserData)
	if !ok {
		return zero, false
	}
	t, ok := ud.Value.(T)
	return t, ok
}

// toLua converts command results and board values for the script.
func (s *Lua) toLua(L *lua.LState, v any) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(v)
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case *game.Card:
		return s.wrap(L, v, cardType)
	case *game.Location:
		return s.wrap(L, v, locationType)
	case *game.Deck:
		return s.wrap(L, v, deckType)
	case []*game.Card:
		t := L.NewTable()
		for _, c := range v {
			t.Append(s.wrap(L, c, cardType))
		}
		return t
	case []*game.Location:
		t := L.NewTable()
		for _, l := range v {
			t.Append(s.wrap(L, l, locationType))
		}
		return t
	case []any:
		t := L.NewTable()
		for _, x := range v {
			t.Append(s.toLua(L, x))
		}
		return t
	case map[string][]any:
		t := L.NewTable()
		for k, x := range v {
			t.RawSetString(k, s.toLua(L, x))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, x := range v {
			t.RawSetString(k, s.toLua(L, x))
		}
		return t
	case rule.Command:
		t := L.NewTable()
		t.RawSetString("type", lua.LString(v.Type))
		if v.Values != nil {
			t.RawSetString("values", s.toLua(L, v.Values))
		}
		return t
	}
	return lua.LString(fmt.Sprint(v))
}

// fromLua converts script values for rule factories. Integral numbers become
// ints; array tables become []any and other tables map[string]any.
func fromLua(v lua.LValue) any {
	switch v := v.(type) {
	case lua.LString:
		return string(v)
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int(f)
		}
		return f
	case lua.LBool:
		return bool(v)
	case *lua.LUserData:
		return v.Value
	case *lua.LTable:
		if n := v.MaxN(); n > 0 {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, fromLua(v.RawGetInt(i)))
			}
			return out
		}
		out := map[string]any{}
		v.ForEach(func(k, x lua.LValue) {
			out[k.String()] = fromLua(x)
		})
		return out
	}
	return nil
}

func stringList(v lua.LValue) []string {
	var out []string
	switch x := fromLua(v).(type) {
	case string:
		out = rule.SplitUsers(x)
	case []any:
		for _, s := range x {
			out = append(out, fmt.Sprint(s))
		}
	}
	return out
}

func varMap(v lua.LValue) map[string]any {
	m, _ := fromLua(v).(map[string]any)
	return m
}

package rule

import (
	"fmt"
	"math"
	"strconv"

	"example.com/tabletop/internal/game"
)

// Fields are the loosely typed arguments a game script passes to a rule
// factory.
type Fields map[string]any

func (f Fields) Has(k string) bool {
	_, ok := f[k]
	return ok
}

func (f Fields) String(k string) string {
	switch v := f[k].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func (f Fields) Int(k string, def int) int {
	if n, ok := ToInt(f[k]); ok {
		return n
	}
	return def
}

func (f Fields) Float(k string, def float64) float64 {
	switch v := f[k].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if x, err := strconv.ParseFloat(v, 64); err == nil {
			return x
		}
	}
	return def
}

func (f Fields) Bool(k string) bool {
	switch v := f[k].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func (f Fields) Strings(k string) []string {
	switch v := f[k].(type) {
	case []string:
		return v
	case string:
		return SplitUsers(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			out = append(out, fmt.Sprint(x))
		}
		return out
	}
	return nil
}

func (f Fields) Slice(k string) []any {
	switch v := f[k].(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case []*game.Card:
		out := make([]any, len(v))
		for i, c := range v {
			out[i] = c
		}
		return out
	case []*game.Location:
		out := make([]any, len(v))
		for i, l := range v {
			out[i] = l
		}
		return out
	case nil:
		return nil
	}
	return []any{f[k]}
}

// IDString converts an entity argument to a query string. It accepts refs,
// live cards, locations and decks, slices of those, and raw query strings.
// ok is false when the key is absent or holds nothing convertible.
func (f Fields) IDString(b *game.Board, k string) (string, bool) {
	v, present := f[k]
	if !present || v == nil {
		return "", false
	}
	var refs []game.Ref
	switch v := v.(type) {
	case string:
		return v, v != ""
	case game.Ref:
		refs = []game.Ref{v}
	case []game.Ref:
		refs = v
	case *game.Card:
		refs = []game.Ref{v.Ref()}
	case *game.Location:
		refs = []game.Ref{v.Ref()}
	case *game.Deck:
		refs = []game.Ref{v.Ref()}
	case *game.Region:
		refs = []game.Ref{v.Ref()}
	case []*game.Card:
		s := b.ConvertCardsToIDString(v)
		return s, s != ""
	case []*game.Location:
		s := b.ConvertLocationsToIDString(v)
		return s, s != ""
	case int, int64, float64:
		n, _ := ToInt(v)
		return strconv.Itoa(n), true
	case []any:
		for _, x := range v {
			s, ok := Fields{"x": x}.IDString(b, "x")
			if ok {
				refs = append(refs, game.QueryRef(s))
			}
		}
	default:
		return "", false
	}
	s := b.ConvertToIDString(refs...)
	return s, s != ""
}

// ToInt accepts the numeric shapes JSON and Lua hand back.
func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	case float32:
		return ToInt(float64(n))
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i, true
		}
	}
	return 0, false
}

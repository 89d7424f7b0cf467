package plugins

import (
	"fmt"

	"example.com/tabletop/internal/combo"
	"example.com/tabletop/internal/game"
	"example.com/tabletop/internal/rule"
)

const (
	TypePick         = "pick"
	TypePickLocation = "pickLocation"
	TypePickCard     = "pickCard"
)

// Pick chooses a subset of a list. The list holds opaque values, locations
// or cards; the rule type follows from its first element.
type Pick struct{}

func (Pick) RuleTypes() []string {
	return []string{TypePick, TypePickLocation, TypePickCard}
}

func (Pick) CommandTypes() []string {
	return []string{TypePick, TypePickLocation, TypePickCard}
}

func (Pick) CreateRule(b *game.Board, args rule.Fields) (*rule.Rule, error) {
	r := &rule.Rule{
		Type:     TypePick,
		User:     args.String("user"),
		Quantity: game.Quantity(args.String("quantity")),
		Count:    args.Int("count", 1),
	}
	if r.Quantity == "" {
		r.Quantity = game.Exactly
	}
	if !r.Quantity.Valid() {
		return nil, fmt.Errorf("%w: pick quantity %q", rule.ErrMalformedRule, r.Quantity)
	}
	if where, ok := args["where"].(func(any) bool); ok {
		r.Where = where
	}

	list := args.Slice("list")
	kind := args.String("type")
	if len(list) > 0 {
		switch list[0].(type) {
		case *game.Location:
			kind = TypePickLocation
		case *game.Card:
			kind = TypePickCard
		}
	}
	switch kind {
	case TypePickLocation, TypePickCard:
		r.Type = kind
		ids, ok := args.IDString(b, "list")
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a list", rule.ErrMalformedRule, kind)
		}
		r.List = ids
	default:
		r.Values = list
	}
	return r, nil
}

func candidates(b *game.Board, r *rule.Rule) []any {
	var all []any
	switch r.Type {
	case TypePickLocation:
		for _, l := range b.QueryLocations(r.List) {
			all = append(all, l)
		}
	case TypePickCard:
		for _, c := range b.QueryCards(r.List) {
			all = append(all, c)
		}
	default:
		all = r.Values
	}
	if r.Where == nil {
		return all
	}
	var out []any
	for _, v := range all {
		if r.Where(v) {
			out = append(out, v)
		}
	}
	return out
}

func stableID(v any) any {
	switch v := v.(type) {
	case *game.Location:
		return v.Name
	case *game.Card:
		return v.ID
	}
	return v
}

// PerformRule emits one batch per subset whose size satisfies the quantity.
func (Pick) PerformRule(ctx *rule.Context, r *rule.Rule) ([][]rule.Command, error) {
	list := candidates(ctx.Board, r)
	possible := combo.Indices(len(list))

	var results [][]rule.Command
	for _, k := range r.Quantity.Sizes(r.Count, len(list)) {
		idx := append([]int(nil), possible[:k]...)
		for {
			values := make([]any, len(idx))
			for i, j := range idx {
				values[i] = stableID(list[j])
			}
			results = append(results, []rule.Command{{Type: r.Type, Values: values}})
			if !combo.NextCombination(idx, possible) {
				break
			}
		}
	}
	return results, nil
}

// UpdateBoard has nothing to apply; picks only feed the next rule.
func (Pick) UpdateBoard(*game.Board, rule.Command) error { return nil }

// CreateResult turns identifiers back into live locations and cards.
func (Pick) CreateResult(b *game.Board, cmd rule.Command) (any, error) {
	switch cmd.Type {
	case TypePickLocation:
		out := make([]*game.Location, 0, len(cmd.Values))
		for _, v := range cmd.Values {
			l := b.FindLocationByName(fmt.Sprint(v))
			if l == nil {
				return nil, fmt.Errorf("pickLocation: unknown location %v", v)
			}
			out = append(out, l)
		}
		return out, nil
	case TypePickCard:
		out := make([]*game.Card, 0, len(cmd.Values))
		for _, v := range cmd.Values {
			id, ok := rule.ToInt(v)
			c := b.FindCardByID(id)
			if !ok || c == nil {
				return nil, fmt.Errorf("pickCard: unknown card %v", v)
			}
			out = append(out, c)
		}
		return out, nil
	}
	return cmd.Values, nil
}

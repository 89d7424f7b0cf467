package plugins

import (
	"fmt"

	"example.com/tabletop/internal/game"
	"example.com/tabletop/internal/rule"
)

const (
	TypeSetCardVariable     = "setCardVariable"
	TypeSetLocationVariable = "setLocationVariable"
)

// Variable sets one variable on cards or locations. The factory picks the
// command type from whether it was given cards or locations.
type Variable struct{}

func (Variable) RuleTypes() []string {
	return []string{TypeSetCardVariable, TypeSetLocationVariable}
}

func (Variable) CommandTypes() []string {
	return []string{TypeSetCardVariable, TypeSetLocationVariable}
}

func (Variable) CreateRule(b *game.Board, args rule.Fields) (*rule.Rule, error) {
	r := &rule.Rule{User: args.String("user"), Key: args.String("key"), Value: args["value"]}
	if r.Key == "" {
		return nil, fmt.Errorf("%w: variable needs 'key'", rule.ErrMalformedRule)
	}
	if cards, ok := args.IDString(b, "cards"); ok {
		r.Type, r.Affects = TypeSetCardVariable, cards
	} else if locs, ok := args.IDString(b, "locations"); ok {
		r.Type, r.Affects = TypeSetLocationVariable, locs
	} else {
		return nil, fmt.Errorf("%w: variable needs 'cards' or 'locations'", rule.ErrMalformedRule)
	}
	return r, nil
}

func (Variable) PerformRule(_ *rule.Context, r *rule.Rule) ([][]rule.Command, error) {
	return [][]rule.Command{{rule.CommandFromRule(r)}}, nil
}

func (Variable) UpdateBoard(b *game.Board, cmd rule.Command) error {
	if cmd.Type == TypeSetLocationVariable {
		for _, l := range b.QueryLocations(cmd.Affects) {
			l.SetVariable(cmd.Key, cmd.Value)
			b.Emit(game.Event{Kind: game.EventVariable, LocationID: l.ID, Key: cmd.Key, Value: cmd.Value})
		}
		return nil
	}
	for _, c := range b.QueryCards(cmd.Affects) {
		c.SetVariable(cmd.Key, cmd.Value)
		b.Emit(game.Event{Kind: game.EventVariable, CardID: c.ID, Key: cmd.Key, Value: cmd.Value})
	}
	return nil
}

func (Variable) CreateResult(_ *game.Board, cmd rule.Command) (any, error) {
	return cmd.Value, nil
}

package plugins

import (
	"fmt"

	"example.com/tabletop/internal/game"
	"example.com/tabletop/internal/rule"
)

const (
	TypeLabel = "label"

	LabelAdd    = "add"
	LabelRemove = "remove"
	LabelSet    = "set"
)

// Label adds, removes or replaces labels on cards.
type Label struct{}

func (Label) RuleTypes() []string    { return []string{TypeLabel} }
func (Label) CommandTypes() []string { return []string{TypeLabel} }

func (Label) CreateRule(b *game.Board, args rule.Fields) (*rule.Rule, error) {
	affects, ok := args.IDString(b, "cards")
	if !ok {
		return nil, fmt.Errorf("%w: label needs 'cards'", rule.ErrMalformedRule)
	}
	op := args.String("key")
	switch op {
	case "":
		op = LabelAdd
	case LabelAdd, LabelRemove, LabelSet:
	default:
		return nil, fmt.Errorf("%w: label key %q", rule.ErrMalformedRule, op)
	}
	return &rule.Rule{
		Type:    TypeLabel,
		User:    args.String("user"),
		Key:     op,
		Labels:  args.Strings("labels"),
		Affects: affects,
	}, nil
}

func (Label) PerformRule(_ *rule.Context, r *rule.Rule) ([][]rule.Command, error) {
	return [][]rule.Command{{rule.CommandFromRule(r)}}, nil
}

func (Label) UpdateBoard(b *game.Board, cmd rule.Command) error {
	for _, c := range b.QueryCards(cmd.Affects) {
		switch cmd.Key {
		case LabelRemove:
			c.RemoveLabels(cmd.Labels...)
		case LabelSet:
			c.SetLabels(cmd.Labels...)
		default:
			c.AddLabels(cmd.Labels...)
		}
		b.Emit(game.Event{Kind: game.EventLabel, CardID: c.ID, Key: cmd.Key, Labels: c.LabelList()})
	}
	return nil
}

func (Label) CreateResult(b *game.Board, cmd rule.Command) (any, error) {
	return b.QueryCards(cmd.Affects), nil
}

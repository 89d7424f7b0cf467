package plugins

import (
	"fmt"

	"example.com/tabletop/internal/game"
	"example.com/tabletop/internal/rule"
)

const TypeShuffle = "shuffle"

// Shuffle reorders locations. The resolving client draws the seed; every
// replica shuffles with it and ends in the same order.
type Shuffle struct{}

func (Shuffle) RuleTypes() []string    { return []string{TypeShuffle} }
func (Shuffle) CommandTypes() []string { return []string{TypeShuffle} }

func (Shuffle) CreateRule(b *game.Board, args rule.Fields) (*rule.Rule, error) {
	loc, ok := args.IDString(b, "location")
	if !ok {
		return nil, fmt.Errorf("%w: shuffle needs 'location'", rule.ErrMalformedRule)
	}
	return &rule.Rule{Type: TypeShuffle, User: args.String("user"), Location: loc}, nil
}

func (Shuffle) PerformRule(ctx *rule.Context, r *rule.Rule) ([][]rule.Command, error) {
	rng := ctx.Rand
	if rng == nil {
		rng = ctx.Board.Rand()
	}
	var batch []rule.Command
	for _, l := range ctx.Board.QueryLocations(r.Location) {
		batch = append(batch, rule.Command{Type: TypeShuffle, LocationID: l.ID, Seed: rng.Int63()})
	}
	if len(batch) == 0 {
		return nil, fmt.Errorf("%w: no location for %q", rule.ErrMalformedRule, r.Location)
	}
	return [][]rule.Command{batch}, nil
}

func (Shuffle) UpdateBoard(b *game.Board, cmd rule.Command) error {
	l := b.FindLocationByID(cmd.LocationID)
	if l == nil {
		return fmt.Errorf("shuffle: unknown location %d", cmd.LocationID)
	}
	l.Shuffle(cmd.Seed)
	b.Emit(game.Event{Kind: game.EventShuffle, LocationID: l.ID})
	return nil
}

func (Shuffle) CreateResult(b *game.Board, cmd rule.Command) (any, error) {
	return b.FindLocationByID(cmd.LocationID), nil
}

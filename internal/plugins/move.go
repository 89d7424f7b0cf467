// Package plugins implements the built-in rule types: move, pick, label,
// variables, shuffle, messages and timers.
package plugins

import (
	"fmt"

	"example.com/tabletop/internal/combo"
	"example.com/tabletop/internal/game"
	"example.com/tabletop/internal/rule"
)

const (
	TypeMove = "move"
)

// Move relocates cards between locations under a quantity constraint.
type Move struct{}

func (Move) RuleTypes() []string    { return []string{TypeMove} }
func (Move) CommandTypes() []string { return []string{TypeMove} }

func (Move) CreateRule(b *game.Board, args rule.Fields) (*rule.Rule, error) {
	r := &rule.Rule{
		Type:         TypeMove,
		User:         args.String("user"),
		FromPosition: game.Position(args.String("fromPosition")),
		ToPosition:   game.Position(args.String("toPosition")),
		Quantity:     game.Quantity(args.String("quantity")),
		Count:        args.Int("count", 1),
	}
	if r.Quantity == "" {
		r.Quantity = game.Exactly
	}
	if !r.Quantity.Valid() {
		return nil, fmt.Errorf("%w: move quantity %q", rule.ErrMalformedRule, r.Quantity)
	}

	to, ok := args.IDString(b, "to")
	if !ok || len(b.QueryLocations(to)) == 0 {
		return nil, fmt.Errorf("%w: move needs a resolvable 'to'", rule.ErrMalformedRule)
	}
	r.To = to
	r.From, _ = args.IDString(b, "from")
	r.Cards, _ = args.IDString(b, "cards")
	if r.From == "" && r.Cards == "" {
		return nil, fmt.Errorf("%w: move needs 'cards' or 'from'", rule.ErrMalformedRule)
	}
	return r, nil
}

// PerformRule lists every way to move N cards, N ranging over the sizes the
// quantity allows, with each chosen card sent to any destination.
func (Move) PerformRule(ctx *rule.Context, r *rule.Rule) ([][]rule.Command, error) {
	b := ctx.Board
	toList := b.QueryLocations(r.To)
	if len(toList) == 0 {
		return nil, fmt.Errorf("%w: no destination for %q", rule.ErrMalformedRule, r.To)
	}
	fromList := b.QueryLocations(r.From)

	var pool []*game.Card
	if r.Cards != "" {
		for _, c := range b.QueryCards(r.Cards) {
			if c.Location() != nil {
				pool = append(pool, c)
			}
		}
	} else {
		for _, l := range fromList {
			pool = append(pool, l.Cards()...)
		}
	}

	pos := r.FromPosition
	if pos == game.Default && len(fromList) == 1 {
		pos = fromList[0].FromPosition
	}
	pos = pos.Resolve()

	var results [][]rule.Command
	for _, n := range r.Quantity.Sizes(r.Count, len(pool)) {
		for _, subset := range cardSubsets(pool, n, pos) {
			digits := make([]int, n)
			for {
				batch := make([]rule.Command, 0, n)
				for i, c := range subset {
					to := toList[digits[i]]
					batch = append(batch, rule.Command{
						Type:   TypeMove,
						CardID: c.ID,
						FromID: c.Location().ID,
						ToID:   to.ID,
						Index:  insertIndex(ctx, to),
					})
				}
				results = append(results, batch)
				if !combo.NextGrayCode(digits, len(toList)-1) {
					break
				}
			}
		}
	}
	return results, nil
}

// cardSubsets picks which n cards leave the pool. Top is the end of the pool,
// Bottom the start, Random any n of them.
func cardSubsets(pool []*game.Card, n int, pos game.Position) [][]*game.Card {
	switch pos {
	case game.Bottom:
		return [][]*game.Card{append([]*game.Card(nil), pool[:n]...)}
	case game.Random:
		var out [][]*game.Card
		idx := append([]int(nil), combo.Indices(len(pool))[:n]...)
		possible := combo.Indices(len(pool))
		for {
			subset := make([]*game.Card, n)
			for i, j := range idx {
				subset[i] = pool[j]
			}
			out = append(out, subset)
			if !combo.NextCombination(idx, possible) {
				break
			}
		}
		return out
	}
	return [][]*game.Card{append([]*game.Card(nil), pool[len(pool)-n:]...)}
}

// insertIndex fixes the destination slot at resolution time so every board
// replaying the command inserts at the same place.
func insertIndex(ctx *rule.Context, to *game.Location) int {
	switch to.ToPosition.Resolve() {
	case game.Bottom:
		return 0
	case game.Random:
		rng := ctx.Rand
		if rng == nil {
			rng = ctx.Board.Rand()
		}
		return rng.Intn(to.Len() + 1)
	}
	return -1
}

func (Move) UpdateBoard(b *game.Board, cmd rule.Command) error {
	to := b.FindLocationByID(cmd.ToID)
	if to == nil {
		return fmt.Errorf("move: unknown location %d", cmd.ToID)
	}
	card := findMovedCard(b, cmd)
	if card == nil {
		return fmt.Errorf("move: unknown card %d", cmd.CardID)
	}
	to.InsertCard(card, cmd.Index)
	b.Emit(game.Event{Kind: game.EventMove, CardID: card.ID, FromID: cmd.FromID, LocationID: to.ID, Index: to.IndexOf(card)})
	return nil
}

// findMovedCard prefers the card in the source location. A board that sees
// the source pile face down falls back to its top hidden card.
func findMovedCard(b *game.Board, cmd rule.Command) *game.Card {
	if from := b.FindLocationByID(cmd.FromID); from != nil {
		cards := from.Cards()
		for _, c := range cards {
			if c.ID == cmd.CardID {
				return c
			}
		}
		for i := len(cards) - 1; i >= 0; i-- {
			if cards[i].ID == game.UnknownID {
				return cards[i]
			}
		}
	}
	return b.FindCardByID(cmd.CardID)
}

// CreateResult returns the moved card.
func (Move) CreateResult(b *game.Board, cmd rule.Command) (any, error) {
	if c := b.FindCardByID(cmd.CardID); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("move: unknown card %d", cmd.CardID)
}

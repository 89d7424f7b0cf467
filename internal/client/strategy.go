package client

import (
	"math/rand"

	"example.com/tabletop/internal/game"
	"example.com/tabletop/internal/rule"
)

// RandomStrategy picks any candidate.
type RandomStrategy struct {
	Rand *rand.Rand
}

func (s RandomStrategy) Choose(_ *game.Board, _ *rule.Rule, _ string, candidates [][]rule.Command) []rule.Command {
	return candidates[s.Rand.Intn(len(candidates))]
}

// ScoreStrategy picks the highest scoring candidate, the earliest on ties.
type ScoreStrategy struct {
	Score func(b *game.Board, user string, cmds []rule.Command) float64
}

func (s ScoreStrategy) Choose(b *game.Board, _ *rule.Rule, user string, candidates [][]rule.Command) []rule.Command {
	best, bestScore := 0, s.Score(b, user, candidates[0])
	for i := 1; i < len(candidates); i++ {
		if sc := s.Score(b, user, candidates[i]); sc > bestScore {
			best, bestScore = i, sc
		}
	}
	return candidates[best]
}

// HighestVariable scores a batch by the sum of a numeric card variable over
// the cards it moves or picks. Handy for "play your best card" bots.
func HighestVariable(key string) func(*game.Board, string, []rule.Command) float64 {
	return func(b *game.Board, _ string, cmds []rule.Command) float64 {
		var total float64
		add := func(id int) {
			c := b.FindCardByID(id)
			if c == nil {
				return
			}
			v, _ := c.Variable(key)
			if n, ok := rule.ToInt(v); ok {
				total += float64(n)
			}
		}
		for _, cmd := range cmds {
			switch cmd.Type {
			case "move":
				add(cmd.CardID)
			case "pickCard":
				for _, v := range cmd.Values {
					if id, ok := rule.ToInt(v); ok {
						add(id)
					}
				}
			}
		}
		return total
	}
}

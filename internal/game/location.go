package game

import "math/rand"

// Location is an ordered pile of cards: index 0 is the bottom, the last
// card is the top. A card sits in at most one location.
type Location struct {
	Name         string
	ID           int
	ToPosition   Position
	FromPosition Position

	Labels
	RegionSet
	Variables

	cards []*Card
	board *Board
}

// AddCard inserts card at the location's configured insertion end.
func (l *Location) AddCard(card *Card) {
	l.InsertCard(card, -1)
}

// InsertCard moves card to index, detaching it from its previous location.
// A negative index defers to ToPosition. Location variables overwrite the
// card's own.
func (l *Location) InsertCard(card *Card, index int) {
	if prev := card.location; prev != nil {
		prev.cards = removeCard(prev.cards, card)
	}
	if index < 0 {
		index = l.insertIndex()
	}
	if index > len(l.cards) {
		index = len(l.cards)
	}
	l.cards = append(l.cards, nil)
	copy(l.cards[index+1:], l.cards[index:])
	l.cards[index] = card
	card.location = l
	forceVariables(&card.Variables, l.vars)
}

func (l *Location) insertIndex() int {
	switch l.ToPosition.Resolve() {
	case Bottom:
		return 0
	case Random:
		if l.board != nil {
			return l.board.rng.Intn(len(l.cards) + 1)
		}
	}
	return len(l.cards)
}

// RemoveCard detaches card. Reports false if the card is not here.
func (l *Location) RemoveCard(card *Card) bool {
	if card.location != l {
		return false
	}
	l.cards = removeCard(l.cards, card)
	card.location = nil
	return true
}

func (l *Location) Cards() []*Card { return append([]*Card(nil), l.cards...) }

func (l *Location) Len() int { return len(l.cards) }

func (l *Location) IndexOf(card *Card) int {
	for i, c := range l.cards {
		if c == card {
			return i
		}
	}
	return -1
}

// Top returns the last n cards in pile order.
func (l *Location) Top(n int) []*Card {
	if n > len(l.cards) {
		n = len(l.cards)
	}
	if n <= 0 {
		return nil
	}
	return append([]*Card(nil), l.cards[len(l.cards)-n:]...)
}

// Bottom returns the first n cards.
func (l *Location) Bottom(n int) []*Card {
	if n > len(l.cards) {
		n = len(l.cards)
	}
	if n <= 0 {
		return nil
	}
	return append([]*Card(nil), l.cards[:n]...)
}

// Shuffle reorders the pile deterministically from seed, so every board
// replaying the same command ends in the same order.
func (l *Location) Shuffle(seed int64) {
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(l.cards), func(i, j int) {
		l.cards[i], l.cards[j] = l.cards[j], l.cards[i]
	})
}

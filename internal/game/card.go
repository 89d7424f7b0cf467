package game

// UnknownID marks a card whose identity is hidden from this board.
const UnknownID = -1

type Card struct {
	Name string
	ID   int

	Labels
	RegionSet
	Variables

	location *Location
	deck     *Deck
}

// Location returns the location currently holding the card, or nil.
func (c *Card) Location() *Location { return c.location }

// Deck returns the deck the card was dealt from, or nil.
func (c *Card) Deck() *Deck { return c.deck }

type Deck struct {
	Name string
	ID   int

	Labels
	Variables

	cards []*Card
}

// AddCard makes card part of the deck and copies deck variables onto it
// without touching variables the card already has.
func (d *Deck) AddCard(card *Card) {
	if card.deck == d {
		return
	}
	if card.deck != nil {
		card.deck.cards = removeCard(card.deck.cards, card)
	}
	card.deck = d
	d.cards = append(d.cards, card)
	defaultVariables(&card.Variables, d.vars)
}

func (d *Deck) Cards() []*Card { return append([]*Card(nil), d.cards...) }

func (d *Deck) Len() int { return len(d.cards) }

type Region struct {
	Name string

	Labels
}

type User struct {
	Name string
	ID   int
}

func removeCard(cards []*Card, card *Card) []*Card {
	for i, c := range cards {
		if c == card {
			return append(cards[:i], cards[i+1:]...)
		}
	}
	return cards
}

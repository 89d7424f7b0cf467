// Package game holds the board model shared by the server and every client:
// cards, decks, locations, regions and users, plus the id-string query
// syntax rules use to name them across a transport.
package game

import (
	"errors"
	"math/rand"
	"strconv"
	"strings"
)

var ErrSnapshot = errors.New("invalid snapshot")

// Board owns every entity of one game replica. Each client keeps its own
// Board and converges by replaying the same command batches. A Board is not
// safe for concurrent use.
type Board struct {
	cards     []*Card
	decks     []*Deck
	locations []*Location
	users     []*User
	regions   []*Region

	uniqueID int
	rng      *rand.Rand
	subs     map[int]func(Event)
	nextSub  int
}

func NewBoard(seed int64) *Board {
	return &Board{rng: rand.New(rand.NewSource(seed)), subs: map[int]func(Event){}}
}

// NextUniqueID returns a fresh id, strictly greater than every id it has
// returned before.
func (b *Board) NextUniqueID() int {
	b.uniqueID++
	return b.uniqueID
}

func (b *Board) Rand() *rand.Rand { return b.rng }

// ---------- factories ----------

func (b *Board) CreateCard(name string, id int) *Card {
	b.NextUniqueID()
	c := &Card{Name: name, ID: id}
	b.cards = append(b.cards, c)
	return c
}

func (b *Board) CreateDeck(name string, id int) *Deck {
	b.NextUniqueID()
	d := &Deck{Name: name, ID: id}
	b.decks = append(b.decks, d)
	return d
}

func (b *Board) CreateLocation(name string, id int) *Location {
	b.NextUniqueID()
	l := &Location{Name: name, ID: id, board: b}
	b.locations = append(b.locations, l)
	return l
}

func (b *Board) CreateUser(name string, id int) *User {
	b.NextUniqueID()
	u := &User{Name: name, ID: id}
	b.users = append(b.users, u)
	return u
}

func (b *Board) CreateRegion(name string) *Region {
	b.NextUniqueID()
	r := &Region{Name: name}
	b.regions = append(b.regions, r)
	return r
}

// ---------- listing ----------

func (b *Board) Cards() []*Card         { return append([]*Card(nil), b.cards...) }
func (b *Board) Decks() []*Deck         { return append([]*Deck(nil), b.decks...) }
func (b *Board) Locations() []*Location { return append([]*Location(nil), b.locations...) }
func (b *Board) Users() []*User         { return append([]*User(nil), b.users...) }
func (b *Board) Regions() []*Region     { return append([]*Region(nil), b.regions...) }

// ---------- lookups ----------

func (b *Board) FindCardByID(id int) *Card {
	for _, c := range b.cards {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (b *Board) FindCardByName(name string) *Card {
	for _, c := range b.cards {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (b *Board) FindLocationByID(id int) *Location {
	for _, l := range b.locations {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (b *Board) FindLocationByName(name string) *Location {
	for _, l := range b.locations {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// FindDeckByID treats a negative id as its absolute value.
func (b *Board) FindDeckByID(id int) *Deck {
	if id < 0 {
		id = -id
	}
	for _, d := range b.decks {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (b *Board) FindDeckByName(name string) *Deck {
	for _, d := range b.decks {
		if d.Name == name {
			return d
		}
	}
	return nil
}

func (b *Board) FindUserByName(name string) *User {
	for _, u := range b.users {
		if u.Name == name {
			return u
		}
	}
	return nil
}

func (b *Board) FindRegion(name string) *Region {
	for _, r := range b.regions {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// ---------- queries ----------

// token is one element of a query: ".label", an integer id, or a name.
type token struct {
	label string
	id    int
	isID  bool
	name  string
}

func parseQuery(q string) []token {
	var out []token
	for _, s := range strings.Split(q, ",") {
		s = strings.TrimSpace(s)
		switch {
		case s == "":
		case strings.HasPrefix(s, "."):
			out = append(out, token{label: s[1:]})
		default:
			if id, err := strconv.Atoi(s); err == nil {
				out = append(out, token{id: id, isID: true, name: s})
			} else {
				out = append(out, token{name: s})
			}
		}
	}
	return out
}

func (t token) match(name string, id int, hasID bool, l *Labels) bool {
	switch {
	case t.label != "":
		return l.HasLabel(t.label)
	case t.isID && hasID:
		return id == t.id
	}
	return name == t.name
}

// query keeps board order and reports each entity once.
func query[T any](items []T, q string, match func(token, T) bool) []T {
	toks := parseQuery(q)
	var out []T
	for _, it := range items {
		for _, t := range toks {
			if match(t, it) {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

func (b *Board) QueryCards(q string) []*Card {
	return query(b.cards, q, func(t token, c *Card) bool { return t.match(c.Name, c.ID, true, &c.Labels) })
}

func (b *Board) QueryLocations(q string) []*Location {
	return query(b.locations, q, func(t token, l *Location) bool { return t.match(l.Name, l.ID, true, &l.Labels) })
}

func (b *Board) QueryDecks(q string) []*Deck {
	return query(b.decks, q, func(t token, d *Deck) bool {
		if t.isID && t.id < 0 {
			t.id = -t.id
		}
		return t.match(d.Name, d.ID, true, &d.Labels)
	})
}

// QueryRegions matches regions by name or label; numeric tokens are names.
func (b *Board) QueryRegions(q string) []*Region {
	return query(b.regions, q, func(t token, r *Region) bool { return t.match(r.Name, 0, false, &r.Labels) })
}

func (b *Board) QueryUsers(q string) []*User {
	return query(b.users, q, func(t token, u *User) bool { return t.match(u.Name, u.ID, true, &Labels{}) })
}

// LocationsInRegion lists locations that joined the named region.
func (b *Board) LocationsInRegion(name string) []*Location {
	var out []*Location
	for _, l := range b.locations {
		if l.InRegion(name) {
			out = append(out, l)
		}
	}
	return out
}

// CardsInRegion lists cards that joined the named region.
func (b *Board) CardsInRegion(name string) []*Card {
	var out []*Card
	for _, c := range b.cards {
		if c.InRegion(name) {
			out = append(out, c)
		}
	}
	return out
}

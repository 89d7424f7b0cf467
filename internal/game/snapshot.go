package game

import "fmt"

// Snapshot is a plain, JSON-serialisable copy of a board. Cards are listed
// once; decks and locations refer to them by position in Cards so hidden
// cards sharing UnknownID survive the round trip.
type Snapshot struct {
	UniqueID  int             `json:"uniqueId"`
	Users     []UserState     `json:"users,omitempty"`
	Regions   []RegionState   `json:"regions,omitempty"`
	Decks     []DeckState     `json:"decks,omitempty"`
	Locations []LocationState `json:"locations,omitempty"`
	Cards     []CardState     `json:"cards,omitempty"`
}

type UserState struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

type RegionState struct {
	Name   string   `json:"name"`
	Labels []string `json:"labels,omitempty"`
}

type DeckState struct {
	Name      string         `json:"name"`
	ID        int            `json:"id"`
	Labels    []string       `json:"labels,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
	Cards     []int          `json:"cards,omitempty"`
}

type LocationState struct {
	Name         string         `json:"name"`
	ID           int            `json:"id"`
	ToPosition   Position       `json:"toPosition,omitempty"`
	FromPosition Position       `json:"fromPosition,omitempty"`
	Labels       []string       `json:"labels,omitempty"`
	Regions      []string       `json:"regions,omitempty"`
	Variables    map[string]any `json:"variables,omitempty"`
	Cards        []int          `json:"cards,omitempty"`
}

type CardState struct {
	Name      string         `json:"name"`
	ID        int            `json:"id"`
	Labels    []string       `json:"labels,omitempty"`
	Regions   []string       `json:"regions,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
}

func (b *Board) Save() Snapshot {
	pos := make(map[*Card]int, len(b.cards))
	s := Snapshot{UniqueID: b.uniqueID}
	for i, c := range b.cards {
		pos[c] = i
		s.Cards = append(s.Cards, CardState{
			Name: c.Name, ID: c.ID,
			Labels: c.LabelList(), Regions: c.RegionNames(), Variables: c.VariableMap(),
		})
	}
	positions := func(cards []*Card) []int {
		out := make([]int, 0, len(cards))
		for _, c := range cards {
			out = append(out, pos[c])
		}
		return out
	}
	for _, u := range b.users {
		s.Users = append(s.Users, UserState{Name: u.Name, ID: u.ID})
	}
	for _, r := range b.regions {
		s.Regions = append(s.Regions, RegionState{Name: r.Name, Labels: r.LabelList()})
	}
	for _, d := range b.decks {
		s.Decks = append(s.Decks, DeckState{
			Name: d.Name, ID: d.ID,
			Labels: d.LabelList(), Variables: d.VariableMap(), Cards: positions(d.cards),
		})
	}
	for _, l := range b.locations {
		s.Locations = append(s.Locations, LocationState{
			Name: l.Name, ID: l.ID, ToPosition: l.ToPosition, FromPosition: l.FromPosition,
			Labels: l.LabelList(), Regions: l.RegionNames(), Variables: l.VariableMap(),
			Cards: positions(l.cards),
		})
	}
	return s
}

// Load rebuilds a board from s. Card variables are restored as saved; deck
// and location variables are not re-applied.
func Load(s Snapshot, seed int64) (*Board, error) {
	b := NewBoard(seed)
	for _, cs := range s.Cards {
		c := &Card{Name: cs.Name, ID: cs.ID}
		c.AddLabels(cs.Labels...)
		for _, r := range cs.Regions {
			c.JoinRegion(r)
		}
		forceVariables(&c.Variables, cs.Variables)
		b.cards = append(b.cards, c)
	}
	card := func(i int) (*Card, error) {
		if i < 0 || i >= len(b.cards) {
			return nil, fmt.Errorf("%w: card index %d out of range", ErrSnapshot, i)
		}
		return b.cards[i], nil
	}
	for _, us := range s.Users {
		b.users = append(b.users, &User{Name: us.Name, ID: us.ID})
	}
	for _, rs := range s.Regions {
		r := &Region{Name: rs.Name}
		r.AddLabels(rs.Labels...)
		b.regions = append(b.regions, r)
	}
	for _, ds := range s.Decks {
		d := &Deck{Name: ds.Name, ID: ds.ID}
		d.AddLabels(ds.Labels...)
		forceVariables(&d.Variables, ds.Variables)
		for _, i := range ds.Cards {
			c, err := card(i)
			if err != nil {
				return nil, err
			}
			if c.deck != nil {
				return nil, fmt.Errorf("%w: card %d in decks %q and %q", ErrSnapshot, i, c.deck.Name, d.Name)
			}
			c.deck = d
			d.cards = append(d.cards, c)
		}
		b.decks = append(b.decks, d)
	}
	for _, ls := range s.Locations {
		l := &Location{Name: ls.Name, ID: ls.ID, ToPosition: ls.ToPosition, FromPosition: ls.FromPosition, board: b}
		l.AddLabels(ls.Labels...)
		for _, r := range ls.Regions {
			l.JoinRegion(r)
		}
		forceVariables(&l.Variables, ls.Variables)
		for _, i := range ls.Cards {
			c, err := card(i)
			if err != nil {
				return nil, err
			}
			if c.location != nil {
				return nil, fmt.Errorf("%w: card %d in locations %q and %q", ErrSnapshot, i, c.location.Name, l.Name)
			}
			c.location = l
			l.cards = append(l.cards, c)
		}
		b.locations = append(b.locations, l)
	}
	b.uniqueID = s.UniqueID
	return b, nil
}

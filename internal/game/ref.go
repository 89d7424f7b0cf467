package game

import (
	"strconv"
	"strings"
)

// Ref names a board entity at rule construction time. The set of
// implementations is closed: CardRef, LocationRef, DeckRef, RegionRef and
// QueryRef.
type Ref interface {
	tokens(b *Board) []string
}

type CardRef int

type LocationRef int

type DeckRef int

// RegionRef expands to the locations that joined the region.
type RegionRef string

// QueryRef passes an id-string query through untouched.
type QueryRef string

func (r CardRef) tokens(*Board) []string     { return []string{strconv.Itoa(int(r))} }
func (r LocationRef) tokens(*Board) []string { return []string{strconv.Itoa(int(r))} }
func (r DeckRef) tokens(*Board) []string     { return []string{strconv.Itoa(int(r))} }
func (r QueryRef) tokens(*Board) []string    { return []string{string(r)} }

func (r RegionRef) tokens(b *Board) []string {
	var out []string
	for _, l := range b.LocationsInRegion(string(r)) {
		out = append(out, strconv.Itoa(l.ID))
	}
	return out
}

func (c *Card) Ref() Ref     { return CardRef(c.ID) }
func (l *Location) Ref() Ref { return LocationRef(l.ID) }
func (d *Deck) Ref() Ref     { return DeckRef(d.ID) }
func (r *Region) Ref() Ref   { return RegionRef(r.Name) }

func (b *Board) ConvertCardsToIDString(cards []*Card) string {
	parts := make([]string, 0, len(cards))
	for _, c := range cards {
		parts = append(parts, strconv.Itoa(c.ID))
	}
	return strings.Join(parts, ",")
}

func (b *Board) ConvertLocationsToIDString(locs []*Location) string {
	parts := make([]string, 0, len(locs))
	for _, l := range locs {
		parts = append(parts, strconv.Itoa(l.ID))
	}
	return strings.Join(parts, ",")
}

// ConvertToIDString joins the tokens of every ref into one query string.
func (b *Board) ConvertToIDString(refs ...Ref) string {
	var parts []string
	for _, r := range refs {
		if r == nil {
			continue
		}
		for _, t := range r.tokens(b) {
			if t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, ",")
}

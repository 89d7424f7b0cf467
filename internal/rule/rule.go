// Package rule defines the wire types exchanged between the game server and
// its clients, and the plugin contract that turns rules into commands.
package rule

import (
	"errors"
	"sort"
	"strings"

	"example.com/tabletop/internal/game"
)

var (
	ErrMalformedRule = errors.New("malformed rule")
	ErrUnknownType   = errors.New("unknown rule type")
	ErrDuplicateType = errors.New("type already registered")
)

// Rule is a declarative action addressed to one or more users. Plugin fields
// are flat; each plugin reads the ones it owns.
type Rule struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
	User string `json:"user"`

	// move
	From         string        `json:"from,omitempty"`
	To           string        `json:"to,omitempty"`
	Cards        string        `json:"cards,omitempty"`
	FromPosition game.Position `json:"fromPosition,omitempty"`
	ToPosition   game.Position `json:"toPosition,omitempty"`
	Quantity     game.Quantity `json:"quantity,omitempty"`
	Count        int           `json:"count,omitempty"`

	// pick, pickLocation, pickCard
	List   string `json:"list,omitempty"`
	Values []any  `json:"values,omitempty"`
	// Where filters pick candidates. It only survives in-process transports.
	Where func(any) bool `json:"-"`

	// label, setCardVariable, setLocationVariable, setTemporary
	Key     string   `json:"key,omitempty"`
	Value   any      `json:"value,omitempty"`
	Labels  []string `json:"labels,omitempty"`
	Affects string   `json:"affects,omitempty"`

	// shuffle
	Location string `json:"location,omitempty"`

	// sendMessage
	Message string `json:"message,omitempty"`
	Detail  any    `json:"detail,omitempty"`
	Bubbles bool   `json:"bubbles,omitempty"`

	// delay, setTemporary (seconds)
	Timeout float64 `json:"timeout,omitempty"`
}

// Users splits the comma-joined addressee list.
func (r *Rule) Users() []string {
	return SplitUsers(r.User)
}

func SplitUsers(s string) []string {
	var out []string
	for _, u := range strings.Split(s, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// Command is one concrete, resolved action.
type Command struct {
	Type string `json:"type"`

	// move
	CardID int `json:"cardId,omitempty"`
	FromID int `json:"fromId,omitempty"`
	ToID   int `json:"toId,omitempty"`
	Index  int `json:"index,omitempty"`

	// pick, pickLocation, pickCard
	Values []any `json:"values,omitempty"`

	// label (Key is add, remove or set), set*Variable
	Key     string   `json:"key,omitempty"`
	Value   any      `json:"value,omitempty"`
	Labels  []string `json:"labels,omitempty"`
	Affects string   `json:"affects,omitempty"`

	// shuffle
	Seed       int64 `json:"seed,omitempty"`
	LocationID int   `json:"locationId,omitempty"`

	// sendMessage
	Message string `json:"message,omitempty"`
	Detail  any    `json:"detail,omitempty"`
	Bubbles bool   `json:"bubbles,omitempty"`
}

// CommandFromRule copies a rule whose shape already is a valid command.
func CommandFromRule(r *Rule) Command {
	return Command{
		Type:    r.Type,
		Key:     r.Key,
		Value:   r.Value,
		Labels:  append([]string(nil), r.Labels...),
		Affects: r.Affects,
		Message: r.Message,
		Detail:  r.Detail,
		Bubbles: r.Bubbles,
	}
}

// Batch collects every user's commands for one rule id.
type Batch struct {
	RuleID   int                  `json:"ruleId"`
	Commands map[string][]Command `json:"commands"`
}

func NewBatch(ruleID int) *Batch {
	return &Batch{RuleID: ruleID, Commands: map[string][]Command{}}
}

// Users lists contributors, sorted.
func (b *Batch) Users() []string {
	out := make([]string, 0, len(b.Commands))
	for u := range b.Commands {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

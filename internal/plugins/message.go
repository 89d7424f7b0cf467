package plugins

import (
	"example.com/tabletop/internal/game"
	"example.com/tabletop/internal/rule"
)

const TypeSendMessage = "sendMessage"

// Message broadcasts a named event to every board's subscribers.
type Message struct{}

func (Message) RuleTypes() []string    { return []string{TypeSendMessage} }
func (Message) CommandTypes() []string { return []string{TypeSendMessage} }

func (Message) CreateRule(_ *game.Board, args rule.Fields) (*rule.Rule, error) {
	return &rule.Rule{
		Type:    TypeSendMessage,
		User:    args.String("user"),
		Message: args.String("message"),
		Detail:  args["detail"],
		Bubbles: args.Bool("bubbles"),
	}, nil
}

func (Message) PerformRule(_ *rule.Context, r *rule.Rule) ([][]rule.Command, error) {
	return [][]rule.Command{{rule.CommandFromRule(r)}}, nil
}

func (Message) UpdateBoard(b *game.Board, cmd rule.Command) error {
	b.Emit(game.Event{Kind: game.EventMessage, Message: cmd.Message, Detail: cmd.Detail, Bubbles: cmd.Bubbles})
	return nil
}

func (Message) CreateResult(_ *game.Board, cmd rule.Command) (any, error) {
	return cmd.Detail, nil
}

// Package transport moves protocol messages between the game server and
// clients. Every binding delivers messages for a user in order and once.
package transport

import (
	"errors"
	"sync"

	"example.com/tabletop/internal/game"
	"example.com/tabletop/internal/rule"
)

var ErrClosed = errors.New("transport closed")

type Kind string

const (
	KindRule  Kind = "rule"
	KindBatch Kind = "batch"
	KindBoard Kind = "board"
)

// Message is the envelope every binding carries.
type Message struct {
	Command Kind           `json:"command"`
	Rule    *rule.Rule     `json:"rule,omitempty"`
	Batch   *rule.Batch    `json:"batch,omitempty"`
	Board   *game.Snapshot `json:"board,omitempty"`
}

func RuleMessage(r *rule.Rule) Message { return Message{Command: KindRule, Rule: r} }

func BatchMessage(b *rule.Batch) Message { return Message{Command: KindBatch, Batch: b} }

func BoardMessage(s game.Snapshot) Message { return Message{Command: KindBoard, Board: &s} }

// Transport is one end of a connection. Send must not block on the peer.
type Transport interface {
	// Users are the users this end speaks for.
	Users() []string
	Send(Message) error
	SetHandler(func(Message))
	Close() error
}

// Base keeps the user list and the inbound handler.
type Base struct {
	mu      sync.RWMutex
	users   []string
	handler func(Message)
}

func NewBase(users ...string) Base {
	return Base{users: append([]string(nil), users...)}
}

func (b *Base) Users() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.users...)
}

// SetUsers replaces the user list, for bindings that learn it late.
func (b *Base) SetUsers(users ...string) {
	b.mu.Lock()
	b.users = append([]string(nil), users...)
	b.mu.Unlock()
}

func (b *Base) SetHandler(h func(Message)) {
	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()
}

// Dispatch hands m to the handler. Reports false when none is set.
func (b *Base) Dispatch(m Message) bool {
	b.mu.RLock()
	h := b.handler
	b.mu.RUnlock()
	if h == nil {
		return false
	}
	h(m)
	return true
}

// Overlaps reports whether t speaks for any of users.
func Overlaps(t Transport, users []string) bool {
	for _, have := range t.Users() {
		for _, want := range users {
			if have == want {
				return true
			}
		}
	}
	return false
}

package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Packet is the unit a PacketConn carries. IDs are per sender and start at 1.
type Packet struct {
	ID   int     `json:"id"`
	User string  `json:"user,omitempty"`
	Msg  Message `json:"msg"`
}

// PacketConn is a channel that may reorder packets but does not lose them.
type PacketConn interface {
	WritePacket(ctx context.Context, p Packet) error
	ReadPacket(ctx context.Context) (Packet, error)
	Close() error
}

// Sequenced numbers outgoing packets and releases incoming ones strictly in
// id order, holding any packet that arrives before its predecessors.
type Sequenced struct {
	Base
	conn   PacketConn
	logger zerolog.Logger

	sendMu sync.Mutex
	sendID int
	from   string

	recvMu   sync.Mutex
	lastRecv int
	pending  map[int]Packet
}

// NewSequenced wraps conn. from names the sending user stamped on packets.
func NewSequenced(conn PacketConn, logger zerolog.Logger, from string, users ...string) *Sequenced {
	return &Sequenced{
		Base:    NewBase(users...),
		conn:    conn,
		logger:  logger,
		from:    from,
		pending: map[int]Packet{},
	}
}

func (s *Sequenced) Send(m Message) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.sendID++
	return s.conn.WritePacket(context.Background(), Packet{ID: s.sendID, User: s.from, Msg: m})
}

// Run reads packets until ctx ends or the connection fails.
func (s *Sequenced) Run(ctx context.Context) error {
	for {
		p, err := s.conn.ReadPacket(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		s.Receive(p)
	}
}

// Receive buffers p and dispatches every packet that is now contiguous.
func (s *Sequenced) Receive(p Packet) {
	s.recvMu.Lock()
	if last := s.lastRecv; p.ID <= last {
		s.recvMu.Unlock()
		s.logger.Debug().Int("id", p.ID).Int("last", last).Msg("duplicate packet dropped")
		return
	}
	s.pending[p.ID] = p
	var ready []Packet
	for {
		next, ok := s.pending[s.lastRecv+1]
		if !ok {
			break
		}
		delete(s.pending, next.ID)
		s.lastRecv = next.ID
		ready = append(ready, next)
	}
	held := len(s.pending)
	s.recvMu.Unlock()

	if held > 0 {
		s.logger.Debug().Int("held", held).Msg("waiting for earlier packets")
	}
	for _, r := range ready {
		s.Dispatch(r.Msg)
	}
}

func (s *Sequenced) Close() error { return s.conn.Close() }

package transport

import (
	"sync"

	"github.com/rs/zerolog"
)

type delivery struct {
	to  *Local
	msg Message
}

// Directory connects in-process transports. All deliveries go through one
// FIFO queue drained by a single goroutine, so a message sent from inside a
// handler is delivered after that handler returns, in submission order.
type Directory struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []delivery
	inflight bool
	started  bool
	closed   bool
	byUser   map[string]*Local
	logger   zerolog.Logger
}

func NewDirectory(logger zerolog.Logger) *Directory {
	d := &Directory{byUser: map[string]*Local{}, logger: logger}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Pair returns two connected ends. The client end speaks for users and is
// registered under them; the server end speaks for the same users so the
// game server can route rules to it.
func (d *Directory) Pair(users ...string) (server, client *Local) {
	server = &Local{Base: NewBase(users...), dir: d}
	client = &Local{Base: NewBase(users...), dir: d}
	server.peer, client.peer = client, server

	d.mu.Lock()
	for _, u := range users {
		d.byUser[u] = client
	}
	d.mu.Unlock()
	return server, client
}

// Lookup finds the client end registered for user.
func (d *Directory) Lookup(user string) (*Local, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.byUser[user]
	return l, ok
}

func (d *Directory) enqueue(to *Local, m Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.queue = append(d.queue, delivery{to: to, msg: m})
	if !d.started {
		d.started = true
		go d.run()
	}
	d.cond.Broadcast()
	return nil
}

func (d *Directory) run() {
	d.mu.Lock()
	for {
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.closed {
			d.mu.Unlock()
			return
		}
		next := d.queue[0]
		d.queue = d.queue[1:]
		d.inflight = true
		d.mu.Unlock()

		if !next.to.isClosed() && !next.to.Dispatch(next.msg) {
			d.logger.Warn().Str("command", string(next.msg.Command)).Strs("users", next.to.Users()).Msg("local message without handler")
		}

		d.mu.Lock()
		d.inflight = false
		d.cond.Broadcast()
	}
}

// Wait blocks until every queued message has been handled, including
// messages sent by those handlers.
func (d *Directory) Wait() {
	d.mu.Lock()
	for (len(d.queue) > 0 || d.inflight) && !d.closed {
		d.cond.Wait()
	}
	d.mu.Unlock()
}

// Close stops delivery. Queued messages are dropped.
func (d *Directory) Close() {
	d.mu.Lock()
	d.closed = true
	d.queue = nil
	d.cond.Broadcast()
	d.mu.Unlock()
}

// Local is one end of an in-process pair. Messages cross without
// serialisation.
type Local struct {
	Base
	dir  *Directory
	peer *Local

	closeMu sync.Mutex
	closed  bool
}

func (l *Local) Send(m Message) error {
	if l.isClosed() {
		return ErrClosed
	}
	return l.dir.enqueue(l.peer, m)
}

func (l *Local) Close() error {
	l.closeMu.Lock()
	l.closed = true
	l.closeMu.Unlock()
	return nil
}

func (l *Local) isClosed() bool {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	return l.closed
}

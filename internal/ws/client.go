package ws

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"example.com/tabletop/internal/transport"
)

var ErrSlowClient = errors.New("client send buffer full")

const (
	pingEvery  = 15 * time.Second
	writeWait  = 10 * time.Second
	readLimit  = 1 << 20
	sendBuffer = 256
)

// Client is one websocket connection carrying sequenced packets. Writes are
// queued and flushed by a writer goroutine that also keeps the connection
// alive with pings.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan transport.Packet
	done   chan struct{}
	logger zerolog.Logger

	once sync.Once
}

func newClient(conn *websocket.Conn, logger zerolog.Logger) *Client {
	conn.SetReadLimit(readLimit)
	id := uuid.NewString()
	c := &Client{
		id:     id,
		conn:   conn,
		send:   make(chan transport.Packet, sendBuffer),
		done:   make(chan struct{}),
		logger: logger.With().Str("conn", id).Logger(),
	}
	go c.writer()
	return c
}

func (c *Client) ID() string { return c.id }

func (c *Client) writer() {
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	for {
		select {
		case <-c.done:
			return
		case p := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := wsjson.Write(ctx, c.conn, p)
			cancel()
			if err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				_ = c.Close()
				return
			}
		case <-ping.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				_ = c.Close()
				return
			}
		}
	}
}

// WritePacket queues p without waiting for the network. A client that lets
// its buffer fill is disconnected.
func (c *Client) WritePacket(_ context.Context, p transport.Packet) error {
	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}
	select {
	case c.send <- p:
		return nil
	default:
		c.logger.Warn().Msg("send buffer full, closing")
		_ = c.conn.Close(websocket.StatusPolicyViolation, "slow client")
		_ = c.Close()
		return ErrSlowClient
	}
}

func (c *Client) ReadPacket(ctx context.Context) (transport.Packet, error) {
	var p transport.Packet
	err := wsjson.Read(ctx, c.conn, &p)
	return p, err
}

func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close(websocket.StatusNormalClosure, "bye")
	})
	return nil
}

// Dial connects to a hub endpoint as user and returns the sequenced
// transport over it. The caller runs its read loop with Run.
func Dial(ctx context.Context, endpoint, user string, logger zerolog.Logger) (*transport.Sequenced, error) {
	conn, _, err := websocket.Dial(ctx, endpoint+"?user="+url.QueryEscape(user), nil)
	if err != nil {
		return nil, err
	}
	return transport.NewSequenced(newClient(conn, logger), logger, user, user), nil
}

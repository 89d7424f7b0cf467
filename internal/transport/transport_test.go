package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/tabletop/internal/rule"
)

type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) handle(m Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *recorder) all() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

func (r *recorder) ruleIDs() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, m := range r.msgs {
		switch {
		case m.Rule != nil:
			out = append(out, m.Rule.ID)
		case m.Batch != nil:
			out = append(out, m.Batch.RuleID)
		}
	}
	return out
}

func TestLocalReentrantSendsKeepOrder(t *testing.T) {
	d := NewDirectory(zerolog.Nop())
	defer d.Close()
	srv, cli := d.Pair("P1")

	var order []string
	var mu sync.Mutex
	note := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	cli.SetHandler(func(m Message) {
		note("client got rule")
		// replies sent from inside a handler are queued behind it
		assert.NoError(t, cli.Send(BatchMessage(&rule.Batch{RuleID: m.Rule.ID})))
		assert.NoError(t, cli.Send(BatchMessage(&rule.Batch{RuleID: m.Rule.ID + 100})))
		note("client handler done")
	})
	srvRec := &recorder{}
	srv.SetHandler(func(m Message) {
		note("server got batch")
		srvRec.handle(m)
	})

	require.NoError(t, srv.Send(RuleMessage(&rule.Rule{ID: 1, Type: "x", User: "P1"})))
	d.Wait()

	assert.Equal(t, []string{"client got rule", "client handler done", "server got batch", "server got batch"}, order)
	assert.Equal(t, []int{1, 101}, srvRec.ruleIDs())

	got, ok := d.Lookup("P1")
	assert.True(t, ok)
	assert.Same(t, cli, got)
	assert.Equal(t, []string{"P1"}, srv.Users())
}

func TestLocalClose(t *testing.T) {
	d := NewDirectory(zerolog.Nop())
	srv, cli := d.Pair("P1")
	require.NoError(t, cli.Close())
	assert.ErrorIs(t, cli.Send(Message{}), ErrClosed)
	d.Close()
	assert.ErrorIs(t, srv.Send(Message{}), ErrClosed)
	d.Wait()
}

func TestSequencedReassembly(t *testing.T) {
	s := NewSequenced(nil, zerolog.Nop(), "server", "P1")
	rec := &recorder{}
	s.SetHandler(rec.handle)

	pk := func(id int) Packet {
		return Packet{ID: id, Msg: RuleMessage(&rule.Rule{ID: id})}
	}
	s.Receive(pk(2))
	s.Receive(pk(3))
	assert.Empty(t, rec.ruleIDs(), "held until 1 arrives")

	s.Receive(pk(1))
	assert.Equal(t, []int{1, 2, 3}, rec.ruleIDs())

	s.Receive(pk(2))
	s.Receive(pk(5))
	s.Receive(pk(4))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, rec.ruleIDs())
}

func TestSequencedConcurrentReceive(t *testing.T) {
	s := NewSequenced(nil, zerolog.Nop(), "server", "P1")
	rec := &recorder{}
	s.SetHandler(rec.handle)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := 1; id <= 50; id++ {
				s.Receive(Packet{ID: id, Msg: RuleMessage(&rule.Rule{ID: id})})
			}
		}()
	}
	wg.Wait()

	ids := rec.ruleIDs()
	require.Len(t, ids, 50, "every packet once, duplicates dropped")
	seen := map[int]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "packet %d dispatched twice", id)
		seen[id] = true
	}
}

type capturingConn struct {
	mu  sync.Mutex
	out []Packet
}

func (c *capturingConn) WritePacket(_ context.Context, p Packet) error {
	c.mu.Lock()
	c.out = append(c.out, p)
	c.mu.Unlock()
	return nil
}

func (c *capturingConn) ReadPacket(ctx context.Context) (Packet, error) {
	<-ctx.Done()
	return Packet{}, ctx.Err()
}

func (c *capturingConn) Close() error { return nil }

func TestSequencedNumbersOutgoing(t *testing.T) {
	conn := &capturingConn{}
	s := NewSequenced(conn, zerolog.Nop(), "P1", "P1")
	require.NoError(t, s.Send(Message{Command: KindBatch}))
	require.NoError(t, s.Send(Message{Command: KindBatch}))
	require.Len(t, conn.out, 2)
	assert.Equal(t, 1, conn.out[0].ID)
	assert.Equal(t, 2, conn.out[1].ID)
	assert.Equal(t, "P1", conn.out[1].User)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
}

func TestRESTRoundTrip(t *testing.T) {
	srv := NewRESTServer("", zerolog.Nop())
	var connected []string
	srv.OnConnect = func(p *RESTPeer) { connected = append(connected, p.Users()[0]) }
	ts := httptest.NewServer(srv)
	defer ts.Close()

	inbound := &recorder{}
	srv.Peer("P1").SetHandler(inbound.handle)
	require.NoError(t, srv.Peer("P1").Send(RuleMessage(&rule.Rule{ID: 7, User: "P1"})))
	require.NoError(t, srv.Peer("P2").Send(RuleMessage(&rule.Rule{ID: 8, User: "P2"})))

	cli := NewRESTClient(ts.URL, "P1", 0, zerolog.Nop())
	rec := &recorder{}
	cli.SetHandler(rec.handle)
	ctx := context.Background()
	require.NoError(t, cli.Join(ctx))
	require.NoError(t, cli.Poll(ctx))
	assert.Equal(t, []int{7}, rec.ruleIDs())

	// nothing new: no redelivery
	require.NoError(t, cli.Poll(ctx))
	assert.Equal(t, []int{7}, rec.ruleIDs())

	require.NoError(t, srv.Peer("P1").Send(RuleMessage(&rule.Rule{ID: 9, User: "P1"})))
	require.NoError(t, cli.Poll(ctx))
	assert.Equal(t, []int{7, 9}, rec.ruleIDs())

	b := rule.NewBatch(7)
	b.Commands["P1"] = []rule.Command{{Type: "pick", Values: []any{"x"}}}
	require.NoError(t, cli.Send(BatchMessage(b)))
	got := inbound.all()
	require.Len(t, got, 1)
	assert.Equal(t, 7, got[0].Batch.RuleID)
	assert.Equal(t, []any{"x"}, got[0].Batch.Commands["P1"][0].Values)

	assert.Equal(t, []string{"P1", "P2"}, connected)
}

func TestRESTAuth(t *testing.T) {
	srv := NewRESTServer("s3cret", zerolog.Nop())
	ts := httptest.NewServer(srv)
	defer ts.Close()

	res, err := http.Get(ts.URL + "/poll?user=P1")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, err = http.Post(ts.URL+"/join?user=P2", "application/json", nil)
	require.NoError(t, err)
	var joined joinRes
	require.NoError(t, json.NewDecoder(res.Body).Decode(&joined))
	res.Body.Close()
	require.NotEmpty(t, joined.Token)

	// a P2 token cannot read P1's outbox
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/poll?user=P1", nil)
	req.Header.Set("Authorization", "Bearer "+joined.Token)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	cli := NewRESTClient(ts.URL, "P1", 0, zerolog.Nop())
	require.NoError(t, cli.Join(context.Background()))
	assert.NoError(t, cli.Poll(context.Background()))
}

func TestRESTBadRequests(t *testing.T) {
	srv := NewRESTServer("", zerolog.Nop())
	for _, tc := range []struct {
		method, target string
		want           int
	}{
		{http.MethodGet, "/poll", http.StatusBadRequest},
		{http.MethodGet, "/poll?user=P1&afterId=x", http.StatusBadRequest},
		{http.MethodPost, "/join", http.StatusBadRequest},
	} {
		rr := httptest.NewRecorder()
		srv.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.target, nil))
		assert.Equal(t, tc.want, rr.Code, tc.target)
	}
}

func TestOverlaps(t *testing.T) {
	d := NewDirectory(zerolog.Nop())
	defer d.Close()
	srv, _ := d.Pair("P1", "P2")
	assert.True(t, Overlaps(srv, []string{"P2", "P3"}))
	assert.False(t, Overlaps(srv, []string{"P3"}))
}

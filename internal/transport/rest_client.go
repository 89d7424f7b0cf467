package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RESTClient is the player end of the polling binding.
type RESTClient struct {
	Base
	baseURL  string
	user     string
	interval time.Duration
	hc       *http.Client
	logger   zerolog.Logger

	mu     sync.Mutex
	token  string
	lastID int
}

func NewRESTClient(baseURL, user string, interval time.Duration, logger zerolog.Logger) *RESTClient {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &RESTClient{
		Base:     NewBase(user),
		baseURL:  strings.TrimRight(baseURL, "/"),
		user:     user,
		interval: interval,
		hc:       &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

func (c *RESTClient) endpoint(path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	q.Set("user", c.user)
	return c.baseURL + path + "?" + q.Encode()
}

func (c *RESTClient) do(req *http.Request, out any) error {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	res, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, res.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// Join registers the user and keeps the bearer token if one is issued.
func (c *RESTClient) Join(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/join", nil), nil)
	if err != nil {
		return err
	}
	var res joinRes
	if err := c.do(req, &res); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	c.mu.Lock()
	c.token = res.Token
	c.mu.Unlock()
	return nil
}

func (c *RESTClient) Send(m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.endpoint("/send", nil), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

// Poll fetches and dispatches every packet newer than the last one seen.
func (c *RESTClient) Poll(ctx context.Context) error {
	c.mu.Lock()
	after := c.lastID
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/poll", url.Values{"afterId": {strconv.Itoa(after)}}), nil)
	if err != nil {
		return err
	}
	var packets []Packet
	if err := c.do(req, &packets); err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	for _, p := range packets {
		c.mu.Lock()
		fresh := p.ID > c.lastID
		if fresh {
			c.lastID = p.ID
		}
		c.mu.Unlock()
		if fresh {
			c.Dispatch(p.Msg)
		}
	}
	return nil
}

// Run polls on an interval until ctx ends. Failed polls are logged and
// retried.
func (c *RESTClient) Run(ctx context.Context) error {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		if err := c.Poll(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn().Err(err).Str("user", c.user).Msg("poll failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (c *RESTClient) Close() error {
	c.hc.CloseIdleConnections()
	return nil
}

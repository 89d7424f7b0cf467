package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// RESTServer serves the polling binding. Each user gets a server-side peer
// with an outbox of id-stamped packets; ids grow across the whole server so
// a poller only has to remember the last id it saw.
type RESTServer struct {
	r      *chi.Mux
	secret []byte
	logger zerolog.Logger

	mu     sync.Mutex
	nextID int
	peers  map[string]*RESTPeer

	// OnConnect is called once for every peer the server creates.
	OnConnect func(*RESTPeer)
}

// NewRESTServer builds the routes. An empty secret disables bearer auth.
func NewRESTServer(secret string, logger zerolog.Logger) *RESTServer {
	s := &RESTServer{r: chi.NewRouter(), secret: []byte(secret), logger: logger, peers: map[string]*RESTPeer{}}
	s.r.Use(jsonContentType)
	s.r.Post("/join", s.handleJoin)
	s.r.Group(func(r chi.Router) {
		r.Use(s.requireUser)
		r.Get("/poll", s.handlePoll)
		r.Post("/send", s.handleSend)
	})
	return s
}

func (s *RESTServer) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.r.ServeHTTP(w, r) }

// Peer returns the server-side transport for user, creating it on first use.
func (s *RESTServer) Peer(user string) *RESTPeer {
	s.mu.Lock()
	p, ok := s.peers[user]
	if !ok {
		p = &RESTPeer{Base: NewBase(user), srv: s, user: user}
		s.peers[user] = p
	}
	s.mu.Unlock()
	if !ok && s.OnConnect != nil {
		s.OnConnect(p)
	}
	return p
}

func (s *RESTServer) stamp() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

// ----------------------------- middleware ----------------------------------

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// requireUser checks the user query parameter and, when a secret is set,
// that the bearer token was issued for that user.
func (s *RESTServer) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.URL.Query().Get("user")
		if user == "" {
			http.Error(w, `{"error":"missing_user"}`, http.StatusBadRequest)
			return
		}
		if len(s.secret) > 0 {
			sub, err := s.verify(bearer(r))
			if err != nil || sub != user {
				http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func bearer(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	return ""
}

func (s *RESTServer) sign(user string) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": user,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	})
	return t.SignedString(s.secret)
}

func (s *RESTServer) verify(tok string) (string, error) {
	if tok == "" {
		return "", errors.New("no token")
	}
	claims := jwt.MapClaims{}
	t, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !t.Valid {
		return "", errors.New("invalid token")
	}
	return claims.GetSubject()
}

// ------------------------------- routes ------------------------------------

type joinRes struct {
	User  string `json:"user"`
	Token string `json:"token,omitempty"`
}

func (s *RESTServer) handleJoin(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, `{"error":"missing_user"}`, http.StatusBadRequest)
		return
	}
	res := joinRes{User: user}
	if len(s.secret) > 0 {
		tok, err := s.sign(user)
		if err != nil {
			s.logger.Error().Err(err).Msg("sign token")
			http.Error(w, `{"error":"sign_failed"}`, http.StatusInternalServerError)
			return
		}
		res.Token = tok
	}
	s.Peer(user)
	_ = json.NewEncoder(w).Encode(res)
}

func (s *RESTServer) handlePoll(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	after := 0
	if v := r.URL.Query().Get("afterId"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, `{"error":"bad_after_id"}`, http.StatusBadRequest)
			return
		}
		after = n
	}
	_ = json.NewEncoder(w).Encode(s.Peer(user).after(after))
}

func (s *RESTServer) handleSend(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	var m Message
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	if !s.Peer(user).Dispatch(m) {
		s.logger.Warn().Str("user", user).Msg("rest message without handler")
	}
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

// RESTPeer is the server end of one user's polling connection.
type RESTPeer struct {
	Base
	srv  *RESTServer
	user string

	mu     sync.Mutex
	outbox []Packet
	closed bool
}

func (p *RESTPeer) Send(m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.outbox = append(p.outbox, Packet{ID: p.srv.stamp(), User: p.user, Msg: m})
	return nil
}

func (p *RESTPeer) after(id int) []Packet {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []Packet{}
	for _, pk := range p.outbox {
		if pk.ID > id {
			out = append(out, pk)
		}
	}
	return out
}

func (p *RESTPeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

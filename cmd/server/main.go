package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"example.com/tabletop/internal/client"
	"example.com/tabletop/internal/config"
	"example.com/tabletop/internal/game"
	"example.com/tabletop/internal/journal"
	"example.com/tabletop/internal/plugins"
	"example.com/tabletop/internal/rule"
	"example.com/tabletop/internal/script"
	"example.com/tabletop/internal/server"
	"example.com/tabletop/internal/transport"
	"example.com/tabletop/internal/ws"
)

func main() {
	cfg := config.Load()
	logger := cfg.Logger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seed := cfg.Seed()
	board := game.NewBoard(seed)
	reg := rule.NewRegistry(logger.With().Str("component", "rules").Logger())
	bind := rule.NewBindings(board)
	if err := plugins.Install(reg, bind); err != nil {
		logger.Fatal().Err(err).Msg("install plugins")
	}

	name, src, err := loadScript(cfg.GameScript)
	if err != nil {
		logger.Fatal().Err(err).Str("script", cfg.GameScript).Msg("load script")
	}
	sc, err := script.NewLua(bind, src, cfg.Players, logger.With().Str("component", "script").Logger())
	if err != nil {
		logger.Fatal().Err(err).Str("script", name).Msg("start script")
	}
	defer sc.Close()

	opts := server.Options{
		Board:           board,
		Registry:        reg,
		Logger:          logger.With().Str("component", "server").Logger(),
		ResponseTimeout: cfg.ResponseTimeout,
	}
	if cfg.ResponseTimeout > 0 {
		opts.Fallback = client.NewBankClient(game.NewBoard(seed), reg, seed+1, logger)
	}
	if cfg.JournalDSN != "" {
		j, err := journal.Open(cfg.JournalDSN, logger.With().Str("component", "journal").Logger())
		if err != nil {
			logger.Fatal().Err(err).Str("dsn", cfg.JournalDSN).Msg("open journal")
		}
		defer j.Close()
		g, err := j.Start(ctx, name, seed)
		if err != nil {
			logger.Fatal().Err(err).Msg("journal game")
		}
		opts.Recorder = g
		logger.Info().Str("game", g.ID).Msg("journal recording")
	}
	srv := server.New(opts)

	// Players are seated as their transports arrive; the game starts once
	// every player has a seat. Later transports pick up the current rule.
	seats := newLobby(cfg.Players, func() {
		logger.Info().Str("script", name).Int64("seed", seed).Strs("players", cfg.Players).Msg("game starting")
		srv.NewGame(sc)
	})
	seat := func(t transport.Transport) {
		srv.AddTransport(t)
		seats.seat(t.Users())
	}

	dir := transport.NewDirectory(logger)
	defer dir.Close()
	serverEnd, bankEnd := dir.Pair("BANK")
	client.NewSession(client.NewBankClient(game.NewBoard(seed), reg, seed, logger, "BANK"), bankEnd, seed, logger)
	seat(serverEnd)

	hub := ws.NewHub(cfg.OriginAllowlist, logger.With().Str("component", "ws").Logger())
	hub.OnConnect = func(t *transport.Sequenced) { seat(t) }
	hub.OnDisconnect = func(t *transport.Sequenced) { srv.RemoveTransport(t) }
	defer hub.Close()

	rest := transport.NewRESTServer(cfg.JWTSecret, logger.With().Str("component", "rest").Logger())
	rest.OnConnect = func(p *transport.RESTPeer) { seat(p) }

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/ws", hub.ServeWS)
	r.Mount("/rest", rest)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		res := statusRes{Status: srv.Status().String(), Rule: srv.Current(), Websockets: hub.Count()}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	})

	hs := &http.Server{
		Addr:              cfg.Addr,
		Handler:           cors(cfg.OriginAllowlist, r),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdown)
	}()

	logger.Info().Str("addr", cfg.Addr).Msg("server listening")
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("listen")
	}
}

type statusRes struct {
	Status     string     `json:"status"`
	Rule       *rule.Rule `json:"rule,omitempty"`
	Websockets int        `json:"websockets"`
}

// loadScript reads a Lua file, or a bundled game when path names one.
func loadScript(path string) (name, src string, err error) {
	if path == "" {
		path = "highcard"
	}
	if !strings.HasSuffix(path, ".lua") {
		src, err = script.Game(path)
		return path, src, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSuffix(filepath.Base(path), ".lua"), string(b), nil
}

type lobby struct {
	mu      sync.Mutex
	waiting map[string]bool
	once    sync.Once
	start   func()
}

func newLobby(players []string, start func()) *lobby {
	l := &lobby{waiting: map[string]bool{}, start: start}
	for _, p := range players {
		l.waiting[p] = true
	}
	return l
}

func (l *lobby) seat(users []string) {
	l.mu.Lock()
	for _, u := range users {
		delete(l.waiting, u)
	}
	ready := len(l.waiting) == 0
	l.mu.Unlock()
	if ready {
		l.once.Do(l.start)
	}
}

func cors(allow []string, next http.Handler) http.Handler {
	allowSet := map[string]struct{}{}
	for _, a := range allow {
		if a != "" {
			allowSet[a] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if _, ok := allowSet[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

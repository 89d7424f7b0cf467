// Command player joins a running server as one headless AI player, over
// websockets or the polling REST binding.
package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"example.com/tabletop/internal/client"
	"example.com/tabletop/internal/config"
	"example.com/tabletop/internal/game"
	"example.com/tabletop/internal/plugins"
	"example.com/tabletop/internal/rule"
	"example.com/tabletop/internal/transport"
	"example.com/tabletop/internal/ws"
)

func main() {
	cfg := config.Load()

	server := flag.String("server", baseURL(cfg.Addr), "server base url")
	user := flag.String("user", "P1", "user to play as")
	useWS := flag.Bool("ws", false, "connect over websockets instead of polling")
	random := flag.Bool("random", false, "pick moves at random")
	rank := flag.String("score", "rank", "card variable the AI maximises")
	flag.Parse()

	logger := cfg.Logger().With().Str("user", *user).Logger()
	seed := cfg.Seed()

	reg := plugins.MustInstall(rule.NewRegistry(logger))
	var strategy client.Strategy = client.ScoreStrategy{Score: client.HighestVariable(*rank)}
	if *random {
		strategy = client.RandomStrategy{Rand: rand.New(rand.NewSource(seed))}
	}
	ai := client.NewAIClient(game.NewBoard(seed), reg, strategy, logger, *user)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		t   transport.Transport
		run func(context.Context) error
	)
	if *useWS {
		seq, err := ws.Dial(ctx, wsURL(*server)+"/ws", *user, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("server", *server).Msg("dial")
		}
		t, run = seq, seq.Run
	} else {
		rc := transport.NewRESTClient(*server+"/rest", *user, cfg.PollInterval, logger)
		if err := rc.Join(ctx); err != nil {
			logger.Fatal().Err(err).Str("server", *server).Msg("join")
		}
		t, run = rc, rc.Run
	}
	defer t.Close()

	sess := client.NewSession(ai, t, seed, logger)
	sess.OnBoard = func(b *game.Board) { b.Subscribe(announce(logger)) }

	logger.Info().Str("server", *server).Bool("ws", *useWS).Msg("player connected")
	if err := run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("connection lost")
	}
}

// announce logs the game's messages.
func announce(logger zerolog.Logger) func(game.Event) {
	return func(e game.Event) {
		if e.Kind == game.EventMessage {
			logger.Info().Str("message", e.Message).Interface("detail", e.Detail).Msg("game")
		}
	}
}

func baseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}

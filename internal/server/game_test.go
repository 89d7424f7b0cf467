package server

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/tabletop/internal/client"
	"example.com/tabletop/internal/game"
	"example.com/tabletop/internal/plugins"
	"example.com/tabletop/internal/rule"
	"example.com/tabletop/internal/script"
	"example.com/tabletop/internal/transport"
)

func cardIDs(l *game.Location) []int {
	var out []int
	for _, c := range l.Cards() {
		out = append(out, c.ID)
	}
	return out
}

// Plays the bundled high card game with a bank and two AI players over
// in-process transports and checks every replica ends identical.
func TestHighCardReplicasAgree(t *testing.T) {
	board := game.NewBoard(42)
	reg := plugins.MustInstall(rule.NewRegistry(zerolog.Nop()))
	bind := rule.NewBindings(board)
	for _, d := range plugins.Defaults() {
		bind.Bind(d.Name, d.Plugin)
	}
	src, err := script.Game("highcard")
	require.NoError(t, err)
	players := []string{"P1", "P2"}
	sc, err := script.NewLua(bind, src, players, zerolog.Nop())
	require.NoError(t, err)
	defer sc.Close()

	rec := &fakeRecorder{}
	s := New(Options{Board: board, Registry: reg, Logger: zerolog.Nop(), Recorder: rec})

	d := transport.NewDirectory(zerolog.Nop())
	defer d.Close()

	var sessions []*client.Session
	connect := func(c client.Client, users ...string) {
		serverEnd, clientEnd := d.Pair(users...)
		sessions = append(sessions, client.NewSession(c, clientEnd, 7, zerolog.Nop()))
		s.AddTransport(serverEnd)
	}
	connect(client.NewBankClient(game.NewBoard(0), reg, 3, zerolog.Nop(), "BANK"), "BANK")
	for _, p := range players {
		strategy := client.ScoreStrategy{Score: client.HighestVariable("rank")}
		connect(client.NewAIClient(game.NewBoard(0), reg, strategy, zerolog.Nop(), p), p)
	}
	connect(client.NewBaseClient(game.NewBoard(0), reg, zerolog.Nop()))
	d.Wait()

	s.NewGame(sc)
	d.Wait()

	require.Equal(t, Complete, s.Status())
	won := 0
	for _, p := range players {
		won += board.FindLocationByName(p + "-won").Len()
	}
	assert.Equal(t, 10, won)
	assert.Equal(t, 52-10, board.FindLocationByName("draw").Len())
	assert.NotEmpty(t, rec.batches)

	for _, sess := range sessions {
		sess.Do(func(c client.Client) {
			for _, l := range board.Locations() {
				replica := c.Board().FindLocationByID(l.ID)
				require.NotNil(t, replica)
				assert.Equal(t, cardIDs(l), cardIDs(replica), "location %s for %v", l.Name, c.Users())
			}
		})
	}
}

// Package journal keeps an append-only sqlite log of every broadcast batch,
// so a finished game can be audited or replayed onto a fresh board.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"example.com/tabletop/internal/game"
	"example.com/tabletop/internal/rule"
)

//go:embed sql/*.sql
var migrations embed.FS

var ErrUnknownGame = errors.New("unknown game")

type Journal struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open creates the database file if needed and applies pending migrations.
func Open(dsn string, logger zerolog.Logger) (*Journal, error) {
	db, err := openDB(dsn)
	if err != nil {
		return nil, err
	}
	j := &Journal{db: db, logger: logger}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func openDB(dsn string) (*sql.DB, error) {
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite3", dsn+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	return db, nil
}

// migrate applies sql/*.sql in name order, each once, tracked in _migrations.
func (j *Journal) migrate() error {
	if _, err := j.db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY);`); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}
	entries, err := fs.ReadDir(migrations, "sql")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var done int
		err := j.db.QueryRow(`SELECT 1 FROM _migrations WHERE name=?`, f).Scan(&done)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query _migrations: %w", err)
		}
		text, err := migrations.ReadFile("sql/" + f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}

		tx, err := j.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(text)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", f, err)
		}
		if _, err := tx.Exec(`INSERT INTO _migrations(name) VALUES (?)`, f); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", f, err)
		}
		j.logger.Info().Str("migration", f).Msg("applied")
	}
	return nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Game records the batches of one game.
type Game struct {
	ID string
	j  *Journal
}

// Start registers a new game and returns its recorder.
func (j *Journal) Start(ctx context.Context, script string, seed int64) (*Game, error) {
	id := uuid.NewString()
	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO games (id, script, seed) VALUES (?, ?, ?)`, id, script, seed,
	); err != nil {
		return nil, fmt.Errorf("start game: %w", err)
	}
	return &Game{ID: id, j: j}, nil
}

func (g *Game) Record(ctx context.Context, r *rule.Rule, b *rule.Batch) error {
	rj, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode rule %d: %w", r.ID, err)
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode batch %d: %w", b.RuleID, err)
	}
	_, err = g.j.db.ExecContext(ctx, `
        INSERT INTO batches (game_id, rule_id, rule_type, users, rule_json, batch_json)
        VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, b.RuleID, r.Type, strings.Join(b.Users(), ","), string(rj), string(bj),
	)
	if err != nil {
		return fmt.Errorf("record batch %d: %w", b.RuleID, err)
	}
	return nil
}

// Entry is one recorded batch.
type Entry struct {
	Rule      rule.Rule
	Batch     rule.Batch
	CreatedAt time.Time
}

// GameInfo describes a recorded game.
type GameInfo struct {
	ID        string
	Script    string
	Seed      int64
	StartedAt time.Time
}

func (j *Journal) Game(ctx context.Context, id string) (GameInfo, error) {
	var g GameInfo
	err := j.db.QueryRowContext(ctx,
		`SELECT id, script, seed, started_at FROM games WHERE id=?`, id,
	).Scan(&g.ID, &g.Script, &g.Seed, &g.StartedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return g, fmt.Errorf("%w: %s", ErrUnknownGame, id)
	}
	return g, err
}

// Batches lists a game's batches in rule order.
func (j *Journal) Batches(ctx context.Context, gameID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
        SELECT rule_json, batch_json, created_at
        FROM batches
        WHERE game_id=?
        ORDER BY rule_id ASC`, gameID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var rj, bj string
		var e Entry
		if err := rows.Scan(&rj, &bj, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(rj), &e.Rule); err != nil {
			return nil, fmt.Errorf("decode rule: %w", err)
		}
		if err := json.Unmarshal([]byte(bj), &e.Batch); err != nil {
			return nil, fmt.Errorf("decode batch: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Replay applies a game's batches to b in order and returns how many were
// applied. b should hold the board the game started from.
func (j *Journal) Replay(ctx context.Context, gameID string, b *game.Board, reg *rule.Registry) (int, error) {
	entries, err := j.Batches(ctx, gameID)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		for _, u := range e.Batch.Users() {
			for _, cmd := range e.Batch.Commands[u] {
				reg.Apply(b, cmd)
			}
		}
	}
	return len(entries), nil
}

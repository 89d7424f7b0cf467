// Package config reads server and player settings from the environment,
// after loading an optional .env file.
package config

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	Addr            string
	LogLevel        string
	LogPretty       bool
	OriginAllowlist []string
	GameScript      string
	ResponseTimeout time.Duration
	PollInterval    time.Duration
	JWTSecret       string
	JournalDSN      string
	GameSeed        int64
	Players         []string
}

// Load reads .env (a missing file is fine) and then the environment.
func Load() Config {
	_ = godotenv.Load()

	addr := getenv("ADDR", ":8080")
	port := addr[strings.LastIndex(addr, ":")+1:]
	return Config{
		Addr:            addr,
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogPretty:       getenvBool("LOG_PRETTY", false),
		OriginAllowlist: getenvList("ORIGIN_ALLOWLIST", "http://localhost:"+port+",http://127.0.0.1:"+port),
		GameScript:      os.Getenv("GAME_SCRIPT"),
		ResponseTimeout: getenvDuration("RESPONSE_TIMEOUT", 0),
		PollInterval:    getenvDuration("POLL_INTERVAL", 250*time.Millisecond),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		JournalDSN:      os.Getenv("JOURNAL_DSN"),
		GameSeed:        getenvInt64("GAME_SEED", 0),
		Players:         getenvList("PLAYERS", "P1,P2"),
	}
}

// Seed returns GameSeed, or a time based seed when it is zero.
func (c Config) Seed() int64 {
	if c.GameSeed != 0 {
		return c.GameSeed
	}
	return time.Now().UnixNano()
}

// Logger sets the global level from LogLevel and returns a logger writing
// JSON to stderr, or console output when LogPretty is set.
func (c Config) Logger() zerolog.Logger {
	if lvl, err := zerolog.ParseLevel(c.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	var w io.Writer = os.Stderr
	if c.LogPretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvBool(k string, d bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(k)); err == nil {
		return b
	}
	return d
}

func getenvInt64(k string, d int64) int64 {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return d
}

func getenvDuration(k string, d time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			return dur
		}
	}
	return d
}

func getenvList(k, d string) []string {
	var out []string
	for _, s := range strings.Split(getenv(k, d), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

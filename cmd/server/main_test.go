package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLobbyStartsOnce(t *testing.T) {
	started := 0
	l := newLobby([]string{"P1", "P2"}, func() { started++ })
	l.seat([]string{"BANK"})
	l.seat([]string{"P1"})
	assert.Equal(t, 0, started)
	l.seat([]string{"P2"})
	l.seat([]string{"P1"})
	assert.Equal(t, 1, started)
}

func TestLoadScript(t *testing.T) {
	name, src, err := loadScript("")
	require.NoError(t, err)
	assert.Equal(t, "highcard", name)
	assert.Contains(t, src, "function game")

	_, _, err = loadScript("nope")
	assert.Error(t, err)
	_, _, err = loadScript("/does/not/exist.lua")
	assert.Error(t, err)
}

func TestCORS(t *testing.T) {
	h := cors([]string{"http://ok"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://ok")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "http://ok", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://evil")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

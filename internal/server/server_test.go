package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ViniHorstFer/portfolio-sub000/internal/database"
	"github.com/ViniHorstFer/portfolio-sub000/internal/history"
	"github.com/ViniHorstFer/portfolio-sub000/internal/optimizer"
	optimizerhandlers "github.com/ViniHorstFer/portfolio-sub000/internal/optimizer/handlers"
	"github.com/ViniHorstFer/portfolio-sub000/internal/results"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	db, err := database.New(database.Config{
		Path: filepath.Join(dir, "history.db"),
		Name: "history-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := history.NewRepository(db.Conn(), zerolog.Nop())
	require.NoError(t, repo.InitSchema())

	store, err := results.NewStore(filepath.Join(dir, "results"), zerolog.Nop())
	require.NoError(t, err)

	handlers := optimizerhandlers.NewHandler(repo, store, optimizer.DefaultConfig(), 90, zerolog.Nop())
	return New(Config{
		Log:               zerolog.Nop(),
		Port:              0,
		DevMode:           true,
		OptimizerHandlers: handlers,
	})
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestOptimizerRoutesMountedUnderAPI(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/optimizer/funds", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Bare path without the /api prefix is not served.
	req = httptest.NewRequest("GET", "/optimizer/funds", nil)
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

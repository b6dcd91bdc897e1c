package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-inventory-sync/internal/config"
	"github.com/tbourn/go-inventory-sync/internal/domain"
	"github.com/tbourn/go-inventory-sync/internal/repo"
	"github.com/tbourn/go-inventory-sync/internal/syncer"
)

// testEnv points the configuration at a temp database and the given remote.
func testEnv(t *testing.T, remoteURL string) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "invsync.db")
	t.Setenv("DB_PATH", dbPath)
	t.Setenv("REMOTE_BASE_URL", remoteURL)
	t.Setenv("REMOTE_RETRY_ATTEMPTS", "1")
	t.Setenv("PROBE_TIMEOUT", "500ms")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("OTEL_ENABLED", "false")
	return dbPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--env-file", ""))
	err := root.Execute()
	return out.String(), err
}

func seed(t *testing.T, path string, ops ...domain.Operation) {
	t.Helper()
	s, err := openStore(path)
	require.NoError(t, err)
	defer s.Close()
	for _, op := range ops {
		_, err := s.Enqueue(context.Background(), op)
		require.NoError(t, err)
	}
}

func TestRootCmd_Tree(t *testing.T) {
	root := NewRootCmd("1.2.3")
	assert.Equal(t, "1.2.3", root.Version)
	assert.NotNil(t, root.PersistentFlags().Lookup("env-file"))

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "sync", "status", "purge"} {
		assert.True(t, names[want], "missing command %q", want)
	}

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("shutdown-timeout"))
	purge, _, err := root.Find([]string{"purge"})
	require.NoError(t, err)
	assert.NotNil(t, purge.Flags().Lookup("older-than"))
}

func TestStatusCommand_ReportsQueue(t *testing.T) {
	dbPath := testEnv(t, "http://127.0.0.1:1")
	seed(t, dbPath,
		domain.CreateItem{LocalID: "temp_1", Input: domain.ItemInput{Name: "bolt", Quantity: 3}},
		domain.DeleteBox{ID: "9"},
	)

	out, err := run(t, "status")
	require.NoError(t, err)

	var rep struct {
		DBPath string          `json:"db_path"`
		Queue  repo.QueueStats `json:"queue"`
		Failed []any           `json:"failed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, dbPath, rep.DBPath)
	assert.EqualValues(t, 2, rep.Queue.Pending)
	assert.NotNil(t, rep.Queue.OldestPending)
	assert.NotNil(t, rep.Failed)
	assert.Empty(t, rep.Failed)
}

func TestSyncCommand_OfflineFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	testEnv(t, url)

	out, err := run(t, "sync", "--timeout", "5s")
	require.Error(t, err)
	assert.ErrorIs(t, err, syncer.ErrOffline)
	assert.Contains(t, out, `"online"`)
}

func TestSyncCommand_DrainsQueue(t *testing.T) {
	var deletes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/health":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodDelete && r.URL.Path == "/boxes/9":
			deletes++
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	dbPath := testEnv(t, srv.URL)
	seed(t, dbPath, domain.DeleteBox{ID: "9"})

	_, err := run(t, "sync", "--timeout", "10s")
	require.NoError(t, err)
	assert.Equal(t, 1, deletes)

	s, err := openStore(dbPath)
	require.NoError(t, err)
	defer s.Close()
	qs, err := s.QueueStats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, qs.Pending)
}

func TestPurge_RemovesCompletedOperations(t *testing.T) {
	s, err := openStore(filepath.Join(t.TempDir(), "p.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	done, err := s.Enqueue(ctx, domain.DeleteItem{ID: "1"})
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, domain.DeleteItem{ID: "2"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, done, domain.StatusPatch{Status: domain.OpCompleted}))

	// A negative age puts the cutoff in the future so every completed row qualifies.
	res, err := purge(ctx, s, -time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.CompletedOperations)

	qs, err := s.QueueStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, qs.Pending)
	assert.EqualValues(t, 0, qs.Completed)
}

func TestRequireStore(t *testing.T) {
	a := &App{Cfg: config.Config{DBPath: "/nope/invsync.db"}}
	err := a.requireStore()
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "/nope/invsync.db")
}

func TestBootstrap_WithoutStoreRunsOnlineOnly(t *testing.T) {
	testEnv(t, "http://127.0.0.1:1")
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
	cfg, err := config.Load()
	require.NoError(t, err)

	app, err := Bootstrap(context.Background(), cfg, "test")
	require.NoError(t, err)
	assert.Nil(t, app.Store)
	assert.NotNil(t, app.Facade)
	assert.ErrorIs(t, app.requireStore(), repo.ErrStoreUnavailable)
	require.NoError(t, app.Close(context.Background()))
}

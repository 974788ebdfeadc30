package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/fileroot/internal/api"
	"github.com/fruitsalade/fileroot/internal/events"
	"github.com/fruitsalade/fileroot/internal/storage/local"
	"github.com/fruitsalade/fileroot/pkg/protocol"
	"github.com/fruitsalade/fileroot/pkg/retry"
)

var fastRetry = retry.Config{
	MaxAttempts: 3,
	InitialWait: time.Millisecond,
	MaxWait:     time.Millisecond,
	Multiplier:  1,
}

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return New(Config{BaseURL: ts.URL + "/", RetryConfig: fastRetry})
}

// liveServer runs the real API over a temporary data directory.
func liveServer(t *testing.T, broadcaster *events.Broadcaster) (*Client, string) {
	t.Helper()
	backend, err := local.New(local.Config{RootPath: t.TempDir()})
	require.NoError(t, err)
	srv := api.NewServer(backend, api.Options{Root: backend.Root(), Broadcaster: broadcaster})
	return testClient(t, srv.Handler()), backend.Root()
}

func TestClient_AgainstServer(t *testing.T) {
	c, root := liveServer(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Mkdir(ctx, "docs"))
	require.NoError(t, c.Upload(ctx, "docs/note.txt", strings.NewReader("hello"), 5))

	files, err := c.List(ctx, "docs")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "note.txt", files[0].Name)
	assert.EqualValues(t, 5, files[0].Size)

	dl, err := c.Download(ctx, "docs/note.txt", false)
	require.NoError(t, err)
	body, err := io.ReadAll(dl)
	require.NoError(t, err)
	require.NoError(t, dl.Close())
	assert.Equal(t, "hello", string(body))
	assert.EqualValues(t, 5, dl.Size)
	assert.Equal(t, "text/plain", dl.ContentType)

	require.NoError(t, c.Copy(ctx, "docs", "backup"))
	require.NoError(t, c.Move(ctx, "backup/note.txt", "moved.txt"))
	require.NoError(t, c.Remove(ctx, "moved.txt"))
	require.NoError(t, c.Rmdir(ctx, "backup"))

	top, err := c.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "docs", top[0].Name)
	assert.True(t, top[0].IsDir)
	assert.Nil(t, top[0].Mime)

	_, err = os.Stat(filepath.Join(root, "docs", "note.txt"))
	assert.NoError(t, err)

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.True(t, c.IsOnline())
}

func TestClient_APIErrors(t *testing.T) {
	c, _ := liveServer(t, nil)
	ctx := context.Background()

	err := c.Remove(ctx, "missing.txt")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	ae, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "File not found", ae.Message)

	require.NoError(t, c.Mkdir(ctx, "d"))
	err = c.Mkdir(ctx, "d")
	ae, ok = AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, ae.StatusCode)
	assert.Equal(t, "Directory already exists", ae.Message)

	_, err = c.List(ctx, "../outside")
	ae, ok = AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, ae.StatusCode)

	_, err = c.Download(ctx, "d", true)
	assert.True(t, IsNotFound(err))
}

func TestClient_RetriesIdempotentOnServerError(t *testing.T) {
	var attempts atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(protocol.ListResponse{
			Response: protocol.Response{Success: true},
			Files:    []protocol.FileInfo{{Name: "a"}},
		})
	}))

	files, err := c.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.EqualValues(t, 3, attempts.Load())
}

func TestClient_ClientErrorsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(protocol.Response{Message: "Directory not found"})
	}))

	err := c.Rmdir(context.Background(), "gone")
	assert.True(t, IsNotFound(err))
	assert.EqualValues(t, 1, attempts.Load())
}

func TestClient_MutationsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	ctx := context.Background()

	assert.Error(t, c.Move(ctx, "a", "b"))
	assert.Error(t, c.Copy(ctx, "a", "b"))
	assert.Error(t, c.Upload(ctx, "a", strings.NewReader("x"), 1))
	assert.EqualValues(t, 3, attempts.Load())
}

func TestClient_RequestShape(t *testing.T) {
	var got *http.Request
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(protocol.Response{Success: true})
	}))

	require.NoError(t, c.Move(context.Background(), "dir/a b.txt", "dir/c&d.txt"))
	require.NotNil(t, got)
	assert.Equal(t, http.MethodPut, got.Method)
	assert.Equal(t, "/api/v1/mv", got.URL.Path)
	assert.Equal(t, "dir/a b.txt", got.URL.Query().Get("from"))
	assert.Equal(t, "dir/c&d.txt", got.URL.Query().Get("to"))
}

func TestClient_OfflineTracking(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := New(Config{BaseURL: url, RetryConfig: retry.Config{MaxAttempts: 1}})
	_, err := c.List(context.Background(), "")
	require.Error(t, err)
	assert.True(t, retry.IsRetryable(err))
	assert.False(t, c.IsOnline())
}

func TestClient_Watch(t *testing.T) {
	broadcaster := events.NewBroadcaster()
	c, _ := liveServer(t, broadcaster)
	t.Cleanup(broadcaster.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan protocol.Event, 4)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, func(e protocol.Event) { received <- e })
	}()

	require.Eventually(t, func() bool { return broadcaster.Count() == 1 },
		2*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Mkdir(ctx, "watched"))

	select {
	case e := <-received:
		assert.Equal(t, protocol.EventMkdir, e.Type)
		assert.Equal(t, "/watched", e.Path)
	case <-ctx.Done():
		t.Fatal("no event received")
	}

	broadcaster.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("watch did not end after the stream closed")
	}
}

func TestClient_HealthDegraded(t *testing.T) {
	var attempts atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(protocol.HealthResponse{Status: "degraded"})
	}))

	h, err := c.Health(context.Background())
	require.Error(t, err)
	ae, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, ae.StatusCode)
	assert.Equal(t, "degraded", ae.Message)
	require.NotNil(t, h)
	assert.Equal(t, "degraded", h.Status)
	assert.EqualValues(t, fastRetry.MaxAttempts, attempts.Load())
}

func TestClient_HealthRecovers(t *testing.T) {
	var attempts atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(protocol.HealthResponse{Status: "degraded"})
			return
		}
		json.NewEncoder(w).Encode(protocol.HealthResponse{Status: "ok", DataDirTotal: 10, DataDirFree: 4})
	}))

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.EqualValues(t, 4, h.DataDirFree)
}

package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// newTestMirror creates a Mirror pointed at a test server.
func newTestMirror(t *testing.T, handler http.Handler, prefix string) *Mirror {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	mirror, err := New(client, Config{Bucket: "test-bucket", Prefix: prefix})
	require.NoError(t, err)
	return mirror
}

func TestMirrorSave(t *testing.T) {
	t.Parallel()

	data := []byte(`[{"round": 1}]`)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, "snapshots/lotto_history.json", r.URL.Query().Get("name"))
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), string(data))

		fmt.Fprintln(w, `{ "name": "snapshots/lotto_history.json" }`)
	})

	mirror := newTestMirror(t, handler, "/snapshots/")
	require.NoError(t, mirror.Save(context.Background(), "lotto_history.json", data))
	require.Equal(t, "gs://test-bucket/snapshots/lotto_history.json", mirror.URI("lotto_history.json"))
}

func TestMirrorSkipsUnchangedPayload(t *testing.T) {
	t.Parallel()

	var uploads atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploads.Add(1)
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), `"sha256"`)
		fmt.Fprintf(w, `{ "name": %q }`+"\n", r.URL.Query().Get("name"))
	})

	mirror := newTestMirror(t, handler, "")
	ctx := context.Background()
	require.NoError(t, mirror.Save(ctx, "stores.json", []byte("[]")))
	require.NoError(t, mirror.Save(ctx, "stores.json", []byte("[]")))
	require.Equal(t, int32(1), uploads.Load())

	require.NoError(t, mirror.Save(ctx, "retired_stores.json", []byte("[]")))
	require.NoError(t, mirror.Save(ctx, "stores.json", []byte(`[{"name":"A"}]`)))
	require.Equal(t, int32(3), uploads.Load())
}

func TestMirrorSaveError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	mirror := newTestMirror(t, handler, "")
	err := mirror.Save(context.Background(), "stores.json", []byte("[]"))
	require.ErrorContains(t, err, "gs://test-bucket/stores.json")
	require.Error(t, mirror.Save(context.Background(), " ", []byte("[]")))
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()
	_, err = New(client, Config{})
	require.Error(t, err)

	m, err := New(client, Config{Bucket: "b"})
	require.NoError(t, err)
	require.Equal(t, "stores.json", m.ObjectName("stores.json"))
}

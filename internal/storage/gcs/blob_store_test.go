package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBlobStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), Config{Endpoint: server.URL})
	require.NoError(t, err)

	store, err := New(client, Config{Bucket: "test-bucket"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBlobStorePutObject(t *testing.T) {
	t.Parallel()

	const objectName = "harvest/run-1/products.csv"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, objectName, r.URL.Query().Get("name"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "title,description")
		assert.Contains(t, string(body), "text/csv")
		assert.Contains(t, string(body), `"run-id":"run-1"`)
		assert.Contains(t, string(body), `"archived-by":"harvester"`)

		fmt.Fprintln(w, `{"name": "`+objectName+`", "bucket": "test-bucket"}`)
	})

	store := newTestBlobStore(t, handler)
	uri, err := store.PutObject(context.Background(), "/"+objectName, "text/csv", strings.NewReader("title,description\n"))
	require.NoError(t, err)
	assert.Equal(t, "gs://test-bucket/"+objectName, uri)
}

func TestBlobStorePutObjectServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	store := newTestBlobStore(t, handler)
	_, err := store.PutObject(context.Background(), "harvest/run-1/links.csv", "text/csv", strings.NewReader("Link\n"))
	require.Error(t, err)
}

func TestBlobStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	store := newTestBlobStore(t, http.NotFoundHandler())
	_, err = store.PutObject(context.Background(), " ", "", strings.NewReader(""))
	require.Error(t, err)

	client, err := NewClient(context.Background(), Config{Endpoint: "http://127.0.0.1:1"})
	require.NoError(t, err)
	_, err = New(client, Config{})
	require.Error(t, err)
	_ = client.Close()
}

func TestRunIDOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0190-abc", runIDOf("runs/0190-abc/links.csv"))
	assert.Equal(t, "r", runIDOf("a/b/r/products.csv"))
	assert.Empty(t, runIDOf("links.csv"))
	assert.Empty(t, runIDOf("r/links.csv"))
}

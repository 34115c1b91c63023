package cluster

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteFileSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/delete", r.URL.Path)
		assert.Equal(t, "movie-0001.mp4", r.URL.Query().Get("name"))
		assert.Equal(t, "hunter2", r.URL.Query().Get("secret"))
		io.WriteString(w, "deleted\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "hunter2")
	out := c.DeleteFile(context.Background(), "movie-0001.mp4")

	assert.True(t, out.OK())
	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, "deleted", out.Response)
	assert.Empty(t, out.Err)
	assert.False(t, out.Timestamp.IsZero())
}

func TestDeleteFileServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no live replica", http.StatusInternalServerError)
	}))
	defer srv.Close()

	out := NewClient(srv.URL, "s").DeleteFile(context.Background(), "f")
	assert.False(t, out.OK())
	assert.Equal(t, http.StatusInternalServerError, out.Status)
	assert.Equal(t, "no live replica", out.Response)
}

func TestDeleteFileTransportError(t *testing.T) {
	// Point at a closed server so the request fails at the transport level.
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	out := NewClient(srv.URL, "s").DeleteFile(context.Background(), "f")
	assert.Equal(t, -1, out.Status)
	assert.NotEmpty(t, out.Err)
	assert.Empty(t, out.Response)
}

func TestStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"total_files": 42, "active_nodes": 3}`)
	}))
	defer srv.Close()

	stats, err := NewClient(srv.URL, "s").Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, stats.TotalFiles)
	assert.Equal(t, 3, stats.ActiveNodes)
}

func TestStatsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewClient(srv.URL, "s").Stats(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreachable), "expected ErrUnreachable, got %v", err)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	assert.NoError(t, NewClient(srv.URL, "s").Health(context.Background()))
}

func TestUpload(t *testing.T) {
	var gotName, gotSecret, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotSecret = r.FormValue("secret")
		f, hdr, err := r.FormFile("movie")
		require.NoError(t, err)
		defer f.Close()
		gotName = hdr.Filename
		body, _ := io.ReadAll(f)
		gotBody = string(body)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "admin888")
	err := c.Upload(context.Background(), "clip.mp4", strings.NewReader("fake video bytes"))
	require.NoError(t, err)
	assert.Equal(t, "clip.mp4", gotName)
	assert.Equal(t, "admin888", gotSecret)
	assert.Equal(t, "fake video bytes", gotBody)
}

func TestGetText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "mdfs_total_files 7\n")
	}))
	defer srv.Close()

	text, err := GetText(context.Background(), srv.URL+"/metrics")
	require.NoError(t, err)
	assert.Contains(t, text, "mdfs_total_files 7")
}

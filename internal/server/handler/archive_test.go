package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yifanzh/predmirror/internal/domain"
)

type mockBlobStore struct {
	infos   []domain.BlobInfo
	listErr error

	content string
	getErr  error

	exists  bool
	deleted []string
}

func (m *mockBlobStore) Get(_ context.Context, path string) (io.ReadCloser, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return io.NopCloser(strings.NewReader(m.content)), nil
}

func (m *mockBlobStore) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	return m.infos, m.listErr
}

func (m *mockBlobStore) Exists(_ context.Context, path string) (bool, error) {
	return m.exists, nil
}

func (m *mockBlobStore) Delete(_ context.Context, path string) error {
	m.deleted = append(m.deleted, path)
	return nil
}

func newArchiveHandler(store *mockBlobStore) *ArchiveHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewArchiveHandler(store, store, logger)
}

func TestListArchives(t *testing.T) {
	store := &mockBlobStore{infos: []domain.BlobInfo{
		{Path: "archive/trades/2026-05.jsonl", Size: 1024, LastModified: time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC)},
		{Path: "archive/trades/2026-06.jsonl", Size: 2048, LastModified: time.Date(2026, 7, 1, 3, 0, 0, 0, time.UTC)},
	}}
	h := newArchiveHandler(store)

	rec := httptest.NewRecorder()
	h.ListArchives(rec, httptest.NewRequest(http.MethodGet, "/api/archives?prefix=archive/trades/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Prefix   string `json:"prefix"`
		Archives []struct {
			Path string `json:"path"`
			Size int64  `json:"size"`
		} `json:"archives"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "archive/trades/", resp.Prefix)
	require.Len(t, resp.Archives, 2)
	assert.Equal(t, "archive/trades/2026-05.jsonl", resp.Archives[0].Path)
	assert.Equal(t, int64(1024), resp.Archives[0].Size)
}

func TestDownloadArchive(t *testing.T) {
	store := &mockBlobStore{content: `{"market_id":1}` + "\n"}
	h := newArchiveHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/archives/archive/trades/2026-05.jsonl", nil)
	req.SetPathValue("path", "archive/trades/2026-05.jsonl")
	rec := httptest.NewRecorder()
	h.DownloadArchive(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Equal(t, store.content, rec.Body.String())
}

func TestDownloadArchiveNotFound(t *testing.T) {
	store := &mockBlobStore{getErr: domain.ErrNotFound}
	h := newArchiveHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/archives/archive/trades/1999-01.jsonl", nil)
	req.SetPathValue("path", "archive/trades/1999-01.jsonl")
	rec := httptest.NewRecorder()
	h.DownloadArchive(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArchivePathValidation(t *testing.T) {
	h := newArchiveHandler(&mockBlobStore{})

	for _, path := range []string{"etc/passwd", "archive/../secrets", ""} {
		req := httptest.NewRequest(http.MethodGet, "/api/archives/x", nil)
		req.SetPathValue("path", path)
		rec := httptest.NewRecorder()
		h.DownloadArchive(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "path %q", path)
	}
}

func TestDeleteArchive(t *testing.T) {
	store := &mockBlobStore{exists: true}
	h := newArchiveHandler(store)

	req := httptest.NewRequest(http.MethodDelete, "/api/archives/archive/trades/2026-05.jsonl", nil)
	req.SetPathValue("path", "archive/trades/2026-05.jsonl")
	rec := httptest.NewRecorder()
	h.DeleteArchive(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"archive/trades/2026-05.jsonl"}, store.deleted)
}

func TestDeleteArchiveMissing(t *testing.T) {
	store := &mockBlobStore{exists: false}
	h := newArchiveHandler(store)

	req := httptest.NewRequest(http.MethodDelete, "/api/archives/archive/trades/2026-05.jsonl", nil)
	req.SetPathValue("path", "archive/trades/2026-05.jsonl")
	rec := httptest.NewRecorder()
	h.DeleteArchive(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, store.deleted)
}

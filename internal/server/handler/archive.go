package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yifanzh/predmirror/internal/domain"
)

// ArchiveHandler serves the cold-storage archive: rows older than the
// retention window are only available here, as monthly JSONL objects.
type ArchiveHandler struct {
	blobs   domain.BlobReader
	deleter domain.BlobDeleter
	logger  *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler over the given blob backend.
func NewArchiveHandler(blobs domain.BlobReader, deleter domain.BlobDeleter, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		blobs:   blobs,
		deleter: deleter,
		logger:  logger,
	}
}

// ListArchives lists archived objects under a prefix.
// GET /api/archives?prefix=archive/trades/
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = "archive/"
	}

	infos, err := h.blobs.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archives failed",
			slog.String("prefix", prefix),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	items := make([]map[string]any, 0, len(infos))
	for _, info := range infos {
		items = append(items, map[string]any{
			"path":          info.Path,
			"size":          info.Size,
			"last_modified": info.LastModified.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"prefix":   prefix,
		"archives": items,
	})
}

// DownloadArchive streams one archived object.
// GET /api/archives/{path...}
func (h *ArchiveHandler) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	if !validArchivePath(path) {
		writeError(w, http.StatusBadRequest, "invalid archive path")
		return
	}

	body, err := h.blobs.Get(r.Context(), path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "archive not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: archive download failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read archive")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: archive stream interrupted",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteArchive removes one archived object. Rows already deleted from the
// hot store are gone for good after this, so the route sits behind the same
// auth as everything else and double-checks existence first.
// DELETE /api/archives/{path...}
func (h *ArchiveHandler) DeleteArchive(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	if !validArchivePath(path) {
		writeError(w, http.StatusBadRequest, "invalid archive path")
		return
	}

	exists, err := h.blobs.Exists(r.Context(), path)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: archive existence check failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to check archive")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "archive not found")
		return
	}

	if err := h.deleter.Delete(r.Context(), path); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: archive delete failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete archive")
		return
	}

	h.logger.InfoContext(r.Context(), "archive deleted", slog.String("path", path))
	writeJSON(w, http.StatusOK, map[string]any{"deleted": path})
}

// validArchivePath restricts object access to the archiver's own namespace.
func validArchivePath(path string) bool {
	return strings.HasPrefix(path, "archive/") && !strings.Contains(path, "..")
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"mislaka/internal/archive"
	"mislaka/internal/client"
	"mislaka/internal/extract"
	"mislaka/internal/importer"
	"mislaka/internal/storage"
)

const (
	defaultMaxUpload = 256 << 20
	uploadField      = "files"
)

type handler struct {
	runner    BatchRunner
	inspector Inspector
	clients   ClientLookup
	maxUpload int64
}

type errorResponse struct {
	Error string          `json:"error"`
	Batch *importer.Batch `json:"batch,omitempty"`
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// importBatch accepts a raw body (one XML document or a zip archive; ?name=
// names a single document) or multipart/form-data with one or more "files"
// parts.
func (h *handler) importBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	docs, status, err := h.readDocuments(w, r)
	if err != nil {
		logger.Warn().Err(err).Msg("rejecting upload")
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	batch, err := h.runner.Run(ctx, docs)
	if err != nil {
		logger.Error().Err(err).Int("documents", len(docs)).Msg("import failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Batch: batch})
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *handler) inspect(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		writeJSON(w, uploadErrorStatus(err), errorResponse{Error: fmt.Sprintf("read body: %v", err)})
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload.xml"
	}

	fs, err := h.inspector.Inspect(extract.Document{Name: name, Data: body})
	if err != nil {
		logger.Warn().Err(err).Str("file", name).Msg("inspect failed")
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, fs)
}

func (h *handler) getClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	row, err := h.clients.GetClient(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "client not found"})
		return
	}
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("id_number", id).Msg("client lookup failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "client lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, clientResponse{
		Client:    row.Record,
		RowHash:   row.RowHash,
		UpdatedAt: row.UpdatedAt.UTC(),
	})
}

type clientResponse struct {
	Client    client.Record `json:"client"`
	RowHash   string        `json:"rowHash"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func (h *handler) readDocuments(w http.ResponseWriter, r *http.Request) ([]extract.Document, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return h.readMultipart(r)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, uploadErrorStatus(err), fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return nil, http.StatusBadRequest, errors.New("empty body")
	}
	docs, err := archive.FromUpload(r.URL.Query().Get("name"), body)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	return docs, http.StatusOK, nil
}

func (h *handler) readMultipart(r *http.Request) ([]extract.Document, int, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, uploadErrorStatus(err), fmt.Errorf("parse multipart: %w", err)
	}
	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		return nil, http.StatusBadRequest, fmt.Errorf("no %q parts in form", uploadField)
	}

	var docs []extract.Document
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		got, err := archive.FromUpload(fh.Filename, data)
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("%s: %w", fh.Filename, err)
		}
		docs = append(docs, got...)
	}
	return docs, http.StatusOK, nil
}

func uploadErrorStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

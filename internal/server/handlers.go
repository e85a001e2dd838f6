package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/wortnest/internal/config"
	"github.com/hyperjump/wortnest/internal/embedding"
	"github.com/hyperjump/wortnest/internal/export"
	"github.com/hyperjump/wortnest/internal/models"
	"github.com/hyperjump/wortnest/internal/review"
	"github.com/hyperjump/wortnest/internal/storage"
	"github.com/hyperjump/wortnest/internal/vocab"
)

// maxImportBytes bounds the body of POST /api/v1/import.
const maxImportBytes = 8 << 20

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Stats          *models.Stats    `json:"stats"`
	Embedding      embedding.Status `json:"embedding"`
	DiskUsageBytes *int64           `json:"disk_usage_bytes,omitempty"`
	Config         *StatusConfig    `json:"config,omitempty"`
}

// StatusConfig is the configuration summary included in StatusResponse.
type StatusConfig struct {
	StorageDriver       string   `json:"storage_driver"`
	DatabasePath        string   `json:"database_path,omitempty"`
	BleveIndexPath      string   `json:"bleve_index_path,omitempty"`
	EmbeddingProvider   string   `json:"embedding_provider,omitempty"`
	EmbeddingDimensions int      `json:"embedding_dimensions,omitempty"`
	RelatedTopK         int      `json:"related_top_k"`
	Inboxes             []string `json:"inboxes,omitempty"`
}

// RelatedResponse is the body of GET /api/v1/items/{id}/related. While
// embeddings are disabled Available is false and clients hide the section.
type RelatedResponse struct {
	Available bool             `json:"available"`
	Reason    string           `json:"reason,omitempty"`
	Related   []models.Related `json:"related"`
}

// CheckRequest is the body of POST /api/v1/review/{id}/check.
type CheckRequest struct {
	Mode   review.Mode `json:"mode"`
	Answer string      `json:"answer"`
}

type importRequest struct {
	Text string          `json:"text"`
	Type models.ItemType `json:"type"`
}

type inboxRequest struct {
	Path   string `json:"path"`
	Import *bool  `json:"import,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := BuildStatus(r.Context(), s.vocab, s.config, s.inbox)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// BuildStatus assembles a StatusResponse. cfg and inbox may be nil.
func BuildStatus(ctx context.Context, svc *vocab.Service, cfg *config.Config, inbox InboxService) (*StatusResponse, error) {
	stats, err := svc.Status(ctx)
	if err != nil {
		return nil, err
	}
	resp := &StatusResponse{Stats: stats, Embedding: svc.Capability()}
	if cfg == nil {
		return resp, nil
	}
	st := cfg.Storage
	resp.Config = &StatusConfig{
		StorageDriver:       st.Driver,
		DatabasePath:        st.DatabasePath,
		BleveIndexPath:      st.BleveIndexPath,
		EmbeddingProvider:   cfg.Embedding.Provider,
		EmbeddingDimensions: cfg.Embedding.Dimensions,
		RelatedTopK:         cfg.Related.TopK,
	}
	if inbox != nil {
		resp.Config.Inboxes = inbox.Inboxes()
	}
	if st.Driver != storage.DriverPostgres {
		if n, err := storage.DiskUsageBytes(st.DatabasePath, st.BleveIndexPath); err == nil {
			resp.DiskUsageBytes = &n
		}
	}
	return resp, nil
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := &models.SearchQuery{
		Query: q.Get("q"),
		Type:  models.ItemType(q.Get("type")),
		Tag:   q.Get("tag"),
	}
	var err error
	if query.Limit, err = intParam(q.Get("limit")); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if query.Offset, err = intParam(q.Get("offset")); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	if v := q.Get("fuzzy"); v != "" {
		if query.FuzzyEnabled, err = strconv.ParseBool(v); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid fuzzy flag")
			return
		}
	}
	resp, err := s.vocab.Search(r.Context(), query)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var in models.ItemInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := s.vocab.Add(r.Context(), &in)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, item)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}
	item, err := s.vocab.Get(r.Context(), id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}
	var in models.ItemInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := s.vocab.Update(r.Context(), id, &in)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}
	if err := s.vocab.Delete(r.Context(), id); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}
	topK, err := intParam(r.URL.Query().Get("top_k"))
	if err != nil || topK < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid top_k")
		return
	}
	resp, err := BuildRelated(r.Context(), s.vocab, id, topK)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// BuildRelated wraps Service.Related so that disabled embeddings produce an
// empty, unavailable response instead of an error.
func BuildRelated(ctx context.Context, svc *vocab.Service, id int64, topK int) (*RelatedResponse, error) {
	related, err := svc.Related(ctx, id, topK)
	if errors.Is(err, vocab.ErrRelatedUnavailable) {
		return &RelatedResponse{Reason: svc.Capability().Reason, Related: []models.Related{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return &RelatedResponse{Available: true, Related: related}, nil
}

func (s *Server) handleMarkReviewed(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}
	if err := s.vocab.MarkReviewed(r.Context(), id); err != nil {
		s.respondErr(w, err)
		return
	}
	item, err := s.vocab.Get(r.Context(), id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}

// handleImport accepts either a JSON body {"text": ..., "type": ...} or plain
// text with one "Deutsch | English" entry per line and an optional ?type=.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		s.respondError(w, http.StatusRequestEntityTooLarge, "import body too large")
		return
	}
	req := importRequest{Text: string(body), Type: models.ItemType(r.URL.Query().Get("type"))}
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" {
		if err := json.Unmarshal(body, &req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	typ, err := models.ParseItemType(string(req.Type))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.respondError(w, http.StatusBadRequest, "nothing to import")
		return
	}
	report := s.vocab.ImportText(r.Context(), req.Text, typ)
	s.logger.Info("import finished",
		zap.String("batch_id", report.ID),
		zap.Int("imported", report.Count(models.OutcomeImported)),
		zap.Int("failed", report.Count(models.OutcomeFailed)))
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	report, err := s.vocab.Backfill(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleReviewNext(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, err := review.ParseMode(q.Get("mode"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	drill, err := s.vocab.NextDrill(r.Context(), q.Get("tag"), mode)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, drill)
}

// handleReviewCheck grades an answer. A correct answer counts as a review.
func (s *Server) handleReviewCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	grade, err := s.vocab.Answer(r.Context(), id, req.Mode, req.Answer)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, grade)
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.vocab.Tags(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string][]string{"tags": tags})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	// Buffered so a failure can still be reported as JSON.
	var buf bytes.Buffer
	if err := s.vocab.Export(r.Context(), &buf, format); err != nil {
		s.respondErr(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleInboxList(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		s.respondError(w, http.StatusNotImplemented, "inbox watching not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string][]string{"inboxes": s.inbox.Inboxes()})
}

func (s *Server) handleInboxAdd(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		s.respondError(w, http.StatusNotImplemented, "inbox watching not enabled")
		return
	}
	var req inboxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	switch {
	case os.IsNotExist(err):
		s.respondError(w, http.StatusNotFound, "directory not found")
		return
	case err != nil:
		s.respondErr(w, err)
		return
	case !info.IsDir():
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	importExisting := req.Import == nil || *req.Import
	if err := s.inbox.AddInbox(abs, importExisting); err != nil {
		s.respondErr(w, err)
		return
	}
	s.persistInboxes()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleInboxRemove(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		s.respondError(w, http.StatusNotImplemented, "inbox watching not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var req inboxRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			path = req.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.inbox.RemoveInbox(abs); err != nil {
		s.respondErr(w, err)
		return
	}
	s.persistInboxes()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistInboxes writes the current inbox list back to the config file.
func (s *Server) persistInboxes() {
	if s.configPath == "" || s.config == nil {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Import.Inbox = s.inbox.Inboxes()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist inbox config", zap.String("path", s.configPath), zap.Error(err))
	}
}

func (s *Server) itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid item id")
		return 0, false
	}
	return id, true
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, review.ErrNoItems):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, vocab.ErrEmbeddingsUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/wortnest/internal/export"
	"github.com/hyperjump/wortnest/internal/models"
	"github.com/hyperjump/wortnest/internal/review"
	"github.com/hyperjump/wortnest/internal/server"
)

// backend is what the one-shot commands need. localBackend works on the
// database directly; apiClient talks to a running server, which holds the
// keyword index lock.
type backend interface {
	Add(ctx context.Context, in *models.ItemInput) (*models.Item, error)
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error)
	Related(ctx context.Context, id int64, topK int) (*server.RelatedResponse, error)
	ImportText(ctx context.Context, text string, typ models.ItemType) (*models.BatchReport, error)
	Backfill(ctx context.Context) (*models.BatchReport, error)
	Status(ctx context.Context) (*server.StatusResponse, error)
	NextDrill(ctx context.Context, tag string, mode review.Mode) (*review.Drill, error)
	Answer(ctx context.Context, id int64, mode review.Mode, answer string) (review.Grade, error)
	Export(ctx context.Context, w io.Writer, f export.Format) error
}

type localBackend struct {
	c *Components
}

func (b localBackend) Add(ctx context.Context, in *models.ItemInput) (*models.Item, error) {
	return b.c.Vocab.Add(ctx, in)
}

func (b localBackend) Delete(ctx context.Context, id int64) error {
	return b.c.Vocab.Delete(ctx, id)
}

func (b localBackend) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	return b.c.Vocab.Search(ctx, q)
}

func (b localBackend) Related(ctx context.Context, id int64, topK int) (*server.RelatedResponse, error) {
	return server.BuildRelated(ctx, b.c.Vocab, id, topK)
}

func (b localBackend) ImportText(ctx context.Context, text string, typ models.ItemType) (*models.BatchReport, error) {
	return b.c.Vocab.ImportText(ctx, text, typ), nil
}

func (b localBackend) Backfill(ctx context.Context) (*models.BatchReport, error) {
	return b.c.Vocab.Backfill(ctx)
}

func (b localBackend) Status(ctx context.Context) (*server.StatusResponse, error) {
	return server.BuildStatus(ctx, b.c.Vocab, b.c.Config, nil)
}

func (b localBackend) NextDrill(ctx context.Context, tag string, mode review.Mode) (*review.Drill, error) {
	return b.c.Vocab.NextDrill(ctx, tag, mode)
}

func (b localBackend) Answer(ctx context.Context, id int64, mode review.Mode, answer string) (review.Grade, error) {
	return b.c.Vocab.Answer(ctx, id, mode, answer)
}

func (b localBackend) Export(ctx context.Context, w io.Writer, f export.Format) error {
	return b.c.Vocab.Export(ctx, w, f)
}

// apiClient is the HTTP client for a running wortnest server.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

// do sends a request and decodes a JSON answer into out (unless out is nil).
func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	resp, err := c.send(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) send(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
	}
	return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

func (c *apiClient) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json", out)
}

func itemPath(id int64) string {
	return "/api/v1/items/" + strconv.FormatInt(id, 10)
}

func (c *apiClient) Add(ctx context.Context, in *models.ItemInput) (*models.Item, error) {
	var item models.Item
	if err := c.postJSON(ctx, "/api/v1/items", in, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *apiClient) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, itemPath(id), nil, "", nil)
}

func (c *apiClient) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	v := url.Values{}
	v.Set("q", q.Query)
	if q.Type != "" {
		v.Set("type", string(q.Type))
	}
	if q.Tag != "" {
		v.Set("tag", q.Tag)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.FuzzyEnabled {
		v.Set("fuzzy", "true")
	}
	var resp models.SearchResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/items?"+v.Encode(), nil, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) Related(ctx context.Context, id int64, topK int) (*server.RelatedResponse, error) {
	path := itemPath(id) + "/related"
	if topK > 0 {
		path += "?top_k=" + strconv.Itoa(topK)
	}
	var resp server.RelatedResponse
	if err := c.do(ctx, http.MethodGet, path, nil, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) ImportText(ctx context.Context, text string, typ models.ItemType) (*models.BatchReport, error) {
	path := "/api/v1/import"
	if typ != "" {
		path += "?type=" + url.QueryEscape(string(typ))
	}
	var report models.BatchReport
	if err := c.do(ctx, http.MethodPost, path, strings.NewReader(text), "text/plain; charset=utf-8", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *apiClient) Backfill(ctx context.Context) (*models.BatchReport, error) {
	var report models.BatchReport
	if err := c.do(ctx, http.MethodPost, "/api/v1/embeddings/backfill", nil, "", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *apiClient) Status(ctx context.Context) (*server.StatusResponse, error) {
	var st server.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, "", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *apiClient) NextDrill(ctx context.Context, tag string, mode review.Mode) (*review.Drill, error) {
	v := url.Values{}
	v.Set("mode", string(mode))
	if tag != "" {
		v.Set("tag", tag)
	}
	var d review.Drill
	if err := c.do(ctx, http.MethodGet, "/api/v1/review/next?"+v.Encode(), nil, "", &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *apiClient) Answer(ctx context.Context, id int64, mode review.Mode, answer string) (review.Grade, error) {
	var g review.Grade
	path := "/api/v1/review/" + strconv.FormatInt(id, 10) + "/check"
	err := c.postJSON(ctx, path, server.CheckRequest{Mode: mode, Answer: answer}, &g)
	return g, err
}

func (c *apiClient) Export(ctx context.Context, w io.Writer, f export.Format) error {
	resp, err := c.send(ctx, http.MethodGet, "/api/v1/export?format="+url.QueryEscape(string(f)), nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}

func (c *apiClient) Inboxes(ctx context.Context) ([]string, error) {
	var out struct {
		Inboxes []string `json:"inboxes"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/inbox", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Inboxes, nil
}

func (c *apiClient) AddInbox(ctx context.Context, dir string) error {
	return c.postJSON(ctx, "/api/v1/inbox", map[string]any{"path": dir, "import": true}, nil)
}

func (c *apiClient) RemoveInbox(ctx context.Context, dir string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/inbox?path="+url.QueryEscape(dir), nil, "", nil)
}

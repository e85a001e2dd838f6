package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/wortnest/internal/annotate"
	"github.com/hyperjump/wortnest/internal/embedding"
	"github.com/hyperjump/wortnest/internal/extract"
	"github.com/hyperjump/wortnest/internal/keyword"
	"github.com/hyperjump/wortnest/internal/models"
	"github.com/hyperjump/wortnest/internal/storage"
	"github.com/hyperjump/wortnest/internal/translate"
	"github.com/xuri/excelize/v2"
)

type failingLoader struct{ err error }

func (l failingLoader) Name() string              { return "failing" }
func (l failingLoader) CheckDependencies() error { return nil }
func (l failingLoader) Load(context.Context, string) (embedding.Embedder, error) {
	return nil, l.err
}

type fixture struct {
	idx   *Indexer
	store storage.Storage
	kw    keyword.Index
	cap   *embedding.Capability
	dir   string
}

func newFixture(t *testing.T, loader embedding.Loader, opts ...IndexerOption) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "vocab.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	kw, err := keyword.NewMemoryBleveIndex()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kw.Close() })
	gen := embedding.NewGenerator("test-model", loader)
	t.Cleanup(func() { _ = gen.Close() })
	capability := embedding.CheckCapability(true, loader, "test-model", nil)
	annotator, err := annotate.NewRuleAnnotator()
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]IndexerOption{WithAnnotator(annotator)}, opts...)
	return &fixture{
		idx:   NewIndexer(store, kw, gen, capability, opts...),
		store: store,
		kw:    kw,
		cap:   capability,
		dir:   dir,
	}
}

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".TXT", []string{".txt"}, true},
		{".csv", []string{"csv"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
	}
	for _, tt := range tests {
		got := extensionAllowed(tt.ext, tt.allowed)
		if got != tt.want {
			t.Errorf("extensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

func TestIndexer_extensionAllowedDefaultsToExtractable(t *testing.T) {
	f := newFixture(t, embedding.NewMockLoader(8))
	if !f.idx.extensionAllowed(".xlsx") {
		t.Error("xlsx should be importable by default")
	}
	if f.idx.extensionAllowed(".exe") {
		t.Error("exe should not be importable")
	}
	g := newFixture(t, embedding.NewMockLoader(8), WithAllowedExtensions([]string{".txt"}))
	if g.idx.extensionAllowed(".xlsx") {
		t.Error("xlsx should be rejected when only txt is allowed")
	}
}

func TestParseLines(t *testing.T) {
	text := "Deutsch | Englisch | Tags\n" +
		"# a comment\n" +
		"das Haus | the house | Wohnen, Nomen\n" +
		"\n" +
		"laufen\tto run\tVerben;Bewegung\n" +
		"Guten Morgen\n" +
		" | orphan translation\n"
	got := ParseLines(text, "")
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3: %+v", len(got), got)
	}
	if got[0].Content != "das Haus" || got[0].Translation != "the house" {
		t.Errorf("first entry = %+v", got[0])
	}
	if !slices.Equal(got[0].Tags, []string{"Wohnen", "Nomen"}) {
		t.Errorf("first tags = %v", got[0].Tags)
	}
	if got[1].Content != "laufen" || got[1].Translation != "to run" || len(got[1].Tags) != 2 {
		t.Errorf("tab entry = %+v", got[1])
	}
	if got[2].Content != "Guten Morgen" || got[2].Translation != "" {
		t.Errorf("bare entry = %+v", got[2])
	}
}

func TestParseLines_firstRowNotHeader(t *testing.T) {
	got := ParseLines("Hund | dog\nKatze | cat", models.TypeWord)
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	for _, in := range got {
		if in.Type != models.TypeWord {
			t.Errorf("type = %q, want Word", in.Type)
		}
	}
}

func TestAddItem(t *testing.T) {
	f := newFixture(t, embedding.NewMockLoader(8), WithTranslator(translate.Static{"der Bahnhof": "the train station"}))
	ctx := context.Background()

	item, err := f.idx.AddItem(ctx, &models.ItemInput{Content: "  der   Bahnhof ", Tags: []string{"Reisen"}})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if item.ID == 0 {
		t.Fatal("expected an assigned id")
	}
	if item.Content != "der Bahnhof" {
		t.Errorf("content = %q", item.Content)
	}
	if item.Type != models.TypePhrase {
		t.Errorf("type = %q, want Phrase", item.Type)
	}
	if item.Translation != "the train station" {
		t.Errorf("translation = %q", item.Translation)
	}
	if len(item.Tags) == 0 || item.Tags[0] != "Reisen" {
		t.Errorf("user tags should come first: %v", item.Tags)
	}
	if len(item.Lemma) == 0 {
		t.Error("expected lemmas from the annotator")
	}

	stored, err := f.store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	v, ok := embedding.Decode(stored.Embedding)
	if !ok || len(v) != 8 {
		t.Fatalf("stored embedding decode = %v, %v", v, ok)
	}

	hits, err := f.kw.Search(ctx, "Bahnhof", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != item.ID {
		t.Errorf("keyword hits = %+v", hits)
	}
}

func TestAddItem_invalidInput(t *testing.T) {
	f := newFixture(t, embedding.NewMockLoader(8))
	_, err := f.idx.AddItem(context.Background(), &models.ItemInput{Content: "   "})
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	_, err = f.idx.AddItem(context.Background(), &models.ItemInput{Content: "Hund", Type: "Noun"})
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestAddItem_translationFailureKeepsItem(t *testing.T) {
	f := newFixture(t, embedding.NewMockLoader(8), WithTranslator(translate.Static{}))
	item, err := f.idx.AddItem(context.Background(), &models.ItemInput{Content: "Schmetterling"})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if item.Translation != "" {
		t.Errorf("translation = %q, want empty", item.Translation)
	}
}

func TestAddItem_permanentLoadFailureDisablesEmbeddings(t *testing.T) {
	f := newFixture(t, failingLoader{err: errors.New("model file missing")})
	ctx := context.Background()

	item, err := f.idx.AddItem(ctx, &models.ItemInput{Content: "Apfel"})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if item.HasEmbedding() {
		t.Error("item should be stored without an embedding")
	}
	if f.cap.Available() {
		t.Error("capability should be disabled after a model load failure")
	}

	report := f.idx.ImportBatch(ctx, "test", []models.ItemInput{{Content: "Birne"}})
	if n := report.EmbeddingCount(models.EmbeddingDisabled); n != 1 {
		t.Errorf("disabled embeddings = %d, want 1", n)
	}
}

func TestAddItem_withoutCapability(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "vocab.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	idx := NewIndexer(store, nil, nil, nil)
	item, err := idx.AddItem(context.Background(), &models.ItemInput{Content: "Kirsche", Translation: "cherry"})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if item.HasEmbedding() {
		t.Error("no embedding expected without a generator")
	}
}

func TestUpdateItem(t *testing.T) {
	f := newFixture(t, embedding.NewMockLoader(8))
	ctx := context.Background()
	item, err := f.idx.AddItem(ctx, &models.ItemInput{Content: "der Hund", Translation: "the dog"})
	if err != nil {
		t.Fatal(err)
	}
	oldEmbedding := item.Embedding

	t.Run("tags only keeps embedding", func(t *testing.T) {
		got, err := f.idx.UpdateItem(ctx, item.ID, &models.ItemInput{Content: "der Hund", Tags: []string{"Tiere"}})
		if err != nil {
			t.Fatal(err)
		}
		if got.Translation != "the dog" {
			t.Errorf("translation = %q, want kept", got.Translation)
		}
		if string(got.Embedding) != string(oldEmbedding) {
			t.Error("embedding should be unchanged")
		}
	})

	t.Run("content change re-embeds", func(t *testing.T) {
		got, err := f.idx.UpdateItem(ctx, item.ID, &models.ItemInput{Content: "die Katze", Translation: "the cat"})
		if err != nil {
			t.Fatal(err)
		}
		if string(got.Embedding) == string(oldEmbedding) {
			t.Error("embedding should change with content")
		}
		hits, err := f.kw.Search(ctx, "Katze", 10, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 1 || hits[0].ID != item.ID {
			t.Errorf("keyword hits = %+v", hits)
		}
	})

	t.Run("missing item", func(t *testing.T) {
		_, err := f.idx.UpdateItem(ctx, 9999, &models.ItemInput{Content: "x"})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestDeleteItem(t *testing.T) {
	f := newFixture(t, embedding.NewMockLoader(8))
	ctx := context.Background()
	item, err := f.idx.AddItem(ctx, &models.ItemInput{Content: "Zitrone"})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.idx.DeleteItem(ctx, item.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.GetItem(ctx, item.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetItem after delete: %v", err)
	}
	n, err := f.kw.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("keyword docs = %d, want 0", n)
	}
	if err := f.idx.DeleteItem(ctx, item.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestImportBatch(t *testing.T) {
	f := newFixture(t, embedding.NewMockLoader(8))
	ctx := context.Background()
	if _, err := f.idx.AddItem(ctx, &models.ItemInput{Content: "das Brot", Translation: "the bread", Tags: []string{"Essen"}}); err != nil {
		t.Fatal(err)
	}

	report := f.idx.ImportBatch(ctx, "test", []models.ItemInput{
		{Content: "die Milch", Translation: "the milk"},
		{Content: ""},
		{Content: "DAS  BROT", Tags: []string{"Essen"}},
		{Content: "das Brot", Tags: []string{"Frühstück"}},
		{Content: "die Milch"},
		{Content: "Käse", Type: "Cheese"},
	})
	if report.ID == "" {
		t.Error("report should carry a batch id")
	}
	want := []models.Outcome{
		models.OutcomeImported,
		models.OutcomeFailed,
		models.OutcomeSkipped,
		models.OutcomeUpdated,
		models.OutcomeSkipped,
		models.OutcomeFailed,
	}
	if len(report.Entries) != len(want) {
		t.Fatalf("entries = %d, want %d", len(report.Entries), len(want))
	}
	for i, w := range want {
		if report.Entries[i].Outcome != w {
			t.Errorf("entry %d outcome = %q, want %q (%s)", i, report.Entries[i].Outcome, w, report.Entries[i].Reason)
		}
	}
	if report.Entries[0].Embedding != models.EmbeddingGenerated {
		t.Errorf("embedding = %q, want generated", report.Entries[0].Embedding)
	}

	n, err := f.store.CountItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("items = %d, want 2", n)
	}
	bread, err := f.store.GetItem(ctx, report.Entries[3].ItemID)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(bread.Tags, "Frühstück") || !slices.Contains(bread.Tags, "Essen") {
		t.Errorf("merged tags = %v", bread.Tags)
	}
}

type listFailingStore struct {
	storage.Storage
}

func (listFailingStore) ListAllItems(context.Context) ([]*models.Item, error) {
	return nil, errors.New("database is locked")
}

func TestImportBatch_duplicateCheckFailureIsReported(t *testing.T) {
	f := newFixture(t, embedding.NewMockLoader(8))
	idx := NewIndexer(listFailingStore{f.store}, f.kw, nil, f.cap)

	report := idx.ImportBatch(context.Background(), "test", []models.ItemInput{{Content: "Apfel"}, {Content: "Birne"}})
	if n := report.Count(models.OutcomeImported); n != 2 {
		t.Errorf("imported = %d, want 2", n)
	}
	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], "database is locked") {
		t.Errorf("warnings = %q", report.Warnings)
	}

	clean := f.idx.ImportBatch(context.Background(), "test", []models.ItemInput{{Content: "Kirsche"}})
	if len(clean.Warnings) != 0 {
		t.Errorf("unexpected warnings = %q", clean.Warnings)
	}
}

func TestImportBatch_cancelledContext(t *testing.T) {
	f := newFixture(t, embedding.NewMockLoader(8))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := f.idx.ImportBatch(ctx, "test", []models.ItemInput{{Content: "Tee"}, {Content: "Kaffee"}})
	if n := report.Count(models.OutcomeFailed); n != 2 {
		t.Errorf("failed = %d, want 2", n)
	}
}

func TestImportText(t *testing.T) {
	f := newFixture(t, embedding.NewMockLoader(8))
	report := f.idx.ImportText(context.Background(), "Hund | dog\nIch habe Hunger. | I am hungry.", "")
	if n := report.Count(models.OutcomeImported); n != 2 {
		t.Fatalf("imported = %d, want 2", n)
	}
	items, err := f.store.ListAllItems(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if items[0].Type != models.TypeWord || items[1].Type != models.TypeSentence {
		t.Errorf("types = %q, %q", items[0].Type, items[1].Type)
	}
}

func TestImportFile_createAndSkipUnchanged(t *testing.T) {
	f := newFixture(t, embedding.NewMockLoader(8))
	ctx := context.Background()

	path := filepath.Join(f.dir, "woerter.txt")
	if err := os.WriteFile(path, []byte("Apfel | apple\nBirne | pear\n"), 0600); err != nil {
		t.Fatal(err)
	}
	report, err := f.idx.ImportFile(ctx, path)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if n := report.Count(models.OutcomeImported); n != 2 {
		t.Fatalf("imported = %d, want 2", n)
	}
	if report.Source != path {
		t.Errorf("source = %q, want %q", report.Source, path)
	}

	if _, err := f.idx.ImportFile(ctx, path); !errors.Is(err, ErrUnchanged) {
		t.Fatalf("second import err = %v, want ErrUnchanged", err)
	}

	if err := os.WriteFile(path, []byte("Apfel | apple\nBirne | pear\nPflaume | plum\n"), 0600); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	report, err = f.idx.ImportFile(ctx, path)
	if err != nil {
		t.Fatalf("ImportFile after change: %v", err)
	}
	if report.Count(models.OutcomeImported) != 1 || report.Count(models.OutcomeSkipped) != 2 {
		t.Errorf("imported = %d skipped = %d, want 1 and 2",
			report.Count(models.OutcomeImported), report.Count(models.OutcomeSkipped))
	}
}

func TestImportFile_xlsx(t *testing.T) {
	f := newFixture(t, embedding.NewMockLoader(8))
	path := filepath.Join(f.dir, "liste.xlsx")
	x := excelize.NewFile()
	sheet := x.GetSheetName(0)
	rows := [][]any{
		{"Deutsch", "Englisch", "Tags"},
		{"die Straße", "the street", "Stadt"},
		{"der Platz", "the square", "Stadt"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := x.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if err := x.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	_ = x.Close()

	report, err := f.idx.ImportFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if n := report.Count(models.OutcomeImported); n != 2 {
		t.Fatalf("imported = %d, want 2", n)
	}
	item, err := f.store.GetItem(context.Background(), report.Entries[0].ItemID)
	if err != nil {
		t.Fatal(err)
	}
	if item.Translation != "the street" || !slices.Contains(item.Tags, "Stadt") {
		t.Errorf("item = %+v", item)
	}
}

func TestImportFile_unsupported(t *testing.T) {
	f := newFixture(t, embedding.NewMockLoader(8))
	path := filepath.Join(f.dir, "bild.png")
	if err := os.WriteFile(path, []byte{0x89, 'P', 'N', 'G'}, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := f.idx.ImportFile(context.Background(), path); !errors.Is(err, extract.ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestImportDirectory(t *testing.T) {
	f := newFixture(t, embedding.NewMockLoader(8))
	root := filepath.Join(f.dir, "inbox")
	for _, d := range []string{root, filepath.Join(root, "kapitel2"), filepath.Join(root, ".hidden")} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	files := map[string]string{
		filepath.Join(root, "a.txt"):             "Sonne | sun\n",
		filepath.Join(root, "kapitel2", "b.csv"): "Mond,moon\n",
		filepath.Join(root, ".hidden", "c.txt"):  "Stern | star\n",
		filepath.Join(root, "notes.bin"):         "ignored",
	}
	for p, content := range files {
		if err := os.WriteFile(p, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}

	reports, err := f.idx.ImportDirectory(context.Background(), root)
	if err != nil {
		t.Fatalf("ImportDirectory: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}
	reports, err = f.idx.ImportDirectory(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 0 {
		t.Errorf("second walk imported %d files, want 0", len(reports))
	}
	if _, err := f.idx.ImportDirectory(context.Background(), filepath.Join(root, "a.txt")); err == nil {
		t.Error("expected an error for a file path")
	}
}

func TestBackfill(t *testing.T) {
	f := newFixture(t, embedding.NewMockLoader(8))
	ctx := context.Background()
	for _, c := range []string{"Wasser", "Feuer"} {
		if err := f.store.CreateItem(ctx, &models.Item{Type: models.TypeWord, Content: c}); err != nil {
			t.Fatal(err)
		}
	}

	report, err := f.idx.Backfill(ctx)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if n := report.Count(models.OutcomeUpdated); n != 2 {
		t.Fatalf("updated = %d, want 2", n)
	}
	missing, err := f.store.ItemsMissingEmbedding(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 0 {
		t.Errorf("still missing = %d", len(missing))
	}

	report, err = f.idx.Backfill(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Entries) != 0 {
		t.Errorf("second backfill entries = %d, want 0", len(report.Entries))
	}
}

func TestBackfill_disabledSkipsRemaining(t *testing.T) {
	f := newFixture(t, failingLoader{err: errors.New("broken model")})
	ctx := context.Background()
	for _, c := range []string{"Erde", "Luft", "Licht"} {
		if err := f.store.CreateItem(ctx, &models.Item{Type: models.TypeWord, Content: c}); err != nil {
			t.Fatal(err)
		}
	}
	report, err := f.idx.Backfill(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n := report.Count(models.OutcomeSkipped); n != 3 {
		t.Errorf("skipped = %d, want 3", n)
	}
	if n := report.EmbeddingCount(models.EmbeddingDisabled); n != 3 {
		t.Errorf("disabled = %d, want 3", n)
	}
}

// scriptedEmbedder embeds through vectorFor; batchErr fails every EmbedBatch call.
type scriptedEmbedder struct {
	vectorFor func(text string) []float32
	batchErr  error
	batches   atomic.Int32
}

func (e *scriptedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.vectorFor(text), nil
}

func (e *scriptedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.batches.Add(1)
	if e.batchErr != nil {
		return nil, e.batchErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vectorFor(text)
	}
	return out, nil
}

func (e *scriptedEmbedder) Dimensions() int { return 2 }
func (e *scriptedEmbedder) Close() error    { return nil }

type scriptedLoader struct{ embedder *scriptedEmbedder }

func (l scriptedLoader) Name() string              { return "scripted" }
func (l scriptedLoader) CheckDependencies() error { return nil }
func (l scriptedLoader) Load(context.Context, string) (embedding.Embedder, error) {
	return l.embedder, nil
}

func createBare(t *testing.T, f *fixture, contents ...string) {
	t.Helper()
	for _, c := range contents {
		if err := f.store.CreateItem(context.Background(), &models.Item{Type: models.TypeWord, Content: c}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBackfill_sendsOneRequestPerChunk(t *testing.T) {
	var requests atomic.Int32
	var largest atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if n := int32(len(req.Input)); n > largest.Load() {
			largest.Store(n)
		}
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float32{0.6, 0.8}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "text-embedding-3-small"})
	}))
	defer srv.Close()

	loader := embedding.NewOpenAILoader(embedding.LoaderConfig{APIKey: "sk-test", BaseURL: srv.URL, MaxRetries: -1})
	f := newFixture(t, loader, WithBackfillBatchSize(2))
	createBare(t, f, "Wasser", "Feuer", "Erde", "Luft", "Licht")

	report, err := f.idx.Backfill(context.Background())
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if n := report.Count(models.OutcomeUpdated); n != 5 {
		t.Fatalf("updated = %d, want 5: %+v", n, report.Entries)
	}
	if n := requests.Load(); n != 3 {
		t.Errorf("requests = %d, want 3 for 5 items in chunks of 2", n)
	}
	if n := largest.Load(); n != 2 {
		t.Errorf("largest request carried %d texts, want 2", n)
	}
	for i, e := range report.Entries {
		if e.Index != i {
			t.Errorf("entry %d has index %d", i, e.Index)
		}
	}
}

func TestBackfill_badVectorFailsOnlyItsItem(t *testing.T) {
	emb := &scriptedEmbedder{vectorFor: func(text string) []float32 {
		if text == "Gift" {
			return []float32{float32(math.NaN()), 1}
		}
		return []float32{1, 0}
	}}
	f := newFixture(t, scriptedLoader{embedder: emb})
	createBare(t, f, "Brot", "Gift", "Milch")

	report, err := f.idx.Backfill(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n := emb.batches.Load(); n != 1 {
		t.Errorf("batch calls = %d, want 1", n)
	}
	if n := report.Count(models.OutcomeUpdated); n != 2 {
		t.Errorf("updated = %d, want 2", n)
	}
	if e := report.Entries[1]; e.Content != "Gift" || e.Embedding != models.EmbeddingFailed || e.Outcome != models.OutcomeSkipped {
		t.Errorf("bad vector entry = %+v", e)
	}
	if !f.cap.Available() {
		t.Error("one bad vector must not disable embeddings")
	}
	missing, err := f.store.ItemsMissingEmbedding(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 1 || missing[0].Content != "Gift" {
		t.Errorf("missing after backfill = %v", missing)
	}
}

func TestBackfill_rejectedBatchFallsBackToSingleItems(t *testing.T) {
	emb := &scriptedEmbedder{
		vectorFor: func(string) []float32 { return []float32{0, 1} },
		batchErr:  errors.New("batch too large"),
	}
	f := newFixture(t, scriptedLoader{embedder: emb})
	createBare(t, f, "Sonne", "Mond")

	report, err := f.idx.Backfill(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n := report.Count(models.OutcomeUpdated); n != 2 {
		t.Errorf("updated = %d, want 2: %+v", n, report.Entries)
	}
	if !f.cap.Available() {
		t.Error("a rejected batch must not disable embeddings")
	}
}

func TestSyncKeywordIndex(t *testing.T) {
	f := newFixture(t, embedding.NewMockLoader(8))
	ctx := context.Background()
	if _, err := f.idx.AddItem(ctx, &models.ItemInput{Content: "Fenster"}); err != nil {
		t.Fatal(err)
	}
	// Written behind the indexer's back.
	if err := f.store.CreateItem(ctx, &models.Item{Type: models.TypeWord, Content: "Tür"}); err != nil {
		t.Fatal(err)
	}
	stale := &models.Item{ID: 4242, Type: models.TypeWord, Content: "Gespenst"}
	if err := f.kw.Index(ctx, stale); err != nil {
		t.Fatal(err)
	}
	if err := f.kw.Index(ctx, &models.Item{ID: 4343, Type: models.TypeWord, Content: "Geist"}); err != nil {
		t.Fatal(err)
	}

	n, err := f.idx.SyncKeywordIndex(ctx)
	if err != nil {
		t.Fatalf("SyncKeywordIndex: %v", err)
	}
	if n != 2 {
		t.Errorf("indexed = %d, want 2", n)
	}
	ids, err := f.kw.IDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || slices.Contains(ids, 4242) {
		t.Errorf("ids = %v", ids)
	}

	n, err = f.idx.SyncKeywordIndex(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("in-sync index re-indexed %d items", n)
	}
}

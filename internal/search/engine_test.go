package search

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/wortnest/internal/embedding"
	"github.com/hyperjump/wortnest/internal/indexer"
	"github.com/hyperjump/wortnest/internal/keyword"
	"github.com/hyperjump/wortnest/internal/models"
	"github.com/hyperjump/wortnest/internal/storage"
)

func setupEngine(t *testing.T, withIndex bool) (*Engine, *indexer.Indexer, storage.Storage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "vocab.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	var kw keyword.Index
	var opts []EngineOption
	if withIndex {
		bleveIdx, err := keyword.NewMemoryBleveIndex()
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = bleveIdx.Close() })
		kw = bleveIdx
		opts = append(opts, WithSpellChecker(keyword.NewSpellChecker(bleveIdx)))
	}
	loader := embedding.NewMockLoader(8)
	gen := embedding.NewGenerator("test", loader)
	capability := embedding.CheckCapability(true, loader, "test", nil)
	idx := indexer.NewIndexer(store, kw, gen, capability)
	return NewEngine(store, kw, opts...), idx, store
}

func addItems(t *testing.T, idx *indexer.Indexer, inputs ...models.ItemInput) []*models.Item {
	t.Helper()
	out := make([]*models.Item, 0, len(inputs))
	for i := range inputs {
		item, err := idx.AddItem(context.Background(), &inputs[i])
		if err != nil {
			t.Fatalf("AddItem(%q): %v", inputs[i].Content, err)
		}
		out = append(out, item)
	}
	return out
}

func resultContents(resp *models.SearchResponse) []string {
	out := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, r.Item.Content)
	}
	return out
}

func TestEngine_SearchKeyword(t *testing.T) {
	engine, idx, _ := setupEngine(t, true)
	addItems(t, idx,
		models.ItemInput{Content: "der Bahnhof", Translation: "the train station", Tags: []string{"Reisen"}},
		models.ItemInput{Content: "die Fahrkarte", Translation: "the ticket", Tags: []string{"Reisen"}},
		models.ItemInput{Content: "das Brot", Translation: "the bread", Tags: []string{"Essen"}},
	)

	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "Bahnhof"})
	if err != nil {
		t.Fatal(err)
	}
	if got := resultContents(resp); !slices.Equal(got, []string{"der Bahnhof"}) {
		t.Fatalf("results = %v", got)
	}
	r := resp.Results[0]
	if r.Rank != 1 || r.Score != 1 {
		t.Errorf("rank = %d score = %v", r.Rank, r.Score)
	}
	if !strings.Contains(r.Highlights["content"], "<mark>Bahnhof</mark>") {
		t.Errorf("highlight = %q", r.Highlights["content"])
	}
	if resp.AutoFuzzy {
		t.Error("exact hit should not turn on fuzzy")
	}

	resp, err = engine.Search(context.Background(), &models.SearchQuery{Query: "ticket"})
	if err != nil {
		t.Fatal(err)
	}
	if got := resultContents(resp); !slices.Equal(got, []string{"die Fahrkarte"}) {
		t.Errorf("translation search = %v", got)
	}
}

func TestEngine_SearchFilters(t *testing.T) {
	engine, idx, _ := setupEngine(t, true)
	addItems(t, idx,
		models.ItemInput{Content: "Haus", Translation: "house", Tags: []string{"Wohnen"}},
		models.ItemInput{Content: "das Haus am See", Translation: "the house by the lake", Tags: []string{"Natur"}},
		models.ItemInput{Content: "Ich wohne in einem Haus.", Translation: "I live in a house.", Tags: []string{"Wohnen"}},
	)
	ctx := context.Background()

	resp, err := engine.Search(ctx, &models.SearchQuery{Query: "Haus", Type: "word"})
	if err != nil {
		t.Fatal(err)
	}
	if got := resultContents(resp); !slices.Equal(got, []string{"Haus"}) {
		t.Errorf("type filter = %v", got)
	}

	resp, err = engine.Search(ctx, &models.SearchQuery{Query: "Haus", Tag: "Wohnen"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Errorf("tag filter = %v", resultContents(resp))
	}
	for _, r := range resp.Results {
		if !slices.Contains(r.Item.Tags, "Wohnen") {
			t.Errorf("%q lacks the tag", r.Item.Content)
		}
	}

	resp, err = engine.Search(ctx, &models.SearchQuery{Query: "Haus", Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 3 || len(resp.Results) != 1 || resp.Results[0].Rank != 2 {
		t.Errorf("paging: total = %d results = %d", resp.Total, len(resp.Results))
	}

	if _, err := engine.Search(ctx, &models.SearchQuery{Query: "Haus", Type: "noun"}); err == nil {
		t.Error("expected an error for an unknown type")
	}
}

func TestEngine_SearchAutoFuzzyAndSuggestions(t *testing.T) {
	engine, idx, _ := setupEngine(t, true)
	addItems(t, idx,
		models.ItemInput{Content: "Bahnhof", Translation: "station"},
		models.ItemInput{Content: "Flughafen", Translation: "airport"},
	)

	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "Banhof"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.AutoFuzzy {
		t.Error("expected fuzzy retry")
	}
	if got := resultContents(resp); !slices.Equal(got, []string{"Bahnhof"}) {
		t.Errorf("fuzzy results = %v", got)
	}
	if len(resp.Suggestions) == 0 || resp.Suggestions[0] != "bahnhof" {
		t.Errorf("suggestions = %v", resp.Suggestions)
	}

	resp, err = engine.Search(context.Background(), &models.SearchQuery{Query: "Zebra"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.AutoFuzzy || len(resp.Results) != 0 {
		t.Errorf("unmatched query: auto fuzzy = %v results = %v", resp.AutoFuzzy, resultContents(resp))
	}
}

func TestEngine_SearchEmptyQueryLists(t *testing.T) {
	engine, idx, _ := setupEngine(t, true)
	addItems(t, idx,
		models.ItemInput{Content: "eins", Tags: []string{"Zahlen"}},
		models.ItemInput{Content: "zwei", Tags: []string{"Zahlen"}},
		models.ItemInput{Content: "rot", Tags: []string{"Farben"}},
	)
	resp, err := engine.Search(context.Background(), &models.SearchQuery{Tag: "Zahlen"})
	if err != nil {
		t.Fatal(err)
	}
	if got := resultContents(resp); !slices.Equal(got, []string{"zwei", "eins"}) {
		t.Errorf("listing = %v, want newest first", got)
	}
	if resp.Results[0].Highlights != nil {
		t.Error("listing should carry no highlights")
	}
}

func TestEngine_SearchWithoutKeywordIndex(t *testing.T) {
	engine, idx, _ := setupEngine(t, false)
	addItems(t, idx,
		models.ItemInput{Content: "der Apfel", Translation: "the apple"},
		models.ItemInput{Content: "die Birne", Translation: "the pear"},
	)
	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "apple"})
	if err != nil {
		t.Fatal(err)
	}
	if got := resultContents(resp); !slices.Equal(got, []string{"der Apfel"}) {
		t.Errorf("substring results = %v", got)
	}
}

func TestEngine_SearchSkipsStaleHits(t *testing.T) {
	engine, idx, store := setupEngine(t, true)
	items := addItems(t, idx, models.ItemInput{Content: "Schnee"}, models.ItemInput{Content: "Schneemann"})
	// Deleted behind the index's back.
	if err := store.DeleteItem(context.Background(), items[0].ID); err != nil {
		t.Fatal(err)
	}
	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "Schnee"})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range resp.Results {
		if r.Item.ID == items[0].ID {
			t.Error("stale item returned")
		}
	}
}

func TestEngine_RecentTagsStats(t *testing.T) {
	engine, idx, store := setupEngine(t, true)
	ctx := context.Background()
	items := addItems(t, idx,
		models.ItemInput{Content: "Hund", Tags: []string{"Tiere"}},
		models.ItemInput{Content: "die Katze", Tags: []string{"Tiere", "Haustiere"}},
		models.ItemInput{Content: "Wo ist der Hund?", Tags: []string{"Fragen"}},
	)
	if err := store.MarkReviewed(ctx, items[0].ID, time.Now()); err != nil {
		t.Fatal(err)
	}

	recent, err := engine.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].ID != items[2].ID {
		t.Errorf("recent = %d items, first id %d", len(recent), recent[0].ID)
	}

	tags, err := engine.Tags(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Fragen", "Haustiere", "Tiere"} {
		if !slices.Contains(tags, want) {
			t.Errorf("tags %v lack %q", tags, want)
		}
	}
	if !slices.IsSorted(tags) {
		t.Errorf("tags not sorted: %v", tags)
	}

	stats, err := engine.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.WithEmbedding != 3 || stats.Reviewed != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ByType[models.TypeWord] != 1 || stats.ByType[models.TypePhrase] != 1 || stats.ByType[models.TypeSentence] != 1 {
		t.Errorf("by type = %v", stats.ByType)
	}
}

func TestEngine_SearchRanksExactMatchFirst(t *testing.T) {
	engine, idx, _ := setupEngine(t, true)
	addItems(t, idx,
		models.ItemInput{Content: "Ich wohne in einem Haus, das Haus ist alt.", Translation: "I live in a house, the house is old."},
		models.ItemInput{Content: "das Haus", Translation: "the house"},
	)
	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "Haus"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 || resp.Results[0].Item.Content != "das Haus" {
		t.Fatalf("results = %v", resultContents(resp))
	}
	if resp.Results[0].Score != 1 || resp.Results[1].Score >= 1 {
		t.Errorf("scores = %v, %v", resp.Results[0].Score, resp.Results[1].Score)
	}
}

func TestEngine_SearchExclusions(t *testing.T) {
	engine, idx, _ := setupEngine(t, true)
	addItems(t, idx,
		models.ItemInput{Content: "das Haus", Tags: []string{"Wohnen"}},
		models.ItemInput{Content: "das Haus mit Garten", Tags: []string{"Wohnen"}},
		models.ItemInput{Content: "der Garten", Tags: []string{"Natur"}},
	)
	ctx := context.Background()

	resp, err := engine.Search(ctx, &models.SearchQuery{Query: "Haus -Garten"})
	if err != nil {
		t.Fatal(err)
	}
	if got := resultContents(resp); !slices.Equal(got, []string{"das Haus"}) {
		t.Errorf("with exclusion = %v", got)
	}

	resp, err = engine.Search(ctx, &models.SearchQuery{Query: "-Garten"})
	if err != nil {
		t.Fatal(err)
	}
	if got := resultContents(resp); !slices.Equal(got, []string{"das Haus"}) {
		t.Errorf("exclusion only = %v", got)
	}
}

package keyword

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/wortnest/internal/models"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "bleve"))
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func seedItems(t *testing.T, idx Index, items ...*models.Item) {
	t.Helper()
	if err := idx.IndexBatch(context.Background(), items); err != nil {
		t.Fatalf("IndexBatch: %v", err)
	}
}

var testItems = []*models.Item{
	{ID: 1, Type: models.TypeWord, Content: "der Bahnhof", Translation: "the train station", Lemma: []string{"bahnhof"}, Tags: []string{"Reise"}},
	{ID: 2, Type: models.TypePhrase, Content: "eine Fahrkarte kaufen", Translation: "to buy a ticket", Lemma: []string{"fahrkart", "kauf"}, Tags: []string{"Reise"}},
	{ID: 3, Type: models.TypeSentence, Content: "Die Häuser sind alt.", Translation: "The houses are old.", Lemma: []string{"haus", "alt"}},
	{ID: 4, Type: models.TypeWord, Content: "das Haus", Translation: "the house", Lemma: []string{"haus"}, Tags: []string{"Wohnen"}},
}

func resultIDs(results []*Result) []int64 {
	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

func containsID(results []*Result, id int64) bool {
	for _, r := range results {
		if r.ID == id {
			return true
		}
	}
	return false
}

func TestBleveIndex_SearchContent(t *testing.T) {
	idx := newTestIndex(t)
	seedItems(t, idx, testItems...)
	ctx := context.Background()

	results, err := idx.Search(ctx, "Bahnhof", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 || results[0].ID != 1 {
		t.Fatalf("Search(Bahnhof) = %v, want item 1 first", resultIDs(results))
	}
}

func TestBleveIndex_SearchTranslation(t *testing.T) {
	idx := newTestIndex(t)
	seedItems(t, idx, testItems...)

	// English stemming lets "tickets" match "ticket".
	results, err := idx.Search(context.Background(), "tickets", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !containsID(results, 2) {
		t.Errorf("Search(tickets) = %v, want item 2", resultIDs(results))
	}
}

func TestBleveIndex_SearchLemmaCatchesInflection(t *testing.T) {
	idx := newTestIndex(t)
	seedItems(t, idx, testItems...)

	results, err := idx.Search(context.Background(), "Haus", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !containsID(results, 3) || !containsID(results, 4) {
		t.Errorf("Search(Haus) = %v, want items 3 and 4", resultIDs(results))
	}
}

func TestBleveIndex_SearchTags(t *testing.T) {
	idx := newTestIndex(t)
	seedItems(t, idx, testItems...)

	results, err := idx.Search(context.Background(), "reise", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !containsID(results, 1) || !containsID(results, 2) {
		t.Errorf("Search(reise) = %v, want items 1 and 2", resultIDs(results))
	}
}

func TestBleveIndex_SearchFuzzy(t *testing.T) {
	idx := newTestIndex(t)
	seedItems(t, idx, testItems...)
	ctx := context.Background()

	results, err := idx.Search(ctx, "Banhof", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("exact search for a typo should miss, got %v", resultIDs(results))
	}

	results, err = idx.Search(ctx, "Banhof", 10, &SearchOptions{FuzzyEnabled: true})
	if err != nil {
		t.Fatalf("fuzzy Search: %v", err)
	}
	if !containsID(results, 1) {
		t.Errorf("fuzzy Search(Banhof) = %v, want item 1", resultIDs(results))
	}
}

func TestBleveIndex_SearchWithBoosts(t *testing.T) {
	idx := newTestIndex(t)
	seedItems(t, idx, testItems...)

	opts := &SearchOptions{ContentBoost: 2, PhraseBoost: 1.5}
	results, err := idx.Search(context.Background(), "Fahrkarte kaufen", 10, opts)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 || results[0].ID != 2 {
		t.Fatalf("Search = %v, want item 2 first", resultIDs(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted by score at %d", i)
		}
	}
}

func TestBleveIndex_SearchLimitAndEmpty(t *testing.T) {
	idx := newTestIndex(t)
	seedItems(t, idx, testItems...)
	ctx := context.Background()

	results, err := idx.Search(ctx, "the", 1, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) > 1 {
		t.Errorf("limit 1 returned %d results", len(results))
	}

	results, err = idx.Search(ctx, "   ", 10, nil)
	if err != nil {
		t.Fatalf("Search blank: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("blank query returned %v", resultIDs(results))
	}
}

func TestBleveIndex_ReopenKeepsItems(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "bleve")
	ctx := context.Background()

	idx1, err := NewBleveIndex(indexPath)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	if err := idx1.Index(ctx, &models.Item{ID: 7, Type: models.TypeWord, Content: "Schmetterling"}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := idx1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx2, err := NewBleveIndex(indexPath)
	if err != nil {
		t.Fatalf("NewBleveIndex (reopen): %v", err)
	}
	defer func() { _ = idx2.Close() }()

	results, err := idx2.Search(ctx, "schmetterling", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != 7 {
		t.Errorf("after reopen got %v, want [7]", resultIDs(results))
	}
}

func TestBleveIndex_DeleteAndIDs(t *testing.T) {
	idx := newTestIndex(t)
	seedItems(t, idx, testItems...)
	ctx := context.Background()

	if err := idx.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := idx.Delete(ctx, 99); err != nil {
		t.Errorf("Delete unknown id: %v", err)
	}

	ids, err := idx.IDs(ctx)
	if err != nil {
		t.Fatalf("IDs: %v", err)
	}
	want := []int64{2, 3, 4}
	if len(ids) != len(want) {
		t.Fatalf("IDs = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("IDs[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
	count, err := idx.DocCount()
	if err != nil || count != 3 {
		t.Errorf("DocCount = %d, %v; want 3", count, err)
	}

	results, err := idx.Search(ctx, "Bahnhof", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if containsID(results, 1) {
		t.Error("deleted item still returned")
	}
}

func TestBleveIndex_IndexReplaces(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	item := &models.Item{ID: 5, Type: models.TypeWord, Content: "die Katze"}
	if err := idx.Index(ctx, item); err != nil {
		t.Fatalf("Index: %v", err)
	}
	item.Content = "der Hund"
	if err := idx.Index(ctx, item); err != nil {
		t.Fatalf("re-Index: %v", err)
	}

	if results, _ := idx.Search(ctx, "katze", 10, nil); len(results) != 0 {
		t.Errorf("old content still indexed: %v", resultIDs(results))
	}
	if results, _ := idx.Search(ctx, "hund", 10, nil); !containsID(results, 5) {
		t.Error("new content not indexed")
	}
}

func TestBleveIndex_TermDictionary(t *testing.T) {
	idx := newTestIndex(t)
	seedItems(t, idx, testItems...)

	terms, err := idx.GetAllTerms()
	if err != nil {
		t.Fatalf("GetAllTerms: %v", err)
	}
	found := false
	for _, term := range terms {
		if term == "häuser" {
			found = true
		}
	}
	if !found {
		t.Errorf("GetAllTerms missing %q: %v", "häuser", terms)
	}

	freq, err := idx.GetTermFrequency("Haus")
	if err != nil || freq != 1 {
		t.Errorf("GetTermFrequency(Haus) = %d, %v; want 1", freq, err)
	}
	ok, err := idx.ContainsTerm("zebra")
	if err != nil || ok {
		t.Errorf("ContainsTerm(zebra) = %v, %v", ok, err)
	}

	sc := NewSpellChecker(idx)
	if got := sc.GetSuggestedQuery("Bahnhpf"); got != "bahnhof" {
		t.Errorf("GetSuggestedQuery = %q, want bahnhof", got)
	}
}

func TestNewBleveIndex_CreatesDir(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "sub", "bleve")
	idx, err := NewBleveIndex(indexPath)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	_ = idx.Close()
	if _, err := os.Stat(indexPath); err != nil {
		t.Errorf("index path should exist: %v", err)
	}
}

func TestNewMemoryBleveIndex(t *testing.T) {
	idx, err := NewMemoryBleveIndex()
	if err != nil {
		t.Fatalf("NewMemoryBleveIndex: %v", err)
	}
	defer func() { _ = idx.Close() }()
	seedItems(t, idx, testItems[0])
	if n, _ := idx.DocCount(); n != 1 {
		t.Errorf("DocCount = %d, want 1", n)
	}
}

func TestFuzzinessFor(t *testing.T) {
	tests := []struct {
		term       string
		configured int
		want       int
	}{
		{"hund", 0, 1},
		{"haus", 0, 1},
		{"bahnhof", 0, 2},
		{"hund", 2, 2},
		{"bahnhof", 5, 2},
	}
	for _, tt := range tests {
		if got := fuzzinessFor(tt.term, tt.configured); got != tt.want {
			t.Errorf("fuzzinessFor(%q, %d) = %d, want %d", tt.term, tt.configured, got, tt.want)
		}
	}
}

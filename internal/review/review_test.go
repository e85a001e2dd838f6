package review

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/wortnest/internal/models"
	"github.com/hyperjump/wortnest/internal/storage"
)

func newStore(t *testing.T, items ...*models.Item) storage.Storage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "vocab.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	for _, it := range items {
		if err := store.CreateItem(context.Background(), it); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeCloze, false},
		{"Reverse", ModeReverse, false},
		{" dictation ", ModeDictation, false},
		{"quiz", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseMode(%q) err = %v", tt.in, err)
		}
		if err != nil && !errors.Is(err, models.ErrInvalidInput) {
			t.Errorf("ParseMode(%q) err = %v, want ErrInvalidInput", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCloze(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		lemmas     []string
		wantPrompt string
		wantHidden string
	}{
		{"lemma match wins", "Ich gehe heute zum Bahnhof.", []string{"geh", "bahnhof"}, "Ich gehe heute zum ___.", "Bahnhof"},
		{"longest lemma match", "Der Hund bellt laut", []string{"hund", "bellt"}, "Der Hund ___ laut", "bellt"},
		{"falls back to longest word", "Wo ist die Toilette?", nil, "Wo ist die ___?", "Toilette"},
		{"first of equal length", "rot gut", nil, "___ gut", "rot"},
		{"single word", "Schmetterling", []string{"schmetterling"}, "___", "Schmetterling"},
		{"no words", "?!", nil, "?!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt, hidden := Cloze(tt.content, tt.lemmas)
			if prompt != tt.wantPrompt || hidden != tt.wantHidden {
				t.Errorf("Cloze() = %q, %q, want %q, %q", prompt, hidden, tt.wantPrompt, tt.wantHidden)
			}
		})
	}
}

func TestReviewer_Check(t *testing.T) {
	r := NewReviewer(nil)
	item := &models.Item{Content: "Ich trinke gern Kaffee.", Translation: "I like drinking coffee.", Lemma: []string{"trink", "kaffe"}}

	tests := []struct {
		name        string
		mode        Mode
		answer      string
		wantCorrect bool
		wantPerfect bool
	}{
		{"cloze exact", ModeCloze, "trinke", true, true},
		{"cloze case", ModeCloze, "TRINKE", true, true},
		{"cloze typo", ModeCloze, "trinkee", true, false},
		{"cloze other word of text", ModeCloze, "Kaffee", true, false},
		{"cloze wrong", ModeCloze, "esse", false, false},
		{"cloze empty", ModeCloze, "  ", false, false},
		{"reverse exact", ModeReverse, "ich trinke gern kaffee", true, false},
		{"reverse partial", ModeReverse, "Ich trinke Tee", false, false},
		{"dictation exact", ModeDictation, "ich trinke gern kaffee.", true, true},
		{"dictation close", ModeDictation, "Ich trinke gern Kafee.", true, false},
		{"dictation wrong", ModeDictation, "Du isst Kuchen.", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := r.Check(item, tt.mode, tt.answer)
			if g.Correct != tt.wantCorrect || g.Perfect != tt.wantPerfect {
				t.Errorf("Check() = %+v, want correct=%v perfect=%v", g, tt.wantCorrect, tt.wantPerfect)
			}
			if g.Score < 0 || g.Score > 1 {
				t.Errorf("score %v out of range", g.Score)
			}
		})
	}

	if g := r.Check(item, ModeCloze, "x"); g.Expected != "trinke" {
		t.Errorf("cloze expected = %q", g.Expected)
	}
	if g := r.Check(item, ModeReverse, "x"); g.Expected != item.Content {
		t.Errorf("reverse expected = %q", g.Expected)
	}
}

func TestReviewer_CheckPassThreshold(t *testing.T) {
	item := &models.Item{Content: "Guten Morgen, wie geht es dir?"}
	answer := "Guten Morgen wie geht es"
	lenient := NewReviewer(nil, WithPassThreshold(0.5))
	strict := NewReviewer(nil, WithPassThreshold(1))
	if !lenient.Check(item, ModeReverse, answer).Correct {
		t.Error("5 of 6 words should pass at 0.5")
	}
	if strict.Check(item, ModeReverse, answer).Correct {
		t.Error("5 of 6 words should fail at 1.0")
	}
	if g := lenient.Check(item, ModeReverse, answer); g.Score < 0.83 || g.Score > 0.84 {
		t.Errorf("score = %v, want 5/6", g.Score)
	}
}

func TestReviewer_Next(t *testing.T) {
	store := newStore(t,
		&models.Item{Type: models.TypeWord, Content: "Hund", Translation: "dog", Tags: []string{"Tiere"}},
		&models.Item{Type: models.TypeWord, Content: "Katze", Tags: []string{"Tiere"}},
		&models.Item{Type: models.TypeWord, Content: "rot", Translation: "red", Tags: []string{"Farben"}},
	)
	r := NewReviewer(store)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		d, err := r.Next(ctx, "Tiere", ModeReverse)
		if err != nil {
			t.Fatal(err)
		}
		if d.Item.Content != "Hund" || d.Prompt != "dog" {
			t.Fatalf("reverse drill = %+v", d)
		}
	}

	d, err := r.Next(ctx, "Farben", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Mode != ModeCloze || d.Prompt != Blank {
		t.Errorf("cloze drill = %+v", d)
	}

	d, err = r.Next(ctx, "", ModeDictation)
	if err != nil {
		t.Fatal(err)
	}
	if d.Prompt != "" {
		t.Errorf("dictation prompt = %q, want empty", d.Prompt)
	}

	if _, err := r.Next(ctx, "Essen", ModeCloze); !errors.Is(err, ErrNoItems) {
		t.Errorf("unknown tag err = %v, want ErrNoItems", err)
	}
	if _, err := r.Next(ctx, "", "quiz"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("bad mode err = %v", err)
	}
}

func TestReviewer_NextEmpty(t *testing.T) {
	r := NewReviewer(newStore(t))
	if _, err := r.Next(context.Background(), "", ModeCloze); !errors.Is(err, ErrNoItems) {
		t.Errorf("err = %v, want ErrNoItems", err)
	}
}

func TestReviewer_MarkReviewed(t *testing.T) {
	item := &models.Item{Type: models.TypeWord, Content: "Baum"}
	store := newStore(t, item)
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	r := NewReviewer(store, WithClock(func() time.Time { return at }))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := r.MarkReviewed(ctx, item.ID); err != nil {
			t.Fatal(err)
		}
	}
	got, err := store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReviewCount != 2 {
		t.Errorf("review count = %d, want 2", got.ReviewCount)
	}
	if got.LastReviewed == nil || !got.LastReviewed.Equal(at) {
		t.Errorf("last reviewed = %v, want %v", got.LastReviewed, at)
	}
	if err := r.MarkReviewed(ctx, 999); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing item err = %v", err)
	}
}

package export

import (
	"archive/zip"
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/wortnest/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Anki collection layout, schema version 11.
const ankiSchema = `
CREATE TABLE col (
	id integer primary key, crt integer not null, mod integer not null,
	scm integer not null, ver integer not null, dty integer not null,
	usn integer not null, ls integer not null, conf text not null,
	models text not null, decks text not null, dconf text not null, tags text not null
);
CREATE TABLE notes (
	id integer primary key, guid text not null, mid integer not null,
	mod integer not null, usn integer not null, tags text not null,
	flds text not null, sfld integer not null, csum integer not null,
	flags integer not null, data text not null
);
CREATE TABLE cards (
	id integer primary key, nid integer not null, did integer not null,
	ord integer not null, mod integer not null, usn integer not null,
	type integer not null, queue integer not null, due integer not null,
	ivl integer not null, factor integer not null, reps integer not null,
	lapses integer not null, left integer not null, odue integer not null,
	odid integer not null, flags integer not null, data text not null
);
CREATE TABLE revlog (
	id integer primary key, cid integer not null, usn integer not null,
	ease integer not null, ivl integer not null, lastIvl integer not null,
	factor integer not null, time integer not null, type integer not null
);
CREATE TABLE graves (usn integer not null, oid integer not null, type integer not null);
CREATE INDEX ix_notes_usn on notes (usn);
CREATE INDEX ix_cards_usn on cards (usn);
CREATE INDEX ix_revlog_usn on revlog (usn);
CREATE INDEX ix_cards_nid on cards (nid);
CREATE INDEX ix_cards_sched on cards (did, queue, due);
CREATE INDEX ix_revlog_cid on revlog (cid);
CREATE INDEX ix_notes_csum on notes (csum);
`

const (
	ankiModelID   int64 = 1607392319
	ankiModelName       = "German Learning Model"
	ankiFieldSep        = "\x1f"
	ankiQuestion        = "{{German}}<br><small>{{Type}}</small>"
	ankiAnswer          = `{{FrontSide}}<hr id="answer">{{Translation}}<br><small>{{Tags}}</small>`
	ankiCSS             = ".card { font-family: arial; font-size: 20px; text-align: center; color: black; background-color: white; }"
	ankiLatexPre        = "\\documentclass[12pt]{article}\n\\special{papersize=3in,5in}\n\\usepackage[utf8]{inputenc}\n" +
		"\\usepackage{amssymb,amsmath}\n\\pagestyle{empty}\n\\setlength{\\parindent}{0in}\n\\begin{document}\n"
)

var ankiFields = []string{"German", "Translation", "Type", "Tags"}

// noteNamespace derives stable note GUIDs so re-imported decks update notes in place.
var noteNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://wortnest.local/anki/note"))

var htmlTag = regexp.MustCompile(`<[^>]*>`)

type ankiTemplate struct {
	Name  string `json:"name"`
	Ord   int    `json:"ord"`
	Qfmt  string `json:"qfmt"`
	Afmt  string `json:"afmt"`
	Did   *int64 `json:"did"`
	Bqfmt string `json:"bqfmt"`
	Bafmt string `json:"bafmt"`
}

type ankiField struct {
	Name   string `json:"name"`
	Ord    int    `json:"ord"`
	Sticky bool   `json:"sticky"`
	RTL    bool   `json:"rtl"`
	Font   string `json:"font"`
	Size   int    `json:"size"`
	Media  []any  `json:"media"`
}

type ankiModel struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Type      int            `json:"type"`
	Mod       int64          `json:"mod"`
	Usn       int            `json:"usn"`
	Sortf     int            `json:"sortf"`
	Did       int64          `json:"did"`
	Tmpls     []ankiTemplate `json:"tmpls"`
	Flds      []ankiField    `json:"flds"`
	CSS       string         `json:"css"`
	LatexPre  string         `json:"latexPre"`
	LatexPost string         `json:"latexPost"`
	Tags      []string       `json:"tags"`
	Vers      []any          `json:"vers"`
	Req       []any          `json:"req"`
}

type ankiDeck struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Desc             string `json:"desc"`
	Mod              int64  `json:"mod"`
	Usn              int    `json:"usn"`
	Collapsed        bool   `json:"collapsed"`
	BrowserCollapsed bool   `json:"browserCollapsed"`
	Dyn              int    `json:"dyn"`
	Conf             int64  `json:"conf"`
	ExtendNew        int    `json:"extendNew"`
	ExtendRev        int    `json:"extendRev"`
	NewToday         [2]int `json:"newToday"`
	RevToday         [2]int `json:"revToday"`
	LrnToday         [2]int `json:"lrnToday"`
	TimeToday        [2]int `json:"timeToday"`
}

func newAnkiDeck(id int64, name string, mod int64) ankiDeck {
	return ankiDeck{ID: id, Name: name, Mod: mod, Usn: -1, Conf: 1, ExtendRev: 50}
}

// ankiDeckID maps a deck name to a stable id in the range Anki uses for generated decks.
func ankiDeckID(name string) int64 {
	sum := sha1.Sum([]byte(name))
	return 1<<30 + int64(binary.BigEndian.Uint32(sum[:4])%(1<<30))
}

// ankiChecksum is the first 8 hex digits of the SHA-1 of the sort field without HTML.
func ankiChecksum(field string) int64 {
	sum := sha1.Sum([]byte(htmlTag.ReplaceAllString(field, "")))
	return int64(binary.BigEndian.Uint32(sum[:4]))
}

// ankiTags formats tags the way Anki stores them: space separated and padded.
// Spaces inside a tag become underscores.
func ankiTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.Join(strings.Fields(t), "_"); t != "" {
			out = append(out, t)
		}
	}
	return " " + strings.Join(out, " ") + " "
}

// WriteAnki writes an .apkg package with one note and one card per item.
func WriteAnki(w io.Writer, items []*models.Item, deckName string) error {
	if strings.TrimSpace(deckName) == "" {
		deckName = DefaultDeckName
	}
	dir, err := os.MkdirTemp("", "wortnest-anki-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	dbPath := filepath.Join(dir, "collection.anki2")
	if err := buildAnkiCollection(dbPath, items, deckName, time.Now()); err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	if err := addZipFile(zw, "collection.anki2", dbPath); err != nil {
		return err
	}
	media, err := zw.Create("media")
	if err != nil {
		return fmt.Errorf("create media entry: %w", err)
	}
	if _, err := io.WriteString(media, "{}"); err != nil {
		return fmt.Errorf("write media entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish package: %w", err)
	}
	return nil
}

func addZipFile(zw *zip.Writer, name, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer src.Close()
	dst, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s entry: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("write %s entry: %w", name, err)
	}
	return nil
}

func buildAnkiCollection(path string, items []*models.Item, deckName string, now time.Time) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	defer db.Close()
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, ankiSchema); err != nil {
		return fmt.Errorf("create collection schema: %w", err)
	}

	deckID := ankiDeckID(deckName)
	sec := now.Unix()
	ms := now.UnixMilli()
	colJSON, err := ankiCollectionJSON(deckID, deckName, sec)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags)
		 VALUES (1, ?, ?, ?, 11, 0, 0, 0, ?, ?, ?, ?, '{}')`,
		sec, ms, ms, colJSON.conf, colJSON.models, colJSON.decks, colJSON.dconf)
	if err != nil {
		return fmt.Errorf("write collection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for i, it := range items {
		noteID := ms + int64(i)
		fields := []string{it.Content, it.Translation, string(it.Type), strings.Join(it.Tags, ", ")}
		guid := uuid.NewSHA1(noteNamespace, []byte(strconv.FormatInt(it.ID, 10)+"\x00"+it.Content)).String()
		_, err := tx.ExecContext(ctx,
			`INSERT INTO notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data)
			 VALUES (?, ?, ?, ?, -1, ?, ?, ?, ?, 0, '')`,
			noteID, guid, ankiModelID, sec, ankiTags(it.Tags),
			strings.Join(fields, ankiFieldSep), it.Content, ankiChecksum(it.Content))
		if err != nil {
			return fmt.Errorf("write note for item %d: %w", it.ID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO cards (id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, left, odue, odid, flags, data)
			 VALUES (?, ?, ?, 0, ?, -1, 0, 0, ?, 0, 0, 0, 0, 0, 0, 0, 0, '')`,
			noteID, noteID, deckID, sec, i+1)
		if err != nil {
			return fmt.Errorf("write card for item %d: %w", it.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit notes: %w", err)
	}
	return nil
}

type ankiColJSON struct {
	conf, models, decks, dconf string
}

func ankiCollectionJSON(deckID int64, deckName string, sec int64) (ankiColJSON, error) {
	var out ankiColJSON
	conf := map[string]any{
		"activeDecks":   []int64{deckID},
		"curDeck":       deckID,
		"newSpread":     0,
		"collapseTime":  1200,
		"timeLim":       0,
		"estTimes":      true,
		"dueCounts":     true,
		"curModel":      strconv.FormatInt(ankiModelID, 10),
		"nextPos":       1,
		"sortType":      "noteFld",
		"sortBackwards": false,
		"addToCur":      true,
	}
	flds := make([]ankiField, len(ankiFields))
	for i, name := range ankiFields {
		flds[i] = ankiField{Name: name, Ord: i, Font: "Arial", Size: 20, Media: []any{}}
	}
	model := ankiModel{
		ID:        ankiModelID,
		Name:      ankiModelName,
		Mod:       sec,
		Usn:       -1,
		Did:       deckID,
		Tmpls:     []ankiTemplate{{Name: "Card 1", Qfmt: ankiQuestion, Afmt: ankiAnswer}},
		Flds:      flds,
		CSS:       ankiCSS,
		LatexPre:  ankiLatexPre,
		LatexPost: "\\end{document}",
		Tags:      []string{},
		Vers:      []any{},
		Req:       []any{[]any{0, "all", []int{0}}},
	}
	decks := map[string]ankiDeck{"1": newAnkiDeck(1, "Default", sec)}
	decks[strconv.FormatInt(deckID, 10)] = newAnkiDeck(deckID, deckName, sec)
	dconf := map[string]any{
		"1": map[string]any{
			"id":       1,
			"name":     "Default",
			"mod":      0,
			"usn":      0,
			"maxTaken": 60,
			"autoplay": true,
			"timer":    0,
			"replayq":  true,
			"dyn":      false,
			"new": map[string]any{
				"delays":        []float64{1, 10},
				"ints":          []int{1, 4, 7},
				"initialFactor": 2500,
				"order":         1,
				"perDay":        20,
				"bury":          true,
				"separate":      true,
			},
			"rev": map[string]any{
				"perDay":   100,
				"ease4":    1.3,
				"fuzz":     0.05,
				"maxIvl":   36500,
				"ivlFct":   1,
				"minSpace": 1,
				"bury":     true,
			},
			"lapse": map[string]any{
				"delays":      []float64{10},
				"mult":        0,
				"minInt":      1,
				"leechFails":  8,
				"leechAction": 0,
			},
		},
	}

	for _, part := range []struct {
		dst *string
		v   any
	}{
		{&out.conf, conf},
		{&out.models, map[string]ankiModel{strconv.FormatInt(ankiModelID, 10): model}},
		{&out.decks, decks},
		{&out.dconf, dconf},
	} {
		b, err := json.Marshal(part.v)
		if err != nil {
			return out, fmt.Errorf("encode collection settings: %w", err)
		}
		*part.dst = string(b)
	}
	return out, nil
}

// Package e2e provides end-to-end tests with a themed vocabulary corpus.
package e2e

import (
	"fmt"
	"strings"

	"github.com/hyperjump/wortnest/internal/models"
)

// Entry is one vocabulary line of the corpus.
type Entry struct {
	Content     string
	Translation string
	Topic       string
}

// QueryTestCase defines a query and the content that must appear in its results.
type QueryTestCase struct {
	Query       string
	Expected    string
	First       bool // Expected must be the top result
	Description string
}

// Corpus holds entries and query test cases for E2E tests.
type Corpus struct {
	Entries      []Entry
	TestCases    []QueryTestCase
	Topics       []string
	TotalEntries int
	TotalQueries int
}

// topics groups six entries per theme. Each topic doubles as the entries' tag.
var topics = []struct {
	name    string
	entries [][2]string
}{
	{"Tiere", [][2]string{
		{"der Hund", "the dog"}, {"die Katze", "the cat"}, {"das Pferd", "the horse"},
		{"der Vogel", "the bird"}, {"die Maus", "the mouse"}, {"der Fisch", "the fish"},
	}},
	{"Essen", [][2]string{
		{"das Brot", "the bread"}, {"der Käse", "the cheese"}, {"der Apfel", "the apple"},
		{"die Suppe", "the soup"}, {"das Frühstück", "the breakfast"}, {"Ich habe Hunger.", "I am hungry."},
	}},
	{"Reisen", [][2]string{
		{"der Bahnhof", "the train station"}, {"die Fahrkarte", "the ticket"}, {"der Flughafen", "the airport"},
		{"der Koffer", "the suitcase"}, {"die Reise", "the journey"}, {"Wo ist der Bahnhof?", "Where is the train station?"},
	}},
	{"Wohnen", [][2]string{
		{"das Haus", "the house"}, {"die Wohnung", "the apartment"}, {"die Küche", "the kitchen"},
		{"das Schlafzimmer", "the bedroom"}, {"der Garten", "the garden"}, {"die Miete", "the rent"},
	}},
	{"Wetter", [][2]string{
		{"der Regen", "the rain"}, {"der Schnee", "the snow"}, {"die Sonne", "the sun"},
		{"der Wind", "the wind"}, {"das Gewitter", "the thunderstorm"}, {"die Wolke", "the cloud"},
	}},
	{"Farben", [][2]string{
		{"rot", "red"}, {"blau", "blue"}, {"grün", "green"},
		{"gelb", "yellow"}, {"schwarz", "black"}, {"weiß", "white"},
	}},
	{"Familie", [][2]string{
		{"die Mutter", "the mother"}, {"der Vater", "the father"}, {"die Schwester", "the sister"},
		{"der Bruder", "the brother"}, {"die Großmutter", "the grandmother"}, {"das Kind", "the child"},
	}},
	{"Arbeit", [][2]string{
		{"das Büro", "the office"}, {"der Chef", "the boss"}, {"die Besprechung", "the meeting"},
		{"das Gehalt", "the salary"}, {"der Kollege", "the colleague"}, {"die Bewerbung", "the application"},
	}},
	{"Begrüßung", [][2]string{
		{"Guten Morgen", "good morning"}, {"Guten Abend", "good evening"}, {"Wie geht es dir?", "How are you?"},
		{"Auf Wiedersehen", "goodbye"}, {"Bis später", "see you later"}, {"Schönen Tag noch", "have a nice day"},
	}},
}

// BuildCorpus returns every topic's entries and the query test cases.
func BuildCorpus() *Corpus {
	c := &Corpus{}
	for _, t := range topics {
		c.Topics = append(c.Topics, t.name)
		for _, e := range t.entries {
			c.Entries = append(c.Entries, Entry{Content: e[0], Translation: e[1], Topic: t.name})
		}
	}
	c.TestCases = buildQueryTestCases()
	c.TotalEntries = len(c.Entries)
	c.TotalQueries = len(c.TestCases)
	return c
}

func buildQueryTestCases() []QueryTestCase {
	cases := []QueryTestCase{
		{Query: "Pferd", Expected: "das Pferd", First: true},
		{Query: "Käse", Expected: "der Käse", First: true},
		{Query: "Flughafen", Expected: "der Flughafen", First: true},
		{Query: "Wohnung", Expected: "die Wohnung", First: true},
		{Query: "Gewitter", Expected: "das Gewitter", First: true},
		{Query: "gelb", Expected: "gelb", First: true},
		{Query: "Großmutter", Expected: "die Großmutter", First: true},
		{Query: "Gehalt", Expected: "das Gehalt", First: true},
		{Query: "Bahnhof", Expected: "der Bahnhof", First: true},
		{Query: "Bahnhof", Expected: "Wo ist der Bahnhof?"},
		{Query: "suitcase", Expected: "der Koffer"},
		{Query: "thunderstorm", Expected: "das Gewitter"},
		{Query: "salary", Expected: "das Gehalt"},
		{Query: "Guten Morgen", Expected: "Guten Morgen", First: true},
		{Query: `"geht es"`, Expected: "Wie geht es dir?"},
		{Query: "Hunger", Expected: "Ich habe Hunger."},
		{Query: "Flughafn", Expected: "der Flughafen"},
	}
	for i := range cases {
		c := &cases[i]
		where := "in results"
		if c.First {
			where = "first"
		}
		c.Description = fmt.Sprintf("query %q should return %q %s", c.Query, c.Expected, where)
	}
	return cases
}

// Text renders the entries as "content | translation | tag" import lines.
func (c *Corpus) Text() string {
	var b strings.Builder
	for _, e := range c.Entries {
		fmt.Fprintf(&b, "%s | %s | %s\n", e.Content, e.Translation, e.Topic)
	}
	return b.String()
}

// ToItemInputs converts the corpus entries to item inputs.
func (c *Corpus) ToItemInputs() []models.ItemInput {
	out := make([]models.ItemInput, len(c.Entries))
	for i, e := range c.Entries {
		out[i] = models.ItemInput{Content: e.Content, Translation: e.Translation, Tags: []string{e.Topic}}
	}
	return out
}

// TopicOf returns the topic of the entry with the given content, or "".
func (c *Corpus) TopicOf(content string) string {
	for _, e := range c.Entries {
		if e.Content == content {
			return e.Topic
		}
	}
	return ""
}

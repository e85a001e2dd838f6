package ranking

// Config holds the match-quality multipliers applied to keyword scores.
type Config struct {
	ExactMultiplier    float64 `yaml:"exact_multiplier"`     // default: 1.5
	PhraseMultiplier   float64 `yaml:"phrase_multiplier"`    // default: 1.3
	AllWordsMultiplier float64 `yaml:"all_words_multiplier"` // default: 1.0
	PartialMultiplier  float64 `yaml:"partial_multiplier"`   // default: 0.7

	// TranslationWeight scales a match found only in the translation.
	TranslationWeight float64 `yaml:"translation_weight"` // default: 0.9
	// TagMultiplier applies when a query term names one of the item's tags.
	TagMultiplier float64 `yaml:"tag_multiplier"` // default: 1.1
}

// DefaultConfig returns the default ranking configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults sets default values for zero fields.
func (c *Config) ApplyDefaults() {
	if c.ExactMultiplier == 0 {
		c.ExactMultiplier = 1.5
	}
	if c.PhraseMultiplier == 0 {
		c.PhraseMultiplier = 1.3
	}
	if c.AllWordsMultiplier == 0 {
		c.AllWordsMultiplier = 1.0
	}
	if c.PartialMultiplier == 0 {
		c.PartialMultiplier = 0.7
	}
	if c.TranslationWeight == 0 {
		c.TranslationWeight = 0.9
	}
	if c.TagMultiplier == 0 {
		c.TagMultiplier = 1.1
	}
}

// Multiplier returns the multiplier for a match type.
func (c *Config) Multiplier(m MatchType) float64 {
	switch m {
	case MatchTypeExact:
		return c.ExactMultiplier
	case MatchTypePhrase:
		return c.PhraseMultiplier
	case MatchTypeAllWords:
		return c.AllWordsMultiplier
	case MatchTypePartial:
		return c.PartialMultiplier
	default:
		return 1.0
	}
}

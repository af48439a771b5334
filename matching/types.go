package matching

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
)

// Record is a single named entity read from a from or to collection.
type Record struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Group string `json:"group,omitempty"`
}

// TokenCounts maps a token to the number of times it occurs in one record.
type TokenCounts map[string]int

// CountTokens builds a token multiset, skipping empty tokens.
func CountTokens(tokens []string) TokenCounts {
	counts := make(TokenCounts, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		counts[t]++
	}
	return counts
}

// Document pairs a record with its token multiset.
type Document struct {
	Record Record
	Tokens TokenCounts
}

// MatchResult is one accepted pairing of a from record with a to record.
type MatchResult struct {
	FromID   string  `json:"fromId"`
	FromName string  `json:"fromName"`
	ToID     string  `json:"toId"`
	ToName   string  `json:"toName"`
	Group    string  `json:"group,omitempty"`
	Score    float64 `json:"score"`
}

// ModeKind names one of the supported similarity models.
type ModeKind string

const (
	// ModeToken scores exact token overlap.
	ModeToken ModeKind = "token"
	// ModeNGram scores character n-gram overlap between tokens.
	ModeNGram ModeKind = "ngram"
	// ModeLevenshtein scores normalized Levenshtein similarity between tokens.
	ModeLevenshtein ModeKind = "lev"
	// ModeDamerauLevenshtein scores normalized Damerau-Levenshtein similarity between tokens.
	ModeDamerauLevenshtein ModeKind = "dl"
)

// Mode is the similarity model selected for a run. WindowSize is only
// meaningful for ModeNGram.
type Mode struct {
	Kind       ModeKind
	WindowSize int
}

// TokenMode returns the exact token overlap model.
func TokenMode() Mode { return Mode{Kind: ModeToken} }

// NGramMode returns the character n-gram model with the given window size.
func NGramMode(window int) Mode { return Mode{Kind: ModeNGram, WindowSize: window} }

// LevenshteinMode returns the Levenshtein model.
func LevenshteinMode() Mode { return Mode{Kind: ModeLevenshtein} }

// DamerauLevenshteinMode returns the Damerau-Levenshtein model.
func DamerauLevenshteinMode() Mode { return Mode{Kind: ModeDamerauLevenshtein} }

// ParseModeKind accepts the short CLI names as well as a few long aliases.
func ParseModeKind(s string) (ModeKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "token", "tokens", "exact":
		return ModeToken, nil
	case "ngram", "ngrams", "n-gram":
		return ModeNGram, nil
	case "lev", "levenshtein":
		return ModeLevenshtein, nil
	case "dl", "damerau", "damerau-levenshtein":
		return ModeDamerauLevenshtein, nil
	default:
		return "", fmt.Errorf("%w: unknown match mode %q", ErrInvalidConfig, s)
	}
}

func (m Mode) String() string {
	if m.Kind == ModeNGram {
		return fmt.Sprintf("%s(%d)", m.Kind, m.WindowSize)
	}
	return string(m.Kind)
}

// TextOptions control how raw names are turned into tokens.
type TextOptions struct {
	// RetainUnicode disables folding accented characters to their base letters.
	RetainUnicode bool `json:"retainUnicode"`
	// CaseSensitive disables lowercasing.
	CaseSensitive bool `json:"caseSensitive"`
	// RetainNonAlphabetic keeps digits and punctuation inside tokens.
	RetainNonAlphabetic bool `json:"retainNonAlphabetic"`
	// Phonetic is "", "soundex" or "metaphone".
	Phonetic string `json:"phonetic,omitempty"`
	// TokenLength trims each token to at most this many characters when positive.
	TokenLength int `json:"tokenLength,omitempty"`
}

// Config aggregates runtime settings persisted to a JSON config file.
type Config struct {
	Mode          ModeKind         `json:"mode"`
	NGramSize     int              `json:"ngramSize"`
	MinScore      float64          `json:"minScore"`
	NumResults    int              `json:"numResults"`
	TiesWithin    *float64         `json:"tiesWithin,omitempty"`
	GroupMatch    bool             `json:"groupMatch"`
	Workers       int              `json:"workers"`
	QueueSize     int              `json:"queueSize"`
	Text          TextOptions      `json:"text"`
	TokenizerPath string           `json:"tokenizerPath,omitempty"`
	Columns       ColumnCandidates `json:"columns"`
}

// DefaultConfig mirrors the command line defaults.
func DefaultConfig() Config {
	cfg := Config{
		Mode:       ModeNGram,
		NGramSize:  2,
		MinScore:   0.01,
		NumResults: 1,
		Columns:    DefaultColumnCandidates(),
	}
	cfg.ApplyDefaults()
	return cfg
}

// Clone creates a deep copy of the configuration so callers can mutate safely.
func (c Config) Clone() Config {
	buf, _ := json.Marshal(c)
	var out Config
	_ = json.Unmarshal(buf, &out)
	return out
}

// ApplyDefaults populates zero values with sensible defaults. MinScore is left
// alone because zero is a meaningful threshold. NGramSize is only filled in
// together with an unset Mode; an explicit ngram mode with window 0 fails
// Validate.
func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeNGram
		if c.NGramSize == 0 {
			c.NGramSize = 2
		}
	}
	if c.NumResults <= 0 {
		c.NumResults = 1
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 4 * c.Workers
	}
	c.Text.Phonetic = strings.ToLower(strings.TrimSpace(c.Text.Phonetic))
	c.Columns = c.Columns.withDefaults()
}

// Validate reports configuration errors that must stop a run before any
// record is scored.
func (c Config) Validate() error {
	kind, err := ParseModeKind(string(c.Mode))
	if err != nil {
		return err
	}
	if kind == ModeNGram && c.NGramSize < 2 {
		return fmt.Errorf("%w: got %d", ErrInvalidWindow, c.NGramSize)
	}
	if c.NumResults < 1 {
		return fmt.Errorf("%w: number of results must be positive, got %d", ErrInvalidConfig, c.NumResults)
	}
	if c.TiesWithin != nil && *c.TiesWithin < 0 {
		return fmt.Errorf("%w: ties-within must not be negative, got %g", ErrInvalidConfig, *c.TiesWithin)
	}
	switch c.Text.Phonetic {
	case "", PhoneticSoundex, PhoneticMetaphone:
	default:
		return fmt.Errorf("%w: unknown phonetic encoding %q", ErrInvalidConfig, c.Text.Phonetic)
	}
	if c.Text.TokenLength < 0 {
		return fmt.Errorf("%w: token length must not be negative, got %d", ErrInvalidConfig, c.Text.TokenLength)
	}
	return nil
}

// MatchMode resolves the configured similarity model.
func (c Config) MatchMode() (Mode, error) {
	kind, err := ParseModeKind(string(c.Mode))
	if err != nil {
		return Mode{}, err
	}
	if kind == ModeNGram {
		return NGramMode(c.NGramSize), nil
	}
	return Mode{Kind: kind}, nil
}

// TieRule resolves the configured tie tolerance.
func (c Config) TieRule() TieRule {
	if c.TiesWithin == nil {
		return NoTies()
	}
	return WithinEpsilon(*c.TiesWithin)
}

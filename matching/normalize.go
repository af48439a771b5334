package matching

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Phonetic encodings understood by TextOptions.Phonetic.
const (
	PhoneticSoundex   = "soundex"
	PhoneticMetaphone = "metaphone"
)

// Tokenizer turns a raw name into an ordered list of tokens.
type Tokenizer interface {
	Tokenize(name string) ([]string, error)
}

// NormalizeText performs Unicode normalization and trims whitespace.
func NormalizeText(text string) string {
	normed := norm.NFKC.String(text)
	normed = strings.TrimSpace(normed)
	// Collapse internal control characters except newlines.
	normed = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, normed)
	return normed
}

// Letters without a canonical decomposition that still have an obvious
// ASCII spelling.
var foldReplacer = strings.NewReplacer(
	"ß", "ss", "ẞ", "SS",
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ø", "o", "Ø", "O",
	"ł", "l", "Ł", "L",
	"đ", "d", "Đ", "D",
	"ð", "d", "Ð", "D",
	"þ", "th", "Þ", "TH",
	"ı", "i",
)

// FoldUnicode strips diacritics and spells a few special letters in ASCII.
func FoldUnicode(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return foldReplacer.Replace(folded)
}

// Normalizer is the default Tokenizer: whitespace split followed by per word
// folding, case folding, alphabetic filtering, phonetic encoding and length
// trimming, each controlled by TextOptions. Empty results are dropped.
type Normalizer struct {
	opts TextOptions
}

// NewNormalizer returns a Normalizer for opts.
func NewNormalizer(opts TextOptions) *Normalizer {
	opts.Phonetic = strings.ToLower(strings.TrimSpace(opts.Phonetic))
	return &Normalizer{opts: opts}
}

// Options returns the normalizer's settings.
func (n *Normalizer) Options() TextOptions {
	return n.opts
}

// Tokenize never fails; the error is there to satisfy Tokenizer.
func (n *Normalizer) Tokenize(name string) ([]string, error) {
	words := strings.Fields(name)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if t := n.Word(w); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

// Word normalizes a single word.
func (n *Normalizer) Word(w string) string {
	if !n.opts.RetainUnicode {
		w = FoldUnicode(w)
	}
	if !n.opts.CaseSensitive {
		w = strings.ToLower(w)
	}
	if !n.opts.RetainNonAlphabetic {
		w = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) {
				return r
			}
			return -1
		}, w)
	}
	if w == "" {
		return ""
	}
	switch n.opts.Phonetic {
	case PhoneticSoundex:
		w = matchr.Soundex(w)
	case PhoneticMetaphone:
		primary, secondary := matchr.DoubleMetaphone(w)
		if primary == "" {
			primary = secondary
		}
		w = primary
	}
	if n.opts.TokenLength > 0 {
		if r := []rune(w); len(r) > n.opts.TokenLength {
			w = string(r[:n.opts.TokenLength])
		}
	}
	return w
}

package matching

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// SubwordTokenizer splits names with a pretrained tokenizer.json (WordPiece,
// BPE or Unigram) and then normalizes each piece like Normalizer does.
type SubwordTokenizer struct {
	mu   sync.Mutex
	tk   *tokenizer.Tokenizer
	norm *Normalizer
}

// NewSubwordTokenizer loads the tokenizer definition at path.
func NewSubwordTokenizer(path string, opts TextOptions) (*SubwordTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}
	return &SubwordTokenizer{tk: tk, norm: NewNormalizer(opts)}, nil
}

// Tokenize encodes name without special tokens and strips continuation markers.
func (s *SubwordTokenizer) Tokenize(name string) ([]string, error) {
	s.mu.Lock()
	enc, err := s.tk.EncodeSingle(name, false)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", name, err)
	}
	out := make([]string, 0, len(enc.Tokens))
	for _, piece := range enc.Tokens {
		if t := s.norm.Word(trimPieceMarkers(piece)); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

// trimPieceMarkers removes WordPiece "##", SentencePiece "▁" and byte level
// BPE "Ġ" markers.
func trimPieceMarkers(piece string) string {
	piece = strings.TrimPrefix(piece, "##")
	piece = strings.TrimPrefix(piece, "▁")
	piece = strings.TrimPrefix(piece, "Ġ")
	return piece
}

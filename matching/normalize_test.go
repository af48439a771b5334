package matching

import (
	"reflect"
	"testing"
)

func TestNormalizerTokenize(t *testing.T) {
	tests := []struct {
		name string
		opts TextOptions
		in   string
		want []string
	}{
		{"defaults", TextOptions{}, "  José  O'Neil ", []string{"jose", "oneil"}},
		{"retain unicode", TextOptions{RetainUnicode: true}, "José O'Neil", []string{"josé", "oneil"}},
		{"case sensitive", TextOptions{CaseSensitive: true}, "José O'Neil", []string{"Jose", "ONeil"}},
		{"retain non alphabetic", TextOptions{RetainNonAlphabetic: true}, "José O'Neil", []string{"jose", "o'neil"}},
		{"special letters", TextOptions{}, "Straße Łódź Ærø", []string{"strasse", "lodz", "aero"}},
		{"empty tokens dropped", TextOptions{}, "123 acme -- 7", []string{"acme"}},
		{"token length", TextOptions{TokenLength: 3}, "Jonathan Li", []string{"jon", "li"}},
		{"blank", TextOptions{}, "   ", []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewNormalizer(tc.opts).Tokenize(tc.in)
			if err != nil {
				t.Fatalf("Tokenize: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Tokenize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizerPhonetic(t *testing.T) {
	for _, encoding := range []string{PhoneticSoundex, PhoneticMetaphone} {
		n := NewNormalizer(TextOptions{Phonetic: encoding})
		smith, smyth, jones := n.Word("Smith"), n.Word("Smyth"), n.Word("Jones")
		if smith == "" || smith != smyth {
			t.Errorf("%s: Smith=%q Smyth=%q, want equal non-empty codes", encoding, smith, smyth)
		}
		if smith == jones {
			t.Errorf("%s: Smith and Jones share code %q", encoding, smith)
		}
	}
}

func TestNormalizeText(t *testing.T) {
	if got := NormalizeText("  ＡＢＣ\x00 corp\t"); got != "ABC corp" {
		t.Fatalf("NormalizeText = %q, want %q", got, "ABC corp")
	}
}

func TestNewSubwordTokenizerMissingFile(t *testing.T) {
	if _, err := NewSubwordTokenizer("does-not-exist/tokenizer.json", TextOptions{}); err == nil {
		t.Fatal("expected an error for a missing tokenizer file")
	}
}

func TestTrimPieceMarkers(t *testing.T) {
	for in, want := range map[string]string{"##ing": "ing", "▁john": "john", "Ġsmith": "smith", "plain": "plain"} {
		if got := trimPieceMarkers(in); got != want {
			t.Errorf("trimPieceMarkers(%q) = %q, want %q", in, got, want)
		}
	}
}

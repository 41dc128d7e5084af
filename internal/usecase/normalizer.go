package usecase

import (
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Compiled regex patterns for normalization
var (
	// Apostrophes are dropped so "sainsbury's" becomes "sainsburys"
	apostrophePattern = regexp.MustCompile(`['’‘` + "`" + `]`)

	// Everything that is not a lowercase letter, digit or whitespace.
	// This also removes "%", so "5% fat" keeps only "5 fat".
	nonAlphanumericPattern = regexp.MustCompile(`[^a-z0-9\s]`)
)

// maxNormalizePasses bounds the fixed-point loop in Normalize. Every pass
// either changes nothing or removes characters, so a handful always suffices.
const maxNormalizePasses = 16

// Rules is the data-driven part of normalization: tokens and phrases that
// carry no product identity (retailer brands, marketing qualifiers).
type Rules struct {
	// ReplaceDefaults drops the built-in lists instead of extending them
	ReplaceDefaults bool     `yaml:"replace_defaults"`
	Brands          []string `yaml:"brands"`
	Qualifiers      []string `yaml:"qualifiers"`
}

// DefaultRules returns the built-in removal lists
func DefaultRules() Rules {
	return Rules{
		Brands: []string{
			"tesco", "tesco finest", "sainsburys", "sainsbury", "by sainsburys",
			"taste the difference", "asda", "aldi", "lidl", "morrisons", "waitrose",
			"stamford street", "hubbards foodstore", "hearty food co", "ms mollys",
			"creamfields", "woodside farms", "redmere farms", "nightingale farms",
			"willow farms", "boswell farms", "grower's harvest", "growers harvest",
		},
		Qualifiers: []string{
			"organic", "so organic", "finest", "ready to eat", "smoked", "fresh",
			"british", "essential", "value", "everyday value", "loose", "approx",
			"responsibly sourced", "family pack", "large pack", "handpicked",
		},
	}
}

// Merge layers r on top of base according to r.ReplaceDefaults
func (r Rules) Merge(base Rules) Rules {
	if r.ReplaceDefaults {
		return r
	}
	return Rules{
		Brands:     append(append([]string{}, base.Brands...), r.Brands...),
		Qualifiers: append(append([]string{}, base.Qualifiers...), r.Qualifiers...),
	}
}

// Normalizer canonicalizes product and query names into a comparable
// generic form. A Normalizer is immutable and safe for concurrent use.
type Normalizer struct {
	// removal phrases as token sequences, longest first
	phrases [][]string
}

// NewNormalizer builds a normalizer from the given removal rules.
// Rule entries are cleaned the same way names are, so "Sainsbury's" and
// "sainsburys" are equivalent entries.
func NewNormalizer(rules Rules) *Normalizer {
	seen := make(map[string]bool)
	var phrases [][]string

	for _, entry := range append(append([]string{}, rules.Brands...), rules.Qualifiers...) {
		tokens := strings.Fields(cleanCharacters(foldCase(entry)))
		if len(tokens) == 0 {
			continue
		}
		key := strings.Join(tokens, " ")
		if seen[key] {
			continue
		}
		seen[key] = true
		phrases = append(phrases, tokens)
	}

	// Longest phrases win so "taste the difference" is removed before "the"
	// could ever be considered on its own.
	sort.SliceStable(phrases, func(i, j int) bool {
		return len(phrases[i]) > len(phrases[j])
	})

	return &Normalizer{phrases: phrases}
}

// Normalize lower-cases raw, strips diacritics, quantity tokens, punctuation
// and removal-list phrases, and collapses whitespace.
//
// The cleaning pass is repeated until nothing changes, which makes
// Normalize idempotent: removing a brand can expose a new quantity token
// ("1 tesco g") and that must be stripped too.
func (n *Normalizer) Normalize(raw string) string {
	s := foldCase(raw)

	for i := 0; i < maxNormalizePasses; i++ {
		next := n.pass(s)
		if next == s {
			break
		}
		s = next
	}

	return s
}

func (n *Normalizer) pass(s string) string {
	s = quantityPattern.ReplaceAllString(s, " ")
	s = cleanCharacters(s)
	return strings.Join(n.removePhrases(strings.Fields(s)), " ")
}

// removePhrases drops every occurrence of a removal phrase from tokens
func (n *Normalizer) removePhrases(tokens []string) []string {
	kept := make([]string, 0, len(tokens))

	for i := 0; i < len(tokens); {
		matched := 0
		for _, phrase := range n.phrases {
			if hasPhraseAt(tokens, i, phrase) {
				matched = len(phrase)
				break
			}
		}
		if matched > 0 {
			i += matched
			continue
		}
		kept = append(kept, tokens[i])
		i++
	}

	return kept
}

func hasPhraseAt(tokens []string, at int, phrase []string) bool {
	if at+len(phrase) > len(tokens) {
		return false
	}
	for j, word := range phrase {
		if tokens[at+j] != word {
			return false
		}
	}
	return true
}

// foldCase lower-cases s and strips diacritics ("Jalapeño" -> "jalapeno")
func foldCase(s string) string {
	decomposed := norm.NFD.String(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}

// cleanCharacters removes apostrophes and replaces other punctuation with spaces
func cleanCharacters(s string) string {
	s = apostrophePattern.ReplaceAllString(s, "")
	return nonAlphanumericPattern.ReplaceAllString(s, " ")
}

// NormalizerHolder publishes the current normalizer. Rule reloads store a
// new value; readers always see a complete normalizer.
type NormalizerHolder struct {
	current atomic.Pointer[Normalizer]
}

// NewNormalizerHolder creates a holder seeded with n
func NewNormalizerHolder(n *Normalizer) *NormalizerHolder {
	h := &NormalizerHolder{}
	h.current.Store(n)
	return h
}

// Load returns the current normalizer
func (h *NormalizerHolder) Load() *Normalizer {
	return h.current.Load()
}

// Store replaces the current normalizer
func (h *NormalizerHolder) Store(n *Normalizer) {
	h.current.Store(n)
}

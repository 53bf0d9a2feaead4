package tfidf

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"schemarag/internal/domain"
)

// ModelName is the model identity prefix of TF-IDF embedders.
const ModelName = "tfidf"

var (
	// ErrNotFitted is returned when embedding with an embedder that has no vocabulary.
	ErrNotFitted = errors.New("tfidf embedder not fitted")
	// ErrEmptyCorpus is returned when fitting on no documents.
	ErrEmptyCorpus = errors.New("empty corpus for TF-IDF fit")
	// ErrNoTokens is returned when the corpus has no usable tokens.
	ErrNoTokens = errors.New("no tokens found in corpus")
)

// tokenPattern keeps words and snake_case identifiers together, so fact_sales stays one term.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Embedder is a TF-IDF vectorizer. A fitted Embedder is immutable and safe for concurrent use.
type Embedder struct {
	vocabulary map[string]int
	idf        []float64
	model      string
	stopwords  map[string]struct{}
}

var _ domain.CorpusFitter = (*Embedder)(nil)

// NewEmbedder creates an unfitted TF-IDF embedder. Call Fit to obtain a usable one.
func NewEmbedder() *Embedder {
	return &Embedder{model: ModelName, stopwords: defaultStopwords()}
}

// Model returns the identity of this embedder; fitted embedders include a vocabulary fingerprint.
func (e *Embedder) Model() string { return e.model }

// Dimension returns the vocabulary size.
func (e *Embedder) Dimension() int { return len(e.idf) }

// Fit builds the vocabulary and IDF weights from corpus and returns a new embedder.
func (e *Embedder) Fit(corpus []string) (domain.Embedder, error) {
	if len(corpus) == 0 {
		return nil, ErrEmptyCorpus
	}
	stop := e.stopwords
	if stop == nil {
		stop = defaultStopwords()
	}
	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range tokenize(text, stop) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	// Create stable ordering for vocabulary
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	if len(terms) == 0 {
		return nil, ErrNoTokens
	}
	fitted := &Embedder{
		vocabulary: make(map[string]int, len(terms)),
		idf:        make([]float64, len(terms)),
		stopwords:  stop,
	}
	n := float64(len(corpus))
	h := sha1.New()
	for i, term := range terms {
		fitted.vocabulary[term] = i
		// Smoothed IDF
		fitted.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
		h.Write([]byte(term))
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(df[term])))
		h.Write([]byte{0})
	}
	h.Write([]byte(strconv.Itoa(len(corpus))))
	fitted.model = ModelName + ":" + hex.EncodeToString(h.Sum(nil)[:8])
	return fitted, nil
}

// Embed computes the L2-normalized TF-IDF vector of text.
// Text without known terms yields a zero vector.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.vocabulary == nil {
		return nil, ErrNotFitted
	}
	vec := make([]float64, len(e.idf))
	tf := make(map[int]int)
	total := 0
	for _, tok := range tokenize(text, e.stopwords) {
		if idx, ok := e.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	out := make([]float32, len(e.idf))
	if total == 0 {
		return out, nil
	}
	for idx, count := range tf {
		vec[idx] = float64(count) / float64(total) * e.idf[idx]
	}
	// L2 normalize
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func tokenize(text string, stopwords map[string]struct{}) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "how", "e", "g", "s",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Package rag implements the in-memory retrieval index backing the
// rag_search tool. Documents are reduced to token frequency vectors when they
// are added; a search scores every document of a corpus by cosine similarity
// with the query. There is no inverted index: searches are linear in corpus
// size, which is fine for interview knowledge bases.
package rag

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hupe1980/chatreview/core"
)

// Corpus is a named collection of documents.
type Corpus struct {
	ID            string    `json:"id" yaml:"id"`
	Name          string    `json:"name" yaml:"name"`
	Description   string    `json:"description,omitempty" yaml:"description,omitempty"`
	DocumentCount int       `json:"document_count" yaml:"-"`
	Created       time.Time `json:"created_at" yaml:"-"`
}

// Document is an ingested text. Documents are never mutated after Add.
type Document struct {
	ID       string         `json:"id"`
	CorpusID string         `json:"corpus_id"`
	Filename string         `json:"filename"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Created  time.Time      `json:"created_at"`

	vector termVector
}

// Options configure an Index.
type Options struct {
	// SnippetLength is the number of runes of content returned per hit.
	SnippetLength int
	// DefaultTopK is used when a search passes topK <= 0.
	DefaultTopK int
	Tokenizer   Tokenizer
}

// corpus guards its documents with its own lock so ingestion into one corpus
// never blocks searches against another.
type corpus struct {
	mu   sync.RWMutex
	info Corpus
	docs []Document
}

// Index is a process-local multi-corpus retrieval index. It is safe for
// concurrent use: searches share a read lock per corpus, document ingestion
// takes the write lock of that corpus only.
type Index struct {
	mu      sync.RWMutex
	corpora map[string]*corpus
	order   []string
	opts    Options
}

// NewIndex creates an empty index.
func NewIndex(optFns ...func(o *Options)) *Index {
	opts := Options{
		SnippetLength: 500,
		DefaultTopK:   3,
		Tokenizer:     DefaultTokenize,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Index{corpora: make(map[string]*corpus), opts: opts}
}

// CreateCorpus registers a corpus. An empty id gets a generated one; an id
// already in use fails with core.ErrInvalidArgument.
func (ix *Index) CreateCorpus(id, name, description string) (Corpus, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = core.NewID()
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, exists := ix.corpora[id]; exists {
		return Corpus{}, core.Errorf("rag.CreateCorpus", core.ErrInvalidArgument, "corpus %q already exists", id)
	}
	if name == "" {
		name = id
	}
	c := &corpus{info: Corpus{ID: id, Name: name, Description: description, Created: time.Now().UTC()}}
	ix.corpora[id] = c
	ix.order = append(ix.order, id)
	return c.info, nil
}

// Corpora lists corpora in creation order.
func (ix *Index) Corpora() []Corpus {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Corpus, 0, len(ix.order))
	for _, id := range ix.order {
		out = append(out, ix.corpora[id].describe())
	}
	return out
}

// Corpus returns corpus metadata or core.ErrNotFound.
func (ix *Index) Corpus(id string) (Corpus, error) {
	c, err := ix.lookup("rag.Corpus", id)
	if err != nil {
		return Corpus{}, err
	}
	return c.describe(), nil
}

// AddDocument tokenizes content and appends it to the corpus.
func (ix *Index) AddDocument(corpusID, filename, content string, metadata map[string]any) (Document, error) {
	c, err := ix.lookup("rag.AddDocument", corpusID)
	if err != nil {
		return Document{}, err
	}
	doc := Document{
		ID:       core.NewID(),
		CorpusID: corpusID,
		Filename: filename,
		Content:  content,
		Metadata: metadata,
		Created:  time.Now().UTC(),
		vector:   newTermVector(ix.opts.Tokenizer(content)),
	}
	c.mu.Lock()
	c.docs = append(c.docs, doc)
	c.mu.Unlock()
	return doc, nil
}

// Documents lists the documents of a corpus in insertion order.
func (ix *Index) Documents(corpusID string) ([]Document, error) {
	c, err := ix.lookup("rag.Documents", corpusID)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Document, len(c.docs))
	copy(out, c.docs)
	return out, nil
}

// Document returns one document or core.ErrNotFound.
func (ix *Index) Document(corpusID, documentID string) (Document, error) {
	docs, err := ix.Documents(corpusID)
	if err != nil {
		return Document{}, err
	}
	for _, d := range docs {
		if d.ID == documentID {
			return d, nil
		}
	}
	return Document{}, core.Errorf("rag.Document", core.ErrNotFound, "document %q not found in corpus %q", documentID, corpusID)
}

// Search implements core.Retriever. Results are ordered by descending
// similarity; ties keep insertion order. An empty corpus yields an empty,
// non-nil slice.
func (ix *Index) Search(ctx context.Context, corpusID, query string, topK int) ([]core.SearchResult, error) {
	c, err := ix.lookup("rag.Search", corpusID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, core.E("rag.Search", core.ErrTimeout, err)
	}
	if topK <= 0 {
		topK = ix.opts.DefaultTopK
	}
	q := newTermVector(ix.opts.Tokenizer(query))

	type hit struct {
		doc   *Document
		score float64
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	hits := make([]hit, len(c.docs))
	for i := range c.docs {
		hits[i] = hit{doc: &c.docs[i], score: cosine(q, c.docs[i].vector)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if len(hits) > topK {
		hits = hits[:topK]
	}
	results := make([]core.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, core.SearchResult{
			DocumentID: h.doc.ID,
			Filename:   h.doc.Filename,
			Snippet:    truncateRunes(h.doc.Content, ix.opts.SnippetLength),
			Score:      h.score,
		})
	}
	return results, nil
}

func (ix *Index) lookup(op, id string) (*corpus, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c, ok := ix.corpora[id]
	if !ok {
		return nil, core.Errorf(op, core.ErrNotFound, "corpus %q not found", id)
	}
	return c, nil
}

func (c *corpus) describe() Corpus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info := c.info
	info.DocumentCount = len(c.docs)
	return info
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

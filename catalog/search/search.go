// Package search is the in-memory full-text index over video titles, tags
// and people.
package search

import (
	"context"
	"strings"

	bleve "github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Index field names.
const (
	fieldID         = "id"
	fieldTitle      = "title"
	fieldTitleExact = "title_exact"
	fieldTags       = "tags"
	fieldPerson     = "person"
)

// Search holds a bleve index of the catalog.
type Search struct {
	index bleve.Index
}

// Document is what gets indexed per video. All strings are lowercase.
type Document struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	TitleExact string   `json:"title_exact"`
	Tags       []string `json:"tags"`
	Person     string   `json:"person"`
}

// New returns an empty in-memory index.
func New() (*Search, error) {
	idx, err := bleve.NewMemOnly(indexMapping())
	if err != nil {
		return nil, err
	}
	return &Search{index: idx}, nil
}

func indexMapping() mapping.IndexMapping {
	// titles and people are free text
	text := bleve.NewTextFieldMapping()
	text.Analyzer = "standard"
	text.Store = false

	// ids, whole titles and tags only match as a whole
	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"
	keyword.Store = false

	video := bleve.NewDocumentMapping()
	video.AddFieldMappingsAt(fieldID, keyword)
	video.AddFieldMappingsAt(fieldTitle, text)
	video.AddFieldMappingsAt(fieldTitleExact, keyword)
	video.AddFieldMappingsAt(fieldTags, keyword)
	video.AddFieldMappingsAt(fieldPerson, text)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = video
	return m
}

// Index adds docs to the index in one batch.
func (b *Search) Index(ctx context.Context, docs []Document) error {
	batch := b.index.NewBatch()
	for _, d := range docs {
		if err := batch.Index(d.ID, d); err != nil {
			return err
		}
	}
	return b.index.Batch(batch)
}

type fieldQuery interface {
	query.FieldableQuery
	SetBoost(b float64)
}

// Search returns up to size video ids matching term, best match first.
// An empty term matches nothing.
func (b *Search) Search(ctx context.Context, term string, size int) ([]string, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(buildQuery(term), size, 0, false)
	req.SortBy([]string{"-_score", "_id"})
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

// buildQuery ranks an exact title above a title phrase, a title prefix, a
// tag, and finally fuzzy matches on single words.
func buildQuery(term string) query.Query {
	bq := bleve.NewBooleanQuery()
	should := func(q fieldQuery, field string, boost float64) {
		q.SetField(field)
		q.SetBoost(boost)
		bq.AddShould(q)
	}

	should(bleve.NewTermQuery(term), fieldTitleExact, 50)
	should(bleve.NewMatchPhraseQuery(term), fieldTitle, 12)
	should(bleve.NewPrefixQuery(term), fieldTitle, 6)
	should(bleve.NewTermQuery(term), fieldTags, 4)

	for _, word := range strings.Fields(term) {
		should(bleve.NewTermQuery(word), fieldTags, 4)
		should(bleve.NewPrefixQuery(word), fieldTitle, 3)
		should(fuzzy(word), fieldTitle, 3)
		should(bleve.NewPrefixQuery(word), fieldPerson, 1)
		should(fuzzy(word), fieldPerson, 1)
	}
	bq.SetMinShould(1)
	return bq
}

// fuzzy allows one typo in short words and two in longer ones.
func fuzzy(word string) *query.FuzzyQuery {
	q := bleve.NewFuzzyQuery(word)
	if len(word) >= 6 {
		q.SetFuzziness(2)
	} else {
		q.SetFuzziness(1)
	}
	return q
}

// Close releases the index.
func (b *Search) Close() error {
	return b.index.Close()
}

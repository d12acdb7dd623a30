package model

import "sort"

// Chunk is one page excerpt of an indexed PDF report.
type Chunk struct {
	Doc       string    `json:"doc"`
	Page      int       `json:"page"`
	Text      string    `json:"text"`
	Embedding []float64 `json:"embedding"`
}

// Index is the document-embedding index used by the Q&A page.
type Index struct {
	Chunks []Chunk
}

// Docs returns the distinct document names, sorted.
func (ix *Index) Docs() []string {
	if ix == nil {
		return nil
	}
	seen := make(map[string]bool)
	var docs []string
	for _, c := range ix.Chunks {
		if c.Doc == "" || seen[c.Doc] {
			continue
		}
		seen[c.Doc] = true
		docs = append(docs, c.Doc)
	}
	sort.Strings(docs)
	return docs
}

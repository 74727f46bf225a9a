package vectorstore

// Document is a chunk of text with scalar metadata.
type Document struct {
	// Content is the document text.
	Content string `json:"content"`

	// Metadata holds string, integer, float or bool values.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ScoredDocument is a search hit.
type ScoredDocument struct {
	Document
	Score float32 `json:"score"`
}

// GetResult is the uniform shape returned by GetByFilter. The three slices
// always have the same length and are index aligned.
type GetResult struct {
	Documents []string         `json:"documents"`
	Metadatas []map[string]any `json:"metadatas"`
	IDs       []string         `json:"ids"`
}

// Len returns the number of records.
func (r *GetResult) Len() int {
	return len(r.IDs)
}

func (r *GetResult) add(id, content string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	r.IDs = append(r.IDs, id)
	r.Documents = append(r.Documents, content)
	r.Metadatas = append(r.Metadatas, metadata)
}

func newGetResult() *GetResult {
	return &GetResult{
		Documents: []string{},
		Metadatas: []map[string]any{},
		IDs:       []string{},
	}
}

package domain

// Collection names used by the hybrid artifact search.
const (
	CollectionTitle       = "title"
	CollectionDescription = "description"
	CollectionContent     = "content"
)

// DocumentEmbedding is one embedded document of a collection.
type DocumentEmbedding struct {
	ID     string    `json:"id"`
	Text   string    `json:"doc"`
	Vector []float32 `json:"-"`
}

// SimilarityResult is a single hit of a collection query or a fused ranking.
type SimilarityResult struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	Collection string  `json:"collection,omitempty"`
}

// RelevanceVerdict is the judged relevance of one candidate id.
type RelevanceVerdict struct {
	ID       string
	Relevant bool
}

// Package notes implements the note-processing stages of notepipe: the source of exported
// notes, the per-item stage workers, the model service clients and the merged dataset export.
package notes

import "time"

// Note is one exported note as read from the source storage.
type Note struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// RawNote is the RAW_EXPORT artifact: the source note pinned to its item id.
type RawNote struct {
	ID        int       `json:"id"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Enrichment is the ENRICHMENT artifact returned by the completion service.
type Enrichment struct {
	ID      int      `json:"id"`
	Model   string   `json:"model,omitempty"`
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// Embedding is the CLUSTERING artifact returned by the embedding service.
type Embedding struct {
	ID     int       `json:"id"`
	Model  string    `json:"model,omitempty"`
	Vector []float64 `json:"vector"`
}

// MergedNote is the FINAL_MERGE artifact. It is also the row type of the parquet export.
type MergedNote struct {
	ID        int64     `json:"id" parquet:"name=id, type=INT64"`
	Source    string    `json:"source" parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
	Title     string    `json:"title" parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8"`
	Body      string    `json:"body" parquet:"name=body, type=BYTE_ARRAY, convertedtype=UTF8"`
	Summary   string    `json:"summary" parquet:"name=summary, type=BYTE_ARRAY, convertedtype=UTF8"`
	Tags      []string  `json:"tags" parquet:"name=tags, type=MAP, convertedtype=LIST, valuetype=BYTE_ARRAY, valueconvertedtype=UTF8"`
	Embedding []float64 `json:"embedding" parquet:"name=embedding, type=MAP, convertedtype=LIST, valuetype=DOUBLE"`
	MergedAt  int64     `json:"merged_at" parquet:"name=merged_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

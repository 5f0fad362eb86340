// Package kb is the boundary to the external knowledge base that answers
// questions about a paper and recommends researchers for a resume.
package kb

import (
	"context"
	"encoding/json"
)

type KnowledgeBase interface {
	// Chat answers query using only passages from the given document.
	Chat(ctx context.Context, query, documentID string) (*ChatResult, error)
	// Recommend returns the recommendations generated for a resume, as the
	// knowledge base produced them.
	Recommend(ctx context.Context, resumeText string) ([]json.RawMessage, error)
}

type ChatResult struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// Citation ties a span of the generated answer to the passages it was drawn from.
type Citation struct {
	Text       string      `json:"text"`
	References []Reference `json:"references"`
}

type Reference struct {
	Content  string         `json:"content"`
	Location string         `json:"location,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

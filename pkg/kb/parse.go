package kb

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/gjson"
)

// ParseRecommendations extracts the "recommendations" array from generated
// text. Models tend to wrap the JSON in prose or code fences and to emit
// slightly malformed JSON, so both are tolerated. A document without the key
// yields an empty list.
func ParseRecommendations(text string) ([]json.RawMessage, error) {
	doc, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	res := gjson.Get(doc, "recommendations")
	if !res.Exists() || res.Type == gjson.Null {
		return []json.RawMessage{}, nil
	}
	if !res.IsArray() {
		return nil, fmt.Errorf("recommendations is %s, not an array", res.Type)
	}

	out := []json.RawMessage{}
	res.ForEach(func(_, v gjson.Result) bool {
		out = append(out, json.RawMessage(v.Raw))
		return true
	})
	return out, nil
}

func extractJSON(text string) (string, error) {
	s := stripCodeFence(strings.TrimSpace(text))
	if s == "" {
		return "", errors.New("empty output")
	}

	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	if gjson.Valid(s) {
		return s, nil
	}

	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return "", fmt.Errorf("json repair failed: %w", err)
	}
	if !gjson.Valid(repaired) || !gjson.Parse(repaired).IsObject() {
		return "", fmt.Errorf("output is not a JSON object after repair: %q", truncate(repaired, 200))
	}
	return repaired, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

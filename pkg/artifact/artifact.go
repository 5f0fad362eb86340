// Package artifact persists the serialized graph. A Store replaces the
// artifact as a whole: readers see either the previous or the new document,
// never a partial one.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paper-pigeon/backend/pkg/common"
)

// DefaultName is the canonical artifact file name and object key.
const DefaultName = "graph_cache.json"

// ErrReadOnly is returned by Save on stores that must not be written to.
var ErrReadOnly = errors.New("artifact store is read-only")

type Store interface {
	// Load returns the current artifact. It fails with common.KindArtifactMissing
	// when none exists yet.
	Load(ctx context.Context) ([]byte, error)
	// Save atomically replaces the artifact with data.
	Save(ctx context.Context, data []byte) error
	// Writable reports whether Save may be called in this deployment.
	Writable() bool
	// Location names the artifact for logs and lease keys.
	Location() string
}

// Encode serializes a graph in the artifact format. Absent lists encode as [].
func Encode(g common.Graph) ([]byte, error) {
	data, err := json.Marshal(g.Normalize())
	if err != nil {
		return nil, fmt.Errorf("failed to encode graph: %w", err)
	}
	return data, nil
}

// Decode parses an artifact. Unknown node types are rejected.
func Decode(data []byte) (common.Graph, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return common.Graph{}, errors.New("empty artifact")
	}

	var g common.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return common.Graph{}, fmt.Errorf("failed to decode graph: %w", err)
	}
	return g.Normalize(), nil
}

func missing(op string, err error) error {
	return common.E(common.KindArtifactMissing, op, err)
}

func persistFailed(op string, err error) error {
	return common.E(common.KindPersistFailed, op, err)
}

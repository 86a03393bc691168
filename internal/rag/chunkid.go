package rag

import (
	"fmt"

	"github.com/google/uuid"
)

// ChunkID returns the deterministic point ID of chunk i of a source: the
// version-5 UUID of "<sourceID>: <i>" in the URL namespace. Re-ingesting a
// source therefore overwrites its points instead of duplicating them.
func ChunkID(sourceID string, i int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s: %d", sourceID, i))).String()
}

// ChunkIDs returns ChunkID(sourceID, i) for i in [0, n).
func ChunkIDs(sourceID string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = ChunkID(sourceID, i)
	}
	return ids
}

// ChunkPayloads builds the stored payload of every chunk.
func ChunkPayloads(sourceID string, chunks []string) []map[string]any {
	out := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		out[i] = map[string]any{"source": sourceID, "text": c}
	}
	return out
}

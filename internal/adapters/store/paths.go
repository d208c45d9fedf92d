package store

import (
	"strconv"
	"strings"
)

// DefaultRoot is the root of every storage path.
const DefaultRoot = "sessions"

// Paths builds storage locations under a root.
type Paths struct {
	Root string
}

// NewPaths returns Paths rooted at root, or DefaultRoot when empty.
func NewPaths(root string) Paths {
	root = strings.Trim(root, "/")
	if root == "" {
		root = DefaultRoot
	}
	return Paths{Root: root}
}

// Samples is {root}/{session}/samples.
func (p Paths) Samples(session string) string {
	return p.Root + "/" + session + "/samples"
}

// Sample is {root}/{session}/samples/{key}.
func (p Paths) Sample(session, key string) string {
	return p.Samples(session) + "/" + key
}

// Batches is {root}/{session}/batches.
func (p Paths) Batches(session string) string {
	return p.Root + "/" + session + "/batches"
}

// Batch is {root}/{session}/batches/{timestampMs}.
func (p Paths) Batch(session string, timestampMs int64) string {
	return p.Batches(session) + "/" + strconv.FormatInt(timestampMs, 10)
}

// Prediction is {root}/predictions/latest.
func (p Paths) Prediction() string {
	return p.Root + "/predictions/latest"
}

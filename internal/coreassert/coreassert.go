// Package coreassert implements the append-only, last-write-wins-per-topic
// log of persistent assertions: LRU-evicted at 20 topics, compacted at
// session start.
package coreassert

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/boshu2/agentops/internal/atomicio"
)

// MaxTopics is the LRU cap on distinct topics retained.
const MaxTopics = 20

// Assertion is one entry in the append-only log.
type Assertion struct {
	Topic string    `json:"topic"`
	Value string    `json:"value"`
	Ts    time.Time `json:"ts"`
}

// Store reads and writes the core-assertions.jsonl file for one project.
type Store struct {
	Path string
}

// NewStore builds a Store for path (…/memory/<project-id>/core-assertions.jsonl).
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Upsert appends a new assertion for topic. Because reads always take the
// last-write-wins value per topic, this is equivalent to an update without
// needing to rewrite the file in place.
func (s *Store) Upsert(topic, value string) error {
	return atomicio.AppendJSONL(s.Path, Assertion{Topic: topic, Value: value, Ts: time.Now().UTC()})
}

// Latest returns the most recent assertion recorded for every topic,
// last-write-wins.
func (s *Store) Latest() (map[string]Assertion, error) {
	latest := make(map[string]Assertion)
	err := atomicio.ReadLines(s.Path, func(line []byte) error {
		var a Assertion
		if jsonErr := json.Unmarshal(line, &a); jsonErr != nil {
			return nil // tolerate malformed lines
		}
		if existing, ok := latest[a.Topic]; !ok || a.Ts.After(existing.Ts) {
			latest[a.Topic] = a
		}
		return nil
	})
	return latest, err
}

// Compact rewrites the log to hold only the latest assertion per topic,
// LRU-evicting topics beyond MaxTopics (least-recently-asserted first).
// Called once at session start, never mid-flight.
func (s *Store) Compact() error {
	latest, err := s.Latest()
	if err != nil {
		return err
	}

	topics := make([]Assertion, 0, len(latest))
	for _, a := range latest {
		topics = append(topics, a)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Ts.After(topics[j].Ts) })
	if len(topics) > MaxTopics {
		topics = topics[:MaxTopics]
	}
	// Restore chronological order for the rewritten file.
	sort.Slice(topics, func(i, j int) bool { return topics[i].Ts.Before(topics[j].Ts) })

	return rewriteJSONL(s.Path, topics)
}

// rewriteJSONL replaces path's contents with one JSON-encoded line per
// entry, via temp-file-then-rename so a crash mid-compaction never leaves a
// truncated log.
func rewriteJSONL(path string, entries []Assertion) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	var buf bytes.Buffer
	for _, a := range entries {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath) //nolint:errcheck // cleanup on error path
		}
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close() //nolint:errcheck // cleanup in error path
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // cleanup in error path
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	success = true
	return nil
}

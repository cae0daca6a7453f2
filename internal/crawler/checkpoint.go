package crawler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hcmut-tools/lmscrawl/internal/model"
)

// Output collection file names, relative to the output directory.
const (
	// CoursesFile accumulates every Course record across runs.
	CoursesFile = "all_courses.json"

	// UsersFile accumulates every User record across runs.
	UsersFile = "all_users.json"

	// EdgesFile accumulates every UserCourseEdge observation across runs.
	EdgesFile = "users_courses.json"
)

// Checkpoint merges newly collected records into the persisted JSON
// collections. It is used once at the end of a normal run and after every
// batch in brute-force mode.
//
// Semantics are append, not set union: merging the same records twice
// duplicates them. That is intentional -- the collections accumulate
// observations, and deduplication happens upstream (processed sets) or
// downstream (consumers of the edge list).
//
// The three files are not written transactionally. A crash between two
// writes leaves them inconsistent relative to each other, which is
// acceptable because no collection is ever truncated, only appended to, so
// the next read-merge-write is safe for each file independently.
type Checkpoint struct {
	dir    string
	logger *slog.Logger
}

// NewCheckpoint creates a Checkpoint writing into dir.
func NewCheckpoint(dir string, logger *slog.Logger) *Checkpoint {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checkpoint{dir: dir, logger: logger}
}

// Merge read-merges-writes each of the three collections.
// An absent or unparseable existing file is treated as an empty collection,
// never as a fatal error: a half-written file from an interrupted run must
// not block future checkpoints.
func (c *Checkpoint) Merge(courses []model.Course, users []model.User, edges []model.UserCourseEdge) error {
	c.logger.Info("checkpoint started",
		"new_courses", len(courses),
		"new_users", len(users),
		"new_edges", len(edges),
	)

	if err := mergeCollection(c, CoursesFile, courses); err != nil {
		return err
	}
	if err := mergeCollection(c, UsersFile, users); err != nil {
		return err
	}
	if err := mergeCollection(c, EdgesFile, edges); err != nil {
		return err
	}

	c.logger.Info("checkpoint finished")
	return nil
}

// mergeCollection appends items to the JSON array stored in name and writes
// the merged array back with human-readable indentation.
func mergeCollection[T any](c *Checkpoint, name string, items []T) error {
	path := filepath.Join(c.dir, name)

	existing := []T{}
	data, err := os.ReadFile(path) //nolint:gosec // Path is under the configured output dir
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(data, &existing); jsonErr != nil {
			c.logger.Warn("existing collection unparseable, treating as empty",
				"file", name,
				"error", jsonErr,
			)
			existing = []T{}
		}
	case os.IsNotExist(err):
		// First checkpoint for this collection.
	default:
		c.logger.Warn("existing collection unreadable, treating as empty",
			"file", name,
			"error", err,
		)
	}

	merged := append(existing, items...)

	out, err := json.MarshalIndent(merged, "", "    ")
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", name, err)
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("write collection %s: %w", name, err)
	}

	c.logger.Debug("collection merged", "file", name, "appended", len(items), "total", len(merged))
	return nil
}

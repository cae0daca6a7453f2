// Package search implements the keyword-filter utility over the archived
// output collections. It is read-only tooling layered on the crawl output
// and has no bearing on the crawl engine itself.
package search

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hcmut-tools/lmscrawl/internal/crawler"
	"github.com/hcmut-tools/lmscrawl/internal/model"
)

// Dataset names a searchable output collection.
type Dataset string

// Searchable datasets.
const (
	DatasetCourses Dataset = "courses"
	DatasetUsers   Dataset = "users"
	DatasetEdges   Dataset = "edges"
)

// Datasets lists the valid dataset names in display order.
func Datasets() []Dataset {
	return []Dataset{DatasetCourses, DatasetUsers, DatasetEdges}
}

// Table is a filtered view of one dataset, ready for display.
type Table struct {
	// Name is the dataset name.
	Name string

	// Columns are the header labels.
	Columns []string

	// Rows hold one entry per matching record, cells aligned to Columns.
	Rows [][]string

	// Total is the unfiltered record count of the dataset.
	Total int
}

// Index holds the loaded output collections.
type Index struct {
	courses []model.Course
	users   []model.User
	edges   []model.UserCourseEdge
}

// Load reads the three output collections from dir. An absent or
// unparseable file loads as an empty dataset, mirroring how the checkpoint
// writer treats them; searching a directory no crawl has written to is not
// an error, just empty results.
func Load(dir string) (*Index, error) {
	idx := &Index{}
	if err := loadCollection(filepath.Join(dir, crawler.CoursesFile), &idx.courses); err != nil {
		return nil, err
	}
	if err := loadCollection(filepath.Join(dir, crawler.UsersFile), &idx.users); err != nil {
		return nil, err
	}
	if err := loadCollection(filepath.Join(dir, crawler.EdgesFile), &idx.edges); err != nil {
		return nil, err
	}
	return idx, nil
}

// loadCollection decodes a JSON array file into out, tolerating absence and
// corruption.
func loadCollection(path string, out any) error {
	data, err := os.ReadFile(path) //nolint:gosec // Path is under the user-chosen output dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read collection %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		// Half-written collections stay searchable as empty rather than
		// blocking the tool.
		return nil
	}
	return nil
}

// Search filters the named dataset by a case-insensitive substring match
// across every string field of each record. An empty keyword matches all
// records.
func (idx *Index) Search(dataset Dataset, keyword string) (Table, error) {
	needle := strings.ToLower(strings.TrimSpace(keyword))

	switch dataset {
	case DatasetCourses:
		return idx.searchCourses(needle), nil
	case DatasetUsers:
		return idx.searchUsers(needle), nil
	case DatasetEdges:
		return idx.searchEdges(needle), nil
	default:
		return Table{}, fmt.Errorf("unknown dataset %q (valid: courses, users, edges)", dataset)
	}
}

func (idx *Index) searchCourses(needle string) Table {
	t := Table{
		Name:    string(DatasetCourses),
		Columns: []string{"course_id", "course_name", "teachers_text", "teacher_links"},
		Total:   len(idx.courses),
	}
	for _, c := range idx.courses {
		row := []string{c.CourseID, c.CourseName, c.TeachersText, strconv.Itoa(len(c.TeacherLinks))}
		if rowMatches(needle, c.CourseID, c.CourseName, c.TeachersText, strings.Join(c.TeacherLinks, " ")) {
			t.Rows = append(t.Rows, row)
		}
	}
	return t
}

func (idx *Index) searchUsers(needle string) Table {
	t := Table{
		Name:    string(DatasetUsers),
		Columns: []string{"user_id", "teacher_name", "role", "profile_details", "course_links"},
		Total:   len(idx.users),
	}
	for _, u := range idx.users {
		details := flattenDetails(u.ProfileDetails)
		row := []string{u.UserID, u.TeacherName, u.Role, details, strconv.Itoa(len(u.CourseLinks))}
		if rowMatches(needle, u.UserID, u.TeacherName, u.Role, details, strings.Join(u.CourseLinks, " ")) {
			t.Rows = append(t.Rows, row)
		}
	}
	return t
}

func (idx *Index) searchEdges(needle string) Table {
	t := Table{
		Name:    string(DatasetEdges),
		Columns: []string{"user_id", "course_id"},
		Total:   len(idx.edges),
	}
	for _, e := range idx.edges {
		if rowMatches(needle, e.UserID, e.CourseID) {
			t.Rows = append(t.Rows, []string{e.UserID, e.CourseID})
		}
	}
	return t
}

// rowMatches reports whether any field contains the needle.
func rowMatches(needle string, fields ...string) bool {
	if needle == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// flattenDetails renders a profile-details map as "key: value" pairs in a
// stable key order.
func flattenDetails(details map[string]string) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+": "+details[k])
	}
	return strings.Join(pairs, "; ")
}

// DatasetInfo describes one dataset for the info summary.
type DatasetInfo struct {
	Name    string
	Records int
	Columns []string
}

// Info returns record counts and columns for every dataset.
func (idx *Index) Info() []DatasetInfo {
	return []DatasetInfo{
		{Name: string(DatasetCourses), Records: len(idx.courses), Columns: []string{"course_id", "course_name", "teachers_text", "teacher_links"}},
		{Name: string(DatasetUsers), Records: len(idx.users), Columns: []string{"user_id", "teacher_name", "role", "profile_details", "course_links"}},
		{Name: string(DatasetEdges), Records: len(idx.edges), Columns: []string{"user_id", "course_id"}},
	}
}

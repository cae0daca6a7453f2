package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hcmut-tools/lmscrawl/internal/config"
	"github.com/hcmut-tools/lmscrawl/internal/htmlstore"
	"github.com/hcmut-tools/lmscrawl/internal/model"
)

const testBaseURL = "https://lms.example.edu"

// fakeFetcher serves canned pages keyed by exact URL and records every call.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if page, ok := f.pages[url]; ok {
		return page, nil
	}
	return "", fmt.Errorf("no page for %s", url)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeRecorder collects fetch-log records in memory.
type fakeRecorder struct {
	mu      sync.Mutex
	records []string
}

func (r *fakeRecorder) Record(_ context.Context, category, entityID, _ string, cached, ok bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, fmt.Sprintf("%s/%s cached=%t ok=%t", category, entityID, cached, ok))
	return nil
}

func listingPage(categoryIDs ...string) string {
	var sb strings.Builder
	sb.WriteString(`<html><body><select class="urlselect">`)
	for _, id := range categoryIDs {
		fmt.Fprintf(&sb, `<option value="/course/index.php?categoryid=%s">HK251 / Khoa %s / Nganh %s</option>`, id, id, id)
	}
	sb.WriteString(`</select></body></html>`)
	return sb.String()
}

func semesterPage(courseIDs ...string) string {
	var sb strings.Builder
	sb.WriteString(`<html><body>`)
	for _, id := range courseIDs {
		fmt.Fprintf(&sb, `<a class="aalink" href="/course/view.php?id=%s">Course %s</a>`, id, id)
	}
	sb.WriteString(`</body></html>`)
	return sb.String()
}

func coursePage(name string, teacherIDs ...string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<html><body><h3 class="coursename">%s</h3><ul class="teachers">`, name)
	for _, id := range teacherIDs {
		fmt.Fprintf(&sb, `<li><a href="/user/profile.php?id=%s">Teacher %s</a></li>`, id, id)
	}
	sb.WriteString(`</ul></body></html>`)
	return sb.String()
}

func userPage(name string, courseIDs ...string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<html><body><div class="page-header-headings">%s</div><div class="profile_tree"><section><dl><dt>Email address</dt><dd>%s@example.edu</dd></dl></section><section><ul>`, name, name)
	for _, id := range courseIDs {
		fmt.Fprintf(&sb, `<li><a href="/course/view.php?course=%s">Course %s</a></li>`, id, id)
	}
	sb.WriteString(`</ul></section></div></body></html>`)
	return sb.String()
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.NewConfig()
	cfg.BaseURL = testBaseURL
	cfg.Cookie = "MoodleSession=test"
	cfg.Workers = 1
	cfg.OutputDir = t.TempDir()
	cfg.SeedFile = ""
	return cfg
}

func newTestStore(t *testing.T) *htmlstore.Store {
	t.Helper()

	store, err := htmlstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("htmlstore.New() error = %v", err)
	}
	return store
}

// crawlPages is the fixture graph for the normal-mode tests:
// two semesters sharing course 101, course 200 reachable only through user
// 7's profile.
func crawlPages() map[string]string {
	return map[string]string{
		testBaseURL + "/course/": listingPage("10", "11"),

		testBaseURL + "/course/index.php?categoryid=10&perpage=all": semesterPage("100", "101"),
		testBaseURL + "/course/index.php?categoryid=11&perpage=all": semesterPage("101", "102"),

		testBaseURL + "/enrol/index.php?id=100": coursePage("Giai Tich 1", "7"),
		testBaseURL + "/enrol/index.php?id=101": coursePage("Vat Ly 1", "7", "8"),
		testBaseURL + "/enrol/index.php?id=102": coursePage("Hoa Dai Cuong"),
		testBaseURL + "/enrol/index.php?id=200": coursePage("Giai Tich 2", "7"),

		testBaseURL + "/user/profile.php?id=7&showallcourses=1": userPage("NguyenVanA", "100", "200"),
		testBaseURL + "/user/profile.php?id=8&showallcourses=1": userPage("TranThiB"),
	}
}

func readCollection[T any](t *testing.T, dir, name string) []T {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("decode %s: %v", name, err)
	}
	return items
}

// TestOrchestratorRunNormal tests the full link-following pipeline over the
// fixture graph.
func TestOrchestratorRunNormal(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t)
	store := newTestStore(t)
	fetcher := &fakeFetcher{pages: crawlPages()}
	recorder := &fakeRecorder{}

	o := New(cfg, fetcher, store, discardLogger(), WithFetchRecorder(recorder))
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	stats := o.Stats()
	if stats.SemestersDiscovered != 2 {
		t.Errorf("SemestersDiscovered = %d, want 2", stats.SemestersDiscovered)
	}
	if stats.CoursesProcessed != 4 {
		t.Errorf("CoursesProcessed = %d, want 4 (100, 101, 102, 200)", stats.CoursesProcessed)
	}
	if stats.UsersProcessed != 2 {
		t.Errorf("UsersProcessed = %d, want 2", stats.UsersProcessed)
	}
	if stats.EdgesRecorded != 2 {
		t.Errorf("EdgesRecorded = %d, want 2", stats.EdgesRecorded)
	}
	// 2 semesters + 4 courses + 2 users; the listing fetch is discovery,
	// not an archived page.
	if stats.PagesFetched != 8 {
		t.Errorf("PagesFetched = %d, want 8", stats.PagesFetched)
	}
	if stats.CacheHits != 0 {
		t.Errorf("CacheHits = %d, want 0 on a cold archive", stats.CacheHits)
	}
	if len(stats.FailedURLs) != 0 {
		t.Errorf("FailedURLs = %v, want none", stats.FailedURLs)
	}
	if stats.FinishedAt.Before(stats.StartedAt) {
		t.Error("FinishedAt before StartedAt")
	}

	courses := readCollection[model.Course](t, cfg.OutputDir, CoursesFile)
	if len(courses) != 4 {
		t.Errorf("persisted %d courses, want 4", len(courses))
	}
	users := readCollection[model.User](t, cfg.OutputDir, UsersFile)
	if len(users) != 2 {
		t.Errorf("persisted %d users, want 2", len(users))
	}
	edges := readCollection[model.UserCourseEdge](t, cfg.OutputDir, EdgesFile)
	if len(edges) != 2 {
		t.Fatalf("persisted %d edges, want 2", len(edges))
	}
	for _, e := range edges {
		if e.UserID != "7" {
			t.Errorf("edge user = %q, want %q", e.UserID, "7")
		}
	}

	// Every crawled entity is archived as raw HTML.
	for _, key := range []struct{ category, id string }{
		{htmlstore.CategorySemesters, "10"},
		{htmlstore.CategorySemesters, "11"},
		{htmlstore.CategoryCourses, "100"},
		{htmlstore.CategoryCourses, "200"},
		{htmlstore.CategoryUsers, "7"},
		{htmlstore.CategoryUsers, "8"},
	} {
		if !store.Exists(key.category, key.id) {
			t.Errorf("archive missing %s/%s", key.category, key.id)
		}
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.records) != 8 {
		t.Errorf("fetch log has %d records, want 8: %v", len(recorder.records), recorder.records)
	}
}

// TestOrchestratorCacheReuse tests that a second run over the same archive
// serves everything but the listing from cache.
func TestOrchestratorCacheReuse(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t)
	store := newTestStore(t)
	fetcher := &fakeFetcher{pages: crawlPages()}

	first := New(cfg, fetcher, store, discardLogger())
	if err := first.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	callsAfterFirst := fetcher.callCount()

	second := New(cfg, fetcher, store, discardLogger())
	if err := second.Run(context.Background()); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	// Only the semester listing goes to the network again.
	if got := fetcher.callCount() - callsAfterFirst; got != 1 {
		t.Errorf("second run made %d fetches, want 1 (the listing)", got)
	}

	stats := second.Stats()
	if stats.PagesFetched != 0 {
		t.Errorf("second run PagesFetched = %d, want 0", stats.PagesFetched)
	}
	if stats.CacheHits != 8 {
		t.Errorf("second run CacheHits = %d, want 8", stats.CacheHits)
	}

	// Checkpoints append: the second run duplicates the collections.
	courses := readCollection[model.Course](t, cfg.OutputDir, CoursesFile)
	if len(courses) != 8 {
		t.Errorf("persisted %d courses after two runs, want 8", len(courses))
	}
}

// TestOrchestratorCachedListing tests that a saved listing page short-circuits
// semester discovery entirely.
func TestOrchestratorCachedListing(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t)
	store := newTestStore(t)

	pages := crawlPages()
	delete(pages, testBaseURL+"/course/")
	if err := store.Write(htmlstore.CategorySemesters, "discover_semester_result", listingPage("10", "11")); err != nil {
		t.Fatal(err)
	}

	o := New(cfg, &fakeFetcher{pages: pages}, store, discardLogger())
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := o.Stats().SemestersDiscovered; got != 2 {
		t.Errorf("SemestersDiscovered = %d, want 2", got)
	}
}

// TestOrchestratorNoSemesters tests the fatal discovery failures.
func TestOrchestratorNoSemesters(t *testing.T) {
	t.Parallel()

	t.Run("empty catalog", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t)
		fetcher := &fakeFetcher{pages: map[string]string{
			testBaseURL + "/course/": `<html><body><select class="urlselect"><option value="">Choose</option></select></body></html>`,
		}}

		o := New(cfg, fetcher, newTestStore(t), discardLogger())
		if err := o.Run(context.Background()); !errors.Is(err, ErrNoSemesters) {
			t.Errorf("Run() error = %v, want ErrNoSemesters", err)
		}
	})

	t.Run("login page instead of catalog", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t)
		fetcher := &fakeFetcher{pages: map[string]string{
			testBaseURL + "/course/": `<html><body><form>Please log in</form></body></html>`,
		}}

		o := New(cfg, fetcher, newTestStore(t), discardLogger())
		if err := o.Run(context.Background()); err == nil {
			t.Error("Run() = nil error for a catalog-less page")
		}
	})

	t.Run("listing fetch failure", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t)
		o := New(cfg, &fakeFetcher{pages: map[string]string{}}, newTestStore(t), discardLogger())
		if err := o.Run(context.Background()); err == nil {
			t.Error("Run() = nil error when the listing cannot be fetched")
		}
	})
}

// TestOrchestratorSurvivesItemFailure tests that one unreachable course is
// abandoned without losing the rest of the crawl.
func TestOrchestratorSurvivesItemFailure(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t)
	pages := crawlPages()
	delete(pages, testBaseURL+"/enrol/index.php?id=102")

	o := New(cfg, &fakeFetcher{pages: pages}, newTestStore(t), discardLogger())
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	stats := o.Stats()
	if stats.CoursesProcessed != 3 {
		t.Errorf("CoursesProcessed = %d, want 3 (102 abandoned)", stats.CoursesProcessed)
	}
	if len(stats.FailedURLs) != 1 {
		t.Fatalf("FailedURLs = %v, want exactly the abandoned course", stats.FailedURLs)
	}
	if want := testBaseURL + "/enrol/index.php?id=102"; stats.FailedURLs[0] != want {
		t.Errorf("FailedURLs[0] = %q, want %q", stats.FailedURLs[0], want)
	}
}

// TestOrchestratorBruteForce tests identifier enumeration with a seed file.
func TestOrchestratorBruteForce(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t)
	cfg.MinUserID = 100
	cfg.MaxUserID = 102
	cfg.BatchSize = 2

	seedFile := filepath.Join(t.TempDir(), "userId.txt")
	if err := os.WriteFile(seedFile, []byte("50\nnot-a-number\n\n100\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg.SeedFile = seedFile

	// Profiles 101 and 102 do not resolve; user 50 references course 300.
	fetcher := &fakeFetcher{pages: map[string]string{
		testBaseURL + "/user/profile.php?id=50&showallcourses=1":  userPage("SeedUser", "300"),
		testBaseURL + "/user/profile.php?id=100&showallcourses=1": userPage("RangeUser"),
		testBaseURL + "/enrol/index.php?id=300":                   coursePage("Do An Tot Nghiep", "50"),
	}}

	o := New(cfg, fetcher, newTestStore(t), discardLogger())
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	stats := o.Stats()
	if stats.UsersProcessed != 2 {
		t.Errorf("UsersProcessed = %d, want 2 (50 and 100)", stats.UsersProcessed)
	}
	if stats.CoursesProcessed != 1 {
		t.Errorf("CoursesProcessed = %d, want 1 (300)", stats.CoursesProcessed)
	}
	if len(stats.FailedURLs) != 2 {
		t.Errorf("FailedURLs = %v, want the two dead profiles", stats.FailedURLs)
	}

	users := readCollection[model.User](t, cfg.OutputDir, UsersFile)
	if len(users) != 2 {
		t.Errorf("persisted %d users, want 2", len(users))
	}
	edges := readCollection[model.UserCourseEdge](t, cfg.OutputDir, EdgesFile)
	if len(edges) != 1 || edges[0].UserID != "50" || edges[0].CourseID != "300" {
		t.Errorf("edges = %+v, want the single 50->300 edge", edges)
	}
}

// TestUserIDRange tests candidate-list construction.
func TestUserIDRange(t *testing.T) {
	t.Parallel()

	t.Run("range merged with seed file", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t)
		cfg.MinUserID = 100
		cfg.MaxUserID = 102

		seedFile := filepath.Join(t.TempDir(), "userId.txt")
		if err := os.WriteFile(seedFile, []byte("50\n101\nbogus\n"), 0600); err != nil {
			t.Fatal(err)
		}
		cfg.SeedFile = seedFile

		o := New(cfg, &fakeFetcher{}, newTestStore(t), discardLogger())
		ids, err := o.userIDRange()
		if err != nil {
			t.Fatalf("userIDRange() error = %v", err)
		}

		want := []int{50, 100, 101, 102}
		if len(ids) != len(want) {
			t.Fatalf("userIDRange() = %v, want %v", ids, want)
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Errorf("ids[%d] = %d, want %d", i, ids[i], want[i])
			}
		}
	})

	t.Run("missing seed file uses range only", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t)
		cfg.MinUserID = 5
		cfg.MaxUserID = 7
		cfg.SeedFile = filepath.Join(t.TempDir(), "absent.txt")

		o := New(cfg, &fakeFetcher{}, newTestStore(t), discardLogger())
		ids, err := o.userIDRange()
		if err != nil {
			t.Fatalf("userIDRange() error = %v", err)
		}
		if len(ids) != 3 || ids[0] != 5 || ids[2] != 7 {
			t.Errorf("userIDRange() = %v, want [5 6 7]", ids)
		}
	})
}

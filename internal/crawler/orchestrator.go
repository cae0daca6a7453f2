package crawler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/hcmut-tools/lmscrawl/internal/config"
	"github.com/hcmut-tools/lmscrawl/internal/extract"
	"github.com/hcmut-tools/lmscrawl/internal/htmlstore"
	"github.com/hcmut-tools/lmscrawl/internal/model"
)

// semesterListingKey is the cache key of the semester catalog page.
// When present in the archive, discovery reads it instead of the network.
const semesterListingKey = "discover_semester_result"

// ErrNoSemesters is returned when semester discovery yields nothing.
// Without at least one semester there is no frontier and no partial output
// is possible, so this aborts the whole run.
var ErrNoSemesters = errors.New("no semesters discovered")

// Fetcher performs one authenticated page fetch, retrying transient failures
// internally. Implemented by the fetch package; tests substitute fakes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetchRecorder receives one record per fetch-or-reuse outcome.
// Implemented by the database package's fetch log; a nil recorder disables
// history tracking.
type FetchRecorder interface {
	Record(ctx context.Context, category, entityID, url string, cached, ok bool) error
}

// Stats summarizes a crawl run for logging and the markdown report.
type Stats struct {
	// SemestersDiscovered is the size of the discovered semester catalog.
	SemestersDiscovered int

	// PagesFetched counts network fetches that succeeded.
	PagesFetched int

	// CacheHits counts pages reused from the archive instead of fetched.
	CacheHits int

	// FailedURLs lists URLs abandoned after exhausting fetch retries or
	// failing extraction.
	FailedURLs []string

	// CoursesProcessed and UsersProcessed are the dedup-set cardinalities.
	CoursesProcessed int
	UsersProcessed   int

	// EdgesRecorded counts user-course edges appended over the whole run,
	// including those already flushed by checkpoints.
	EdgesRecorded int

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time
	FinishedAt time.Time
}

// Orchestrator sequences the crawl stages and owns all shared crawl state:
// the dedup sets consulted before dispatching work, the accumulation buffers
// flushed by checkpoints, and the run statistics.
//
// Dedup sets are thread-safe set objects mutated by concurrent workers; the
// accumulation buffers and stats are guarded by an explicit mutex. Nothing
// here relies on implicit collection thread safety.
type Orchestrator struct {
	cfg        *config.Config
	fetcher    Fetcher
	store      *htmlstore.Store
	recorder   FetchRecorder
	runner     *StageRunner
	checkpoint *Checkpoint
	logger     *slog.Logger

	// processedCourses and processedUsers hold entity ids that have been
	// successfully processed this run. They never shrink. An id present
	// here is never re-fetched, though its URL may still be rediscovered
	// on other pages; rediscoveries are filtered before becoming work.
	processedCourses mapset.Set[string]
	processedUsers   mapset.Set[string]

	// mu guards the accumulation buffers and stats below.
	mu      sync.Mutex
	courses []model.Course
	users   []model.User
	edges   []model.UserCourseEdge
	stats   Stats
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFetchRecorder enables fetch-history recording.
func WithFetchRecorder(rec FetchRecorder) Option {
	return func(o *Orchestrator) {
		o.recorder = rec
	}
}

// New creates an Orchestrator.
func New(cfg *config.Config, fetcher Fetcher, store *htmlstore.Store, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		cfg:              cfg,
		fetcher:          fetcher,
		store:            store,
		runner:           NewStageRunner(cfg.Workers, logger),
		checkpoint:       NewCheckpoint(cfg.OutputDir, logger),
		logger:           logger,
		processedCourses: mapset.NewSet[string](),
		processedUsers:   mapset.NewSet[string](),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the crawl in the mode selected by the configuration:
// brute-force identifier enumeration when a positive maximum user id is
// configured, the normal link-following pipeline otherwise.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	o.stats.StartedAt = time.Now()
	o.mu.Unlock()

	var err error
	if o.cfg.BruteForce() {
		err = o.runBruteForce(ctx)
	} else {
		err = o.runNormal(ctx)
	}

	o.mu.Lock()
	o.stats.FinishedAt = time.Now()
	o.mu.Unlock()
	return err
}

// runNormal executes the five link-following stages and a final checkpoint.
func (o *Orchestrator) runNormal(ctx context.Context) error {
	o.logger.Info("starting crawl", "base_url", o.cfg.BaseURL, "workers", o.cfg.Workers)

	semesters, err := o.discoverSemesters(ctx)
	if err != nil {
		return err
	}
	o.logger.Info("discovered semesters", "count", len(semesters))

	courseURLs := Run(ctx, o.runner, "semesters", semesters, o.crawlSemester)
	o.logger.Info("discovered course URLs from semesters", "count", len(courseURLs))

	userURLs := Run(ctx, o.runner, "courses", courseURLs, o.crawlCourse)
	o.logger.Info("discovered user URLs from courses", "count", len(userURLs))

	additionalCourseURLs := Run(ctx, o.runner, "users", userURLs, o.crawlUser)
	o.logger.Info("discovered additional course URLs from users", "count", len(additionalCourseURLs))

	if len(additionalCourseURLs) > 0 {
		// One hop only: records from these courses are kept, but the
		// teacher links they surface are not expanded further. This
		// bounds the crawl and avoids oscillating between the course
		// and user stages.
		Run(ctx, o.runner, "additional-courses", additionalCourseURLs, o.crawlCourse)
	}

	if err := o.saveCheckpoint(); err != nil {
		return err
	}

	o.logSummary("crawl completed")
	return nil
}

// runBruteForce enumerates the configured profile-id range instead of
// following links, running the user and course workers through the batched
// stage runner with a checkpoint after every batch.
func (o *Orchestrator) runBruteForce(ctx context.Context) error {
	ids, err := o.userIDRange()
	if err != nil {
		return err
	}

	userURLs := make([]string, 0, len(ids))
	for _, id := range ids {
		userURLs = append(userURLs, extract.BuildURL(o.cfg.BaseURL, fmt.Sprintf("/user/profile.php?id=%d&showallcourses=1", id)))
	}
	o.logger.Info("starting brute-force crawl",
		"min_user_id", o.cfg.MinUserID,
		"max_user_id", o.cfg.MaxUserID,
		"candidates", len(userURLs),
		"batch_size", o.cfg.BatchSize,
	)

	additionalCourseURLs := RunBatched(ctx, o.runner, "users", userURLs, o.cfg.BatchSize, o.crawlUser, o.saveCheckpoint)
	o.logger.Info("discovered course URLs from users", "count", len(additionalCourseURLs))

	if len(additionalCourseURLs) > 0 {
		RunBatched(ctx, o.runner, "courses", additionalCourseURLs, o.cfg.BatchSize, o.crawlCourse, o.saveCheckpoint)
	}

	// Trailing checkpoint for the residue the last full batch left behind.
	if err := o.saveCheckpoint(); err != nil {
		return err
	}

	o.logSummary("brute-force crawl completed")
	return nil
}

// discoverSemesters loads the semester catalog: from the archive when a
// previously saved listing exists, from the network otherwise. The listing
// is not written back to the archive -- the catalog changes every semester
// and a stale copy would freeze discovery, so caching it is an explicit
// operator decision (placing the file), not crawler behavior.
func (o *Orchestrator) discoverSemesters(ctx context.Context) ([]model.Semester, error) {
	var markup string
	if o.store.Exists(htmlstore.CategorySemesters, semesterListingKey) {
		o.logger.Info("using cached semester listing")
		cached, err := o.store.Read(htmlstore.CategorySemesters, semesterListingKey)
		if err != nil {
			o.logger.Warn("cached semester listing unreadable, fetching", "error", err)
		} else {
			markup = cached
		}
	}

	if markup == "" {
		listingURL := extract.BuildURL(o.cfg.BaseURL, "/course/")
		fetched, err := o.fetcher.Fetch(ctx, listingURL)
		if err != nil {
			return nil, fmt.Errorf("fetch semester listing: %w", err)
		}
		markup = fetched
	}

	semesters, err := extract.Semesters(markup, o.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse semester listing: %w", err)
	}
	if len(semesters) == 0 {
		return nil, ErrNoSemesters
	}

	o.mu.Lock()
	o.stats.SemestersDiscovered = len(semesters)
	o.mu.Unlock()
	return semesters, nil
}

// crawlSemester archives one semester page and returns the course URLs it
// lists. The page URL is suffixed with perpage=all to bypass pagination so a
// single archived page covers the whole semester.
func (o *Orchestrator) crawlSemester(ctx context.Context, sem model.Semester) ([]string, error) {
	pageURL := extract.BuildURL(o.cfg.BaseURL, extract.EnsureParam(sem.URL, "perpage", "all"))

	markup, err := o.fetchOrReuse(ctx, htmlstore.CategorySemesters, sem.CategoryID, pageURL)
	if err != nil {
		return nil, fmt.Errorf("semester %s: %w", sem.CategoryID, err)
	}

	links, err := extract.CourseLinks(markup, o.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("semester %s: extract course links: %w", sem.CategoryID, err)
	}
	o.logger.Info("semester crawled", "category_id", sem.CategoryID, "course_links", len(links))
	return links, nil
}

// crawlCourse archives one course page, accumulates its record, and returns
// the teacher profile URLs found on it.
//
// The id check against processedCourses happens before any I/O: an already
// processed course contributes no work and no result. The check and the
// later mark are not atomic, so two workers racing on the same id can both
// fetch it; the second write targets the same content and the record is
// duplicated at worst. Accepting that occasional duplicate work keeps the
// workers lock-free around network I/O.
func (o *Orchestrator) crawlCourse(ctx context.Context, courseURL string) ([]string, error) {
	courseID := extract.IDFromURL(courseURL, "id")
	if courseID == "" {
		o.logger.Warn("could not extract course id, dropping link", "url", courseURL)
		return nil, nil
	}
	if o.processedCourses.Contains(courseID) {
		return nil, nil
	}

	// The enrolment page is archived rather than the course view: it is
	// the one course page visible without enrolling that still lists the
	// teaching staff.
	pageURL := extract.BuildURL(o.cfg.BaseURL, "enrol/index.php?id="+courseID)
	markup, err := o.fetchOrReuse(ctx, htmlstore.CategoryCourses, courseID, pageURL)
	if err != nil {
		return nil, fmt.Errorf("course %s: %w", courseID, err)
	}

	course, err := extract.Course(markup, courseID, o.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("course %s: extract: %w", courseID, err)
	}

	o.processedCourses.Add(courseID)
	o.mu.Lock()
	o.courses = append(o.courses, course)
	o.mu.Unlock()

	o.logger.Info("course crawled",
		"course_id", courseID,
		"course_name", course.CourseName,
		"teacher_links", len(course.TeacherLinks),
	)
	return course.TeacherLinks, nil
}

// crawlUser archives one user profile, accumulates its record and its
// user-course edges, and returns the URLs of courses not yet processed.
//
// Every course link observed on the profile appends an edge, whether or not
// the course is new and even when its id cannot be resolved: the edge list
// records what was observed and leaves filtering to downstream consumers.
// Only links with a resolvable id absent from processedCourses become new
// frontier items.
func (o *Orchestrator) crawlUser(ctx context.Context, userURL string) ([]string, error) {
	userID := extract.IDFromURL(userURL, "id")
	if userID == "" {
		o.logger.Warn("could not extract user id, dropping link", "url", userURL)
		return nil, nil
	}
	if o.processedUsers.Contains(userID) {
		return nil, nil
	}

	// showallcourses=1 expands the profile's course list past the default
	// truncation.
	pageURL := extract.EnsureParam(userURL, "showallcourses", "1")
	markup, err := o.fetchOrReuse(ctx, htmlstore.CategoryUsers, userID, pageURL)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}

	user, err := extract.User(markup, userID, o.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("user %s: extract: %w", userID, err)
	}

	o.processedUsers.Add(userID)

	var newCourseURLs []string
	edges := make([]model.UserCourseEdge, 0, len(user.CourseLinks))
	for _, link := range user.CourseLinks {
		courseID := extract.IDFromURL(link, "id")
		if courseID != "" && !o.processedCourses.Contains(courseID) {
			newCourseURLs = append(newCourseURLs, link)
		}
		edges = append(edges, model.UserCourseEdge{UserID: userID, CourseID: courseID})
	}

	o.mu.Lock()
	o.users = append(o.users, user)
	o.edges = append(o.edges, edges...)
	o.stats.EdgesRecorded += len(edges)
	o.mu.Unlock()

	o.logger.Info("user crawled",
		"user_id", userID,
		"teacher_name", user.TeacherName,
		"course_links", len(user.CourseLinks),
		"new_courses", len(newCourseURLs),
	)
	return newCourseURLs, nil
}

// fetchOrReuse returns the page markup for (category, id): from the archive
// when present, from the network (then archived) otherwise. Extraction is
// the caller's job and always re-runs on the returned markup, so the cache
// only ever holds raw pages, never derived records.
func (o *Orchestrator) fetchOrReuse(ctx context.Context, category, id, pageURL string) (string, error) {
	if o.store.Exists(category, id) {
		markup, err := o.store.Read(category, id)
		o.recordFetch(ctx, category, id, pageURL, true, err == nil)
		if err != nil {
			o.noteFailure(pageURL)
			return "", err
		}
		o.logger.Info("reusing cached page", "category", category, "id", id)
		o.mu.Lock()
		o.stats.CacheHits++
		o.mu.Unlock()
		return markup, nil
	}

	markup, err := o.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		o.recordFetch(ctx, category, id, pageURL, false, false)
		o.noteFailure(pageURL)
		return "", err
	}
	if err := o.store.Write(category, id, markup); err != nil {
		o.recordFetch(ctx, category, id, pageURL, false, false)
		o.noteFailure(pageURL)
		return "", err
	}

	o.recordFetch(ctx, category, id, pageURL, false, true)
	o.logger.Info("page archived", "category", category, "id", id, "path", o.store.Path(category, id))
	o.mu.Lock()
	o.stats.PagesFetched++
	o.mu.Unlock()
	return markup, nil
}

// recordFetch forwards one fetch outcome to the fetch log, if enabled.
// Recording failures are logged and otherwise ignored: history is an aid,
// not a dependency of the crawl.
func (o *Orchestrator) recordFetch(ctx context.Context, category, id, pageURL string, cached, ok bool) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(ctx, category, id, pageURL, cached, ok); err != nil {
		o.logger.Warn("fetch log record failed", "category", category, "id", id, "error", err)
	}
}

// noteFailure remembers an abandoned URL for the run summary.
func (o *Orchestrator) noteFailure(pageURL string) {
	o.mu.Lock()
	o.stats.FailedURLs = append(o.stats.FailedURLs, pageURL)
	o.mu.Unlock()
}

// saveCheckpoint merges the accumulation buffers into the persisted
// collections and, on success, clears them. Called between batches (when no
// workers are in flight) and at the end of a run, so holding the buffer lock
// across the merge is safe.
func (o *Orchestrator) saveCheckpoint() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkpoint.Merge(o.courses, o.users, o.edges); err != nil {
		return err
	}

	// Clearing only after a successful merge bounds memory without ever
	// dropping unpersisted records.
	o.courses = nil
	o.users = nil
	o.edges = nil
	return nil
}

// userIDRange builds the brute-force candidate list: the configured numeric
// range merged with the ids in the seed file, deduplicated and sorted
// ascending. A missing seed file contributes nothing; an unparseable line is
// dropped with a warning.
func (o *Orchestrator) userIDRange() ([]int, error) {
	ids := make(map[int]struct{})
	for id := o.cfg.MinUserID; id <= o.cfg.MaxUserID; id++ {
		ids[id] = struct{}{}
	}

	if o.cfg.SeedFile != "" {
		if err := o.readSeedFile(o.cfg.SeedFile, ids); err != nil {
			return nil, err
		}
	}

	sorted := make([]int, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Ints(sorted)
	return sorted, nil
}

// readSeedFile merges the newline-delimited ids in path into ids.
func (o *Orchestrator) readSeedFile(path string, ids map[int]struct{}) error {
	f, err := os.Open(path) //nolint:gosec // User-provided seed file path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			o.logger.Info("no seed file, using id range only", "path", path)
			return nil
		}
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close() //nolint:errcheck // Read-only file

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := extract.NormalizeText(scanner.Text())
		if line == "" {
			continue
		}
		id, err := strconv.Atoi(line)
		if err != nil {
			o.logger.Warn("skipping unparseable seed id", "line", line)
			continue
		}
		ids[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	return nil
}

// Stats returns a snapshot of the run statistics.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	snapshot := o.stats
	snapshot.FailedURLs = append([]string(nil), o.stats.FailedURLs...)
	snapshot.CoursesProcessed = o.processedCourses.Cardinality()
	snapshot.UsersProcessed = o.processedUsers.Cardinality()
	return snapshot
}

// logSummary emits the end-of-run totals.
func (o *Orchestrator) logSummary(msg string) {
	stats := o.Stats()
	o.logger.Info(msg,
		"semesters", stats.SemestersDiscovered,
		"courses_processed", stats.CoursesProcessed,
		"users_processed", stats.UsersProcessed,
		"edges_recorded", stats.EdgesRecorded,
		"pages_fetched", stats.PagesFetched,
		"cache_hits", stats.CacheHits,
		"failed_urls", len(stats.FailedURLs),
	)
}

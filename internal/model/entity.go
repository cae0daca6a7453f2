package model

// Semester represents one entry of the portal's semester catalog.
// Semesters are produced once by the discovery pass over the course listing
// page and are immutable afterwards. They are not deduplicated because the
// listing is a single fixed page.
type Semester struct {
	// CategoryID is the unique key, taken from the "categoryid" query
	// parameter of the catalog URL.
	CategoryID string `json:"category_id"`

	// URL is the catalog URL of the semester page.
	URL string `json:"url"`

	// Semester is the first component of the catalog entry text
	// (e.g., "HK251").
	Semester string `json:"semester"`

	// Faculty is the second component of the catalog entry text.
	Faculty string `json:"faculty"`

	// Major is the third component of the catalog entry text.
	Major string `json:"major"`

	// FullText is the normalized, unsplit catalog entry text.
	FullText string `json:"full_text"`
}

// Course represents an archived course page.
// A Course is created the first time its URL is successfully processed and
// never mutated afterwards. Membership in the processed-courses set is
// permanent for the lifetime of a run, and the on-disk HTML cache provides
// the same guarantee across runs.
type Course struct {
	// CourseID is the unique key, taken from the "id" query parameter of
	// the course URL.
	CourseID string `json:"course_id"`

	// CourseName is the course title shown on the enrolment page.
	CourseName string `json:"course_name"`

	// TeachersText is the flattened text of the teacher list.
	TeachersText string `json:"teachers_text"`

	// TeacherLinks holds absolute profile URLs of the course's teachers,
	// in page order.
	TeacherLinks []string `json:"teacher_links"`
}

// User represents an archived user profile page.
// Users follow the same lifecycle as Courses: created once, never mutated,
// deduplicated by the processed-users set within a run and by the HTML cache
// across runs.
type User struct {
	// UserID is the unique key, taken from the "id" query parameter of
	// the profile URL.
	UserID string `json:"user_id"`

	// TeacherName is the display name from the profile page header.
	TeacherName string `json:"teacher_name"`

	// Role is the description text of the profile, typically the user's
	// role at the university.
	Role string `json:"role"`

	// ProfileDetails maps profile field labels to their values
	// (email, department, and similar).
	ProfileDetails map[string]string `json:"profile_details"`

	// CourseLinks holds absolute enrolment URLs of the courses listed on
	// the profile, in page order.
	CourseLinks []string `json:"course_links"`
}

// UserCourseEdge records that a user's profile listed a course.
// Edges are appended for every observation and never deduplicated, even when
// the course was already processed or its id could not be resolved. Filtering
// malformed edges is left to downstream consumers.
type UserCourseEdge struct {
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id"`
}

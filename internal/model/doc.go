// Package model defines the core data structures used throughout lmscrawl.
//
// This package contains the following main types:
//   - Semester: A semester/faculty/major catalog entry from the course listing
//   - Course: An archived course page with its teacher links
//   - User: An archived user profile page with its course links
//   - UserCourseEdge: An observed user-teaches-course association
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. Multiple packages (extract, crawler, report, search) need to
// use these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON: the field tags match the
// shapes persisted in all_courses.json, all_users.json, and users_courses.json,
// which accumulate across runs and are consumed by downstream tooling.
package model

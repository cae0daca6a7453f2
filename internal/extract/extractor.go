package extract

import (
	"errors"
	"strings"

	"golang.org/x/net/html"

	"github.com/hcmut-tools/lmscrawl/internal/model"
)

// ErrNoCatalog is returned when the course listing page does not contain the
// semester selector. This usually means the session cookie expired and the
// portal served a login page instead of the catalog.
var ErrNoCatalog = errors.New("semester selector (select.urlselect) not found in listing page")

// Semesters extracts the semester catalog from the course listing page.
//
// The catalog lives in a <select class="urlselect"> element whose options
// carry the category URL as their value and a "Semester / Faculty / Major"
// label as their text. Options without a value, without at least two " / "
// separators, or without a resolvable categoryid parameter are skipped:
// the selector also contains navigation entries that are not semesters.
func Semesters(markup, baseURL string) ([]model.Semester, error) {
	doc, err := parse(markup)
	if err != nil {
		return nil, err
	}

	sel := findFirst(doc, func(n *html.Node) bool {
		return isElement(n, "select") && hasClass(n, "urlselect")
	})
	if sel == nil {
		return nil, ErrNoCatalog
	}

	var semesters []model.Semester
	for _, opt := range findAll(sel, func(n *html.Node) bool { return isElement(n, "option") }) {
		text := NormalizeText(textContent(opt))
		value := attr(opt, "value")
		if value == "" || text == "" {
			continue
		}
		if strings.Count(text, " / ") < 2 {
			continue
		}

		parts := strings.Split(text, "/")
		if len(parts) < 3 {
			continue
		}

		categoryID := IDFromURL(value, "categoryid")
		if categoryID == "" {
			continue
		}

		semesters = append(semesters, model.Semester{
			CategoryID: categoryID,
			URL:        BuildURL(baseURL, value),
			Semester:   NormalizeText(parts[0]),
			Faculty:    NormalizeText(parts[1]),
			Major:      NormalizeText(parts[2]),
			FullText:   text,
		})
	}
	return semesters, nil
}

// CourseLinks extracts course URLs from a semester page.
// Course cards link through <a class="aalink"> anchors pointing at
// /course/view.php. Relative hrefs are resolved against baseURL.
func CourseLinks(markup, baseURL string) ([]string, error) {
	doc, err := parse(markup)
	if err != nil {
		return nil, err
	}

	var links []string
	for _, a := range findAll(doc, func(n *html.Node) bool {
		return isElement(n, "a") && hasClass(n, "aalink")
	}) {
		href := attr(a, "href")
		if href != "" && strings.Contains(href, "/course/view.php") {
			links = append(links, BuildURL(baseURL, href))
		}
	}
	return links, nil
}

// Course extracts the course record and its teacher profile links from an
// enrolment page. Missing elements yield empty fields rather than errors:
// some courses have no visible teacher list, and the record is still worth
// keeping for the archive.
func Course(markup, courseID, baseURL string) (model.Course, error) {
	course := model.Course{CourseID: courseID, TeacherLinks: []string{}}

	doc, err := parse(markup)
	if err != nil {
		return course, err
	}

	if h := findFirst(doc, func(n *html.Node) bool {
		return isElement(n, "h3") && hasClass(n, "coursename")
	}); h != nil {
		course.CourseName = NormalizeText(textContent(h))
	}

	teachers := findFirst(doc, func(n *html.Node) bool {
		return isElement(n, "ul") && hasClass(n, "teachers")
	})
	if teachers == nil {
		return course, nil
	}

	course.TeachersText = NormalizeText(textContent(teachers))
	for _, a := range findAll(teachers, func(n *html.Node) bool { return isElement(n, "a") }) {
		href := attr(a, "href")
		if href != "" && strings.Contains(href, "/user/profile.php") {
			course.TeacherLinks = append(course.TeacherLinks, BuildURL(baseURL, href))
		}
	}
	return course, nil
}

// User extracts the user record and its course links from a profile page.
//
// The profile body is a <div class="profile_tree"> with two top-level
// sections: the first holds dt/dd detail pairs, the second the course list.
// Course anchors reference courses through a "course" query parameter; the
// returned links are re-synthesized as enrolment URLs because that is the
// page the course crawler archives. An anchor whose course id cannot be
// resolved still produces a link (with an empty id), matching the
// record-what-was-observed policy for edges.
func User(markup, userID, baseURL string) (model.User, error) {
	user := model.User{
		UserID:         userID,
		ProfileDetails: map[string]string{},
		CourseLinks:    []string{},
	}

	doc, err := parse(markup)
	if err != nil {
		return user, err
	}

	if h := findFirst(doc, func(n *html.Node) bool {
		return isElement(n, "") && hasClass(n, "page-header-headings")
	}); h != nil {
		user.TeacherName = NormalizeText(textContent(h))
	}

	if profile := findFirst(doc, func(n *html.Node) bool {
		return isElement(n, "") && hasClass(n, "userprofile")
	}); profile != nil {
		if desc := findFirst(profile, func(n *html.Node) bool {
			return isElement(n, "") && hasClass(n, "description")
		}); desc != nil {
			user.Role = NormalizeText(textContent(desc))
		}
	}

	tree := findFirst(doc, func(n *html.Node) bool {
		return isElement(n, "div") && hasClass(n, "profile_tree")
	})
	if tree == nil {
		return user, nil
	}

	sections := directChildren(tree, "section")
	if len(sections) > 0 {
		dts := findAll(sections[0], func(n *html.Node) bool { return isElement(n, "dt") })
		dds := findAll(sections[0], func(n *html.Node) bool { return isElement(n, "dd") })
		for i := 0; i < len(dts) && i < len(dds); i++ {
			key := NormalizeText(textContent(dts[i]))
			if key != "" {
				user.ProfileDetails[key] = NormalizeText(textContent(dds[i]))
			}
		}
	}
	if len(sections) > 1 {
		for _, a := range findAll(sections[1], func(n *html.Node) bool { return isElement(n, "a") }) {
			courseID := IDFromURL(attr(a, "href"), "course")
			user.CourseLinks = append(user.CourseLinks, BuildURL(baseURL, "enrol/index.php?id="+courseID))
		}
	}
	return user, nil
}

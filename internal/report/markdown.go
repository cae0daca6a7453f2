// Package report renders a markdown summary of a crawl run.
package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"

	"github.com/hcmut-tools/lmscrawl/internal/crawler"
)

// MarkdownWriter renders crawl statistics as GitHub-flavored Markdown.
// The output is meant for humans deciding whether a long run needs a rerun:
// totals, cache behavior, and the URLs that were abandoned.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation: type-safe tables and lists beat hand-concatenated strings.
type MarkdownWriter struct {
	output io.Writer
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{output: output}
}

// Write renders the crawl summary.
func (w *MarkdownWriter) Write(stats crawler.Stats) error {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Started", stats.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Finished", stats.FinishedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", stats.FinishedAt.Sub(stats.StartedAt).Round(1e9).String()},
		},
	})
	md.PlainText("")

	md.H2("Entities")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Entity", "Count"},
		Rows: [][]string{
			{"Semesters discovered", strconv.Itoa(stats.SemestersDiscovered)},
			{"Courses processed", strconv.Itoa(stats.CoursesProcessed)},
			{"Users processed", strconv.Itoa(stats.UsersProcessed)},
			{"User-course edges recorded", strconv.Itoa(stats.EdgesRecorded)},
		},
	})
	md.PlainText("")

	md.H2("Archive")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"Pages fetched", strconv.Itoa(stats.PagesFetched)},
			{"Cache hits", strconv.Itoa(stats.CacheHits)},
			{"Cache-hit ratio", cacheHitRatio(stats)},
			{"Abandoned URLs", strconv.Itoa(len(stats.FailedURLs))},
		},
	})
	md.PlainText("")

	if len(stats.FailedURLs) > 0 {
		md.H2("Abandoned URLs")
		md.PlainText("")
		md.PlainText("These pages failed every fetch attempt and are absent from the archive:")
		md.PlainText("")
		items := make([]string, 0, len(stats.FailedURLs))
		for _, u := range stats.FailedURLs {
			items = append(items, "`"+u+"`")
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	return md.Build()
}

// cacheHitRatio formats cache hits as a percentage of all page loads.
func cacheHitRatio(stats crawler.Stats) string {
	total := stats.PagesFetched + stats.CacheHits
	if total == 0 {
		return "n/a"
	}
	return strconv.Itoa(stats.CacheHits*100/total) + "%"
}

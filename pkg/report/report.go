// Package report names persisted run records and composes their
// human-readable documents. Both sinks share it so that a record looks the
// same wherever it is stored.
package report

import (
	"crypto/rand"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rimraf-adi/socrates/internal/textutil"
	"github.com/rimraf-adi/socrates/pkg/domain"
)

const (
	// SlugLength bounds the query part of a record name.
	SlugLength = 50
	// SectionLimit bounds each section of a composed document, in runes.
	SectionLimit = 28000
	// MaxSources is the number of sources listed in a document.
	MaxSources = 25
)

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a fresh lowercase ULID. IDs from one process sort in
// creation order even within the same millisecond.
func NewID(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(now), entropy).String())
}

// Name builds {YYYY-MM-DD}_{slug}_{ulid}. Two calls never return the same name.
func Name(query string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s", now.UTC().Format("2006-01-02"), textutil.Slugify(query, SlugLength), NewID(now))
}

// SortNewest orders summaries newest first by the ULID that ends each name.
// Names without one fall back to plain name order after the rest.
func SortNewest(list []domain.RecordSummary) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := recordID(list[i].Name), recordID(list[j].Name)
		if a != b {
			return a > b
		}
		return list[i].Name > list[j].Name
	})
}

func recordID(name string) string {
	i := strings.LastIndexByte(name, '_')
	if i < 0 || len(name)-i-1 != ulid.EncodedSize {
		return ""
	}
	return name[i+1:]
}

// Document composes the main markdown document of a record.
func Document(rec domain.Record) string {
	meta := rec.Metadata
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", strings.TrimSpace(rec.Query))
	fmt.Fprintf(&b, "- **Mode:** %s\n", meta.Mode)
	fmt.Fprintf(&b, "- **Status:** %s\n", meta.Status)
	if meta.Depth != "" {
		fmt.Fprintf(&b, "- **Depth:** %s\n", meta.Depth)
	}
	if meta.QueryType != "" {
		fmt.Fprintf(&b, "- **Query type:** %s\n", meta.QueryType)
	}
	if meta.Model != "" {
		fmt.Fprintf(&b, "- **Model:** %s\n", meta.Model)
	}
	fmt.Fprintf(&b, "- **Cycles:** %d of %d\n", meta.Iterations, meta.MaxIterations)
	if !meta.StartedAt.IsZero() {
		fmt.Fprintf(&b, "- **Started:** %s\n", meta.StartedAt.Format(time.RFC3339))
	}
	if meta.Error != "" {
		fmt.Fprintf(&b, "- **Error:** %s\n", meta.Error)
	}

	b.WriteString("\n## Result\n\n")
	if out := strings.TrimSpace(rec.FinalOutput); out != "" {
		b.WriteString(textutil.TruncateWithNotice(out, SectionLimit))
	} else {
		b.WriteString("_The run stopped before producing a result._")
	}
	b.WriteString("\n")

	if len(rec.PendingItems) > 0 {
		b.WriteString("\n## Research Areas\n\n")
		for i, item := range rec.PendingItems {
			fmt.Fprintf(&b, "%d. %s\n", i+1, item)
		}
	}

	sources := domain.UniqueSources(rec.Results, MaxSources)
	if len(sources) > 0 {
		b.WriteString("\n## Sources\n\n")
		for i, s := range sources {
			fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, s.Title, s.URL)
		}
	}
	return b.String()
}

// Cycle renders one history entry as its own markdown document.
func Cycle(c domain.CycleRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Cycle %d\n\n", c.Index)
	if c.Subject != "" {
		fmt.Fprintf(&b, "**Subject:** %s\n\n", c.Subject)
	}
	fmt.Fprintf(&b, "## Output\n\n%s\n", textutil.TruncateWithNotice(strings.TrimSpace(c.Artifact), SectionLimit))
	if c.Evaluation != "" {
		fmt.Fprintf(&b, "\n## Evaluation\n\n%s\n", textutil.TruncateWithNotice(strings.TrimSpace(c.Evaluation), SectionLimit))
	}
	return b.String()
}

// CycleFile is the file name of a history entry inside a record.
func CycleFile(index int) string {
	return fmt.Sprintf("iteration_%02d.md", index)
}

// Summary describes a record in listings.
func Summary(name string, meta domain.RunMetadata) domain.RecordSummary {
	created := meta.FinishedAt
	if created.IsZero() {
		created = meta.StartedAt
	}
	return domain.RecordSummary{
		Name:        name,
		Query:       meta.Query,
		Mode:        meta.Mode,
		Status:      meta.Status,
		Iterations:  meta.Iterations,
		SourceCount: meta.SourceCount,
		CreatedAt:   created,
	}
}

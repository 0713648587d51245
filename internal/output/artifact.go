// Package output publishes a run's artifacts into a two-tier directory
// layout and keeps an append-only change log.
//
//	{root}/current/   exactly one completed run
//	{root}/archive/   every earlier run
//	{root}/change_log.txt
package output

import (
	"fmt"
	"strings"
	"time"
)

const (
	CurrentDir = "current"
	ArchiveDir = "archive"
	ChangeLog  = "change_log.txt"

	stampLayout = "20060102_150405"
)

// Artifact is one file produced by a run. Page is 1-based and only set for
// multi-page artifacts.
type Artifact struct {
	Kind   string
	Period string
	Ext    string
	Page   int
	Data   []byte
}

// FileName returns {stamp}_{kind}_{period}[_page{N}].{ext}.
func (a Artifact) FileName(runAt time.Time) string {
	var b strings.Builder
	b.WriteString(runAt.Format(stampLayout))
	b.WriteByte('_')
	b.WriteString(sanitize(a.Kind))
	if a.Period != "" {
		b.WriteByte('_')
		b.WriteString(sanitize(a.Period))
	}
	if a.Page > 0 {
		fmt.Fprintf(&b, "_page%d", a.Page)
	}
	b.WriteByte('.')
	b.WriteString(strings.TrimPrefix(a.Ext, "."))
	return b.String()
}

func (a Artifact) contentType() string {
	switch strings.ToLower(strings.TrimPrefix(a.Ext, ".")) {
	case "png":
		return "image/png"
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "txt", "log":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':':
			return '-'
		}
		return r
	}, s)
}

// Entry is one change-log record.
type Entry struct {
	RunID    string
	At       time.Time
	Archived []Move
	Written  []string
	Notes    []string
}

type Move struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (e Entry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s run %s ===\n", e.At.Format(time.DateTime), e.RunID)
	for _, m := range e.Archived {
		fmt.Fprintf(&b, "archived: %s -> %s\n", m.From, m.To)
	}
	for _, w := range e.Written {
		fmt.Fprintf(&b, "written: %s\n", w)
	}
	for _, n := range e.Notes {
		fmt.Fprintf(&b, "note: %s\n", n)
	}
	b.WriteByte('\n')
	return b.String()
}

// Manifest describes a successful publish. Paths are relative to the root.
type Manifest struct {
	RunID    string
	At       time.Time
	Current  []string
	Archived []Move
	LogPath  string
}

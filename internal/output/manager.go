package output

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// Stage names the publish step an *Error came from.
type Stage string

const (
	StageValidate Stage = "validate"
	StageArchive  Stage = "archive"
	StageWrite    Stage = "write"
	StageLog      Stage = "log"
)

type PathError struct {
	Path string
	Err  error
}

// Error aggregates every path that failed in one publish stage.
type Error struct {
	Stage    Stage
	Failures []PathError
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", f.Path, f.Err)
	}
	return fmt.Sprintf("output %s failed for %d path(s): %s", e.Stage, len(e.Failures), strings.Join(parts, "; "))
}

func (e *Error) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Mirror receives a copy of every written file. Mirror errors are logged
// and never fail a publish.
type Mirror interface {
	Put(ctx context.Context, name string, body []byte, contentType string) error
}

// Manager is the only writer of the output root. Publish calls are
// serialized.
type Manager struct {
	root   string
	log    *slog.Logger
	mirror Mirror
	rename func(oldpath, newpath string) error

	mu sync.Mutex
}

type Option func(*Manager)

func WithMirror(m Mirror) Option {
	return func(mg *Manager) { mg.mirror = m }
}

func New(root string, log *slog.Logger, opts ...Option) *Manager {
	m := &Manager{root: root, log: log, rename: os.Rename}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Root() string { return m.root }

func (m *Manager) currentDir() string { return filepath.Join(m.root, CurrentDir) }
func (m *Manager) archiveDir() string { return filepath.Join(m.root, ArchiveDir) }

// Publish archives everything in current/, writes artifacts into current/
// and appends one change-log entry. Nothing is written if any archive move
// fails; if a write fails the previous run is moved back into current/.
// notes are copied into the change-log entry.
func (m *Manager) Publish(ctx context.Context, runID string, runAt time.Time, artifacts []Artifact, notes ...string) (Manifest, error) {
	const op = "output.Manager.Publish"

	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.log.With(slog.String("op", op), slog.String("run_id", runID))

	names, err := fileNames(artifacts, runAt)
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", op, err)
	}

	for _, dir := range []string{m.currentDir(), m.archiveDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Manifest{}, fmt.Errorf("%s: create %s: %w", op, dir, err)
		}
	}

	existing, err := m.collect()
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := ctx.Err(); err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", op, err)
	}

	moves, err := m.archive(existing)
	if err != nil {
		log.Error("archive failed, nothing written", slog.String("error", err.Error()))
		return Manifest{}, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("archived previous run", slog.Int("files", len(moves)))

	written, werr := m.write(artifacts, names)
	if werr != nil {
		stranded, failures := m.restore(moves)
		werr.Failures = append(werr.Failures, failures...)
		if len(stranded) > 0 {
			// files that could not go back to current/ must still be on record
			entry := Entry{
				RunID:    runID,
				At:       runAt,
				Archived: stranded,
				Notes:    append(slices.Clone(notes), "write failed, previous output not restored"),
			}
			if err := m.appendLog(entry); err != nil {
				werr.Failures = append(werr.Failures, PathError{Path: ChangeLog, Err: err})
			}
		}
		log.Error("write failed, previous output restored",
			slog.Int("restored", len(moves)-len(stranded)),
			slog.String("error", werr.Error()),
		)
		return Manifest{}, fmt.Errorf("%s: %w", op, werr)
	}

	entry := Entry{RunID: runID, At: runAt, Archived: moves, Written: written, Notes: notes}
	if err := m.appendLog(entry); err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("published run", slog.Int("files", len(written)))

	if m.mirror != nil {
		for i, a := range artifacts {
			if err := m.mirror.Put(ctx, names[i], a.Data, a.contentType()); err != nil {
				log.Warn("mirror upload failed", slog.String("file", names[i]), slog.String("error", err.Error()))
			}
		}
	}

	return Manifest{
		RunID:    runID,
		At:       runAt,
		Current:  written,
		Archived: moves,
		LogPath:  ChangeLog,
	}, nil
}

// Current lists the file names in current/, sorted.
func (m *Manager) Current() ([]string, error) {
	const op = "output.Manager.Current"

	names, err := m.collect()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return names, nil
}

// Open returns the content of a file in current/.
func (m *Manager) Open(name string) ([]byte, error) {
	const op = "output.Manager.Open"

	if name != filepath.Base(name) {
		return nil, fmt.Errorf("%s: invalid name %q", op, name)
	}
	data, err := os.ReadFile(filepath.Join(m.currentDir(), name))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return data, nil
}

func fileNames(artifacts []Artifact, runAt time.Time) ([]string, error) {
	names := make([]string, len(artifacts))
	seen := make(map[string]bool, len(artifacts))
	var failures []PathError
	for i, a := range artifacts {
		n := a.FileName(runAt)
		switch {
		case a.Kind == "" || a.Ext == "":
			failures = append(failures, PathError{Path: n, Err: errors.New("artifact needs kind and extension")})
		case seen[n]:
			failures = append(failures, PathError{Path: n, Err: fs.ErrExist})
		}
		seen[n] = true
		names[i] = n
	}
	if len(failures) > 0 {
		return nil, &Error{Stage: StageValidate, Failures: failures}
	}
	return names, nil
}

func (m *Manager) collect() ([]string, error) {
	entries, err := os.ReadDir(m.currentDir())
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// archive moves every name from current/ to archive/. On any failure the
// files already moved are put back and an *Error lists every failed path.
func (m *Manager) archive(names []string) ([]Move, error) {
	moves := make([]Move, 0, len(names))
	var failures []PathError

	for _, n := range names {
		from := filepath.Join(m.currentDir(), n)
		to, err := freeName(m.archiveDir(), n)
		if err == nil {
			err = m.rename(from, to)
		}
		if err != nil {
			failures = append(failures, PathError{Path: filepath.Join(CurrentDir, n), Err: err})
			continue
		}
		moves = append(moves, Move{From: filepath.Join(CurrentDir, n), To: m.rel(to)})
	}

	if len(failures) == 0 {
		return moves, nil
	}

	_, restoreFailures := m.restore(moves)
	failures = append(failures, restoreFailures...)
	return nil, &Error{Stage: StageArchive, Failures: failures}
}

// restore moves archived files back to current/. It returns the moves it
// could not undo.
func (m *Manager) restore(moves []Move) ([]Move, []PathError) {
	var stranded []Move
	var failures []PathError
	for _, mv := range moves {
		if err := m.rename(filepath.Join(m.root, mv.To), filepath.Join(m.root, mv.From)); err != nil {
			stranded = append(stranded, mv)
			failures = append(failures, PathError{Path: mv.To, Err: fmt.Errorf("restore: %w", err)})
		}
	}
	return stranded, failures
}

// freeName returns dir/name, or dir/{base}_v{N}{ext} with the lowest N
// that does not exist yet.
func freeName(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for v := 1; ; v++ {
		_, err := os.Lstat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_v%d%s", base, v, ext))
	}
}

// write stores every artifact through a temp file and rename. If any
// write fails the files written so far are removed.
func (m *Manager) write(artifacts []Artifact, names []string) ([]string, *Error) {
	written := make([]string, 0, len(artifacts))
	var failures []PathError

	for i, a := range artifacts {
		dst := filepath.Join(m.currentDir(), names[i])
		if err := writeFile(dst, a.Data); err != nil {
			failures = append(failures, PathError{Path: filepath.Join(CurrentDir, names[i]), Err: err})
			continue
		}
		written = append(written, filepath.Join(CurrentDir, names[i]))
	}

	if len(failures) == 0 {
		return written, nil
	}

	for _, w := range written {
		if err := os.Remove(filepath.Join(m.root, w)); err != nil {
			failures = append(failures, PathError{Path: w, Err: fmt.Errorf("cleanup: %w", err)})
		}
	}
	return nil, &Error{Stage: StageWrite, Failures: failures}
}

func writeFile(dst string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (m *Manager) appendLog(e Entry) error {
	path := filepath.Join(m.root, ChangeLog)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &Error{Stage: StageLog, Failures: []PathError{{Path: ChangeLog, Err: err}}}
	}
	defer f.Close()

	if _, err := f.WriteString(e.String()); err != nil {
		return &Error{Stage: StageLog, Failures: []PathError{{Path: ChangeLog, Err: err}}}
	}
	return nil
}

func (m *Manager) rel(path string) string {
	r, err := filepath.Rel(m.root, path)
	if err != nil {
		return path
	}
	return r
}

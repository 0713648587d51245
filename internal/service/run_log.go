package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type LogEntry struct {
	At      time.Time  `json:"at"`
	Level   slog.Level `json:"level"`
	Stage   string     `json:"stage"`
	Message string     `json:"message"`
}

// RunLog records what happened during one run. It is returned to the
// caller with the result; entries are also sent to the service logger.
type RunLog struct {
	RunID    string     `json:"run_id"`
	Started  time.Time  `json:"started"`
	Finished time.Time  `json:"finished"`
	Entries  []LogEntry `json:"entries"`

	mu  sync.Mutex
	log *slog.Logger
}

func newRunLog(runID string, started time.Time, log *slog.Logger) *RunLog {
	return &RunLog{RunID: runID, Started: started, log: log}
}

func (l *RunLog) Info(stage, msg string)  { l.add(slog.LevelInfo, stage, msg) }
func (l *RunLog) Warn(stage, msg string)  { l.add(slog.LevelWarn, stage, msg) }
func (l *RunLog) Error(stage, msg string) { l.add(slog.LevelError, stage, msg) }

func (l *RunLog) add(level slog.Level, stage, msg string) {
	l.mu.Lock()
	l.Entries = append(l.Entries, LogEntry{At: time.Now(), Level: level, Stage: stage, Message: msg})
	l.mu.Unlock()

	if l.log != nil {
		l.log.Log(context.Background(), level, msg, slog.String("stage", stage))
	}
}

// Warnings returns entries at warn level or above.
func (l *RunLog) Warnings() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []LogEntry
	for _, e := range l.Entries {
		if e.Level >= slog.LevelWarn {
			out = append(out, e)
		}
	}
	return out
}

package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field names shared by the pipeline, watcher and server.
const (
	KeyBuildID    = "build_id"
	KeyStep       = "step"
	KeyCategory   = "category"
	KeyPath       = "path"
	KeyEvent      = "event"
	KeyMode       = "mode"
	KeyDurationMS = "duration_ms"
	KeyWritten    = "written"
	KeySkipped    = "skipped"
	KeyError      = "error"
)

func BuildID(id string) slog.Attr   { return slog.String(KeyBuildID, id) }
func Step(name string) slog.Attr    { return slog.String(KeyStep, name) }
func Category(c string) slog.Attr   { return slog.String(KeyCategory, c) }
func Path(p string) slog.Attr       { return slog.String(KeyPath, p) }
func Event(kind string) slog.Attr   { return slog.String(KeyEvent, kind) }
func Mode(m string) slog.Attr       { return slog.String(KeyMode, m) }
func Written(n int) slog.Attr       { return slog.Int(KeyWritten, n) }
func Skipped(n int) slog.Attr       { return slog.Int(KeySkipped, n) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

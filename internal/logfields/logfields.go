// Package logfields keeps slog attribute keys consistent across packages.
package logfields

import (
	"log/slog"
	"time"
)

const (
	KeyNotebook   = "notebook"
	KeyPath       = "path"
	KeySlug       = "slug"
	KeyAction     = "action"
	KeyActionID   = "action_id"
	KeyEvent      = "event"
	KeyOutput     = "output"
	KeyProcess    = "process"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

func Notebook(p string) slog.Attr { return slog.String(KeyNotebook, p) }
func Path(p string) slog.Attr     { return slog.String(KeyPath, p) }
func Slug(s string) slog.Attr     { return slog.String(KeySlug, s) }
func Action(a string) slog.Attr   { return slog.String(KeyAction, a) }
func ActionID(id string) slog.Attr {
	return slog.String(KeyActionID, id)
}
func Event(e string) slog.Attr   { return slog.String(KeyEvent, e) }
func Output(p string) slog.Attr  { return slog.String(KeyOutput, p) }
func Process(n string) slog.Attr { return slog.String(KeyProcess, n) }

func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

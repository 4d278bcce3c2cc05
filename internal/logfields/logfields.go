package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyTenant     = "tenant"
	KeyURL        = "url"
	KeyPath       = "path"
	KeySegment    = "segment_id"
	KeyQuery      = "query"
	KeyWorker     = "worker"
	KeyStage      = "stage"
	KeyReason     = "reason"
	KeyStatus     = "status"
	KeyCount      = "count"
	KeyDurationMS = "duration_ms"
	KeySchedule   = "schedule"
	KeyHost       = "host"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Tenant(codename string) slog.Attr { return slog.String(KeyTenant, codename) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Segment(id string) slog.Attr      { return slog.String(KeySegment, id) }
func Query(q string) slog.Attr         { return slog.String(KeyQuery, q) }
func Worker(w string) slog.Attr        { return slog.String(KeyWorker, w) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func Reason(r string) slog.Attr        { return slog.String(KeyReason, r) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func Count(n int) slog.Attr            { return slog.Int(KeyCount, n) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Schedule(expr string) slog.Attr   { return slog.String(KeySchedule, expr) }
func Host(h string) slog.Attr          { return slog.String(KeyHost, h) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

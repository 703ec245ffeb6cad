package logging

import (
	"log/slog"
	"time"
)

// Shared attribute keys so reports and log greps stay consistent across
// components.
const (
	FieldComponent  = "component"
	FieldEvent      = "event_type"
	FieldUserID     = "user_id"
	FieldTopicID    = "topic_id"
	FieldWorkItemID = "work_item_id"
	FieldReviewID   = "review_id"
	FieldDueAt      = "due_at"
	FieldScore      = "score"
	FieldCount      = "count"
	FieldDuration   = "duration"
	FieldError      = "error"
)

// Common event_type values.
const (
	EventAssigned   = "assigned"
	EventSubmitted  = "submitted"
	EventReviewed   = "reviewed"
	EventJudged     = "judged"
	EventExpired    = "expired"
	EventAbandoned  = "abandoned"
	EventPublished  = "published"
	EventTick       = "tick"
	EventShutdown   = "shutdown"
	EventStartup    = "startup"
	EventNotifyFail = "notify_failed"
)

// Error wraps an error as a slog attribute, tolerating nil.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

func String(key, value string) slog.Attr { return slog.String(key, value) }

func Int(key string, value int) slog.Attr { return slog.Int(key, value) }

func Int64(key string, value int64) slog.Attr { return slog.Int64(key, value) }

func Float64(key string, value float64) slog.Attr { return slog.Float64(key, value) }

func Bool(key string, value bool) slog.Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) slog.Attr { return slog.Duration(key, value) }

func Time(key string, value time.Time) slog.Attr {
	return slog.Time(key, value.UTC())
}

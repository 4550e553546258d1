package logging

import "log/slog"

// Common field names for consistent logging across the archiver.
const (
	FieldService   = "service"
	FieldRequestID = "aws_request_id"
	FieldTable     = "table"
	FieldBucket    = "bucket"
	FieldKey       = "key"
	FieldItemID    = "item_id"
	FieldEventID   = "event_id"
	FieldEventName = "event_name"
	FieldReason    = "reason"
	FieldAttempts  = "attempts"
	FieldError     = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// RequestID returns a slog attribute for the Lambda request ID.
func RequestID(id string) slog.Attr {
	return slog.String(FieldRequestID, id)
}

// Table returns a slog attribute for the source table name.
func Table(name string) slog.Attr {
	return slog.String(FieldTable, name)
}

// Bucket returns a slog attribute for the archive bucket.
func Bucket(name string) slog.Attr {
	return slog.String(FieldBucket, name)
}

// Key returns a slog attribute for an archive object key.
func Key(key string) slog.Attr {
	return slog.String(FieldKey, key)
}

// ItemID returns a slog attribute for the archived item's identifier.
func ItemID(id string) slog.Attr {
	return slog.String(FieldItemID, id)
}

// EventID returns a slog attribute for a change record's event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// EventName returns a slog attribute for a change record's event name.
func EventName(name string) slog.Attr {
	return slog.String(FieldEventName, name)
}

// Reason returns a slog attribute for a failure reason.
func Reason(reason string) slog.Attr {
	return slog.String(FieldReason, reason)
}

// Attempts returns a slog attribute for the number of attempts made.
func Attempts(n int) slog.Attr {
	return slog.Int(FieldAttempts, n)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

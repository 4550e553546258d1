// Package stream models the change records delivered from a DynamoDB stream.
//
// Attribute values are kept as raw, type-tagged JSON so that a single malformed
// value fails only the record that carries it, never the decode of the batch.
package stream

import (
	"errors"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

// EventName identifies the kind of mutation a record describes.
type EventName string

const (
	EventInsert EventName = "INSERT"
	EventModify EventName = "MODIFY"
	EventRemove EventName = "REMOVE"
)

// ErrMalformedBatch is returned when a delivered payload is not a change stream batch.
var ErrMalformedBatch = errors.New("malformed change stream batch")

// Image is a row image: attribute name to its type-tagged value, e.g. {"S":"42"}.
type Image map[string]json.RawMessage

// ActorIdentity describes who performed a mutation.
type ActorIdentity struct {
	PrincipalType string `json:"type"`
	PrincipalID   string `json:"principalId"`
}

// StreamData is the table-specific part of a change record.
type StreamData struct {
	ApproximateCreationDateTime float64 `json:"ApproximateCreationDateTime,omitempty"`
	Keys                        Image   `json:"Keys,omitempty"`
	NewImage                    Image   `json:"NewImage,omitempty"`
	OldImage                    Image   `json:"OldImage,omitempty"`
	SequenceNumber              string  `json:"SequenceNumber,omitempty"`
	SizeBytes                   int64   `json:"SizeBytes,omitempty"`
	StreamViewType              string  `json:"StreamViewType,omitempty"`
}

// ChangeRecord is one delivered notification of a mutation to a single row.
type ChangeRecord struct {
	EventID        string         `json:"eventID"`
	EventName      EventName      `json:"eventName"`
	EventVersion   string         `json:"eventVersion,omitempty"`
	EventSource    string         `json:"eventSource,omitempty"`
	AWSRegion      string         `json:"awsRegion,omitempty"`
	EventSourceARN string         `json:"eventSourceARN,omitempty"`
	UserIdentity   *ActorIdentity `json:"userIdentity,omitempty"`
	Change         StreamData     `json:"dynamodb"`
}

// OldImage returns the row state before the mutation, nil when absent.
func (r *ChangeRecord) OldImage() Image {
	return r.Change.OldImage
}

// NewImage returns the row state after the mutation, nil when absent.
func (r *ChangeRecord) NewImage() Image {
	return r.Change.NewImage
}

// Event is one delivered batch of change records.
type Event struct {
	Records []ChangeRecord `json:"Records"`
}

// Validate rejects payloads that are not change stream batches at all.
func (e *Event) Validate() error {
	if e == nil || e.Records == nil {
		return fmt.Errorf("%w: missing Records", ErrMalformedBatch)
	}
	return nil
}

// Decode reads a batch from r and validates its shape.
func Decode(r io.Reader) (*Event, error) {
	var event Event
	if err := json.NewDecoder(r).Decode(&event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}

// Encode writes the batch to w as JSON.
func Encode(w io.Writer, event *Event) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(event)
}

package domain

import "encoding/json"

// EventType identifies the kind of registry operation an event record
// tracks. It doubles as the storage type partition for the record.
type EventType string

const (
	EventTypeRegDefCreate EventType = "rev_reg_def_create"
	EventTypeRegDefStore  EventType = "rev_reg_def_store"
	EventTypeListCreate   EventType = "rev_list_create"
	EventTypeListStore    EventType = "rev_list_store"
	EventTypeRegActivate  EventType = "rev_reg_activate"
	EventTypeRegFull      EventType = "rev_reg_full"
)

// AllEventTypes lists every event type in scan order.
var AllEventTypes = []EventType{
	EventTypeRegDefCreate,
	EventTypeRegDefStore,
	EventTypeListCreate,
	EventTypeListStore,
	EventTypeRegActivate,
	EventTypeRegFull,
}

// EventState is the durable state of an event record.
type EventState string

const (
	StateRequested EventState = "requested"
	StateSuccess   EventState = "success"
	StateFailure   EventState = "failure"
)

// RetryMetadata records how the current expiry was computed, for
// observability and to resume backoff after a restart.
type RetryMetadata struct {
	RetryCount   int     `json:"retry_count"`
	DelaySeconds int     `json:"delay_seconds"`
	MinSeconds   int     `json:"min_retry_duration"`
	MaxSeconds   int     `json:"max_retry_duration"`
	Multiplier   float64 `json:"retry_multiplier"`
}

// EventRecord is the unit of durability for an interrupted operation.
// Timestamps are RFC3339 strings: an unparseable expiry must be detectable
// and counted as expired instead of aborting a scan.
type EventRecord struct {
	EventType       EventType       `json:"event_type"`
	CorrelationID   string          `json:"correlation_id"`
	RequestID       string          `json:"request_id,omitempty"`
	EventData       json.RawMessage `json:"event_data"`
	State           EventState      `json:"state"`
	Options         map[string]any  `json:"options,omitempty"`
	CreatedAt       string          `json:"created_at"`
	ExpiryTimestamp string          `json:"expiry_timestamp"`
	ResponseSuccess *bool           `json:"response_success,omitempty"`
	ResponseData    json.RawMessage `json:"response_data,omitempty"`
	ErrorMsg        string          `json:"error_msg,omitempty"`
	RetryMetadata   *RetryMetadata  `json:"retry_metadata,omitempty"`
}

// CopyOptions returns a shallow copy of the record's options so callers can
// merge recovery flags without mutating the stored record.
func (r *EventRecord) CopyOptions() map[string]any {
	opts := make(map[string]any, len(r.Options)+2)
	for k, v := range r.Options {
		opts[k] = v
	}
	return opts
}

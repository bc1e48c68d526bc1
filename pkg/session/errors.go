package session

import "errors"

var (
	ErrGenerationInFlight = errors.New("a generation is already in flight")
	ErrNoConversation     = errors.New("no conversation to follow up on, start an analysis first")
	ErrNoCheckpoint       = errors.New("nothing to restart")
	ErrSessionNotFound    = errors.New("session not found")
)

const (
	// StoppedMarker is appended to the partial text of a stopped turn.
	StoppedMarker = "Generation stopped by user."
	// ErrorMarkerPrefix prefixes the text of a failed turn.
	ErrorMarkerPrefix = "Error: "
	// CompleteMessage is the payload of the complete event.
	CompleteMessage = "Analysis complete."
)

package coordinator

import (
	"time"

	apperrors "github.com/louisbranch/duelhall/internal/platform/errors"
)

// Kind names a session lifecycle transition.
type Kind string

const (
	KindCreated          Kind = "created"
	KindJoined           Kind = "joined"
	KindJoinRejected     Kind = "join_rejected"
	KindPeerDisconnected Kind = "peer_disconnected"
	KindAbandoned        Kind = "abandoned"
	KindClosed           Kind = "closed"
)

// Event describes one lifecycle transition for observers. Moves are not
// reported.
type Event struct {
	Kind       Kind
	RoomID     string
	ConnID     ConnID
	Username   string
	Code       apperrors.Code // set on KindJoinRejected
	OccurredAt time.Time
}

// Recorder observes lifecycle events.
type Recorder interface {
	Record(evt Event)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(evt Event)

// Record implements Recorder.
func (fn RecorderFunc) Record(evt Event) {
	fn(evt)
}

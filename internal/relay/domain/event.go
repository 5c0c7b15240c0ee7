package domain

// EventKind names a push from the relay to a connected client.
type EventKind string

const (
	EventReceiveMessage      EventKind = "ReceiveMessage"
	EventMessageSent         EventKind = "MessageSent"
	EventReceiveCallOffer    EventKind = "ReceiveCallOffer"
	EventReceiveCallAnswer   EventKind = "ReceiveCallAnswer"
	EventReceiveCallReject   EventKind = "ReceiveCallReject"
	EventReceiveIceCandidate EventKind = "ReceiveIceCandidate"
)

// Event is delivered to a live session. Exactly one of Message and Signal is
// set, matching Kind.
type Event struct {
	Kind    EventKind
	Message *Message
	Signal  *Signal
}

// SignalEvent maps a signal to the event its receiver gets.
func SignalEvent(s Signal) Event {
	var kind EventKind
	switch s.Kind {
	case SignalOffer:
		kind = EventReceiveCallOffer
	case SignalAnswer:
		kind = EventReceiveCallAnswer
	case SignalReject:
		kind = EventReceiveCallReject
	case SignalIceCandidate:
		kind = EventReceiveIceCandidate
	}
	return Event{Kind: kind, Signal: &s}
}

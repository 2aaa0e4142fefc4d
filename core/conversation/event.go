package conversation

// EventKind tags an inbound Event.
type EventKind int

const (
	// EventStart begins (or restarts) a merge.
	EventStart EventKind = iota + 1
	// EventImage carries raw image bytes.
	EventImage
	// EventText carries user text, including unsupported content mapped to text.
	EventText
	// EventCancel aborts the current merge.
	EventCancel
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventImage:
		return "image"
	case EventText:
		return "text"
	case EventCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Event is one inbound input for a chat. Only the payload matching Kind is set.
type Event struct {
	Kind  EventKind
	Image []byte
	Text  string
}

// Start builds a start event.
func Start() Event { return Event{Kind: EventStart} }

// Cancel builds a cancel event.
func Cancel() Event { return Event{Kind: EventCancel} }

// Image builds an image event.
func Image(data []byte) Event { return Event{Kind: EventImage, Image: data} }

// Text builds a text event.
func Text(s string) Event { return Event{Kind: EventText, Text: s} }

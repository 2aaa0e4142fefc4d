package conversation

// ActionKind tags an outbound Action.
type ActionKind int

const (
	// ActionText is a plain text reply.
	ActionText ActionKind = iota + 1
	// ActionImage is an encoded image reply.
	ActionImage
)

func (k ActionKind) String() string {
	switch k {
	case ActionText:
		return "text"
	case ActionImage:
		return "image"
	default:
		return "unknown"
	}
}

// Keyboard hints which reply keyboard the transport should attach.
type Keyboard int

const (
	// KeyboardNone leaves the current keyboard untouched.
	KeyboardNone Keyboard = iota
	// KeyboardCancel offers a single cancel button during a merge.
	KeyboardCancel
	// KeyboardMenu offers the button that starts a new merge.
	KeyboardMenu
)

// Action is one outbound message for the chat that produced the event.
type Action struct {
	Kind     ActionKind
	Text     string
	Image    []byte
	Filename string
	// Label is the trimmed text rendered into Image.
	Label    string
	Keyboard Keyboard
}

func textAction(text string, kb Keyboard) Action {
	return Action{Kind: ActionText, Text: text, Keyboard: kb}
}

package helpers

import tele "gopkg.in/telebot.v4"

const repliesKey = "replies"

// replyTally counts the replies queued while one update is handled.
// Sends run later on the dispatcher, so the tally is taken at enqueue time.
type replyTally struct {
	messages int
	keyboard bool
}

// ResetReplies starts a fresh tally for the current update.
func ResetReplies(c tele.Context) {
	if c != nil {
		c.Set(repliesKey, &replyTally{})
	}
}

// RecordReplies adds n queued messages to the tally. keyboard marks that at
// least one of them carries reply markup.
func RecordReplies(c tele.Context, n int, keyboard bool) {
	if c == nil {
		return
	}
	t, ok := c.Get(repliesKey).(*replyTally)
	if !ok {
		return
	}
	t.messages += n
	t.keyboard = t.keyboard || keyboard
}

// Replies returns the tally of the current update.
func Replies(c tele.Context) (messages int, keyboard bool) {
	if c == nil {
		return 0, false
	}
	if t, ok := c.Get(repliesKey).(*replyTally); ok {
		return t.messages, t.keyboard
	}
	return 0, false
}

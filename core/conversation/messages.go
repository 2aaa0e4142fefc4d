package conversation

import "fmt"

// User facing replies.
const (
	MsgAskMain      = "Send me the main image."
	MsgAskReference = "Great! Now send me the reference image for the center."
	MsgAskName      = "Now send me the name to add at the bottom."
	MsgNeedStart    = "Send /start to create a new image."
	MsgCancelled    = "Operation cancelled. Send /start to try again."
	MsgNeedImage    = "That is not an image. Please send a photo or an image file."
	MsgNeedName     = "The name cannot be empty. Please send the text to add at the bottom."
	MsgNeedText     = "Please send the name as text."
	MsgDecodeFailed = "I could not read that image. Send /start to try again."
	MsgFailed       = "Something went wrong while creating your image. Send /start to try again."
	MsgDone         = "Here is your merged image! Send /start to create another one."

	// ResultFilename names the document carrying the merged image.
	ResultFilename = "merged.png"
)

func msgLabelTooLong(limit int) string {
	return fmt.Sprintf("The name is too long. Please keep it under %d characters.", limit)
}

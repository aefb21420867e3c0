package domain

import "fmt"

// Destination naming is a stable wire contract; older clients match these
// strings verbatim.

func UserFamilyDest(userID int64) string {
	return fmt.Sprintf("/user/%d/family", userID)
}

func FamilyDest(familyID int64) string {
	return fmt.Sprintf("/family/%d", familyID)
}

func UserMessagesDest(userID int64) string {
	return fmt.Sprintf("/user/%d/messages", userID)
}

func UserCommentsDest(userID, parentMessageID int64) string {
	return fmt.Sprintf("/user/%d/comments/%d", userID, parentMessageID)
}

func UserReactionsDest(userID int64) string {
	return fmt.Sprintf("/user/%d/reactions", userID)
}

func UserCommentCountsDest(userID int64) string {
	return fmt.Sprintf("/user/%d/comment-counts", userID)
}

func UserInvitationsDest(userID int64) string {
	return fmt.Sprintf("/user/%d/invitations", userID)
}

func DMListDest(recipientID int64) string {
	return fmt.Sprintf("/topic/dm-list/%d", recipientID)
}

func DMThreadDest(recipientID int64) string {
	return fmt.Sprintf("/topic/dm-thread/%d", recipientID)
}

func UserPongDest(userID int64) string {
	return fmt.Sprintf("/user/%d/queue/pong", userID)
}

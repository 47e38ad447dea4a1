package v1

// MemberState is the platform-reported membership status of a user in a
// community.
type MemberState string

const (
	// MemberStateAbsent means the user has never been, or is no longer, a
	// member ("left" on most platforms).
	MemberStateAbsent MemberState = "absent"
	// MemberStateRemoved means the user was kicked or banned out.
	MemberStateRemoved MemberState = "removed"
	// MemberStateActive means the user is a full posting member.
	MemberStateActive MemberState = "active"
	// MemberStateRestricted means the user is a member with suppressed
	// permissions.
	MemberStateRestricted MemberState = "restricted"
	// MemberStatePending means the user has an open join request.
	MemberStatePending MemberState = "pending"
	// MemberStateAdmin means the user administers the community.
	MemberStateAdmin MemberState = "admin"
)

// JoinRequestPayload accompanies KindJoinRequest.
type JoinRequestPayload struct {
	UserID      string `json:"user_id"`
	CommunityID string `json:"community_id"`
}

// StartPayload accompanies KindStart. EntryToken is the opaque deep-link
// payload minted by the bot when the join request was first seen.
type StartPayload struct {
	UserID     string `json:"user_id"`
	EntryToken string `json:"entry_token"`
}

// MessagePayload accompanies KindMessage.
type MessagePayload struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// MemberUpdatedPayload accompanies KindMemberUpdated.
type MemberUpdatedPayload struct {
	UserID      string      `json:"user_id"`
	CommunityID string      `json:"community_id"`
	Previous    MemberState `json:"previous"`
	Current     MemberState `json:"current"`
}

// ErrorPayload accompanies KindError.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

package core

// Push-style event names emitted to live connections.
const (
	EventFriendRequest         = "friendRequest"
	EventFriendRequestAccepted = "friendRequestAccepted"
	EventFriendRequestRejected = "friendRequestRejected"
	EventChatMessage           = "chatMessage"
	EventGroupMessage          = "groupMessage"
	EventGroupChatCreated      = "groupChatCreated"
	EventJoinGroupRequest      = "joinGroupRequest"
	EventJoinGroupApproved     = "joinGroupApproved"
	EventJoinGroupRejected     = "joinGroupRejected"
	EventInviteToGroup         = "inviteToGroup"
	EventGroupInviteRejected   = "groupInviteRejected"
	EventSessionSuperseded     = "sessionSuperseded"
)

// Event is sent to clients to describe what happened in the system.
// Payload is marshalled as the event data on the wire.
type Event struct {
	Name    string
	Payload any
}

// NewEvent builds an event.
func NewEvent(name string, payload any) *Event {
	return &Event{Name: name, Payload: payload}
}

// FriendRequestPayload notifies a user about an incoming friend request.
type FriendRequestPayload struct {
	FromUID      string `json:"fromUid"`
	FromNickname string `json:"fromNickname"`
}

// FriendAcceptedPayload tells one side that the friendship is established.
type FriendAcceptedPayload struct {
	FromUID      string `json:"fromUid"`
	FromNickname string `json:"fromNickname"`
	ChatID       string `json:"chatId"`
}

// FriendRejectedPayload tells the requester that the request was declined.
type FriendRejectedPayload struct {
	FromUID string `json:"fromUid"`
}

// GroupCreatedPayload announces a new group to its members.
type GroupCreatedPayload struct {
	ChatID  string `json:"chatId"`
	Name    string `json:"name"`
	GroupID string `json:"groupId"`
}

// JoinRequestPayload asks a group admin to approve a member.
type JoinRequestPayload struct {
	GroupID      string `json:"groupId"`
	FromUID      string `json:"fromUid"`
	FromNickname string `json:"fromNickname"`
}

// JoinApprovedPayload tells a user they are now a group member.
type JoinApprovedPayload struct {
	ChatID  string `json:"chatId"`
	GroupID string `json:"groupId"`
	Name    string `json:"name"`
}

// JoinRejectedPayload tells a user their join request was declined.
type JoinRejectedPayload struct {
	GroupID string `json:"groupId"`
}

// GroupInvitePayload invites a user into a group.
type GroupInvitePayload struct {
	GroupID      string `json:"groupId"`
	GroupName    string `json:"groupName"`
	FromUID      string `json:"fromUid"`
	FromNickname string `json:"fromNickname"`
}

// InviteRejectedPayload tells the inviter their invite was declined.
type InviteRejectedPayload struct {
	GroupID string `json:"groupId"`
	ToUID   string `json:"toUid"`
}

// SupersededPayload is the last event a replaced session receives.
type SupersededPayload struct {
	Reason string `json:"reason"`
}

// MessagePayload is the wire view of a chat message.
type MessagePayload struct {
	Seq       int64  `json:"seq"`
	ChatID    string `json:"chatId"`
	FromUID   string `json:"fromUid,omitempty"`
	Message   string `json:"message"`
	Nickname  string `json:"nickname,omitempty"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 2

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// Inbound event names.
const (
	TypeRegister                = "register"
	TypeLogin                   = "login"
	TypeUpdateNickname          = "updateNickname"
	TypeFriendRequest           = "friendRequest"
	TypeFriendRequestByNickname = "friendRequestByNickname"
	TypeAcceptFriendRequest     = "acceptFriendRequest"
	TypeRejectFriendRequest     = "rejectFriendRequest"
	TypeSearchUsers             = "searchUsers"
	TypeStartFriendChat         = "startFriendChat"
	TypeCreateGroupChat         = "createGroupChat"
	TypeSearchGroups            = "searchGroups"
	TypeJoinGroupRequest        = "joinGroupRequest"
	TypeApproveJoinGroup        = "approveJoinGroup"
	TypeRejectJoinGroup         = "rejectJoinGroup"
	TypeInviteToGroup           = "inviteToGroup"
	TypeAcceptGroupInvite       = "acceptGroupInvite"
	TypeRejectGroupInvite       = "rejectGroupInvite"
	TypeLeaveGroup              = "leaveGroup"
	TypeChatMessage             = "chatMessage"
	TypeGroupMessage            = "groupMessage"
	TypeGetChatList             = "getChatList"
	TypeGetFriendList           = "getFriendList"
	TypeGetChatHistory          = "getChatHistory"
)

// ResponseName is the outbound event answering an inbound one.
func ResponseName(inboundType string) string {
	return inboundType + "Response"
}

// FailedName is the outbound event reporting a rejected message send.
func FailedName(inboundType string) string {
	return inboundType + "Failed"
}

// RegisterData creates an account.
type RegisterData struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Nickname string `json:"nickname,omitempty"`
}

// LoginData binds the connection to a user, either with credentials or
// with a token from an earlier login.
type LoginData struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// UpdateNicknameData changes the caller's nickname.
type UpdateNicknameData struct {
	UID      string `json:"uid"`
	Nickname string `json:"nickname"`
}

// PairData names two users, used by the friend request family.
type PairData struct {
	FromUID string `json:"fromUid"`
	ToUID   string `json:"toUid"`
}

// FriendRequestByNicknameData targets a user by nickname.
type FriendRequestByNicknameData struct {
	FromUID  string `json:"fromUid"`
	Nickname string `json:"nickname"`
}

// SearchUsersData looks users up by substring.
type SearchUsersData struct {
	FromUID string `json:"fromUid"`
	Query   string `json:"query"`
}

// CreateGroupChatData creates a group with the caller as admin.
type CreateGroupChatData struct {
	FromUID    string   `json:"fromUid,omitempty"`
	GroupName  string   `json:"groupName"`
	Password   string   `json:"password,omitempty"`
	MemberUIDs []string `json:"memberUids"`
}

// SearchGroupsData looks groups up, optionally joining with a password.
type SearchGroupsData struct {
	FromUID  string `json:"fromUid"`
	Query    string `json:"query"`
	Password string `json:"password,omitempty"`
}

// JoinGroupData asks to join a group.
type JoinGroupData struct {
	GroupID  string `json:"groupId"`
	Password string `json:"password"`
	FromUID  string `json:"fromUid"`
}

// GroupPairData names a group and two users: the requester or inviter in
// FromUID, and the admin or invitee in ToUID.
type GroupPairData struct {
	GroupID string `json:"groupId"`
	FromUID string `json:"fromUid"`
	ToUID   string `json:"toUid"`
}

// InviteToGroupData invites friends into a group.
type InviteToGroupData struct {
	FromUID    string   `json:"fromUid"`
	GroupID    string   `json:"groupId"`
	FriendUIDs []string `json:"friendUids"`
}

// LeaveGroupData removes the caller from a group.
type LeaveGroupData struct {
	GroupID string `json:"groupId"`
	UID     string `json:"uid"`
}

// ChatMessageData sends a message to a private chat or group.
type ChatMessageData struct {
	ChatID  string `json:"chatId"`
	FromUID string `json:"fromUid"`
	Message string `json:"message"`
}

// UIDData carries only the caller's uid.
type UIDData struct {
	UID string `json:"uid"`
}

// ChatHistoryData requests a chat log. Before is a unix-ms timestamp.
type ChatHistoryData struct {
	ChatID string `json:"chatId"`
	Limit  int    `json:"limit,omitempty"`
	Before int64  `json:"before,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

package proto

import "github.com/vovakirdan/wirechat-relay/internal/core"

// Response is the common part of every <name>Response event.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// OK is a bare successful response.
func OK() Response { return Response{Success: true} }

// Fail builds a failed response.
func Fail(code, msg string) Response {
	return Response{Success: false, Message: msg, Code: code}
}

type RegisterResponse struct {
	Response
	UID string `json:"uid"`
}

type LoginResponse struct {
	Response
	UID      string `json:"uid"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Token    string `json:"token,omitempty"`
}

type UpdateNicknameResponse struct {
	Response
	Nickname string `json:"nickname"`
}

type FriendRequestResponse struct {
	Response
	ToUID string `json:"toUid,omitempty"`
}

type AcceptFriendResponse struct {
	Response
	ChatID string `json:"chatId"`
}

// UserInfo is a user in search results and friend lists.
type UserInfo struct {
	UID      string `json:"uid"`
	Nickname string `json:"nickname"`
	Online   bool   `json:"online"`
}

type SearchUsersResponse struct {
	Response
	Users []UserInfo `json:"users"`
}

type GetFriendListResponse struct {
	Response
	Friends []UserInfo `json:"friends"`
}

type ChatIDResponse struct {
	Response
	ChatID string `json:"chatId"`
}

type GroupResponse struct {
	Response
	ChatID  string `json:"chatId"`
	GroupID string `json:"groupId"`
}

// GroupInfo is a group in search results.
type GroupInfo struct {
	ChatID   string `json:"chatId"`
	GroupID  string `json:"groupId"`
	Name     string `json:"name"`
	AdminUID string `json:"adminUid"`
}

type SearchGroupsResponse struct {
	Response
	Groups []GroupInfo `json:"groups,omitempty"`
	Joined bool        `json:"joined,omitempty"`
	ChatID string      `json:"chatId,omitempty"`
}

type JoinGroupResponse struct {
	Response
	GroupID string `json:"groupId"`
	Joined  bool   `json:"joined"`
	ChatID  string `json:"chatId,omitempty"`
}

type InviteToGroupResponse struct {
	Response
	Invited []string `json:"invited"`
}

type SendMessageResponse struct {
	Response
	Message core.MessagePayload `json:"message"`
}

// MessageFailed reports a rejected chatMessage or groupMessage.
type MessageFailed struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ChatListEntry is one line of getChatListResponse.
type ChatListEntry struct {
	ChatID      string               `json:"chatId"`
	Type        string               `json:"type"`
	Name        string               `json:"name"`
	LastMessage *core.MessagePayload `json:"lastMessage"`
}

type GetChatListResponse struct {
	Response
	ChatList []ChatListEntry `json:"chatList"`
}

type GetChatHistoryResponse struct {
	Response
	ChatID   string                `json:"chatId"`
	Messages []core.MessagePayload `json:"messages"`
}

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique key is already taken.
var ErrDuplicate = errors.New("duplicate")

// User represents a registered user.
type User struct {
	UID          string
	Username     string
	PasswordHash string
	Nickname     string
	CreatedAt    time.Time
}

// Friend is one side of an accepted friendship with the friend's nickname
// as last propagated.
type Friend struct {
	UID      string
	Nickname string
}

// FriendRequest is an unresolved friend request.
type FriendRequest struct {
	FromUID   string
	ToUID     string
	CreatedAt time.Time
}

// Chat represents a private chat between exactly two users.
type Chat struct {
	ChatID    string
	Name      string
	Members   []string
	CreatedAt time.Time
}

// GroupChat represents a group conversation. Members keep insertion order.
type GroupChat struct {
	ChatID       string
	GroupID      string
	Name         string
	PasswordHash string // empty when the group has no join secret
	AdminUID     string
	Members      []string
	CreatedAt    time.Time
}

// HasMember reports whether uid belongs to the group.
func (g *GroupChat) HasMember(uid string) bool {
	for _, m := range g.Members {
		if m == uid {
			return true
		}
	}
	return false
}

// MessageType distinguishes user messages from generated notices.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeSystem MessageType = "system"
)

// Message represents a persisted chat message. Nickname is the sender's
// nickname at send time.
type Message struct {
	Seq       int64
	ChatID    string
	FromUID   string
	Text      string
	Nickname  string
	Type      MessageType
	Timestamp time.Time
}

// PendingType defines the kind of a queued request.
type PendingType string

const (
	PendingFriend      PendingType = "friend"
	PendingJoinGroup   PendingType = "joinGroup"
	PendingGroupInvite PendingType = "groupInvite"
)

// PendingRequest is a request waiting for its target to come online.
type PendingRequest struct {
	ID           int64
	Type         PendingType
	FromUID      string
	FromNickname string
	ToUID        string
	GroupID      string
	GroupName    string
	CreatedAt    time.Time
}

// GroupInvite is an outstanding invitation into a group.
type GroupInvite struct {
	GroupID   string
	UID       string
	FromUID   string
	CreatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser inserts a user. Returns ErrDuplicate if the username is taken.
	CreateUser(ctx context.Context, u *User) error

	// GetUser retrieves a user by uid.
	GetUser(ctx context.Context, uid string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// FindUserByNickname finds a user by case-insensitive exact nickname, skipping excludeUID.
	FindUserByNickname(ctx context.Context, nickname, excludeUID string) (*User, error)

	// SearchUsers matches nickname, username or uid substrings, case-insensitive.
	SearchUsers(ctx context.Context, query, excludeUID string) ([]*User, error)

	// UpdateNickname changes a nickname and every friend snapshot of it atomically.
	UpdateNickname(ctx context.Context, uid, nickname string) error
}

// FriendStore handles friendships and unresolved friend requests.
type FriendStore interface {
	// CreateFriendRequest records an unresolved request.
	CreateFriendRequest(ctx context.Context, fromUID, toUID string) error

	// GetFriendRequest returns the unresolved request between two users in either direction.
	GetFriendRequest(ctx context.Context, a, b string) (*FriendRequest, error)

	// DeleteFriendRequest removes any request between two users in either direction.
	DeleteFriendRequest(ctx context.Context, a, b string) error

	// AreFriends checks whether b is in a's friend set.
	AreFriends(ctx context.Context, a, b string) (bool, error)

	// ListFriends returns uid's friend set.
	ListFriends(ctx context.Context, uid string) ([]*Friend, error)

	// AcceptFriendship adds both friend entries, clears the request and creates the
	// private chat if absent, all in one transaction. The bool reports chat creation.
	AcceptFriendship(ctx context.Context, a, b string, newChat *Chat) (*Chat, bool, error)
}

// ChatStore handles private chats.
type ChatStore interface {
	// GetChat retrieves a private chat by id.
	GetChat(ctx context.Context, chatID string) (*Chat, error)

	// GetDirectChat retrieves the private chat between two users.
	GetDirectChat(ctx context.Context, a, b string) (*Chat, error)

	// ListChats lists the private chats uid belongs to.
	ListChats(ctx context.Context, uid string) ([]*Chat, error)
}

// GroupStore handles group chats and their membership.
type GroupStore interface {
	// CreateGroup inserts a group with its members in order.
	CreateGroup(ctx context.Context, g *GroupChat) error

	// GetGroup retrieves a group by group id.
	GetGroup(ctx context.Context, groupID string) (*GroupChat, error)

	// GetGroupByChatID retrieves a group by its chat id.
	GetGroupByChatID(ctx context.Context, chatID string) (*GroupChat, error)

	// ListGroups lists the groups uid belongs to.
	ListGroups(ctx context.Context, uid string) ([]*GroupChat, error)

	// ListAdminGroups lists the groups administered by uid.
	ListAdminGroups(ctx context.Context, uid string) ([]*GroupChat, error)

	// SearchGroups matches name or group id substrings among groups uid is not in.
	SearchGroups(ctx context.Context, query, uid string) ([]*GroupChat, error)

	// AddGroupMember appends uid to the group. When the group was empty, uid
	// becomes admin. The bool reports whether uid was newly added.
	AddGroupMember(ctx context.Context, groupID, uid string) (*GroupChat, bool, error)

	// RemoveGroupMember removes uid and, if uid was admin, promotes the first
	// remaining member. Returns the updated group.
	RemoveGroupMember(ctx context.Context, groupID, uid string) (*GroupChat, error)

	// CreateGroupInvite records an outstanding invite.
	CreateGroupInvite(ctx context.Context, inv *GroupInvite) error

	// GetGroupInvite retrieves the invite of uid into a group.
	GetGroupInvite(ctx context.Context, groupID, uid string) (*GroupInvite, error)

	// DeleteGroupInvite removes the invite of uid into a group.
	DeleteGroupInvite(ctx context.Context, groupID, uid string) error
}

// MessageStore handles the per-chat append-only message log.
type MessageStore interface {
	// AppendMessage persists a message and assigns its sequence number.
	AppendMessage(ctx context.Context, msg *Message) error

	// ListMessages returns messages in ascending timestamp order. With limit > 0
	// only the newest limit messages older than before (if non-zero) are returned.
	ListMessages(ctx context.Context, chatID string, limit int, before time.Time) ([]*Message, error)

	// LastMessage returns the newest message of a chat, or ErrNotFound.
	LastMessage(ctx context.Context, chatID string) (*Message, error)
}

// PendingStore handles requests queued for offline targets.
type PendingStore interface {
	// CreatePending queues a request.
	CreatePending(ctx context.Context, p *PendingRequest) error

	// ListPendingFor lists requests addressed to uid, plus join requests for
	// groups that uid currently administers, oldest first.
	ListPendingFor(ctx context.Context, uid string) ([]*PendingRequest, error)

	// DeletePending removes a delivered request.
	DeletePending(ctx context.Context, id int64) error

	// DeleteJoinRequests removes queued join requests of uid for a group.
	DeleteJoinRequests(ctx context.Context, groupID, uid string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	FriendStore
	ChatStore
	GroupStore
	MessageStore
	PendingStore

	// Ping checks that the underlying database is reachable.
	Ping(ctx context.Context) error

	// Close closes the underlying database connection.
	Close() error
}

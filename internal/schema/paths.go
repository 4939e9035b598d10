// Package schema fixes the collection layout of the remote store and turns
// raw documents into model entities.
package schema

import "github.com/matheus3301/chatsync/internal/docstore"

const (
	users          = "users"
	chats          = "chats"
	friends        = "friends"
	friendRequests = "friendRequests"
	memberships    = "chats"
	incoming       = "incoming"
	messages       = "messages"
)

// UsersCollection holds every User document.
func UsersCollection() string { return users }

func UserPath(uid string) string { return docstore.Join(users, uid) }

func FriendsCollection(uid string) string { return docstore.Join(users, uid, friends) }

func FriendPath(uid, friendID string) string { return docstore.Join(FriendsCollection(uid), friendID) }

// RequestsCollection holds the incoming friend requests of uid.
func RequestsCollection(uid string) string { return docstore.Join(users, uid, friendRequests) }

func RequestPath(uid, fromID string) string { return docstore.Join(RequestsCollection(uid), fromID) }

// MembershipCollection holds the markers of chats uid takes part in.
func MembershipCollection(uid string) string { return docstore.Join(users, uid, memberships) }

func MembershipPath(uid, chatID string) string {
	return docstore.Join(MembershipCollection(uid), chatID)
}

// InboxCollection holds messages delivered to uid and not yet acknowledged.
func InboxCollection(uid string) string { return docstore.Join(users, uid, incoming) }

func InboxPath(uid, messageID string) string { return docstore.Join(InboxCollection(uid), messageID) }

func ChatsCollection() string { return chats }

func ChatPath(chatID string) string { return docstore.Join(chats, chatID) }

func MessagesCollection(chatID string) string { return docstore.Join(chats, chatID, messages) }

func MessagePath(chatID, messageID string) string {
	return docstore.Join(MessagesCollection(chatID), messageID)
}

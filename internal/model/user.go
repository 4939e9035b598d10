package model

// Color is an RGB overlay tint in the 0..1 range. It is opaque metadata for
// renderers and is never interpreted here.
type Color [3]float64

// User is the full profile document of an account.
type User struct {
	ID            string `json:"id"`
	DisplayName   string `json:"displayName"`
	Notifications bool   `json:"notifications"`
	Avatar        string `json:"avatar,omitempty"`
	Overlay       Color  `json:"overlay"`
}

// FriendReference is the relationship record actually stored under a user's
// friends or friendRequests collection.
type FriendReference struct {
	ID            string `json:"id"`
	Notifications bool   `json:"notifications"`
}

// Friend is a User projected through a FriendReference. Identity is the ID
// alone; cached copies are not refreshed when the source User changes.
type Friend struct {
	ID            string
	DisplayName   string
	Avatar        string
	Overlay       Color
	Notifications bool
}

// NewFriend hydrates a Friend from the referenced user and the relationship record.
func NewFriend(u User, ref FriendReference) Friend {
	return Friend{
		ID:            u.ID,
		DisplayName:   u.DisplayName,
		Avatar:        u.Avatar,
		Overlay:       u.Overlay,
		Notifications: ref.Notifications,
	}
}

// FriendFromUser builds a relationship-less projection, used for search hits
// that are not friends yet.
func FriendFromUser(u User) Friend {
	return NewFriend(u, FriendReference{ID: u.ID, Notifications: true})
}

// Same reports whether f and o denote the same identity.
func (f Friend) Same(o Friend) bool {
	return f.ID == o.ID
}

// FriendID is the identity key used by ordered sets of friends.
func FriendID(f Friend) string {
	return f.ID
}

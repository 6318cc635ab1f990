// Package repository defines typed storage interfaces for users and messages.
//
// Each entity gets explicit methods instead of a generic filter-to-SQL translator;
// implementations live in subpackages (see repository/mysql).
package repository

import (
	"context"
	"errors"

	"sayhi/internal/model"
)

var (
	// ErrNotFound indicates the requested row does not exist (or is not owned by the caller).
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = errors.New("duplicate key")
)

// MessageQuery selects a page of messages from one viewer's perspective.
type MessageQuery struct {
	Role          model.Role // which column ViewerID is matched against
	ViewerID      string
	CounterpartID string // optional: the other party of the conversation
	UnreadOnly    bool   // only rows whose retrieve_time is empty
	Offset        int
	Limit         int
	OrderBy       string // one of the whitelisted sort columns
	Desc          bool
}

// MarkReadOnFetch stamps retrieve_time on every row a Fetch returns.
// It runs in the same transaction as the page query.
type MarkReadOnFetch struct {
	RetrieveTime string
}

// MessagePage is a page of messages plus the total matching count.
type MessagePage struct {
	Items []model.Message
	Count int64
}

// MessageRepository provides access to the message table.
type MessageRepository interface {
	// InsertUnique inserts msg; returns ErrDuplicate when the id already exists.
	InsertUnique(ctx context.Context, msg *model.Message) error
	// Exists reports whether a message with id exists.
	Exists(ctx context.Context, id string) (bool, error)
	// FindOwned loads a message by id scoped to the owner's role.
	FindOwned(ctx context.Context, id string, role model.Role, ownerID string) (*model.Message, error)
	// Fetch returns a page; when mark is non-nil every returned row is stamped.
	Fetch(ctx context.Context, q MessageQuery, mark *MarkReadOnFetch) (MessagePage, error)
	// UpdateText rewrites the text of a message owned by senderID; ErrNotFound when no row matches.
	UpdateText(ctx context.Context, id, senderID, text string, editTime int64) error
	// SetRetrieveTime sets retrieve_time on a message received by receiverID; ErrNotFound when no row matches.
	SetRetrieveTime(ctx context.Context, id, receiverID, retrieveTime string, editTime int64) error
	// DeleteOwned deletes a message scoped to the owner's role; ErrNotFound when nothing matched.
	DeleteOwned(ctx context.Context, id string, role model.Role, ownerID string) error
}

// UserQuery selects a page of users.
type UserQuery struct {
	Status  string // optional exact status filter
	Offset  int
	Limit   int
	OrderBy string
	Desc    bool
}

// UserChanges lists profile fields to update; nil fields are left untouched.
type UserChanges struct {
	Username *string
	Realname *string
	Email    *string
	Password *string // already hashed
	Age      *int
	Gender   *string
	Avatar   *string
	Status   *string
	EditTime int64
}

// UserRepository provides access to the user table.
type UserRepository interface {
	// Create inserts a new user; returns ErrDuplicate on email/userid collision.
	Create(ctx context.Context, u *model.User) error
	// FindByUserID loads a user by public user id.
	FindByUserID(ctx context.Context, userID string) (*model.User, error)
	// FindByEmail loads a user by email.
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// FindAllByUsername loads users sharing a username (usernames are not unique).
	FindAllByUsername(ctx context.Context, username string) ([]model.User, error)
	// List returns a page of users and the total count.
	List(ctx context.Context, q UserQuery) ([]model.User, int64, error)
	// Update applies changes to the user identified by userID.
	Update(ctx context.Context, userID string, changes UserChanges) error
	// Delete removes the user; ErrNotFound when nothing matched.
	Delete(ctx context.Context, userID string) error
	// PickRandom returns one random user other than excludeUserID.
	PickRandom(ctx context.Context, excludeUserID string) (*model.User, error)
}

// Package repository declares the storage interfaces consumed by the service
// layer. The SQLite implementation lives in repository/sqlite; tests use
// hand-written in-memory mocks.
package repository

import (
	"context"

	"github.com/writique/writique/internal/model"
)

// PostListOptions filters and truncates a post listing.
// Limit <= 0 means no truncation. AuthorExternalID filters by owner.
type PostListOptions struct {
	Limit            int
	AuthorExternalID string
}

// PostList is a listing page: the (possibly truncated) items plus the total
// number of posts matching the filter, ignoring the limit.
type PostList struct {
	Items      []model.Post
	TotalCount int
}

type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	GetByID(ctx context.Context, id string) (*model.Post, error)
	List(ctx context.Context, opts PostListOptions) (*PostList, error)
	Update(ctx context.Context, post *model.Post) error
	Delete(ctx context.Context, id string) error

	// IncrementViews atomically adds 1 to the post's view counter and
	// returns the new value. Concurrent increments must never be lost.
	IncrementViews(ctx context.Context, id string) (int, error)

	// GetByIDs returns the posts that exist among ids, preserving order and
	// silently skipping ids with no matching post.
	GetByIDs(ctx context.Context, ids []string) ([]model.Post, error)
}

// UserUpdate is a partial profile update. Nil fields are left untouched —
// an absent value never overwrites an existing one.
type UserUpdate struct {
	Email     *string
	FirstName *string
	LastName  *string
	AvatarURL *string
}

// UserRepository's methods carry a User suffix where they would otherwise
// collide with PostRepository on a shared implementation type.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.User, error)

	// Provision inserts the user keyed on its unique external id. If a row
	// for that external id already exists (including one inserted by a
	// concurrent request), Provision adopts the existing row into user
	// instead of failing. Idempotent.
	Provision(ctx context.Context, user *model.User) error

	UpdateByExternalID(ctx context.Context, externalID string, update UserUpdate) error
	DeleteByExternalID(ctx context.Context, externalID string) error
	ListUsers(ctx context.Context) ([]model.User, error)

	// Favorites is the ordered set of post ids the user has favorited.
	Favorites(ctx context.Context, userID string) ([]string, error)
	// AddFavorite adds postID to the set; adding an existing member is a no-op.
	AddFavorite(ctx context.Context, userID, postID string) error
	// RemoveFavorite removes postID from the set; removing a non-member is a no-op.
	RemoveFavorite(ctx context.Context, userID, postID string) error
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/writique/writique/internal/apperror"
	"github.com/writique/writique/internal/auth"
	"github.com/writique/writique/internal/model"
	"github.com/writique/writique/internal/repository"
	"github.com/writique/writique/internal/webhook"
)

// Profile is the authenticated user's own view: the user record plus their
// favorite post ids, optionally expanded into full posts.
type Profile struct {
	User        *model.User  `json:"user"`
	FavoriteIDs []string     `json:"favoriteIds"`
	Favorites   []model.Post `json:"favorites,omitempty"`
}

// UserService handles user resolution, provisioning, favorites, and the
// lifecycle updates arriving over the webhook.
type UserService struct {
	users           repository.UserRepository
	posts           repository.PostRepository
	directory       auth.Directory
	bootstrapAdmins map[string]struct{}
	logger          *slog.Logger
}

// The user service sits on both sides of the identity flow: it resolves
// request principals and absorbs lifecycle events.
var (
	_ auth.UserResolver = (*UserService)(nil)
	_ webhook.UserStore = (*UserService)(nil)
)

// NewUserService creates a UserService. bootstrapAdminIDs lists the external
// subject ids that are granted the admin role when first provisioned.
func NewUserService(
	users repository.UserRepository,
	posts repository.PostRepository,
	directory auth.Directory,
	bootstrapAdminIDs []string,
	logger *slog.Logger,
) *UserService {
	admins := make(map[string]struct{}, len(bootstrapAdminIDs))
	for _, id := range bootstrapAdminIDs {
		if id != "" {
			admins[id] = struct{}{}
		}
	}
	return &UserService{
		users:           users,
		posts:           posts,
		directory:       directory,
		bootstrapAdmins: admins,
		logger:          logger,
	}
}

// Resolve maps a verified principal to the local user record, provisioning
// one from the identity directory on first login.
//
// The lookup key is always the external subject id. When the directory is
// unreachable on a provisioning miss, resolution fails — a valid token is not
// enough to act without a user record behind it.
func (s *UserService) Resolve(ctx context.Context, principal *auth.Principal) (*model.User, error) {
	user, err := s.users.GetByExternalID(ctx, principal.SubjectID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("looking up user %s: %w", principal.SubjectID, err)
	}

	acct, err := s.directory.GetAccount(ctx, principal.SubjectID)
	if err != nil {
		s.logger.Error("directory fetch failed during provisioning",
			slog.String("subjectID", principal.SubjectID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("error syncing user data", err)
	}

	user = s.userFromAccount(acct)
	if err := s.users.Provision(ctx, user); err != nil {
		return nil, fmt.Errorf("provisioning user %s: %w", principal.SubjectID, err)
	}

	s.logger.Info("user provisioned",
		slog.String("externalID", user.ExternalID),
		slog.String("role", string(user.Role)),
	)

	return user, nil
}

// ProvisionFromAccount creates the local record for a user.created event.
// Re-deliveries are no-ops: provisioning keeps the existing record.
func (s *UserService) ProvisionFromAccount(ctx context.Context, acct *auth.Account) error {
	if acct.ID == "" {
		return apperror.ValidationFailed("data.id", "account id is required")
	}

	user := s.userFromAccount(acct)
	if err := s.users.Provision(ctx, user); err != nil {
		return fmt.Errorf("provisioning user %s: %w", acct.ID, err)
	}

	s.logger.Info("user provisioned from lifecycle event", slog.String("externalID", acct.ID))
	return nil
}

// ApplyAccountUpdate folds a user.updated event into the local record. Only
// fields present in the payload are written; an event for a user we never
// provisioned is ignored rather than failed, since the next login provisions
// them with current data anyway.
func (s *UserService) ApplyAccountUpdate(ctx context.Context, acct *auth.Account) error {
	if acct.ID == "" {
		return apperror.ValidationFailed("data.id", "account id is required")
	}

	update := repository.UserUpdate{
		FirstName: acct.FirstName,
		LastName:  acct.LastName,
		AvatarURL: acct.ImageURL,
	}
	if email, ok := acct.PrimaryEmail(); ok {
		update.Email = &email
	}

	err := s.users.UpdateByExternalID(ctx, acct.ID, update)
	if errors.Is(err, apperror.ErrNotFound) {
		s.logger.Warn("update event for unknown user", slog.String("externalID", acct.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("updating user %s: %w", acct.ID, err)
	}

	s.logger.Info("user updated from lifecycle event", slog.String("externalID", acct.ID))
	return nil
}

// RemoveByExternalID handles user.deleted: the local user record goes away,
// their authored posts stay. Deleting an unknown user is a no-op.
func (s *UserService) RemoveByExternalID(ctx context.Context, externalID string) error {
	if externalID == "" {
		return apperror.ValidationFailed("data.id", "account id is required")
	}

	err := s.users.DeleteByExternalID(ctx, externalID)
	if errors.Is(err, apperror.ErrNotFound) {
		s.logger.Warn("delete event for unknown user", slog.String("externalID", externalID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting user %s: %w", externalID, err)
	}

	s.logger.Info("user removed from lifecycle event", slog.String("externalID", externalID))
	return nil
}

// Profile returns the user's own record and favorites. With populate set,
// favorite ids are expanded into full posts; ids pointing at since-deleted
// posts are dropped from the expansion but kept in the id list.
func (s *UserService) Profile(ctx context.Context, user *model.User, populate bool) (*Profile, error) {
	ids, err := s.users.Favorites(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("loading favorites for %s: %w", user.ID, err)
	}

	profile := &Profile{User: user, FavoriteIDs: ids}
	if populate && len(ids) > 0 {
		posts, err := s.posts.GetByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("expanding favorites for %s: %w", user.ID, err)
		}
		profile.Favorites = posts
	}

	return profile, nil
}

// AddFavorite marks a post as a favorite of the user and returns the updated
// id list. Favoriting an already-favorited post is a no-op; the post is not
// required to exist.
func (s *UserService) AddFavorite(ctx context.Context, user *model.User, postID string) ([]string, error) {
	if !validID(postID) {
		return nil, apperror.ValidationFailed("postId", "invalid post id")
	}

	if err := s.users.AddFavorite(ctx, user.ID, postID); err != nil {
		return nil, fmt.Errorf("adding favorite %s for %s: %w", postID, user.ID, err)
	}

	return s.users.Favorites(ctx, user.ID)
}

// RemoveFavorite unmarks a post and returns the updated id list. Removing a
// post that was never favorited is a no-op.
func (s *UserService) RemoveFavorite(ctx context.Context, user *model.User, postID string) ([]string, error) {
	if !validID(postID) {
		return nil, apperror.ValidationFailed("postId", "invalid post id")
	}

	if err := s.users.RemoveFavorite(ctx, user.ID, postID); err != nil {
		return nil, fmt.Errorf("removing favorite %s for %s: %w", postID, user.ID, err)
	}

	return s.users.Favorites(ctx, user.ID)
}

// ListUsers returns every local user record. Admin surface only; the route
// guard enforces the role.
func (s *UserService) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.users.ListUsers(ctx)
}

// userFromAccount builds a local user record from a directory account,
// applying the bootstrap-admin allow-list to the role.
func (s *UserService) userFromAccount(acct *auth.Account) *model.User {
	user := &model.User{
		ExternalID: acct.ID,
		Role:       model.RoleUser,
	}
	if _, ok := s.bootstrapAdmins[acct.ID]; ok {
		user.Role = model.RoleAdmin
	}
	if email, ok := acct.PrimaryEmail(); ok {
		user.Email = email
	}
	if acct.FirstName != nil {
		user.FirstName = *acct.FirstName
	}
	if acct.LastName != nil {
		user.LastName = *acct.LastName
	}
	if acct.ImageURL != nil {
		user.AvatarURL = *acct.ImageURL
	}
	return user
}

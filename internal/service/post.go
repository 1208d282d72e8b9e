// Package service contains the business logic layer: validation, derivation
// rules, and the ownership/role policies the HTTP handlers enforce through
// it. Services speak in domain types and apperror kinds; they know nothing
// about HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/writique/writique/internal/apperror"
	"github.com/writique/writique/internal/media"
	"github.com/writique/writique/internal/model"
	"github.com/writique/writique/internal/repository"
)

const (
	// wordsPerMinute is the reading speed assumed when deriving a post's
	// read time from its content.
	wordsPerMinute = 200

	// dateLayout is the calendar-date format posts carry.
	dateLayout = "2006-01-02"

	// defaultAuthorAvatarURL backs the author snapshot when the authoring
	// user has no avatar of their own.
	defaultAuthorAvatarURL = "https://i.pravatar.cc/150?img=1"
)

var errRelayUnavailable = errors.New("media relay not configured")

// UploadedImage is an image file received with a create/update request.
type UploadedImage struct {
	Body        io.Reader
	Filename    string
	ContentType string
}

// CreatePostInput carries the fields of a post creation request.
type CreatePostInput struct {
	Title    string
	Excerpt  string
	Category string
	Content  string
	Date     string // optional; defaults to today
	ImageURL string // optional; used only when no Image file is supplied
	Image    *UploadedImage
}

// UpdatePostInput is a partial update. Nil fields are left untouched.
type UpdatePostInput struct {
	Title    *string
	Excerpt  *string
	Category *string
	Content  *string
	ImageURL *string
	Image    *UploadedImage
}

// PostService handles business logic for blog posts, including the
// ownership-or-admin policy on mutation.
type PostService struct {
	posts           repository.PostRepository
	relay           media.Relay // nil when image uploads are not configured
	defaultImageURL string
	logger          *slog.Logger
}

// NewPostService creates a PostService. relay may be nil, in which case
// requests carrying an image file fail with an upstream error.
func NewPostService(posts repository.PostRepository, relay media.Relay, defaultImageURL string, logger *slog.Logger) *PostService {
	return &PostService{
		posts:           posts,
		relay:           relay,
		defaultImageURL: defaultImageURL,
		logger:          logger,
	}
}

// List returns posts newest-first, optionally filtered by author and
// truncated to limit. TotalCount always reflects the filter, not the limit.
func (s *PostService) List(ctx context.Context, limit int, authorExternalID string) (*repository.PostList, error) {
	if limit < 0 {
		limit = 0
	}

	list, err := s.posts.List(ctx, repository.PostListOptions{
		Limit:            limit,
		AuthorExternalID: authorExternalID,
	})
	if err != nil {
		s.logger.Error("failed to list posts", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing posts: %w", err)
	}

	return list, nil
}

// Get retrieves one post. A malformed id is a validation error (400), not a
// not-found — the two are distinguished before the store is consulted.
func (s *PostService) Get(ctx context.Context, id string) (*model.Post, error) {
	if !validID(id) {
		return nil, apperror.ValidationFailed("id", "invalid post id")
	}
	return s.posts.GetByID(ctx, id)
}

// Views returns the current view counter of a post.
func (s *PostService) Views(ctx context.Context, id string) (int, error) {
	post, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return post.Views, nil
}

// Create validates and persists a new post for the authoring user.
//
// The author block is a snapshot copied from the user at this moment; later
// profile edits do not rewrite existing posts. Ownership (AuthorExternalID)
// is fixed here and never mutated afterwards.
func (s *PostService) Create(ctx context.Context, user *model.User, in CreatePostInput) (*model.Post, error) {
	title := strings.TrimSpace(in.Title)
	excerpt := strings.TrimSpace(in.Excerpt)
	category := strings.TrimSpace(in.Category)
	content := in.Content

	switch {
	case title == "":
		return nil, apperror.ValidationFailed("title", "title is required")
	case excerpt == "":
		return nil, apperror.ValidationFailed("excerpt", "excerpt is required")
	case category == "":
		return nil, apperror.ValidationFailed("category", "category is required")
	case strings.TrimSpace(content) == "":
		return nil, apperror.ValidationFailed("content", "content is required")
	}

	date := strings.TrimSpace(in.Date)
	if date == "" {
		date = time.Now().Format(dateLayout)
	} else if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, apperror.ValidationFailed("date", "date must be formatted YYYY-MM-DD")
	}

	imageURL, err := s.resolveImage(ctx, in.Image, in.ImageURL, "")
	if err != nil {
		return nil, err
	}

	avatar := user.AvatarURL
	if avatar == "" {
		avatar = defaultAuthorAvatarURL
	}

	post := &model.Post{
		Title:    title,
		Excerpt:  excerpt,
		Category: category,
		Content:  content,
		Date:     date,
		ReadTime: readTime(content),
		Author: model.Author{
			Name:      user.DisplayName(),
			AvatarURL: avatar,
		},
		AuthorExternalID: user.ExternalID,
		ImageURL:         imageURL,
		Views:            0,
	}

	if err := s.posts.Create(ctx, post); err != nil {
		s.logger.Error("failed to create post",
			slog.String("title", title),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating post: %w", err)
	}

	s.logger.Info("post created",
		slog.String("id", post.ID),
		slog.String("authorExternalID", post.AuthorExternalID),
	)

	return post, nil
}

// Update applies a partial update under the ownership-or-admin policy.
//
// The target is loaded first so a missing post reads as 404 before any 403.
// ReadTime is recomputed only when the content actually changed; the author
// snapshot and AuthorExternalID are never touched, whatever the payload says.
func (s *PostService) Update(ctx context.Context, user *model.User, id string, in UpdatePostInput) (*model.Post, error) {
	if !validID(id) {
		return nil, apperror.ValidationFailed("id", "invalid post id")
	}

	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := authorizeOwnerOrAdmin(user, post); err != nil {
		return nil, err
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, apperror.ValidationFailed("title", "title must not be empty")
		}
		post.Title = title
	}
	if in.Excerpt != nil {
		excerpt := strings.TrimSpace(*in.Excerpt)
		if excerpt == "" {
			return nil, apperror.ValidationFailed("excerpt", "excerpt must not be empty")
		}
		post.Excerpt = excerpt
	}
	if in.Category != nil {
		category := strings.TrimSpace(*in.Category)
		if category == "" {
			return nil, apperror.ValidationFailed("category", "category must not be empty")
		}
		post.Category = category
	}
	if in.Content != nil {
		if strings.TrimSpace(*in.Content) == "" {
			return nil, apperror.ValidationFailed("content", "content must not be empty")
		}
		if *in.Content != post.Content {
			post.Content = *in.Content
			post.ReadTime = readTime(post.Content)
		}
	}

	// Image precedence mirrors creation: a fresh file wins, then an
	// explicitly supplied URL that differs from the current one; otherwise
	// the image is left alone.
	if in.Image != nil {
		url, err := s.resolveImage(ctx, in.Image, "", post.ImageURL)
		if err != nil {
			return nil, err
		}
		post.ImageURL = url
	} else if in.ImageURL != nil && *in.ImageURL != post.ImageURL {
		post.ImageURL = *in.ImageURL
	}

	if err := s.posts.Update(ctx, post); err != nil {
		s.logger.Error("failed to update post",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating post: %w", err)
	}

	s.logger.Info("post updated", slog.String("id", post.ID))

	return post, nil
}

// Delete removes a post under the ownership-or-admin policy and reports
// whether the acting user was an admin.
func (s *PostService) Delete(ctx context.Context, user *model.User, id string) (deletedByAdmin bool, err error) {
	if !validID(id) {
		return false, apperror.ValidationFailed("id", "invalid post id")
	}

	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return false, err
	}

	if err := authorizeOwnerOrAdmin(user, post); err != nil {
		return false, err
	}

	if err := s.posts.Delete(ctx, id); err != nil {
		return false, err
	}

	s.logger.Info("post deleted",
		slog.String("id", id),
		slog.Bool("byAdmin", user.IsAdmin()),
	)

	// Favorite references to this post are left dangling on purpose; the
	// favorites expansion filters them out lazily.
	return user.IsAdmin(), nil
}

// IncrementViews bumps the view counter by exactly 1 at the store level and
// returns the new value.
func (s *PostService) IncrementViews(ctx context.Context, id string) (int, error) {
	if !validID(id) {
		return 0, apperror.ValidationFailed("id", "invalid post id")
	}
	return s.posts.IncrementViews(ctx, id)
}

// resolveImage picks the post's image URL: uploaded file first, then an
// explicit URL, then the current value, then the configured placeholder.
func (s *PostService) resolveImage(ctx context.Context, image *UploadedImage, explicitURL, currentURL string) (string, error) {
	if image != nil {
		if s.relay == nil {
			return "", apperror.Upstream("image uploads are not available", errRelayUnavailable)
		}
		url, err := s.relay.Upload(ctx, image.Body, image.Filename, image.ContentType)
		if err != nil {
			return "", err
		}
		return url, nil
	}
	if explicitURL != "" {
		return explicitURL, nil
	}
	if currentURL != "" {
		return currentURL, nil
	}
	return s.defaultImageURL, nil
}

// authorizeOwnerOrAdmin is the ownership-or-admin policy: the acting user
// must own the post or carry the admin role. Call only after the post has
// been loaded — a missing post is 404, which takes precedence over 403.
func authorizeOwnerOrAdmin(user *model.User, post *model.Post) error {
	if user.IsAdmin() || post.AuthorExternalID == user.ExternalID {
		return nil
	}
	return apperror.Forbidden("user not authorized")
}

// readTime derives the "<N> min read" label from the content's word count at
// wordsPerMinute, rounding up, never below one minute.
func readTime(content string) string {
	words := len(strings.Fields(content))
	minutes := (words + wordsPerMinute - 1) / wordsPerMinute
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("%d min read", minutes)
}

// validID reports whether id has the shape of one of our identifiers.
func validID(id string) bool {
	_, err := xid.FromString(id)
	return err == nil
}

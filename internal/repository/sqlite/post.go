package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/writique/writique/internal/apperror"
	"github.com/writique/writique/internal/model"
	"github.com/writique/writique/internal/repository"
)

// compile-time check that *DB implements repository.PostRepository
var _ repository.PostRepository = (*DB)(nil)

const postColumns = `id, title, excerpt, category, content, date, read_time,
	author_name, author_avatar, author_external_id, image_url, views,
	created_at, updated_at`

func scanPost(row interface{ Scan(dest ...any) error }) (*model.Post, error) {
	var p model.Post
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Excerpt,
		&p.Category,
		&p.Content,
		&p.Date,
		&p.ReadTime,
		&p.Author.Name,
		&p.Author.AvatarURL,
		&p.AuthorExternalID,
		&p.ImageURL,
		&p.Views,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new post. The caller's struct is filled in-place with the
// generated ID and timestamps.
func (db *DB) Create(ctx context.Context, post *model.Post) error {
	post.ID = xid.New().String()

	now := time.Now()
	post.CreatedAt = now
	post.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO posts (id, title, excerpt, category, content, date, read_time,
			author_name, author_avatar, author_external_id, image_url, views,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID,
		post.Title,
		post.Excerpt,
		post.Category,
		post.Content,
		post.Date,
		post.ReadTime,
		post.Author.Name,
		post.Author.AvatarURL,
		post.AuthorExternalID,
		post.ImageURL,
		post.Views,
		post.CreatedAt,
		post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating post: %w", err)
	}

	return nil
}

// GetByID retrieves a single post. Returns apperror.ErrNotFound if missing.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Post, error) {
	post, err := scanPost(db.conn.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("post", id)
		}
		return nil, fmt.Errorf("sqlite: getting post %s: %w", id, err)
	}
	return post, nil
}

// List returns posts newest-first. TotalCount reflects the author filter but
// not the limit, so clients can page without a second request.
func (db *DB) List(ctx context.Context, opts repository.PostListOptions) (*repository.PostList, error) {
	where := ""
	args := []any{}
	if opts.AuthorExternalID != "" {
		where = " WHERE author_external_id = ?"
		args = append(args, opts.AuthorExternalID)
	}

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts`+where, args...,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: counting posts: %w", err)
	}

	query := `SELECT ` + postColumns + ` FROM posts` + where + ` ORDER BY created_at DESC, id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing posts: %w", err)
	}
	defer rows.Close()

	items := make([]model.Post, 0, opts.Limit)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning post row: %w", err)
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating posts: %w", err)
	}

	return &repository.PostList{Items: items, TotalCount: total}, nil
}

// Update writes the mutable columns of an existing post. Ownership columns
// (author_external_id, author snapshot) are deliberately not part of the SET
// list — authorship never transfers.
func (db *DB) Update(ctx context.Context, post *model.Post) error {
	post.UpdatedAt = time.Now()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE posts
		 SET title = ?, excerpt = ?, category = ?, content = ?, date = ?,
		     read_time = ?, image_url = ?, updated_at = ?
		 WHERE id = ?`,
		post.Title,
		post.Excerpt,
		post.Category,
		post.Content,
		post.Date,
		post.ReadTime,
		post.ImageURL,
		post.UpdatedAt,
		post.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating post %s: %w", post.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("post", post.ID)
	}

	return nil
}

// Delete removes a post by its ID.
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM posts WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting post %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("post", id)
	}

	return nil
}

// IncrementViews adds 1 to the view counter in a single UPDATE and returns
// the new value via RETURNING. The increment happens entirely inside the
// database, so concurrent calls are serialized there and none are lost —
// no fetch-mutate-store round trip in Go.
func (db *DB) IncrementViews(ctx context.Context, id string) (int, error) {
	var views int
	err := db.conn.QueryRowContext(ctx,
		`UPDATE posts SET views = views + 1 WHERE id = ? RETURNING views`, id,
	).Scan(&views)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, apperror.NotFound("post", id)
		}
		return 0, fmt.Errorf("sqlite: incrementing views for post %s: %w", id, err)
	}
	return views, nil
}

// GetByIDs loads the posts that exist among ids, preserving the input order.
// Missing ids are skipped, which is how dangling favorite references get
// filtered out on expansion.
func (db *DB) GetByIDs(ctx context.Context, ids []string) ([]model.Post, error) {
	if len(ids) == 0 {
		return []model.Post{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting posts by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]model.Post, len(ids))
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning post row: %w", err)
		}
		byID[p.ID] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating posts: %w", err)
	}

	posts := make([]model.Post, 0, len(byID))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			posts = append(posts, p)
		}
	}
	return posts, nil
}

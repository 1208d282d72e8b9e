package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/writique/writique/internal/apperror"
	"github.com/writique/writique/internal/auth"
	"github.com/writique/writique/internal/model"
	"github.com/writique/writique/internal/service"
)

// PostHandler serves the /api/posts surface.
type PostHandler struct {
	posts          *service.PostService
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewPostHandler creates a PostHandler. maxUploadBytes caps the size of
// multipart bodies on create and update.
func NewPostHandler(posts *service.PostService, maxUploadBytes int64, logger *slog.Logger) *PostHandler {
	return &PostHandler{
		posts:          posts,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

type postListResponse struct {
	Items      []model.Post `json:"items"`
	TotalCount int          `json:"totalCount"`
}

// HandleList returns posts newest-first.
//
// GET /api/posts?limit=3&authorId=user_abc
//
// limit truncates the items; totalCount always counts everything matching
// the authorId filter.
func (h *PostHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, apperror.ValidationFailed("limit", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	list, err := h.posts.List(r.Context(), limit, r.URL.Query().Get("authorId"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, postListResponse{
		Items:      list.Items,
		TotalCount: list.TotalCount,
	})
}

// HandleGet returns one post.
//
// GET /api/posts/{id}
func (h *PostHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	post, err := h.posts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// HandleViews returns a post's current view counter without changing it.
//
// GET /api/posts/{id}/views
func (h *PostHandler) HandleViews(w http.ResponseWriter, r *http.Request) {
	views, err := h.posts.Views(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": views})
}

// HandleCreate creates a post for the authenticated user.
//
// POST /api/posts — multipart form: title, excerpt, category, content,
// date (optional), imageUrl (optional), imageFile (optional file part).
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, err := auth.MustUser(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	form, err := h.parseForm(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer form.close()

	post, err := h.posts.Create(r.Context(), user, service.CreatePostInput{
		Title:    form.value("title"),
		Excerpt:  form.value("excerpt"),
		Category: form.value("category"),
		Content:  form.value("content"),
		Date:     form.value("date"),
		ImageURL: form.value("imageUrl"),
		Image:    form.image,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, post)
}

// HandleUpdate partially updates a post. Only form fields actually present
// are applied, so an omitted field is distinct from an empty one.
//
// PUT /api/posts/{id} — multipart form, same fields as create minus date.
func (h *PostHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user, err := auth.MustUser(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	form, err := h.parseForm(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer form.close()

	post, err := h.posts.Update(r.Context(), user, r.PathValue("id"), service.UpdatePostInput{
		Title:    form.optional("title"),
		Excerpt:  form.optional("excerpt"),
		Category: form.optional("category"),
		Content:  form.optional("content"),
		ImageURL: form.optional("imageUrl"),
		Image:    form.image,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, post)
}

// HandleDelete removes a post under the ownership-or-admin policy.
//
// DELETE /api/posts/{id}
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, err := auth.MustUser(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	byAdmin, err := h.posts.Delete(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	// deletedBy carries the actor as a machine-readable field; the message is
	// display text only.
	actor := "owner"
	if byAdmin {
		actor = "admin"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   fmt.Sprintf("Post removed successfully by %s", actor),
		"deletedBy": actor,
	})
}

// HandleIncrementViews atomically bumps a post's view counter. Mounted
// behind the auth chain: only signed-in readers count.
//
// POST /api/posts/{id}/increment-views
func (h *PostHandler) HandleIncrementViews(w http.ResponseWriter, r *http.Request) {
	views, err := h.posts.IncrementViews(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"views":   views,
	})
}

// postForm wraps a parsed multipart form so handlers can distinguish absent
// fields from empty ones and reach the optional image part.
type postForm struct {
	r     *http.Request
	image *service.UploadedImage
	file  interface{ Close() error }
}

// parseForm reads the multipart body under the configured size cap. An
// oversized body surfaces as a 413, not a generic decode failure.
func (h *PostHandler) parseForm(w http.ResponseWriter, r *http.Request) (*postForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, apperror.PayloadTooLarge("request body exceeds the upload limit")
		}
		return nil, apperror.ValidationFailed("body", "expected a multipart form body")
	}

	form := &postForm{r: r}

	file, header, err := r.FormFile("imageFile")
	if err == nil {
		form.file = file
		form.image = &service.UploadedImage{
			Body:        file,
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
		}
	} else if !errors.Is(err, http.ErrMissingFile) {
		return nil, apperror.ValidationFailed("imageFile", "could not read uploaded image")
	}

	return form, nil
}

// value returns the field's value, empty when absent.
func (f *postForm) value(name string) string {
	if vals, ok := f.r.MultipartForm.Value[name]; ok && len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// optional returns nil when the field was not sent at all, so partial updates
// can tell "leave alone" apart from "set to empty".
func (f *postForm) optional(name string) *string {
	vals, ok := f.r.MultipartForm.Value[name]
	if !ok || len(vals) == 0 {
		return nil
	}
	return &vals[0]
}

func (f *postForm) close() {
	if f.file != nil {
		f.file.Close()
	}
	f.r.MultipartForm.RemoveAll()
}

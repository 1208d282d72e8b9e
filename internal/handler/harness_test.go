package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/writique/writique/internal/auth"
	"github.com/writique/writique/internal/handler"
	"github.com/writique/writique/internal/model"
	"github.com/writique/writique/internal/repository/sqlite"
	"github.com/writique/writique/internal/service"
)

// The handler tests run against the real stack: sqlite storage, the real
// token verifier with locally signed tokens, and the real middleware chain.
// Only the two external collaborators (identity directory, media relay) are
// stubbed.

const testSigningSecret = "handler-test-signing-secret"

type stubDirectory struct {
	accounts map[string]*auth.Account
}

func (s *stubDirectory) GetAccount(_ context.Context, subjectID string) (*auth.Account, error) {
	if acct, ok := s.accounts[subjectID]; ok {
		return acct, nil
	}
	return nil, errors.New("account not found upstream")
}

type stubRelay struct {
	url   string
	calls int
}

func (s *stubRelay) Upload(_ context.Context, _ io.Reader, _, _ string) (string, error) {
	s.calls++
	return s.url, nil
}

type testEnv struct {
	t      *testing.T
	router *chi.Mux
	db     *sqlite.DB
	relay  *stubRelay
	users  *service.UserService
	posts  *service.PostService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	relay := &stubRelay{url: "https://cdn.example.com/uploaded.png"}
	directory := &stubDirectory{accounts: map[string]*auth.Account{}}

	userService := service.NewUserService(db, db, directory, nil, logger)
	postService := service.NewPostService(db, relay, "https://example.com/default.png", logger)

	postHandler := handler.NewPostHandler(postService, 1<<20, logger)
	userHandler := handler.NewUserHandler(userService, logger)

	verifier, err := auth.NewSessionVerifier(testSigningSecret)
	require.NoError(t, err)

	requireAuth := auth.RequireAuth(verifier)
	resolveUser := auth.ResolveUser(userService, logger)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		r.Get("/posts", postHandler.HandleList)
		r.Get("/posts/{id}", postHandler.HandleGet)
		r.Get("/posts/{id}/views", postHandler.HandleViews)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(resolveUser)

			r.Post("/posts", postHandler.HandleCreate)
			r.Put("/posts/{id}", postHandler.HandleUpdate)
			r.Delete("/posts/{id}", postHandler.HandleDelete)
			r.Post("/posts/{id}/increment-views", postHandler.HandleIncrementViews)

			r.Get("/users/me", userHandler.HandleMe)
			r.Post("/users/me/favorites/{postId}", userHandler.HandleAddFavorite)
			r.Delete("/users/me/favorites/{postId}", userHandler.HandleRemoveFavorite)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(resolveUser)
			r.Use(auth.RequireAdmin())

			r.Get("/admin/users", userHandler.HandleListUsers)
		})
	})

	return &testEnv{
		t:      t,
		router: router,
		db:     db,
		relay:  relay,
		users:  userService,
		posts:  postService,
	}
}

// provisionUser creates a local user directly in storage and returns it.
func (e *testEnv) provisionUser(externalID, email string, role model.Role) *model.User {
	e.t.Helper()
	user := &model.User{
		ExternalID: externalID,
		Email:      email,
		FirstName:  "Test",
		LastName:   "User",
		Role:       role,
	}
	require.NoError(e.t, e.db.Provision(context.Background(), user))
	return user
}

// tokenFor signs a session token for the given subject.
func (e *testEnv) tokenFor(externalID string) string {
	e.t.Helper()
	claims := jwt.MapClaims{
		"sub": externalID,
		"sid": "sess_test",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningSecret))
	require.NoError(e.t, err)
	return signed
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// multipartBody renders fields (and an optional file part named imageFile)
// as a multipart form.
func multipartBody(t *testing.T, fields map[string]string, fileContents []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range fields {
		require.NoError(t, w.WriteField(name, value))
	}
	if fileContents != nil {
		part, err := w.CreateFormFile("imageFile", "photo.png")
		require.NoError(t, err)
		_, err = part.Write(fileContents)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

// createPost inserts a post through the API as the given user and returns
// the decoded response.
func (e *testEnv) createPost(token string, fields map[string]string) *model.Post {
	e.t.Helper()
	body, contentType := multipartBody(e.t, fields, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/posts", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	rr := e.do(req)
	require.Equal(e.t, http.StatusCreated, rr.Code, rr.Body.String())

	var post model.Post
	require.NoError(e.t, decodeJSON(rr, &post))
	return &post
}

func decodeJSON(rr *httptest.ResponseRecorder, v any) error {
	return json.NewDecoder(rr.Body).Decode(v)
}

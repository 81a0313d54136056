package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"instafeed/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHealthChecks(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodGet, "/health/live", "", nil)
	requireStatus(t, resp, fiber.StatusOK)

	resp = ts.do(t, http.MethodGet, "/health/ready", "", nil)
	requireStatus(t, resp, fiber.StatusOK)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, map[string]any{"database": "healthy", "redis": "healthy"}, body["checks"])
}

func TestReadiness_RedisDown(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ts.mr.Close()

	resp := ts.do(t, http.MethodGet, "/health/ready", "", nil)
	requireStatus(t, resp, fiber.StatusServiceUnavailable)
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/api/auth/signup", "", credentialsRequest{Email: "Ada@Example.com", Password: testPassword})
	requireStatus(t, resp, fiber.StatusCreated)
	token := decode[struct {
		Token string `json:"token"`
	}](t, resp).Token
	require.NotEmpty(t, token)

	// Not onboarded yet: identity endpoints work, everything else is gated.
	resp = ts.do(t, http.MethodGet, "/api/me", token, nil)
	requireStatus(t, resp, fiber.StatusOK)
	me := decode[models.Viewer](t, resp)
	assert.False(t, me.Onboarded)
	assert.Equal(t, "ada@example.com", me.Email)

	resp = ts.do(t, http.MethodGet, "/api/feed", token, nil)
	requireStatus(t, resp, fiber.StatusForbidden)
	assert.Equal(t, models.CodeOnboardingRequired, decode[models.ErrorResponse](t, resp).Code)

	resp = ts.do(t, http.MethodGet, "/api/users/available?username=ada", token, nil)
	requireStatus(t, resp, fiber.StatusOK)
	assert.Equal(t, true, decode[map[string]any](t, resp)["available"])

	resp = ts.do(t, http.MethodPost, "/api/me/onboard", token, map[string]string{"username": "ada", "full_name": "Ada Lovelace"})
	requireStatus(t, resp, fiber.StatusCreated)

	resp = ts.do(t, http.MethodGet, "/api/me", token, nil)
	me = decode[models.Viewer](t, resp)
	assert.True(t, me.Onboarded)
	require.NotNil(t, me.Account)
	assert.Equal(t, "ada", me.Account.Username)

	resp = ts.do(t, http.MethodPost, "/api/me/onboard", token, map[string]string{"username": "ada2", "full_name": "Ada"})
	requireStatus(t, resp, fiber.StatusConflict)

	// Signing in again returns an onboarded session.
	resp = ts.do(t, http.MethodPost, "/api/auth/signin", "", credentialsRequest{Email: "ada@example.com", Password: testPassword})
	requireStatus(t, resp, fiber.StatusOK)

	resp = ts.do(t, http.MethodPost, "/api/auth/signin", "", credentialsRequest{Email: "ada@example.com", Password: "Wrong-password1"})
	requireStatus(t, resp, fiber.StatusUnauthorized)

	resp = ts.do(t, http.MethodPost, "/api/auth/signout", token, nil)
	requireStatus(t, resp, fiber.StatusNoContent)

	resp = ts.do(t, http.MethodGet, "/api/me", token, nil)
	requireStatus(t, resp, fiber.StatusUnauthorized)
}

func TestSignUp_Rejects(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ts.register(t, "ada")

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"bad email", credentialsRequest{Email: "not-an-email", Password: testPassword}, fiber.StatusBadRequest},
		{"weak password", credentialsRequest{Email: "weak@example.com", Password: "short"}, fiber.StatusBadRequest},
		{"duplicate email", credentialsRequest{Email: "ada@example.com", Password: testPassword}, fiber.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodPost, "/api/auth/signup", "", tt.body)
			requireStatus(t, resp, tt.status)
		})
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/me"},
		{http.MethodGet, "/api/feed"},
		{http.MethodPost, "/api/posts"},
		{http.MethodGet, "/api/users/suggestions"},
		{http.MethodPost, "/api/users/u1/follow"},
		{http.MethodGet, "/api/conversations/u1/messages"},
		{http.MethodPost, "/api/ws/ticket"},
		{http.MethodGet, "/api/ws/feed"},
	}
	for _, r := range routes {
		t.Run(r.method+" "+r.path, func(t *testing.T) {
			resp := ts.do(t, r.method, r.path, "", nil)
			requireStatus(t, resp, fiber.StatusUnauthorized)

			resp = ts.do(t, r.method, r.path, "garbage", nil)
			requireStatus(t, resp, fiber.StatusUnauthorized)
		})
	}
}

func TestPostLifecycle(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ada := ts.register(t, "ada")
	bob := ts.register(t, "bob")

	post := ts.createPost(t, ada, "  sunset  ")
	assert.Equal(t, "sunset", post.Caption)
	assert.Equal(t, "ada", post.AuthorUsername)
	assert.True(t, strings.HasPrefix(post.ImageURL, "https://cdn.example.com/post_images/"), post.ImageURL)
	assert.True(t, strings.HasSuffix(post.ImageURL, "-beach.webp"), post.ImageURL)

	// bob sees nothing before following ada.
	resp := ts.do(t, http.MethodGet, "/api/feed", bob.token, nil)
	assert.Empty(t, decode[[]models.Post](t, resp))

	resp = ts.do(t, http.MethodPost, "/api/users/"+ada.uid+"/follow", bob.token, nil)
	requireStatus(t, resp, fiber.StatusOK)
	assert.Equal(t, map[string]any{"following": true}, decode[map[string]any](t, resp))

	resp = ts.do(t, http.MethodGet, "/api/feed", bob.token, nil)
	feed := decode[[]models.Post](t, resp)
	require.Len(t, feed, 1)
	assert.Equal(t, post.ID, feed[0].ID)

	// Likes
	resp = ts.do(t, http.MethodPost, "/api/posts/"+post.ID+"/like/toggle", bob.token, nil)
	requireStatus(t, resp, fiber.StatusOK)
	state := decode[models.PostEngagement](t, resp)
	assert.True(t, state.Liked)
	assert.Equal(t, 1, state.LikesCount)

	resp = ts.do(t, http.MethodPost, "/api/posts/"+post.ID+"/like", bob.token, nil)
	state = decode[models.PostEngagement](t, resp)
	assert.Equal(t, 1, state.LikesCount, "like is idempotent")

	resp = ts.do(t, http.MethodDelete, "/api/posts/"+post.ID+"/like", bob.token, nil)
	state = decode[models.PostEngagement](t, resp)
	assert.False(t, state.Liked)
	assert.Equal(t, 0, state.LikesCount)

	// Saves
	resp = ts.do(t, http.MethodPost, "/api/posts/"+post.ID+"/save/toggle", bob.token, nil)
	assert.True(t, decode[models.PostEngagement](t, resp).Saved)

	resp = ts.do(t, http.MethodGet, "/api/me/saved", bob.token, nil)
	saved := decode[[]models.Post](t, resp)
	require.Len(t, saved, 1)
	assert.Equal(t, post.ID, saved[0].ID)

	resp = ts.do(t, http.MethodGet, "/api/posts/"+post.ID+"/engagement", bob.token, nil)
	state = decode[models.PostEngagement](t, resp)
	assert.True(t, state.Saved)
	assert.False(t, state.Liked)

	// Only the author deletes.
	resp = ts.do(t, http.MethodDelete, "/api/posts/"+post.ID, bob.token, nil)
	requireStatus(t, resp, fiber.StatusForbidden)

	resp = ts.do(t, http.MethodDelete, "/api/posts/"+post.ID, ada.token, nil)
	requireStatus(t, resp, fiber.StatusNoContent)

	resp = ts.do(t, http.MethodGet, "/api/posts/"+post.ID, ada.token, nil)
	requireStatus(t, resp, fiber.StatusNotFound)

	resp = ts.do(t, http.MethodGet, "/api/me/saved", bob.token, nil)
	assert.Empty(t, decode[[]models.Post](t, resp))
}

func TestCreatePost_Rejects(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ada := ts.register(t, "ada")

	tests := []struct {
		name    string
		content []byte
	}{
		{"no file", nil},
		{"not an image", []byte("plain text, not pixels")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := uploadRequest(t, http.MethodPost, "/api/posts", map[string]string{"caption": "hi"}, "x.png", tt.content)
			resp := ts.send(t, req, ada.token)
			requireStatus(t, resp, fiber.StatusBadRequest)
			assert.Equal(t, models.CodeValidation, decode[models.ErrorResponse](t, resp).Code)
		})
	}
}

// MockBlobStore is a mock of storage.BlobStore
type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, key, data, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockBlobStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func TestCreatePost_UploadFailure(t *testing.T) {
	t.Parallel()
	blobs := new(MockBlobStore)
	blobs.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "post_images/")
	}), mock.Anything, "image/webp").Return("", errors.New("bucket unavailable")).Once()

	ts := newTestServer(t, blobs)
	ada := ts.register(t, "ada")

	req := uploadRequest(t, http.MethodPost, "/api/posts", nil, "x.png", pngBytes(t, 8, 8))
	resp := ts.send(t, req, ada.token)
	requireStatus(t, resp, fiber.StatusInternalServerError)
	body := decode[models.ErrorResponse](t, resp)
	assert.Equal(t, models.CodeInternal, body.Code)
	assert.Empty(t, body.Details)

	resp = ts.do(t, http.MethodGet, "/api/users/ada", ada.token, nil)
	assert.Zero(t, decode[models.Profile](t, resp).PostCount)
	blobs.AssertExpectations(t)
}

func TestComments(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ada := ts.register(t, "ada")
	bob := ts.register(t, "bob")
	carl := ts.register(t, "carl")
	post := ts.createPost(t, ada, "")

	base := "/api/posts/" + post.ID + "/comments"
	resp := ts.do(t, http.MethodPost, base, bob.token, textRequest{Text: " first! "})
	requireStatus(t, resp, fiber.StatusCreated)
	comment := decode[models.Comment](t, resp)
	assert.Equal(t, "first!", comment.Text)
	assert.Equal(t, "bob", comment.Username)

	resp = ts.do(t, http.MethodPost, base+"/"+comment.ID+"/replies", ada.token, textRequest{Text: "thanks"})
	requireStatus(t, resp, fiber.StatusCreated)

	resp = ts.do(t, http.MethodPost, base, bob.token, textRequest{Text: "   "})
	requireStatus(t, resp, fiber.StatusBadRequest)

	resp = ts.do(t, http.MethodPost, "/api/posts/missing/comments", bob.token, textRequest{Text: "hello"})
	requireStatus(t, resp, fiber.StatusNotFound)

	resp = ts.do(t, http.MethodGet, base, carl.token, nil)
	comments := decode[[]models.Comment](t, resp)
	require.Len(t, comments, 1)
	require.Len(t, comments[0].Replies, 1)
	assert.Equal(t, "ada", comments[0].Replies[0].Username)

	// carl neither wrote the comment nor owns the post.
	resp = ts.do(t, http.MethodDelete, base+"/"+comment.ID, carl.token, nil)
	requireStatus(t, resp, fiber.StatusForbidden)

	resp = ts.do(t, http.MethodDelete, base+"/"+comment.ID, ada.token, nil)
	requireStatus(t, resp, fiber.StatusNoContent)

	resp = ts.do(t, http.MethodGet, base, carl.token, nil)
	assert.Empty(t, decode[[]models.Comment](t, resp))
}

func TestMessages(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ada := ts.register(t, "ada")
	bob := ts.register(t, "bob")

	resp := ts.do(t, http.MethodPost, "/api/conversations/"+bob.uid+"/messages", ada.token, textRequest{Text: "hi bob"})
	requireStatus(t, resp, fiber.StatusCreated)
	resp = ts.do(t, http.MethodPost, "/api/conversations/"+ada.uid+"/messages", bob.token, textRequest{Text: "hi ada"})
	requireStatus(t, resp, fiber.StatusCreated)

	for _, u := range []struct {
		me    testUser
		other string
	}{{ada, bob.uid}, {bob, ada.uid}} {
		resp = ts.do(t, http.MethodGet, "/api/conversations/"+u.other+"/messages", u.me.token, nil)
		msgs := decode[[]models.Message](t, resp)
		require.Len(t, msgs, 2)
		assert.Equal(t, "hi bob", msgs[0].Text)
		assert.Equal(t, "hi ada", msgs[1].Text)
	}

	resp = ts.do(t, http.MethodPost, "/api/conversations/"+ada.uid+"/messages", ada.token, textRequest{Text: "me"})
	requireStatus(t, resp, fiber.StatusBadRequest)

	resp = ts.do(t, http.MethodPost, "/api/conversations/nobody/messages", ada.token, textRequest{Text: "hello?"})
	requireStatus(t, resp, fiber.StatusNotFound)
}

func TestSuggestions(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ada := ts.register(t, "ada")
	bob := ts.register(t, "bob")
	ts.register(t, "carl")

	resp := ts.do(t, http.MethodGet, "/api/users/suggestions", ada.token, nil)
	requireStatus(t, resp, fiber.StatusOK)
	var names []string
	for _, a := range decode[[]models.Account](t, resp) {
		names = append(names, a.Username)
	}
	assert.Equal(t, []string{"bob", "carl"}, names)

	resp = ts.do(t, http.MethodPost, "/api/users/suggestions/dismiss", ada.token, map[string]int{"index": 0})
	requireStatus(t, resp, fiber.StatusOK)
	body := decode[struct {
		State string           `json:"state"`
		Items []models.Account `json:"items"`
	}](t, resp)
	assert.Equal(t, "committed", body.State)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "carl", body.Items[0].Username)

	resp = ts.do(t, http.MethodGet, "/api/users/bob", ada.token, nil)
	profile := decode[models.Profile](t, resp)
	assert.True(t, profile.IsFollowing)
	assert.Equal(t, bob.uid, profile.Account.ID)
	assert.Equal(t, 1, profile.Account.FollowersCount)

	resp = ts.do(t, http.MethodPost, "/api/users/suggestions/dismiss", ada.token, map[string]int{"index": 5})
	requireStatus(t, resp, fiber.StatusBadRequest)

	resp = ts.do(t, http.MethodGet, "/api/contacts", ada.token, nil)
	contacts := decode[[]models.Account](t, resp)
	require.Len(t, contacts, 1)
	assert.Equal(t, "bob", contacts[0].Username)
}

func TestProfileAndSearch(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ada := ts.register(t, "ada")
	ts.register(t, "adam")
	ts.register(t, "bob")
	ts.createPost(t, ada, "one")
	ts.createPost(t, ada, "two")

	resp := ts.do(t, http.MethodGet, "/api/users/ada", ada.token, nil)
	profile := decode[models.Profile](t, resp)
	assert.True(t, profile.IsSelf)
	assert.Equal(t, int64(2), profile.PostCount)
	require.Len(t, profile.Posts, 2)

	resp = ts.do(t, http.MethodGet, "/api/users/nobody", ada.token, nil)
	requireStatus(t, resp, fiber.StatusNotFound)

	resp = ts.do(t, http.MethodGet, "/api/users/search?q=ad", ada.token, nil)
	found := decode[[]models.Account](t, resp)
	require.Len(t, found, 1)
	assert.Equal(t, "adam", found[0].Username)
}

func TestChangeAvatar(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ada := ts.register(t, "ada")
	ts.createPost(t, ada, "")

	req := uploadRequest(t, http.MethodPut, "/api/me/avatar", nil, "me.png", pngBytes(t, 10, 10))
	resp := ts.send(t, req, ada.token)
	requireStatus(t, resp, fiber.StatusOK)
	account := decode[models.Account](t, resp)
	assert.True(t, strings.HasPrefix(account.AvatarURL, "https://cdn.example.com/avatar_images/"+ada.uid+"?v="), account.AvatarURL)

	resp = ts.do(t, http.MethodGet, "/api/users/ada", ada.token, nil)
	profile := decode[models.Profile](t, resp)
	require.Len(t, profile.Posts, 1)
	assert.Equal(t, account.AvatarURL, profile.Posts[0].AuthorAvatarURL)
}

func TestWebSocketEndpoints_RequireUpgrade(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ada := ts.register(t, "ada")

	resp := ts.do(t, http.MethodPost, "/api/ws/ticket", ada.token, nil)
	requireStatus(t, resp, fiber.StatusOK)
	ticket := decode[struct {
		Ticket    string `json:"ticket"`
		ExpiresIn int    `json:"expires_in"`
	}](t, resp)
	require.NotEmpty(t, ticket.Ticket)
	assert.Equal(t, 30, ticket.ExpiresIn)

	resp = ts.do(t, http.MethodGet, "/api/ws/feed?ticket="+ticket.Ticket, "", nil)
	requireStatus(t, resp, fiber.StatusUpgradeRequired)

	// The plain request left the ticket for the real upgrade.
	addr := ts.listen(t)
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/ws/feed?ticket="+ticket.Ticket, nil)
	require.NoError(t, err)
	_ = conn.Close()

	// Tickets are single use.
	_, dialResp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/ws/feed?ticket="+ticket.Ticket, nil)
	require.Error(t, err)
	require.NotNil(t, dialResp)
	defer dialResp.Body.Close()
	assert.Equal(t, fiber.StatusUnauthorized, dialResp.StatusCode)
}

func TestMedia_ServesInMemoryUploads(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ada := ts.register(t, "ada")
	post := ts.createPost(t, ada, "")

	key := strings.TrimPrefix(post.ImageURL, "https://cdn.example.com/")
	resp := ts.do(t, http.MethodGet, "/media/"+key, "", nil)
	requireStatus(t, resp, fiber.StatusOK)
	assert.Equal(t, "image/webp", resp.Header.Get("Content-Type"))

	resp = ts.do(t, http.MethodGet, "/media/post_images/missing.webp", "", nil)
	requireStatus(t, resp, fiber.StatusNotFound)
}

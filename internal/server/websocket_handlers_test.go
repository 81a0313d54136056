package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"instafeed/internal/models"
	"instafeed/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsFrame struct {
	Type  string          `json:"type"`
	Kind  string          `json:"kind"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

// listen serves the app on a loopback port and returns its address.
func (ts *testServer) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = ts.app.Listener(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ts.app.ShutdownWithContext(ctx)
	})
	return ln.Addr().String()
}

func (ts *testServer) dial(t *testing.T, addr string, u testUser, path string) *websocket.Conn {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/ws/ticket", u.token, nil)
	requireStatus(t, resp, fiber.StatusOK)
	ticket := decode[struct {
		Ticket string `json:"ticket"`
	}](t, resp).Ticket

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+path+"?ticket="+ticket, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readWSFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f wsFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

// awaitFrame reads frames until one satisfies ok.
func awaitFrame[T any](t *testing.T, conn *websocket.Conn, ok func(T) bool) T {
	t.Helper()
	for {
		f := readWSFrame(t, conn)
		require.Equal(t, notifications.FrameSnapshot, f.Type, "error frame: %s", f.Error)
		var v T
		if len(f.Data) > 0 {
			require.NoError(t, json.Unmarshal(f.Data, &v))
		}
		if ok(v) {
			return v
		}
	}
}

func TestFeedSocket_StreamsNewPosts(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ada := ts.register(t, "ada")
	bob := ts.register(t, "bob")
	addr := ts.listen(t)

	conn := ts.dial(t, addr, bob, "/api/ws/feed")
	first := readWSFrame(t, conn)
	assert.Equal(t, notifications.FrameSnapshot, first.Type)
	assert.Equal(t, "feed", first.Kind)

	resp := ts.do(t, http.MethodPost, "/api/users/"+ada.uid+"/follow", bob.token, nil)
	requireStatus(t, resp, fiber.StatusOK)
	post := ts.createPost(t, ada, "live")

	feed := awaitFrame(t, conn, func(posts []models.Post) bool { return len(posts) == 1 })
	assert.Equal(t, post.ID, feed[0].ID)
}

func TestPostSocket_StreamsEngagement(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ada := ts.register(t, "ada")
	bob := ts.register(t, "bob")
	post := ts.createPost(t, ada, "")
	addr := ts.listen(t)

	conn := ts.dial(t, addr, ada, "/api/ws/posts/"+post.ID)
	awaitFrame(t, conn, func(s models.PostEngagement) bool { return s.LikesCount == 0 })

	resp := ts.do(t, http.MethodPost, "/api/posts/"+post.ID+"/like/toggle", bob.token, nil)
	requireStatus(t, resp, fiber.StatusOK)

	state := awaitFrame(t, conn, func(s models.PostEngagement) bool { return s.LikesCount == 1 })
	assert.False(t, state.Liked, "ada's own like state is unaffected by bob")
}

func TestConversationSocket(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ada := ts.register(t, "ada")
	bob := ts.register(t, "bob")
	addr := ts.listen(t)

	conn := ts.dial(t, addr, bob, "/api/ws/conversations/"+ada.uid)
	readWSFrame(t, conn)

	resp := ts.do(t, http.MethodPost, "/api/conversations/"+bob.uid+"/messages", ada.token, textRequest{Text: "ping"})
	requireStatus(t, resp, fiber.StatusCreated)

	msgs := awaitFrame(t, conn, func(m []models.Message) bool { return len(m) == 1 })
	assert.Equal(t, "ping", msgs[0].Text)
	assert.Equal(t, ada.uid, msgs[0].SenderID)
}

func TestSocket_RejectsInvalidSubscription(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ada := ts.register(t, "ada")
	addr := ts.listen(t)

	conn := ts.dial(t, addr, ada, "/api/ws/conversations/"+ada.uid)
	f := readWSFrame(t, conn)
	assert.Equal(t, notifications.FrameError, f.Type)
	assert.Equal(t, models.CodeValidation, f.Code)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestSocket_CloseReleasesSubscription(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ada := ts.register(t, "ada")
	addr := ts.listen(t)

	conn := ts.dial(t, addr, ada, "/api/ws/feed")
	readWSFrame(t, conn)
	assert.Equal(t, 1, ts.broker.Subscribers())

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool { return ts.broker.Subscribers() == 0 }, 3*time.Second, 20*time.Millisecond)
}

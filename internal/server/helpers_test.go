package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"instafeed/internal/config"
	"instafeed/internal/models"
	"instafeed/internal/service"
	"instafeed/internal/storage"
	"instafeed/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

const testPassword = "Password123"

type testServer struct {
	*Server
	app *fiber.App
	mr  *miniredis.Miniredis
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:         "test-secret",
		Port:              "0",
		AllowedOrigins:    "*",
		Env:               "test",
		DefaultAvatarURL:  "https://cdn.example.com/default.png",
		TokenTTLHours:     1,
		MaxImageDimension: 64,
		MaxUploadSizeMB:   1,
		SuggestionLimit:   10,
	}
}

// newTestServer builds a Server over SQLite, miniredis and the given blob
// store (memory when nil).
func newTestServer(t *testing.T, blobs storage.BlobStore) *testServer {
	t.Helper()
	if blobs == nil {
		blobs = storage.NewMemoryStore("https://cdn.example.com")
	}
	mr, rdb := testutil.NewTestRedis(t)

	srv, err := NewServer(testConfig(), Deps{
		DB:    testutil.NewTestDB(t),
		Redis: rdb,
		Blobs: blobs,
	})
	require.NoError(t, err)
	return &testServer{Server: srv, app: srv.App(), mr: mr}
}

func (ts *testServer) send(t *testing.T, req *http.Request, token string) *http.Response {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return ts.send(t, req, token)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func requireStatus(t *testing.T, resp *http.Response, status int) {
	t.Helper()
	if resp.StatusCode != status {
		body, _ := io.ReadAll(resp.Body)
		require.Failf(t, "unexpected status", "want %d, got %d: %s", status, resp.StatusCode, body)
	}
}

type testUser struct {
	token string
	uid   string
}

// register signs up and onboards username.
func (ts *testServer) register(t *testing.T, username string) testUser {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/auth/signup", "", credentialsRequest{
		Email:    username + "@example.com",
		Password: testPassword,
	})
	requireStatus(t, resp, fiber.StatusCreated)
	auth := decode[service.AuthResult](t, resp)

	resp = ts.do(t, http.MethodPost, "/api/me/onboard", auth.Token, map[string]string{
		"username":  username,
		"full_name": username + " Lovelace",
	})
	requireStatus(t, resp, fiber.StatusCreated)
	return testUser{token: auth.Token, uid: auth.Viewer.UID}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, method, path string, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if content != nil {
		part, err := w.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func (ts *testServer) createPost(t *testing.T, u testUser, caption string) models.Post {
	t.Helper()
	req := uploadRequest(t, http.MethodPost, "/api/posts", map[string]string{"caption": caption}, "beach.png", pngBytes(t, 20, 10))
	resp := ts.send(t, req, u.token)
	requireStatus(t, resp, fiber.StatusCreated)
	return decode[models.Post](t, resp)
}

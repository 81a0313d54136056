package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"instafeed/internal/imaging"
	"instafeed/internal/live"
	"instafeed/internal/models"
	"instafeed/internal/repository"
	"instafeed/internal/storage"
	"instafeed/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const waitTimeout = 2 * time.Second

// testEnv wires real repositories over a private SQLite database and an
// in-process broker.
type testEnv struct {
	db     *gorm.DB
	broker *live.Broker
	blobs  *storage.MemoryStore

	creds      repository.CredentialRepository
	accounts   repository.AccountRepository
	follows    repository.FollowRepository
	engagement repository.EngagementRepository
	posts      repository.PostRepository
	comments   repository.CommentRepository
	messages   repository.MessageRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	return &testEnv{
		db:         db,
		broker:     live.NewBroker(nil),
		blobs:      storage.NewMemoryStore("https://cdn.example.com"),
		creds:      repository.NewCredentialRepository(db),
		accounts:   repository.NewAccountRepository(db),
		follows:    repository.NewFollowRepository(db),
		engagement: repository.NewEngagementRepository(db),
		posts:      repository.NewPostRepository(db),
		comments:   repository.NewCommentRepository(db),
		messages:   repository.NewMessageRepository(db),
	}
}

var testImageOpts = imaging.Options{MaxDimension: 64, MaxBytes: 1 << 20}

func (e *testEnv) relationships() *RelationshipService {
	return NewRelationshipService(e.follows, e.engagement, e.broker)
}

func (e *testEnv) postService() *PostService {
	return NewPostService(e.posts, e.engagement, e.blobs, e.broker, testImageOpts)
}

// viewer creates an onboarded account and returns it as a Viewer.
func (e *testEnv) viewer(t *testing.T, username string) *models.Viewer {
	t.Helper()
	acc := &models.Account{
		ID:        uuid.NewString(),
		Username:  username,
		FullName:  username + " full",
		Email:     username + "@gmail.com",
		AvatarURL: "https://cdn.example.com/default.png",
	}
	require.NoError(t, e.db.Create(acc).Error)
	return &models.Viewer{UID: acc.ID, Email: acc.Email, Account: acc, Onboarded: true}
}

// post inserts a post by author created at the given time.
func (e *testEnv) post(t *testing.T, author *models.Viewer, createdAt time.Time) *models.Post {
	t.Helper()
	p := &models.Post{
		ID:             uuid.NewString(),
		AuthorID:       author.UID,
		AuthorUsername: author.Username(),
		ImageURL:       "https://cdn.example.com/" + author.Username(),
		Caption:        "caption",
		CreatedAt:      createdAt,
	}
	require.NoError(t, e.db.Create(p).Error)
	return p
}

func (e *testEnv) account(t *testing.T, id string) *models.Account {
	t.Helper()
	var acc models.Account
	require.NoError(t, e.db.Where("id = ?", id).First(&acc).Error)
	return &acc
}

func pngImage(t *testing.T, w, h int) []byte {
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

func appCode(err error) string {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func ids(posts []models.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func usernames(accounts []models.Account) []string {
	out := make([]string, len(accounts))
	for i, a := range accounts {
		out[i] = a.Username
	}
	return out
}

// next reads one snapshot from sub or fails the test.
func next[T any](t *testing.T, sub *live.Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-sub.Updates():
		require.True(t, ok, "subscription closed")
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for snapshot")
	}
	var zero T
	return zero
}

// waitFor reads snapshots until pred holds.
func waitFor[T any](t *testing.T, sub *live.Subscription[T], pred func(T) bool) T {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case v, ok := <-sub.Updates():
			require.True(t, ok, "subscription closed")
			if pred(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching snapshot")
		}
	}
}

// failingBlobStore rejects every write.
type failingBlobStore struct{}

func (failingBlobStore) Put(context.Context, string, []byte, string) (string, error) {
	return "", errors.New("bucket unavailable")
}

func (failingBlobStore) Delete(context.Context, string) error {
	return errors.New("bucket unavailable")
}

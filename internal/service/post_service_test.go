package service

import (
	"bytes"
	"context"
	"image"
	"strings"
	"testing"
	"time"

	"instafeed/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostService_Publish(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	svc := e.postService()
	author := e.viewer(t, "author")

	post, err := svc.Publish(context.Background(), author, PublishInput{
		Caption:   "  sunset ",
		ImageName: "My Sunset.PNG",
		Image:     pngImage(t, 200, 100),
	})
	require.NoError(t, err)

	assert.Equal(t, "sunset", post.Caption)
	assert.Equal(t, "author", post.AuthorUsername)
	assert.Equal(t, author.Account.AvatarURL, post.AuthorAvatarURL)
	assert.True(t, strings.HasPrefix(post.ImageKey, "post_images/"+post.ID+"-"), post.ImageKey)
	assert.True(t, strings.HasSuffix(post.ImageKey, ".webp"), post.ImageKey)
	assert.Equal(t, "https://cdn.example.com/"+post.ImageKey, post.ImageURL)

	data, ok := e.blobs.Get(post.ImageKey)
	require.True(t, ok)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "webp", format)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 32, cfg.Height)

	stored, err := svc.Get(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.ImageURL, stored.ImageURL)
}

func TestPostService_PublishRejects(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	svc := e.postService()
	author := e.viewer(t, "author")

	tests := []struct {
		name   string
		viewer *models.Viewer
		in     PublishInput
		code   string
	}{
		{"Not Onboarded", &models.Viewer{UID: "x"}, PublishInput{Image: pngImage(t, 4, 4)}, models.CodeOnboardingRequired},
		{"No Image", author, PublishInput{Caption: "hi"}, models.CodeValidation},
		{"Not An Image", author, PublishInput{Image: []byte("plain text, not pixels")}, models.CodeValidation},
		{"Caption Too Long", author, PublishInput{Caption: strings.Repeat("a", 2201), Image: pngImage(t, 4, 4)}, models.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Publish(context.Background(), tt.viewer, tt.in)
			assert.Equal(t, tt.code, appCode(err))
		})
	}
	assert.Zero(t, e.blobs.Len())
}

func TestPostService_PublishUploadFailure(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	svc := NewPostService(e.posts, e.engagement, failingBlobStore{}, e.broker, testImageOpts)
	author := e.viewer(t, "author")

	_, err := svc.Publish(context.Background(), author, PublishInput{Image: pngImage(t, 8, 8)})
	assert.Equal(t, models.CodeInternal, appCode(err))

	var n int64
	require.NoError(t, e.db.Model(&models.Post{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestPostService_Delete(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	svc := e.postService()
	ctx := context.Background()
	author := e.viewer(t, "author")
	fan := e.viewer(t, "fan")

	post, err := svc.Publish(ctx, author, PublishInput{ImageName: "a.png", Image: pngImage(t, 8, 8)})
	require.NoError(t, err)
	_, err = e.engagement.Like(ctx, post.ID, fan.UID, fan.Username())
	require.NoError(t, err)
	require.NoError(t, e.engagement.Save(ctx, post.ID, fan.UID, fan.Username()))

	err = svc.Delete(ctx, fan, post.ID)
	assert.Equal(t, models.CodeForbidden, appCode(err))

	require.NoError(t, svc.Delete(ctx, author, post.ID))
	_, ok := e.blobs.Get(post.ImageKey)
	assert.False(t, ok, "blob is removed with the post")

	_, err = svc.Get(ctx, post.ID)
	assert.Equal(t, models.CodeNotFound, appCode(err))
	for _, model := range []any{&models.Like{}, &models.Save{}} {
		var n int64
		require.NoError(t, e.db.Model(model).Count(&n).Error)
		assert.Zero(t, n)
	}

	err = svc.Delete(ctx, author, post.ID)
	assert.Equal(t, models.CodeNotFound, appCode(err))
}

func TestPostService_DeleteSurvivesBlobFailure(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	svc := NewPostService(e.posts, e.engagement, failingBlobStore{}, e.broker, testImageOpts)
	author := e.viewer(t, "author")
	post := e.post(t, author, time.Now())
	require.NoError(t, e.db.Model(post).Update("image_key", "post_images/x.webp").Error)

	assert.NoError(t, svc.Delete(context.Background(), author, post.ID))
}

func TestPostService_ListByAuthorAndSaved(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	svc := e.postService()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	author := e.viewer(t, "author")
	fan := e.viewer(t, "fan")

	older := e.post(t, author, base)
	newer := e.post(t, author, base.Add(time.Hour))

	posts, count, err := svc.ListByAuthor(ctx, "author")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, []string{newer.ID, older.ID}, ids(posts))

	saved, err := svc.SavedPosts(ctx, fan)
	require.NoError(t, err)
	assert.Empty(t, saved)

	require.NoError(t, e.engagement.Save(ctx, older.ID, fan.UID, fan.Username()))
	require.NoError(t, e.engagement.Save(ctx, newer.ID, fan.UID, fan.Username()))

	saved, err = svc.SavedPosts(ctx, fan)
	require.NoError(t, err)
	assert.Equal(t, []string{newer.ID, older.ID}, ids(saved))
}

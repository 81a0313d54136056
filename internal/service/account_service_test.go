package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"instafeed/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccountService(e *testEnv) *AccountService {
	return NewAccountService(e.accounts, e.follows, e.posts, e.blobs, e.broker, testImageOpts)
}

func TestAccountService_Profile(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	svc := newAccountService(e)
	ctx := context.Background()
	alice := e.viewer(t, "alice")
	bob := e.viewer(t, "bob")
	e.post(t, bob, time.Now().Add(-time.Hour))
	latest := e.post(t, bob, time.Now())
	require.NoError(t, e.relationships().Follow(ctx, alice.UID, bob.UID))

	profile, err := svc.Profile(ctx, alice, "bob")
	require.NoError(t, err)
	assert.Equal(t, bob.UID, profile.Account.ID)
	assert.Equal(t, int64(2), profile.PostCount)
	assert.Equal(t, latest.ID, profile.Posts[0].ID)
	assert.True(t, profile.IsFollowing)
	assert.False(t, profile.IsSelf)
	assert.Equal(t, 1, profile.Account.FollowersCount)

	own, err := svc.Profile(ctx, alice, "alice")
	require.NoError(t, err)
	assert.True(t, own.IsSelf)
	assert.Empty(t, own.Posts)

	_, err = svc.Profile(ctx, alice, "nobody")
	assert.Equal(t, models.CodeNotFound, appCode(err))
}

func TestAccountService_SearchUsernames(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	svc := newAccountService(e)
	viewer := e.viewer(t, "sam")
	for _, name := range []string{"samantha", "samuel", "Sammy", "alex"} {
		e.viewer(t, name)
	}

	tests := []struct {
		prefix string
		want   []string
	}{
		{"sam", []string{"samantha", "samuel"}},
		{"Sam", []string{"Sammy"}},
		{"zzz", []string{}},
		{"", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			got, err := svc.SearchUsernames(context.Background(), viewer, tt.prefix, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, usernames(got))
		})
	}
}

func TestAccountService_ChangeAvatar(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	svc := newAccountService(e)
	svc.now = func() time.Time { return time.Unix(1700000000, 0) }
	ctx := context.Background()
	alice := e.viewer(t, "alice")
	first := e.post(t, alice, time.Now())
	second := e.post(t, alice, time.Now())

	acc, err := svc.ChangeAvatar(ctx, alice, pngImage(t, 120, 120))
	require.NoError(t, err)

	want := "https://cdn.example.com/avatar_images/" + alice.UID + "?v=1700000000"
	assert.Equal(t, want, acc.AvatarURL)
	_, ok := e.blobs.Get("avatar_images/" + alice.UID)
	assert.True(t, ok)

	for _, id := range []string{first.ID, second.ID} {
		p, err := e.posts.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, p.AuthorAvatarURL)
	}

	_, err = svc.ChangeAvatar(ctx, alice, []byte(strings.Repeat("x", 32)))
	assert.Equal(t, models.CodeValidation, appCode(err))
}

func TestAccountService_Contacts(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	svc := newAccountService(e)
	ctx := context.Background()
	viewer := e.viewer(t, "viewer")
	alice := e.viewer(t, "alice")
	e.viewer(t, "bob")
	require.NoError(t, e.relationships().Follow(ctx, viewer.UID, alice.UID))

	contacts, err := svc.Contacts(ctx, viewer)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, usernames(contacts))
}

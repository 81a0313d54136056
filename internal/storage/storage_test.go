package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
}

func fakeS3(t *testing.T) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reqs = append(reqs, recordedRequest{method: r.Method, path: r.URL.Path})
		mu.Unlock()
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func TestS3Store_PutAndDelete(t *testing.T) {
	t.Parallel()
	srv, requests := fakeS3(t)

	cfg := S3Config{Bucket: "media", Region: "us-east-1", Endpoint: srv.URL}
	client := s3.New(s3.Options{
		Region:       cfg.Region,
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  aws.AnonymousCredentials{},
	})
	store := NewS3StoreWithClient(client, cfg)
	ctx := context.Background()

	url, err := store.Put(ctx, PostImageKey("abc", "cat.webp"), []byte("data"), "image/webp")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/media/post_images/abc-cat.webp", url)

	require.NoError(t, store.Delete(ctx, AvatarKey("uid-1")))
	require.NoError(t, store.CheckBucketAccess(ctx))

	got := requests()
	require.Len(t, got, 3)
	assert.Equal(t, recordedRequest{http.MethodPut, "/media/post_images/abc-cat.webp"}, got[0])
	assert.Equal(t, recordedRequest{http.MethodDelete, "/media/avatar_images/uid-1"}, got[1])
	assert.Equal(t, http.MethodHead, got[2].method)
}

func TestPublicBaseURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  S3Config
		want string
	}{
		{"Explicit", S3Config{Bucket: "b", Region: "r", PublicBaseURL: "https://cdn.example.com/"}, "https://cdn.example.com"},
		{"Custom Endpoint", S3Config{Bucket: "b", Region: "r", Endpoint: "http://minio:9000"}, "http://minio:9000/b"},
		{"AWS", S3Config{Bucket: "b", Region: "eu-west-1"}, "https://b.s3.eu-west-1.amazonaws.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, publicBaseURL(tt.cfg))
		})
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	m := NewMemoryStore("http://localhost/media/")
	ctx := context.Background()

	url, err := m.Put(ctx, "k", []byte("v"), "image/webp")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/media/k", url)

	data, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), data)

	require.NoError(t, m.Delete(ctx, "k"))
	assert.Zero(t, m.Len())
}

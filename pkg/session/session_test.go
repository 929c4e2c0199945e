package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/botportal/pkg/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	user  *models.User
	err   error
	calls int
	// onCall runs before returning, e.g. to simulate a 401 invalidation.
	onCall func()
}

func (f *fakeFetcher) Me(_ context.Context) (*models.User, error) {
	f.calls++
	if f.onCall != nil {
		f.onCall()
	}

	return f.user, f.err
}

func TestSession_LoadWithoutTokenSkipsServer(t *testing.T) {
	fetcher := &fakeFetcher{}
	s := New(NewMemoryStore(""), nil)
	s.UseFetcher(fetcher)

	assert.Equal(t, StateLoading, s.State())

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, StateUnauthenticated, s.State())
	assert.Nil(t, s.User())
	assert.Zero(t, fetcher.calls)
}

func TestSession_LoadResolvesUser(t *testing.T) {
	fetcher := &fakeFetcher{user: &models.User{ID: "u1", Role: models.RoleUser}}
	s := New(NewMemoryStore("tok"), nil)
	s.UseFetcher(fetcher)

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, "u1", s.User().ID)
	assert.Equal(t, "tok", s.Token())
}

func TestSession_LoadFailureClearsToken(t *testing.T) {
	store := NewMemoryStore("stale")
	fetcher := &fakeFetcher{err: errors.New("network down")}
	s := New(store, nil)
	s.UseFetcher(fetcher)

	err := s.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateUnauthenticated, s.State())
	assert.Empty(t, s.Token())

	stored, _ := store.Load(context.Background())
	assert.Empty(t, stored)
}

func TestSession_LoadWithoutFetcher(t *testing.T) {
	store := NewMemoryStore("tok")
	s := New(store, nil)
	require.ErrorIs(t, s.Load(context.Background()), ErrNoFetcher)

	assert.Equal(t, StateUnauthenticated, s.State())
	assert.Nil(t, s.User())

	stored, _ := store.Load(context.Background())
	assert.Equal(t, "tok", stored)
}

func TestSession_SetTokenPersistsAndReloads(t *testing.T) {
	store := NewMemoryStore("")
	fetcher := &fakeFetcher{user: &models.User{ID: "u2", Role: models.RoleAdmin}}
	s := New(store, nil)
	s.UseFetcher(fetcher)

	require.NoError(t, s.SetToken(context.Background(), "fresh"))

	stored, _ := store.Load(context.Background())
	assert.Equal(t, "fresh", stored)
	assert.Equal(t, "fresh", s.Token())
	assert.Equal(t, StateAuthenticated, s.State())
}

func TestSession_Logout(t *testing.T) {
	store := NewMemoryStore("tok")
	s := New(store, nil)
	s.UseFetcher(&fakeFetcher{user: &models.User{ID: "u1"}})
	require.NoError(t, s.Load(context.Background()))

	require.NoError(t, s.Logout(context.Background()))
	assert.Equal(t, StateUnauthenticated, s.State())
	assert.Nil(t, s.User())
	assert.Empty(t, s.Token())

	stored, _ := store.Load(context.Background())
	assert.Empty(t, stored)
}

func TestSession_InvalidateRunsHooks(t *testing.T) {
	store := NewMemoryStore("tok")
	s := New(store, nil)
	s.UseFetcher(&fakeFetcher{user: &models.User{ID: "u1"}})
	require.NoError(t, s.Load(context.Background()))

	fired := 0
	s.OnUnauthorized(func() { fired++ })

	s.Invalidate()

	assert.Equal(t, 1, fired)
	assert.Equal(t, StateUnauthenticated, s.State())
	assert.Empty(t, s.Token())
}

func TestSession_UnauthorizedDuringLoadDoesNotDeadlock(t *testing.T) {
	s := New(NewMemoryStore("tok"), nil)
	fetcher := &fakeFetcher{err: errors.New("unauthorized")}
	fetcher.onCall = s.Invalidate
	s.UseFetcher(fetcher)

	require.Error(t, s.Load(context.Background()))
	assert.Equal(t, StateUnauthenticated, s.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	store := NewFileStore(path)
	ctx := context.Background()

	token, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, store.Save(ctx, "abc123"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	token, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))

	token, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestNewTokenStore(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    any
		wantErr error
	}{
		{name: "file scheme", url: "file:///tmp/botportal/token", want: &FileStore{}},
		{name: "bare path", url: "/tmp/botportal/token", want: &FileStore{}},
		{name: "memory", url: "memory://", want: &MemoryStore{}},
		{name: "redis", url: "redis://localhost:6379/0", want: &RedisStore{}},
		{name: "unknown", url: "mongodb://localhost", wantErr: ErrUnsupportedStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewTokenStore(tt.url)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.IsType(t, tt.want, store)
		})
	}

	store, err := NewTokenStore("file:///tmp/botportal/token")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/botportal/token", store.(*FileStore).Path())
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("BOTPORTAL_TEST_REDIS_URL")
	if url == "" {
		t.Skip("BOTPORTAL_TEST_REDIS_URL not set")
	}

	options, err := redis.ParseURL(url)
	require.NoError(t, err)

	client := redis.NewClient(options)
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, "botportal:test:token")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "r3d1s"))

	token, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r3d1s", token)

	require.NoError(t, store.Clear(ctx))

	token, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

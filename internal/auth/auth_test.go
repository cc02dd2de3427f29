package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-ticket-lifecycle/internal/apperror"
	"ms-ticket-lifecycle/internal/auth"
	"ms-ticket-lifecycle/internal/utils"
)

var secret = []byte("test-secret")

func TestRequire(t *testing.T) {
	organizer := &auth.Identity{ID: "u1", Role: auth.RoleOrganizer}
	buyer := &auth.Identity{ID: "u2", Role: auth.RoleBuyer}
	market := &auth.Identity{ID: "u3", Role: auth.RoleMarketplace}

	assert.NoError(t, auth.Require(organizer, auth.RoleOrganizer))
	assert.NoError(t, auth.Require(buyer, auth.RoleBuyer, auth.RoleMarketplace))
	assert.NoError(t, auth.Require(market, auth.RoleBuyer, auth.RoleMarketplace))
	assert.NoError(t, auth.Require(buyer))

	err := auth.Require(buyer, auth.RoleOrganizer)
	assert.Equal(t, apperror.CodeAuthorization, apperror.CodeOf(err))

	err = auth.Require(organizer, auth.RoleBuyer, auth.RoleMarketplace)
	assert.Equal(t, apperror.CodeAuthorization, apperror.CodeOf(err))

	err = auth.Require(nil)
	assert.Equal(t, apperror.CodeUnauthenticated, apperror.CodeOf(err))
}

func TestParseRole(t *testing.T) {
	role, err := auth.ParseRole(" Organizer ")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleOrganizer, role)

	_, err = auth.ParseRole("admin")
	assert.Error(t, err)
}

func TestIssueAndVerifyToken(t *testing.T) {
	token, err := auth.IssueToken(secret, "user-1", auth.RoleMarketplace, time.Hour)
	require.NoError(t, err)

	id, err := auth.NewHMACVerifier(secret).Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.ID)
	assert.Equal(t, auth.RoleMarketplace, id.Role)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	verifier := auth.NewHMACVerifier(secret)
	ctx := context.Background()

	expired, err := auth.IssueToken(secret, "user-1", auth.RoleBuyer, -time.Minute)
	require.NoError(t, err)
	_, err = verifier.Verify(ctx, expired)
	assert.Error(t, err)

	foreign, err := auth.IssueToken([]byte("other"), "user-1", auth.RoleBuyer, time.Hour)
	require.NoError(t, err)
	_, err = verifier.Verify(ctx, foreign)
	assert.Error(t, err)

	_, err = verifier.Verify(ctx, "not-a-token")
	assert.Error(t, err)

	_, err = auth.IssueToken(secret, "user-1", auth.Role("admin"), time.Hour)
	assert.Error(t, err)
	_, err = auth.IssueToken(nil, "user-1", auth.RoleBuyer, time.Hour)
	assert.Error(t, err)
}

func TestExtractTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := auth.ExtractTokenFromRequest(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "Basic abc")
	_, err = auth.ExtractTokenFromRequest(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "Bearer abc")
	token, err := auth.ExtractTokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}

func TestMiddleware(t *testing.T) {
	handler := auth.Middleware(auth.NewHMACVerifier(secret), nil)(
		auth.RequireRole(auth.RoleOrganizer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			utils.WriteJSON(w, http.StatusOK, map[string]string{"user": auth.UserID(r.Context())})
		})),
	)

	call := func(token string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	w := call("")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(apperror.CodeUnauthenticated), body.Code)

	buyer, _ := auth.IssueToken(secret, "buyer-1", auth.RoleBuyer, time.Hour)
	w = call(buyer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	organizer, _ := auth.IssueToken(secret, "org-1", auth.RoleOrganizer, time.Hour)
	w = call(organizer)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "org-1")
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, rawToken string) (*auth.Identity, error) {
	args := m.Called(ctx, rawToken)
	if id, ok := args.Get(0).(*auth.Identity); ok {
		return id, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestCachingVerifier(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	next := new(MockVerifier)
	next.On("Verify", mock.Anything, "good").Return(&auth.Identity{ID: "u1", Role: auth.RoleBuyer}, nil).Once()
	next.On("Verify", mock.Anything, "bad").Return(nil, errors.New("invalid")).Twice()

	cv := auth.NewCachingVerifier(next, client, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := cv.Verify(ctx, "good")
		require.NoError(t, err)
		assert.Equal(t, "u1", id.ID)
	}

	for i := 0; i < 2; i++ {
		_, err := cv.Verify(ctx, "bad")
		assert.Error(t, err)
	}

	next.AssertExpectations(t)
	assert.Len(t, mr.Keys(), 1)
}

func TestCachingVerifierFallsThroughWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	next := new(MockVerifier)
	next.On("Verify", mock.Anything, "good").Return(&auth.Identity{ID: "u1", Role: auth.RoleBuyer}, nil)

	id, err := auth.NewCachingVerifier(next, client, nil).Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "u1", id.ID)
}

func TestCachingVerifierStopsAtTokenExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	// exp has second precision, so this token expires within 1-2s
	token, err := auth.IssueToken(secret, "u1", auth.RoleOrganizer, 2*time.Second)
	require.NoError(t, err)

	cv := auth.NewCachingVerifier(auth.NewHMACVerifier(secret), client, nil)
	ctx := context.Background()

	id, err := cv.Verify(ctx, token)
	require.NoError(t, err)
	assert.False(t, id.ExpiresAt.IsZero())

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.LessOrEqual(t, mr.TTL(keys[0]), 2*time.Second)

	var cached auth.CachedIdentity
	raw, err := mr.Get(keys[0])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.False(t, cached.ExpiresAt.After(id.ExpiresAt))

	time.Sleep(2100 * time.Millisecond)

	// the Redis entry is still present; its recorded expiry rejects it
	_, err = cv.Verify(ctx, token)
	assert.Error(t, err)
}

func TestCachingVerifierSkipsExpiredIdentity(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	next := new(MockVerifier)
	next.On("Verify", mock.Anything, "stale").
		Return(&auth.Identity{ID: "u1", Role: auth.RoleOrganizer, ExpiresAt: now}, nil).Twice()

	cv := auth.NewCachingVerifier(next, client, nil)
	cv.Now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_, err := cv.Verify(context.Background(), "stale")
		require.NoError(t, err)
	}
	next.AssertExpectations(t)
	assert.Empty(t, mr.Keys())
}

func TestCachingVerifierCachedEntryExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	next := new(MockVerifier)
	next.On("Verify", mock.Anything, "short").
		Return(&auth.Identity{ID: "u1", Role: auth.RoleOrganizer, ExpiresAt: now.Add(30 * time.Second)}, nil).Once()
	next.On("Verify", mock.Anything, "short").Return(nil, errors.New("token is expired")).Once()

	cv := auth.NewCachingVerifier(next, client, nil)
	cv.Now = func() time.Time { return now }
	ctx := context.Background()

	_, err := cv.Verify(ctx, "short")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, mr.TTL(mr.Keys()[0]))

	now = now.Add(31 * time.Second)
	_, err = cv.Verify(ctx, "short")
	assert.Error(t, err)
	next.AssertExpectations(t)
}

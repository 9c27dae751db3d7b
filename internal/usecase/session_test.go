package usecase

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession(api *fakeAssistantAPI, ttl time.Duration) (*SessionCache, *time.Time) {
	s := NewSessionCache(api, ttl, slog.New(slog.DiscardHandler))
	now := time.Now()
	s.now = func() time.Time { return now }
	return s, &now
}

func TestSessionCacheReusesAssistantWithinTTL(t *testing.T) {
	api := &fakeAssistantAPI{}
	s, _ := testSession(api, 30*time.Minute)
	ctx := context.Background()

	first, err := s.GetOrCreateAssistant(ctx)
	require.NoError(t, err)
	second, err := s.GetOrCreateAssistant(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, api.assistantCalls)
}

func TestSessionCacheExpiresAfterTTL(t *testing.T) {
	api := &fakeAssistantAPI{}
	s, now := testSession(api, 30*time.Minute)
	ctx := context.Background()

	first, err := s.GetOrCreateAssistant(ctx)
	require.NoError(t, err)

	*now = now.Add(31 * time.Minute)

	second, err := s.GetOrCreateAssistant(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, api.assistantCalls)
}

func TestSessionCacheThreadLifecycle(t *testing.T) {
	api := &fakeAssistantAPI{}
	s, now := testSession(api, 10*time.Minute)
	ctx := context.Background()

	assert.False(t, s.Active())

	first, err := s.GetOrCreateThread(ctx)
	require.NoError(t, err)
	assert.True(t, s.Active())

	second, err := s.GetOrCreateThread(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, api.threadCalls)

	*now = now.Add(11 * time.Minute)
	assert.False(t, s.Active())
}

func TestSessionCacheReset(t *testing.T) {
	api := &fakeAssistantAPI{}
	s, _ := testSession(api, 30*time.Minute)
	ctx := context.Background()

	_, err := s.GetOrCreateAssistant(ctx)
	require.NoError(t, err)
	_, err = s.GetOrCreateThread(ctx)
	require.NoError(t, err)

	s.Reset()

	_, err = s.GetOrCreateAssistant(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, api.assistantCalls)
	assert.False(t, s.Active())
}

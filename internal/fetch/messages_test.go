package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/cache"
	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
)

func TestMessageFetchWritesThroughCache(t *testing.T) {
	history := []models.Message{{
		ID:        "m1",
		ChannelID: "chan-1",
		Content:   "hi",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}}

	msgStore := new(mocks.MessageStoreMock)
	msgStore.On("FetchMessages", mock.Anything, "chan-1").Return(history, nil).Once()

	convCache := cache.NewConversationCache(cache.NewMemory(), time.Minute)
	fetcher := NewMessageFetcher(msgStore, convCache)

	got, err := fetcher.Fetch(context.Background(), "chan-1")
	require.NoError(t, err)
	assert.Equal(t, history, got)

	cached, err := convCache.LoadMessages(context.Background(), "chan-1")
	require.NoError(t, err)
	assert.Equal(t, history, cached)
}

func TestMessageFetchFailureServesCachedHistory(t *testing.T) {
	history := []models.Message{{ID: "m1", ChannelID: "chan-1", Content: "hi"}}

	convCache := cache.NewConversationCache(cache.NewMemory(), time.Minute)
	require.NoError(t, convCache.SaveMessages(context.Background(), "chan-1", history))

	msgStore := new(mocks.MessageStoreMock)
	msgStore.On("FetchMessages", mock.Anything, "chan-1").Return(nil, assert.AnError).Once()

	fetcher := NewMessageFetcher(msgStore, convCache)

	got, err := fetcher.Fetch(context.Background(), "chan-1")
	require.NoError(t, err)
	assert.Equal(t, history, got)
}

func TestMessageFetchFailureWithoutCacheErrors(t *testing.T) {
	msgStore := new(mocks.MessageStoreMock)
	msgStore.On("FetchMessages", mock.Anything, "chan-1").Return(nil, assert.AnError).Once()

	fetcher := NewMessageFetcher(msgStore, nil)

	_, err := fetcher.Fetch(context.Background(), "chan-1")
	require.Error(t, err)
}

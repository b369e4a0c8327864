package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unclutter/internal/model"
)

func backends(t *testing.T) map[string]KV {
	return map[string]KV{
		"memory": NewMemoryStore(),
		"sqlite": testStore(t),
	}
}

func sampleResult() model.AnalysisResult {
	last := time.Date(2025, 2, 1, 8, 30, 0, 0, time.UTC)
	return model.AnalysisResult{
		Senders: []model.SenderRecord{
			{EmailAddress: "promo@shop.example", DisplayName: "Shop", TotalCount: 3, UnreadCount: 2,
				MessageIDs: []string{"1", "2", "3"}, UnsubscribeLink: "https://shop.example/u", LastMessageTime: &last, IsBulkMail: true},
			{EmailAddress: "friend@home.example", TotalCount: 1, MessageIDs: []string{"4"}},
		},
		Stats:       model.Stats{TotalMessages: 4, UnreadMessages: 2, TotalSenders: 2, BulkSenders: 1, SkippedMessages: 1},
		GeneratedAt: time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestCacheAnalysisRoundTrip(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewCache(kv)

			_, ok, err := c.LoadAnalysis(ctx)
			require.NoError(t, err)
			assert.False(t, ok)

			want := sampleResult()
			require.NoError(t, c.SaveAnalysis(ctx, want))
			got, ok, err := c.LoadAnalysis(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want, got)

			require.NoError(t, c.ClearAnalysis(ctx))
			_, ok, err = c.LoadAnalysis(ctx)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestCacheAnalysisJSONFieldNames(t *testing.T) {
	kv := NewMemoryStore()
	c := NewCache(kv)
	require.NoError(t, c.SaveAnalysis(context.Background(), sampleResult()))

	raw, ok, err := kv.Get(context.Background(), KeyAnalysis)
	require.NoError(t, err)
	require.True(t, ok)
	for _, field := range []string{`"emailAddress"`, `"totalCount"`, `"unreadCount"`, `"messageIds"`, `"unsubscribeLink"`, `"isBulkMail"`} {
		assert.Contains(t, string(raw), field)
	}
}

func TestCacheUpdateAnalysis(t *testing.T) {
	ctx := context.Background()
	c := NewCache(NewMemoryStore())

	called := false
	require.NoError(t, c.UpdateAnalysis(ctx, func(r *model.AnalysisResult) error {
		called = true
		return nil
	}))
	assert.False(t, called, "no stored result means no update")

	require.NoError(t, c.SaveAnalysis(ctx, sampleResult()))
	require.NoError(t, c.UpdateAnalysis(ctx, func(r *model.AnalysisResult) error {
		r.Senders = r.Senders[1:]
		r.Stats.TotalSenders = 1
		return nil
	}))
	got, _, err := c.LoadAnalysis(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Senders, 1)
	assert.Equal(t, 1, got.Stats.TotalSenders)

	boom := errors.New("boom")
	err = c.UpdateAnalysis(ctx, func(r *model.AnalysisResult) error {
		r.Senders = nil
		return boom
	})
	assert.ErrorIs(t, err, boom)
	got, _, _ = c.LoadAnalysis(ctx)
	assert.Len(t, got.Senders, 1, "failed update leaves stored value alone")
}

func TestCacheConcurrentUpdatesSerialize(t *testing.T) {
	ctx := context.Background()
	c := NewCache(NewMemoryStore())
	require.NoError(t, c.SaveAnalysis(ctx, model.AnalysisResult{}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.UpdateAnalysis(ctx, func(r *model.AnalysisResult) error {
				r.Stats.TotalMessages++
				return nil
			})
		}()
	}
	wg.Wait()
	got, _, err := c.LoadAnalysis(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Stats.TotalMessages)
}

func TestCacheWhitelist(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewCache(kv)

			list, err := c.Whitelist(ctx)
			require.NoError(t, err)
			assert.Empty(t, list)

			added, err := c.AddToWhitelist(ctx, " Friend@Home.example ")
			require.NoError(t, err)
			assert.True(t, added)
			added, err = c.AddToWhitelist(ctx, "friend@home.example")
			require.NoError(t, err)
			assert.False(t, added)
			_, err = c.AddToWhitelist(ctx, "boss@work.example")
			require.NoError(t, err)

			list, err = c.Whitelist(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"boss@work.example", "friend@home.example"}, list)

			ok, err := c.Whitelisted(ctx, "FRIEND@home.example")
			require.NoError(t, err)
			assert.True(t, ok)

			removed, err := c.RemoveFromWhitelist(ctx, "friend@home.example")
			require.NoError(t, err)
			assert.True(t, removed)
			removed, err = c.RemoveFromWhitelist(ctx, "friend@home.example")
			require.NoError(t, err)
			assert.False(t, removed)

			ok, err = c.Whitelisted(ctx, "friend@home.example")
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = c.AddToWhitelist(ctx, "  ")
			assert.Error(t, err)
		})
	}
}

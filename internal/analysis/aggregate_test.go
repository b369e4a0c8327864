package analysis

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unclutter/internal/model"
)

func summary(id, from string, ts int64, labels []string, extra map[string]string) model.MessageSummary {
	h := map[string]string{"From": from}
	for k, v := range extra {
		h[k] = v
	}
	s := model.MessageSummary{ID: id, Labels: labels, Headers: h}
	if ts > 0 {
		s.InternalDate = time.Unix(ts, 0).UTC()
	}
	return s
}

func fixture() []model.MessageSummary {
	return []model.MessageSummary{
		summary("1", `"Shop" <deals@shop.example>`, 100, []string{"INBOX", "UNREAD"},
			map[string]string{"List-Unsubscribe": "<mailto:u@shop.example>"}),
		summary("2", `bob@friends.example`, 200, []string{"INBOX"}, nil),
		summary("3", `Shop <DEALS@shop.example>`, 300, []string{"INBOX"},
			map[string]string{"List-Unsubscribe": "<https://shop.example/u>"}),
		summary("4", `no address here`, 400, []string{"UNREAD"}, nil),
		summary("5", `deals@shop.example`, 150, []string{"UNREAD"}, nil),
		summary("6", `News <news@paper.example>`, 50, nil,
			map[string]string{"Precedence": "Bulk"}),
		summary("7", `bob@friends.example`, 0, []string{"UNREAD"}, nil),
	}
}

func TestAggregateGroupsBySender(t *testing.T) {
	res := Aggregate(fixture())

	require.Len(t, res.Senders, 3)
	shop := res.Senders[0]
	assert.Equal(t, "deals@shop.example", shop.EmailAddress)
	assert.Equal(t, "Shop", shop.DisplayName)
	assert.Equal(t, 3, shop.TotalCount)
	assert.Equal(t, 2, shop.UnreadCount)
	assert.Equal(t, []string{"1", "3", "5"}, shop.MessageIDs)
	assert.Equal(t, "mailto:u@shop.example", shop.UnsubscribeLink, "first link wins")
	require.NotNil(t, shop.LastMessageTime)
	assert.Equal(t, int64(300), shop.LastMessageTime.Unix())
	assert.True(t, shop.IsBulkMail)

	bob := res.Senders[1]
	assert.Equal(t, "bob@friends.example", bob.EmailAddress)
	assert.Empty(t, bob.DisplayName)
	assert.Equal(t, 2, bob.TotalCount)
	assert.Equal(t, 1, bob.UnreadCount)
	assert.False(t, bob.IsBulkMail)
	assert.Empty(t, bob.UnsubscribeLink)

	news := res.Senders[2]
	assert.True(t, news.IsBulkMail, "Precedence: bulk is a bulk indicator")

	assert.Equal(t, model.Stats{
		TotalMessages:  6,
		UnreadMessages: 3,
		TotalSenders:   3,
		BulkSenders:    2,
	}, res.Stats)
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	base := Aggregate(fixture())
	counts := func(r model.AnalysisResult) map[string][2]int {
		out := map[string][2]int{}
		for _, s := range r.Senders {
			out[s.EmailAddress] = [2]int{s.TotalCount, s.UnreadCount}
		}
		return out
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		in := fixture()
		rng.Shuffle(len(in), func(a, b int) { in[a], in[b] = in[b], in[a] })
		got := Aggregate(in)
		assert.Equal(t, base.Stats, got.Stats)
		assert.Equal(t, counts(base), counts(got))

		// ids for one sender follow that sender's relative input order
		pos := map[string]int{}
		for idx, s := range in {
			pos[s.ID] = idx
		}
		for _, s := range got.Senders {
			for k := 1; k < len(s.MessageIDs); k++ {
				assert.Less(t, pos[s.MessageIDs[k-1]], pos[s.MessageIDs[k]])
			}
			assert.LessOrEqual(t, s.UnreadCount, s.TotalCount)
		}
	}
}

func TestAggregateUnsubscribeFirstWriteWins(t *testing.T) {
	in := []model.MessageSummary{
		summary("a", "x@list.example", 1, nil, nil),
		summary("b", "x@list.example", 2, nil, map[string]string{"List-Unsubscribe": "<https://first.example>"}),
		summary("c", "x@list.example", 3, nil, map[string]string{"List-Unsubscribe": "<https://second.example>"}),
	}
	res := Aggregate(in)
	require.Len(t, res.Senders, 1)
	assert.Equal(t, "https://first.example", res.Senders[0].UnsubscribeLink)
}

func TestAggregateSortIsStableOnTies(t *testing.T) {
	in := []model.MessageSummary{
		summary("1", "c@x.example", 0, nil, nil),
		summary("2", "a@x.example", 0, nil, nil),
		summary("3", "b@x.example", 0, nil, nil),
		summary("4", "b@x.example", 0, nil, nil),
	}
	res := Aggregate(in)
	var got []string
	for _, s := range res.Senders {
		got = append(got, s.EmailAddress)
	}
	assert.Equal(t, []string{"b@x.example", "c@x.example", "a@x.example"}, got)
	assert.Nil(t, res.Senders[1].LastMessageTime)
}

func TestAggregateListHeadersMarkBulk(t *testing.T) {
	for _, h := range []string{"List-Id", "List-Post", "List-Unsubscribe"} {
		s := summary("1", "a@b.example", 0, nil, map[string]string{h: "<value>"})
		assert.True(t, IsBulk(s), h)
	}
	assert.False(t, IsBulk(summary("1", "a@b.example", 0, nil, map[string]string{"Precedence": "list"})))
}

func TestAggregateEmpty(t *testing.T) {
	res := Aggregate(nil)
	assert.Empty(t, res.Senders)
	assert.Equal(t, model.Stats{}, res.Stats)
}

func TestRemoveSender(t *testing.T) {
	res := Aggregate(fixture())

	assert.True(t, RemoveSender(&res, " Deals@Shop.example "))
	assert.Len(t, res.Senders, 2)
	assert.Equal(t, model.Stats{TotalMessages: 3, UnreadMessages: 1, TotalSenders: 2, BulkSenders: 1}, res.Stats)

	assert.False(t, RemoveSender(&res, "deals@shop.example"))
	assert.Len(t, res.Senders, 2)
}

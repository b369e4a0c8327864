package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	gmailv1 "google.golang.org/api/gmail/v1"

	"unclutter/internal/model"
)

// MetadataHeaders are the headers requested for every message summary.
var MetadataHeaders = []string{
	"From",
	"Subject",
	"Date",
	"List-Unsubscribe",
	"List-Id",
	"List-Post",
	"Precedence",
}

// Query selects messages for a listing. Raw is a Gmail search expression.
type Query struct {
	Raw      string
	LabelIDs []string
}

// ListPage is one page of message ids.
type ListPage struct {
	IDs                []string
	NextPageToken      string
	ResultSizeEstimate int64
}

// ListPage fetches one page of message ids.
func (c *Client) ListPage(ctx context.Context, q Query, pageToken string, pageSize int) (ListPage, error) {
	query := url.Values{}
	if pageSize > 0 {
		query.Set("maxResults", strconv.Itoa(pageSize))
	}
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}
	if q.Raw != "" {
		query.Set("q", q.Raw)
	}
	for _, l := range q.LabelIDs {
		query.Add("labelIds", l)
	}

	return retryValue(ctx, c.Retry, func(ctx context.Context) (ListPage, error) {
		raw, err := c.Transport.Call(ctx, http.MethodGet, "messages", query, nil)
		if err != nil {
			return ListPage{}, err
		}
		var resp gmailv1.ListMessagesResponse
		if err := decode(raw, "messages", &resp); err != nil {
			return ListPage{}, err
		}
		page := ListPage{NextPageToken: resp.NextPageToken, ResultSizeEstimate: resp.ResultSizeEstimate}
		for _, m := range resp.Messages {
			if m != nil && m.Id != "" {
				page.IDs = append(page.IDs, m.Id)
			}
		}
		return page, nil
	})
}

// GetMetadata fetches labels, internal date and the named headers of one message.
func (c *Client) GetMetadata(ctx context.Context, id string, headers []string) (model.MessageSummary, error) {
	endpoint := "messages/" + url.PathEscape(id)
	query := url.Values{}
	query.Set("format", "metadata")
	for _, h := range headers {
		query.Add("metadataHeaders", h)
	}

	return retryValue(ctx, c.Retry, func(ctx context.Context) (model.MessageSummary, error) {
		raw, err := c.Transport.Call(ctx, http.MethodGet, endpoint, query, nil)
		if err != nil {
			return model.MessageSummary{}, err
		}
		var msg gmailv1.Message
		if err := decode(raw, endpoint, &msg); err != nil {
			return model.MessageSummary{}, err
		}
		if msg.Id == "" {
			msg.Id = id
		}
		return summaryFromMessage(&msg), nil
	})
}

func summaryFromMessage(msg *gmailv1.Message) model.MessageSummary {
	s := model.MessageSummary{
		ID:      msg.Id,
		Labels:  append([]string(nil), msg.LabelIds...),
		Headers: make(map[string]string),
	}
	if msg.InternalDate > 0 {
		s.InternalDate = time.UnixMilli(msg.InternalDate).UTC()
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			if h == nil {
				continue
			}
			key := textproto.CanonicalMIMEHeaderKey(h.Name)
			// first occurrence wins
			if _, ok := s.Headers[key]; !ok {
				s.Headers[key] = h.Value
			}
		}
	}
	return s
}

func decode(raw json.RawMessage, endpoint string, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &RequestError{Kind: ErrProtocol, Endpoint: endpoint, Message: err.Error()}
	}
	return nil
}

// ListIDs walks the listing cursor and collects at most limit ids; limit <= 0
// means no limit. PageDelay is paused between pages. Failures propagate.
func (s *Syncer) ListIDs(ctx context.Context, q Query, limit int) ([]string, error) {
	return s.listIDs(ctx, q, limit, nil)
}

func (s *Syncer) listIDs(ctx context.Context, q Query, limit int, onPage func(collected int, next bool)) ([]string, error) {
	pageSize := s.Options.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var ids []string
	token := ""
	for page := 0; ; page++ {
		if page > 0 {
			if err := s.pause(ctx, s.Options.PageDelay); err != nil {
				return ids, err
			}
		}

		size := pageSize
		if limit > 0 {
			size = min(pageSize, limit-len(ids))
		}
		res, err := s.API.ListPage(ctx, q, token, size)
		if err != nil {
			return ids, fmt.Errorf("list messages: %w", err)
		}
		ids = append(ids, res.IDs...)
		if limit > 0 && len(ids) > limit {
			ids = ids[:limit]
		}

		done := res.NextPageToken == "" || (limit > 0 && len(ids) >= limit)
		if onPage != nil {
			onPage(len(ids), !done)
		}
		s.logger().DebugContext(ctx, "listed page", "page", page+1, "collected", len(ids))
		if done {
			return ids, nil
		}
		token = res.NextPageToken
	}
}

// FetchDetails fetches metadata for ids in batches of batchSize. A failed item
// is logged and skipped; skipped counts them. Output keeps input order. Only
// context cancellation aborts the whole call.
func (s *Syncer) FetchDetails(ctx context.Context, ids []string, batchSize int) ([]model.MessageSummary, int, error) {
	return s.fetchDetails(ctx, ids, batchSize, nil)
}

func (s *Syncer) fetchDetails(ctx context.Context, ids []string, batchSize int, onBatch func(done int)) ([]model.MessageSummary, int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	out := make([]model.MessageSummary, 0, len(ids))
	skipped := 0
	for start := 0; start < len(ids); start += batchSize {
		if start > 0 {
			if err := s.pause(ctx, s.Options.BatchDelay); err != nil {
				return out, skipped, err
			}
		}
		end := min(start+batchSize, len(ids))

		got, ok, err := s.fetchBatch(ctx, ids[start:end])
		if err != nil {
			return out, skipped, err
		}
		for i := range got {
			if ok[i] {
				out = append(out, got[i])
			} else {
				skipped++
			}
		}
		if onBatch != nil {
			onBatch(end)
		}
	}
	return out, skipped, nil
}

// fetchBatch returns summaries by position; ok[i] is false for skipped items.
func (s *Syncer) fetchBatch(ctx context.Context, ids []string) ([]model.MessageSummary, []bool, error) {
	got := make([]model.MessageSummary, len(ids))
	ok := make([]bool, len(ids))

	fetchOne := func(ctx context.Context, i int) error {
		sum, err := s.API.GetMetadata(ctx, ids[i], MetadataHeaders)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger().WarnContext(ctx, "skip message", "id", ids[i], "error", err)
			return nil
		}
		got[i] = sum
		ok[i] = true
		return nil
	}

	if s.Options.Sequential {
		for i := range ids {
			if i > 0 {
				if err := s.pause(ctx, s.Options.ItemDelay); err != nil {
					return nil, nil, err
				}
			}
			if err := fetchOne(ctx, i); err != nil {
				return nil, nil, err
			}
		}
		return got, ok, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range ids {
		g.Go(func() error { return fetchOne(gctx, i) })
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return got, ok, nil
}

package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gmailv1 "google.golang.org/api/gmail/v1"

	"unclutter/internal/analysis"
	"unclutter/internal/model"
)

// BatchDelete permanently deletes up to MaxBatchDelete messages.
func (c *Client) BatchDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) > MaxBatchDelete {
		return fmt.Errorf("batch delete: %d ids exceeds limit of %d", len(ids), MaxBatchDelete)
	}
	req := &gmailv1.BatchDeleteMessagesRequest{Ids: ids}
	return c.Retry.Do(ctx, func(ctx context.Context) error {
		_, err := c.Transport.Call(ctx, http.MethodPost, "messages/batchDelete", nil, req)
		return err
	})
}

// MessageBody fetches the full message and extracts the body as plain text.
// It prefers text/plain, falls back to stripped HTML, then the message snippet.
func (c *Client) MessageBody(ctx context.Context, id string) (string, error) {
	endpoint := "messages/" + url.PathEscape(id)
	query := url.Values{}
	query.Set("format", "full")

	msg, err := retryValue(ctx, c.Retry, func(ctx context.Context) (*gmailv1.Message, error) {
		raw, err := c.Transport.Call(ctx, http.MethodGet, endpoint, query, nil)
		if err != nil {
			return nil, err
		}
		var msg gmailv1.Message
		if err := decode(raw, endpoint, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	})
	if err != nil {
		return "", fmt.Errorf("get message %s: %w", id, err)
	}
	return messageText(msg), nil
}

// DeleteAllFrom deletes every message from email, not only the cached ids,
// then drops the sender from the stored analysis. It returns the number of
// messages deleted.
func (s *Syncer) DeleteAllFrom(ctx context.Context, email string, progress model.ProgressFunc) (int, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return 0, errors.New("delete: empty sender address")
	}
	report := newReporter(progress)
	report("Finding messages", 0)

	ids, err := s.ListIDs(ctx, Query{Raw: "from:" + email}, 0)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("delete %s: %w", email, ErrNothingToDelete)
	}
	s.logger().InfoContext(ctx, "deleting messages", "sender", email, "count", len(ids))
	report("Deleting messages", 10)

	chunk := s.Options.DeleteChunk
	if chunk <= 0 || chunk > MaxBatchDelete {
		chunk = MaxBatchDelete
	}
	deleted := 0
	for start := 0; start < len(ids); start += chunk {
		if start > 0 {
			if err := s.pause(ctx, s.Options.DeleteDelay); err != nil {
				return deleted, err
			}
		}
		end := min(start+chunk, len(ids))
		if err := s.API.BatchDelete(ctx, ids[start:end]); err != nil {
			return deleted, fmt.Errorf("batch delete: %w", err)
		}
		deleted = end
		report("Deleting messages", 10+85*deleted/len(ids))
	}

	if s.Store != nil {
		report("Updating cache", 95)
		err := s.Store.UpdateAnalysis(ctx, func(r *model.AnalysisResult) error {
			analysis.RemoveSender(r, email)
			return nil
		})
		if err != nil {
			return deleted, fmt.Errorf("update cached analysis: %w", err)
		}
	}
	report("Done", 100)
	return deleted, nil
}

// LatestBody returns the text of the sender's most recent listed message.
func (s *Syncer) LatestBody(ctx context.Context, rec model.SenderRecord) (string, error) {
	if len(rec.MessageIDs) == 0 {
		return "", fmt.Errorf("no messages for %s", rec.EmailAddress)
	}
	// listing order is newest first
	return s.API.MessageBody(ctx, rec.MessageIDs[0])
}

// Package analysis reduces fetched message summaries into per-sender records.
package analysis

import (
	"sort"
	"strings"

	"unclutter/internal/model"
	"unclutter/internal/util"
)

// LabelUnread is the system label Gmail puts on unread messages.
const LabelUnread = "UNREAD"

var bulkHeaders = []string{"List-Unsubscribe", "List-Id", "List-Post"}

// Aggregate groups summaries by sender email. Messages without a derivable
// sender are skipped. Senders are ordered by TotalCount descending; ties keep
// first-seen order. MessageIDs within a sender keep input order.
func Aggregate(summaries []model.MessageSummary) model.AnalysisResult {
	byEmail := make(map[string]*model.SenderRecord)
	var order []string

	for _, s := range summaries {
		email, name, ok := util.ParseSender(s.Header("From"))
		if !ok {
			continue
		}
		rec, seen := byEmail[email]
		if !seen {
			rec = &model.SenderRecord{EmailAddress: email}
			byEmail[email] = rec
			order = append(order, email)
		}
		if rec.DisplayName == "" {
			rec.DisplayName = name
		}
		rec.TotalCount++
		if s.HasLabel(LabelUnread) {
			rec.UnreadCount++
		}
		rec.MessageIDs = append(rec.MessageIDs, s.ID)
		if rec.UnsubscribeLink == "" {
			rec.UnsubscribeLink = util.UnsubscribeLink(s.Header("List-Unsubscribe"))
		}
		if !s.InternalDate.IsZero() && (rec.LastMessageTime == nil || s.InternalDate.After(*rec.LastMessageTime)) {
			ts := s.InternalDate
			rec.LastMessageTime = &ts
		}
		if !rec.IsBulkMail && IsBulk(s) {
			rec.IsBulkMail = true
		}
	}

	senders := make([]model.SenderRecord, 0, len(order))
	for _, email := range order {
		senders = append(senders, *byEmail[email])
	}
	sort.SliceStable(senders, func(i, j int) bool {
		return senders[i].TotalCount > senders[j].TotalCount
	})

	return model.AnalysisResult{
		Senders: senders,
		Stats:   ComputeStats(senders),
	}
}

// IsBulk reports whether a message carries a bulk-mail indicator header.
func IsBulk(s model.MessageSummary) bool {
	for _, h := range bulkHeaders {
		if strings.TrimSpace(s.Header(h)) != "" {
			return true
		}
	}
	return strings.EqualFold(strings.TrimSpace(s.Header("Precedence")), "bulk")
}

// ComputeStats sums the per-sender counters.
func ComputeStats(senders []model.SenderRecord) model.Stats {
	st := model.Stats{TotalSenders: len(senders)}
	for _, s := range senders {
		st.TotalMessages += s.TotalCount
		st.UnreadMessages += s.UnreadCount
		if s.IsBulkMail {
			st.BulkSenders++
		}
	}
	return st
}

// RemoveSender drops email from r in place and subtracts its counters from
// the stats. It reports whether a record was removed.
func RemoveSender(r *model.AnalysisResult, email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for i, s := range r.Senders {
		if s.EmailAddress != email {
			continue
		}
		r.Senders = append(r.Senders[:i], r.Senders[i+1:]...)
		r.Stats.TotalMessages = max(r.Stats.TotalMessages-s.TotalCount, 0)
		r.Stats.UnreadMessages = max(r.Stats.UnreadMessages-s.UnreadCount, 0)
		r.Stats.TotalSenders = max(r.Stats.TotalSenders-1, 0)
		if s.IsBulkMail {
			r.Stats.BulkSenders = max(r.Stats.BulkSenders-1, 0)
		}
		return true
	}
	return false
}

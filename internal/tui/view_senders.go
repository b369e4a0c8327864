package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"unclutter/internal/model"
)

// senderItem wraps SenderRecord to customize list display.
type senderItem struct {
	model.SenderRecord
	whitelisted bool
}

func (s senderItem) FilterValue() string { return s.DisplayName + " " + s.EmailAddress }
func (s senderItem) Title() string {
	indicator := "  "
	if s.UnsubscribeLink != "" {
		indicator = "@ "
	}
	title := fmt.Sprintf("%s%s (%d)", indicator, s.displayName(), s.TotalCount)
	if s.whitelisted {
		title += " " + safeStyle.Render("[whitelisted]")
	}
	return title
}
func (s senderItem) displayName() string {
	if s.DisplayName == "" || s.DisplayName == s.EmailAddress {
		return s.EmailAddress
	}
	return fmt.Sprintf("%s <%s>", s.DisplayName, s.EmailAddress)
}

func (s senderItem) Description() string {
	parts := []string{fmt.Sprintf("%d unread", s.UnreadCount)}
	if s.LastMessageTime != nil {
		parts = append(parts, "last "+humanize.Time(*s.LastMessageTime))
	}
	if s.IsBulkMail {
		parts = append(parts, "bulk")
	}
	return strings.Join(parts, " · ")
}

var (
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingTop(1)
	safeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

func sendersFooter() string {
	return footerStyle.Render("enter: preview  d: delete all  w: whitelist  u: unsubscribe  s: sync  q: quit  @=unsubscribe available")
}

func sendersTitle(r model.AnalysisResult) string {
	s := r.Stats
	return fmt.Sprintf("Senders (%d) · %s messages · %s unread · %d bulk",
		s.TotalSenders, humanize.Comma(int64(s.TotalMessages)), humanize.Comma(int64(s.UnreadMessages)), s.BulkSenders)
}

func sendersToItems(senders []model.SenderRecord, whitelist map[string]bool) []list.Item {
	items := make([]list.Item, len(senders))
	for i, s := range senders {
		items[i] = senderItem{SenderRecord: s, whitelisted: whitelist[s.EmailAddress]}
	}
	return items
}

func confirmPrompt(rec model.SenderRecord) string {
	return warnStyle.Render(fmt.Sprintf("Permanently delete ALL messages from %s? This cannot be undone. (y/n)", rec.EmailAddress))
}

func loadingView(spin, status string, p model.Progress) string {
	line := spin + " " + status
	if p.Stage != "" {
		line += fmt.Sprintf("\n\n  %s %d%%", p.Stage, p.Percent)
	}
	return line + "\n"
}

package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"unclutter/internal/model"
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("39")).
	PaddingBottom(1)

func bodyHeader(rec model.SenderRecord) string {
	last := "unknown"
	if rec.LastMessageTime != nil {
		last = fmt.Sprintf("%s (%s)", rec.LastMessageTime.Local().Format("Jan 2, 2006 15:04"), humanize.Time(*rec.LastMessageTime))
	}
	return headerStyle.Render(fmt.Sprintf("From: %s\nMessages: %d (%d unread)\nLatest: %s",
		senderItem{SenderRecord: rec}.displayName(), rec.TotalCount, rec.UnreadCount, last))
}

func bodyFooter() string {
	return footerStyle.Render("u: unsubscribe  esc: back  q: quit")
}

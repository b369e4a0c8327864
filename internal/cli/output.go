package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"unclutter/internal/model"
)

var (
	okColor     = color.New(color.FgGreen)
	headerColor = color.New(color.Bold)
	bulkColor   = color.New(color.FgYellow)
	safeColor   = color.New(color.FgCyan)
	dimColor    = color.New(color.Faint)
)

func printSummary(w io.Writer, res model.AnalysisResult) {
	s := res.Stats
	fmt.Fprintf(w, "%s messages, %s unread, %s senders (%s bulk)",
		humanize.Comma(int64(s.TotalMessages)),
		humanize.Comma(int64(s.UnreadMessages)),
		humanize.Comma(int64(s.TotalSenders)),
		humanize.Comma(int64(s.BulkSenders)))
	if s.SkippedMessages > 0 {
		fmt.Fprintf(w, ", %d skipped", s.SkippedMessages)
	}
	if !res.GeneratedAt.IsZero() {
		fmt.Fprint(w, dimColor.Sprintf(" - scanned %s", humanize.Time(res.GeneratedAt)))
	}
	fmt.Fprintln(w)
}

// printSenders writes the top senders as a table. top <= 0 prints all.
func printSenders(w io.Writer, senders []model.SenderRecord, top int, whitelist []string) {
	if len(senders) == 0 {
		fmt.Fprintln(w, "No senders found.")
		return
	}
	if top > 0 && len(senders) > top {
		senders = senders[:top]
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, headerColor.Sprint("COUNT\tUNREAD\tLAST SEEN\tSENDER\tFLAGS"))
	for _, rec := range senders {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n",
			rec.TotalCount,
			rec.UnreadCount,
			lastSeen(rec.LastMessageTime),
			senderLabel(rec),
			flags(rec, slices.Contains(whitelist, rec.EmailAddress)))
	}
	tw.Flush()
}

func senderLabel(rec model.SenderRecord) string {
	if rec.DisplayName == "" || rec.DisplayName == rec.EmailAddress {
		return rec.EmailAddress
	}
	return fmt.Sprintf("%s <%s>", rec.DisplayName, rec.EmailAddress)
}

func lastSeen(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return humanize.Time(*t)
}

func flags(rec model.SenderRecord, whitelisted bool) string {
	var f []string
	if rec.IsBulkMail {
		f = append(f, bulkColor.Sprint("bulk"))
	}
	if rec.UnsubscribeLink != "" {
		f = append(f, "unsubscribe")
	}
	if whitelisted {
		f = append(f, safeColor.Sprint("whitelisted"))
	}
	return strings.Join(f, ",")
}

// progressPrinter rewrites a single status line on w.
type progressPrinter struct {
	w     io.Writer
	shown bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) report(pr model.Progress) {
	fmt.Fprintf(p.w, "\r\033[K%3d%% %s", pr.Percent, pr.Stage)
	p.shown = true
}

func (p *progressPrinter) done() {
	if p.shown {
		fmt.Fprintln(p.w)
	}
}

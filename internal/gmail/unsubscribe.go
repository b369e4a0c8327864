package gmail

import (
	"fmt"

	"unclutter/internal/model"
)

// OpenUnsubscribe hands the sender's unsubscribe link (http(s) or mailto) to
// open, typically browser.Open.
func OpenUnsubscribe(rec model.SenderRecord, open func(string) error) error {
	if rec.UnsubscribeLink == "" {
		return fmt.Errorf("no unsubscribe link for %s", rec.EmailAddress)
	}
	if open == nil {
		return fmt.Errorf("no opener configured")
	}
	if err := open(rec.UnsubscribeLink); err != nil {
		return fmt.Errorf("open unsubscribe link: %w", err)
	}
	return nil
}

package ingest

import (
	"strings"

	"github.com/vdavid/outreach/backend/internal/models"
)

// ClassifyLabel maps provider system labels to a folder. Inbox or important wins,
// then draft, then sent. Anything else lands in the inbox.
func ClassifyLabel(sysLabels []string) models.EmailLabel {
	has := func(want string) bool {
		for _, label := range sysLabels {
			if strings.EqualFold(label, want) {
				return true
			}
		}
		return false
	}

	switch {
	case has("inbox") || has("important"):
		return models.EmailLabelInbox
	case has("draft"):
		return models.EmailLabelDraft
	case has("sent"):
		return models.EmailLabelSent
	default:
		return models.EmailLabelInbox
	}
}

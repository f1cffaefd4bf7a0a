package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/vdavid/outreach/backend/internal/db"
	"github.com/vdavid/outreach/backend/internal/models"
	"github.com/vdavid/outreach/backend/internal/provider"
)

// ErrSenderUnresolved means the from address could not be stored, so the message is skipped.
var ErrSenderUnresolved = errors.New("sender address could not be resolved")

// Upserter writes one provider message into the relational schema.
type Upserter struct {
	store db.IngestStore
}

func NewUpserter(store db.IngestStore) *Upserter {
	return &Upserter{store: store}
}

// UpsertMessage resolves the message's addresses, merges it into its thread,
// writes the email row and its relations, refreshes the thread rollup and
// stores the attachments. Every write is keyed by provider ids, so repeating
// the call with the same message changes nothing.
func (u *Upserter) UpsertMessage(ctx context.Context, accountID string, msg provider.Message) error {
	logger := log.WithFields(log.Fields{
		"account_id": accountID,
		"message_id": msg.ID,
		"thread_id":  msg.ThreadID,
	})

	resolved := u.resolveParticipants(ctx, logger, accountID, msg)

	fromID, ok := resolved[normalizeAddress(msg.From.Address)]
	if !ok {
		return fmt.Errorf("message %s: %w", msg.ID, ErrSenderUnresolved)
	}

	participantIDs := uniqueIDs(resolved, msg)

	sentAt := msg.SentAt
	thread := &models.Thread{
		ID:              msg.ThreadID,
		AccountID:       accountID,
		Subject:         msg.Subject,
		LastMessageDate: &sentAt,
		ParticipantIDs:  participantIDs,
	}
	if err := u.store.UpsertThread(ctx, thread); err != nil {
		return fmt.Errorf("message %s: %w", msg.ID, err)
	}

	email := buildEmail(msg, fromID, resolved)
	previousThreadID, err := u.store.UpsertEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("message %s: %w", msg.ID, err)
	}

	if err := u.store.RecomputeThreadStatus(ctx, msg.ThreadID); err != nil {
		return fmt.Errorf("message %s: %w", msg.ID, err)
	}

	// The message moved threads; the one it left needs its flags rebuilt too.
	if previousThreadID != "" {
		if err := u.store.RecomputeThreadStatus(ctx, previousThreadID); err != nil {
			logger.WithField("previous_thread_id", previousThreadID).WithError(err).Warn("Failed to recompute previous thread status")
		}
	}

	for _, att := range msg.Attachments {
		attachment := &models.EmailAttachment{
			ID:              att.ID,
			EmailID:         msg.ID,
			Name:            att.Name,
			MimeType:        att.MimeType,
			Size:            att.Size,
			Inline:          att.Inline,
			ContentID:       att.ContentID,
			ContentLocation: att.ContentLocation,
		}
		if err := u.store.UpsertAttachment(ctx, attachment); err != nil {
			logger.WithField("attachment_id", att.ID).WithError(err).Warn("Failed to upsert attachment")
		}
	}

	return nil
}

// resolveParticipants resolves every distinct address of the message, one at a time.
// Addresses that fail are logged and left out of the result.
func (u *Upserter) resolveParticipants(ctx context.Context, logger *log.Entry, accountID string, msg provider.Message) map[string]string {
	resolved := make(map[string]string)
	attempted := make(map[string]bool)

	for _, addr := range participants(msg) {
		key := normalizeAddress(addr.Address)
		if key == "" || attempted[key] {
			continue
		}
		attempted[key] = true

		id, err := u.store.ResolveAddress(ctx, accountID, models.EmailAddress{
			AccountID: accountID,
			Address:   key,
			Name:      addr.Name,
			Raw:       addr.Raw,
		})
		if err != nil {
			logger.WithField("address", key).WithError(err).Warn("Failed to resolve address")
			continue
		}
		resolved[key] = id
	}

	return resolved
}

func participants(msg provider.Message) []provider.Address {
	all := []provider.Address{msg.From}
	all = append(all, msg.To...)
	all = append(all, msg.CC...)
	all = append(all, msg.BCC...)
	all = append(all, msg.ReplyTo...)
	return all
}

func uniqueIDs(resolved map[string]string, msg provider.Message) []string {
	seen := make(map[string]bool, len(resolved))
	var ids []string
	for _, addr := range participants(msg) {
		id, ok := resolved[normalizeAddress(addr.Address)]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func relationIDs(resolved map[string]string, addrs []provider.Address) []string {
	var ids []string
	for _, addr := range addrs {
		if id, ok := resolved[normalizeAddress(addr.Address)]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func buildEmail(msg provider.Message, fromID string, resolved map[string]string) *models.Email {
	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = msg.SentAt
	}
	createdTime := msg.CreatedTime
	if createdTime.IsZero() {
		createdTime = receivedAt
	}
	sensitivity := msg.Sensitivity
	if sensitivity == "" {
		sensitivity = "normal"
	}

	headers := make([]models.Header, 0, len(msg.InternetHeaders))
	for _, h := range msg.InternetHeaders {
		headers = append(headers, models.Header{Name: h.Name, Value: h.Value})
	}

	return &models.Email{
		ID:                   msg.ID,
		ThreadID:             msg.ThreadID,
		EmailLabel:           ClassifyLabel(msg.SysLabels),
		Subject:              msg.Subject,
		SentAt:               msg.SentAt,
		ReceivedAt:           receivedAt,
		CreatedTime:          createdTime,
		LastModifiedTime:     msg.LastModifiedTime,
		InternetMessageID:    msg.InternetMessageID,
		InternetHeaders:      headers,
		Keywords:             msg.Keywords,
		SysLabels:            msg.SysLabels,
		SysClassifications:   msg.SysClassifications,
		Sensitivity:          sensitivity,
		MeetingMessageMethod: msg.MeetingMessageMethod,
		FromAddressID:        fromID,
		HasAttachments:       msg.HasAttachments,
		Body:                 msg.Body,
		BodySnippet:          msg.BodySnippet,
		InReplyTo:            msg.InReplyTo,
		References:           msg.References,
		ThreadIndex:          msg.ThreadIndex,
		NativeProperties:     msg.NativeProperties,
		FolderID:             msg.FolderID,
		Omitted:              msg.Omitted,
		ToAddressIDs:         relationIDs(resolved, msg.To),
		CCAddressIDs:         relationIDs(resolved, msg.CC),
		BCCAddressIDs:        relationIDs(resolved, msg.BCC),
		ReplyToAddressIDs:    relationIDs(resolved, msg.ReplyTo),
	}
}

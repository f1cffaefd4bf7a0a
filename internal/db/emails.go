package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/outreach/backend/internal/models"
)

// ErrEmailNotFound is returned when a requested email cannot be found.
var ErrEmailNotFound = errors.New("email not found")

const emailColumns = `e.id, e.thread_id, e.email_label, e.subject, e.sent_at, e.received_at,
	e.created_time, e.last_modified_time, e.internet_message_id, e.internet_headers,
	e.keywords, e.sys_labels, e.sys_classifications, e.sensitivity, e.meeting_message_method,
	e.from_address_id::text, e.has_attachments, e.body, e.body_snippet, e.in_reply_to,
	e.references_header, e.thread_index, e.native_properties, e.folder_id, e.omitted`

func scanEmail(row pgx.Row) (*models.Email, error) {
	var email models.Email
	err := row.Scan(
		&email.ID,
		&email.ThreadID,
		&email.EmailLabel,
		&email.Subject,
		&email.SentAt,
		&email.ReceivedAt,
		&email.CreatedTime,
		&email.LastModifiedTime,
		&email.InternetMessageID,
		&email.InternetHeaders,
		&email.Keywords,
		&email.SysLabels,
		&email.SysClassifications,
		&email.Sensitivity,
		&email.MeetingMessageMethod,
		&email.FromAddressID,
		&email.HasAttachments,
		&email.Body,
		&email.BodySnippet,
		&email.InReplyTo,
		&email.References,
		&email.ThreadIndex,
		&email.NativeProperties,
		&email.FolderID,
		&email.Omitted,
	)
	if err != nil {
		return nil, err
	}
	return &email, nil
}

// UpsertEmail writes the email row with full-replace semantics and replaces its
// to/cc/bcc/reply-to relations, all in one transaction. When the email already
// existed under a different thread, that thread's id is returned so its rollup
// can be refreshed; otherwise the returned id is empty.
func UpsertEmail(ctx context.Context, pool *pgxpool.Pool, email *models.Email) (string, error) {
	headers := email.InternetHeaders
	if headers == nil {
		headers = []models.Header{}
	}

	var previousThreadID string
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT thread_id FROM emails WHERE id = $1 FOR UPDATE`, email.ID).Scan(&previousThreadID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO emails (
				id, thread_id, email_label, subject, sent_at, received_at, created_time,
				last_modified_time, internet_message_id, internet_headers, keywords, sys_labels,
				sys_classifications, sensitivity, meeting_message_method, from_address_id,
				has_attachments, body, body_snippet, in_reply_to, references_header,
				thread_index, native_properties, folder_id, omitted
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
				$16::text::uuid, $17, $18, $19, $20, $21, $22, $23, $24, $25
			)
			ON CONFLICT (id) DO UPDATE SET
				thread_id = EXCLUDED.thread_id,
				email_label = EXCLUDED.email_label,
				subject = EXCLUDED.subject,
				sent_at = EXCLUDED.sent_at,
				received_at = EXCLUDED.received_at,
				created_time = EXCLUDED.created_time,
				last_modified_time = EXCLUDED.last_modified_time,
				internet_message_id = EXCLUDED.internet_message_id,
				internet_headers = EXCLUDED.internet_headers,
				keywords = EXCLUDED.keywords,
				sys_labels = EXCLUDED.sys_labels,
				sys_classifications = EXCLUDED.sys_classifications,
				sensitivity = EXCLUDED.sensitivity,
				meeting_message_method = EXCLUDED.meeting_message_method,
				from_address_id = EXCLUDED.from_address_id,
				has_attachments = EXCLUDED.has_attachments,
				body = EXCLUDED.body,
				body_snippet = EXCLUDED.body_snippet,
				in_reply_to = EXCLUDED.in_reply_to,
				references_header = EXCLUDED.references_header,
				thread_index = EXCLUDED.thread_index,
				native_properties = EXCLUDED.native_properties,
				folder_id = EXCLUDED.folder_id,
				omitted = EXCLUDED.omitted
		`,
			email.ID,
			email.ThreadID,
			string(email.EmailLabel),
			email.Subject,
			email.SentAt,
			email.ReceivedAt,
			email.CreatedTime,
			email.LastModifiedTime,
			email.InternetMessageID,
			headers,
			nonNilStrings(email.Keywords),
			nonNilStrings(email.SysLabels),
			nonNilStrings(email.SysClassifications),
			email.Sensitivity,
			email.MeetingMessageMethod,
			email.FromAddressID,
			email.HasAttachments,
			email.Body,
			email.BodySnippet,
			email.InReplyTo,
			email.References,
			email.ThreadIndex,
			email.NativeProperties,
			email.FolderID,
			nonNilStrings(email.Omitted),
		)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM email_recipients WHERE email_id = $1`, email.ID); err != nil {
			return err
		}

		relations := []struct {
			kind models.RecipientKind
			ids  []string
		}{
			{models.RecipientTo, email.ToAddressIDs},
			{models.RecipientCC, email.CCAddressIDs},
			{models.RecipientBCC, email.BCCAddressIDs},
			{models.RecipientReplyTo, email.ReplyToAddressIDs},
		}

		batch := &pgx.Batch{}
		for _, relation := range relations {
			for _, addressID := range relation.ids {
				batch.Queue(`
					INSERT INTO email_recipients (email_id, address_id, kind)
					VALUES ($1, $2::text::uuid, $3)
					ON CONFLICT DO NOTHING
				`, email.ID, addressID, string(relation.kind))
			}
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})

	if err != nil {
		return "", fmt.Errorf("failed to upsert email %s: %w", email.ID, err)
	}

	if previousThreadID == email.ThreadID {
		return "", nil
	}
	return previousThreadID, nil
}

// GetEmailByID returns one email with its recipient ids.
func GetEmailByID(ctx context.Context, q Querier, emailID string) (*models.Email, error) {
	email, err := scanEmail(q.QueryRow(ctx, `
		SELECT `+emailColumns+`
		FROM emails e
		WHERE e.id = $1
	`, emailID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEmailNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}

	emails := []*models.Email{email}
	if err := loadRecipientIDs(ctx, q, emails); err != nil {
		return nil, err
	}

	return email, nil
}

// GetEmailsForThread returns the thread's emails in receipt order with their recipient ids.
func GetEmailsForThread(ctx context.Context, q Querier, threadID string) ([]*models.Email, error) {
	rows, err := q.Query(ctx, `
		SELECT `+emailColumns+`
		FROM emails e
		WHERE e.thread_id = $1
		ORDER BY e.received_at ASC, e.id ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to get emails: %w", err)
	}
	defer rows.Close()

	var emails []*models.Email
	for rows.Next() {
		email, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, email)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emails: %w", err)
	}

	if err := loadRecipientIDs(ctx, q, emails); err != nil {
		return nil, err
	}

	return emails, nil
}

func loadRecipientIDs(ctx context.Context, q Querier, emails []*models.Email) error {
	if len(emails) == 0 {
		return nil
	}

	byID := make(map[string]*models.Email, len(emails))
	ids := make([]string, 0, len(emails))
	for _, email := range emails {
		byID[email.ID] = email
		ids = append(ids, email.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT email_id, address_id::text, kind
		FROM email_recipients
		WHERE email_id = ANY($1)
		ORDER BY email_id, kind, address_id
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to get recipients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var emailID, addressID string
		var kind models.RecipientKind
		if err := rows.Scan(&emailID, &addressID, &kind); err != nil {
			return fmt.Errorf("failed to scan recipient: %w", err)
		}
		email, ok := byID[emailID]
		if !ok {
			continue
		}
		switch kind {
		case models.RecipientTo:
			email.ToAddressIDs = append(email.ToAddressIDs, addressID)
		case models.RecipientCC:
			email.CCAddressIDs = append(email.CCAddressIDs, addressID)
		case models.RecipientBCC:
			email.BCCAddressIDs = append(email.BCCAddressIDs, addressID)
		case models.RecipientReplyTo:
			email.ReplyToAddressIDs = append(email.ReplyToAddressIDs, addressID)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating recipients: %w", err)
	}

	return nil
}

// EnrichEmails fills in the address and attachment views of the emails for API responses.
func EnrichEmails(ctx context.Context, q Querier, emails []*models.Email) error {
	if len(emails) == 0 {
		return nil
	}

	var addressIDs []string
	emailIDs := make([]string, 0, len(emails))
	for _, email := range emails {
		emailIDs = append(emailIDs, email.ID)
		addressIDs = append(addressIDs, email.FromAddressID)
		addressIDs = append(addressIDs, email.ToAddressIDs...)
		addressIDs = append(addressIDs, email.CCAddressIDs...)
		addressIDs = append(addressIDs, email.BCCAddressIDs...)
		addressIDs = append(addressIDs, email.ReplyToAddressIDs...)
	}

	addresses, err := GetAddressesByIDs(ctx, q, addressIDs)
	if err != nil {
		return err
	}

	attachments, err := GetAttachmentsForEmails(ctx, q, emailIDs)
	if err != nil {
		return err
	}

	lookup := func(ids []string) []models.EmailAddress {
		var out []models.EmailAddress
		for _, id := range ids {
			if addr, ok := addresses[id]; ok {
				out = append(out, addr)
			}
		}
		return out
	}

	for _, email := range emails {
		if from, ok := addresses[email.FromAddressID]; ok {
			email.From = &from
		}
		email.To = lookup(email.ToAddressIDs)
		email.CC = lookup(email.CCAddressIDs)
		email.BCC = lookup(email.BCCAddressIDs)
		email.ReplyTo = lookup(email.ReplyToAddressIDs)
		email.Attachments = attachments[email.ID]
	}

	return nil
}

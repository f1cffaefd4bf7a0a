package db

import (
	"context"
	"fmt"

	"github.com/vdavid/outreach/backend/internal/models"
)

// UpsertAttachment writes an attachment keyed by its provider id. The parent email must exist.
func UpsertAttachment(ctx context.Context, q Querier, attachment *models.EmailAttachment) error {
	_, err := q.Exec(ctx, `
		INSERT INTO email_attachments (id, email_id, name, mime_type, size, inline, content_id, content_location)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			email_id = EXCLUDED.email_id,
			name = EXCLUDED.name,
			mime_type = EXCLUDED.mime_type,
			size = EXCLUDED.size,
			inline = EXCLUDED.inline,
			content_id = EXCLUDED.content_id,
			content_location = EXCLUDED.content_location
	`,
		attachment.ID,
		attachment.EmailID,
		attachment.Name,
		attachment.MimeType,
		attachment.Size,
		attachment.Inline,
		attachment.ContentID,
		attachment.ContentLocation,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert attachment %s: %w", attachment.ID, err)
	}

	return nil
}

// GetAttachmentsForEmails returns attachments grouped by email id.
func GetAttachmentsForEmails(ctx context.Context, q Querier, emailIDs []string) (map[string][]models.EmailAttachment, error) {
	result := make(map[string][]models.EmailAttachment)
	if len(emailIDs) == 0 {
		return result, nil
	}

	rows, err := q.Query(ctx, `
		SELECT id, email_id, name, mime_type, size, inline, content_id, content_location
		FROM email_attachments
		WHERE email_id = ANY($1)
		ORDER BY email_id, id
	`, emailIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var attachment models.EmailAttachment
		if err := rows.Scan(
			&attachment.ID,
			&attachment.EmailID,
			&attachment.Name,
			&attachment.MimeType,
			&attachment.Size,
			&attachment.Inline,
			&attachment.ContentID,
			&attachment.ContentLocation,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		result[attachment.EmailID] = append(result[attachment.EmailID], attachment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}

	return result, nil
}

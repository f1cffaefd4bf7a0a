package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/outreach/backend/internal/models"
)

// ErrThreadNotFound is returned when a requested thread cannot be found.
var ErrThreadNotFound = errors.New("thread not found")

// ErrThreadAccountMismatch is returned when a thread id is already stored under another account.
var ErrThreadAccountMismatch = errors.New("thread belongs to another account")

const threadColumns = `t.id, t.account_id, t.subject, t.last_message_date, t.done,
	t.inbox_status, t.draft_status, t.sent_status, t.participant_ids::text[]`

func scanThread(row pgx.Row) (*models.Thread, error) {
	var thread models.Thread
	err := row.Scan(
		&thread.ID,
		&thread.AccountID,
		&thread.Subject,
		&thread.LastMessageDate,
		&thread.Done,
		&thread.InboxStatus,
		&thread.DraftStatus,
		&thread.SentStatus,
		&thread.ParticipantIDs,
	)
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

// UpsertThread creates the thread or merges a new message into it.
// Participants become the union of old and new, the last message date only
// moves forward, and any touch reopens the thread. A thread id stored under
// another account is left alone and reported as ErrThreadAccountMismatch.
func UpsertThread(ctx context.Context, q Querier, thread *models.Thread) error {
	tag, err := q.Exec(ctx, `
		INSERT INTO threads (id, account_id, subject, last_message_date, done, participant_ids)
		VALUES ($1, $2, $3, $4, false, $5::text[]::uuid[])
		ON CONFLICT (id) DO UPDATE SET
			subject = EXCLUDED.subject,
			last_message_date = GREATEST(threads.last_message_date, EXCLUDED.last_message_date),
			done = false,
			participant_ids = ARRAY(
				SELECT DISTINCT p FROM unnest(threads.participant_ids || EXCLUDED.participant_ids) AS p
			)
		WHERE threads.account_id = EXCLUDED.account_id
	`, thread.ID, thread.AccountID, thread.Subject, thread.LastMessageDate, nonNilStrings(thread.ParticipantIDs))

	if err != nil {
		return fmt.Errorf("failed to upsert thread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to upsert thread %s: %w", thread.ID, ErrThreadAccountMismatch)
	}

	return nil
}

// RecomputeThreadStatus rescans the thread's emails in receipt order and rewrites
// its rollup flags. The thread row is locked first so concurrent recomputes of
// the same thread see each other's committed emails.
func RecomputeThreadStatus(ctx context.Context, pool *pgxpool.Pool, threadID string) error {
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `SELECT id FROM threads WHERE id = $1 FOR UPDATE`, threadID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrThreadNotFound
		}
		if err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `
			SELECT email_label
			FROM emails
			WHERE thread_id = $1
			ORDER BY received_at ASC, id ASC
		`, threadID)
		if err != nil {
			return err
		}
		labels, err := pgx.CollectRows(rows, pgx.RowTo[models.EmailLabel])
		if err != nil {
			return err
		}

		status := models.ThreadStatusFromLabels(labels)
		_, err = tx.Exec(ctx, `
			UPDATE threads
			SET inbox_status = $2, draft_status = $3, sent_status = $4
			WHERE id = $1
		`, threadID, status.Inbox, status.Draft, status.Sent)
		return err
	})

	if errors.Is(err, ErrThreadNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to recompute thread status: %w", err)
	}

	return nil
}

// GetThreadByID returns a thread by its provider id.
func GetThreadByID(ctx context.Context, q Querier, threadID string) (*models.Thread, error) {
	thread, err := scanThread(q.QueryRow(ctx, `
		SELECT `+threadColumns+`
		FROM threads t
		WHERE t.id = $1
	`, threadID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrThreadNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get thread by ID: %w", err)
	}

	return thread, nil
}

// GetThreadForUser returns a thread only if it belongs to one of the user's accounts.
func GetThreadForUser(ctx context.Context, q Querier, userID, threadID string) (*models.Thread, error) {
	thread, err := scanThread(q.QueryRow(ctx, `
		SELECT `+threadColumns+`
		FROM threads t
		INNER JOIN accounts a ON a.id = t.account_id
		WHERE t.id = $1 AND a.user_id = $2
	`, threadID, userID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrThreadNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	return thread, nil
}

// ThreadFilter narrows a thread listing. An empty Label matches every tab
// and a nil Done matches both open and done threads.
type ThreadFilter struct {
	Label models.EmailLabel
	Done  *bool
}

const threadFilterClause = `
	t.account_id = $1
	AND ($2::text = ''
		OR ($2 = 'inbox' AND t.inbox_status)
		OR ($2 = 'draft' AND t.draft_status)
		OR ($2 = 'sent' AND t.sent_status))
	AND ($3::boolean IS NULL OR t.done = $3)`

// GetThreadsForAccount returns one page of the account's threads, newest first.
func GetThreadsForAccount(ctx context.Context, q Querier, accountID string, filter ThreadFilter, limit, offset int) ([]*models.Thread, error) {
	rows, err := q.Query(ctx, `
		SELECT `+threadColumns+`
		FROM threads t
		WHERE `+threadFilterClause+`
		ORDER BY t.last_message_date DESC NULLS LAST, t.id
		LIMIT $4 OFFSET $5
	`, accountID, string(filter.Label), filter.Done, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get threads: %w", err)
	}
	defer rows.Close()

	threads := make([]*models.Thread, 0)
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, thread)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threads: %w", err)
	}

	return threads, nil
}

// CountThreadsForAccount counts the threads matching the filter.
func CountThreadsForAccount(ctx context.Context, q Querier, accountID string, filter ThreadFilter) (int, error) {
	var count int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM threads t
		WHERE `+threadFilterClause,
		accountID, string(filter.Label), filter.Done).Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("failed to count threads: %w", err)
	}

	return count, nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// ConversationRow is one assistant turn, kept for history replay after the
// in-memory cache expires and for later analysis.
type ConversationRow struct {
	TurnID    string    `bigquery:"turn_id"`    // REQUIRED
	UserID    string    `bigquery:"user_id"`    // REQUIRED
	Role      string    `bigquery:"role"`       // REQUIRED: user | model
	Text      string    `bigquery:"text"`       // REQUIRED
	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// InsertConversationTurns appends turns to the conversation log.
func (s *Store) InsertConversationTurns(ctx context.Context, userID string, turns []ConversationRow) error {
	if len(turns) == 0 {
		return nil
	}

	rows := make([]*ConversationRow, 0, len(turns))
	now := time.Now().UTC()
	for i := range turns {
		r := turns[i]
		if r.TurnID == "" {
			r.TurnID = uuid.NewString()
		}
		r.UserID = userID
		if r.CreatedTS.IsZero() {
			r.CreatedTS = now
		}
		rows = append(rows, &r)
	}

	inserter := s.table(conversationsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertConversationTurns: inserting rows: %w", err)
	}

	return nil
}

// RecentConversationTurns returns the user's last limit turns, oldest first.
func (s *Store) RecentConversationTurns(ctx context.Context, userID string, limit int) ([]ConversationRow, error) {
	q := s.client.Query(`
		SELECT turn_id, user_id, role, text, created_ts
		FROM ` + s.tableRef(conversationsTable) + `
		WHERE user_id = @user_id
		ORDER BY created_ts DESC
		LIMIT @limit
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "limit", Value: int64(limit)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("RecentConversationTurns: query read: %w", err)
	}

	var rows []ConversationRow
	for {
		var r ConversationRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("RecentConversationTurns: iter next: %w", err)
		}
		rows = append(rows, r)
	}

	// Reverse into chronological order for prompt replay.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	return rows, nil
}

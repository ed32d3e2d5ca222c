package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
)

// InsertTransactions inserts a batch of rows via the streaming inserter.
func (s *Store) InsertTransactions(ctx context.Context, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := s.table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}

	s.log.Info().Int("count", len(rows)).Msg("Transactions inserted")
	return nil
}

// ListUserTransactions returns one user's transactions in a date range,
// oldest first.
func (s *Store) ListUserTransactions(ctx context.Context, userID string, from, to civil.Date) ([]*TransactionRow, error) {
	q := s.client.Query(`
		SELECT
			transaction_id,
			user_id,
			type,
			amount,
			category_name,
			category_icon,
			description,
			transaction_date,
			source,
			receipt_uri,
			created_ts
		FROM ` + s.tableRef(transactionsTable) + `
		WHERE user_id = @user_id
		  AND transaction_date >= @from_date
		  AND transaction_date <= @to_date
		ORDER BY transaction_date, created_ts
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "from_date", Value: from.String()},
		{Name: "to_date", Value: to.String()},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListUserTransactions: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListUserTransactions: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

// UpdateTransactionCategory reassigns a transaction to another category.
func (s *Store) UpdateTransactionCategory(ctx context.Context, userID, transactionID, categoryName, categoryIcon string) error {
	q := s.client.Query(`
		UPDATE ` + s.tableRef(transactionsTable) + `
		SET category_name = @category_name,
		    category_icon = @category_icon
		WHERE transaction_id = @transaction_id
		  AND user_id = @user_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "category_name", Value: categoryName},
		{Name: "category_icon", Value: categoryIcon},
		{Name: "transaction_id", Value: transactionID},
		{Name: "user_id", Value: userID},
	}

	if err := s.runDML(ctx, q); err != nil {
		return fmt.Errorf("UpdateTransactionCategory: %w", err)
	}
	return nil
}

// DeleteTransaction removes one transaction. The user id guards against
// deleting someone else's record by a guessed id.
func (s *Store) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	q := s.client.Query(`
		DELETE FROM ` + s.tableRef(transactionsTable) + `
		WHERE transaction_id = @transaction_id
		  AND user_id = @user_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: transactionID},
		{Name: "user_id", Value: userID},
	}

	if err := s.runDML(ctx, q); err != nil {
		return fmt.Errorf("DeleteTransaction: %w", err)
	}
	return nil
}

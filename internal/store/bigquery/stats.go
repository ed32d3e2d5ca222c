package bigquery

import (
	"context"
	"fmt"
	"math/big"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
)

// MonthSummary holds income and expense totals for one calendar month.
type MonthSummary struct {
	Income  *big.Rat `bigquery:"income"`
	Expense *big.Rat `bigquery:"expense"`
	Count   int64    `bigquery:"count"`
}

// CategoryTotal aggregates one category's spend over a period.
type CategoryTotal struct {
	CategoryName string   `bigquery:"category_name"`
	CategoryIcon string   `bigquery:"category_icon"`
	Total        *big.Rat `bigquery:"total"`
	Count        int64    `bigquery:"count"`
}

// DailyTotal is one day's expense total, for spending charts.
type DailyTotal struct {
	Day   civil.Date `bigquery:"day"`
	Total *big.Rat   `bigquery:"total"`
}

// MonthSummary returns income/expense totals for the month containing day.
func (s *Store) MonthSummary(ctx context.Context, userID string, day civil.Date) (*MonthSummary, error) {
	q := s.client.Query(`
		SELECT
			COALESCE(SUM(IF(type = 'income', amount, NUMERIC '0')), NUMERIC '0') AS income,
			COALESCE(SUM(IF(type = 'expense', amount, NUMERIC '0')), NUMERIC '0') AS expense,
			COUNT(*) AS count
		FROM ` + s.tableRef(transactionsTable) + `
		WHERE user_id = @user_id
		  AND DATE_TRUNC(transaction_date, MONTH) = DATE_TRUNC(@day, MONTH)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "day", Value: day.String()},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("MonthSummary: query read: %w", err)
	}

	var row MonthSummary
	if err := it.Next(&row); err != nil {
		if err == iterator.Done {
			return &MonthSummary{Income: new(big.Rat), Expense: new(big.Rat)}, nil
		}
		return nil, fmt.Errorf("MonthSummary: iter next: %w", err)
	}

	return &row, nil
}

// CategoryTotals breaks a period's transactions of one kind down by category,
// biggest first.
func (s *Store) CategoryTotals(ctx context.Context, userID, kind string, from, to civil.Date) ([]*CategoryTotal, error) {
	q := s.client.Query(`
		SELECT
			category_name,
			category_icon,
			SUM(amount) AS total,
			COUNT(*) AS count
		FROM ` + s.tableRef(transactionsTable) + `
		WHERE user_id = @user_id
		  AND type = @type
		  AND transaction_date >= @from_date
		  AND transaction_date <= @to_date
		GROUP BY category_name, category_icon
		ORDER BY total DESC
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "type", Value: kind},
		{Name: "from_date", Value: from.String()},
		{Name: "to_date", Value: to.String()},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("CategoryTotals: query read: %w", err)
	}

	var rows []*CategoryTotal
	for {
		var r CategoryTotal
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("CategoryTotals: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

// DailyTotals returns per-day expense totals in a date range, oldest first.
// Days with no expenses are absent from the result.
func (s *Store) DailyTotals(ctx context.Context, userID string, from, to civil.Date) ([]*DailyTotal, error) {
	q := s.client.Query(`
		SELECT
			transaction_date AS day,
			SUM(amount) AS total
		FROM ` + s.tableRef(transactionsTable) + `
		WHERE user_id = @user_id
		  AND type = 'expense'
		  AND transaction_date >= @from_date
		  AND transaction_date <= @to_date
		GROUP BY day
		ORDER BY day
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "from_date", Value: from.String()},
		{Name: "to_date", Value: to.String()},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("DailyTotals: query read: %w", err)
	}

	var rows []*DailyTotal
	for {
		var r DailyTotal
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("DailyTotals: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

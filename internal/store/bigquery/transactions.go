package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nmorozov/kopilka/internal/category"
	"github.com/nmorozov/kopilka/internal/extract"
)

// Source records which input path produced a transaction.
const (
	SourceText    = "text"
	SourceVoice   = "voice"
	SourceReceipt = "receipt"
)

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	UserID string `bigquery:"user_id"` // REQUIRED

	Type   string   `bigquery:"type"`   // REQUIRED: income | expense
	Amount *big.Rat `bigquery:"amount"` // REQUIRED NUMERIC

	CategoryName string `bigquery:"category_name"` // REQUIRED
	CategoryIcon string `bigquery:"category_icon"` // REQUIRED

	Description     string     `bigquery:"description"`      // NULLABLE (empty string when absent)
	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED

	Source     string              `bigquery:"source"`      // REQUIRED: text | voice | receipt
	ReceiptURI bigquery.NullString `bigquery:"receipt_uri"` // NULLABLE gs:// link to archived file

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// NewTransactionRow converts a validated pipeline transaction into its
// storage row, assigning a fresh id.
func NewTransactionRow(userID string, tx *extract.Transaction, source, receiptURI string) *TransactionRow {
	row := &TransactionRow{
		TransactionID:   uuid.NewString(),
		UserID:          userID,
		Type:            string(tx.Type),
		Amount:          tx.Amount.Rat(),
		CategoryName:    tx.CategoryName,
		CategoryIcon:    tx.CategoryIcon,
		Description:     tx.Description,
		TransactionDate: tx.Date,
		Source:          source,
		CreatedTS:       time.Now().UTC(),
	}
	if receiptURI != "" {
		row.ReceiptURI = bigquery.NullString{StringVal: receiptURI, Valid: true}
	}
	return row
}

// Transaction converts a storage row back into the pipeline's canonical form.
func (r *TransactionRow) Transaction() *extract.Transaction {
	amount := decimal.Zero
	if r.Amount != nil {
		amount = decimal.NewFromBigRat(r.Amount, 2)
	}
	return &extract.Transaction{
		Type:         category.Kind(r.Type),
		Amount:       amount,
		CategoryName: r.CategoryName,
		CategoryIcon: r.CategoryIcon,
		Description:  r.Description,
		Date:         r.TransactionDate,
	}
}

package extract

import (
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/nmorozov/kopilka/internal/category"
)

func testValidator(t *testing.T) *Validator {
	t.Helper()
	dir, err := category.NewDirectory()
	if err != nil {
		t.Fatalf("NewDirectory failed: %v", err)
	}
	return NewValidator(dir, category.MatchByName, zerolog.Nop())
}

func TestMissingFields(t *testing.T) {
	tests := []struct {
		name      string
		candidate Candidate
		want      []string
	}{
		{
			name:      "all present",
			candidate: Candidate{"type": "expense", "amount": 100.0, "category_name": "Продукты"},
			want:      nil,
		},
		{
			name:      "amount missing",
			candidate: Candidate{"type": "expense", "category_name": "Продукты"},
			want:      []string{"amount"},
		},
		{
			name:      "everything missing",
			candidate: Candidate{"description": "кофе"},
			want:      []string{"type", "amount", "category_name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MissingFields(tt.candidate)
			if len(got) != len(tt.want) {
				t.Fatalf("MissingFields = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("MissingFields = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestValidate(t *testing.T) {
	v := testValidator(t)
	today := civil.Date{Year: 2026, Month: time.August, Day: 28}

	tests := []struct {
		name      string
		candidate Candidate
		wantErr   ValidationErrorKind
		check     func(t *testing.T, tx *Transaction)
	}{
		{
			name:      "missing fields rejected",
			candidate: Candidate{"type": "expense"},
			wantErr:   ValidationMissingFields,
		},
		{
			name:      "unknown type rejected",
			candidate: Candidate{"type": "transfer", "amount": 100.0, "category_name": "Продукты"},
			wantErr:   ValidationInvalidType,
		},
		{
			name:      "non-string type rejected",
			candidate: Candidate{"type": 1, "amount": 100.0, "category_name": "Продукты"},
			wantErr:   ValidationInvalidType,
		},
		{
			name:      "negative amount rejected",
			candidate: Candidate{"type": "expense", "amount": -100.0, "category_name": "Продукты"},
			wantErr:   ValidationInvalidAmount,
		},
		{
			name:      "valid expense passes",
			candidate: Candidate{"type": "expense", "amount": 350.0, "category_name": "Продукты", "description": "кофе"},
			check: func(t *testing.T, tx *Transaction) {
				if tx.Type != category.KindExpense {
					t.Errorf("Type = %s, want expense", tx.Type)
				}
				if tx.CategoryName != "Продукты" {
					t.Errorf("CategoryName = %s, want Продукты", tx.CategoryName)
				}
				if tx.CategoryIcon == "" {
					t.Error("CategoryIcon is empty, want icon from directory")
				}
				if tx.Description != "кофе" {
					t.Errorf("Description = %q, want кофе", tx.Description)
				}
			},
		},
		{
			name:      "unknown category falls back to default",
			candidate: Candidate{"type": "expense", "amount": 100.0, "category_name": "Coffee shops"},
			check: func(t *testing.T, tx *Transaction) {
				if tx.CategoryName != category.DefaultExpenseName {
					t.Errorf("CategoryName = %s, want %s", tx.CategoryName, category.DefaultExpenseName)
				}
			},
		},
		{
			name:      "income falls back to income default",
			candidate: Candidate{"type": "income", "amount": 50000.0, "category_name": "Lottery"},
			check: func(t *testing.T, tx *Transaction) {
				if tx.CategoryName != category.DefaultIncomeName {
					t.Errorf("CategoryName = %s, want %s", tx.CategoryName, category.DefaultIncomeName)
				}
			},
		},
		{
			name:      "missing date defaults to today",
			candidate: Candidate{"type": "expense", "amount": 100.0, "category_name": "Продукты"},
			check: func(t *testing.T, tx *Transaction) {
				if tx.Date != today {
					t.Errorf("Date = %v, want %v", tx.Date, today)
				}
			},
		},
		{
			name: "long description is hard-cut",
			candidate: Candidate{
				"type": "expense", "amount": 100.0, "category_name": "Продукты",
				"description": strings.Repeat("ъ", 250),
			},
			check: func(t *testing.T, tx *Transaction) {
				if got := len([]rune(tx.Description)); got != maxDescriptionLen {
					t.Errorf("Description length = %d runes, want %d", got, maxDescriptionLen)
				}
				if strings.HasSuffix(tx.Description, "...") {
					t.Error("Description has ellipsis, want hard cut")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := v.Validate(tt.candidate, today, 365)
			if tt.wantErr != "" {
				var valErr *ValidationError
				if !errors.As(err, &valErr) {
					t.Fatalf("Validate error = %v, want *ValidationError", err)
				}
				if valErr.Kind != tt.wantErr {
					t.Errorf("error kind = %s, want %s", valErr.Kind, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate unexpected error: %v", err)
			}
			tt.check(t, tx)
		})
	}
}

func TestValidate_Idempotent(t *testing.T) {
	// Re-validating a validated transaction's own field values must yield an
	// identical record: normalization is a fixed point.
	v := testValidator(t)
	today := civil.Date{Year: 2026, Month: time.August, Day: 28}

	first, err := v.Validate(Candidate{
		"type":          "expense",
		"amount":        1250.50,
		"category_name": "кафе и рестораны",
		"description":   "обед с коллегами",
		"date":          "2026-08-20",
	}, today, 365)
	if err != nil {
		t.Fatalf("first Validate failed: %v", err)
	}

	second, err := v.Validate(Candidate{
		"type":          string(first.Type),
		"amount":        first.Amount.String(),
		"category_name": first.CategoryName,
		"description":   first.Description,
		"date":          first.Date.String(),
	}, today, 365)
	if err != nil {
		t.Fatalf("second Validate failed: %v", err)
	}

	if second.Type != first.Type ||
		!second.Amount.Equal(first.Amount) ||
		second.CategoryName != first.CategoryName ||
		second.CategoryIcon != first.CategoryIcon ||
		second.Description != first.Description ||
		second.Date != first.Date {
		t.Errorf("second pass changed the record:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

package extract

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nmorozov/kopilka/internal/category"
)

// Candidate is a decoded but not-yet-validated transaction-shaped payload,
// exactly as it came out of the model's JSON.
type Candidate map[string]any

// Transaction is the canonical, fully normalized record safe to persist.
// Constructed once by Validate and immutable afterwards; ownership passes to
// the caller, which handles persistence.
type Transaction struct {
	Type         category.Kind
	Amount       decimal.Decimal
	CategoryName string
	CategoryIcon string
	Description  string
	Date         civil.Date
}

// requiredFields must all be present before a candidate is worth validating.
var requiredFields = []string{"type", "amount", "category_name"}

// maxDescriptionLen is a hard cut in runes, no ellipsis. Receipt and voice
// descriptions are meant to be exact excerpts.
const maxDescriptionLen = 200

// MissingFields returns the names of required fields absent from c, in the
// canonical order. Used both by Validate and as the orchestrator's eager
// pre-filter so one malformed batch item doesn't abort the rest.
func MissingFields(c Candidate) []string {
	var missing []string
	for _, field := range requiredFields {
		if _, ok := c[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}

// Validator turns candidates into canonical transactions against a fixed
// category directory. It holds no mutable state and is safe for concurrent
// use.
type Validator struct {
	dir  *category.Directory
	mode category.MatchMode
	log  zerolog.Logger
}

// NewValidator creates a validator resolving categories in the given mode.
func NewValidator(dir *category.Directory, mode category.MatchMode, log zerolog.Logger) *Validator {
	return &Validator{dir: dir, mode: mode, log: log}
}

// Validate checks and normalizes one candidate. Steps run in order and
// short-circuit on the first failure: required fields, type, amount, category
// (never fails, falls back to the kind default), date, description. The
// returned transaction always references a real category definition and never
// carries a zero date.
func (v *Validator) Validate(c Candidate, today civil.Date, maxAgeDays int) (*Transaction, error) {
	if missing := MissingFields(c); len(missing) > 0 {
		return nil, &ValidationError{Kind: ValidationMissingFields, Fields: missing}
	}

	kindStr, _ := c["type"].(string)
	kind := category.Kind(kindStr)
	if !kind.Valid() {
		return nil, &ValidationError{
			Kind: ValidationInvalidType,
			Err:  fmt.Errorf("type %q is not income or expense", kindStr),
		}
	}

	amount, err := NormalizeAmount(c["amount"])
	if err != nil {
		return nil, &ValidationError{Kind: ValidationInvalidAmount, Err: err}
	}

	// Best-effort categorization beats rejecting an otherwise valid
	// transaction, so resolution falls back instead of failing.
	name := stringField(c, "category_name")
	def, matched := v.dir.Lookup(name, kind, v.mode)
	if !matched {
		def = v.dir.Default(kind)
		v.log.Warn().
			Str("category_name", name).
			Str("kind", string(kind)).
			Str("fallback", def.Name).
			Msg("Category not found, using default")
	}

	date := NormalizeDate(stringField(c, "date"), today, maxAgeDays)

	return &Transaction{
		Type:         kind,
		Amount:       amount,
		CategoryName: def.Name,
		CategoryIcon: def.Icon,
		Description:  truncateHard(stringField(c, "description"), maxDescriptionLen),
		Date:         date,
	}, nil
}

// stringField returns the field as a string, or "" if absent or non-string.
func stringField(c Candidate, key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// truncateHard cuts s to max runes with no ellipsis.
func truncateHard(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

package extract

import (
	"context"
	"strings"
	"time"
	"unicode"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/nmorozov/kopilka/internal/category"
)

// LLM provides access to the upstream extraction service. The concrete
// implementation lives in internal/llm; this interface exists so the
// orchestrator can be tested with mocks.
type LLM interface {
	// Complete sends a text prompt and returns the raw model text.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithFile sends a prompt plus an attached file (image or PDF).
	CompleteWithFile(ctx context.Context, prompt, mimeType string, data []byte) (string, error)

	// Transcribe turns an audio recording into plain text.
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Options tune the orchestrator's guard rails.
type Options struct {
	// TextMaxAgeDays bounds dates in free-text and voice entries.
	TextMaxAgeDays int
	// ReceiptMaxAgeDays bounds receipt dates; receipts are rarely carried
	// around for long, so this window is much tighter.
	ReceiptMaxAgeDays int
	// MaxFileBytes rejects oversized receipt files before any upstream call.
	MaxFileBytes int64
}

// DefaultOptions mirrors the production configuration defaults.
func DefaultOptions() Options {
	return Options{
		TextMaxAgeDays:    365,
		ReceiptMaxAgeDays: 30,
		MaxFileBytes:      20 << 20,
	}
}

// receiptFallbackDescription is used when a receipt carries no usable
// merchant or item names.
const receiptFallbackDescription = "Покупка по чеку"

// minTextLen is the minimum number of non-whitespace characters worth sending
// upstream.
const minTextLen = 3

// Extractor sequences upstream call, decode and validation for one user
// input. It holds no per-request state; one instance serves all users.
type Extractor struct {
	llm       LLM
	validator *Validator
	dir       *category.Directory
	opts      Options
	log       zerolog.Logger

	// today is overridable in tests; defaults to the wall clock.
	today func() civil.Date
}

// New creates an extraction orchestrator.
func New(llm LLM, dir *category.Directory, opts Options, log zerolog.Logger) *Extractor {
	return &Extractor{
		llm:       llm,
		validator: NewValidator(dir, category.MatchByName, log),
		dir:       dir,
		opts:      opts,
		log:       log,
		today:     func() civil.Date { return civil.DateOf(time.Now()) },
	}
}

// FromText extracts zero or more transactions from a free-text message.
// Malformed model output degrades to an empty slice; only upstream failures
// are returned as errors (as *UpstreamError), so callers can tell "nothing
// recognized" from "service down".
func (e *Extractor) FromText(ctx context.Context, text string) ([]*Transaction, error) {
	return e.fromFreeText(ctx, text)
}

// FromTranscript extracts transactions from a speech-to-text transcript. The
// transcript comes from an external collaborator; the pipeline treats it the
// same as typed text.
func (e *Extractor) FromTranscript(ctx context.Context, transcript string) ([]*Transaction, error) {
	return e.fromFreeText(ctx, transcript)
}

// FromVoice transcribes a voice recording and extracts transactions from the
// transcript.
func (e *Extractor) FromVoice(ctx context.Context, audio []byte, mimeType string) ([]*Transaction, error) {
	if len(audio) == 0 {
		return nil, nil
	}
	if e.opts.MaxFileBytes > 0 && int64(len(audio)) > e.opts.MaxFileBytes {
		e.log.Warn().Int("size", len(audio)).Msg("Voice file too large, skipping")
		return nil, nil
	}

	transcript, err := e.llm.Transcribe(ctx, audio, mimeType)
	if err != nil {
		return nil, &UpstreamError{Op: "transcribe", Err: err}
	}
	e.log.Info().Int("transcript_len", len(transcript)).Msg("Voice transcribed")

	return e.fromFreeText(ctx, transcript)
}

func (e *Extractor) fromFreeText(ctx context.Context, text string) ([]*Transaction, error) {
	if countNonSpace(text) < minTextLen {
		e.log.Debug().Msg("Text too short for parsing, skipping upstream call")
		return nil, nil
	}

	today := e.today()
	raw, err := e.llm.Complete(ctx, multiTransactionPrompt(e.dir, text, today))
	if err != nil {
		return nil, &UpstreamError{Op: "complete", Err: err}
	}
	if strings.TrimSpace(raw) == "" {
		e.log.Warn().Msg("Empty response from model")
		return nil, nil
	}

	items, err := DecodeArray(raw)
	if err != nil {
		e.log.Warn().Err(err).Msg("Failed to decode model response")
		return nil, nil
	}

	// Pre-filter: drop malformed items eagerly so one bad candidate cannot
	// abort the whole batch.
	candidates := make([]Candidate, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			e.log.Warn().Int("index", i).Msgf("Candidate is %T, not an object", item)
			continue
		}
		if missing := MissingFields(obj); len(missing) > 0 {
			e.log.Warn().Int("index", i).Strs("missing", missing).Msg("Candidate missing required fields")
			continue
		}
		candidates = append(candidates, obj)
	}

	transactions := make([]*Transaction, 0, len(candidates))
	for i, c := range candidates {
		tx, err := e.validator.Validate(c, today, e.opts.TextMaxAgeDays)
		if err != nil {
			e.log.Warn().Err(err).Int("index", i).Msg("Candidate failed validation")
			continue
		}
		transactions = append(transactions, tx)
	}

	e.log.Info().
		Int("decoded", len(items)).
		Int("validated", len(transactions)).
		Msg("Text extraction finished")

	return transactions, nil
}

// FromReceiptImage extracts at most one expense transaction from a
// photographed receipt. A nil, nil return means "nothing recognizable".
func (e *Extractor) FromReceiptImage(ctx context.Context, data []byte, mimeType string) (*Transaction, error) {
	return e.fromReceiptFile(ctx, data, mimeType)
}

// FromReceiptPDF extracts at most one expense transaction from a PDF receipt.
func (e *Extractor) FromReceiptPDF(ctx context.Context, data []byte) (*Transaction, error) {
	return e.fromReceiptFile(ctx, data, "application/pdf")
}

func (e *Extractor) fromReceiptFile(ctx context.Context, data []byte, mimeType string) (*Transaction, error) {
	if len(data) == 0 {
		e.log.Warn().Msg("Empty receipt file, skipping")
		return nil, nil
	}
	if e.opts.MaxFileBytes > 0 && int64(len(data)) > e.opts.MaxFileBytes {
		e.log.Warn().Int("size", len(data)).Msg("Receipt file too large, skipping")
		return nil, nil
	}

	today := e.today()
	raw, err := e.llm.CompleteWithFile(ctx, receiptPrompt(e.dir, today), mimeType, data)
	if err != nil {
		return nil, &UpstreamError{Op: "complete_with_file", Err: err}
	}

	return e.receiptFromRaw(raw, today), nil
}

// FromReceiptJSON converts pre-extracted OCR JSON (from an external vision
// collaborator) into a transaction without making any upstream call.
func (e *Extractor) FromReceiptJSON(ocrPayload string) *Transaction {
	return e.receiptFromRaw(ocrPayload, e.today())
}

func (e *Extractor) receiptFromRaw(raw string, today civil.Date) *Transaction {
	if strings.TrimSpace(raw) == "" {
		e.log.Warn().Msg("Empty receipt response from model")
		return nil
	}

	obj, err := DecodeObject(raw)
	if err != nil {
		e.log.Warn().Err(err).Msg("Failed to decode receipt response")
		return nil
	}

	if v, ok := obj["amount"]; !ok || v == nil {
		e.log.Warn().Msg("Receipt response has no amount")
		return nil
	}

	amount, err := NormalizeAmount(obj["amount"])
	if err != nil {
		e.log.Warn().Err(err).Msg("Receipt amount invalid")
		return nil
	}

	// Receipts are always expenses in this domain.
	def, matched := e.dir.Lookup(stringField(obj, "category_name"), category.KindExpense, category.MatchByName)
	if !matched {
		def = e.dir.Default(category.KindExpense)
	}

	tx := &Transaction{
		Type:         category.KindExpense,
		Amount:       amount,
		CategoryName: def.Name,
		CategoryIcon: def.Icon,
		Description:  truncateHard(receiptDescription(obj), maxDescriptionLen),
		Date:         NormalizeDate(stringField(obj, "date"), today, e.opts.ReceiptMaxAgeDays),
	}

	e.log.Info().
		Str("amount", tx.Amount.String()).
		Str("category", tx.CategoryName).
		Msg("Receipt converted to transaction")

	return tx
}

// receiptDescription joins whatever merchant/item/description sub-fields the
// OCR offered: merchant plus the first three item names when both are
// present, otherwise the available subset, otherwise a fixed phrase.
func receiptDescription(obj map[string]any) string {
	var parts []string

	if merchant := stringField(obj, "merchant"); merchant != "" {
		parts = append(parts, merchant)
	}

	if items, ok := obj["items"].([]any); ok {
		var names []string
		for _, item := range items {
			if name, ok := item.(string); ok && strings.TrimSpace(name) != "" {
				names = append(names, strings.TrimSpace(name))
			}
			if len(names) == 3 {
				break
			}
		}
		if len(names) > 0 {
			parts = append(parts, strings.Join(names, ", "))
		}
	}

	if desc := stringField(obj, "description"); desc != "" && len(parts) == 0 {
		parts = append(parts, desc)
	}

	if len(parts) == 0 {
		return receiptFallbackDescription
	}
	return strings.Join(parts, " - ")
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

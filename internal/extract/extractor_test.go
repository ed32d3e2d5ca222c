package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nmorozov/kopilka/internal/category"
)

type mockLLM struct {
	completeFunc         func(ctx context.Context, prompt string) (string, error)
	completeWithFileFunc func(ctx context.Context, prompt, mimeType string, data []byte) (string, error)
	transcribeFunc       func(ctx context.Context, audio []byte, mimeType string) (string, error)

	completeCalls         int
	completeWithFileCalls int
	transcribeCalls       int
}

func (m *mockLLM) Complete(ctx context.Context, prompt string) (string, error) {
	m.completeCalls++
	if m.completeFunc != nil {
		return m.completeFunc(ctx, prompt)
	}
	return "[]", nil
}

func (m *mockLLM) CompleteWithFile(ctx context.Context, prompt, mimeType string, data []byte) (string, error) {
	m.completeWithFileCalls++
	if m.completeWithFileFunc != nil {
		return m.completeWithFileFunc(ctx, prompt, mimeType, data)
	}
	return "{}", nil
}

func (m *mockLLM) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	m.transcribeCalls++
	if m.transcribeFunc != nil {
		return m.transcribeFunc(ctx, audio, mimeType)
	}
	return "", nil
}

func testExtractor(t *testing.T, llm *mockLLM) *Extractor {
	t.Helper()
	dir, err := category.NewDirectory()
	if err != nil {
		t.Fatalf("NewDirectory failed: %v", err)
	}
	e := New(llm, dir, DefaultOptions(), zerolog.Nop())
	e.today = func() civil.Date {
		return civil.Date{Year: 2026, Month: time.August, Day: 28}
	}
	return e
}

func TestFromText_SingleTransaction(t *testing.T) {
	llm := &mockLLM{
		completeFunc: func(ctx context.Context, prompt string) (string, error) {
			return `[{"type": "expense", "amount": 350, "category_name": "Coffee shops", "description": "Coffee"}]`, nil
		},
	}
	e := testExtractor(t, llm)

	txs, err := e.FromText(context.Background(), "Coffee 350")
	if err != nil {
		t.Fatalf("FromText failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}

	tx := txs[0]
	if tx.Type != category.KindExpense {
		t.Errorf("Type = %s, want expense", tx.Type)
	}
	if !tx.Amount.Equal(decimal.NewFromInt(350)) {
		t.Errorf("Amount = %s, want 350", tx.Amount)
	}
	// "Coffee shops" is not in the directory, so the default expense
	// category must be substituted rather than the item dropped.
	if tx.CategoryName != category.DefaultExpenseName {
		t.Errorf("CategoryName = %s, want %s", tx.CategoryName, category.DefaultExpenseName)
	}
	if tx.Date != e.today() {
		t.Errorf("Date = %v, want today", tx.Date)
	}
}

func TestFromText_ShortInputSkipsUpstream(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "whitespace only", text: "   \n\t  "},
		{name: "two characters", text: "ok"},
		{name: "two characters padded", text: "  a b  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &mockLLM{}
			e := testExtractor(t, llm)

			txs, err := e.FromText(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("FromText failed: %v", err)
			}
			if len(txs) != 0 {
				t.Errorf("got %d transactions, want 0", len(txs))
			}
			if llm.completeCalls != 0 {
				t.Errorf("upstream called %d times, want 0", llm.completeCalls)
			}
		})
	}
}

func TestFromText_DegradedResponses(t *testing.T) {
	// Decode and validation failures are not errors for the caller; they
	// degrade to an empty result.
	tests := []struct {
		name     string
		response string
	}{
		{name: "empty response", response: ""},
		{name: "whitespace response", response: "  \n "},
		{name: "prose instead of json", response: "I could not find any transactions."},
		{name: "object instead of array", response: `{"type": "expense", "amount": 100, "category_name": "Продукты"}`},
		{name: "empty array", response: `[]`},
		{name: "all items malformed", response: `[{"type": "expense"}, {"amount": 100}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &mockLLM{
				completeFunc: func(ctx context.Context, prompt string) (string, error) {
					return tt.response, nil
				},
			}
			e := testExtractor(t, llm)

			txs, err := e.FromText(context.Background(), "кофе 350 и такси 900")
			if err != nil {
				t.Fatalf("FromText failed: %v", err)
			}
			if len(txs) != 0 {
				t.Errorf("got %d transactions, want 0", len(txs))
			}
		})
	}
}

func TestFromText_BatchSkipsMalformedItems(t *testing.T) {
	// Three candidates, the middle one missing its amount: the two valid
	// ones survive in order.
	llm := &mockLLM{
		completeFunc: func(ctx context.Context, prompt string) (string, error) {
			return `[
				{"type": "expense", "amount": 350, "category_name": "Кафе и рестораны", "description": "кофе"},
				{"type": "expense", "category_name": "Транспорт", "description": "такси"},
				{"type": "income", "amount": 50000, "category_name": "Зарплата", "description": "аванс"}
			]`, nil
		},
	}
	e := testExtractor(t, llm)

	txs, err := e.FromText(context.Background(), "кофе 350, такси и аванс 50000")
	if err != nil {
		t.Fatalf("FromText failed: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txs))
	}
	if txs[0].Description != "кофе" || txs[1].Description != "аванс" {
		t.Errorf("wrong survivors: %q, %q", txs[0].Description, txs[1].Description)
	}
	if txs[1].Type != category.KindIncome {
		t.Errorf("second Type = %s, want income", txs[1].Type)
	}
}

func TestFromText_FencedResponse(t *testing.T) {
	llm := &mockLLM{
		completeFunc: func(ctx context.Context, prompt string) (string, error) {
			return "```json\n[{\"type\": \"expense\", \"amount\": 900, \"category_name\": \"Транспорт\"}]\n```", nil
		},
	}
	e := testExtractor(t, llm)

	txs, err := e.FromText(context.Background(), "такси 900")
	if err != nil {
		t.Fatalf("FromText failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	if txs[0].CategoryName != "Транспорт" {
		t.Errorf("CategoryName = %s, want Транспорт", txs[0].CategoryName)
	}
}

func TestFromText_UpstreamError(t *testing.T) {
	llm := &mockLLM{
		completeFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", errors.New("model unavailable")
		},
	}
	e := testExtractor(t, llm)

	_, err := e.FromText(context.Background(), "кофе 350")
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if upErr.Op != "complete" {
		t.Errorf("Op = %s, want complete", upErr.Op)
	}
}

func TestFromVoice(t *testing.T) {
	llm := &mockLLM{
		transcribeFunc: func(ctx context.Context, audio []byte, mimeType string) (string, error) {
			return "потратил 500 на продукты", nil
		},
		completeFunc: func(ctx context.Context, prompt string) (string, error) {
			return `[{"type": "expense", "amount": 500, "category_name": "Продукты", "description": "продукты"}]`, nil
		},
	}
	e := testExtractor(t, llm)

	txs, err := e.FromVoice(context.Background(), []byte("oga-bytes"), "audio/ogg")
	if err != nil {
		t.Fatalf("FromVoice failed: %v", err)
	}
	if llm.transcribeCalls != 1 {
		t.Errorf("transcribe called %d times, want 1", llm.transcribeCalls)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	if txs[0].CategoryName != "Продукты" {
		t.Errorf("CategoryName = %s, want Продукты", txs[0].CategoryName)
	}
}

func TestFromVoice_OversizedFileSkipped(t *testing.T) {
	llm := &mockLLM{}
	dir, err := category.NewDirectory()
	if err != nil {
		t.Fatalf("NewDirectory failed: %v", err)
	}
	opts := DefaultOptions()
	opts.MaxFileBytes = 4
	e := New(llm, dir, opts, zerolog.Nop())

	txs, err := e.FromVoice(context.Background(), []byte("too large"), "audio/ogg")
	if err != nil {
		t.Fatalf("FromVoice failed: %v", err)
	}
	if txs != nil {
		t.Errorf("got %v, want nil", txs)
	}
	if llm.transcribeCalls != 0 {
		t.Errorf("transcribe called %d times, want 0", llm.transcribeCalls)
	}
}

func TestFromReceiptImage(t *testing.T) {
	llm := &mockLLM{
		completeWithFileFunc: func(ctx context.Context, prompt, mimeType string, data []byte) (string, error) {
			if mimeType != "image/jpeg" {
				t.Errorf("mimeType = %s, want image/jpeg", mimeType)
			}
			return "```json\n{\"amount\": 199.99, \"merchant\": \"Shop\"}\n```", nil
		},
	}
	e := testExtractor(t, llm)

	tx, err := e.FromReceiptImage(context.Background(), []byte("jpeg-bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("FromReceiptImage failed: %v", err)
	}
	if tx == nil {
		t.Fatal("got nil transaction, want one")
	}
	if tx.Type != category.KindExpense {
		t.Errorf("Type = %s, want expense", tx.Type)
	}
	if !tx.Amount.Equal(decimal.NewFromFloat(199.99)) {
		t.Errorf("Amount = %s, want 199.99", tx.Amount)
	}
	if tx.Description != "Shop" {
		t.Errorf("Description = %q, want Shop", tx.Description)
	}
	if tx.CategoryName != category.DefaultExpenseName {
		t.Errorf("CategoryName = %s, want %s", tx.CategoryName, category.DefaultExpenseName)
	}
	if tx.Date != e.today() {
		t.Errorf("Date = %v, want today", tx.Date)
	}
}

func TestFromReceiptImage_MerchantAndItems(t *testing.T) {
	llm := &mockLLM{
		completeWithFileFunc: func(ctx context.Context, prompt, mimeType string, data []byte) (string, error) {
			return `{
				"amount": 1542.30,
				"merchant": "Пятёрочка",
				"items": ["Молоко", "Хлеб", "Сыр", "Яйца", "Масло"],
				"category_name": "Продукты",
				"date": "2026-08-25"
			}`, nil
		},
	}
	e := testExtractor(t, llm)

	tx, err := e.FromReceiptImage(context.Background(), []byte("jpeg-bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("FromReceiptImage failed: %v", err)
	}
	if tx == nil {
		t.Fatal("got nil transaction, want one")
	}
	if want := "Пятёрочка - Молоко, Хлеб, Сыр"; tx.Description != want {
		t.Errorf("Description = %q, want %q", tx.Description, want)
	}
	if tx.CategoryName != "Продукты" {
		t.Errorf("CategoryName = %s, want Продукты", tx.CategoryName)
	}
	if want := (civil.Date{Year: 2026, Month: time.August, Day: 25}); tx.Date != want {
		t.Errorf("Date = %v, want %v", tx.Date, want)
	}
}

func TestFromReceiptImage_Unreadable(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{name: "null amount", response: `{"amount": null}`},
		{name: "no amount", response: `{"merchant": "Shop"}`},
		{name: "zero amount", response: `{"amount": 0}`},
		{name: "not json", response: "This image is not a receipt."},
		{name: "empty", response: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &mockLLM{
				completeWithFileFunc: func(ctx context.Context, prompt, mimeType string, data []byte) (string, error) {
					return tt.response, nil
				},
			}
			e := testExtractor(t, llm)

			tx, err := e.FromReceiptImage(context.Background(), []byte("jpeg-bytes"), "image/jpeg")
			if err != nil {
				t.Fatalf("FromReceiptImage failed: %v", err)
			}
			if tx != nil {
				t.Errorf("got %+v, want nil", tx)
			}
		})
	}
}

func TestFromReceiptImage_NoFallbackDescriptionMissing(t *testing.T) {
	llm := &mockLLM{
		completeWithFileFunc: func(ctx context.Context, prompt, mimeType string, data []byte) (string, error) {
			return `{"amount": 300}`, nil
		},
	}
	e := testExtractor(t, llm)

	tx, err := e.FromReceiptImage(context.Background(), []byte("jpeg-bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("FromReceiptImage failed: %v", err)
	}
	if tx == nil {
		t.Fatal("got nil transaction, want one")
	}
	if tx.Description != receiptFallbackDescription {
		t.Errorf("Description = %q, want %q", tx.Description, receiptFallbackDescription)
	}
}

func TestFromReceiptPDF_UsesPDFMimeType(t *testing.T) {
	llm := &mockLLM{
		completeWithFileFunc: func(ctx context.Context, prompt, mimeType string, data []byte) (string, error) {
			if mimeType != "application/pdf" {
				t.Errorf("mimeType = %s, want application/pdf", mimeType)
			}
			return `{"amount": 499, "merchant": "Ozon"}`, nil
		},
	}
	e := testExtractor(t, llm)

	tx, err := e.FromReceiptPDF(context.Background(), []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("FromReceiptPDF failed: %v", err)
	}
	if tx == nil || tx.Description != "Ozon" {
		t.Errorf("tx = %+v, want Ozon receipt", tx)
	}
}

func TestFromReceiptJSON_NoUpstreamCall(t *testing.T) {
	llm := &mockLLM{}
	e := testExtractor(t, llm)

	tx := e.FromReceiptJSON(`{"amount": 750, "merchant": "Аптека", "category_name": "Здоровье"}`)
	if tx == nil {
		t.Fatal("got nil transaction, want one")
	}
	if tx.CategoryName != "Здоровье" {
		t.Errorf("CategoryName = %s, want Здоровье", tx.CategoryName)
	}
	if llm.completeCalls+llm.completeWithFileCalls+llm.transcribeCalls != 0 {
		t.Error("FromReceiptJSON must not call upstream")
	}
}

func TestFromReceiptImage_UpstreamError(t *testing.T) {
	llm := &mockLLM{
		completeWithFileFunc: func(ctx context.Context, prompt, mimeType string, data []byte) (string, error) {
			return "", errors.New("quota exceeded")
		},
	}
	e := testExtractor(t, llm)

	_, err := e.FromReceiptImage(context.Background(), []byte("jpeg-bytes"), "image/jpeg")
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
}

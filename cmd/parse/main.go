package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/nmorozov/kopilka/internal/agent"
	"github.com/nmorozov/kopilka/internal/category"
	"github.com/nmorozov/kopilka/internal/config"
	"github.com/nmorozov/kopilka/internal/extract"
	"github.com/nmorozov/kopilka/internal/llm"
	"github.com/nmorozov/kopilka/internal/logger"
	storebq "github.com/nmorozov/kopilka/internal/store/bigquery"
	"github.com/nmorozov/kopilka/internal/store/gcs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logger.Level)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "text":
		runText(cfg, log)
	case "receipt":
		runReceipt(cfg, log)
	case "list":
		runList(cfg, log)
	case "stats":
		runStats(cfg, log)
	case "recategorize":
		runRecategorize(cfg, log)
	case "delete":
		runDelete(cfg, log)
	case "chat":
		runChat(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Kopilka CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  parse <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  text      Extract transactions from a text message and save them")
	fmt.Println("  receipt   Archive a local receipt file, extract and save the transaction")
	fmt.Println("  list      List a user's transactions for a date range")
	fmt.Println("  stats     Show month summary and category totals")
	fmt.Println("  recategorize  Move a saved transaction to another category")
	fmt.Println("  delete    Delete a saved transaction")
	fmt.Println("  chat      Ask the assistant a one-off question")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'parse <command> -h' for more information on a command.")
}

func newExtractor(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*extract.Extractor, error) {
	llmClient, err := llm.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		return nil, err
	}

	dir, err := category.NewDirectory()
	if err != nil {
		return nil, err
	}

	opts := extract.Options{
		TextMaxAgeDays:    cfg.Extract.TextMaxAgeDays,
		ReceiptMaxAgeDays: cfg.Extract.ReceiptMaxAgeDays,
		MaxFileBytes:      int64(cfg.Extract.MaxFileSizeMB) << 20,
	}
	return extract.New(llmClient, dir, opts, log), nil
}

func runText(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("text", flag.ExitOnError)
	userID := fs.String("user", "", "user ID to save transactions under")
	message := fs.String("message", "", "message to parse")
	dryRun := fs.Bool("dry-run", false, "parse only, do not save")
	fs.Parse(os.Args[2:])

	if *userID == "" || *message == "" {
		log.Fatal().Msg("Usage: parse text -user ID -message TEXT")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	extractor, err := newExtractor(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build extractor")
	}

	txs, err := extractor.FromText(ctx, *message)
	if err != nil {
		log.Fatal().Err(err).Msg("Extraction failed")
	}
	if len(txs) == 0 {
		fmt.Println("No transactions recognized.")
		return
	}

	for i, tx := range txs {
		fmt.Printf("%d. %s %s  %s %s  %s\n",
			i+1, tx.Type, tx.Amount.StringFixed(2), tx.CategoryIcon, tx.CategoryName, tx.Description)
	}

	if *dryRun {
		return
	}

	store, err := storebq.NewStore(ctx, cfg.BigQuery, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create store")
	}
	defer store.Close()

	rows := make([]*storebq.TransactionRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, storebq.NewTransactionRow(*userID, tx, storebq.SourceText, ""))
	}
	if err := store.InsertTransactions(ctx, rows); err != nil {
		log.Fatal().Err(err).Msg("Failed to save transactions")
	}

	fmt.Printf("Saved %d transaction(s).\n", len(rows))
}

func runReceipt(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("receipt", flag.ExitOnError)
	userID := fs.String("user", "", "user ID to save the transaction under")
	filePath := fs.String("file", "", "path to a receipt image or PDF")
	fs.Parse(os.Args[2:])

	if *userID == "" || *filePath == "" {
		log.Fatal().Msg("Usage: parse receipt -user ID -file PATH")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read receipt file")
	}
	mimeType := mimeTypeForName(*filePath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	archive, err := gcs.NewArchive(ctx, cfg.Storage.ReceiptBucket, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create receipt archive")
	}
	defer archive.Close()

	uri, err := archive.Upload(ctx, *userID, data, mimeType)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to archive receipt")
	}

	extractor, err := newExtractor(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build extractor")
	}

	var tx *extract.Transaction
	if mimeType == "application/pdf" {
		tx, err = extractor.FromReceiptPDF(ctx, data)
	} else {
		tx, err = extractor.FromReceiptImage(ctx, data, mimeType)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Extraction failed")
	}
	if tx == nil {
		fmt.Println("Could not read a transaction from this receipt.")
		return
	}

	store, err := storebq.NewStore(ctx, cfg.BigQuery, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create store")
	}
	defer store.Close()

	row := storebq.NewTransactionRow(*userID, tx, storebq.SourceReceipt, uri)
	if err := store.InsertTransactions(ctx, []*storebq.TransactionRow{row}); err != nil {
		log.Fatal().Err(err).Msg("Failed to save transaction")
	}

	fmt.Printf("Saved: %s %s  %s %s  %s\n",
		tx.Type, tx.Amount.StringFixed(2), tx.CategoryIcon, tx.CategoryName, tx.Description)
	fmt.Printf("Receipt archived at %s\n", uri)
}

func runList(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	userID := fs.String("user", "", "user ID")
	from := fs.String("from", "", "start date YYYY-MM-DD (default: first of this month)")
	to := fs.String("to", "", "end date YYYY-MM-DD (default: today)")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Usage: parse list -user ID [-from DATE] [-to DATE]")
	}

	today := civil.DateOf(time.Now())
	fromDate := civil.Date{Year: today.Year, Month: today.Month, Day: 1}
	toDate := today
	var err error
	if *from != "" {
		if fromDate, err = civil.ParseDate(*from); err != nil {
			log.Fatal().Err(err).Msg("Invalid -from date")
		}
	}
	if *to != "" {
		if toDate, err = civil.ParseDate(*to); err != nil {
			log.Fatal().Err(err).Msg("Invalid -to date")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := storebq.NewStore(ctx, cfg.BigQuery, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create store")
	}
	defer store.Close()

	rows, err := store.ListUserTransactions(ctx, *userID, fromDate, toDate)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}

	fmt.Printf("Transactions %s .. %s (%d)\n", fromDate, toDate, len(rows))
	for _, r := range rows {
		fmt.Printf("  %s  %-7s %10s  %s %s  %s\n",
			r.TransactionDate, r.Type, r.Amount.FloatString(2), r.CategoryIcon, r.CategoryName, r.Description)
	}
}

func runStats(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	userID := fs.String("user", "", "user ID")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Usage: parse stats -user ID")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := storebq.NewStore(ctx, cfg.BigQuery, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create store")
	}
	defer store.Close()

	today := civil.DateOf(time.Now())
	summary, err := store.MonthSummary(ctx, *userID, today)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load month summary")
	}

	fmt.Printf("=== %s %d ===\n", today.Month, today.Year)
	fmt.Printf("Income:  %s\n", summary.Income.FloatString(2))
	fmt.Printf("Expense: %s\n", summary.Expense.FloatString(2))
	fmt.Printf("Records: %d\n", summary.Count)

	monthStart := civil.Date{Year: today.Year, Month: today.Month, Day: 1}
	totals, err := store.CategoryTotals(ctx, *userID, "expense", monthStart, today)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load category totals")
	}

	fmt.Println("\nExpenses by category:")
	for _, c := range totals {
		fmt.Printf("  %s %-20s %12s  (%d)\n", c.CategoryIcon, c.CategoryName, c.Total.FloatString(2), c.Count)
	}

	daily, err := store.DailyTotals(ctx, *userID, monthStart, today)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load daily totals")
	}

	fmt.Println("\nSpending by day:")
	for _, d := range daily {
		fmt.Printf("  %s  %12s\n", d.Day, d.Total.FloatString(2))
	}
}

func runRecategorize(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("recategorize", flag.ExitOnError)
	userID := fs.String("user", "", "user ID")
	txID := fs.String("id", "", "transaction ID")
	name := fs.String("category", "", "new category name")
	kind := fs.String("kind", "expense", "transaction kind (income or expense)")
	fs.Parse(os.Args[2:])

	if *userID == "" || *txID == "" || *name == "" {
		log.Fatal().Msg("Usage: parse recategorize -user ID -id TX_ID -category NAME [-kind income|expense]")
	}

	dir, err := category.NewDirectory()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build category directory")
	}

	def, ok := dir.Lookup(*name, category.Kind(*kind), category.MatchByNameAndKind)
	if !ok {
		log.Fatal().Str("category", *name).Msg("Unknown category")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := storebq.NewStore(ctx, cfg.BigQuery, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create store")
	}
	defer store.Close()

	if err := store.UpdateTransactionCategory(ctx, *userID, *txID, def.Name, def.Icon); err != nil {
		log.Fatal().Err(err).Msg("Failed to update transaction")
	}

	fmt.Printf("Transaction %s moved to %s %s\n", *txID, def.Icon, def.Name)
}

func runDelete(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	userID := fs.String("user", "", "user ID")
	txID := fs.String("id", "", "transaction ID")
	fs.Parse(os.Args[2:])

	if *userID == "" || *txID == "" {
		log.Fatal().Msg("Usage: parse delete -user ID -id TX_ID")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := storebq.NewStore(ctx, cfg.BigQuery, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create store")
	}
	defer store.Close()

	if err := store.DeleteTransaction(ctx, *userID, *txID); err != nil {
		log.Fatal().Err(err).Msg("Failed to delete transaction")
	}

	fmt.Printf("Transaction %s deleted\n", *txID)
}

func runChat(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	userID := fs.String("user", "", "user ID")
	message := fs.String("message", "", "question for the assistant")
	fresh := fs.Bool("new", false, "start a new conversation")
	fs.Parse(os.Args[2:])

	if *userID == "" || *message == "" {
		log.Fatal().Msg("Usage: parse chat -user ID -message TEXT [-new]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	llmClient, err := llm.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create LLM client")
	}

	store, err := storebq.NewStore(ctx, cfg.BigQuery, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create store")
	}
	defer store.Close()

	a := agent.New(llmClient, store, cfg.Agent, log)
	reply, err := a.Chat(ctx, *userID, *message, *fresh)
	if err != nil {
		log.Fatal().Err(err).Msg("Chat failed")
	}

	fmt.Println(reply)
}

// mimeTypeForName guesses the content type of a local receipt file from its
// extension.
func mimeTypeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

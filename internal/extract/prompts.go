package extract

import (
	"strings"

	"cloud.google.com/go/civil"

	"github.com/nmorozov/kopilka/internal/category"
)

// categoriesPrompt lists the reference categories the model is allowed to use.
func categoriesPrompt(dir *category.Directory) string {
	var b strings.Builder
	b.WriteString("Use ONLY the following category names:\n\n")

	b.WriteString("Expense categories:\n")
	for _, def := range dir.All(category.KindExpense, true) {
		b.WriteString("  - " + def.Name + "\n")
	}
	b.WriteString("\nIncome categories:\n")
	for _, def := range dir.All(category.KindIncome, true) {
		b.WriteString("  - " + def.Name + "\n")
	}

	b.WriteString("\nCATEGORY RULES:\n")
	b.WriteString("1. \"category_name\" must be EXACTLY one of the names above.\n")
	b.WriteString("2. If unsure about an expense, use \"" + category.DefaultExpenseName + "\".\n")
	b.WriteString("3. If unsure about an income, use \"" + category.DefaultIncomeName + "\".\n")

	return b.String()
}

// multiTransactionPrompt asks for a JSON array so one message can carry
// several transactions ("кофе 350 и такси 900").
func multiTransactionPrompt(dir *category.Directory, text string, today civil.Date) string {
	base :=
		"You are a transaction parser for a personal finance assistant.\n" +
			"The user writes in Russian about money they spent or received.\n\n" +
			"Task:\n" +
			"- Extract ALL transactions mentioned in the message below.\n" +
			"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
			"- Output a JSON array of objects, one object per transaction.\n\n" +
			"Each object must have these fields:\n" +
			"- \"type\": string, \"income\" or \"expense\"\n" +
			"- \"amount\": number, strictly positive\n" +
			"- \"category_name\": string (one of the predefined categories)\n" +
			"- \"description\": string, short summary of the transaction\n" +
			"- \"date\": string \"YYYY-MM-DD\" or omit the field if no date is mentioned\n\n"

	rules :=
		"Rules:\n" +
			"- Today is " + today.String() + "; resolve relative dates (\"вчера\") against it.\n" +
			"- If the message mentions no transactions, return an empty array: []\n" +
			"- Never invent transactions that are not in the message.\n" +
			"Return ONLY valid raw JSON.\n" +
			"Do NOT wrap the response in code fences.\n" +
			"Do NOT use ```json or any Markdown.\n" +
			"Output must begin with \"[\" and end with \"]\".\n"

	return base + categoriesPrompt(dir) + "\n\n" + rules + "\nMessage:\n" + text
}

// receiptPrompt asks for a single JSON object describing the receipt total.
func receiptPrompt(dir *category.Directory, today civil.Date) string {
	base :=
		"You are a receipt parser for a personal finance assistant.\n" +
			"The attached file is a photographed or PDF store receipt, usually in Russian.\n\n" +
			"Task:\n" +
			"- Extract the receipt total and details.\n" +
			"- Output STRICT JSON only: a single object, no extra text.\n\n" +
			"The object must have these fields:\n" +
			"- \"amount\": number, the receipt TOTAL (strictly positive)\n" +
			"- \"merchant\": string or null, the store name\n" +
			"- \"items\": array of strings or null, purchased item names\n" +
			"- \"category_name\": string (one of the predefined expense categories)\n" +
			"- \"date\": string \"YYYY-MM-DD\" or null if not visible\n\n"

	rules :=
		"Rules:\n" +
			"- Today is " + today.String() + ".\n" +
			"- If the file is not a receipt or the total is unreadable, return {\"amount\": null}.\n" +
			"Return ONLY valid raw JSON.\n" +
			"Do NOT wrap the response in code fences.\n" +
			"Output must begin with \"{\" and end with \"}\".\n"

	return base + categoriesPrompt(dir) + "\n\n" + rules
}

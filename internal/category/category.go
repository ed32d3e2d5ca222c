// Package category holds the fixed reference list of transaction categories
// and resolves free-text category names against it.
package category

import (
	"fmt"
	"strings"
)

// Kind splits categories into the two transaction directions.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// Valid reports whether k is one of the two known kinds.
func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// Definition is one reference category. The set is fixed at startup; rows are
// never mutated afterwards.
type Definition struct {
	Name   string
	Icon   string
	Kind   Kind
	Active bool
}

// MatchMode selects how Resolve compares a candidate name against the table.
//
// The two modes exist because historical call sites disagree: the text-parser
// path matches by name alone, while the categorizer path also requires the
// kind to line up. Both behaviors are preserved; callers pick one explicitly.
type MatchMode int

const (
	// MatchByName matches on the normalized name only. When two kinds share
	// a name, the first row in the table wins.
	MatchByName MatchMode = iota
	// MatchByNameAndKind requires both the normalized name and the kind to
	// match.
	MatchByNameAndKind
)

// Default category names, one per kind. Resolution failures fall back to these.
const (
	DefaultExpenseName = "Прочее"
	DefaultIncomeName  = "Другие доходы"
)

// builtin is the fixed category table. Note "Подарки" appears under both
// kinds; name-only matching resolves it to the expense row.
var builtin = []Definition{
	{Name: "Продукты", Icon: "🛒", Kind: KindExpense, Active: true},
	{Name: "Кафе и рестораны", Icon: "☕", Kind: KindExpense, Active: true},
	{Name: "Транспорт", Icon: "🚕", Kind: KindExpense, Active: true},
	{Name: "Жильё", Icon: "🏠", Kind: KindExpense, Active: true},
	{Name: "Коммунальные услуги", Icon: "💡", Kind: KindExpense, Active: true},
	{Name: "Здоровье", Icon: "💊", Kind: KindExpense, Active: true},
	{Name: "Одежда", Icon: "👕", Kind: KindExpense, Active: true},
	{Name: "Развлечения", Icon: "🎬", Kind: KindExpense, Active: true},
	{Name: "Подарки", Icon: "🎁", Kind: KindExpense, Active: true},
	{Name: "Образование", Icon: "📚", Kind: KindExpense, Active: true},
	{Name: "Путешествия", Icon: "✈️", Kind: KindExpense, Active: true},
	{Name: "Связь и интернет", Icon: "📱", Kind: KindExpense, Active: true},
	{Name: "Спорт", Icon: "🏋️", Kind: KindExpense, Active: true},
	{Name: DefaultExpenseName, Icon: "📦", Kind: KindExpense, Active: true},
	{Name: "Зарплата", Icon: "💰", Kind: KindIncome, Active: true},
	{Name: "Фриланс", Icon: "💻", Kind: KindIncome, Active: true},
	{Name: "Подарки", Icon: "🎁", Kind: KindIncome, Active: true},
	{Name: "Инвестиции", Icon: "📈", Kind: KindIncome, Active: true},
	{Name: "Кэшбэк", Icon: "💳", Kind: KindIncome, Active: true},
	{Name: DefaultIncomeName, Icon: "💵", Kind: KindIncome, Active: true},
}

// Directory provides O(1) category resolution over a fixed table.
// It is read-only after construction and safe for concurrent use.
type Directory struct {
	all        []Definition
	byName     map[string]Definition
	byNameKind map[nameKindKey]Definition
	defaults   map[Kind]Definition
}

type nameKindKey struct {
	name string
	kind Kind
}

// NewDirectory builds a Directory over the builtin category table.
func NewDirectory() (*Directory, error) {
	return NewDirectoryFrom(builtin)
}

// NewDirectoryFrom builds a Directory over the given table. It fails if either
// kind is missing its designated default category.
func NewDirectoryFrom(defs []Definition) (*Directory, error) {
	d := &Directory{
		all:        make([]Definition, len(defs)),
		byName:     make(map[string]Definition, len(defs)),
		byNameKind: make(map[nameKindKey]Definition, len(defs)),
		defaults:   make(map[Kind]Definition, 2),
	}
	copy(d.all, defs)

	for _, def := range defs {
		norm := normalizeName(def.Name)

		// First row wins on name-only collisions, matching the historical
		// linear-scan behavior.
		if _, exists := d.byName[norm]; !exists {
			d.byName[norm] = def
		}
		d.byNameKind[nameKindKey{name: norm, kind: def.Kind}] = def

		if def.Kind == KindExpense && def.Name == DefaultExpenseName {
			d.defaults[KindExpense] = def
		}
		if def.Kind == KindIncome && def.Name == DefaultIncomeName {
			d.defaults[KindIncome] = def
		}
	}

	for _, kind := range []Kind{KindIncome, KindExpense} {
		if _, ok := d.defaults[kind]; !ok {
			return nil, fmt.Errorf("category: table has no default for kind %q", kind)
		}
	}

	return d, nil
}

// Resolve maps a free-text category name to a definition. It never fails:
// when no row matches, the default for kind is returned.
func (d *Directory) Resolve(name string, kind Kind, mode MatchMode) Definition {
	norm := normalizeName(name)

	switch mode {
	case MatchByNameAndKind:
		if def, ok := d.byNameKind[nameKindKey{name: norm, kind: kind}]; ok {
			return def
		}
	default:
		if def, ok := d.byName[norm]; ok {
			return def
		}
	}

	return d.Default(kind)
}

// Lookup is like Resolve but reports whether an exact match was found instead
// of falling back.
func (d *Directory) Lookup(name string, kind Kind, mode MatchMode) (Definition, bool) {
	norm := normalizeName(name)
	if mode == MatchByNameAndKind {
		def, ok := d.byNameKind[nameKindKey{name: norm, kind: kind}]
		return def, ok
	}
	def, ok := d.byName[norm]
	return def, ok
}

// Default returns the fallback category for the given kind.
func (d *Directory) Default(kind Kind) Definition {
	if def, ok := d.defaults[kind]; ok {
		return def
	}
	// Unknown kind: treat as expense, the more common direction.
	return d.defaults[KindExpense]
}

// All returns categories in table order. kind "" means both kinds.
func (d *Directory) All(kind Kind, activeOnly bool) []Definition {
	out := make([]Definition, 0, len(d.all))
	for _, def := range d.all {
		if kind != "" && def.Kind != kind {
			continue
		}
		if activeOnly && !def.Active {
			continue
		}
		out = append(out, def)
	}
	return out
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

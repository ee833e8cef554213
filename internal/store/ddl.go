package store

import (
	"strconv"
	"strings"

	"github.com/JonMunkholm/policyimport/internal/policy"
)

// dialect holds the SQL differences between backends.
type dialect struct {
	idColumn    string // full definition of the id column
	textType    string
	realType    string
	placeholder func(n int) string // n is 1-based
	returningID bool
}

var sqliteDialect = dialect{
	idColumn:    `"id" INTEGER PRIMARY KEY AUTOINCREMENT`,
	textType:    "TEXT",
	realType:    "REAL",
	placeholder: func(int) string { return "?" },
}

var postgresDialect = dialect{
	idColumn:    `"id" BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY`,
	textType:    "TEXT",
	realType:    "DOUBLE PRECISION",
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	returningID: true,
}

func (d dialect) columnType(t policy.FieldType) string {
	if t == policy.FieldReal {
		return d.realType
	}
	return d.textType
}

func (d dialect) createTable(table string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(quoteIdent(table))
	b.WriteString(" (\n\t")
	b.WriteString(d.idColumn)
	for _, f := range policy.Fields {
		b.WriteString(",\n\t")
		b.WriteString(quoteIdent(f.Column))
		b.WriteByte(' ')
		b.WriteString(d.columnType(f.Type))
	}
	b.WriteString("\n)")
	return b.String()
}

func (d dialect) insert(table string) string {
	cols := quoteAll(policy.Columns())
	params := make([]string, len(cols))
	for i := range params {
		params[i] = d.placeholder(i + 1)
	}

	q := "INSERT INTO " + quoteIdent(table) +
		" (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(params, ", ") + ")"
	if d.returningID {
		q += ` RETURNING "id"`
	}
	return q
}

func (d dialect) selectAll(table string) string {
	cols := append([]string{`"id"`}, quoteAll(policy.Columns())...)
	return "SELECT " + strings.Join(cols, ", ") + " FROM " + quoteIdent(table) + ` ORDER BY "id"`
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdent(n)
	}
	return out
}

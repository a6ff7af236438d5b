package numerator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/squirrel"

	corenumerator "docnum/internal/core/numerator"
)

// Default location of assigned document numbers.
const (
	DefaultRecordTable  = "case_law_documents"
	DefaultRecordColumn = "document_number"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

// RecordOracle answers uniqueness queries against the table holding live records.
type RecordOracle struct {
	db      QuerierSource
	builder squirrel.StatementBuilderType
	table   string
	column  string
}

var _ corenumerator.UniquenessOracle = (*RecordOracle)(nil)

// NewRecordOracle checks table.column for assigned numbers. Empty names fall
// back to the defaults; names are validated since they are spliced into SQL.
func NewRecordOracle(db QuerierSource, table, column string) (*RecordOracle, error) {
	if table == "" {
		table = DefaultRecordTable
	}
	if column == "" {
		column = DefaultRecordColumn
	}
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid record table name %q", table)
	}
	if !identRe.MatchString(column) || strings.Contains(column, ".") {
		return nil, fmt.Errorf("invalid record column name %q", column)
	}
	return &RecordOracle{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		table:   table,
		column:  column,
	}, nil
}

// Exists reports whether number is already assigned to a live record.
func (o *RecordOracle) Exists(ctx context.Context, number string) (bool, error) {
	sql, args, err := o.existsQuery(number)
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var exists bool
	if err := o.db.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup %s in %s: %w", number, o.table, err)
	}
	return exists, nil
}

func (o *RecordOracle) existsQuery(number string) (string, []any, error) {
	return o.builder.
		Select("1").
		Prefix("SELECT EXISTS (").
		From(o.table).
		Where(squirrel.Eq{o.column: number}).
		Suffix(")").
		ToSql()
}

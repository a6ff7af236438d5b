package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"docnum/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RecordNumberConstraint is the unique constraint guarding document numbers.
const RecordNumberConstraint = "case_law_documents_document_number_key"

// Migrate applies the embedded schema. Every statement is idempotent, so
// running it against an up-to-date database is a no-op.
func Migrate(ctx context.Context, q Querier) error {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrationsFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := q.Exec(ctx, string(body)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		logger.Info(ctx, "migration applied", "file", name)
	}
	return nil
}

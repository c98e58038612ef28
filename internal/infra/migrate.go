package infra

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the idempotent schema. The statement carries no arguments
// so pgx sends it over the simple protocol and multiple statements are fine.
func Migrate(ctx context.Context, runner *SQLRunner) error {
	if _, err := runner.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	runner.Logger.Info().Msg("schema applied")
	return nil
}

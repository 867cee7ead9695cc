package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// nextOrderNumberTx allocates the next gapless order number for the year. The counter
// row is upserted inside the caller's transaction, so a rolled-back order gives its
// number back and concurrent creators queue on the row lock.
func nextOrderNumberTx(ctx context.Context, tx pgx.Tx, year int) (string, error) {
	var last int64
	err := tx.QueryRow(ctx, `
		INSERT INTO order_sequences (year, last_number)
		VALUES ($1, 1)
		ON CONFLICT (year)
		DO UPDATE SET last_number = order_sequences.last_number + 1
		RETURNING last_number
	`, year).Scan(&last)
	if err != nil {
		return "", fmt.Errorf("failed to generate gapless order number: %w", err)
	}
	return FormatOrderNumber(year, last), nil
}

// FormatOrderNumber renders ORD-<year>-<5-digit sequence>.
func FormatOrderNumber(year int, seq int64) string {
	return fmt.Sprintf("ORD-%d-%05d", year, seq)
}

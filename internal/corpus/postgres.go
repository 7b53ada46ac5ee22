package corpus

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/bm25"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/postgres"
)

// ReadPostgres runs query in a read-only transaction. The query must return
// two columns: an integer or text identifier and the document body. A NULL
// body is an empty document.
func ReadPostgres(ctx context.Context, client *postgres.Client, query string) (*Corpus, error) {
	c := &Corpus{}
	err := client.InTx(ctx, postgres.ReadOnly, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return fmt.Errorf("querying corpus: %w", err)
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("reading corpus columns: %w", err)
		}
		if len(cols) != 2 {
			return fmt.Errorf("%w: corpus query must return (id, body), got %d columns", apperrors.ErrInvalidInput, len(cols))
		}

		for rows.Next() {
			var (
				rawID any
				body  sql.NullString
			)
			if err := rows.Scan(&rawID, &body); err != nil {
				return fmt.Errorf("scanning corpus row %d: %w", len(c.Docs)+1, err)
			}
			id, err := idFromColumn(rawID)
			if err != nil {
				return fmt.Errorf("corpus row %d: %w", len(c.Docs)+1, err)
			}
			c.Docs = append(c.Docs, body.String)
			c.IDs = append(c.IDs, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// idFromColumn converts a scanned identifier column. lib/pq yields int64
// for integer columns and []byte or string for text-like ones; cast
// numeric columns to bigint in the query to get integer ids.
func idFromColumn(v any) (bm25.ID, error) {
	switch t := v.(type) {
	case int64:
		return bm25.IntID(t), nil
	case int32:
		return bm25.IntID(int64(t)), nil
	case []byte:
		return bm25.TextID(string(t)), nil
	case string:
		return bm25.TextID(t), nil
	case nil:
		return bm25.ID{}, fmt.Errorf("%w: NULL document id", apperrors.ErrInvalidInput)
	default:
		return bm25.ID{}, fmt.Errorf("%w: unsupported id column type %T", apperrors.ErrInvalidInput, v)
	}
}

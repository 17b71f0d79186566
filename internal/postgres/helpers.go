package postgres

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// textPtrToNullable converts a *string to pgtype.Text.
// nil → NULL, non-nil → valid text.
func textPtrToNullable(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

// nullableTextToPtr converts pgtype.Text to *string.
func nullableTextToPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

// jsonbOrNull passes raw JSON through, mapping empty to NULL so JSONB
// columns never receive the empty string (which is invalid JSON).
func jsonbOrNull(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

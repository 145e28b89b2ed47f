package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm translated", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "pg error code", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "pg other code", err: &pgconn.PgError{Code: "40001"}, want: false},
		{name: "mysql message", err: errors.New("Error 1062: Duplicate entry"), want: true},
		{name: "sqlite message", err: errors.New("UNIQUE constraint failed: invoice_time_entries.time_entry_id"), want: true},
		{name: "unrelated", err: errors.New("boom"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDuplicateKeyErr(tc.err))
		})
	}
}

func TestDialectRejectsUnknownType(t *testing.T) {
	_, err := Dialect(Config{Type: "oracle"})
	assert.Error(t, err)
}

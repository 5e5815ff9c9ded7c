package postgres

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bountyboard/backend/internal/store"
)

func TestU64Scan(t *testing.T) {
	tests := []struct {
		name    string
		src     any
		want    uint64
		wantErr bool
	}{
		{"string", "42", 42, false},
		{"bytes", []byte("7"), 7, false},
		{"max", "18446744073709551615", math.MaxUint64, false},
		{"null", nil, 0, false},
		{"negative", "-1", 0, true},
		{"too large", "18446744073709551616", 0, true},
		{"wrong type", int64(3), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v u64
			err := v.Scan(tt.src)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Scan(%v): err=%v, wantErr=%v", tt.src, err, tt.wantErr)
			}
			if !tt.wantErr && uint64(v) != tt.want {
				t.Errorf("Scan(%v) = %d, want %d", tt.src, v, tt.want)
			}
		})
	}
}

func TestNumRoundTrip(t *testing.T) {
	var v u64
	if err := v.Scan(num(math.MaxUint64)); err != nil {
		t.Fatal(err)
	}
	if uint64(v) != math.MaxUint64 {
		t.Errorf("round trip: got %d", v)
	}
}

func TestMapErr(t *testing.T) {
	if !errors.Is(mapErr(pgx.ErrNoRows), store.ErrNotFound) {
		t.Error("ErrNoRows should map to ErrNotFound")
	}
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "bounties_pkey"}
	if !errors.Is(mapErr(fmt.Errorf("insert: %w", dup)), store.ErrAlreadyExists) {
		t.Error("unique violation should map to ErrAlreadyExists")
	}
	ser := &pgconn.PgError{Code: "40001"}
	if !errors.Is(mapErr(ser), store.ErrConflict) {
		t.Error("serialization failure should map to ErrConflict")
	}
	other := errors.New("boom")
	if mapErr(other) != other {
		t.Error("unknown errors must pass through")
	}
	if mapErr(nil) != nil {
		t.Error("nil must stay nil")
	}
}

func TestWhereBuilder(t *testing.T) {
	w := where{}
	if w.String() != "" {
		t.Errorf("empty where: %q", w.String())
	}
	w.add("status = $%d", int16(1))
	n := w.next(uuid.Nil)
	w.clauses = append(w.clauses, fmt.Sprintf("(from_acct = $%d OR to_acct = $%d)", n, n))
	want := " WHERE status = $1 AND (from_acct = $2 OR to_acct = $2)"
	if got := w.String(); got != want {
		t.Errorf("where: got %q, want %q", got, want)
	}
	if len(w.args) != 2 {
		t.Errorf("args: got %d, want 2", len(w.args))
	}
}

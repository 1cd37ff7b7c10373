package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestPoolStats_UnhealthyState(t *testing.T) {
	stats := &PoolStats{MaxConns: 20, AcquireDuration: "0s"}
	if stats.Healthy {
		t.Error("expected Healthy to be false when TotalConns is 0")
	}
}

func TestRunChecks(t *testing.T) {
	checks := []Check{
		{Name: "redis", Ping: func(ctx context.Context) error { return nil }},
		{Name: "mail", Ping: func(ctx context.Context) error { return errors.New("connection refused") }},
	}

	results, ok := RunChecks(context.Background(), checks)
	if ok {
		t.Error("expected overall failure when one check fails")
	}
	if results["redis"] != "ok" {
		t.Errorf("expected redis ok, got %q", results["redis"])
	}
	if results["mail"] != "connection refused" {
		t.Errorf("expected mail error text, got %q", results["mail"])
	}
}

func TestRunChecks_Empty(t *testing.T) {
	results, ok := RunChecks(context.Background(), nil)
	if !ok {
		t.Error("expected success with no checks")
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %v", results)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: UniqueViolation, ConstraintName: "appointments_one_active_per_slot"}
	wrapped := fmt.Errorf("insert appointment: %w", pgErr)

	if !IsUniqueViolation(wrapped, "") {
		t.Error("expected wrapped unique violation to match any constraint")
	}
	if !IsUniqueViolation(wrapped, "appointments_one_active_per_slot") {
		t.Error("expected constraint name to match")
	}
	if IsUniqueViolation(wrapped, "users_email_key") {
		t.Error("expected different constraint name not to match")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Error("expected foreign key violation not to match")
	}
	if IsUniqueViolation(errors.New("boom"), "") {
		t.Error("expected plain error not to match")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("get slot: %w", pgx.ErrNoRows)) {
		t.Error("expected wrapped ErrNoRows to match")
	}
	if IsNoRows(errors.New("other")) {
		t.Error("expected other error not to match")
	}
}

func TestConn_FallsBackWithoutTx(t *testing.T) {
	if _, ok := TxFromContext(context.Background()); ok {
		t.Fatal("expected no transaction in empty context")
	}
	if got := Conn(context.Background(), nil); got != nil {
		t.Errorf("expected fallback querier, got %v", got)
	}
}

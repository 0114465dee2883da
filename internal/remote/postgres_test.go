package remote

import (
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestUpsertStatement(t *testing.T) {
	payload := []byte(`{"id":"r1","post_id":"p1","user_id":"alice","reaction":"fire","created_at":"x","modified_at":"y","deleted":false}`)

	stmt, err := upsertStatement("feed_reactions", payload, []string{"post_id", "user_id", "reaction"})
	if err != nil {
		t.Fatalf("upsertStatement failed: %v", err)
	}

	wantParts := []string{
		`INSERT INTO "feed_reactions" ("created_at", "deleted", "id", "modified_at", "post_id", "reaction", "user_id")`,
		`SELECT r."created_at", r."deleted", r."id", clock_timestamp(), r."post_id", r."reaction", r."user_id"`,
		`FROM json_populate_record(NULL::"feed_reactions", $1::json) r`,
		`ON CONFLICT ("post_id", "user_id", "reaction") DO UPDATE SET "deleted" = EXCLUDED."deleted", "modified_at" = EXCLUDED."modified_at"`,
	}
	for _, p := range wantParts {
		if !strings.Contains(stmt, p) {
			t.Errorf("statement missing %q\n got: %s", p, stmt)
		}
	}
	for _, never := range []string{`"id" = EXCLUDED`, `"created_at" = EXCLUDED`, `"post_id" = EXCLUDED`} {
		if strings.Contains(stmt, never) {
			t.Errorf("statement must not update %s", never)
		}
	}
}

func TestUpsertStatement_StampsWhenPayloadOmitsModifiedAt(t *testing.T) {
	stmt, err := upsertStatement("goals", []byte(`{"id":"g1","title":"5k"}`), nil)
	if err != nil {
		t.Fatalf("upsertStatement failed: %v", err)
	}
	if !strings.Contains(stmt, `("id", "title", "modified_at")`) {
		t.Errorf("modified_at should be appended: %s", stmt)
	}
	if !strings.Contains(stmt, `ON CONFLICT ("id")`) {
		t.Errorf("default conflict target should be id: %s", stmt)
	}
}

func TestUpsertStatement_Errors(t *testing.T) {
	if _, err := upsertStatement("goals", []byte(`{"title":"5k"}`), nil); err == nil {
		t.Error("row without id should fail")
	}
	if _, err := upsertStatement("goals", []byte(`not json`), nil); err == nil {
		t.Error("malformed payload should fail")
	}
}

func TestClassifyPg(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"42501", ErrRejected},
		{"23505", ErrRejected},
		{"22P02", ErrRejected},
		{"28P01", ErrUnauthorized},
		{"08006", ErrNetwork},
		{"40001", ErrServer},
		{"53300", ErrServer},
		{"57014", ErrServer},
		{"XX000", ErrServer},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := classifyPg("upsert", "goals", &pgconn.PgError{Code: tt.code, Message: "boom"})
			if !errors.Is(err, tt.want) {
				t.Errorf("code %s: %v, want %v", tt.code, err, tt.want)
			}
			var rerr *Error
			if !errors.As(err, &rerr) || rerr.Code != tt.code {
				t.Errorf("code not carried: %+v", rerr)
			}
		})
	}
}

func TestClassifyPg_NonDriverErrors(t *testing.T) {
	if err := classifyPg("select", "goals", errors.New("dial tcp: refused")); !errors.Is(err, ErrNetwork) {
		t.Errorf("plain error: %v, want ErrNetwork", err)
	}

	already := &Error{Op: "select", Table: "goals", Err: ErrUnauthorized}
	if err := classifyPg("select", "goals", already); err != already {
		t.Errorf("classified error should pass through, got %v", err)
	}
}

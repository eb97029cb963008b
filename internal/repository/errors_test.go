package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/lib/pq"

	"github.com/hitoshi/cryptoinsight/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unique violation", &pq.Error{Code: "23505"}, model.ErrConflict},
		{"check violation", &pq.Error{Code: "23514"}, model.ErrConflict},
		{"foreign key violation", &pq.Error{Code: "23503"}, model.ErrNotFound},
		{"no rows", sql.ErrNoRows, model.ErrNotFound},
		{"connection failure", &pq.Error{Code: "08006"}, model.ErrUnavailable},
		{"deadline", context.DeadlineExceeded, model.ErrUnavailable},
		{"bad conn", errors.New("driver: bad connection"), model.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("op", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classify(%v) = %v, want kind %v", tt.err, got, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classify(%v) does not wrap the original error", tt.err)
			}
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	if err := classify("op", nil); err != nil {
		t.Errorf("classify(nil) = %v, want nil", err)
	}
}

// 既に分類済みのエラーは種別を変えない
func TestClassify_KeepsExistingStoreError(t *testing.T) {
	orig := notFound("heartbeat")
	got := classify("outer", orig)
	if got != orig {
		t.Errorf("classify() = %v, want original %v", got, orig)
	}
}

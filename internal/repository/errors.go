package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/hitoshi/cryptoinsight/internal/model"
)

// PostgreSQLのSQLSTATE
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
)

// classify はドライバのエラーを失敗種別付きのmodel.StoreErrorに変換する。
// 一意制約・CHECK制約違反はconflict、外部キー違反とsql.ErrNoRowsはnot_found、
// それ以外（接続断、タイムアウト、キャンセル等）はunavailableとして扱う。
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var se *model.StoreError
	if errors.As(err, &se) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return model.NewStoreError(op, model.ErrNotFound, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation, pqCheckViolation:
			return model.NewStoreError(op, model.ErrConflict, err)
		case pqForeignKeyViolation:
			return model.NewStoreError(op, model.ErrNotFound, err)
		}
	}

	return model.NewStoreError(op, model.ErrUnavailable, err)
}

// notFound は該当行が無かったことを表すStoreErrorを生成する。
func notFound(op string) error {
	return model.NewStoreError(op, model.ErrNotFound, nil)
}

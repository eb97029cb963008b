// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ストア操作の失敗種別。errors.Isで判定する。
var (
	// ErrUnavailable はストアに到達できない、またはタイムアウトしたことを表す。
	ErrUnavailable = errors.New("store unavailable")
	// ErrConflict は一意制約違反を表す。
	ErrConflict = errors.New("conflict")
	// ErrNotFound は対象の行が存在しないことを表す。
	ErrNotFound = errors.New("not found")
)

// StoreError はストア操作の失敗を種別付きで表す。
// Kindは ErrUnavailable / ErrConflict / ErrNotFound のいずれか。
type StoreError struct {
	Op   string
	Kind error
	Err  error
}

// NewStoreError はStoreErrorを生成する。
func NewStoreError(op string, kind error, err error) *StoreError {
	return &StoreError{Op: op, Kind: kind, Err: err}
}

// Error はerrorインターフェースを実装する。
func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is は失敗種別の比較を行う。
func (e *StoreError) Is(target error) bool {
	return target == e.Kind
}

// FailureKind はエラーの種別名を返す。ログとメトリクスのラベルに使う。
// 種別を持たないエラーは "unavailable" として扱う。
func FailureKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "unavailable"
	}
}

// APIError は監視APIの統一エラーフォーマットを表す。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, presence, engagement, system
	Action   string // 利用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrCodeArticleNotFound  = "ARTICLE_NOT_FOUND"
	ErrCodeInvalidParameter = "INVALID_PARAMETER"
	ErrCodeConflict         = "CONFLICT"
)

// NewStoreUnavailableError はストア到達不能エラーを生成する。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "データベースに接続できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。表示中のデータは最新でない可能性があります。",
	}
}

// NewArticleNotFoundError は記事未検出エラーを生成する。
func NewArticleNotFoundError(articleID int64) *APIError {
	return &APIError{
		Code:     ErrCodeArticleNotFound,
		Message:  fmt.Sprintf("指定された記事が見つかりません: %d", articleID),
		Category: "engagement",
		Action:   "記事IDを確認してください。",
	}
}

// NewInvalidParameterError は不正なパラメータエラーを生成する。
func NewInvalidParameterError(name, value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidParameter,
		Message:  fmt.Sprintf("無効なパラメータです: %s=%q", name, value),
		Category: "validation",
		Action:   "パラメータの値を確認してください。",
	}
}

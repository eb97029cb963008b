package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/cryptoinsight/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、利用者には一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// WriteStoreError はストア操作の失敗種別に応じたレスポンスを書き込む。
// unavailableは503、not_foundは404、conflictは409。
func WriteStoreError(w http.ResponseWriter, err error, articleID int64) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		WriteErrorResponse(w, http.StatusNotFound, model.NewArticleNotFoundError(articleID))
	case errors.Is(err, model.ErrConflict):
		WriteErrorResponse(w, http.StatusConflict, &model.APIError{
			Code:     model.ErrCodeConflict,
			Message:  "リソースが競合しています。",
			Category: "engagement",
			Action:   "状態を再取得してから再度お試しください。",
		})
	default:
		WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewStoreUnavailableError())
	}
}

package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/taskman/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスのJSON表現。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// StatusForAPIError はエラーコードに対応するHTTPステータスを返す。
// 未知のコードは500として扱う。
func StatusForAPIError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeDuplicateIdentity:
		return http.StatusConflict
	case model.ErrCodeTaskNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidCategory:
		return http.StatusBadRequest
	case model.ErrCodeCSRFTokenInvalid:
		return http.StatusForbidden
	case model.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteAPIError はエラーコードから決まるステータスでエラーレスポンスを書き込む。
// レスポンスはキャッシュさせない。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(StatusForAPIError(apiErr))
	json.NewEncoder(w).Encode(ErrorResponseBody(*apiErr))
}

// WriteInternalServerError は詳細を伏せた500レスポンスを書き込む。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteAPIError(w, model.NewInternalError())
}

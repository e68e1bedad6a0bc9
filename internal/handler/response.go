package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/model"
)

// maxRequestBodyBytes はリクエストボディの上限サイズ。
const maxRequestBodyBytes = 1 << 20

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層のエラーを統一フォーマットのレスポンスに変換する。
// APIError以外は詳細をログのみに残し、500を返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// decodeJSONBody はサイズ上限付きでリクエストボディをデコードする。
// 失敗した場合はINVALID_REQUESTのAPIErrorを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)

	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			return model.NewInvalidRequestError(fmt.Sprintf("リクエストボディは%dバイト以内にしてください", maxBytesErr.Limit))
		case errors.Is(err, io.EOF):
			return model.NewInvalidRequestError("リクエストボディが空です")
		default:
			return model.NewInvalidRequestError("JSONの形式が不正です")
		}
	}
	if dec.More() {
		return model.NewInvalidRequestError("JSONオブジェクトは1つだけ指定してください")
	}
	return nil
}

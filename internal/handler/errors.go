package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/matchday/internal/middleware"
	"github.com/hitoshi/matchday/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの読み取り上限。
const maxRequestBodyBytes = 1 << 20

// errInvalidJSON はリクエストボディがJSONとして解釈できないことを示す。
var errInvalidJSON = errors.New("invalid JSON body")

// decodeJSONBody はリクエストボディをvにデコードする。
// ボディが空の場合はvを変更せずにnilを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		return errInvalidJSON
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errInvalidJSON
	}
	return nil
}

// handleServiceError はサービス層のエラーを {"error": ...} 形式のレスポンスに変換する。
// APIError以外のエラーは内部サーバーエラーとして扱い、詳細はログのみに記録する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// NotFound は未定義のルートに対して {"error": "Not Found"} を返す。
func NotFound(w http.ResponseWriter, r *http.Request) {
	middleware.WriteError(w, http.StatusNotFound, "Not Found")
}

// MethodNotAllowed は許可されないメソッドに対するレスポンスを返す。
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	middleware.WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
}

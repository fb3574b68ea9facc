package middleware

import (
	"mime"
	"net/http"

	"github.com/hitoshi/skygate/internal/model"
)

// NewRequireJSONMiddleware はContent-Typeがapplication/jsonでないリクエストを
// 415で拒否するミドルウェアを返す。charset等のパラメータは許容する。
func NewRequireJSONMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mediaType != "application/json" {
				WriteErrorResponse(w, http.StatusUnsupportedMediaType, model.NewUnsupportedMediaTypeError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import "net/http"

// NewCORSMiddleware はすべてのレスポンスにCORSヘッダーを付与するミドルウェアを返す。
// フィードはどのオリジンのクライアントからも読めるため、オリジンはワイルドカードとする。
// OPTIONSリクエストにはパスに関わらず空の204で応答する。
func NewCORSMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, PATCH, OPTIONS, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "*")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

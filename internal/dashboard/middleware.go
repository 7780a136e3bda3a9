package dashboard

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"cropinv/internal/diag"
	"cropinv/internal/rate"
)

// RequestIDHeader: 请求 ID 头；客户端未提供时生成 uuid。
const RequestIDHeader = "X-Request-ID"

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// logging 每个请求一条 info 事件，并累计 dashboard/request 指标。
func logging(logger *diag.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			dur := time.Since(start).Milliseconds()
			result := "ok"
			if sw.status >= 400 {
				result = "error"
			}
			diag.IncOp("dashboard", "request", result)
			diag.ObserveDuration("dashboard", "request", dur)
			logger.InfoKV("dashboard", "request", map[string]string{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     strconv.Itoa(sw.status),
				"dur_ms":     strconv.FormatInt(dur, 10),
				"request_id": r.Header.Get(RequestIDHeader),
			})
		})
	}
}

// recovery 将 panic 转为 500 JSON 响应。
func recovery(logger *diag.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					diag.IncError("dashboard", string(diag.CodeUnknown))
					logger.ErrorWithKV("dashboard", string(diag.CodeUnknown), fmt.Sprintf("panic: %v", v), nil, "",
						map[string]string{"path": r.URL.Path, "request_id": r.Header.Get(RequestIDHeader)})
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey 取远端 IP；/healthz 不计入。
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// limit 超额时返回 429 并附 Retry-After（秒，向上取整）。
func limit(g *rate.Gate, logger *diag.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !g.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}
			key := clientKey(r)
			ok, wait := g.Allow(key)
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			diag.IncOp("dashboard", "limit", "rejected")
			logger.WarnWith("dashboard", "rate_limited", "too many requests", "",
				map[string]string{"client": key, "path": r.URL.Path, "request_id": r.Header.Get(RequestIDHeader)})
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "too many requests")
		})
	}
}

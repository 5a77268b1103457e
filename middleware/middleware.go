package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"lendingapp/utils"

	"github.com/go-chi/cors"
)

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Limiter - счетчик запросов в памяти процесса или в Redis
type Limiter interface {
	Limit() int
	Consume(ctx context.Context, key string) (allowed bool, remaining int, resetAt time.Time, err error)
}

// RateLimit ограничивает частоту запросов с одного IP.
// Сбой хранилища лимитов не блокирует запросы.
func RateLimit(limiter Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Получаем IP-адрес клиента
			clientIP := clientIP(r)

			allowed, remaining, resetAt, err := limiter.Consume(r.Context(), clientIP)
			if err != nil {
				utils.LogError("Ошибка проверки лимита для %s: %v", clientIP, err)
				next.ServeHTTP(w, r)
				return
			}

			// Добавляем заголовки с информацией о лимитах
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				utils.LogDebug("Превышен лимит запросов для %s", clientIP)
				w.Header().Set("Retry-After", resetAt.UTC().Format(http.TimeFormat))
				writeError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Logger логирует запрос и записывает метрики
func Logger(metrics *utils.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Начало запроса
			startTime := time.Now()

			lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(lrw, r)

			// Время выполнения
			duration := time.Since(startTime)
			metrics.RecordRequest(duration, lrw.statusCode >= http.StatusInternalServerError)

			// Логируем информацию о запросе
			utils.LogInfo("Request: %s %s - Status: %d - Duration: %v",
				r.Method,
				r.URL.Path,
				lrw.statusCode,
				duration,
			)
		})
	}
}

// Recovery перехватывает панику обработчика
func Recovery(metrics *utils.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					// Логируем панику
					utils.LogError("Panic recovered: %v\n%s", rec, debug.Stack())
					metrics.RecordCriticalError(fmt.Errorf("panic: %v", rec))

					writeError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// CORS разрешает запросы с перечисленных источников
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

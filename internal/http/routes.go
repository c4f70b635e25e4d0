package httpx

import (
	"log/slog"
	"net/http"

	"github.com/assesskit/reportgen/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs   *service.JobService
	Logger *slog.Logger // optional
}

// NewRouter creates and configures the HTTP router for the report API.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	reportHandlers := &ReportHandlers{Svc: services.Jobs}

	mux.HandleFunc("POST /api/reports", reportHandlers.SubmitReport)
	mux.HandleFunc("GET /api/reports/{id}/status", reportHandlers.GetStatus)
	mux.HandleFunc("POST /api/reports/{id}/cancel", reportHandlers.CancelJob)
	mux.HandleFunc("GET /api/reports/stats", reportHandlers.Stats)
	mux.HandleFunc("POST /api/admin/cleanup", reportHandlers.Cleanup)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	if services.Logger != nil {
		return requestLogger(services.Logger, mux)
	}
	return mux
}

// requestLogger logs each request at debug level.
func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
		)
	})
}

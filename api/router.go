package api

import (
	"net/http"
	"time"

	"github.com/0xcafe-io/iz"
	"github.com/google/uuid"
	"github.com/qwertyz15/expense-app/internal/contextutil"
	"github.com/qwertyz15/expense-app/logging"
	"github.com/sirupsen/logrus"
)

const TraceHeader = "X-Trace-ID"

func NewRouter(api *Api) http.Handler {
	server := http.NewServeMux()

	server.HandleFunc("GET /health", iz.Bind(api.HealthHandler))

	// AUTH ENDPOINTS.
	server.HandleFunc("POST /api/auth/signup", iz.Bind(api.SignupHandler)) // Create User
	server.HandleFunc("POST /api/auth/login", iz.Bind(api.LoginHandler))   // Issue access token
	server.HandleFunc("GET /api/auth/me", iz.Bind(api.MeHandler))          // Current user
	server.HandleFunc("DELETE /api/auth/me", iz.Bind(api.DeleteMeHandler)) // Remove account

	// CATEGORY ENDPOINTS.
	server.HandleFunc("POST /api/categories", iz.Bind(api.SaveCategoryHandler))
	server.HandleFunc("GET /api/categories", iz.Bind(api.ListCategoriesHandler))
	server.HandleFunc("PUT /api/categories/{id}", iz.Bind(api.UpdateCategoryHandler))
	server.HandleFunc("DELETE /api/categories/{id}", iz.Bind(api.DeleteCategoryHandler))

	// EXPENSE ENDPOINTS.
	server.HandleFunc("POST /api/expenses", iz.Bind(api.SaveExpenseHandler))
	server.HandleFunc("GET /api/expenses", iz.Bind(api.ListExpensesHandler)) // category_id, start_date, end_date
	server.HandleFunc("GET /api/expenses/daily", iz.Bind(api.DailyTotalsHandler))
	server.HandleFunc("PUT /api/expenses/{id}", iz.Bind(api.UpdateExpenseHandler))
	server.HandleFunc("DELETE /api/expenses/{id}", iz.Bind(api.DeleteExpenseHandler))

	// BUDGET ENDPOINTS.
	server.HandleFunc("POST /api/budgets", iz.Bind(api.SaveBudgetHandler))
	server.HandleFunc("GET /api/budgets", iz.Bind(api.ListBudgetsHandler))
	server.HandleFunc("DELETE /api/budgets/{id}", iz.Bind(api.DeleteBudgetHandler))

	// REPORT ENDPOINTS.
	server.HandleFunc("GET /api/reports/dashboard", iz.Bind(api.DashboardHandler))

	return Trace(server)
}

// Trace tags every request with a trace id, echoes it back in
// X-Trace-ID and logs the outcome.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		r = r.WithContext(contextutil.WithTraceID(r.Context(), traceID))
		w.Header().Set(TraceHeader, traceID)

		fields := logrus.Fields{
			"trace_id": traceID,
			"method":   r.Method,
			"path":     r.URL.Path,
		}
		logging.Logger.WithFields(fields).Debug("request started")

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		entry := logging.Logger.WithFields(fields).WithFields(logrus.Fields{
			"status":      rw.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		switch {
		case rw.status >= 500:
			entry.Error("request failed")
		case rw.status >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request completed")
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

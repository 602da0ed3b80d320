package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/example/confidential-ledger/internal/security"
	"github.com/example/confidential-ledger/pkg/audit"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Auditor is the slice of the audit trail the HTTP layer needs.
type Auditor interface {
	Append(kind string, transactionID uint64, payload string) *audit.LogEntry
}

// AuditMiddleware appends one tamper-evident entry per request. Only
// routing metadata goes in; bodies carry proofs and ciphertexts and stay
// out of the trail.
func AuditMiddleware(a Auditor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			start := time.Now()
			next.ServeHTTP(sw, r)
			dur := time.Since(start)

			cid := security.CorrelationIDFromContext(r.Context())
			payload := fmt.Sprintf("cid=%s method=%s path=%s status=%d dur_ms=%d", cid, r.Method, r.URL.Path, sw.status, dur.Milliseconds())
			a.Append("http_request", 0, payload)
		})
	}
}

package progress

import (
	"net/http"

	"readtrack/internal/handler/http/middleware"
	"readtrack/pkg/ratelimit"
)

// Register registers the progress commit endpoint with the given mux.
// The chain per request is: identity, then the per-user request budget,
// then the handler. The stricter reward budget is consumed inside the
// engine, only at the point where a reward would otherwise be granted.
func Register(mux *http.ServeMux, svc Committer, identity *middleware.Identity, limiter middleware.BudgetDecider, requestBudget ratelimit.Budget) {
	chain := func(h http.Handler) http.Handler {
		return identity.Authn(middleware.UserBudget(limiter, requestBudget)(h))
	}

	mux.Handle("POST /entries/{id}/progress", chain(CommitHandler{Svc: svc}))
}

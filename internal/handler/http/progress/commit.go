package progress

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"readtrack/internal/domain/entity"
	"readtrack/internal/handler/http/middleware"
	"readtrack/internal/handler/http/pathutil"
	"readtrack/internal/handler/http/respond"
	"readtrack/internal/observability/logging"
	progUC "readtrack/internal/usecase/progress"
)

// Committer is the slice of the progress engine the handler needs.
type Committer interface {
	Commit(ctx context.Context, req progUC.Request) (*progUC.Result, error)
}

// CommitHandler handles POST /entries/{id}/progress: the atomic
// "mark unit N read" commit with reward and backfill semantics.
type CommitHandler struct{ Svc Committer }

func (h CommitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respond.SafeError(w, http.StatusUnauthorized,
			errors.New("authentication required"))
		return
	}

	entryID, err := pathutil.ParseID(r.PathValue("id"))
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}

	var req struct {
		UnitNumber      int    `json:"unit_number"`
		UnitSlug        string `json:"unit_slug"`
		IsRead          *bool  `json:"is_read"`
		ClientTimestamp string `json:"client_timestamp"`
		DeviceID        string `json:"device_id"`
		SourceUsed      string `json:"source_used"`
		ReadDurationMS  int64  `json:"read_duration_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	if req.IsRead == nil {
		respond.SafeError(w, http.StatusBadRequest,
			errors.New("is_read is required"))
		return
	}

	var clientTS time.Time
	if req.ClientTimestamp != "" {
		clientTS, err = time.Parse(time.RFC3339, req.ClientTimestamp)
		if err != nil {
			respond.SafeError(w, http.StatusBadRequest,
				errors.New("client_timestamp must be in RFC3339 format"))
			return
		}
	}
	if req.ReadDurationMS < 0 {
		respond.SafeError(w, http.StatusBadRequest,
			errors.New("read_duration_ms cannot be negative"))
		return
	}

	res, err := h.Svc.Commit(r.Context(), progUC.Request{
		UserID:          userID,
		EntryID:         entryID,
		UnitNumber:      req.UnitNumber,
		UnitSlug:        req.UnitSlug,
		IsRead:          *req.IsRead,
		ClientTimestamp: clientTS,
		DeviceID:        req.DeviceID,
		SourceUsed:      req.SourceUsed,
		ReadDuration:    time.Duration(req.ReadDurationMS) * time.Millisecond,
	})
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger := logging.WithRequestID(r.Context(), slog.Default())
			logger.Warn("progress commit failed",
				slog.Int64("entry_id", entryID),
				slog.Any("error", err))
		}
		respond.SafeError(w, status, err)
		return
	}

	respond.JSON(w, http.StatusOK, toCommitResponse(res))
}

// statusFor maps engine errors to HTTP status codes. Transient failures are
// 503 so clients retry; everything terminal is a client error.
func statusFor(err error) int {
	var vErr *entity.ValidationError
	switch {
	case errors.Is(err, progUC.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, progUC.ErrInvalidUnit),
		errors.Is(err, entity.ErrInvalidInput),
		errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, progUC.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, progUC.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, progUC.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

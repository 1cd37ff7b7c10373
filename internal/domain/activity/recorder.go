package activity

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mediease/mediease/internal/platform/metrics"
)

type ipKey struct{}

// WithClientIP stores the caller's address for entries recorded under ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

func clientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ipKey{}).(string)
	return ip
}

// CaptureClientIP copies echo's RealIP into the request context.
func CaptureClientIP() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(WithClientIP(req.Context(), c.RealIP())))
			return next(c)
		}
	}
}

// Recorder appends activity entries. A failed write never fails the action
// that produced it: the error is logged and counted, then dropped.
type Recorder struct {
	repo    Repository
	logger  zerolog.Logger
	timeout time.Duration
}

func NewRecorder(repo Repository, logger zerolog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger, timeout: 5 * time.Second}
}

// Record writes one entry for userID (0 for anonymous). It detaches from
// request cancellation because it runs after the business change committed.
func (r *Recorder) Record(ctx context.Context, userID int64, action, details string) {
	if r == nil || r.repo == nil {
		return
	}

	e := &Entry{Action: action, Details: details, IPAddress: clientIP(ctx)}
	if userID != 0 {
		e.UserID = &userID
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.repo.Append(wctx, e); err != nil {
		metrics.RecordActivityWriteFailure()
		r.logger.Warn().Err(err).
			Int64("user_id", userID).
			Str("action", action).
			Msg("activity log write failed")
	}
}

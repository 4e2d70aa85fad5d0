package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/eventprize-backend/api/responses"
	pkgerrors "github.com/angelmondragon/eventprize-backend/pkg/errors"
	"github.com/angelmondragon/eventprize-backend/pkg/logger"
)

// RateCounter counts hits in a fixed window shared across API replicas.
type RateCounter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy is a named fixed-window limit. A zero window or limit
// disables it.
type RateLimitPolicy struct {
	Name   string
	Window time.Duration
	Limit  int64
}

func NewRateLimitPolicy(name string, window time.Duration, limit int) RateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}
	return RateLimitPolicy{Name: name, Window: window, Limit: int64(limit)}
}

func (p RateLimitPolicy) enabled() bool {
	return p.Window > 0 && p.Limit > 0
}

// retryAfter is the window in whole seconds, at least one.
func (p RateLimitPolicy) retryAfter() string {
	return strconv.Itoa(max(1, int(math.Ceil(p.Window.Seconds()))))
}

// RateLimit counts requests per authenticated user, falling back to the
// client address for anonymous callers. The router runs chi's RealIP first,
// so RemoteAddr already reflects the proxy headers.
func RateLimit(policy RateLimitPolicy, counter RateCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || counter == nil {
			return next
		}
		limit := strconv.FormatInt(policy.Limit, 10)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			subject := rateSubject(r)

			allowed, count, err := counter.FixedWindowAllow(ctx, policy.Name+":"+subject, policy.Limit, policy.Window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(0, policy.Limit-count), 10))
			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			if logg != nil {
				logg.Warn(logg.WithFields(ctx, map[string]any{
					"policy":   policy.Name,
					"subject":  subject,
					"attempts": count,
					"limit":    policy.Limit,
					"window":   policy.Window.String(),
				}), "rate_limit.blocked")
			}
			w.Header().Set("Retry-After", policy.retryAfter())
			responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
		})
	}
}

func rateSubject(r *http.Request) string {
	if userID := UserIDFromContext(r.Context()); userID != "" {
		return "user:" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

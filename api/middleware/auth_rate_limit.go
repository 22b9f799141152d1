package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/angelmondragon/nursecall-backend/api/responses"
	"github.com/angelmondragon/nursecall-backend/internal/auth"
	pkgerrors "github.com/angelmondragon/nursecall-backend/pkg/errors"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
)

// emailPeekLimit bounds how much of a body is read to find the email.
const emailPeekLimit = 16 << 10

// RateLimitStore counts attempts in a fixed window.
type RateLimitStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// AuthRateLimitPolicy caps attempts per client IP and per submitted email
// within one fixed window. A zero limit disables that dimension.
type AuthRateLimitPolicy struct {
	Name     string
	Window   time.Duration
	PerIP    int
	PerEmail int
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{Name: name, Window: window, PerIP: ipLimit, PerEmail: emailLimit}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.Window > 0 && (p.PerIP > 0 || p.PerEmail > 0)
}

func (p AuthRateLimitPolicy) key(dimension, id string) string {
	return "rl:" + p.Name + ":" + dimension + ":" + id
}

type limitCheck struct {
	dimension string
	id        string
	limit     int
}

// AuthRateLimit rejects identity-provider calls over the policy with the
// provider's too-many-requests reason, localized for the caller.
func AuthRateLimit(policy AuthRateLimitPolicy, store RateLimitStore, locale language.Tag, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var checks []limitCheck
			if policy.PerIP > 0 {
				if ip := clientIP(r); ip != "" {
					checks = append(checks, limitCheck{dimension: "ip", id: ip, limit: policy.PerIP})
				}
			}
			if policy.PerEmail > 0 {
				email, err := peekEmail(r)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
					return
				}
				if email != "" {
					checks = append(checks, limitCheck{dimension: "email", id: hashValue(email), limit: policy.PerEmail})
				}
			}

			for _, c := range checks {
				count, err := store.IncrWithTTL(ctx, policy.key(c.dimension, c.id), policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count > int64(c.limit) {
					reject(w, r, policy, c, count, locale, logg)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, policy AuthRateLimitPolicy, c limitCheck, count int64, locale language.Tag, logg *logger.Logger) {
	ctx := r.Context()
	retryAfter := strconv.Itoa(int(policy.Window.Round(time.Second).Seconds()))
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":      policy.Name,
			"dimension":   c.dimension,
			"subject":     c.id,
			"attempts":    count,
			"limit":       c.limit,
			"retry_after": retryAfter,
		}), "auth.rate_limit.blocked")
	}
	tag := auth.MatchLocale(r.Header.Get("Accept-Language"), locale)
	w.Header().Set("Retry-After", retryAfter)
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, auth.Message(auth.ReasonTooManyRequests, tag)).
		WithDetails(map[string]string{"reason": string(auth.ReasonTooManyRequests)}))
}

// peekEmail reads the start of a JSON body for its "email" member and puts
// everything back for the handler.
func peekEmail(r *http.Request) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	head, err := io.ReadAll(io.LimitReader(r.Body, emailPeekLimit))
	if err != nil {
		return "", err
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}

	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(head, &body) != nil {
		return "", nil
	}
	return strings.ToLower(strings.TrimSpace(body.Email)), nil
}

// clientIP prefers the first proxy hop, as the API runs behind a load balancer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:16])
}

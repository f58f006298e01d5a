package handlers

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fund-balance-service/internal/access"
	"fund-balance-service/internal/apperrors"
	"fund-balance-service/internal/audit"
	"fund-balance-service/internal/models"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusRecorder captures the status code for the access log line.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware assigns a request id (or keeps the caller's) and logs
// one line per request.
func loggingMiddleware(log *zap.Logger, ips ipResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID)))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", reqID),
				zap.String("ip", ips.clientIP(r)),
			}
			switch {
			case rw.status >= 500:
				log.Error("http request", fields...)
			case rw.status >= 400:
				log.Info("http request", fields...)
			default:
				log.Debug("http request", fields...)
			}
		})
	}
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func recoveryMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic recovered in handler",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
						zap.String("request_id", requestIDFrom(r.Context())))
					respondWithStatus(w, http.StatusInternalServerError, errInternal)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ipResolver decides which address identifies the caller. Forwarded
// headers count only when the socket peer is a trusted proxy.
type ipResolver struct {
	trusted []netip.Prefix
}

func (p ipResolver) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP walks X-Forwarded-For from the nearest hop outwards and stops
// at the first address that is not one of our proxies.
func (p ipResolver) clientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !p.isTrusted(peer) {
		return peer
	}

	var hops []string
	for _, header := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(header, ",")...)
	}

	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if _, err := netip.ParseAddr(hop); err != nil {
			break
		}
		client = hop
		if !p.isTrusted(hop) {
			break
		}
	}
	return client
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps one token bucket per client address.
type ipRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rps       rate.Limit
	burst     int
	lastSweep time.Time
	ips       ipResolver
}

func newIPRateLimiter(rps float64, burst int, ips ipResolver) *ipRateLimiter {
	return &ipRateLimiter{
		visitors:  make(map[string]*visitor),
		rps:       rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
		ips:       ips,
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for key, v := range l.visitors {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(l.visitors, key)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.Allow()
}

var errRateLimited = apperrors.New(apperrors.KindConflict, "RATE_LIMITED",
	"عدد الطلبات كبير، يرجى المحاولة لاحقا", "Too many requests, slow down")

func (l *ipRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(l.ips.clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			respondWithStatus(w, http.StatusTooManyRequests, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var errUnauthenticated = apperrors.New(apperrors.KindAccessDenied, "AUTHENTICATION_REQUIRED",
	"يجب تسجيل الدخول", "Authentication required")

// authMiddleware resolves the bearer token into a principal.
func authMiddleware(auth *access.Authenticator, ips ipResolver, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found {
				token = ""
			}

			principal, err := auth.Parse(strings.TrimSpace(token))
			if err != nil {
				log.Debug("rejected bearer token", zap.Error(err), zap.String("ip", ips.clientIP(r)))
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				respondWithStatus(w, http.StatusUnauthorized, errUnauthenticated)
				return
			}

			principal.IP = ips.clientIP(r)
			principal.RequestID = requestIDFrom(r.Context())
			next.ServeHTTP(w, r.WithContext(access.WithPrincipal(r.Context(), principal)))
		})
	}
}

// AccessLogger persists gate decisions.
type AccessLogger interface {
	LogAccess(e audit.AccessEntry)
}

// financialGate only lets roles with financial access through and records
// each decision under operation.
type financialGate struct {
	logger AccessLogger
	log    *zap.Logger
}

func (g *financialGate) require(operation string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := access.FromContext(r.Context())
		if !ok {
			respondWithStatus(w, http.StatusUnauthorized, errUnauthenticated)
			return
		}

		entry := audit.AccessEntry{
			UserID:    principal.UserID,
			Operation: operation,
			Role:      string(principal.Role),
			Metadata: map[string]any{
				"request_id": principal.RequestID,
				"method":     r.Method,
				"path":       r.URL.Path,
			},
			IP: principal.IP,
		}

		if !access.HasFinancialAccess(principal.Role) {
			entry.Result = models.AccessDenied
			g.logger.LogAccess(entry)
			g.log.Warn("financial access denied",
				zap.String("user_id", principal.UserID),
				zap.String("role", string(principal.Role)),
				zap.String("operation", operation))
			respondWithError(w, g.log, apperrors.AccessDenied("Financial access requires super_admin or financial_manager role"))
			return
		}

		entry.Result = models.AccessGranted
		g.logger.LogAccess(entry)
		next(w, r)
	})
}

func principalFrom(r *http.Request) *access.Principal {
	p, _ := access.FromContext(r.Context())
	return p
}

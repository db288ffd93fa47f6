package server

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const maxRequestBytes = 3000

type traceContextKey struct{}
type traceContext struct {
	traceID string
}

func setTraceContext(ctx context.Context, tc traceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}
func getTraceContext(ctx context.Context) traceContext {
	tc, _ := ctx.Value(traceContextKey{}).(traceContext)
	return tc
}

func (s Server) maxBytesMw(next http.Handler) http.Handler {
	return http.MaxBytesHandler(next, maxRequestBytes)
}

func (s Server) loggingMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		traceID := uuid.NewString()
		s.Logger.Debugf("loggingMw: New incoming request %s %s from %s, UA: %s, Host: %#v, TraceID: %s",
			r.Method, r.URL.Path, r.RemoteAddr, r.UserAgent(), r.Host, traceID)

		defer func() {
			if re := recover(); re != nil {
				s.Logger.Errorf("loggingMw: Handler crashed, err: %v, TraceID: %s, stack trace:\n%s", re, traceID, debug.Stack())
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()

		tc := traceContext{traceID: traceID}
		next.ServeHTTP(w, r.WithContext(setTraceContext(r.Context(), tc)))

		s.Logger.Tracef("loggingMw: Incoming request %s %s took %dms, TraceID: %s",
			r.Method, r.URL.Path, time.Since(start).Milliseconds(), traceID)
	})
}

func (s Server) authMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tid := getTraceContext(r.Context()).traceID
		lt := r.Header.Get("Authorization")
		if !strings.HasPrefix(lt, "Bearer ") {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		lt = strings.TrimPrefix(lt, "Bearer ")
		token, err := jwt.Parse([]byte(lt), jwt.WithKey(jwa.HS256, s.AuthSecretKey), jwt.WithValidate(true))
		if err != nil {
			s.Logger.Debugf("authMw: Failed to validate login token, err: %v, TraceID: %s", err, tid)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		if token.Subject() != adminSubject {
			s.Logger.Debugf("authMw: Valid token with unexpected subject: %#v, TraceID: %s", token.Subject(), tid)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

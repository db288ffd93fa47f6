package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminSubject  = "admin"
	tokenIssuer   = "pricewatch"
	tokenLifetime = 24 * time.Hour
)

func (s Server) adminLogin() http.HandlerFunc {
	type request struct {
		Password string `json:"password"`
	}
	type response struct {
		LoginToken string    `json:"login_token"`
		ExpiresAt  time.Time `json:"expires_at"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		tid := getTraceContext(r.Context()).traceID
		req := request{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.Logger.Debugf("adminLogin: Error decoding JSON, err: %v, TraceID: %s", err, tid)
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		if len(s.AdminPasswordHash) == 0 {
			s.Logger.Infof("adminLogin: Login attempted but no admin password is configured, TraceID: %s", tid)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		if err := bcrypt.CompareHashAndPassword(s.AdminPasswordHash, []byte(req.Password)); err != nil {
			s.Logger.Debugf("adminLogin: Error comparing hash and password, err: %v, TraceID: %s", err, tid)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		lt, exp, err := s.createLoginToken()
		if err != nil {
			s.Logger.Errorf("adminLogin: Error creating login token, err: %v, TraceID: %s", err, tid)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		s.Logger.Infof("adminLogin: Admin logged in from %s, TraceID: %s", r.RemoteAddr, tid)
		s.writeJsonResponse(w, response{LoginToken: lt, ExpiresAt: exp}, http.StatusOK)
	}
}

func (s Server) createLoginToken() (string, time.Time, error) {
	now := time.Now()
	t, err := jwt.NewBuilder().
		Subject(adminSubject).
		Issuer(tokenIssuer).
		IssuedAt(now).
		Expiration(now.Add(tokenLifetime)).
		Build()
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "error building login token")
	}
	lt, err := jwt.Sign(t, jwt.WithKey(jwa.HS256, s.AuthSecretKey))
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "error signing login token")
	}
	return string(lt), t.Expiration(), nil
}

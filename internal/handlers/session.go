package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lumen-lms/apiserver/config"
	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/internal/logger"
	"github.com/lumen-lms/apiserver/internal/services"
	"github.com/lumen-lms/apiserver/types"
)

type contextKey string

const (
	contextUserKey    contextKey = "user"
	contextSessionKey contextKey = "session"
)

// sessionClaims is the signed cookie payload. The session row it names is
// re-checked on every request.
type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionManager issues, reads and clears the session cookie.
type SessionManager struct {
	auth   *services.AuthService
	secret []byte
	cfg    config.SessionConfig
	log    *logger.Logger
	now    func() time.Time
}

func NewSessionManager(auth *services.AuthService, cfg config.SessionConfig, log *logger.Logger) *SessionManager {
	return &SessionManager{
		auth:   auth,
		secret: []byte(cfg.Secret),
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

func (m *SessionManager) issue(w http.ResponseWriter, session types.Session) error {
	claims := sessionClaims{
		SessionID: session.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(session.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(session.LoginAt),
			ExpiresAt: jwt.NewNumericDate(session.LoginAt.Add(m.cfg.TTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return apperr.Internal(err, "failed to sign session")
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *SessionManager) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// read returns the session id and user id the cookie claims. A missing,
// forged or expired cookie is an authentication error.
func (m *SessionManager) read(r *http.Request) (string, int64, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return "", 0, apperr.Unauthenticated("not authenticated")
	}
	claims := sessionClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, &claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil || !token.Valid {
		return "", 0, apperr.Unauthenticated("not authenticated")
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || claims.SessionID == "" {
		return "", 0, apperr.Unauthenticated("not authenticated")
	}
	return claims.SessionID, userID, nil
}

// RequireAuth rejects requests without a live session and injects the
// caller into the request context.
func (m *SessionManager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, userID, err := m.read(r)
		if err != nil {
			writeError(w, r, m.log, err)
			return
		}
		user, session, err := m.auth.Authenticate(r.Context(), sessionID, userID)
		if err != nil {
			if apperr.Is(err, apperr.KindAuthentication) {
				m.clear(w)
			}
			writeError(w, r, m.log, err)
			return
		}
		ctx := context.WithValue(r.Context(), contextUserKey, user)
		ctx = context.WithValue(ctx, contextSessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUser(ctx context.Context) (types.User, error) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	if !ok || user.ID == 0 {
		return types.User{}, apperr.Unauthenticated("not authenticated")
	}
	return user, nil
}

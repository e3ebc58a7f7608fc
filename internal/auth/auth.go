// Package auth holds the console login cookie. The cookie only proves which
// staff member opened this browser session; the API token itself stays in the
// process-wide session.
package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/example/tablestaff/internal/session"
	"github.com/gorilla/securecookie"
)

const (
	cookieName = "tablestaff_session"
	cookieAge  = 14 * 24 * time.Hour
)

type Store struct {
	sc      *securecookie.SecureCookie
	session *session.Session
}

type ctxKey string

const userIDKey ctxKey = "userID"

func NewStore(sess *session.Session, hashKey, blockKey []byte) *Store {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(cookieAge.Seconds()))
	return &Store{sc: sc, session: sess}
}

type Session struct {
	UserID string
}

func (s *Store) SetSession(w http.ResponseWriter, r *http.Request, userID string) error {
	val := map[string]string{"uid": userID, "v": "1"}
	encoded, err := s.sc.Encode(cookieName, val)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(cookieAge.Seconds()),
	})
	return nil
}

func (s *Store) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Store) GetSession(r *http.Request) (Session, bool) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return Session{}, false
	}
	val := map[string]string{}
	if err := s.sc.Decode(cookieName, c.Value, &val); err != nil {
		return Session{}, false
	}
	uid := val["uid"]
	if uid == "" {
		return Session{}, false
	}
	return Session{UserID: uid}, true
}

// RequireAuth lets a request through only when its cookie names the user the
// live API session belongs to. A stale cookie (after logout or a rejected
// token) is cleared.
func (s *Store) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.GetSession(r)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		st := s.session.Snapshot()
		if !st.Authenticated || st.UserID() != sess.UserID {
			s.ClearSession(w)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, sess.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(userIDKey).(string)
	return uid, ok && uid != ""
}

package web

import (
	"log"
	"net/http"

	"github.com/goji/httpauth"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

const (
	cookieName  = "segtrain"
	cookieValue = "authenticated"
)

type AuthMiddleware struct {
	store *sessions.CookieStore
	opts  httpauth.AuthOptions
}

// Setup new middleware for authenticating requests against the configured user and password.
// Session keys are regenerated each time the server starts.
func NewAuthMiddleware(user, password string) AuthMiddleware {
	hashKey := securecookie.GenerateRandomKey(32)
	blockKey := securecookie.GenerateRandomKey(32)
	store := sessions.NewCookieStore(hashKey, blockKey)
	store.Options = &sessions.Options{Path: "/", HttpOnly: true}
	return AuthMiddleware{
		store: store,
		opts:  httpauth.AuthOptions{Realm: "Restricted", User: user, Password: password},
	}
}

// If the session is not authenticated then use basic auth to login and save the session cookie.
func (mw AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess, err := mw.store.Get(r, cookieName); err == nil {
			if ok, _ := sess.Values[cookieValue].(bool); ok {
				next.ServeHTTP(w, r)
				return
			}
		}
		httpauth.BasicAuth(mw.opts)(mw.setCookie(next)).ServeHTTP(w, r)
	})
}

func (mw AuthMiddleware) setCookie(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := mw.store.Get(r, cookieName)
		sess.Values[cookieValue] = true
		if err := sess.Save(r, w); err != nil {
			log.Println("error saving session:", err)
		} else {
			log.Println("auth", mw.opts.User, r.RemoteAddr)
		}
		h.ServeHTTP(w, r)
	})
}

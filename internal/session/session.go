package session

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Cookie names shared with the page scripts.
const (
	TokenCookieName = "guest_token"
	NameCookieName  = "guest_name"
	IDCookieName    = "guest_id"
)

// DefaultMaxAge is the absolute lifetime of every session cookie.
const DefaultMaxAge = 30 * 24 * time.Hour

var (
	ErrMissingSession   = errors.New("session: guest token cookie missing")
	ErrMalformedSession = errors.New("session: malformed session cookie")
)

// Session is the guest identity held by the browser. It is parsed once per request
// and handed to handlers rather than re-read from cookie text.
type Session struct {
	Token   string
	GuestID int64
	Name    string
}

// EncodeName percent-encodes a display name the way encodeURIComponent does for the
// characters that matter in a cookie value: everything outside [A-Za-z0-9-_.~] is escaped.
func EncodeName(name string) string {
	return strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
}

// DecodeName reverses EncodeName.
func DecodeName(encoded string) (string, error) {
	return url.PathUnescape(encoded)
}

// EstablisherConfig describes cookie attributes for issued sessions.
type EstablisherConfig struct {
	Secure bool
	MaxAge time.Duration
}

// Establisher writes session cookies.
type Establisher struct {
	secure bool
	maxAge time.Duration
}

// NewEstablisher constructs an Establisher, defaulting the lifetime to DefaultMaxAge.
func NewEstablisher(cfg EstablisherConfig) *Establisher {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Establisher{secure: cfg.Secure, maxAge: maxAge}
}

// Establish attaches the token, name and id cookies to the response.
// Only the token cookie is hidden from page scripts.
func (e *Establisher) Establish(w http.ResponseWriter, token string, guestID int64, name string) {
	maxAgeSeconds := int(e.maxAge.Seconds())
	http.SetCookie(w, e.cookie(TokenCookieName, token, maxAgeSeconds, true))
	http.SetCookie(w, e.cookie(NameCookieName, EncodeName(name), maxAgeSeconds, false))
	http.SetCookie(w, e.cookie(IDCookieName, strconv.FormatInt(guestID, 10), maxAgeSeconds, false))
}

// Clear expires all session cookies.
func (e *Establisher) Clear(w http.ResponseWriter) {
	http.SetCookie(w, e.cookie(TokenCookieName, "", -1, true))
	http.SetCookie(w, e.cookie(NameCookieName, "", -1, false))
	http.SetCookie(w, e.cookie(IDCookieName, "", -1, false))
}

func (e *Establisher) cookie(name, value string, maxAgeSeconds int, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAgeSeconds,
		Secure:   e.secure,
		HttpOnly: httpOnly,
		SameSite: http.SameSiteLaxMode,
	}
}

// FromRequest builds the Session carried by the request cookies. A request without the
// token cookie has no session; a token without a valid name and id is malformed.
func FromRequest(r *http.Request) (Session, error) {
	if r == nil {
		return Session{}, ErrMissingSession
	}
	tokenCookie, err := r.Cookie(TokenCookieName)
	if err != nil || strings.TrimSpace(tokenCookie.Value) == "" {
		return Session{}, ErrMissingSession
	}

	current := Session{Token: strings.TrimSpace(tokenCookie.Value)}

	nameCookie, err := r.Cookie(NameCookieName)
	if err != nil {
		return Session{}, fmt.Errorf("%w: name cookie missing", ErrMalformedSession)
	}
	name, err := DecodeName(nameCookie.Value)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}
	if strings.TrimSpace(name) == "" {
		return Session{}, fmt.Errorf("%w: empty guest name", ErrMalformedSession)
	}
	current.Name = name

	idCookie, err := r.Cookie(IDCookieName)
	if err != nil {
		return Session{}, fmt.Errorf("%w: id cookie missing", ErrMalformedSession)
	}
	guestID, err := strconv.ParseInt(strings.TrimSpace(idCookie.Value), 10, 64)
	if err != nil || guestID <= 0 {
		return Session{}, fmt.Errorf("%w: guest id %q", ErrMalformedSession, idCookie.Value)
	}
	current.GuestID = guestID

	return current, nil
}

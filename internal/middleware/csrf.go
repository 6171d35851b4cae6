package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	csrfFormField  = "csrf_token"
)

// Errors passed to the CSRF failure handler.
var (
	ErrCSRFMissing = errors.New("CSRF token missing")
	ErrCSRFInvalid = errors.New("CSRF token invalid")
)

type csrfKey struct{}

// CSRFToken returns the token issued for the request, for embedding in pages.
func CSRFToken(ctx context.Context) string {
	token, _ := ctx.Value(csrfKey{}).(string)
	return token
}

// CSRF implements the double-submit cookie pattern with HMAC-signed tokens.
type CSRF struct {
	secret     []byte
	cookieName string
	headerName string
	formField  string
	maxAge     time.Duration
	onFailure  func(w http.ResponseWriter, r *http.Request, err error)
	now        func() time.Time
}

// NewCSRF creates a CSRF middleware using a HMAC-signed token stored in a cookie.
func NewCSRF(secret string) *CSRF {
	secretBytes := []byte(secret)
	if len(secretBytes) == 0 {
		secretBytes = make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			zap.L().Warn("csrf: failed to generate secret, using fallback", zap.Error(err))
			secretBytes = []byte("fallback-insecure-secret")
		} else {
			zap.L().Info("csrf: no secret configured, generated ephemeral secret")
		}
	}

	return &CSRF{
		secret:     secretBytes,
		cookieName: csrfCookieName,
		headerName: csrfHeaderName,
		formField:  csrfFormField,
		maxAge:     24 * time.Hour,
		onFailure: func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusForbidden)
		},
		now: time.Now,
	}
}

// WithMaxAge sets how long an issued token stays valid.
func (c *CSRF) WithMaxAge(d time.Duration) *CSRF {
	if d > 0 {
		c.maxAge = d
	}
	return c
}

// OnFailure replaces the response written when validation fails.
func (c *CSRF) OnFailure(fn func(w http.ResponseWriter, r *http.Request, err error)) *CSRF {
	c.onFailure = fn
	return c
}

func (c *CSRF) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenCookie, err := r.Cookie(c.cookieName)
			cookieToken := ""
			if err == nil {
				cookieToken = tokenCookie.Value
			}

			if cookieToken == "" || !c.validateSignedToken(cookieToken) {
				cookieToken = c.newSignedToken()
				c.setCookie(w, r, cookieToken)
			}
			r = r.WithContext(context.WithValue(r.Context(), csrfKey{}, cookieToken))

			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			// header first: multipart bodies are not parsed here
			requestToken := r.Header.Get(c.headerName)
			if requestToken == "" && isURLEncodedForm(r) {
				requestToken = r.FormValue(c.formField)
			}
			if requestToken == "" {
				c.onFailure(w, r, ErrCSRFMissing)
				return
			}

			if !hmac.Equal([]byte(requestToken), []byte(cookieToken)) || !c.validateSignedToken(requestToken) {
				c.onFailure(w, r, ErrCSRFInvalid)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isURLEncodedForm(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}

func (c *CSRF) setCookie(w http.ResponseWriter, r *http.Request, value string) {
	cookie := &http.Cookie{
		Name:     c.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.maxAge.Seconds()),
		SameSite: http.SameSiteStrictMode,
		Secure:   r.TLS != nil,
		HttpOnly: false,
	}
	http.SetCookie(w, cookie)
}

// Tokens have the form nonce.issued.sig: a random nonce, the unix issue time
// and an HMAC over both. Tokens older than maxAge are rejected and reissued.
func (c *CSRF) newSignedToken() string {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		zap.L().Warn("csrf: nonce generation failed", zap.Error(err))
		binary.BigEndian.PutUint64(raw, uint64(c.now().UnixNano()))
	}
	payload := base64.RawURLEncoding.EncodeToString(raw) + "." + strconv.FormatInt(c.now().Unix(), 10)
	return payload + "." + c.sign(payload)
}

func (c *CSRF) validateSignedToken(value string) bool {
	payload, issued, sig, ok := splitToken(value)
	if !ok || !hmac.Equal([]byte(sig), []byte(c.sign(payload))) {
		return false
	}
	age := c.now().Sub(time.Unix(issued, 0))
	return age >= -time.Minute && age <= c.maxAge
}

func (c *CSRF) sign(payload string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func splitToken(value string) (payload string, issued int64, sig string, ok bool) {
	cut := strings.LastIndexByte(value, '.')
	if cut <= 0 || cut == len(value)-1 {
		return "", 0, "", false
	}
	payload, sig = value[:cut], value[cut+1:]
	nonce, ts, found := strings.Cut(payload, ".")
	if !found || nonce == "" {
		return "", 0, "", false
	}
	issued, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", 0, "", false
	}
	return payload, issued, sig, true
}

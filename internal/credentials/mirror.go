package credentials

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/goalgrid/goalgrid-gateway/internal/config"
	"github.com/goalgrid/goalgrid-gateway/internal/models"
	"golang.org/x/net/publicsuffix"
)

// JarMirror copies the access token into a cookie jar for the API origin,
// which is how the command line client keeps the token cookie in sync.
type JarMirror struct {
	jar         http.CookieJar
	origin      *url.URL
	fallbackTTL time.Duration
}

func NewJarMirror(origin *url.URL, fallbackTTL time.Duration) (*JarMirror, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &JarMirror{jar: jar, origin: origin, fallbackTTL: fallbackTTL}, nil
}

// Jar can be set on an http.Client so that the token cookie is sent along
func (j *JarMirror) Jar() http.CookieJar {
	return j.jar
}

func (j *JarMirror) MirrorCredentials(_ context.Context, pair models.CredentialPair) error {
	j.jar.SetCookies(j.origin, []*http.Cookie{TokenCookie(pair, j.secure(), j.fallbackTTL, time.Now())})
	return nil
}

func (j *JarMirror) ClearCredentials(_ context.Context) error {
	j.jar.SetCookies(j.origin, []*http.Cookie{ExpiredTokenCookie(j.secure())})
	return nil
}

// Token returns the access token currently held by the jar, if any
func (j *JarMirror) Token() (string, bool) {
	for _, cookie := range j.jar.Cookies(j.origin) {
		if cookie.Name == config.TokenCookieName {
			return cookie.Value, true
		}
	}
	return "", false
}

func (j *JarMirror) secure() bool {
	return j.origin.Scheme == "https"
}

// CookieSink collects the token cookie updates for one browser response
type CookieSink struct {
	// Secure is set when the browser reached the server over HTTPS
	Secure  bool
	lock    sync.Mutex
	cookies []*http.Cookie
}

func (s *CookieSink) add(cookie *http.Cookie) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.cookies = append(s.cookies, cookie)
}

// ExpireToken records the removal of the token cookie
func (s *CookieSink) ExpireToken() {
	s.add(ExpiredTokenCookie(s.Secure))
}

// Cookies returns the recorded cookies, the last one wins when written in order
func (s *CookieSink) Cookies() []*http.Cookie {
	s.lock.Lock()
	defer s.lock.Unlock()
	output := make([]*http.Cookie, len(s.cookies))
	copy(output, s.cookies)
	return output
}

type cookieSinkKey struct{}

func WithCookieSink(ctx context.Context, sink *CookieSink) context.Context {
	return context.WithValue(ctx, cookieSinkKey{}, sink)
}

func cookieSinkFrom(ctx context.Context) (*CookieSink, bool) {
	sink, ok := ctx.Value(cookieSinkKey{}).(*CookieSink)
	return sink, ok && sink != nil
}

// ContextMirror writes token cookies into the CookieSink found in the request context.
// Requests without a sink, such as background refreshes, are not mirrored.
type ContextMirror struct {
	FallbackTTL time.Duration
}

func (c ContextMirror) MirrorCredentials(ctx context.Context, pair models.CredentialPair) error {
	if sink, ok := cookieSinkFrom(ctx); ok {
		sink.add(TokenCookie(pair, sink.Secure, c.FallbackTTL, time.Now()))
	}
	return nil
}

func (c ContextMirror) ClearCredentials(ctx context.Context) error {
	if sink, ok := cookieSinkFrom(ctx); ok {
		sink.add(ExpiredTokenCookie(sink.Secure))
	}
	return nil
}

// Package server is the backend-for-frontend of the goal tracking platform. It keeps the
// credentials of each browser session server side and proxies API calls through the gateway.
package server

import (
	"fmt"
	"net/url"

	"github.com/goalgrid/goalgrid-gateway/internal/authapi"
	"github.com/goalgrid/goalgrid-gateway/internal/gateway"
	"github.com/goalgrid/goalgrid-gateway/internal/sessions"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const loginPath string = "/login"

type Server struct {
	apiURL      *url.URL
	uiServerURL *url.URL
	gateway     *gateway.Gateway
	auth        *authapi.Client
	sessions    *sessions.SessionStore
}

type ServerOption func(*Server) error

func WithAPIURL(apiURL *url.URL) ServerOption {
	return func(s *Server) error {
		s.apiURL = apiURL
		return nil
	}
}

func WithUIServerURL(uiServerURL *url.URL) ServerOption {
	return func(s *Server) error {
		s.uiServerURL = uiServerURL
		return nil
	}
}

func WithGateway(gw *gateway.Gateway) ServerOption {
	return func(s *Server) error {
		s.gateway = gw
		return nil
	}
}

func WithAuthClient(auth *authapi.Client) ServerOption {
	return func(s *Server) error {
		s.auth = auth
		return nil
	}
}

func WithSessionStore(store *sessions.SessionStore) ServerOption {
	return func(s *Server) error {
		s.sessions = store
		return nil
	}
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := Server{}
	for _, opt := range options {
		err := opt(&server)
		if err != nil {
			return nil, err
		}
	}
	if server.apiURL == nil {
		return nil, fmt.Errorf("the API URL is not set")
	}
	if server.gateway == nil {
		return nil, fmt.Errorf("gateway not initialized")
	}
	if server.auth == nil {
		return nil, fmt.Errorf("auth API client not initialized")
	}
	if server.sessions == nil {
		return nil, fmt.Errorf("session store not initialized")
	}
	return &server, nil
}

// RegisterHandlers sets up the auth routes, the API proxy and the guarded page routes.
// The common middlewares run before the session middleware on every route.
func (s *Server) RegisterHandlers(e *echo.Echo, commonMiddlewares ...echo.MiddlewareFunc) {
	mws := append([]echo.MiddlewareFunc{}, commonMiddlewares...)
	mws = append(mws, s.sessions.Middleware(), s.cookieSink())

	auth := e.Group("/auth", append(mws, NoCaching)...)
	auth.POST("/login", s.login)
	auth.POST("/register", s.register)
	auth.POST("/logout", s.logout)

	api := e.Group("/api", mws...)
	api.Any("/*", s.proxyAPI)

	if s.uiServerURL != nil {
		pages := append(append([]echo.MiddlewareFunc{}, commonMiddlewares...), RouteGuard(), s.pageProxy())
		e.Group("", pages...)
	}
}

// pageProxy forwards page requests to the UI server
func (s *Server) pageProxy() echo.MiddlewareFunc {
	return middleware.ProxyWithConfig(middleware.ProxyConfig{
		Balancer: middleware.NewRoundRobinBalancer([]*middleware.ProxyTarget{
			{
				Name: s.uiServerURL.String(),
				URL:  s.uiServerURL,
			}}),
		Skipper: func(c echo.Context) bool {
			return isAPIPath(c.Request().URL.Path)
		},
	})
}

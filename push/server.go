package push

import (
	"errors"
	"net/http"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/traf3li/clientops/auth"
	"github.com/traf3li/clientops/observe"
)

// PermissionSend allows sending notifications to any user.
const PermissionSend = "notifications:send"

// ServerConfig configures a Server.
type ServerConfig struct {
	Store         Store
	Authenticator auth.Authenticator

	// Sender is optional; without it the send endpoint answers 503.
	Sender *Sender

	VAPIDPublicKey string
	Observer       *observe.Middleware

	// RequireCSRF enables double-submit protection: safe requests without
	// a token cookie get one, and mutations must echo it in X-CSRF-Token.
	RequireCSRF bool
}

// Server is the subscription API.
type Server struct {
	echo   *echo.Echo
	store  Store
	sender *Sender
	key    string
	log    observe.Logger
}

// NewServer creates the API and registers its routes.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("push: server store is required")
	}
	if cfg.Authenticator == nil {
		return nil, errors.New("push: server authenticator is required")
	}
	if _, err := DecodeVAPIDKey(cfg.VAPIDPublicKey); err != nil {
		return nil, err
	}
	if cfg.Observer == nil {
		cfg.Observer = observe.NewMiddleware(nil, nil, nil)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		store:  cfg.Store,
		sender: cfg.Sender,
		key:    cfg.VAPIDPublicKey,
		log:    cfg.Observer.Logger().With(observe.F("component", "pushd")),
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(echo.WrapMiddleware(func(next http.Handler) http.Handler {
		return cfg.Observer.Handler("pushd", next)
	}))

	authed := echo.WrapMiddleware(auth.RequireIdentity(cfg.Authenticator))
	canSend := echo.WrapMiddleware(auth.RequirePermission(PermissionSend))
	mutation := []echo.MiddlewareFunc{authed}
	if cfg.RequireCSRF {
		e.Use(issueCSRF)
		mutation = append(mutation, echo.WrapMiddleware(auth.RequireCSRF))
	}

	e.GET("/api/users/vapid-public-key", s.getPublicKey)
	e.GET("/api/users/push-subscription", s.getSubscription, authed)
	e.POST("/api/users/push-subscription", s.saveSubscription, mutation...)
	e.DELETE("/api/users/push-subscription", s.deleteSubscription, mutation...)
	e.GET("/api/users/notification-preferences", s.getPreferences, authed)
	e.PUT("/api/users/notification-preferences", s.updatePreferences, mutation...)
	e.POST("/api/notifications/push", s.sendNotification, append(mutation, canSend)...)

	return s, nil
}

// issueCSRF hands a token cookie to clients reading without one.
func issueCSRF(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()
		if r.Method == http.MethodGet {
			if ck, err := r.Cookie(auth.CSRFCookieName); err != nil || ck.Value == "" {
				auth.SetCSRFCookie(c.Response(), auth.CookieConfigFor(r.Host))
			}
		}
		return next(c)
	}
}

// Echo exposes the router so processes can mount extra routes.
func (s *Server) Echo() *echo.Echo { return s.echo }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorResponse struct {
	Error     bool   `json:"error"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) getPublicKey(c echo.Context) error {
	return c.JSON(http.StatusOK, keyResponse{Success: true, PublicKey: s.key})
}

func (s *Server) getSubscription(c echo.Context) error {
	ctx := c.Request().Context()
	records, err := s.store.ForUser(ctx, auth.PrincipalFromContext(ctx))
	if err != nil {
		return s.internal(c, "load subscriptions", err)
	}
	resp := StatusResponse{Success: true, Subscribed: len(records) > 0}
	if len(records) > 0 {
		latest := records[len(records)-1].Subscription
		resp.Subscription = &latest
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) saveSubscription(c echo.Context) error {
	var req saveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := req.Subscription.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	_, err := s.store.Save(ctx, Record{
		UserID:       auth.PrincipalFromContext(ctx),
		Subscription: req.Subscription,
		UserAgent:    c.Request().UserAgent(),
	})
	if err != nil {
		return s.internal(c, "save subscription", err)
	}
	return c.JSON(http.StatusOK, messageResponse{Success: true, Message: "تم حفظ اشتراك الإشعارات"})
}

func (s *Server) deleteSubscription(c echo.Context) error {
	var req deleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	n, err := s.store.Delete(ctx, auth.PrincipalFromContext(ctx), strings.TrimSpace(req.Endpoint))
	if err != nil {
		return s.internal(c, "delete subscription", err)
	}
	return c.JSON(http.StatusOK, messageResponse{
		Success: true,
		Message: "تم إلغاء اشتراك الإشعارات",
		Data:    map[string]int{"deleted": n},
	})
}

type preferencesRequest struct {
	Preferences Preferences `json:"preferences"`
}

func (s *Server) getPreferences(c echo.Context) error {
	ctx := c.Request().Context()
	prefs, err := s.store.Preferences(ctx, auth.PrincipalFromContext(ctx))
	if err != nil {
		return s.internal(c, "load preferences", err)
	}
	return c.JSON(http.StatusOK, messageResponse{Success: true, Data: prefs})
}

func (s *Server) updatePreferences(c echo.Context) error {
	var req preferencesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Preferences == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "preferences are required")
	}

	ctx := c.Request().Context()
	if err := s.store.SetPreferences(ctx, auth.PrincipalFromContext(ctx), req.Preferences); err != nil {
		return s.internal(c, "save preferences", err)
	}
	return c.JSON(http.StatusOK, messageResponse{
		Success: true,
		Message: "تم تحديث تفضيلات الإشعارات",
		Data:    req.Preferences,
	})
}

type sendRequest struct {
	UserID  string          `json:"userId"`
	Payload Payload         `json:"payload"`
	Topic   string          `json:"topic"`
	Urgency webpush.Urgency `json:"urgency"`
}

func (s *Server) sendNotification(c echo.Context) error {
	if s.sender == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "push delivery is not configured")
	}

	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "userId is required")
	}

	report, err := s.sender.SendToUser(c.Request().Context(), req.UserID, Message{
		Payload: req.Payload,
		Topic:   req.Topic,
		Urgency: req.Urgency,
	})
	if err != nil {
		return s.internal(c, "send notification", err)
	}
	return c.JSON(http.StatusOK, messageResponse{Success: true, Message: "تم إرسال الإشعار", Data: report})
}

func (s *Server) internal(c echo.Context, op string, err error) error {
	s.log.Error(c.Request().Context(), op+" failed", observe.F("error", err.Error()))
	return echo.NewHTTPError(http.StatusInternalServerError, "حدث خطأ غير متوقع")
}

// handleError renders every error in the JSON shape the API client parses.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := http.StatusText(status)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(status)
		}
	}

	body := errorResponse{
		Error:     true,
		Message:   message,
		Code:      errorCode(status),
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_REQUEST"
	case http.StatusUnauthorized:
		return auth.CodeUnauthorized
	case http.StatusForbidden:
		return auth.CodeInsufficientPermission
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

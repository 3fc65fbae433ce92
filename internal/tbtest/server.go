// Package tbtest runs an in-memory ThingsBoard REST server for tests.
//
// The server speaks the subset of the platform API the client library
// uses: login, customers, devices and their credentials, device profiles,
// dashboards, tenants, the current user, scoped attributes, time series and
// the device telemetry endpoint. State lives in a go-memdb database and is
// discarded with the server.
//
//	srv := tbtest.New()
//	defer srv.Close()
//	client, err := thingsboard.NewClient(srv.URL, tbtest.Username, tbtest.Password)
package tbtest

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default tenant administrator credentials.
const (
	Username = "tenant@thingsboard.org"
	Password = "tenant"
)

// NullGUID marks an unassigned owner.
const NullGUID = "13814000-1dd2-11b2-8080-808080808080"

// ThingsBoard error codes.
const (
	codeGeneral         = 2
	codeAuthentication  = 10
	codeTokenExpired    = 11
	codeBadRequest      = 31
	codeItemNotFound    = 32
	codeTooManyRequests = 33
)

var errBadToken = errors.New("tbtest: invalid token")

// Server is a fake ThingsBoard instance listening on a local port.
type Server struct {
	*httptest.Server

	store    *store
	secret   []byte
	username string
	password string
	tokenTTL time.Duration
	now      func() time.Time

	generation atomic.Int64
	logins     atomic.Int64
	requests   atomic.Int64

	mu       sync.Mutex
	failures []int

	tenantID       string
	userID         string
	defaultProfile string
}

// Option configures a Server.
type Option func(*Server)

// WithCredentials replaces the tenant administrator's login.
func WithCredentials(username, password string) Option {
	return func(s *Server) {
		s.username = username
		s.password = password
	}
}

// WithTokenTTL sets the lifetime of issued tokens (default 15m).
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		s.tokenTTL = d
	}
}

// New starts a server seeded with one tenant, its administrator and the
// default device profile. Close it when done.
func New(opts ...Option) *Server {
	st, err := newStore()
	if err != nil {
		panic(err)
	}
	s := &Server{
		store:    st,
		secret:   []byte(uuid.NewString()),
		username: Username,
		password: Password,
		tokenTTL: 15 * time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.seed(); err != nil {
		panic(err)
	}
	s.Server = httptest.NewServer(s.Handler())
	return s
}

// Handler returns the server's routes, for mounting without a listener.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.countRequests(), s.injectFailures())

	r.POST("/api/auth/login", s.login)
	r.POST("/api/v1/:token/telemetry", s.deviceTelemetry)
	r.POST("/api/v1/:token/attributes", s.deviceAttributes)

	api := r.Group("/api", s.authenticate())
	{
		api.GET("/auth/user", s.currentUser)

		api.POST("/customer", s.saveCustomer)
		api.GET("/customer/:id", s.getEntity(kindCustomer))
		api.DELETE("/customer/:id", s.deleteEntity(kindCustomer))
		api.GET("/customer/:id/devices", s.customerDevices)
		api.POST("/customer/:id/device/:deviceId", s.assignDevice)
		api.DELETE("/customer/device/:deviceId", s.unassignDevice)
		api.POST("/customer/:id/dashboard/:dashboardId", s.assignDashboard)
		api.DELETE("/customer/:id/dashboard/:dashboardId", s.unassignDashboard)
		api.GET("/customers", s.listCustomers)

		api.POST("/device", s.saveDevice)
		api.GET("/device/:id", s.getEntity(kindDevice))
		api.DELETE("/device/:id", s.deleteEntity(kindDevice))
		api.GET("/device/:id/credentials", s.deviceCredentials)
		api.GET("/tenant/devices", s.listDevices(false))
		api.GET("/tenant/deviceInfos", s.listDevices(true))

		api.GET("/deviceProfiles", s.listProfiles(false))
		api.GET("/deviceProfile/:id", s.getProfile(false))
		api.GET("/deviceProfileInfos", s.listProfiles(true))
		api.GET("/deviceProfileInfo/:id", s.getProfile(true))

		api.POST("/dashboard", s.saveDashboard)
		api.GET("/dashboard/:id", s.getEntity(kindDashboard))
		api.GET("/dashboard/info/:id", s.dashboardInfo)
		api.DELETE("/dashboard/:id", s.deleteEntity(kindDashboard))
		api.GET("/tenant/dashboards", s.listDashboards)

		api.GET("/tenants", s.listTenants)
		api.POST("/tenant", s.saveTenant)
		api.DELETE("/tenant/:id", s.deleteEntity(kindTenant))

		telemetry := api.Group("/plugins/telemetry/:entityType/:entityId")
		telemetry.GET("/values/attributes/:scope", s.getAttributes)
		telemetry.POST("/:scope", s.postAttributes)
		telemetry.DELETE("/:scope", s.deleteAttributes)
		telemetry.GET("/values/timeseries", s.getTimeseries)
		telemetry.GET("/keys/timeseries", s.timeseriesKeys)
		telemetry.DELETE("/timeseries/delete", s.deleteTimeseries)
	}
	return r
}

// TenantID returns the seeded tenant's GUID.
func (s *Server) TenantID() string { return s.tenantID }

// UserID returns the tenant administrator's GUID.
func (s *Server) UserID() string { return s.userID }

// DefaultProfileID returns the GUID of the default device profile.
func (s *Server) DefaultProfileID() string { return s.defaultProfile }

// Logins reports how many successful logins the server has handled.
func (s *Server) Logins() int { return int(s.logins.Load()) }

// Requests reports how many requests reached the server.
func (s *Server) Requests() int { return int(s.requests.Load()) }

// RevokeTokens makes every token issued so far fail with 401.
func (s *Server) RevokeTokens() {
	s.generation.Add(1)
}

// FailNext makes the next len(statuses) requests other than logins fail
// with the given statuses, in order. 429 replies carry Retry-After: 0.
func (s *Server) FailNext(statuses ...int) {
	s.mu.Lock()
	s.failures = append(s.failures, statuses...)
	s.mu.Unlock()
}

// DeviceToken returns the access token of a device, or "".
func (s *Server) DeviceToken(deviceID string) string {
	if rec := s.store.get(deviceID); rec != nil {
		return rec.Token
	}
	return ""
}

type claims struct {
	jwt.RegisteredClaims
	UserID     string   `json:"userId"`
	TenantID   string   `json:"tenantId"`
	CustomerID string   `json:"customerId"`
	Scopes     []string `json:"scopes"`
	Generation int64    `json:"gen"`
}

func (s *Server) issue() (string, error) {
	now := s.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   s.username,
			Issuer:    "thingsboard.io",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
		UserID:     s.userID,
		TenantID:   s.tenantID,
		CustomerID: NullGUID,
		Scopes:     []string{"TENANT_ADMIN"},
		Generation: s.generation.Load(),
	})
	return t.SignedString(s.secret)
}

func (s *Server) verify(token string) error {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errBadToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return err
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.Generation < s.generation.Load() {
		return errBadToken
	}
	return nil
}

func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("X-Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			fail(c, http.StatusUnauthorized, codeAuthentication, "Authentication failed")
			c.Abort()
			return
		}
		if err := s.verify(token); err != nil {
			fail(c, http.StatusUnauthorized, codeTokenExpired, "Token has expired")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.requests.Add(1)
		c.Next()
	}
}

func (s *Server) injectFailures() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		if len(s.failures) == 0 || c.FullPath() == "/api/auth/login" {
			s.mu.Unlock()
			c.Next()
			return
		}
		status := s.failures[0]
		s.failures = s.failures[1:]
		s.mu.Unlock()

		code := codeGeneral
		if status == http.StatusTooManyRequests {
			c.Header("Retry-After", "0")
			code = codeTooManyRequests
		}
		fail(c, status, code, http.StatusText(status))
		c.Abort()
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "Invalid login request")
		return
	}
	if req.Username != s.username || req.Password != s.password {
		fail(c, http.StatusUnauthorized, codeAuthentication, "Invalid username or password")
		return
	}
	token, err := s.issue()
	if err != nil {
		fail(c, http.StatusInternalServerError, codeGeneral, err.Error())
		return
	}
	s.logins.Add(1)
	c.JSON(http.StatusOK, gin.H{"token": token, "refreshToken": uuid.NewString()})
}

// errorBody is the platform's error envelope.
type errorBody struct {
	Status    int       `json:"status"`
	Message   string    `json:"message"`
	ErrorCode int       `json:"errorCode"`
	Timestamp time.Time `json:"timestamp"`
}

func fail(c *gin.Context, status, code int, msg string) {
	c.JSON(status, errorBody{Status: status, Message: msg, ErrorCode: code, Timestamp: time.Now()})
}

// Package mockbackend is an in-process backend speaking the dispatcher's wire
// format. It verifies signatures, issues and checks token JWTs and opens ECIES
// envelopes, so examples and tests can run the whole pipeline without a real
// server.
package mockbackend

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	networking "github.com/wultra/networking-android"
)

// Routes served by the backend.
const (
	PathEcho        = "/api/echo"
	PathSignedEcho  = "/api/signed/echo"
	PathTokenCreate = networking.DefaultTokenCreatePath
	PathTokenEcho   = "/api/token/echo"
	PathSecureEcho  = "/api/secure/echo"
	PathFail        = "/api/fail/:code"
	PathSlow        = "/api/slow"
)

// SignedEchoResourceID is the resource ID PathSignedEcho verifies against.
const SignedEchoResourceID = "/echo/signed"

// Config configures a Server.
type Config struct {
	// Verifier checks signed routes. Nil rejects every signed request.
	Verifier *networking.HMACSigner
	// Decryptor opens encrypted requests. Nil rejects every encrypted request.
	Decryptor *networking.ECIESDecryptor
	// JWTSecret signs issued tokens (HS256).
	JWTSecret []byte
	// TokenTTL is the lifetime of issued tokens; zero issues tokens without exp.
	TokenTTL time.Duration
	// IssueDelay slows token issuance down, e.g. to let callers pile up.
	IssueDelay time.Duration
}

// Recorded is one request as the backend received it.
type Recorded struct {
	Header http.Header
	Body   []byte
}

// Server is the mock backend. It implements http.Handler.
type Server struct {
	echo   *echo.Echo
	config Config

	issued     atomic.Int64
	failIssue  atomic.Bool
	recordedMu sync.Mutex
	recorded   map[string]Recorded
}

// New builds a Server with all routes registered.
func New(config Config) *Server {
	s := &Server{
		echo:     echo.New(),
		config:   config,
		recorded: make(map[string]Recorded),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.BodyLimit("64K"))
	s.echo.Use(s.record)

	s.echo.POST(PathEcho, s.postEcho)
	s.echo.POST(PathSignedEcho, s.postEcho, s.requireSignature(SignedEchoResourceID))
	s.echo.POST(PathTokenCreate, s.postTokenCreate, s.requireSignature(networking.DefaultTokenResourceID))
	s.echo.POST(PathTokenEcho, s.postTokenEcho, echojwt.WithConfig(echojwt.Config{
		SigningKey:    s.config.JWTSecret,
		SigningMethod: "HS256",
		ErrorHandler: func(c echo.Context, err error) error {
			return writeError(c, http.StatusUnauthorized, string(networking.ErrorCodeToken), err.Error())
		},
	}))
	s.echo.POST(PathSecureEcho, s.postSecureEcho)
	s.echo.POST(PathFail, s.postFail)
	s.echo.POST(PathSlow, s.postSlow)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start serves on addr until the listener fails.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Issued reports how many tokens were issued.
func (s *Server) Issued() int64 {
	return s.issued.Load()
}

// FailTokenIssue makes token creation fail with ERR_TOKEN until reset.
func (s *Server) FailTokenIssue(fail bool) {
	s.failIssue.Store(fail)
}

// Last returns the most recent request received on path.
func (s *Server) Last(path string) (Recorded, bool) {
	s.recordedMu.Lock()
	defer s.recordedMu.Unlock()
	r, ok := s.recorded[path]
	return r, ok
}

func (s *Server) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return writeError(c, http.StatusBadRequest, string(networking.ErrorCodeInvalidRequest), "unreadable body")
		}
		c.Set("body", body)

		s.recordedMu.Lock()
		s.recorded[c.Request().URL.Path] = Recorded{Header: c.Request().Header.Clone(), Body: body}
		s.recordedMu.Unlock()

		return next(c)
	}
}

func (s *Server) requireSignature(resourceID string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(networking.AuthorizationHeader)
			if header == "" {
				return writeError(c, http.StatusUnauthorized, string(networking.ErrorCodeAuthFail), "missing signature")
			}
			if s.config.Verifier == nil {
				return writeError(c, http.StatusUnauthorized, string(networking.ErrorCodeAuthFail), "signing not configured")
			}
			if err := s.config.Verifier.Verify(header, networking.PossessionAuth(), http.MethodPost, resourceID, bodyOf(c)); err != nil {
				return writeError(c, http.StatusUnauthorized, string(networking.ErrorCodeAuthFail), err.Error())
			}
			return next(c)
		}
	}
}

func (s *Server) postEcho(c echo.Context) error {
	var req networking.ObjectRequest[json.RawMessage]
	if err := json.Unmarshal(bodyOf(c), &req); err != nil {
		return writeError(c, http.StatusBadRequest, string(networking.ErrorCodeInvalidRequest), "invalid body")
	}
	return c.JSON(http.StatusOK, networking.ObjectResponse[json.RawMessage]{
		Status:         networking.StatusOK,
		ResponseObject: req.RequestObject,
	})
}

func (s *Server) postTokenCreate(c echo.Context) error {
	var req networking.ObjectRequest[networking.TokenCreateRequest]
	if err := json.Unmarshal(bodyOf(c), &req); err != nil || req.RequestObject.TokenName == "" {
		return writeError(c, http.StatusBadRequest, string(networking.ErrorCodeInvalidRequest), "missing token name")
	}
	if s.config.IssueDelay > 0 {
		time.Sleep(s.config.IssueDelay)
	}
	if s.failIssue.Load() {
		return writeError(c, http.StatusBadRequest, string(networking.ErrorCodeToken), "token issuance disabled")
	}

	claims := jwt.RegisteredClaims{
		ID:       uuid.NewString(),
		Subject:  req.RequestObject.TokenName,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	if s.config.TokenTTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(s.config.TokenTTL))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.JWTSecret)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, string(networking.ErrorCodeInternal), err.Error())
	}
	s.issued.Add(1)

	return c.JSON(http.StatusOK, networking.ObjectResponse[networking.TokenCreateResponse]{
		Status: networking.StatusOK,
		ResponseObject: networking.TokenCreateResponse{
			TokenID: claims.ID,
			Token:   signed,
		},
	})
}

func (s *Server) postTokenEcho(c echo.Context) error {
	user, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return writeError(c, http.StatusUnauthorized, string(networking.ErrorCodeToken), "missing token")
	}
	if sub, _ := user.Claims.GetSubject(); sub == "" {
		return writeError(c, http.StatusUnauthorized, string(networking.ErrorCodeToken), "token without subject")
	}
	return s.postEcho(c)
}

func (s *Server) postSecureEcho(c echo.Context) error {
	if s.config.Decryptor == nil {
		return writeError(c, http.StatusBadRequest, string(networking.ErrorCodeEncryption), "encryption not configured")
	}
	if c.Request().Header.Get(networking.EncryptionHeader) == "" {
		return writeError(c, http.StatusBadRequest, string(networking.ErrorCodeEncryption), "missing encryption header")
	}

	var env networking.RequestEnvelope
	if err := json.Unmarshal(bodyOf(c), &env); err != nil {
		return writeError(c, http.StatusBadRequest, string(networking.ErrorCodeEncryption), "invalid envelope")
	}
	plain, responder, err := s.config.Decryptor.OpenRequest(env)
	if err != nil {
		return writeError(c, http.StatusBadRequest, string(networking.ErrorCodeEncryption), err.Error())
	}

	var req networking.ObjectRequest[json.RawMessage]
	if err := json.Unmarshal(plain, &req); err != nil {
		return writeError(c, http.StatusBadRequest, string(networking.ErrorCodeInvalidRequest), "invalid body")
	}
	reply, err := json.Marshal(networking.ObjectResponse[json.RawMessage]{
		Status:         networking.StatusOK,
		ResponseObject: req.RequestObject,
	})
	if err != nil {
		return err
	}
	sealed, err := responder.Seal(reply)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, string(networking.ErrorCodeEncryption), err.Error())
	}
	return c.JSON(http.StatusOK, sealed)
}

// postFail answers with an error body carrying the code from the path. The
// status query parameter sets the HTTP status, 400 by default.
func (s *Server) postFail(c echo.Context) error {
	status := http.StatusBadRequest
	if v := c.QueryParam("status"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return writeError(c, http.StatusBadRequest, string(networking.ErrorCodeInvalidRequest), "invalid status")
		}
		status = n
	}
	return writeError(c, status, c.Param("code"), "requested failure")
}

// postSlow holds the request until the client gives up or the delay query
// parameter elapses (default 5s).
func (s *Server) postSlow(c echo.Context) error {
	delay := 5 * time.Second
	if v := c.QueryParam("delay"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return writeError(c, http.StatusBadRequest, string(networking.ErrorCodeInvalidRequest), "invalid delay")
		}
		delay = d
	}
	select {
	case <-time.After(delay):
		return s.postEcho(c)
	case <-c.Request().Context().Done():
		return c.Request().Context().Err()
	}
}

func writeError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, networking.ErrorResponse{
		Status: networking.StatusError,
		ResponseObject: networking.ErrorResponseObject{
			Code:    code,
			Message: message,
		},
	})
}

func bodyOf(c echo.Context) []byte {
	body, _ := c.Get("body").([]byte)
	return body
}

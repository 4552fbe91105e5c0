// Package server exposes job generation over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/chazu/loam/pkg/engine"
	"github.com/chazu/loam/pkg/fault"
	"github.com/chazu/loam/pkg/jobfile"
	"github.com/chazu/loam/pkg/kernel"
	"github.com/chazu/loam/pkg/pipeline"
	"github.com/chazu/loam/pkg/profile"
)

// MIMEMsgpack is the content type of msgpack requests and responses.
const MIMEMsgpack = "application/msgpack"

// BodyLimit caps request bodies.
const BodyLimit = "16M"

// MaxScripts caps concurrent script evaluations. A slot stays taken until
// the evaluation goroutine exits, so a script that outlives its timeout
// keeps holding it.
const MaxScripts = 4

// ScriptQueueWait is how long a request waits for a free script slot
// before it is turned away with 503.
const ScriptQueueWait = 2 * time.Second

// GenerateRequest is the JSON body of /api/generate and /api/validate.
// Exactly one of Script and Job is set. Job is a job document as read by
// jobfile.Decode. Profile is optional YAML applied on top of the default
// profile for scripts, or on top of the job's own profile for jobs.
type GenerateRequest struct {
	Script  string          `json:"script,omitempty"`
	Job     json.RawMessage `json:"job,omitempty"`
	Profile string          `json:"profile,omitempty"`
}

// GenerateResponse is returned by both endpoints. GCode is empty for
// /api/validate and for failures.
type GenerateResponse struct {
	RequestID string             `json:"request_id" msgpack:"request_id"`
	Status    pipeline.Status    `json:"status" msgpack:"status"`
	GCode     string             `json:"gcode,omitempty" msgpack:"gcode,omitempty"`
	Stats     *pipeline.Stats    `json:"stats,omitempty" msgpack:"stats,omitempty"`
	Warnings  []string           `json:"warnings,omitempty" msgpack:"warnings,omitempty"`
	Errors    []engine.EvalError `json:"errors,omitempty" msgpack:"errors,omitempty"`
}

// Server is the HTTP host.
type Server struct {
	echo   *echo.Echo
	kernel kernel.Kernel
	base   profile.Profile
	log    *slog.Logger

	scripts   chan struct{}
	queueWait time.Duration
}

// New builds a server whose scripts use k for solids and base as their
// starting profile.
func New(k kernel.Kernel, base profile.Profile, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		echo:      echo.New(),
		kernel:    k,
		base:      base.Clone(),
		log:       log,
		scripts:   make(chan struct{}, MaxScripts),
		queueWait: ScriptQueueWait,
	}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))
	e.Use(middleware.BodyLimit(BodyLimit))

	e.GET("/health", s.handleHealth)
	e.POST("/api/generate", s.handleGenerate)
	e.POST("/api/validate", s.handleValidate)
	return s
}

// Handler returns the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.log.Info("listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) handleGenerate(c echo.Context) error {
	return s.run(c, true)
}

func (s *Server) handleValidate(c echo.Context) error {
	return s.run(c, false)
}

func (s *Server) run(c echo.Context, withGCode bool) error {
	resp := GenerateResponse{RequestID: c.Response().Header().Get(echo.HeaderXRequestID)}
	log := s.log.With("request_id", resp.RequestID, "path", c.Path())

	job, evalErrs, err := s.job(c)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return err
		}
		resp.Status = pipeline.StatusOf(err)
		log.Warn("request rejected", "kind", resp.Status.Kind, "error", err)
		return s.reply(c, statusCode(resp.Status), resp)
	}
	if len(evalErrs) > 0 {
		resp.Status = pipeline.Status{Kind: "ScriptError", Layer: -1, Curve: -1, Message: evalErrs[0].Error()}
		resp.Errors = evalErrs
		return s.reply(c, http.StatusUnprocessableEntity, resp)
	}

	res, err := pipeline.Run(c.Request().Context(), job.Job)
	resp.Status = pipeline.StatusOf(err)
	if err != nil {
		log.Warn("job failed", "kind", resp.Status.Kind, "error", err)
		return s.reply(c, statusCode(resp.Status), resp)
	}

	resp.Stats = &res.Stats
	for _, w := range res.Warnings {
		resp.Warnings = append(resp.Warnings, w.Message)
	}
	resp.Warnings = append(resp.Warnings, job.warnings...)
	if withGCode {
		resp.GCode = res.Program.Text()
	}
	log.Info("job done", "layers", res.Stats.Layers, "lines", res.Stats.Lines)
	return s.reply(c, http.StatusOK, resp)
}

// request is a decoded job plus script warnings.
type request struct {
	pipeline.Job
	warnings []string
}

// job decodes the request body. A msgpack body is a bare job; a JSON body
// is a GenerateRequest.
func (s *Server) job(c echo.Context) (request, []engine.EvalError, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return request{}, nil, echo.NewHTTPError(http.StatusBadRequest, "read body: "+err.Error())
	}

	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), MIMEMsgpack) {
		job, err := jobfile.Decode(body, jobfile.Msgpack)
		if err != nil {
			return request{}, nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return request{Job: job}, nil, nil
	}

	var req GenerateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return request{}, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body: "+err.Error())
	}
	hasJob := len(req.Job) > 0 && string(req.Job) != "null"
	if (req.Script != "") == hasJob {
		return request{}, nil, echo.NewHTTPError(http.StatusBadRequest, "exactly one of script and job is required")
	}

	if hasJob {
		job, err := jobfile.Decode(req.Job, jobfile.JSON)
		if err != nil {
			return request{}, nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if req.Profile != "" {
			if job.Profile, err = profile.ParseOnto(job.Profile, []byte(req.Profile)); err != nil {
				return request{}, nil, fault.New(fault.ConfigError, "%v", err)
			}
		}
		return request{Job: job}, nil, nil
	}

	base := s.base
	if req.Profile != "" {
		if base, err = profile.ParseOnto(base, []byte(req.Profile)); err != nil {
			return request{}, nil, fault.New(fault.ConfigError, "%v", err)
		}
	}
	if err := s.acquire(c.Request().Context()); err != nil {
		return request{}, nil, err
	}
	script, evalErrs, err := engine.NewEngineWith(s.kernel, base).EvaluateNotify(req.Script, s.release)
	if err != nil || len(evalErrs) > 0 {
		return request{}, evalErrs, err
	}
	r := request{Job: script.Job()}
	for _, w := range script.Warnings {
		r.warnings = append(r.warnings, w.Message)
	}
	return r, nil, nil
}

// acquire takes a script slot, waiting up to queueWait.
func (s *Server) acquire(ctx context.Context) error {
	timer := time.NewTimer(s.queueWait)
	defer timer.Stop()
	select {
	case s.scripts <- struct{}{}:
		return nil
	case <-ctx.Done():
	case <-timer.C:
	}
	s.log.Warn("script slots exhausted", "max", cap(s.scripts))
	return echo.NewHTTPError(http.StatusServiceUnavailable, "too many scripts running")
}

func (s *Server) release() {
	<-s.scripts
}

// reply writes resp as msgpack when the client asks for it, JSON otherwise.
func (s *Server) reply(c echo.Context, code int, resp GenerateResponse) error {
	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), MIMEMsgpack) {
		data, err := msgpack.Marshal(resp)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to encode msgpack"})
		}
		return c.Blob(code, MIMEMsgpack, data)
	}
	return c.JSON(code, resp)
}

// statusCode maps a failure kind to an HTTP status.
func statusCode(st pipeline.Status) int {
	switch st.Kind {
	case "":
		return http.StatusOK
	case fault.InvalidInput.String(), fault.ConfigError.String(), fault.NumericInstability.String():
		return http.StatusUnprocessableEntity
	case "Canceled":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

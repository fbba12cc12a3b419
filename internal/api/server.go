// Package api is the HTTP admin surface of the matmul tuner.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/samcharles93/autotune/internal/logger"
	"github.com/samcharles93/autotune/internal/matmul"
	"github.com/samcharles93/autotune/internal/tensor"
	"github.com/samcharles93/autotune/internal/version"
)

// DefaultMaxDim bounds each dimension of POST /v1/matmul.
const DefaultMaxDim = 2048

// PersistentCache is the part of tunecache.Store the server uses.
type PersistentCache interface {
	Clear(name string) (int, error)
}

type Config struct {
	Tuner  *matmul.Tuner
	Device matmul.Device
	// Cache, when set, lets DELETE /v1/tuners?persisted=true drop the files too.
	Cache   PersistentCache
	MaxDim  int
	Version version.Info
	Logger  logger.Logger
}

type Server struct {
	tuner   *matmul.Tuner
	device  matmul.Device
	cache   PersistentCache
	maxDim  int
	version version.Info
	log     logger.Logger
}

func NewServer(cfg Config) *Server {
	if cfg.MaxDim <= 0 {
		cfg.MaxDim = DefaultMaxDim
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	return &Server{
		tuner:   cfg.Tuner,
		device:  cfg.Device,
		cache:   cfg.Cache,
		maxDim:  cfg.MaxDim,
		version: cfg.Version,
		log:     cfg.Logger,
	}
}

// NewEcho returns an echo instance with the server's middleware and routes.
func (s *Server) NewEcho() *echo.Echo {
	e := echo.New()
	e.Use(requestID)
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	s.Register(e)
	return e
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/tuners", s.handleListTuners)
	e.DELETE("/v1/tuners", s.handleClearTuners)
	e.POST("/v1/matmul", s.handleMatmul)
	e.GET("/v1/version", s.handleVersion)
}

func (s *Server) handleListTuners(c *echo.Context) error {
	return c.JSON(http.StatusOK, TunersResponse{
		Object:   "list",
		Device:   s.device.ID(),
		Blocking: s.tuner.Blocking(),
		Data:     s.tuner.Snapshots(),
	})
}

func (s *Server) handleClearTuners(c *echo.Context) error {
	s.tuner.Clear()
	resp := ClearResponse{Cleared: true}
	if c.QueryParam("persisted") == "true" {
		if s.cache == nil {
			return writeBadRequest(c, "no persistent cache configured")
		}
		n, err := s.cache.Clear(s.tuner.Name())
		if err != nil {
			return writeServerError(c, err.Error())
		}
		resp.PersistedFiles = n
	}
	s.log.Info("tuners cleared", "persisted_files", resp.PersistedFiles, "request_id", requestIDFrom(c))
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleMatmul(c *echo.Context) error {
	req, err := decodeJSON[MatmulRequest](c.Request().Body)
	if err != nil {
		return s.writeFailure(c, wrapInvalid(err, "decode request"))
	}
	a, b, err := s.operands(req)
	if err != nil {
		return s.writeFailure(c, err)
	}

	start := time.Now()
	out, err := matmul.Multiply(c.Request().Context(), s.tuner, s.device, a, b)
	if err != nil {
		return s.writeFailure(c, err)
	}
	elapsed := time.Since(start)

	rep := matmul.Inspect(s.tuner, s.device, req.M, req.K, req.N)
	resp := MatmulResponse{
		Key:       rep.Key,
		State:     rep.State,
		Winner:    rep.Winner,
		Checksum:  rep.Checksum,
		Elapsed:   elapsed.String(),
		ElapsedNs: elapsed.Nanoseconds(),
		RequestID: requestIDFrom(c),
	}
	if req.A != nil {
		resp.C = out.Data
	}
	return c.JSON(http.StatusOK, resp)
}

// writeFailure answers request faults with 400 and everything else with 500.
func (s *Server) writeFailure(c *echo.Context, err error) error {
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, matmul.ErrShapeMismatch) {
		return writeBadRequest(c, err.Error())
	}
	s.log.Error("matmul failed", "error", err, "request_id", requestIDFrom(c))
	return writeServerError(c, err.Error())
}

// operands validates the dimensions and builds A and B, either from the request or random.
func (s *Server) operands(req MatmulRequest) (*tensor.Mat, *tensor.Mat, error) {
	for _, d := range []struct {
		name string
		v    int
	}{{"m", req.M}, {"k", req.K}, {"n", req.N}} {
		if d.v < 1 || d.v > s.maxDim {
			return nil, nil, invalidRequestf("%s must be in [1, %d], got %d", d.name, s.maxDim, d.v)
		}
	}

	if req.A == nil && req.B == nil {
		a := tensor.NewMat(req.M, req.K)
		b := tensor.NewMat(req.K, req.N)
		tensor.FillRand(&a, req.Seed)
		tensor.FillRand(&b, req.Seed+1)
		return &a, &b, nil
	}
	if req.A == nil || req.B == nil {
		return nil, nil, invalidRequestf("a and b must be given together")
	}
	a, err := tensor.NewMatFromData(req.M, req.K, req.A)
	if err != nil {
		return nil, nil, wrapInvalid(err, fmt.Sprintf("a is not %dx%d", req.M, req.K))
	}
	b, err := tensor.NewMatFromData(req.K, req.N, req.B)
	if err != nil {
		return nil, nil, wrapInvalid(err, fmt.Sprintf("b is not %dx%d", req.K, req.N))
	}
	return &a, &b, nil
}

func (s *Server) handleVersion(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.version)
}

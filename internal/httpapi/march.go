package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"sdfmarch/tracer/internal/driver"
	"sdfmarch/tracer/internal/geometry"
	"sdfmarch/tracer/internal/logging"
	"sdfmarch/tracer/internal/sdfxbridge"
	"sdfmarch/tracer/internal/simulation"
)

// Kernels accepted by the march endpoint.
const (
	KernelNative = "native"
	KernelSDFX   = "sdfx"
)

// maxRequestSteps bounds client supplied step budgets.
const maxRequestSteps = 10000

// SceneResponse is the body of GET /scene.
type SceneResponse struct {
	Version uint64             `json:"version"`
	Shapes  []driver.WireShape `json:"shapes"`
}

// ParamsRequest overrides individual march limits.
type ParamsRequest struct {
	MaxSteps    *int     `json:"max_steps,omitempty"`
	MaxTravel   *float64 `json:"max_travel,omitempty"`
	MinDistance *float64 `json:"min_distance,omitempty"`
}

// MarchRequest is the body of POST /march. Exactly one of Angle and Target
// must be present; Origin defaults to the driver origin.
type MarchRequest struct {
	Origin *driver.WirePoint `json:"origin,omitempty"`
	Angle  *float64          `json:"angle,omitempty"`
	Target *driver.WirePoint `json:"target,omitempty"`
	Params *ParamsRequest    `json:"params,omitempty"`
	Kernel string            `json:"kernel,omitempty"`
}

// MarchResponse is the body returned by POST /march.
type MarchResponse struct {
	Kernel       string           `json:"kernel"`
	SceneVersion uint64           `json:"scene_version"`
	Nearest      int              `json:"nearest_shape"`
	March        driver.WireMarch `json:"march"`
}

// SceneHandler returns the current scene in draw order.
func (h *HandlerSet) SceneHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.engine == nil {
			writeError(w, http.StatusServiceUnavailable, "driver not configured")
			return
		}
		version := h.engine.Stats().SceneVersion
		writeJSON(w, http.StatusOK, SceneResponse{
			Version: version,
			Shapes:  driver.EncodeShapes(h.engine.Scene().Shapes()),
		})
	}
}

// ShapeHandler returns one shape of the current scene by draw index.
func (h *HandlerSet) ShapeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.engine == nil {
			writeError(w, http.StatusServiceUnavailable, "driver not configured")
			return
		}
		index, err := strconv.Atoi(mux.Vars(r)["index"])
		if err != nil {
			writeError(w, http.StatusBadRequest, "shape index must be an integer")
			return
		}
		shape, ok := h.engine.Scene().Shape(index)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("shape %d not found", index))
			return
		}
		writeJSON(w, http.StatusOK, driver.EncodeShapes([]geometry.Shape{shape})[0])
	}
}

// MarchHandler runs a one-shot march against the current scene without
// touching driver state.
func (h *HandlerSet) MarchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.engine == nil {
			writeError(w, http.StatusServiceUnavailable, "driver not configured")
			return
		}
		var req MarchRequest
		if err := h.decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ray, params, kernel, err := h.resolveMarch(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		version := h.engine.Stats().SceneVersion
		sc := h.engine.Scene()
		var field simulation.SignedDistanceField = sc
		if kernel == KernelSDFX {
			converted, err := sdfxbridge.FieldForScene(sc)
			if err != nil {
				LoggerFor(r, h.logger).Error("sdfx conversion failed", logging.Error(err))
				writeError(w, http.StatusInternalServerError, "scene could not be converted for the sdfx kernel")
				return
			}
			field = converted
		}

		started := time.Now()
		result := simulation.March(field, ray, params)
		if h.monitor != nil {
			h.monitor.Observe(result, time.Since(started))
		}
		nearest, _ := sc.Nearest(result.Terminal())
		writeJSON(w, http.StatusOK, MarchResponse{
			Kernel:       kernel,
			SceneVersion: version,
			Nearest:      nearest,
			March:        driver.EncodeResult(result),
		})
	}
}

func (h *HandlerSet) resolveMarch(req MarchRequest) (simulation.Ray, simulation.Params, string, error) {
	kernel := strings.ToLower(strings.TrimSpace(req.Kernel))
	switch kernel {
	case "":
		kernel = KernelNative
	case KernelNative, KernelSDFX:
	default:
		return simulation.Ray{}, simulation.Params{}, "", fmt.Errorf("unknown kernel %q", req.Kernel)
	}

	origin := h.engine.Origin()
	if req.Origin != nil {
		origin = req.Origin.Point()
	}
	var ray simulation.Ray
	switch {
	case req.Angle != nil && req.Target != nil:
		return ray, simulation.Params{}, "", errors.New("angle and target are mutually exclusive")
	case req.Angle != nil:
		if math.IsNaN(*req.Angle) || math.IsInf(*req.Angle, 0) {
			return ray, simulation.Params{}, "", errors.New("angle must be finite")
		}
		ray = simulation.NewRay(origin, *req.Angle)
	case req.Target != nil:
		ray, _ = simulation.RayTowards(origin, req.Target.Point())
	default:
		return ray, simulation.Params{}, "", errors.New("one of angle or target is required")
	}

	params := h.engine.Params()
	if p := req.Params; p != nil {
		if p.MaxSteps != nil {
			if *p.MaxSteps > maxRequestSteps {
				return ray, params, "", fmt.Errorf("max steps must not exceed %d", maxRequestSteps)
			}
			params.MaxSteps = *p.MaxSteps
		}
		if p.MaxTravel != nil {
			params.MaxTravel = *p.MaxTravel
		}
		if p.MinDistance != nil {
			params.MinDistance = *p.MinDistance
		}
	}
	if err := params.Validate(); err != nil {
		return ray, params, "", err
	}
	return ray, params, kernel, nil
}

// CommandHandler accepts one driver command. Resets are rate limited and, when
// an Authenticator is configured, every caller must present a valid token.
func (h *HandlerSet) CommandHandler() http.HandlerFunc {
	type response struct {
		Status string `json:"status"`
		Type   string `json:"type"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		logger := LoggerFor(r, h.logger).With(logging.String("handler", "commands"))
		if h.engine == nil {
			writeError(w, http.StatusServiceUnavailable, "driver not configured")
			return
		}
		if h.auth != nil {
			subject, err := h.auth.Authenticate(r)
			if err != nil {
				logger.Warn("command authentication failed", logging.Error(err))
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			logger = logger.With(logging.String("subject", subject))
		}
		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		cmd, err := driver.DecodeCommand(payload)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if cmd.Kind() == driver.CommandReset && h.rateLimiter != nil && !h.rateLimiter.Allow() {
			if limiter, ok := h.rateLimiter.(interface{ RetryAfter() time.Duration }); ok {
				seconds := int(math.Ceil(limiter.RetryAfter().Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
			}
			logger.Warn("reset denied: rate limit exceeded")
			writeError(w, http.StatusTooManyRequests, "too many resets")
			return
		}
		if err := h.engine.SubmitCommand(r.Context(), cmd); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, driver.ErrStopped) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusServiceUnavailable
			}
			logger.Warn("command rejected", logging.String("type", cmd.Kind()), logging.Error(err))
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, response{Status: "accepted", Type: cmd.Kind()})
	}
}

func (h *HandlerSet) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// LoggerFor returns the request scoped logger installed by the trace middleware,
// falling back to base.
func LoggerFor(r *http.Request, base *logging.Logger) *logging.Logger {
	if logger := logging.LoggerFromContext(r.Context()); logger != nil && logger != logging.L() {
		return logger
	}
	return base
}

package port

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aelexs/messaging-gateway/internal/domain"
	"github.com/aelexs/messaging-gateway/internal/errmap"
	"github.com/aelexs/messaging-gateway/internal/messaging/app"
	"github.com/aelexs/messaging-gateway/internal/observability"
)

// maxBodyBytes bounds request bodies. A full personalized batch fits.
const maxBodyBytes = 1 << 20

// channelRouter is a narrow, consumer-defined interface for channel
// resolution. *app.Messaging satisfies it.
type channelRouter interface {
	Channel(name string) (app.Manager, error)
}

// otpRouter resolves per-channel OTP services. *app.OTPManager satisfies it.
type otpRouter interface {
	Channel(name string) (*app.OTPService, error)
}

var (
	_ channelRouter = (*app.Messaging)(nil)
	_ otpRouter     = (*app.OTPManager)(nil)
)

// Handler serves the messaging and OTP endpoints.
type Handler struct {
	messaging channelRouter
	otp       otpRouter
	clock     domain.Clock
	logger    *slog.Logger
}

// HandlerConfig holds the dependencies for Handler.
type HandlerConfig struct {
	Messaging *app.Messaging
	OTP       *app.OTPManager
	Clock     domain.Clock
	Logger    *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{clock: cfg.Clock, logger: cfg.Logger}
	if cfg.Messaging != nil {
		h.messaging = cfg.Messaging
	}
	if cfg.OTP != nil {
		h.otp = cfg.OTP
	}
	if h.clock == nil {
		h.clock = domain.RealClock{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /v1/messages", h.wrap(h.sendMessage))
	mux.Handle("POST /v1/messages/bulk", h.wrap(h.sendBulk))
	mux.Handle("GET /v1/balance", h.wrap(h.balance))
	mux.Handle("POST /v1/callback", h.wrap(h.configureCallback))

	mux.Handle("POST /v1/otp", h.wrap(h.sendOTP))
	mux.Handle("POST /v1/otp/verify", h.wrap(h.verifyOTP))
	mux.Handle("POST /v1/otp/resend", h.wrap(h.resendOTP))
	mux.Handle("GET /v1/otp/status", h.wrap(h.otpStatus))
	mux.Handle("DELETE /v1/otp", h.wrap(h.invalidateOTP))
}

// handlerFunc is an endpoint that reports failures as errors.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// wrap assigns a request ID, attaches a trace-aware logger and renders any
// returned error through errmap.
func (h *Handler) wrap(fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		logger := observability.WithTraceID(r.Context(), h.logger).With(
			slog.String("request_id", requestID),
			slog.String("route", r.Pattern),
		)
		start := time.Now()

		if err := fn(w, r); err != nil {
			herr := errmap.ToHTTPError(err)
			level := slog.LevelWarn
			if herr.StatusCode >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "http.request_failed",
				slog.Int("status", herr.StatusCode),
				slog.String("code", herr.Code),
				slog.String("error", err.Error()),
			)
			var rf *responseFailure
			if errors.As(err, &rf) {
				writeJSON(w, herr.StatusCode, rf.body)
				return
			}
			writeJSON(w, herr.StatusCode, errorBody{Error: herr})
			return
		}
		logger.Debug("http.request_served", slog.Duration("duration", time.Since(start)))
	})
}

// responseFailure is a gateway error rendered as a failed Response body, so
// transport failures and vendor rejections reach clients in one shape.
// data.transport tells them apart.
type responseFailure struct {
	err  error
	body any
}

func (f *responseFailure) Error() string { return f.err.Error() }
func (f *responseFailure) Unwrap() error { return f.err }

// failureAs folds a gateway *domain.Error into a Response built by
// domain.FailureResponse and wrapped by render. Other errors are returned
// unchanged.
func failureAs(err error, render func(domain.Response) any) error {
	if _, ok := domain.AsError(err); !ok {
		return err
	}
	return &responseFailure{err: err, body: render(domain.FailureResponse(err))}
}

// sendFailure renders err as a bare failed Response.
func sendFailure(err error) error {
	return failureAs(err, func(resp domain.Response) any { return resp })
}

type errorBody struct {
	Error errmap.HTTPError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResponse renders a gateway Response with the status its code maps to.
func writeResponse(w http.ResponseWriter, resp domain.Response) {
	writeJSON(w, errmap.StatusForResponse(resp), resp)
}

// decode reads a JSON body into dst, rejecting unknown fields.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body required", domain.ErrInvalidInput)
		}
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, err.Error())
	}
	return nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, field)
	}
	return nil
}

func (h *Handler) channel(name string) (app.Manager, error) {
	if h.messaging == nil {
		return app.Manager{}, fmt.Errorf("%w: messaging not configured", domain.ErrUnavailable)
	}
	return h.messaging.Channel(name)
}

func (h *Handler) otpChannel(name string) (*app.OTPService, error) {
	if h.otp == nil {
		return nil, fmt.Errorf("%w: otp not configured", domain.ErrUnavailable)
	}
	return h.otp.Channel(name)
}

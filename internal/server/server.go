// Package server exposes evaluations over HTTP.
//
//	POST /v1/evaluate   body: request config as JSON, response: engine.Result
//	GET  /health
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/contactkeval/option-ev/internal/config"
	"github.com/contactkeval/option-ev/internal/data"
	"github.com/contactkeval/option-ev/internal/engine"
	"github.com/contactkeval/option-ev/internal/ev"
	"github.com/contactkeval/option-ev/internal/logger"
	"github.com/contactkeval/option-ev/internal/strategy"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// RequestIDHeader carries the id assigned to each request.
const RequestIDHeader = "X-Request-ID"

type Server struct {
	prov     data.Provider
	settings data.Settings
	timeout  time.Duration
	router   *mux.Router
}

type ErrorResponse struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// New returns a server evaluating requests against prov. Requests naming
// their own provider chain get one built from settings; a request's data_dir
// is never honoured. timeout bounds each evaluation; zero means none.
func New(prov data.Provider, settings data.Settings, timeout time.Duration) *Server {
	s := &Server{prov: prov, settings: settings, timeout: timeout, router: mux.NewRouter()}

	s.router.Use(requestID)
	api := s.router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/evaluate", s.handleEvaluate).Methods(http.MethodPost)
	s.router.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("event=server_start addr=%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Infof("event=server_stop addr=%s", addr)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type ctxKey struct{}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	id := requestIDFrom(r.Context())
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		setErrorResponse(w, id, "evaluate: failed to read request", http.StatusBadRequest, err)
		return
	}
	if len(body) > maxBodyBytes {
		setErrorResponse(w, id, "evaluate: request too large", http.StatusRequestEntityTooLarge, errors.New("body exceeds 1 MiB"))
		return
	}

	cfg, err := config.ParseJSON(body)
	if err != nil {
		setErrorResponse(w, id, "evaluate: invalid request", http.StatusBadRequest, err)
		return
	}

	prov := s.prov
	if len(cfg.Providers) > 0 {
		if prov, err = data.NewChain(cfg.Providers, s.settings); err != nil {
			setErrorResponse(w, id, "evaluate: invalid providers", http.StatusBadRequest, err)
			return
		}
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := engine.NewEngine(cfg, prov).Run(ctx)
	if err != nil {
		logger.Errorf("event=evaluate_request_failed request_id=%s err=%v", id, err)
		setErrorResponse(w, id, "evaluate: failed", statusFor(err), err)
		return
	}

	logger.Infof("event=evaluate_request request_id=%s underlying=%s dates=%d elapsed=%s",
		id, cfg.Underlying, len(res.Results), time.Since(start))

	if err := setResponse(w, res); err != nil {
		logger.Errorf("event=response_encode_failed request_id=%s err=%v", id, err)
	}
}

// statusFor maps evaluation errors to HTTP statuses: bad requests are 4xx,
// vendor failures 502, everything else 500.
func statusFor(err error) int {
	var legErr *ev.InvalidLegError
	var typeErr *ev.UnsupportedLegTypeError
	switch {
	case errors.As(err, &legErr), errors.As(err, &typeErr),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, strategy.ErrInvalidLegSpec),
		errors.Is(err, strategy.ErrInvalidStrikeExpression),
		errors.Is(err, strategy.ErrLegIndexOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, ev.ErrZeroCostSpread),
		errors.Is(err, ev.ErrEvaluationDateNotFuture),
		errors.Is(err, ev.ErrInvalidMarket):
		return http.StatusUnprocessableEntity
	case errors.Is(err, data.ErrQuoteUnavailable),
		errors.Is(err, data.ErrSurfaceUnavailable),
		errors.Is(err, data.ErrRateUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func setResponse(w http.ResponseWriter, response any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		return fmt.Errorf("setResponse: encode: %w", err)
	}
	return nil
}

func setErrorResponse(w http.ResponseWriter, requestID, errType string, statusCode int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{Type: errType, Message: err.Error(), RequestID: requestID}
	if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr != nil {
		logger.Errorf("event=error_encode_failed request_id=%s err=%v", requestID, encodeErr)
	}
}

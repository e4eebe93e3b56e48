package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clipwise/internal/api"
	"clipwise/internal/config"
	"clipwise/internal/logging"
	"clipwise/internal/services"
	"clipwise/internal/store"
)

const (
	defaultRunLimit   = 50
	defaultAssetLimit = 200
	maxRequestBody    = 1 << 16
)

type apiServer struct {
	bind    string
	token   string
	logger  *slog.Logger
	daemon  *Daemon
	runsSvc *api.RunService

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:    bind,
		token:   strings.TrimSpace(cfg.Paths.APIToken),
		logger:  logger,
		daemon:  d,
		runsSvc: api.NewRunService(d.store),
	}
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", authMiddleware(s.token, s.handleStatus))
	mux.HandleFunc("GET /api/runs", authMiddleware(s.token, s.handleListRuns))
	mux.HandleFunc("POST /api/runs", authMiddleware(s.token, s.handleTrigger))
	mux.HandleFunc("GET /api/runs/{id}", authMiddleware(s.token, s.handleRun))
	mux.HandleFunc("GET /api/assets", authMiddleware(s.token, s.handleAssets))
	mux.HandleFunc("GET /api/campaign", authMiddleware(s.token, s.handleGetCampaign))
	mux.HandleFunc("PUT /api/campaign", authMiddleware(s.token, s.handlePutCampaign))
	mux.HandleFunc("GET /api/storage", authMiddleware(s.token, s.handleStorage))
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.token != ""),
	)
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr returns the bound address once the server is listening.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Schedule:     status.Schedule,
		NextTrigger:  api.FormatTime(status.NextTrigger),
		Campaign:     api.FromState(status.Campaign),
		Workflow:     api.FromStatusSummary(status.Workflow),
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultRunLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var statuses []store.RunStatus
	for _, value := range r.URL.Query()["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		statuses = append(statuses, store.RunStatus(trimmed))
	}
	runs, err := s.runsSvc.List(r.Context(), limit, statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []api.Run{}
	}
	s.writeJSON(w, http.StatusOK, api.RunListResponse{Runs: runs})
}

func (s *apiServer) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req api.TriggerRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.daemon.Trigger(r.Context(), req.Campaign, req.BatchSize)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.TriggerResponse{ExecutionID: id})
}

func (s *apiServer) handleRun(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		s.writeError(w, http.StatusNotFound, services.ErrNotFound)
		return
	}
	report, err := s.daemon.RunReport(r.Context(), id)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromRunReport(report))
}

func (s *apiServer) handleAssets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := parseLimit(query.Get("limit"), defaultAssetLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	filter := store.IndexFilter{
		Campaign: config.NormalizeCampaign(query.Get("campaign")),
		Source:   strings.TrimSpace(query.Get("source")),
		Status:   strings.ToUpper(strings.TrimSpace(query.Get("status"))),
		Limit:    limit,
	}
	assets, err := s.runsSvc.Assets(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if assets == nil {
		assets = []api.Asset{}
	}
	s.writeJSON(w, http.StatusOK, api.AssetListResponse{Assets: assets})
}

func (s *apiServer) handleGetCampaign(w http.ResponseWriter, _ *http.Request) {
	state, err := s.daemon.CampaignState()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromState(state))
}

func (s *apiServer) handlePutCampaign(w http.ResponseWriter, r *http.Request) {
	var req api.CampaignState
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	state, err := s.daemon.SetCampaignState(config.State{Campaign: req.Campaign, BatchSize: req.BatchSize})
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromState(state))
}

func (s *apiServer) handleStorage(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimPrefix(strings.TrimSpace(r.URL.Query().Get("prefix")), "/")
	objects, err := s.daemon.ListObjects(r.Context(), prefix)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	s.writeJSON(w, http.StatusOK, api.ObjectListResponse{Prefix: prefix, Keys: keys})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return services.Wrap(services.ErrValidation, "api", "decode request", "Malformed JSON body", err)
	}
	return nil
}

func parseLimit(value string, fallback int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit <= 0 {
		return 0, services.Wrap(services.ErrValidation, "api", "parse limit",
			fmt.Sprintf("limit must be a positive integer, got %q", value), nil)
	}
	return limit, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrConfiguration), errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Kind: services.Kind(err)})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}

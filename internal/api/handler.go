// Package api provides the HTTP operations console for erpsync.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"erpsync/internal/domain"
)

// Engine is the orchestrator surface the console drives.
type Engine interface {
	ListSourceTables(ctx context.Context) ([]domain.TableDescriptor, error)
	ProvisionSchema(ctx context.Context) (*domain.RunSummary, error)
	SyncSelected(ctx context.Context, tables []string) (*domain.RunSummary, error)
	SyncAll(ctx context.Context) (*domain.RunSummary, error)
	FullSync(ctx context.Context) (*domain.RunSummary, error)
	ExistingColumns(ctx context.Context, table string) ([]string, error)
	DropAll(ctx context.Context) ([]string, error)
	TruncateAll(ctx context.Context) ([]string, error)
	TruncateOne(ctx context.Context, table string) error
}

// Handler serves the console routes.
type Handler struct {
	engine Engine
	logger *slog.Logger
}

// NewHandler creates a Handler over engine.
func NewHandler(engine Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger.With("component", "api")}
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listSourceTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.engine.ListSourceTables(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tables": TablesToAPI(tables)})
}

func (h *Handler) provision(w http.ResponseWriter, r *http.Request) {
	h.runSummary(w, r, h.engine.ProvisionSchema)
}

func (h *Handler) syncSelected(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	h.runSummary(w, r, func(ctx context.Context) (*domain.RunSummary, error) {
		return h.engine.SyncSelected(ctx, req.Tables)
	})
}

func (h *Handler) syncAll(w http.ResponseWriter, r *http.Request) {
	h.runSummary(w, r, h.engine.SyncAll)
}

func (h *Handler) fullSync(w http.ResponseWriter, r *http.Request) {
	h.runSummary(w, r, h.engine.FullSync)
}

func (h *Handler) existingColumns(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	cols, err := h.engine.ExistingColumns(r.Context(), table)
	if err != nil {
		h.writeDomainError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"table": table, "columns": cols})
}

func (h *Handler) dropAll(w http.ResponseWriter, r *http.Request) {
	h.runReset(w, r, h.engine.DropAll)
}

func (h *Handler) truncateAll(w http.ResponseWriter, r *http.Request) {
	h.runReset(w, r, h.engine.TruncateAll)
}

func (h *Handler) truncateOne(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if err := h.engine.TruncateOne(context.WithoutCancel(r.Context()), table); err != nil {
		h.writeDomainError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tables": []string{table}})
}

// runSummary executes a mutating run detached from client cancellation.
func (h *Handler) runSummary(w http.ResponseWriter, r *http.Request, fn func(context.Context) (*domain.RunSummary, error)) {
	sum, err := fn(context.WithoutCancel(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err, sum)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) runReset(w http.ResponseWriter, r *http.Request, fn func(context.Context) ([]string, error)) {
	if ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !ok {
		writeError(w, http.StatusBadRequest, "destructive operation requires confirm=true")
		return
	}
	tables, err := fn(context.WithoutCancel(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err, nil)
		return
	}
	if tables == nil {
		tables = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tables": tables})
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error, sum *domain.RunSummary) {
	code := httpStatusFromDomainError(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, code, ErrorResponse{Code: code, Message: err.Error(), Summary: sum})
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, ErrorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

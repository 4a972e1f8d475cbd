package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"platform-sync-service/internal/config"
	"platform-sync-service/internal/platform"
	"platform-sync-service/internal/store"
	"platform-sync-service/internal/sync"
)

type Handler struct {
	engine    *sync.Engine
	authToken string
}

func NewHandler(engine *sync.Engine, cfg config.ServerConfig) *Handler {
	return &Handler{
		engine:    engine,
		authToken: cfg.AuthToken,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Route("/connections", func(r chi.Router) {
			r.Get("/", h.ListConnections)
			r.Post("/", h.CreateConnection)
			r.Get("/{id}", h.GetConnection)
			r.Put("/{id}", h.UpdateConnection)
			r.Delete("/{id}", h.DeleteConnection)
			r.Post("/{id}/test", h.TestConnection)
			r.Post("/{id}/sync", h.StartSync)
			r.Get("/{id}/operations", h.ListOperations)
			r.Get("/{id}/items", h.ListItems)
		})
		r.Get("/operations/{id}", h.GetOperation)
		r.Get("/items/{id}", h.GetItem)
		r.Post("/items/{id}/resolve", h.ResolveConflict)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := h.engine.Connections(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, conns)
}

func (h *Handler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	var conn store.Connection
	if err := json.NewDecoder(r.Body).Decode(&conn); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	created, err := h.engine.AddConnection(r.Context(), &conn)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.engine.Connection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, conn)
}

func (h *Handler) UpdateConnection(w http.ResponseWriter, r *http.Request) {
	var upd sync.ConnectionUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	conn, err := h.engine.UpdateConnection(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, conn)
}

func (h *Handler) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteConnection(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	err := h.engine.TestConnection(r.Context(), chi.URLParam(r, "id"))
	if err != nil && errors.Is(err, sync.ErrNotFound) {
		respondError(w, err)
		return
	}
	result := map[string]interface{}{"success": err == nil}
	if err != nil {
		result["error"] = err.Error()
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) StartSync(w http.ResponseWriter, r *http.Request) {
	op, err := h.engine.StartSync(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, op)
}

func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	ops, err := h.engine.Operations(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ops)
}

func (h *Handler) GetOperation(w http.ResponseWriter, r *http.Request) {
	op, err := h.engine.Operation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, op)
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.engine.Items(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.engine.Item(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *Handler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Resolution store.Resolution `json:"resolution"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	item, err := h.engine.ResolveConflict(r.Context(), chi.URLParam(r, "id"), req.Resolution)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sync.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, sync.ErrSyncInProgress):
		status = http.StatusConflict
	case errors.Is(err, sync.ErrInvalidResolution),
		errors.Is(err, sync.ErrNotConflicted),
		errors.Is(err, sync.ErrInvalidConfig),
		errors.Is(err, platform.ErrUnsupportedPlatform),
		errors.Is(err, platform.ErrInvalidCredentials):
		status = http.StatusBadRequest
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}

// AuthMiddleware enforces the configured bearer token. An empty token
// leaves the API open, which is the development default.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token != h.authToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Package httpapi exposes the agent's lifecycle orchestrator over HTTP,
// following a Server struct / chi router / respondJSON-respondError
// pattern generalized from a multi-tenant task API to a single
// host-resident VM lifecycle surface.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cloudstack/firecracker-agent/pkg/apierr"
	"github.com/cloudstack/firecracker-agent/pkg/console"
	"github.com/cloudstack/firecracker-agent/pkg/lifecycle"
	"github.com/cloudstack/firecracker-agent/pkg/logging"
	"github.com/cloudstack/firecracker-agent/pkg/security"
	"github.com/cloudstack/firecracker-agent/pkg/statestore"
)

// Server wires the lifecycle orchestrator, state store, optional console
// bridge, and logger into chi's router tree.
type Server struct {
	Orchestrator *lifecycle.Orchestrator
	Store        *statestore.Store
	Console      *console.Manager // nil when the console bridge is disabled
	Log          logging.Logger
}

func New(orc *lifecycle.Orchestrator, store *statestore.Store, consoleMgr *console.Manager, log logging.Logger) *Server {
	return &Server{Orchestrator: orc, Store: store, Console: consoleMgr, Log: log}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequest)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/vms", s.createVM)
		r.Get("/vms", s.listVMs)

		r.Route("/vms/{name}", func(r chi.Router) {
			r.Get("/status", s.vmStatus)
			r.Get("/details", s.vmDetails)
			r.Post("/start", s.startVM)
			r.Post("/stop", s.stopVM)
			r.Post("/reboot", s.rebootVM)
			r.Delete("/", s.deleteVM)
			r.Post("/recover", s.recoverVM)
			r.Post("/console", s.ensureConsole)
			r.Delete("/console", s.stopConsole)
		})

		r.Route("/network-config/{name}", func(r chi.Router) {
			r.Get("/", s.getNetworkConfig)
			r.Post("/", s.saveNetworkConfig)
			r.Delete("/", s.deleteNetworkConfig)
			r.Post("/apply", s.applyNetworkConfig)
		})

		r.Post("/graceful-shutdown", s.gracefulShutdown)
		r.Post("/save-states", s.saveStates)
		r.Post("/recover-all", s.recoverAll)
	})

	return r
}

// logRequest logs method+path on receipt of every request.
func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Log.Info(r.Context(), "http request received", map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "time": time.Now()})
}

// --- VM lifecycle endpoints --------------------------------------------------

func (s *Server) createVM(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	spec, err := s.Orchestrator.Create(r.Context(), payload, 0)
	if err != nil {
		respondError(w, apierr.HTTPStatus(err), err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"vm_name": spec.Name,
	})
}

func (s *Server) listVMs(w http.ResponseWriter, r *http.Request) {
	infos, err := s.Orchestrator.Discover(r.Context())
	if err != nil {
		respondError(w, apierr.HTTPStatus(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "vms": infos})
}

func (s *Server) vmStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	status := s.Orchestrator.Status(r.Context(), name)
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "vm_name": name, "power_state": status})
}

// vmDetails returns the VM's power state plus its persisted create payload,
// with sensitive leaves (SSH key, any password/secret/token field)
// redacted before leaving the process.
func (s *Server) vmDetails(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	status := s.Orchestrator.Status(r.Context(), name)

	resp := map[string]interface{}{
		"status":      "success",
		"vm_name":     name,
		"power_state": status,
	}
	if payload, ok, err := s.Store.LoadCreatePayload(name); err == nil && ok {
		resp["spec"] = security.RedactPayload(payload)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) startVM(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	payload, err := decodeOptionalPayload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Orchestrator.Start(r.Context(), name, payload, 0); err != nil {
		respondError(w, apierr.HTTPStatus(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "vm_name": name})
}

func (s *Server) stopVM(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.Orchestrator.Stop(r.Context(), name, 0); err != nil {
		respondError(w, apierr.HTTPStatus(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "vm_name": name})
}

func (s *Server) rebootVM(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	payload, err := decodeOptionalPayload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Orchestrator.Reboot(r.Context(), name, payload, 0); err != nil {
		respondError(w, apierr.HTTPStatus(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "vm_name": name})
}

func (s *Server) deleteVM(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.Orchestrator.Delete(r.Context(), name); err != nil {
		respondError(w, apierr.HTTPStatus(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "vm_name": name})
}

func (s *Server) recoverVM(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	payload, err := decodeOptionalPayload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Orchestrator.Recover(r.Context(), name, payload); err != nil {
		respondError(w, apierr.HTTPStatus(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "vm_name": name})
}

// --- Console bridge endpoints ------------------------------------------------

func (s *Server) ensureConsole(w http.ResponseWriter, r *http.Request) {
	if s.Console == nil {
		respondError(w, http.StatusServiceUnavailable, apierr.New(apierr.Internal, "console bridge is disabled"))
		return
	}
	name := chi.URLParam(r, "name")
	resp, err := s.Console.EnsureConsole(r.Context(), name)
	if err != nil {
		respondError(w, apierr.HTTPStatus(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "console": resp})
}

func (s *Server) stopConsole(w http.ResponseWriter, r *http.Request) {
	if s.Console == nil {
		respondError(w, http.StatusServiceUnavailable, apierr.New(apierr.Internal, "console bridge is disabled"))
		return
	}
	name := chi.URLParam(r, "name")
	msg := s.Console.StopConsole(r.Context(), name)
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "message": msg})
}

// --- Network config endpoints -------------------------------------------------

func (s *Server) getNetworkConfig(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	snap, ok, err := s.Store.LoadNetworkSnapshot(name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, apierr.NotFoundf("no network config saved for %s", name))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "network_config": snap})
}

func (s *Server) saveNetworkConfig(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var snap statestore.NetworkSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	snap.VMName = name
	if err := s.Store.SaveNetworkSnapshot(name, &snap); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "vm_name": name})
}

func (s *Server) deleteNetworkConfig(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.Store.DeleteNetworkSnapshot(name); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "vm_name": name})
}

// applyNetworkConfig reconstructs networking from the saved snapshot for a
// VM: a real dataplane re-program, not a stub that only logs.
func (s *Server) applyNetworkConfig(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.Orchestrator.Recover(r.Context(), name, nil); err != nil {
		respondError(w, apierr.HTTPStatus(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "vm_name": name})
}

// --- Fleet-wide endpoints ------------------------------------------------------

func (s *Server) gracefulShutdown(w http.ResponseWriter, r *http.Request) {
	if err := s.Orchestrator.GracefulShutdownAll(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "success"})
}

func (s *Server) saveStates(w http.ResponseWriter, r *http.Request) {
	if err := s.Orchestrator.SaveStates(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "success"})
}

func (s *Server) recoverAll(w http.ResponseWriter, r *http.Request) {
	if err := s.Orchestrator.RecoverAll(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "success"})
}

// --- Helpers -------------------------------------------------------------------

func decodePayload(r *http.Request) (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// decodeOptionalPayload returns (nil, nil) for an empty body, matching
// endpoints where a request body is optional (start/reboot/recover may or
// may not carry a fresh spec).
func decodeOptionalPayload(r *http.Request) (map[string]interface{}, error) {
	if r.ContentLength == 0 {
		return nil, nil
	}
	var payload map[string]interface{}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&payload); err != nil {
		return nil, nil // an unparsable/empty optional body is treated as "none supplied"
	}
	return payload, nil
}

func respondJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, code int, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	respondJSON(w, code, map[string]interface{}{"error": msg})
}

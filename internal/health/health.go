// Package health serves the operator probes.
//
// /healthz answers 200 while the process runs and carries a snapshot of the
// dialogue state. /readyz answers 200 only while every provider [Checker]
// passes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const checkTimeout = 5 * time.Second

// Checker probes one dependency. Check returns nil while it is usable and
// must give up when ctx is done.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// StatusFunc snapshots runtime state for /healthz.
type StatusFunc func() map[string]string

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Info   map[string]string `json:"info,omitempty"`
}

// Handler serves the probes for a fixed set of checkers.
type Handler struct {
	checkers []Checker
	status   StatusFunc
}

func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// WithStatus sets the /healthz snapshot source and returns h.
func (h *Handler) WithStatus(fn StatusFunc) *Handler {
	h.status = fn
	return h
}

// Healthz never fails and never runs the checkers.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	res := result{Status: "ok"}
	if h.status != nil {
		res.Info = h.status()
	}
	reply(w, http.StatusOK, res)
}

// Readyz runs all checkers concurrently, each bounded by checkTimeout, and
// answers 503 if any failed.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	errs := make([]error, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			errs[i] = c.Check(ctx)
			return nil
		})
	}
	g.Wait()

	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	code := http.StatusOK
	for i, c := range h.checkers {
		if errs[i] == nil {
			res.Checks[c.Name] = "ok"
			continue
		}
		res.Checks[c.Name] = "fail: " + errs[i].Error()
		res.Status, code = "fail", http.StatusServiceUnavailable
	}
	reply(w, code, res)
}

// Register mounts GET /healthz and GET /readyz on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func reply(w http.ResponseWriter, code int, res result) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(res)
}

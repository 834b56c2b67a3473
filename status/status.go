// Package status serves the registry's plaintext status surface: live robot
// count, current captain, service health and the administrative election
// trigger.
package status

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/adamgarcia4/goLearning/fleet/logger"
	"github.com/adamgarcia4/goLearning/fleet/registry"
)

// Fleet is what the status surface reads. *registry.Registry satisfies it.
type Fleet interface {
	Count() int
	GetCaptain() (registry.Node, bool)
	RequestElection() (uint64, error)
}

const (
	bodyHealthy         = "OK"
	bodyNoCaptain       = "None"
	bodyElectionStarted = "New captain election started"
	bodyInvalidEndpoint = "Invalid Endpoint"
	bodyBadMethod       = "Unsupported Method"
)

// NewHandler routes the status endpoints.
func NewHandler(f Fleet) http.Handler {
	mux := http.NewServeMux()

	// Number of live robots
	mux.HandleFunc("/status", only(http.MethodGet, func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, strconv.Itoa(f.Count()))
	}))

	mux.HandleFunc("/captain", only(http.MethodGet, func(w http.ResponseWriter, _ *http.Request) {
		captain, ok := f.GetCaptain()
		if !ok {
			writeText(w, http.StatusOK, bodyNoCaptain)
			return
		}
		writeText(w, http.StatusOK, fmt.Sprintf("id=%d name=%s", captain.ID, captain.Name))
	}))

	mux.HandleFunc("/health", only(http.MethodGet, func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, bodyHealthy)
	}))

	mux.HandleFunc("/electCaptain", only(http.MethodPost, func(w http.ResponseWriter, _ *http.Request) {
		if _, err := f.RequestElection(); err != nil {
			if errors.Is(err, registry.ErrEmptyFleet) {
				writeText(w, http.StatusBadRequest, err.Error())
				return
			}
			writeText(w, http.StatusInternalServerError, "Error: "+err.Error())
			return
		}
		writeText(w, http.StatusOK, bodyElectionStarted)
	}))

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusNotFound, bodyInvalidEndpoint)
	})

	return mux
}

func only(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeText(w, http.StatusMethodNotAllowed, bodyBadMethod)
			return
		}
		h(w, r)
	}
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// Server runs the status surface on its own listener.
type Server struct {
	srv *http.Server
	log *logger.Scope
}

func NewServer(addr string, f Fleet) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(f),
			ReadHeaderTimeout: 5 * time.Second, // Prevent slowloris attacks
		},
		log: logger.Named("http"),
	}
}

// Start serves until Shutdown. It blocks.
func (s *Server) Start() error {
	s.log.Printf("Listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Package prometheus exposes the process metrics registered with the
// Prometheus default registerer, together with health and goroutine
// introspection routes, on a dedicated monitoring listener.
package prometheus

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"runtime/pprof"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"github.com/zkiotchain/zkiot/runtime"
)

var log = logrus.WithField("prefix", "prometheus")

// Service provides Prometheus metrics via the /metrics route. The same
// listener serves /healthz, built from the statuses of every service in
// the node's registry, and /goroutinez with a full goroutine dump.
type Service struct {
	server      *http.Server
	svcRegistry *runtime.ServiceRegistry
	failStatus  error
}

// Handler mounts an additional route on the monitoring listener.
type Handler struct {
	Path    string
	Handler func(http.ResponseWriter, *http.Request)
}

// New sets up a monitoring service for the given address host:port. An
// empty host matches any interface, so an address like ":8080" is
// perfectly acceptable.
func New(addr string, svcRegistry *runtime.ServiceRegistry, additionalHandlers ...Handler) *Service {
	s := &Service{svcRegistry: svcRegistry}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", s.healthzHandler)
	router.HandleFunc("/goroutinez", s.goroutinezHandler)
	for _, h := range additionalHandlers {
		router.HandleFunc(h.Path, h.Handler)
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           cors.Default().Handler(router),
		ReadHeaderTimeout: 3 * time.Second,
	}

	return s
}

func (s *Service) healthzHandler(w http.ResponseWriter, r *http.Request) {
	type serviceStatus struct {
		Name   string `json:"service"`
		Status bool   `json:"status"`
		Err    string `json:"error"`
	}
	var statuses []serviceStatus
	var hasError bool
	if s.svcRegistry != nil {
		for kind, status := range s.svcRegistry.Statuses() {
			entry := serviceStatus{
				Name:   kind.String(),
				Status: true,
			}
			if status != nil {
				entry.Status = false
				entry.Err = status.Error()
				if entry.Err != "" {
					hasError = true
				}
			}
			statuses = append(statuses, entry)
		}
	}

	if hasError {
		w.WriteHeader(http.StatusInternalServerError)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	// Handle plain text content.
	if contentType := negotiateContentType(r); contentType == contentTypePlainText {
		var buf bytes.Buffer
		for _, entry := range statuses {
			line := fmt.Sprintf("%s: %v, error: %v\n", entry.Name, entry.Status, entry.Err)
			buf.WriteString(line)
		}

		if err := writeResponse(w, r, generatedResponse{Data: buf}); err != nil {
			log.WithError(err).Error("Could not write healthz response")
		}
		return
	}

	// Handle JSON content.
	if err := writeResponse(w, r, generatedResponse{Data: statuses}); err != nil {
		log.WithError(err).Error("Could not write healthz response")
	}
}

func (s *Service) goroutinezHandler(w http.ResponseWriter, _ *http.Request) {
	stack := debug.Stack()
	// #nosec G104
	w.Write(stack)
	// #nosec G104
	pprof.Lookup("goroutine").WriteTo(w, 2)
}

// Start the prometheus service.
func (s *Service) Start() {
	log.WithField("endpoint", s.server.Addr).Info("Starting service")
	go func() {
		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Errorf("Could not listen to host:port %s", s.server.Addr)
			s.failStatus = err
		}
	}()
}

// Stop the service gracefully.
func (s *Service) Stop() error {
	log.Info("Stopping service")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Status checks for any service failure conditions.
func (s *Service) Status() error {
	if s.failStatus != nil {
		return s.failStatus
	}
	return nil
}

// Package report prints the finished run summary and, optionally,
// serves it over HTTP while the CLI process stays alive.
package report

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/syifan/goseth"

	"github.com/sarchlab/snoopsim/stats"
)

// Server exposes GET /report returning the Report it was given as JSON.
// It is a single endpoint, not a browsable tree; each request serializes
// the Report as it stands at that moment, so a Report still being
// accumulated by a running simulation shows its current counters.
type Server struct {
	report   *stats.Report
	listener net.Listener
}

// Listen starts a Server bound to addr ("host:port", or ":0" for a
// random port) and begins serving in the background.
func Listen(addr string, report *stats.Report) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("report: failed to bind %s: %w", addr, err)
	}

	s := &Server{report: report, listener: listener}

	r := mux.NewRouter()
	r.HandleFunc("/report", s.serveReport)

	fmt.Fprintf(os.Stderr, "Serving report at http://%s/report\n", listener.Addr())

	go func() {
		_ = http.Serve(listener, r)
	}()

	return s, nil
}

// Addr returns the address the server is bound to.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close stops accepting connections. Registered with atexit by
// cmd/snoopsim so it runs when the process exits through atexit.Exit.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) serveReport(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	serializer := goseth.NewSerializer()
	serializer.SetRoot(s.report)
	serializer.SetMaxDepth(3)

	if err := serializer.Serialize(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

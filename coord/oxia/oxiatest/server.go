// Package oxiatest starts Oxia servers for tests.
package oxiatest

import (
	"io"
	"os"
	"testing"

	"github.com/oxia-db/oxia/oxiad/dataserver"
)

// Server is an embedded standalone Oxia server, or a handle on an external
// one named by OXIA_SERVICE_ADDRESS.
type Server struct {
	standalone *dataserver.Standalone
	addr       string
	dir        string
}

// Addr returns the service address.
func (s *Server) Addr() string {
	return s.addr
}

// Close shuts down an embedded server and removes its data directory.
func (s *Server) Close() error {
	var err error
	if s.standalone != nil {
		err = s.standalone.Close()
		s.standalone = nil
	}
	if s.dir != "" {
		_ = os.RemoveAll(s.dir)
		s.dir = ""
	}
	return err
}

// Start returns a server for t, closed via t.Cleanup. When
// OXIA_SERVICE_ADDRESS is set that server is used instead of an embedded one.
func Start(t testing.TB) *Server {
	t.Helper()

	if addr := os.Getenv("OXIA_SERVICE_ADDRESS"); addr != "" {
		t.Logf("using external Oxia server at %s", addr)
		return &Server{addr: addr}
	}

	dir, err := os.MkdirTemp("", "treekeeper-oxia-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	standalone, err := dataserver.NewStandalone(dataserver.NewTestConfig(dir))
	if err != nil {
		_ = os.RemoveAll(dir)
		t.Fatalf("start Oxia standalone server: %v", err)
	}

	s := &Server{standalone: standalone, addr: standalone.ServiceAddr(), dir: dir}
	t.Cleanup(func() { _ = s.Close() })
	t.Logf("started embedded Oxia server at %s", s.addr)
	return s
}

var _ io.Closer = (*Server)(nil)

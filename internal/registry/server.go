// Package registry serves the bootnode registry HTTP API on top of a
// storage.MemoryStore.
//
// Routes:
//
//	POST /                        store or refresh an EnodeInfo
//	GET  /staticenodes?network=N  JSON array of enode URLs for N
//	GET  /nodes?network=N         stored records for N
//	GET  /health                  200 OK
package registry

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/dreamware/nodekeeper/internal/bootnode"
	"github.com/dreamware/nodekeeper/internal/logging"
	"github.com/dreamware/nodekeeper/internal/storage"
)

// maxBody bounds a published record.
const maxBody = 64 << 10

// Server handles registry requests.
type Server struct {
	store  *storage.MemoryStore
	logger *zap.Logger
}

// NewServer returns a server backed by store. logger may be nil.
func NewServer(store *storage.MemoryStore, logger *zap.Logger) *Server {
	return &Server{store: store, logger: logging.OrNop(logger)}
}

// Store returns the backing store.
func (s *Server) Store() *storage.MemoryStore {
	return s.store
}

// Routes returns the registry's request multiplexer.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handlePublish)
	mux.HandleFunc("/staticenodes", s.handleStaticEnodes)
	mux.HandleFunc("/nodes", s.handleListNodes)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// handlePublish stores the EnodeInfo posted to /.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var info bootnode.EnodeInfo
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&info); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.store.Put(info); err != nil {
		s.logger.Warn("rejected enode record", zap.String("network", info.Network), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.logger.Debug("enode registered",
		zap.String("network", info.Network),
		zap.String("enode", info.Enode),
		zap.Bool("miner", info.Miner))
	w.WriteHeader(http.StatusNoContent)
}

// handleStaticEnodes returns the network's peer list as a JSON array of
// enode URLs.
func (s *Server) handleStaticEnodes(w http.ResponseWriter, r *http.Request) {
	network, ok := networkParam(w, r)
	if !ok {
		return
	}

	addrs := s.store.Addresses(network)
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	writeJSON(w, out)
}

// handleListNodes returns the full records of a network.
func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	network, ok := networkParam(w, r)
	if !ok {
		return
	}

	writeJSON(w, struct {
		Nodes []storage.Record `json:"nodes"`
	}{Nodes: s.store.List(network)})
}

var errNoNetwork = errors.New("network query parameter required")

func networkParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}
	network := r.URL.Query().Get("network")
	if network == "" {
		http.Error(w, errNoNetwork.Error(), http.StatusBadRequest)
		return "", false
	}
	return network, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

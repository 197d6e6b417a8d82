package service

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gossipnetworks/gossamer/src/guard"
	"github.com/gossipnetworks/gossamer/src/membership"
	"github.com/gossipnetworks/gossamer/src/node"
	"github.com/sirupsen/logrus"
)

// Service ...
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServerMux of the
// http package. It is possible that another server in the same process is
// simultaneously using the DefaultServerMux. In which case, the handlers will
// be accessible from both servers. This is useful when gossamer is used
// in-memory and expected to use the same endpoint (address:port) as the
// application's API.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering gossamer API handlers")
	http.HandleFunc("/stats", s.makeHandler(s.GetStats))
	http.HandleFunc("/members", s.makeHandler(s.GetMembers))
	http.HandleFunc("/members/", s.makeHandler(s.GetMember))
	http.Handle("/metrics", guard.MetricsHandler())
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Serve calls ListenAndServe. This is a blocking call. It is not necessary to
// call Serve when gossamer is used in-memory and another server has already
// been started with the DefaultServerMux and the same address:port
// combination. Indeed, gossamer API handlers have already been registered when
// the service was instantiated.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving gossamer API")

	// Use the DefaultServerMux
	err := http.ListenAndServe(s.bindAddress, nil)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.node.GetStats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetMembers returns the full membership table, tombstones included.
func (s *Service) GetMembers(w http.ResponseWriter, r *http.Request) {
	returnMembers(w, s.node.Snapshot())
}

// GetMember returns a single member by address.
func (s *Service) GetMember(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Path[len("/members/"):]

	m, ok := s.node.GetMember(addr)
	if !ok {
		http.Error(w, "unknown member", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(m)
}

func returnMembers(w http.ResponseWriter, members []membership.Member) {
	w.Header().Set("Content-Type", "application/json")

	encoder := json.NewEncoder(w)

	encoder.Encode(members)
}

package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const pathPrefix = "/latest/meta-data/"

var ErrAlreadyPublished = errors.New("metadata already published for this address")

// Server is the host side of the handoff channel. A bundle published for an
// address is only ever returned to requests coming from that address.
type Server struct {
	namespace string
	logger    logrus.FieldLogger

	lock    sync.RWMutex
	bundles map[string][]byte

	engine *gin.Engine
}

func NewServer(namespace string, logger logrus.FieldLogger) *Server {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	s := &Server{
		namespace: namespace,
		logger:    logger,
		bundles:   make(map[string][]byte),
	}

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	// the source address must be the peer, never a forwarded header
	_ = s.engine.SetTrustedProxies(nil)
	s.engine.GET(pathPrefix+":namespace", s.handleGet)

	return s
}

func normalizeAddress(address string) (string, error) {
	host := address
	if h, _, err := net.SplitHostPort(address); err == nil {
		host = h
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return "", fmt.Errorf("invalid instance address %q", address)
	}

	return ip.String(), nil
}

// Publish stores bundle for the instance reachable at address. A bundle can
// be published for an address only once until it is revoked.
func (s *Server) Publish(address string, bundle *InstanceMetadata) error {
	key, err := normalizeAddress(address)
	if err != nil {
		return err
	}

	if err := bundle.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.bundles[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyPublished, key)
	}
	s.bundles[key] = data

	s.logger.WithFields(logrus.Fields{
		"address": key,
		"runner":  bundle.RunnerName,
	}).Debugln("Published instance metadata")

	return nil
}

func (s *Server) Revoke(address string) {
	key, err := normalizeAddress(address)
	if err != nil {
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.bundles, key)
}

func (s *Server) Published() int {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.bundles)
}

func (s *Server) lookup(address string) ([]byte, bool) {
	key, err := normalizeAddress(address)
	if err != nil {
		return nil, false
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	data, ok := s.bundles[key]
	return data, ok
}

func (s *Server) handleGet(c *gin.Context) {
	if c.Param("namespace") != s.namespace {
		c.Data(http.StatusNotFound, "application/json", []byte(`{"message":"not found"}`))
		return
	}

	data, ok := s.lookup(c.RemoteIP())
	if !ok {
		c.Data(http.StatusNotFound, "application/json", []byte(`{"message":"not found"}`))
		return
	}

	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package comms is the engine's external control surface: a small admin
// HTTP API for registering router endpoints and tuning auction parameters,
// and a websocket event feed broadcasting AuctionStarted, NewBid, and
// Settled notifications to any number of subscribers.
package comms

import (
	"context"
	"crypto/elliptic"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/decred/dcrd/certgen"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/fasttransfer/matchingengine/dex"
	"github.com/fasttransfer/matchingengine/internal/auction"
	"github.com/fasttransfer/matchingengine/internal/auctionconfig"
)

const (
	adminTimeoutSeconds = 10
	adminRatePerSec     = 20
	adminBurstSize      = 40

	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var log dex.Logger = btclog.Disabled

// SetLogger installs the subsystem logger.
func SetLogger(l dex.Logger) {
	log = l
}

// AdminEngine is the subset of the engine's administrative surface this
// package exposes over HTTP. The engine's settlement-critical methods
// (place_initial_bid and friends) are deliberately not reachable here; they
// arrive over the attested messaging substrate, not this API.
type AdminEngine interface {
	AddEndpoint(chain dex.ChainID, router dex.UniversalAddress) error
	SetConfig(cfg *auctionconfig.Config) error
	GetConfig() auctionconfig.Config
	SetFeeRecipient(addr dex.UniversalAddress)
}

// Config is the Server's constructor argument.
type Config struct {
	ListenAddr string
	RPCKey     string
	RPCCert    string
	NoTLS      bool
	// AltDNSNames specifies allowable request addresses for an
	// auto-generated TLS keypair.
	AltDNSNames []string
}

// Server hosts the admin HTTP API and the websocket event feed. It
// implements auction.EventSink so it can be wired directly into the
// Engine's Events field.
type Server struct {
	mux      *chi.Mux
	listener net.Listener
	limiter  *rate.Limiter

	engineMtx sync.RWMutex
	engine    AdminEngine

	upgrader websocket.Upgrader

	clientMtx sync.RWMutex
	clients   map[uint64]*wsClient
	nextID    uint64
}

type wsClient struct {
	id   uint64
	conn *websocket.Conn
	send chan []byte
}

// NewServer constructs a Server bound to cfg.ListenAddr. The server is
// TLS-only unless cfg.NoTLS is set, generating a self-signed keypair if one
// is not already present at the configured paths, the same convenience the
// teacher's NewServer offers. The admin engine collaborator is attached
// separately with SetEngine, since the engine's own Events field typically
// points back at this Server, a cycle that must be broken after both sides
// exist.
func NewServer(cfg *Config) (*Server, error) {
	var listener net.Listener
	if cfg.NoTLS {
		l, err := net.Listen("tcp", cfg.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("comms: listen: %w", err)
		}
		listener = l
	} else {
		if !fileExists(cfg.RPCCert) && !fileExists(cfg.RPCKey) {
			if err := genCertPair(cfg.RPCCert, cfg.RPCKey, cfg.AltDNSNames); err != nil {
				return nil, err
			}
		}
		keypair, err := tls.LoadX509KeyPair(cfg.RPCCert, cfg.RPCKey)
		if err != nil {
			return nil, fmt.Errorf("comms: load keypair: %w", err)
		}
		tlsConfig := &tls.Config{
			Certificates: []tls.Certificate{keypair},
			MinVersion:   tls.VersionTLS12,
		}
		l, err := tls.Listen("tcp", cfg.ListenAddr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("comms: listen: %w", err)
		}
		listener = l
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)

	s := &Server{
		mux:      mux,
		listener: listener,
		limiter:  rate.NewLimiter(adminRatePerSec, adminBurstSize),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[uint64]*wsClient),
	}
	s.routes()
	return s, nil
}

// SetEngine attaches the admin engine collaborator, unblocking the admin
// routes. Safe to call concurrently with requests; handlers that arrive
// before it is called report 503 rather than panic.
func (s *Server) SetEngine(e AdminEngine) {
	s.engineMtx.Lock()
	s.engine = e
	s.engineMtx.Unlock()
}

func (s *Server) adminEngine() (AdminEngine, bool) {
	s.engineMtx.RLock()
	defer s.engineMtx.RUnlock()
	return s.engine, s.engine != nil
}

func (s *Server) routes() {
	s.mux.Use(s.rateLimit)
	s.mux.Get("/healthz", s.handleHealthz)
	s.mux.Post("/admin/endpoints", s.handleAddEndpoint)
	s.mux.Get("/admin/config", s.handleGetConfig)
	s.mux.Put("/admin/config", s.handleSetConfig)
	s.mux.Post("/admin/fee-recipient", s.handleSetFeeRecipient)
	s.mux.Get("/events", s.handleEvents)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type addEndpointRequest struct {
	ChainID uint16 `json:"chain_id"`
	Router  string `json:"router"` // hex-encoded, 0x-prefixed 32 bytes
}

func (s *Server) handleAddEndpoint(w http.ResponseWriter, r *http.Request) {
	var req addEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse(err))
		return
	}
	router, err := dex.UniversalAddressFromHex(req.Router)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse(err))
		return
	}
	engine, ok := s.adminEngine()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "engine not attached"})
		return
	}
	if err := engine.AddEndpoint(dex.ChainID(req.ChainID), router); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse(err))
		return
	}
	log.Infof("admin: endpoint registered for chain %d", req.ChainID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	engine, ok := s.adminEngine()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "engine not attached"})
		return
	}
	writeJSON(w, http.StatusOK, engine.GetConfig())
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.adminEngine()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "engine not attached"})
		return
	}
	var cfg auctionconfig.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse(err))
		return
	}
	if err := engine.SetConfig(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse(err))
		return
	}
	log.Infof("admin: config updated")
	writeJSON(w, http.StatusOK, cfg)
}

type setFeeRecipientRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleSetFeeRecipient(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.adminEngine()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "engine not attached"})
		return
	}
	var req setFeeRecipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse(err))
		return
	}
	addr, err := dex.UniversalAddressFromHex(req.Address)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse(err))
		return
	}
	engine.SetFeeRecipient(addr)
	log.Infof("admin: fee recipient updated to %s", addr)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("events: upgrade failed: %v", err)
		return
	}
	s.clientMtx.Lock()
	id := s.nextID
	s.nextID++
	client := &wsClient{id: id, conn: conn, send: make(chan []byte, 64)}
	s.clients[id] = client
	s.clientMtx.Unlock()

	go s.writePump(client)
	go s.readPump(client)
}

// readPump drains and discards client frames (this feed is outbound-only)
// so the connection's pong handler keeps firing.
func (s *Server) readPump(c *wsClient) {
	defer s.removeClient(c.id)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) removeClient(id uint64) {
	s.clientMtx.Lock()
	defer s.clientMtx.Unlock()
	if c, ok := s.clients[id]; ok {
		close(c.send)
		delete(s.clients, id)
	}
}

type eventEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (s *Server) broadcast(eventType string, data any) {
	b, err := json.Marshal(eventEnvelope{Type: eventType, Data: data})
	if err != nil {
		log.Errorf("comms: marshal event: %v", err)
		return
	}
	s.clientMtx.RLock()
	defer s.clientMtx.RUnlock()
	for _, c := range s.clients {
		select {
		case c.send <- b:
		default:
			log.Debugf("comms: client %d send buffer full, dropping event", c.id)
		}
	}
}

// AuctionStarted implements auction.EventSink.
func (s *Server) AuctionStarted(ev auction.AuctionStarted) { s.broadcast("auction_started", ev) }

// NewBid implements auction.EventSink.
func (s *Server) NewBid(ev auction.NewBid) { s.broadcast("new_bid", ev) }

// Settled implements auction.EventSink.
func (s *Server) Settled(ev auction.Settled) { s.broadcast("settled", ev) }

// Run serves the admin API and event feed until ctx is canceled.
func (s *Server) Run(ctx context.Context) {
	httpServer := &http.Server{
		Handler:      s.mux,
		ReadTimeout:  adminTimeoutSeconds * time.Second,
		WriteTimeout: adminTimeoutSeconds * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Infof("comms: listening on %s", s.listener.Addr())
		if err := httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("comms: serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Infof("comms: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("comms: shutdown: %v", err)
	}

	s.clientMtx.Lock()
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.clientMtx.Unlock()

	wg.Wait()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("comms: encode response: %v", err)
	}
}

func errResponse(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// genCertPair generates a self-signed TLS keypair, following the teacher's
// genCertPair convenience for operators who haven't provisioned their own
// certificate.
func genCertPair(certFile, keyFile string, altDNSNames []string) error {
	log.Infof("comms: generating TLS certificate pair")
	org := "matchingengine autogenerated cert"
	validUntil := time.Now().Add(10 * 365 * 24 * time.Hour)
	cert, key, err := certgen.NewTLSCertPair(elliptic.P521(), org, validUntil, altDNSNames)
	if err != nil {
		return fmt.Errorf("comms: generate cert pair: %w", err)
	}
	if err := os.WriteFile(certFile, cert, 0644); err != nil {
		return fmt.Errorf("comms: write cert: %w", err)
	}
	if err := os.WriteFile(keyFile, key, 0600); err != nil {
		os.Remove(certFile)
		return fmt.Errorf("comms: write key: %w", err)
	}
	log.Infof("comms: TLS certificate pair generated")
	return nil
}

package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/supamanluva/ircd/internal/ban"
	"github.com/supamanluva/ircd/internal/burst"
	"github.com/supamanluva/ircd/internal/chanmode"
	"github.com/supamanluva/ircd/internal/channel"
	"github.com/supamanluva/ircd/internal/client"
	"github.com/supamanluva/ircd/internal/commands"
	"github.com/supamanluva/ircd/internal/conn"
	"github.com/supamanluva/ircd/internal/logger"
	"github.com/supamanluva/ircd/internal/numnick"
	"github.com/supamanluva/ircd/internal/parser"
	"github.com/supamanluva/ircd/internal/protocol"
	"github.com/supamanluva/ircd/internal/router"
	"github.com/supamanluva/ircd/internal/sendq"
	"github.com/supamanluva/ircd/internal/store"
	"github.com/supamanluva/ircd/internal/websocket"
)

// Config holds server configuration
type Config struct {
	ServerName      string
	Host            string
	Port            int
	MaxClients      int
	TLSEnabled      bool
	TLSPort         int
	TLSCertFile     string
	TLSKeyFile      string
	PingInterval    time.Duration
	Timeout         time.Duration
	ConnectTimeout  time.Duration // spec §4.D: how long an unregistered connection may sit without completing NICK/USER
	Operators       []Operator // Server operators for OPER command
	WebSocketEnabled bool
	WebSocketHost    string
	WebSocketPort    int
	WebSocketOrigins []string
	WebSocketTLS     bool
	WebSocketCert    string
	WebSocketKey     string
	
	// Server linking configuration
	LinkingEnabled  bool
	LinkingHost     string
	LinkingPort     int
	ServerID        string // this server's P10 numnick (2 chars: AB, CD, etc)
	ServerDesc      string // Server description
	LinkPassword    string // Password for incoming links
	Links           []LinkConfig // Configured links to other servers
}

// Operator represents a server operator
type Operator struct {
	Name     string
	Password string // bcrypt hashed password
}

// LinkConfig represents a configured server link
type LinkConfig struct {
	Name        string // Server name
	Numnick     string // Peer's P10 server numnick
	Host        string // Hostname/IP
	Port        int    // Link port
	Password    string // Link password
	AutoConnect bool   // Auto-connect on startup
	IsHub       bool   // Can this server link other servers?
}

// Server represents the IRC server
type Server struct {
	config         *Config
	logger         *logger.Logger
	listener       net.Listener
	tlsListener    net.Listener
	linkListener   net.Listener // Server linking listener
	wsServer       *http.Server
	clients        map[string]*client.Client  // nickname -> client
	clientsAddr    map[string]*client.Client  // address -> client
	channels       map[string]*channel.Channel
	netstore       *store.Store    // replicated network state (servers, clients, channels)
	peerRouter     *router.Router  // next-hop/member resolution for outbound traffic
	burstEngine    *burst.Engine   // BURST/EOB netburst exchange
	peers          map[string]*conn.Conn // server numnick -> link connection
	glines         *ban.List       // network-wide G-lines (user@host/$R masks)
	jupes          *ban.List       // network-wide server-name jupes
	badchans       *ban.List       // network-wide channel quarantines (BADCHAN)
	selfServer     *store.Server   // this server's own entry in netstore
	localNumnick   string
	seqMu          sync.Mutex
	nextClientSeq  int
	mu             sync.RWMutex
	shutdown       chan struct{}
	handler        *commands.Handler
}

// allocNumnick assigns the next local client numnick (server prefix plus a
// sequential 3-char client suffix, spec §2.B), the way ircu2 hands out
// numnicks from a per-server counter at registration time.
func (s *Server) allocNumnick() (string, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	part, err := numnick.EncodeClient(s.nextClientSeq)
	if err != nil {
		return "", fmt.Errorf("numnick space exhausted: %w", err)
	}
	s.nextClientSeq++
	return string(numnick.Join(s.localNumnick, part)), nil
}

// GetClient returns a client by nickname
func (s *Server) GetClient(nickname string) *client.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[nickname]
}

// AddClient adds a client to the registry
func (s *Server) AddClient(c *client.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	
	nick := c.GetNickname()
	if nick == "" {
		return fmt.Errorf("client has no nickname")
	}
	
	if _, exists := s.clients[nick]; exists {
		return fmt.Errorf("nickname already in use")
	}
	
	// Assign a numnick if the client is registered and doesn't have one yet.
	if c.IsRegistered() && c.GetUID() == "" {
		uid, err := s.allocNumnick()
		if err != nil {
			return err
		}
		c.SetUID(uid)
		s.logger.Info("Assigned numnick to client", "nick", nick, "numnick", uid)

		if s.netstore != nil {
			_, clientPart, splitErr := numnick.Split(numnick.Full(uid))
			if splitErr == nil {
				sc := store.NewClient(clientPart, s.selfServer)
				sc.Local = true
				sc.Nick = nick
				sc.User = c.GetUsername()
				sc.Host = c.GetHostname()
				sc.RealName = c.GetRealname()
				sc.ConnectTS = c.GetConnectTime().Unix()
				if err := s.netstore.InsertClient(sc); err != nil {
					s.logger.Warn("Failed to mirror client into netstore", "nick", nick, "error", err)
				}
			}
		}
	}

	s.clients[nick] = c
	return nil
}

// RemoveClient removes a client from the registry
func (s *Server) RemoveClient(c *client.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nick := c.GetNickname()
	if nick != "" {
		delete(s.clients, nick)
	}
	if s.netstore != nil {
		if uid := c.GetUID(); uid != "" {
			if sc, ok := s.netstore.FindClientByNumnick(uid); ok {
				s.netstore.RemoveClient(sc)
			}
		}
	}
}

// IsNicknameInUse checks if a nickname is already taken
func (s *Server) IsNicknameInUse(nickname string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.clients[nickname]
	return exists
}

// GetChannel returns a channel by name
func (s *Server) GetChannel(name string) *channel.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channels[name]
}

// CreateChannel creates a new channel or returns existing one
func (s *Server) CreateChannel(name string) *channel.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	
	// Check if channel already exists
	if ch, exists := s.channels[name]; exists {
		return ch
	}
	
	// Create new channel
	ch := channel.New(name)
	s.channels[name] = ch
	if s.netstore != nil {
		s.netstore.GetOrCreateChannel(name, time.Now().Unix())
	}
	s.logger.Info("Channel created", "channel", name)
	return ch
}

// RemoveChannel removes a channel if it's empty
func (s *Server) RemoveChannel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, exists := s.channels[name]; exists {
		if ch.IsEmpty() {
			delete(s.channels, name)
			if s.netstore != nil {
				if sc, ok := s.netstore.FindChannel(name); ok && sc.IsEmpty() {
					s.netstore.RemoveChannel(sc)
				}
			}
			s.logger.Info("Channel removed", "channel", name)
		}
	}
}

// BurstClient is one local client's worth of state for a netburst line.
type BurstClient struct {
	Nick      string
	User      string
	Host      string
	IP        string
	Modes     string
	RealName  string
	Numnick   string
	Timestamp int64
}

// GetBurstClients returns all local registered clients for burst synchronization.
func (s *Server) GetBurstClients() []BurstClient {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]BurstClient, 0, len(s.clients))

	for _, c := range s.clients {
		if !c.IsRegistered() {
			continue
		}
		clients = append(clients, BurstClient{
			Nick:      c.GetNickname(),
			User:      c.GetUsername(),
			Host:      c.GetHostname(),
			IP:        c.GetIP(),
			Modes:     c.GetModes(),
			RealName:  c.GetRealname(),
			Numnick:   c.GetUID(),
			Timestamp: c.GetConnectTime().Unix(),
		})
	}

	return clients
}

// BurstChannel is one local channel's worth of state for a netburst line.
type BurstChannel struct {
	Name    string
	TS      int64
	Modes   string
	Members map[string]string // numnick -> flag ("", "@", "+")
}

// GetBurstChannels returns all local channels for burst synchronization. It
// reads from netstore rather than this package's own channel.Channel so
// the full-numnick-keyed member set matches what
// internal/burst.BuildChannelBurst sends over the wire.
func (s *Server) GetBurstChannels() []BurstChannel {
	if s.netstore == nil {
		return nil
	}
	out := make([]BurstChannel, 0)
	for name := range s.channels {
		ch, ok := s.netstore.FindChannel(name)
		if !ok {
			continue
		}
		members := make(map[string]string)
		for _, m := range ch.MembersSnapshot() {
			switch {
			case m.HasStatus(store.StatusChanOp):
				members[m.Client.FullNumnick()] = "@"
			case m.HasStatus(store.StatusVoice):
				members[m.Client.FullNumnick()] = "+"
			default:
				members[m.Client.FullNumnick()] = ""
			}
		}
		out = append(out, BurstChannel{
			Name:    ch.Name,
			TS:      ch.CreationTS,
			Modes:   ch.ModeString(),
			Members: members,
		})
	}
	return out
}

// New creates a new IRC server
func New(cfg *Config, log *logger.Logger) (*Server, error) {
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 60 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 60 * time.Second
	}

	srv := &Server{
		config:      cfg,
		logger:      log,
		clients:     make(map[string]*client.Client),
		clientsAddr: make(map[string]*client.Client),
		channels:    make(map[string]*channel.Channel),
		shutdown:    make(chan struct{}),
		glines:      ban.NewList(ban.KindGline),
		jupes:       ban.NewList(ban.KindJupe),
		badchans:    ban.NewList(ban.KindBadchan),
	}

	// Initialize the replicated network state if linking is enabled.
	if cfg.LinkingEnabled && cfg.ServerID != "" {
		srv.localNumnick = cfg.ServerID
		srv.netstore = store.New()
		srv.peerRouter = router.New(srv.netstore, srv.localNumnick)
		srv.burstEngine = burst.New(srv.netstore)
		srv.peers = make(map[string]*conn.Conn)
		srv.selfServer = store.NewServer(cfg.ServerName, cfg.ServerID)
		srv.selfServer.StartTS = time.Now().Unix()
		if err := srv.netstore.InsertServer(srv.selfServer); err != nil {
			return nil, fmt.Errorf("failed to register self in netstore: %w", err)
		}
		log.Info("Server linking enabled", "numnick", cfg.ServerID)
	}
	
	// Convert config operators to commands.Operator
	cmdOperators := make([]commands.Operator, len(cfg.Operators))
	for i, op := range cfg.Operators {
		cmdOperators[i] = commands.Operator{
			Name:     op.Name,
			Password: op.Password,
		}
	}
	
	// Initialize command handler with server as registry
	srv.handler = commands.New(cfg.ServerName, log, srv, srv, cmdOperators)
	
	// Set router for the command handler if linking is enabled
	if cfg.LinkingEnabled && srv.peerRouter != nil {
		srv.handler.SetRouter(srv)
	}
	
	return srv, nil
}

// Start begins listening for connections
func (s *Server) Start(ctx context.Context) error {
	// Start regular TCP listener
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("Starting IRC server", "address", addr)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener

	s.logger.Info("Server listening", "address", addr)

	// Start TLS listener if enabled
	if s.config.TLSEnabled && s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
		if err := s.startTLSListener(ctx); err != nil {
			s.logger.Error("Failed to start TLS listener", "error", err)
		}
	}

	// Start WebSocket listener if enabled
	if s.config.WebSocketEnabled {
		if err := s.startWebSocketListener(ctx); err != nil {
			s.logger.Error("Failed to start WebSocket listener", "error", err)
		}
	}

	// Start server linking listener if enabled
	if s.config.LinkingEnabled {
		if err := s.StartLinkListener(); err != nil {
			s.logger.Error("Failed to start link listener", "error", err)
		} else {
			// Auto-connect to configured servers
			s.AutoConnect()
		}
	}

	// Start connection acceptor
	go s.acceptConnections(ctx, listener, false)

	// Start maintenance routines
	go s.pingClients(ctx)
	go s.checkTimeouts(ctx)

	// Wait for context cancellation
	<-ctx.Done()
	return nil
}

// startTLSListener starts the TLS listener
func (s *Server) startTLSListener(ctx context.Context) error {
	cert, err := tls.LoadX509KeyPair(s.config.TLSCertFile, s.config.TLSKeyFile)
	if err != nil {
		return fmt.Errorf("failed to load TLS certificates: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	tlsAddr := fmt.Sprintf("%s:%d", s.config.Host, s.config.TLSPort)
	tlsListener, err := tls.Listen("tcp", tlsAddr, tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to start TLS listener: %w", err)
	}

	s.tlsListener = tlsListener
	s.logger.Info("TLS server listening", "address", tlsAddr)

	// Start TLS connection acceptor
	go s.acceptConnections(ctx, tlsListener, true)

	return nil
}

// startWebSocketListener starts the WebSocket HTTP listener
func (s *Server) startWebSocketListener(ctx context.Context) error {
	// Create WebSocket handler
	wsConfig := &websocket.Config{
		AllowedOrigins:  s.config.WebSocketOrigins,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	
	wsHandler := websocket.NewHandler(wsConfig, s.logger, s.handleClient)
	
	// Create HTTP mux
	mux := http.NewServeMux()
	mux.Handle("/", wsHandler)
	mux.HandleFunc("/health", websocket.HealthCheck)
	
	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", s.config.WebSocketHost, s.config.WebSocketPort)
	s.wsServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	
	s.logger.Info("Starting WebSocket server", "address", addr)
	
	// Start server in goroutine
	go func() {
		var err error
		if s.config.WebSocketTLS && s.config.WebSocketCert != "" && s.config.WebSocketKey != "" {
			s.logger.Info("WebSocket server listening (TLS)", "address", addr)
			err = s.wsServer.ListenAndServeTLS(s.config.WebSocketCert, s.config.WebSocketKey)
		} else {
			s.logger.Info("WebSocket server listening", "address", addr)
			err = s.wsServer.ListenAndServe()
		}
		
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error("WebSocket server error", "error", err)
		}
	}()
	
	// Shutdown WebSocket server when context is done
	go func() {
		<-ctx.Done()
		if s.wsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.wsServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("Error shutting down WebSocket server", "error", err)
			}
		}
	}()
	
	return nil
}

// acceptConnections handles incoming client connections
func (s *Server) acceptConnections(ctx context.Context, listener net.Listener, isTLS bool) {
	connType := "TCP"
	if isTLS {
		connType = "TLS"
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				s.logger.Error("Failed to accept connection", "error", err, "type", connType)
				continue
			}

			// Check client limit
			s.mu.RLock()
			clientCount := len(s.clients)
			s.mu.RUnlock()

			if clientCount >= s.config.MaxClients {
				s.logger.Warn("Max clients reached, rejecting connection", "from", conn.RemoteAddr(), "type", connType)
				conn.Close()
				continue
			}

			// Handle client in a new goroutine
			go s.handleClient(conn)
		}
	}
}

// pingClients sends periodic PINGs to all connected clients
func (s *Server) pingClients(ctx context.Context) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			clients := make([]*client.Client, 0, len(s.clientsAddr))
			for _, c := range s.clientsAddr {
				clients = append(clients, c)
			}
			s.mu.RUnlock()

			// Send PING to clients that need it
			for _, c := range clients {
				if c.IsRegistered() && c.NeedsPing(s.config.PingInterval) {
					c.Send(fmt.Sprintf("PING :%s", s.config.ServerName))
					c.UpdatePingTime()
				}
			}
		}
	}
}

// checkTimeouts disconnects clients that have timed out
func (s *Server) checkTimeouts(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			clients := make([]*client.Client, 0, len(s.clientsAddr))
			for _, c := range s.clientsAddr {
				clients = append(clients, c)
			}
			s.mu.RUnlock()

			// Check for idle/unregistered clients. Unregistered connections
			// get the shorter CONNECTTIMEOUT window (spec §4.D); registered
			// ones fall under the ordinary ping-timeout policy.
			for _, c := range clients {
				if !c.IsRegistered() {
					if time.Since(c.GetConnectTime()) >= s.config.ConnectTimeout {
						s.logger.Info("Client registration timed out", "addr", c.GetHostname())
						c.Send("ERROR :Closing Link: (Registration timeout)")
						c.Disconnect()
					}
					continue
				}
				if c.IsIdle(s.config.Timeout) {
					s.logger.Info("Client timed out", "nickname", c.GetNickname())
					c.Send("ERROR :Closing Link: (Ping timeout)")
					c.Disconnect()
				}
			}
		}
	}
}

// handleClient manages a single client connection
func (s *Server) handleClient(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic in client handler", "error", r)
		}
		conn.Close()
	}()

	clientAddr := conn.RemoteAddr().String()
	s.logger.Info("New connection", "from", clientAddr)

	// Create client instance
	c := client.New(conn, s.logger)

	// Register client by address temporarily
	s.mu.Lock()
	s.clientsAddr[clientAddr] = c
	s.mu.Unlock()

	// Send initial message
	c.Send(fmt.Sprintf("NOTICE AUTH :*** Looking up your hostname..."))

	// Message processing loop
	for {
		// Read message from client
		line, err := c.Receive()
		if err != nil {
			s.logger.Debug("Client read error", "from", clientAddr, "error", err)
			break
		}

		// Check rate limit
		if !c.CheckRateLimit() {
			s.logger.Warn("Client exceeded rate limit", "from", clientAddr, "nickname", c.GetNickname())
			c.Send("ERROR :Excess Flood")
			break
		}

		// Parse IRC message
		msg, err := parser.Parse(line)
		if err != nil {
			s.logger.Warn("Failed to parse message", "from", clientAddr, "line", line, "error", err)
			continue
		}

		// Handle the command
		if err := s.handler.Handle(c, msg); err != nil {
			s.logger.Debug("Command handler error", "from", clientAddr, "command", msg.Command, "error", err)
			// QUIT command returns an error to signal disconnect
			if msg.Command == "QUIT" {
				break
			}
		}
	}

	// Cleanup
	s.mu.Lock()
	delete(s.clientsAddr, clientAddr)
	if c.IsRegistered() {
		delete(s.clients, c.GetNickname())
	}
	s.mu.Unlock()

	// TODO: Remove from channels in Phase 2

	c.Disconnect()
	s.logger.Info("Client disconnected", "from", clientAddr, "nickname", c.GetNickname())
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() {
	s.logger.Info("Shutting down server")

	// Close listeners
	if s.listener != nil {
		s.listener.Close()
	}
	if s.tlsListener != nil {
		s.tlsListener.Close()
	}

	// Disconnect all clients
	s.mu.Lock()
	for _, c := range s.clients {
		c.Disconnect()
	}
	s.mu.Unlock()

	close(s.shutdown)
	s.logger.Info("Server shutdown complete")
}

// Cross-server message routing, built on internal/router's next-hop
// resolution and internal/protocol's wire messages.

func (s *Server) sendToPeer(srv *store.Server, msg *protocol.Message) error {
	s.mu.RLock()
	peer, ok := s.peers[srv.Numnick]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no link to server %s", srv.Name)
	}
	return peer.Enqueue(msg.String()+"\r\n", sendq.Normal)
}

// RoutePrivmsg routes a PRIVMSG to a remote user
func (s *Server) RoutePrivmsg(sourceNick, sourceUser, sourceHost, targetNick, message string) error {
	if s.peerRouter == nil {
		return fmt.Errorf("routing not available")
	}

	target, ok := s.netstore.FindClientByName(targetNick)
	if !ok {
		return fmt.Errorf("user %s not found in network", targetNick)
	}

	_, nextHop, ok := s.peerRouter.RouteToClient(target.Numnick)
	if !ok || nextHop == nil {
		return fmt.Errorf("user %s not found in network", targetNick)
	}

	msg := protocol.BuildPrivmsg(s.localClientNumnick(sourceNick), target.Numnick, message)
	return s.sendToPeer(nextHop, msg)
}

// RouteNotice routes a NOTICE to a remote user
func (s *Server) RouteNotice(sourceNick, sourceUser, sourceHost, targetNick, message string) error {
	if s.peerRouter == nil {
		return fmt.Errorf("routing not available")
	}

	target, ok := s.netstore.FindClientByName(targetNick)
	if !ok {
		return fmt.Errorf("user %s not found in network", targetNick)
	}

	_, nextHop, ok := s.peerRouter.RouteToClient(target.Numnick)
	if !ok || nextHop == nil {
		return fmt.Errorf("user %s not found in network", targetNick)
	}

	msg := protocol.BuildNotice(s.localClientNumnick(sourceNick), target.Numnick, message)
	return s.sendToPeer(nextHop, msg)
}

// RouteChannelMessage routes a message to every peer with a member on the
// channel (skipping peers whose link is mid-burst for it).
func (s *Server) RouteChannelMessage(sourceNick, sourceUser, sourceHost, channelName, message, msgType string) error {
	if s.peerRouter == nil {
		return nil // Silently ignore if routing not available
	}

	ch, ok := s.netstore.FindChannel(channelName)
	if !ok {
		return nil
	}

	sourceNumnick := s.localClientNumnick(sourceNick)
	_, peers := s.peerRouter.RouteToChannel(ch, s.localNumnick, router.SkipBurst)

	var msg *protocol.Message
	if msgType == "NOTICE" {
		msg = protocol.BuildNotice(sourceNumnick, channelName, message)
	} else {
		msg = protocol.BuildPrivmsg(sourceNumnick, channelName, message)
	}

	var firstErr error
	for _, peer := range peers {
		if err := s.sendToPeer(peer, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// localClientNumnick returns the numnick the local client registered under
// nick is known by, or the bare nick if it has none yet (pre-registration).
func (s *Server) localClientNumnick(nick string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.clients[nick]; ok {
		if uid := c.GetUID(); uid != "" {
			return uid
		}
	}
	return nick
}

// IsUserLocal checks if a user is on the local server
func (s *Server) IsUserLocal(nickname string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.clients[nickname]
	return exists
}

// netstoreClient resolves a local client's nickname to its netstore entity,
// which SyncChannelJoin/SyncChannelPart need to mirror a membership
// change. Returns ok=false if either side isn't found (no
// netstore, client unregistered, or not yet numnick-assigned).
func (s *Server) netstoreClient(nickname string) (*store.Client, bool) {
	if s.netstore == nil {
		return nil, false
	}
	s.mu.RLock()
	c, ok := s.clients[nickname]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	uid := c.GetUID()
	if uid == "" {
		return nil, false
	}
	return s.netstore.FindClientByNumnick(uid)
}

// SyncChannelJoin mirrors a local JOIN into the replicated netstore, so a
// channel that's only ever seen local activity (never declared in a
// netburst) still resolves for RouteChannelMessage/ApplyChannelMode once a
// peer link comes up (spec §3 invariant P3, membership symmetry).
func (s *Server) SyncChannelJoin(channelName, nickname string, creationTS int64) {
	sc, ok := s.netstoreClient(nickname)
	if !ok {
		return
	}
	ch, _ := s.netstore.GetOrCreateChannel(channelName, creationTS)
	if _, exists := ch.MembershipFor(sc.Numnick); exists {
		return
	}
	m := &store.Membership{Client: sc, Channel: ch}
	ch.AddMembership(m)
	sc.Memberships[ch.Name] = m
}

// SyncChannelPart mirrors a local PART/KICK departure into the netstore,
// pruning the channel entity once its last member leaves (spec §3 invariant
// I3). Used for both PART (nickname is the leaving client) and KICK
// (nickname is the kicked target).
func (s *Server) SyncChannelPart(channelName, nickname string) {
	if s.netstore == nil {
		return
	}
	ch, ok := s.netstore.FindChannel(channelName)
	if !ok {
		return
	}
	sc, ok := s.netstoreClient(nickname)
	if !ok {
		return
	}
	ch.RemoveMembership(sc.Numnick)
	delete(sc.Memberships, ch.Name)
	if ch.IsEmpty() {
		s.netstore.RemoveChannel(ch)
	}
}

// CheckBadchan reports whether channelName is currently quarantined by an
// active BADCHAN record (spec §4.I), and if so, the reason to surface to
// the joining client.
func (s *Server) CheckBadchan(channelName string) (reason string, blocked bool) {
	records := s.badchans.Find(channelName, true)
	if len(records) == 0 {
		return "", false
	}
	return records[0].Reason, true
}

// ApplyChannelMode runs a channel mode change through internal/chanmode
// against the channel's netstore entity, propagating the result to every
// peer with a member on the channel, and returns the rendering local
// members should see.
func (s *Server) ApplyChannelMode(sourceNick, channelName, modeString string, params []string, privileged bool) (localModes string, localArgs []string, err error) {
	if s.netstore == nil {
		return "", nil, fmt.Errorf("network routing not available")
	}
	ch, ok := s.netstore.FindChannel(channelName)
	if !ok {
		return "", nil, fmt.Errorf("no such channel")
	}

	source := s.localClientNumnick(sourceNick)
	b := chanmode.NewBuilder(ch, source, privileged)
	chanmode.ParseModeString(b, modeString, s.translateOpVoiceParams(modeString, params))
	result := b.Flush()

	if s.peerRouter != nil && len(result.PeerLines) > 0 {
		_, peers := s.peerRouter.RouteToChannel(ch, s.localNumnick, router.SkipBurst)
		for _, line := range result.PeerLines {
			full := ":" + source + " " + line
			for _, peer := range peers {
				_ = s.sendRawToPeer(peer, full)
			}
		}
	}
	return result.LocalModes, result.LocalArgs, nil
}

// needsModeParam mirrors internal/chanmode's unexported needsParam, just
// enough to walk a mode string and find which positional params are 'o'/'v'
// targets that need nickname->numnick translation before reaching the wire.
func needsModeParam(m byte, setting bool) bool {
	switch m {
	case 'o', 'v', 'b', 'k', 'A', 'U':
		return true
	case 'l':
		return setting
	default:
		return false
	}
}

// translateOpVoiceParams rewrites the 'o'/'v' positional params of a local
// oper's mode string from nicknames (what internal/commands's
// nickname-keyed channel.Channel knows) to numnicks (what internal/chanmode
// and the P10 wire need), leaving every other param untouched.
func (s *Server) translateOpVoiceParams(modeString string, params []string) []string {
	out := make([]string, len(params))
	copy(out, params)

	set := true
	idx := 0
	for i := 0; i < len(modeString); i++ {
		switch modeString[i] {
		case '+':
			set = true
		case '-':
			set = false
		default:
			letter := modeString[i]
			if !needsModeParam(letter, set) {
				continue
			}
			if idx >= len(out) {
				continue
			}
			if letter == 'o' || letter == 'v' {
				if sc, ok := s.netstoreClient(out[idx]); ok {
					out[idx] = sc.Numnick
				}
			}
			idx++
		}
	}
	return out
}

// glineTarget picks which list (and internal/ban Kind) a GLINE mask
// belongs to: a channel-shaped mask is a BADCHAN, everything else an
// ordinary user@host/$R G-line.
func (s *Server) glineTarget(mask string) (*ban.List, ban.Kind) {
	if strings.HasPrefix(mask, "#") || strings.HasPrefix(mask, "&") {
		return s.badchans, ban.KindBadchan
	}
	return s.glines, ban.KindGline
}

// ApplyGline adds or (de)activates a G-line/BADCHAN record and propagates
// it to every linked peer (spec §4.I).
func (s *Server) ApplyGline(oper, mask, reason string, duration time.Duration, active bool) error {
	list, kind := s.glineTarget(mask)
	return s.applyBanRecord(list, kind, oper, mask, reason, duration, active)
}

// ApplyJupe adds or (de)activates a server-name jupe record and propagates
// it to every linked peer (spec §4.I).
func (s *Server) ApplyJupe(oper, mask, reason string, duration time.Duration, active bool) error {
	return s.applyBanRecord(s.jupes, ban.KindJupe, oper, mask, reason, duration, active)
}

// defaultBanDuration is how long a G-line/jupe/BADCHAN lasts when no
// explicit duration is given, matching ircu2's practice of never issuing a
// literally permanent record (a long expiry is re-upped by an oper instead).
const defaultBanDuration = 90 * 24 * time.Hour

func (s *Server) applyBanRecord(list *ban.List, kind ban.Kind, oper, mask, reason string, duration time.Duration, active bool) error {
	now := time.Now()
	lastmod := now.Unix()

	if !active {
		if _, applied := list.Activate(mask, false, lastmod, false); !applied {
			return fmt.Errorf("ban: no entry found for %q", mask)
		}
		s.broadcastBan(oper, mask, "", 0, false, kind)
		return nil
	}

	if kind != ban.KindBadchan {
		if err := ban.ValidateMask(mask, false); err != nil {
			return err
		}
	}

	if duration <= 0 {
		duration = defaultBanDuration
	}
	flags := ban.Active
	if kind == ban.KindBadchan {
		flags |= ban.Badchan
	}
	rec := &ban.Record{
		Kind:    kind,
		Mask:    mask,
		Reason:  reason,
		Expire:  now.Add(duration),
		Lastmod: lastmod,
		Flags:   flags,
		SetBy:   oper,
	}
	if err := list.Add(rec); err != nil {
		return err
	}
	s.broadcastBan(oper, mask, reason, int64(duration/time.Second), true, kind)
	return nil
}

// broadcastBan sends a GLINE or JUPE line to every linked peer.
func (s *Server) broadcastBan(oper, mask, reason string, expireOffset int64, active bool, kind ban.Kind) {
	if s.peerRouter == nil {
		return
	}
	op := protocol.GlineOp{
		Target:       "*",
		Active:       active,
		Mask:         mask,
		ExpireOffset: expireOffset,
		Lastmod:      time.Now().Unix(),
		Reason:       reason,
	}
	var msg *protocol.Message
	if kind == ban.KindJupe {
		msg = protocol.BuildJupe(op)
	} else {
		msg = protocol.BuildGline(op)
	}
	msg.Prefix = s.localClientNumnick(oper)
	s.broadcastToPeers(msg)
}

// broadcastToPeers enqueues msg toward every currently linked peer.
func (s *Server) broadcastToPeers(msg *protocol.Message) {
	s.mu.RLock()
	peers := make([]*conn.Conn, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.RUnlock()
	line := msg.String() + "\r\n"
	for _, p := range peers {
		_ = p.Enqueue(line, sendq.Normal)
	}
}

// sendRawToPeer enqueues a pre-rendered wire line (no trailing CRLF) toward
// one peer, used for chanmode's already-formatted PeerLines.
func (s *Server) sendRawToPeer(srv *store.Server, line string) error {
	s.mu.RLock()
	peer, ok := s.peers[srv.Numnick]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no link to server %s", srv.Name)
	}
	return peer.Enqueue(line+"\r\n", sendq.Normal)
}

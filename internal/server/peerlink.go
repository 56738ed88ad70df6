package server

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/supamanluva/ircd/internal/ban"
	"github.com/supamanluva/ircd/internal/burst"
	"github.com/supamanluva/ircd/internal/chanmode"
	"github.com/supamanluva/ircd/internal/client"
	"github.com/supamanluva/ircd/internal/conn"
	"github.com/supamanluva/ircd/internal/numnick"
	"github.com/supamanluva/ircd/internal/protocol"
	"github.com/supamanluva/ircd/internal/resolve"
	"github.com/supamanluva/ircd/internal/router"
	"github.com/supamanluva/ircd/internal/sendq"
	"github.com/supamanluva/ircd/internal/store"
)

const maxLinkSendqBytes = 8 << 20

// StartLinkListener starts listening for incoming P10 server links.
func (s *Server) StartLinkListener() error {
	if !s.config.LinkingEnabled {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.config.LinkingHost, s.config.LinkingPort)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start link listener: %v", err)
	}

	s.linkListener = listener
	s.logger.Info("Server link listener started", "address", addr)

	go s.acceptLinks()
	return nil
}

func (s *Server) acceptLinks() {
	for {
		sock, err := s.linkListener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				s.logger.Error("Error accepting link connection", "error", err)
				continue
			}
		}
		s.logger.Info("Incoming link connection", "address", sock.RemoteAddr().String())
		go s.handleIncomingLink(sock)
	}
}

// handleIncomingLink performs the server-side (passive) half of the
// PASS/SERVER handshake, then hands off to the shared burst+message loop.
func (s *Server) handleIncomingLink(sock net.Conn) {
	defer sock.Close()

	c := conn.New(sock, conn.StateUnknownServer, maxLinkSendqBytes)

	pass, err := c.ReadLine()
	if err != nil {
		s.logger.Error("Link handshake: failed reading PASS", "error", err)
		return
	}
	passMsg, err := protocol.ParseLine(pass)
	if err != nil {
		s.logger.Error("Link handshake: malformed PASS line", "error", err)
		return
	}
	password, ok := protocol.ParsePass(passMsg)
	if !ok || password != s.config.LinkPassword {
		s.logger.Warn("Link handshake: bad password", "address", sock.RemoteAddr().String())
		writeLine(c, protocol.BuildSquit(s.config.ServerName, 0, "Bad password"))
		return
	}

	srvLine, err := c.ReadLine()
	if err != nil {
		s.logger.Error("Link handshake: failed reading SERVER", "error", err)
		return
	}
	srvMsg, err := protocol.ParseLine(srvLine)
	if err != nil {
		s.logger.Error("Link handshake: malformed SERVER line", "error", err)
		return
	}
	intro, ok := protocol.ParseServer(srvMsg)
	if !ok {
		s.logger.Error("Link handshake: invalid SERVER introduction")
		return
	}

	if existing, exists := s.netstore.FindServerByName(intro.Name); exists {
		decision := resolve.ResolveServerCollision(resolve.ServerCollisionInput{
			ExistingName:    existing.Name,
			IncomingName:    intro.Name,
			ExistingNumnick: existing.Numnick,
			IncomingNumnick: intro.Numnick,
			ExistingLinkTS:  existing.LinkTS,
			IncomingLinkTS:  time.Now().Unix(),
		})
		s.logger.Warn("Server name collision on link", "name", intro.Name, "decision", decision)
		return
	}

	peer := store.NewServer(intro.Name, intro.Numnick)
	peer.Description = intro.Description
	peer.StartTS = intro.StartTS
	peer.LinkTS = time.Now().Unix()
	peer.ProtocolVersion = intro.ProtocolVersion
	peer.Uplink = s.selfServer

	if err := s.netstore.InsertServer(peer); err != nil {
		s.logger.Error("Failed to register peer server", "name", peer.Name, "error", err)
		return
	}
	s.selfServer.AddDownlink(peer)
	defer func() {
		s.selfServer.RemoveDownlink(peer)
		s.netstore.RemoveServer(peer)
	}()

	// Reply with our own PASS/SERVER before exchanging bursts.
	writeLine(c, protocol.BuildPass(s.config.LinkPassword))
	writeLine(c, protocol.BuildServer(
		s.config.ServerName, 1, s.selfServer.StartTS, time.Now().Unix(),
		10, s.localNumnick, "", s.config.ServerDesc,
	))

	c.SetState(conn.StateServerRegistered)
	s.runPeerLink(c, peer)
}

// ConnectToServer initiates an outbound link to another server (the active
// half of the handshake).
func (s *Server) ConnectToServer(linkCfg LinkConfig) error {
	if !s.config.LinkingEnabled {
		return fmt.Errorf("server linking is not enabled")
	}

	addr := fmt.Sprintf("%s:%d", linkCfg.Host, linkCfg.Port)
	s.logger.Info("Connecting to server", "name", linkCfg.Name, "address", addr)

	sock, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	c := conn.New(sock, conn.StateHandshake, maxLinkSendqBytes)

	writeLine(c, protocol.BuildPass(linkCfg.Password))
	writeLine(c, protocol.BuildServer(
		s.config.ServerName, 1, s.selfServer.StartTS, time.Now().Unix(),
		10, s.localNumnick, "", s.config.ServerDesc,
	))

	passLine, err := c.ReadLine()
	if err != nil {
		sock.Close()
		return fmt.Errorf("handshake failed reading PASS from %s: %w", linkCfg.Name, err)
	}
	passMsg, err := protocol.ParseLine(passLine)
	if err != nil {
		sock.Close()
		return fmt.Errorf("handshake: malformed PASS from %s: %w", linkCfg.Name, err)
	}
	if password, ok := protocol.ParsePass(passMsg); !ok || password != linkCfg.Password {
		sock.Close()
		return fmt.Errorf("handshake: password mismatch from %s", linkCfg.Name)
	}

	srvLine, err := c.ReadLine()
	if err != nil {
		sock.Close()
		return fmt.Errorf("handshake failed reading SERVER from %s: %w", linkCfg.Name, err)
	}
	srvMsg, err := protocol.ParseLine(srvLine)
	if err != nil {
		sock.Close()
		return fmt.Errorf("handshake: malformed SERVER from %s: %w", linkCfg.Name, err)
	}
	intro, ok := protocol.ParseServer(srvMsg)
	if !ok {
		sock.Close()
		return fmt.Errorf("handshake: invalid SERVER introduction from %s", linkCfg.Name)
	}

	peer := store.NewServer(intro.Name, intro.Numnick)
	peer.Description = intro.Description
	peer.StartTS = intro.StartTS
	peer.LinkTS = time.Now().Unix()
	peer.ProtocolVersion = intro.ProtocolVersion
	peer.Uplink = s.selfServer
	if linkCfg.IsHub {
		peer.SetFlag(store.FlagHub, true)
	}

	if err := s.netstore.InsertServer(peer); err != nil {
		sock.Close()
		return fmt.Errorf("failed to register peer server %s: %w", peer.Name, err)
	}
	s.selfServer.AddDownlink(peer)

	c.SetState(conn.StateServerRegistered)
	go func() {
		defer func() {
			s.selfServer.RemoveDownlink(peer)
			s.netstore.RemoveServer(peer)
		}()
		s.runPeerLink(c, peer)
	}()

	return nil
}

// AutoConnect dials every configured auto-connect link.
func (s *Server) AutoConnect() {
	if !s.config.LinkingEnabled {
		return
	}
	for _, l := range s.config.Links {
		if !l.AutoConnect {
			continue
		}
		go func(link LinkConfig) {
			if err := s.ConnectToServer(link); err != nil {
				s.logger.Error("Failed to auto-connect", "name", link.Name, "error", err)
			}
		}(l)
	}
}

// runPeerLink drives the post-handshake netburst exchange and then the
// steady-state message loop for a registered peer link, per spec §4.F/§4.G.
func (s *Server) runPeerLink(c *conn.Conn, peer *store.Server) {
	s.mu.Lock()
	s.peers[peer.Numnick] = c
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.peers, peer.Numnick)
		s.mu.Unlock()
	}()

	peerState := burst.NewPeerState(peer)

	for _, ch := range s.GetBurstChannels() {
		peerState.DeclareChannel(ch.Name)
	}
	outbound := s.renderLocalBurst()
	for _, line := range outbound {
		if err := c.Enqueue(line.String()+"\r\n", sendq.Normal); err != nil {
			s.logger.Error("Failed to send burst to peer", "name", peer.Name, "error", err)
			return
		}
	}
	if err := c.Flush(); err != nil {
		s.logger.Error("Failed to flush burst to peer", "name", peer.Name, "error", err)
		return
	}

	s.logger.Info("Burst sent", "name", peer.Name)

	for {
		line, err := c.ReadLine()
		if err != nil {
			s.logger.Info("Link connection closed", "name", peer.Name, "error", err)
			return
		}
		if line == "" {
			continue
		}
		msg, err := protocol.ParseLine(line)
		if err != nil {
			s.logger.Warn("Malformed line from peer", "name", peer.Name, "error", err)
			continue
		}
		if err := s.handlePeerMessage(c, peer, peerState, msg); err != nil {
			s.logger.Error("Failed to handle link message", "command", msg.Verb, "name", peer.Name, "error", err)
		}
		if err := c.Flush(); err != nil {
			s.logger.Info("Link connection closed", "name", peer.Name, "error", err)
			return
		}
	}
}

// renderLocalBurst builds every outbound BURST line for this server's
// current channels, via internal/burst.
func (s *Server) renderLocalBurst() []*protocol.Message {
	if s.burstEngine == nil || s.netstore == nil {
		return nil
	}
	var channels []*store.Channel
	for name := range s.channels {
		if ch, ok := s.netstore.FindChannel(name); ok {
			channels = append(channels, ch)
		}
	}
	return s.burstEngine.SendAllChannels(channels)
}

// handlePeerMessage dispatches one parsed P10 line from a registered peer.
func (s *Server) handlePeerMessage(c *conn.Conn, peer *store.Server, peerState *burst.PeerState, msg *protocol.Message) error {
	switch msg.Verb {
	case protocol.VerbPing:
		return c.Enqueue(protocol.BuildPong(s.config.ServerName, msg.Param(0)).String()+"\r\n", sendq.High)
	case protocol.VerbPong:
		c.ObservePong(msg.Param(0))
		return nil
	case protocol.VerbBurst:
		b, ok := protocol.ParseBurst(msg)
		if !ok {
			return fmt.Errorf("malformed BURST")
		}
		result := s.burstEngine.ApplyBurst(b, func(numnick string) (*store.Client, bool) {
			return s.netstore.FindClientByNumnick(numnick)
		})
		for _, victim := range result.NetRiderKicks {
			s.logger.Info("Net-rider kick", "channel", b.Channel, "numnick", victim)
		}
		return nil
	case protocol.VerbEOB:
		peerState.HandleEOB()
		return c.Enqueue(protocol.BuildEOBAck().String()+"\r\n", sendq.High)
	case protocol.VerbEOBAck:
		for _, pending := range peerState.AckSent() {
			if err := c.Enqueue(pending.String()+"\r\n", sendq.Normal); err != nil {
				return err
			}
		}
		return nil
	case protocol.VerbPrivmsg, protocol.VerbNotice:
		return s.deliverPeerMessage(peer, msg)
	case protocol.VerbNick:
		if msg.Prefix == "" {
			return s.handlePeerNickIntro(peer, msg)
		}
		return s.handlePeerNickChange(peer, msg)
	case protocol.VerbQuit:
		return s.handlePeerQuit(msg)
	case protocol.VerbKill:
		return s.handlePeerKill(msg)
	case protocol.VerbSquit:
		return s.handlePeerSquit(peer, msg)
	case protocol.VerbJoin:
		return s.handlePeerJoin(peer, msg)
	case protocol.VerbPart:
		return s.handlePeerPart(peer, msg)
	case protocol.VerbKick:
		return s.handlePeerKick(peer, msg)
	case protocol.VerbTopic:
		return s.handlePeerTopic(peer, msg)
	case protocol.VerbMode:
		return s.handlePeerMode(peer, msg, false)
	case protocol.VerbOpMode:
		return s.handlePeerMode(peer, msg, true)
	case protocol.VerbInvite:
		return s.handlePeerInvite(msg)
	case protocol.VerbNames:
		// NAMES is answered locally from each server's own membership view;
		// a peer NAMES request carries nothing this server needs to act on.
		return nil
	case protocol.VerbGline:
		return s.handlePeerBan(peer, msg, ban.KindGline)
	case protocol.VerbJupe:
		return s.handlePeerBan(peer, msg, ban.KindJupe)
	case protocol.VerbClearMode:
		return s.handlePeerClearMode(peer, msg)
	case protocol.VerbWallChOps:
		return s.handlePeerWallChOps(peer, msg)
	case protocol.VerbWallops:
		return s.handlePeerWallops(peer, msg)
	case protocol.VerbSettime:
		ts, ok := protocol.ParseSettime(msg)
		if !ok {
			return fmt.Errorf("malformed SETTIME")
		}
		s.logger.Debug("SETTIME received", "server", peer.Name, "ts", ts)
		return nil
	default:
		s.logger.Debug("Unhandled peer message", "command", msg.Verb, "name", peer.Name)
		return nil
	}
}

// handlePeerNickIntro processes a remote NICK introduction (no prefix,
// hopcount/lastnick/user/host/modes/numnick/realname shape), registering the
// new client in netstore after settling any nick collision (spec §4.G).
func (s *Server) handlePeerNickIntro(peer *store.Server, msg *protocol.Message) error {
	ni, ok := protocol.ParseNickIntro(msg)
	if !ok {
		return fmt.Errorf("malformed NICK introduction")
	}

	full := string(numnick.Join(peer.Numnick, ni.Numnick))
	if existing, found := s.netstore.FindClientByNumnick(full); found {
		// Re-introduction of an already-known numnick: a refresh, not a
		// collision.
		existing.SetNick(ni.Nick, ni.Lastnick)
		return nil
	}

	if existing, found := s.netstore.FindClientByName(ni.Nick); found {
		decision := resolve.ResolveNickCollision(resolve.NickCollisionInput{
			ExistingLastnick: existing.Lastnick,
			IncomingLastnick: ni.Lastnick,
			SameIdent:        existing.User == ni.User && existing.Host == ni.Host,
		})
		switch decision {
		case resolve.KillBoth:
			s.quitNetstoreClient(existing, "Nick collision")
			return nil
		case resolve.KillIncoming, resolve.DropIncoming:
			s.logger.Info("Dropping colliding NICK introduction", "nick", ni.Nick, "server", peer.Name)
			return nil
		case resolve.KillExisting:
			s.quitNetstoreClient(existing, "Nick collision")
		}
	}

	sc := store.NewClient(ni.Numnick, peer)
	sc.Nick = ni.Nick
	sc.Lastnick = ni.Lastnick
	sc.User = ni.User
	sc.Host = ni.Host
	sc.RealHost = ni.Host
	sc.RealName = ni.Realname
	sc.ConnectTS = ni.Lastnick
	if err := s.netstore.InsertClient(sc); err != nil {
		return err
	}
	s.logger.Info("Remote client introduced", "nick", sc.Nick, "server", peer.Name)
	return nil
}

// handlePeerNickChange processes a bare `:<numnick> NICK <newnick>` rename,
// settling a collision against any client already using the new name.
func (s *Server) handlePeerNickChange(peer *store.Server, msg *protocol.Message) error {
	if len(msg.Params) < 1 {
		return fmt.Errorf("malformed NICK")
	}
	sc, ok := s.netstore.FindClientByNumnick(msg.Prefix)
	if !ok {
		return fmt.Errorf("NICK from unknown client %s", msg.Prefix)
	}

	newNick := msg.Params[0]
	lastnick := time.Now().Unix()
	if len(msg.Params) >= 2 {
		if ts, err := strconv.ParseInt(msg.Params[1], 10, 64); err == nil {
			lastnick = ts
		}
	}

	if existing, found := s.netstore.FindClientByName(newNick); found && existing != sc {
		decision := resolve.ResolveNickCollision(resolve.NickCollisionInput{
			ExistingLastnick: existing.Lastnick,
			IncomingLastnick: lastnick,
			SameIdent:        existing.User == sc.User && existing.Host == sc.Host,
		})
		if decision == resolve.KillIncoming {
			s.quitNetstoreClient(sc, "Nick collision")
			return nil
		}
		s.quitNetstoreClient(existing, "Nick collision")
		if decision == resolve.KillBoth {
			s.quitNetstoreClient(sc, "Nick collision")
			return nil
		}
	}

	mask := fmt.Sprintf("%s!%s@%s", sc.Nick, sc.User, sc.Host)
	oldNick := sc.Nick
	s.netstore.RenameClient(sc, oldNick, newNick, lastnick)

	line := fmt.Sprintf(":%s NICK :%s", mask, newNick)
	notified := make(map[string]*client.Client)
	for chanName := range sc.Memberships {
		ch, ok := s.netstore.FindChannel(chanName)
		if !ok {
			continue
		}
		if legacy := s.GetChannel(chanName); legacy != nil {
			for _, m := range legacy.GetMembers() {
				notified[m.GetNickname()] = m
			}
		}
		s.relayToOtherPeers(ch, peer.Numnick, msg)
	}
	for _, c := range notified {
		c.Send(line)
	}
	return nil
}

// quitNetstoreClient removes sc from every channel it belongs to (notifying
// local channel-mates and pruning channels left empty), then removes it from
// netstore. If sc is a locally connected client, its own connection is
// terminated too.
func (s *Server) quitNetstoreClient(sc *store.Client, reason string) {
	mask := fmt.Sprintf("%s!%s@%s", sc.Nick, sc.User, sc.Host)
	var local *client.Client
	if sc.Local {
		local = s.GetClient(sc.Nick)
	}

	for chanName := range sc.Memberships {
		ch, ok := s.netstore.FindChannel(chanName)
		if !ok {
			continue
		}
		ch.RemoveMembership(sc.Numnick)
		if legacy := s.GetChannel(chanName); legacy != nil {
			legacy.BroadcastAll(fmt.Sprintf(":%s QUIT :%s", mask, reason))
			if local != nil {
				legacy.RemoveMember(local)
			}
		}
		if ch.IsEmpty() {
			s.netstore.RemoveChannel(ch)
		}
	}

	if local != nil {
		local.Send(fmt.Sprintf(":%s QUIT :%s", mask, reason))
		local.Disconnect()
	}
	s.netstore.RemoveClient(sc)
}

// handlePeerQuit processes a remote client's QUIT.
func (s *Server) handlePeerQuit(msg *protocol.Message) error {
	sc, ok := s.netstore.FindClientByNumnick(msg.Prefix)
	if !ok {
		return fmt.Errorf("QUIT from unknown client %s", msg.Prefix)
	}
	reason := ""
	if len(msg.Params) > 0 {
		reason = msg.Params[0]
	}
	s.quitNetstoreClient(sc, reason)
	return nil
}

// handlePeerKill processes a remote KILL targeting a client anywhere on the
// network; if the target is local, its connection is dropped.
func (s *Server) handlePeerKill(msg *protocol.Message) error {
	target, reason, ok := protocol.ParseKill(msg)
	if !ok {
		return fmt.Errorf("malformed KILL")
	}
	sc, ok := s.netstore.FindClientByNumnick(target)
	if !ok {
		sc, ok = s.netstore.FindClientByName(target)
	}
	if !ok {
		return nil // already gone
	}
	s.quitNetstoreClient(sc, "Killed: "+reason)
	return nil
}

// handlePeerSquit delinks a peer (or a server beyond peer, for a multi-hop
// mesh), cascading the teardown to every client and downlink behind it.
func (s *Server) handlePeerSquit(peer *store.Server, msg *protocol.Message) error {
	name, reason, ok := protocol.ParseSquit(msg)
	if !ok {
		return fmt.Errorf("malformed SQUIT")
	}
	target, ok := s.netstore.FindServerByName(name)
	if !ok {
		return nil
	}
	s.cascadeRemoveServer(target, reason)
	return nil
}

// cascadeRemoveServer removes srv, every client it owns, and recursively
// every server behind it, per spec §4.G's SQUIT cascade.
func (s *Server) cascadeRemoveServer(srv *store.Server, reason string) {
	for _, child := range srv.DownlinksSnapshot() {
		s.cascadeRemoveServer(child, reason)
	}
	for _, c := range s.netstore.AllClients() {
		if c.Server == srv {
			s.quitNetstoreClient(c, "*.net *.split: "+reason)
		}
	}
	if srv.Uplink != nil {
		srv.Uplink.RemoveDownlink(srv)
	}
	s.netstore.RemoveServer(srv)
	s.logger.Info("Server delinked", "name", srv.Name, "reason", reason)
}

// relayToOtherPeers forwards msg's original wire line toward every peer
// with a member on ch, except originPeer (the one it arrived from) — the
// multi-hop fan-out every mesh link beyond a direct neighbor needs.
func (s *Server) relayToOtherPeers(ch *store.Channel, originPeer string, msg *protocol.Message) {
	if s.peerRouter == nil {
		return
	}
	_, peers := s.peerRouter.RouteToChannel(ch, originPeer, 0)
	if len(peers) == 0 {
		return
	}
	line := msg.String()
	for _, p := range peers {
		_ = s.sendRawToPeer(p, line)
	}
}

// handlePeerJoin processes a remote JOIN, mirroring the membership into
// netstore and notifying local channel-mates.
func (s *Server) handlePeerJoin(peer *store.Server, msg *protocol.Message) error {
	channelName, ts, ok := protocol.ParseJoin(msg)
	if !ok {
		return fmt.Errorf("malformed JOIN")
	}
	sc, ok := s.netstore.FindClientByNumnick(msg.Prefix)
	if !ok {
		return fmt.Errorf("JOIN from unknown client %s", msg.Prefix)
	}
	if ts == 0 {
		ts = time.Now().Unix()
	}
	ch, _ := s.netstore.GetOrCreateChannel(channelName, ts)
	if _, exists := ch.MembershipFor(sc.Numnick); !exists {
		m := &store.Membership{Client: sc, Channel: ch}
		ch.AddMembership(m)
		sc.Memberships[ch.Name] = m
	}

	if legacy := s.GetChannel(channelName); legacy != nil {
		mask := fmt.Sprintf("%s!%s@%s", sc.Nick, sc.User, sc.Host)
		legacy.BroadcastAll(fmt.Sprintf(":%s JOIN :%s", mask, channelName))
	}
	s.relayToOtherPeers(ch, peer.Numnick, msg)
	return nil
}

// handlePeerPart processes a remote PART.
func (s *Server) handlePeerPart(peer *store.Server, msg *protocol.Message) error {
	channelName, reason, ok := protocol.ParsePart(msg)
	if !ok {
		return fmt.Errorf("malformed PART")
	}
	sc, ok := s.netstore.FindClientByNumnick(msg.Prefix)
	if !ok {
		return fmt.Errorf("PART from unknown client %s", msg.Prefix)
	}
	ch, ok := s.netstore.FindChannel(channelName)
	if !ok {
		return nil
	}

	mask := fmt.Sprintf("%s!%s@%s", sc.Nick, sc.User, sc.Host)
	if legacy := s.GetChannel(channelName); legacy != nil {
		legacy.BroadcastAll(fmt.Sprintf(":%s PART %s :%s", mask, channelName, reason))
	}
	s.relayToOtherPeers(ch, peer.Numnick, msg)

	ch.RemoveMembership(sc.Numnick)
	delete(sc.Memberships, ch.Name)
	if ch.IsEmpty() {
		s.netstore.RemoveChannel(ch)
	}
	return nil
}

// handlePeerKick processes a remote KICK, removing the target's membership
// and, if the target is local, updating the legacy channel registry too.
func (s *Server) handlePeerKick(peer *store.Server, msg *protocol.Message) error {
	channelName, target, reason, ok := protocol.ParseKick(msg)
	if !ok {
		return fmt.Errorf("malformed KICK")
	}
	ch, ok := s.netstore.FindChannel(channelName)
	if !ok {
		return nil
	}
	victim, ok := s.netstore.FindClientByNumnick(target)
	if !ok {
		victim, ok = s.netstore.FindClientByName(target)
	}
	if !ok {
		return nil
	}

	sourceMask := msg.Prefix
	if source, ok := s.netstore.FindClientByNumnick(msg.Prefix); ok {
		sourceMask = fmt.Sprintf("%s!%s@%s", source.Nick, source.User, source.Host)
	}

	if legacy := s.GetChannel(channelName); legacy != nil {
		legacy.BroadcastAll(fmt.Sprintf(":%s KICK %s %s :%s", sourceMask, channelName, victim.Nick, reason))
		if victim.Local {
			if local := s.GetClient(victim.Nick); local != nil {
				legacy.RemoveMember(local)
				local.PartChannel(channelName)
			}
		}
	}
	s.relayToOtherPeers(ch, peer.Numnick, msg)

	ch.RemoveMembership(victim.Numnick)
	delete(victim.Memberships, ch.Name)
	if ch.IsEmpty() {
		s.netstore.RemoveChannel(ch)
	}
	return nil
}

// handlePeerTopic processes a remote TOPIC change, applying it only if the
// incoming timestamp isn't older than what's already recorded (spec's
// timestamp-ordering rule for replicated channel state).
func (s *Server) handlePeerTopic(peer *store.Server, msg *protocol.Message) error {
	channelName, topicTS, topic, ok := protocol.ParseTopic(msg)
	if !ok {
		return fmt.Errorf("malformed TOPIC")
	}
	ch, ok := s.netstore.FindChannel(channelName)
	if !ok {
		return nil
	}
	if ch.TopicTS != 0 && topicTS != 0 && topicTS < ch.TopicTS {
		return nil // an older, out-of-order TOPIC; what we have is newer
	}

	sourceMask := msg.Prefix
	if source, ok := s.netstore.FindClientByNumnick(msg.Prefix); ok {
		sourceMask = fmt.Sprintf("%s!%s@%s", source.Nick, source.User, source.Host)
	}

	ch.Topic = topic
	ch.TopicBy = sourceMask
	ch.TopicTS = topicTS

	if legacy := s.GetChannel(channelName); legacy != nil {
		legacy.SetTopic(topic)
		legacy.BroadcastAll(fmt.Sprintf(":%s TOPIC %s :%s", sourceMask, channelName, topic))
	}
	s.relayToOtherPeers(ch, peer.Numnick, msg)
	return nil
}

// handlePeerMode processes a remote MODE or OPMODE, running it through the
// same chanmode builder local oper commands use, then notifying local
// members with the rendered result and relaying onward to other peers.
func (s *Server) handlePeerMode(peer *store.Server, msg *protocol.Message, privileged bool) error {
	var channelName, modes string
	var args []string
	var ok bool
	if privileged {
		channelName, modes, args, ok = protocol.ParseOpMode(msg)
	} else {
		channelName, modes, args, ok = protocol.ParseMode(msg)
	}
	if !ok {
		return fmt.Errorf("malformed %s", msg.Verb)
	}
	ch, ok := s.netstore.FindChannel(channelName)
	if !ok {
		return nil
	}

	source := msg.Prefix
	if source == "" {
		source = s.config.ServerName
	}
	b := chanmode.NewBuilder(ch, source, true)
	chanmode.ParseModeString(b, modes, args)
	result := b.Flush()

	if result.LocalModes != "" {
		sourceMask := source
		if sc, ok := s.netstore.FindClientByNumnick(msg.Prefix); ok {
			sourceMask = fmt.Sprintf("%s!%s@%s", sc.Nick, sc.User, sc.Host)
		}
		if legacy := s.GetChannel(channelName); legacy != nil {
			line := fmt.Sprintf(":%s MODE %s %s", sourceMask, channelName, result.LocalModes)
			if len(result.LocalArgs) > 0 {
				line += " " + joinArgs(result.LocalArgs)
			}
			legacy.BroadcastAll(line)
		}
	}
	s.relayToOtherPeers(ch, peer.Numnick, msg)
	return nil
}

// joinArgs space-joins a rendered mode argument list.
func joinArgs(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}

// handlePeerInvite delivers a remote INVITE to its local target, if any.
func (s *Server) handlePeerInvite(msg *protocol.Message) error {
	target, channelName, ok := protocol.ParseInvite(msg)
	if !ok {
		return fmt.Errorf("malformed INVITE")
	}
	victim, ok := s.netstore.FindClientByNumnick(target)
	if !ok || !victim.Local {
		return nil
	}
	local := s.GetClient(victim.Nick)
	if local == nil {
		return nil
	}
	sourceMask := msg.Prefix
	if source, ok := s.netstore.FindClientByNumnick(msg.Prefix); ok {
		sourceMask = fmt.Sprintf("%s!%s@%s", source.Nick, source.User, source.Host)
	}
	local.Send(fmt.Sprintf(":%s INVITE %s :%s", sourceMask, local.GetNickname(), channelName))
	return nil
}

// handlePeerBan applies a remote GLINE/JUPE to the matching local list
// (routing a channel-shaped G-line mask to the BADCHAN list, same as
// ApplyGline does locally) without re-broadcasting: the line already
// reached every peer that needs it via the sender's own fan-out.
func (s *Server) handlePeerBan(peer *store.Server, msg *protocol.Message, kind ban.Kind) error {
	var mask, reason string
	var active bool
	var lastmod int64
	if kind == ban.KindJupe {
		parsed, ok := protocol.ParseJupe(msg)
		if !ok {
			return fmt.Errorf("malformed JUPE")
		}
		mask, active, reason, lastmod = parsed.Mask, parsed.Active, parsed.Reason, parsed.Lastmod
	} else {
		parsed, ok := protocol.ParseGline(msg)
		if !ok {
			return fmt.Errorf("malformed GLINE")
		}
		mask, active, reason, lastmod = parsed.Mask, parsed.Active, parsed.Reason, parsed.Lastmod
		if _, k := s.glineTarget(mask); k == ban.KindBadchan {
			kind = ban.KindBadchan
		}
	}

	list := s.glines
	switch kind {
	case ban.KindJupe:
		list = s.jupes
	case ban.KindBadchan:
		list = s.badchans
	}

	if !active {
		list.Activate(mask, false, lastmod, false)
		s.logger.Info(msg.Verb+" deactivated by peer", "mask", mask, "server", peer.Name)
		return nil
	}
	flags := ban.Active
	if kind == ban.KindBadchan {
		flags |= ban.Badchan
	}
	_ = list.Add(&ban.Record{
		Kind:    kind,
		Mask:    mask,
		Reason:  reason,
		Expire:  time.Now().Add(defaultBanDuration),
		Lastmod: lastmod,
		Flags:   flags,
		SetBy:   msg.Prefix,
	})
	s.logger.Info(msg.Verb+" added by peer", "mask", mask, "server", peer.Name)
	return nil
}

// handlePeerClearMode wipes the named modes off a channel, the way a local
// CLEARMODE oper command would, and notifies local members of the result.
func (s *Server) handlePeerClearMode(peer *store.Server, msg *protocol.Message) error {
	channelName, controlString, ok := protocol.ParseClearMode(msg)
	if !ok {
		return fmt.Errorf("malformed CLEARMODE")
	}
	ch, ok := s.netstore.FindChannel(channelName)
	if !ok {
		return nil
	}
	source := msg.Prefix
	if source == "" {
		source = s.config.ServerName
	}
	result := chanmode.BuildClearMode(ch, source, controlString)
	if result.LocalModes != "" {
		if legacy := s.GetChannel(channelName); legacy != nil {
			legacy.BroadcastAll(fmt.Sprintf(":%s MODE %s %s", source, channelName, result.LocalModes))
		}
	}
	s.relayToOtherPeers(ch, peer.Numnick, msg)
	return nil
}

// handlePeerWallChOps fans a WALLCHOPS line out to every local channel
// operator on the named channel.
func (s *Server) handlePeerWallChOps(peer *store.Server, msg *protocol.Message) error {
	channelName, text, ok := protocol.ParseWallChOps(msg)
	if !ok {
		return fmt.Errorf("malformed WALLCHOPS")
	}
	legacy := s.GetChannel(channelName)
	if legacy == nil {
		return nil
	}
	sourceMask := msg.Prefix
	if source, ok := s.netstore.FindClientByNumnick(msg.Prefix); ok {
		sourceMask = fmt.Sprintf("%s!%s@%s", source.Nick, source.User, source.Host)
	}
	line := fmt.Sprintf(":%s WALLCHOPS %s :%s", sourceMask, channelName, text)
	for _, member := range legacy.GetMembers() {
		if legacy.IsOperator(member) {
			member.Send(line)
		}
	}
	if ch, ok := s.netstore.FindChannel(channelName); ok {
		s.relayToOtherPeers(ch, peer.Numnick, msg)
	}
	return nil
}

// handlePeerWallops fans a WALLOPS line out to every local server operator.
func (s *Server) handlePeerWallops(peer *store.Server, msg *protocol.Message) error {
	text, ok := protocol.ParseWallops(msg)
	if !ok {
		return fmt.Errorf("malformed WALLOPS")
	}
	sourceMask := msg.Prefix
	if source, ok := s.netstore.FindClientByNumnick(msg.Prefix); ok {
		sourceMask = fmt.Sprintf("%s!%s@%s", source.Nick, source.User, source.Host)
	}
	line := fmt.Sprintf(":%s WALLOPS :%s", sourceMask, text)

	s.mu.RLock()
	opers := make([]*client.Client, 0)
	for _, c := range s.clients {
		if c.IsServerOperator() {
			opers = append(opers, c)
		}
	}
	s.mu.RUnlock()
	for _, c := range opers {
		c.Send(line)
	}

	s.broadcastToPeersExcept(peer.Numnick, msg)
	return nil
}

// broadcastToPeersExcept enqueues msg's original wire line toward every
// linked peer other than exclude, for network-wide verbs (WALLOPS) that
// aren't scoped to one channel's membership.
func (s *Server) broadcastToPeersExcept(exclude string, msg *protocol.Message) {
	s.mu.RLock()
	peers := make(map[string]*conn.Conn, len(s.peers))
	for k, v := range s.peers {
		if k != exclude {
			peers[k] = v
		}
	}
	s.mu.RUnlock()
	line := msg.String() + "\r\n"
	for _, p := range peers {
		_ = p.Enqueue(line, sendq.Normal)
	}
}

// deliverPeerMessage hands a remote PRIVMSG/NOTICE to its local target:
// either a single local client or every local member of a channel.
func (s *Server) deliverPeerMessage(peer *store.Server, msg *protocol.Message) error {
	if len(msg.Params) < 2 {
		return fmt.Errorf("invalid %s: need 2 params", msg.Verb)
	}
	target, text := msg.Params[0], msg.Params[1]

	source, ok := s.netstore.FindClientByNumnick(msg.Prefix)
	sourceMask := msg.Prefix
	if ok {
		sourceMask = fmt.Sprintf("%s!%s@%s", source.Nick, source.User, source.Host)
	}

	if router.IsChannelTarget(target) {
		s.mu.RLock()
		ch := s.channels[target]
		s.mu.RUnlock()
		if ch == nil {
			return nil
		}
		ch.Broadcast(fmt.Sprintf(":%s %s %s :%s", sourceMask, msg.Verb, target, text), nil)
		return nil
	}

	targetClient, ok := s.netstore.FindClientByNumnick(target)
	if !ok {
		targetClient, ok = s.netstore.FindClientByName(target)
	}
	if !ok || !targetClient.Local {
		return fmt.Errorf("target %s not found locally", target)
	}

	s.mu.RLock()
	local := s.clients[targetClient.Nick]
	s.mu.RUnlock()
	if local == nil {
		return fmt.Errorf("target %s not found locally", target)
	}
	local.Send(fmt.Sprintf(":%s %s %s :%s", sourceMask, msg.Verb, local.GetNickname(), text))
	return nil
}

func writeLine(c *conn.Conn, msg *protocol.Message) {
	_ = c.Enqueue(msg.String()+"\r\n", sendq.High)
	_ = c.Flush()
}

package router

import (
	"testing"

	"github.com/supamanluva/ircd/internal/store"
)

func setupTestStore(t *testing.T) (*store.Store, *store.Server, *store.Client, *store.Channel) {
	t.Helper()
	s := store.New()
	local := store.NewServer("local.example.com", "AA")
	_ = s.InsertServer(local)

	c := store.NewClient("AAA", local)
	c.Local = true
	c.Host = "user.example.com"
	c.SetNick("alice", 1000)
	_ = s.InsertClient(c)

	ch, _ := s.GetOrCreateChannel("#test", 1000)
	m := &store.Membership{Client: c, Channel: ch}
	ch.AddMembership(m)
	c.Memberships["#test"] = m

	return s, local, c, ch
}

func TestRouteToClientLocal(t *testing.T) {
	s, _, c, _ := setupTestStore(t)
	r := New(s, "AA")

	local, nextHop, ok := r.RouteToClient(c.FullNumnick())
	if !ok || local != c || nextHop != nil {
		t.Fatalf("RouteToClient(local) = %v, %v, %v", local, nextHop, ok)
	}
}

func TestRouteToClientRemote(t *testing.T) {
	s, _, _, _ := setupTestStore(t)
	remoteSrv := store.NewServer("remote.example.com", "BB")
	_ = s.InsertServer(remoteSrv)
	remoteClient := store.NewClient("AAA", remoteSrv)
	remoteClient.SetNick("bob", 1000)
	_ = s.InsertClient(remoteClient)

	r := New(s, "AA")
	local, nextHop, ok := r.RouteToClient(remoteClient.FullNumnick())
	if !ok || local != nil || nextHop != remoteSrv {
		t.Fatalf("RouteToClient(remote) = %v, %v, %v", local, nextHop, ok)
	}
}

func TestRouteToChannel(t *testing.T) {
	s, _, c, ch := setupTestStore(t)
	remoteSrv := store.NewServer("remote.example.com", "BB")
	_ = s.InsertServer(remoteSrv)
	remoteClient := store.NewClient("AAB", remoteSrv)
	remoteClient.SetNick("bob", 1000)
	_ = s.InsertClient(remoteClient)
	rm := &store.Membership{Client: remoteClient, Channel: ch}
	ch.AddMembership(rm)

	r := New(s, "AA")
	locals, peers := r.RouteToChannel(ch, "", 0)
	if len(locals) != 1 || locals[0] != c {
		t.Fatalf("RouteToChannel locals = %v, want [%v]", locals, c)
	}
	if len(peers) != 1 || peers[0] != remoteSrv {
		t.Fatalf("RouteToChannel peers = %v, want [%v]", peers, remoteSrv)
	}
}

func TestRouteToChannelExcludesOrigin(t *testing.T) {
	s, _, _, ch := setupTestStore(t)
	remoteSrv := store.NewServer("remote.example.com", "BB")
	_ = s.InsertServer(remoteSrv)
	remoteClient := store.NewClient("AAB", remoteSrv)
	remoteClient.SetNick("bob", 1000)
	_ = s.InsertClient(remoteClient)
	ch.AddMembership(&store.Membership{Client: remoteClient, Channel: ch})

	r := New(s, "AA")
	_, peers := r.RouteToChannel(ch, "BB", 0)
	if len(peers) != 0 {
		t.Errorf("expected origin peer excluded, got %v", peers)
	}
}

func TestRouteToServerMask(t *testing.T) {
	s, _, _, _ := setupTestStore(t)
	hub := store.NewServer("hub.example.com", "BB")
	leaf := store.NewServer("leaf.other.com", "CC")
	_ = s.InsertServer(hub)
	_ = s.InsertServer(leaf)

	r := New(s, "AA")
	matches := r.RouteToServerMask("*.example.com", "")
	if len(matches) != 1 || matches[0] != hub {
		t.Fatalf("RouteToServerMask = %v, want [%v]", matches, hub)
	}
}

func TestRouteHostOrAll(t *testing.T) {
	s, _, c, _ := setupTestStore(t)
	r := New(s, "AA")
	matches := r.RouteHostOrAll("*.example.com")
	if len(matches) != 1 || matches[0] != c {
		t.Fatalf("RouteHostOrAll = %v, want [%v]", matches, c)
	}
}

func TestIsChannelAndServerMaskTarget(t *testing.T) {
	if !IsChannelTarget("#foo") || !IsChannelTarget("&local") {
		t.Error("expected channel targets recognized")
	}
	if IsServerMaskTarget("#foo") {
		t.Error("channel should not be classified as a server mask")
	}
	if !IsServerMaskTarget("*.example.com") {
		t.Error("expected wildcard DNS-shaped target recognized as a server mask")
	}
}

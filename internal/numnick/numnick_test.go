package numnick

import "testing"

func TestServerRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 63, 64, 4095} {
		s, err := EncodeServer(n)
		if err != nil {
			t.Fatalf("EncodeServer(%d): %v", n, err)
		}
		if len(s) != 2 {
			t.Fatalf("EncodeServer(%d) = %q, want length 2", n, s)
		}
		got, err := DecodeServer(s)
		if err != nil {
			t.Fatalf("DecodeServer(%q): %v", s, err)
		}
		if got != n {
			t.Errorf("round trip %d -> %q -> %d, want %d", n, s, got, n)
		}
	}
}

func TestServerOutOfRange(t *testing.T) {
	if _, err := EncodeServer(-1); err == nil {
		t.Error("expected error for negative value")
	}
	if _, err := EncodeServer(MaxServers); err == nil {
		t.Error("expected error for value at MaxServers")
	}
}

func TestClientRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 4095, 4096, 262143} {
		s, err := EncodeClient(n)
		if err != nil {
			t.Fatalf("EncodeClient(%d): %v", n, err)
		}
		if len(s) != 3 {
			t.Fatalf("EncodeClient(%d) = %q, want length 3", n, s)
		}
		got, err := DecodeClient(s)
		if err != nil {
			t.Fatalf("DecodeClient(%q): %v", s, err)
		}
		if got != n {
			t.Errorf("round trip %d -> %q -> %d, want %d", n, s, got, n)
		}
	}
}

func TestClientOutOfRange(t *testing.T) {
	if _, err := EncodeClient(-1); err == nil {
		t.Error("expected error for negative value")
	}
	if _, err := EncodeClient(MaxClients); err == nil {
		t.Error("expected error for value at MaxClients")
	}
}

func TestDecodeInvalidChars(t *testing.T) {
	if _, err := DecodeServer("!!"); err == nil {
		t.Error("expected error for invalid server numnick chars")
	}
	if _, err := DecodeClient("a!b"); err == nil {
		t.Error("expected error for invalid client numnick chars")
	}
}

func TestJoinSplit(t *testing.T) {
	srv, _ := EncodeServer(42)
	cli, _ := EncodeClient(9001)
	full := Join(srv, cli)
	if len(full) != 5 {
		t.Fatalf("Join() = %q, want length 5", full)
	}
	gotSrv, gotCli, err := Split(full)
	if err != nil {
		t.Fatalf("Split(%q): %v", full, err)
	}
	if gotSrv != srv || gotCli != cli {
		t.Errorf("Split(%q) = (%q, %q), want (%q, %q)", full, gotSrv, gotCli, srv, cli)
	}
}

func TestIsServerNumnick(t *testing.T) {
	srv, _ := EncodeServer(7)
	if !IsServerNumnick(srv) {
		t.Errorf("IsServerNumnick(%q) = false, want true", srv)
	}
	if IsServerNumnick("abc") {
		t.Error("IsServerNumnick(3-char) = true, want false")
	}
	if IsServerNumnick("!!") {
		t.Error("IsServerNumnick(invalid chars) = true, want false")
	}
}

package store

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Store", func() {
	var (
		s   *Store
		srv *Server
	)

	BeforeEach(func() {
		s = New()
		srv = NewServer("hub.example.com", "AB")
		Expect(s.InsertServer(srv)).To(Succeed())
	})

	Describe("client insert/find", func() {
		It("finds a client by name and numnick once inserted", func() {
			c := NewClient("AAA", srv)
			c.SetNick("Alice", 1000)
			Expect(s.InsertClient(c)).To(Succeed())

			got, ok := s.FindClientByName("alice")
			Expect(ok).To(BeTrue())
			Expect(got).To(BeIdenticalTo(c))

			got, ok = s.FindClientByNumnick("ABAAA")
			Expect(ok).To(BeTrue())
			Expect(got).To(BeIdenticalTo(c))

			Expect(s.AllClients()).To(ConsistOf(c))
		})
	})

	Describe("RenameClient", func() {
		It("moves the name index and bumps Lastnick", func() {
			c := NewClient("AAA", srv)
			c.SetNick("Alice", 1000)
			Expect(s.InsertClient(c)).To(Succeed())

			s.RenameClient(c, "Alice", "Alicia", 2000)

			_, ok := s.FindClientByName("alice")
			Expect(ok).To(BeFalse(), "old nick should no longer resolve")

			got, ok := s.FindClientByName("ALICIA")
			Expect(ok).To(BeTrue())
			Expect(got).To(BeIdenticalTo(c))
			Expect(c.Lastnick).To(Equal(int64(2000)))
		})
	})

	Describe("RemoveClient", func() {
		It("clears both indices", func() {
			c := NewClient("AAA", srv)
			c.SetNick("Bob", 1000)
			Expect(s.InsertClient(c)).To(Succeed())

			s.RemoveClient(c)

			_, ok := s.FindClientByName("bob")
			Expect(ok).To(BeFalse())
			Expect(s.AllClients()).To(BeEmpty())
		})
	})

	Describe("channel lifecycle", func() {
		It("creates once, finds case-insensitively afterward, and removes when empty", func() {
			ch, created := s.GetOrCreateChannel("#test", 1000)
			Expect(created).To(BeTrue())

			_, created = s.GetOrCreateChannel("#TEST", 1000)
			Expect(created).To(BeFalse(), "existing channel should be found case-insensitively")

			c := NewClient("AAA", srv)
			c.SetNick("Alice", 1000)
			m := &Membership{Client: c, Channel: ch}
			ch.AddMembership(m)
			Expect(ch.IsEmpty()).To(BeFalse())

			ch.RemoveMembership(c.Numnick)
			Expect(ch.IsEmpty()).To(BeTrue())

			s.RemoveChannel(ch)
			_, ok := s.FindChannel("#test")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("channel wipe and merge", func() {
		It("WipeModesAndOps clears modes and demotes ops, MergeModes layers new ones in", func() {
			ch := NewChannel("#x", 500)
			ch.SetMode('n', true, "")
			ch.SetMode('t', true, "")

			c := NewClient("AAA", srv)
			m := &Membership{Client: c, Channel: ch}
			m.SetStatus(StatusChanOp, true)
			ch.AddMembership(m)

			ch.WipeModesAndOps()
			Expect(ch.HasMode('n')).To(BeFalse())
			Expect(ch.HasMode('t')).To(BeFalse())
			Expect(m.HasStatus(StatusChanOp)).To(BeFalse())

			ch.MergeModes(ModeBits{'i': "", 'k': "secret"})
			Expect(ch.HasMode('i')).To(BeTrue())
		})
	})
})

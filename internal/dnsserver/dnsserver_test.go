package dnsserver

import (
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nameledger.dev/nameledger/internal/block"
)

type fakeChain struct {
	byName map[string]*block.Transaction
}

func (f *fakeChain) GetDomainTransaction(name string, nowUnix int64) (*block.Transaction, error) {
	return f.byName[name], nil
}

func newTestServer(t *testing.T, chain *fakeChain) *Server {
	t.Helper()
	return New("127.0.0.1:0", chain, func() int64 { return 0 }, zap.NewNop())
}

func TestAnswerQuestionResolvesAKnownDomain(t *testing.T) {
	tx := &block.Transaction{
		Class: block.ClassDomain,
		Data:  "zone=example\nrecord.A=203.0.113.5",
	}
	chain := &fakeChain{byName: map[string]*block.Transaction{"www.example": tx}}
	s := newTestServer(t, chain)

	resp := new(dns.Msg)
	resp.SetReply(&dns.Msg{})
	q := dns.Question{Name: "www.example.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	s.answerQuestion(resp, q)

	require.NotEqual(t, dns.RcodeNameError, resp.Rcode)
	require.Len(t, resp.Answer, 1)
	a, ok := resp.Answer[0].(*dns.A)
	require.True(t, ok)
	require.Equal(t, "203.0.113.5", a.A.String())
}

func TestAnswerQuestionReturnsNXDOMAINForUnknownDomain(t *testing.T) {
	chain := &fakeChain{byName: map[string]*block.Transaction{}}
	s := newTestServer(t, chain)

	resp := new(dns.Msg)
	q := dns.Question{Name: "nobody.example.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	s.answerQuestion(resp, q)

	require.Equal(t, dns.RcodeNameError, resp.Rcode)
	require.Empty(t, resp.Answer)
}

func TestAnswerQuestionResolvesTXT(t *testing.T) {
	tx := &block.Transaction{
		Class: block.ClassDomain,
		Data:  "zone=example\nrecord.TXT=hello world",
	}
	chain := &fakeChain{byName: map[string]*block.Transaction{"mail.example": tx}}
	s := newTestServer(t, chain)

	resp := new(dns.Msg)
	q := dns.Question{Name: "mail.example.", Qtype: dns.TypeTXT, Qclass: dns.ClassINET}
	s.answerQuestion(resp, q)

	require.Len(t, resp.Answer, 1)
	txt, ok := resp.Answer[0].(*dns.TXT)
	require.True(t, ok)
	require.Equal(t, []string{"hello world"}, txt.Txt)
}

func TestNormalizeNameLowercasesAndStripsRootDot(t *testing.T) {
	require.Equal(t, "www.example", normalizeName("WWW.Example."))
}

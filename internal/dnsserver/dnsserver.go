// Package dnsserver implements the companion DNS server named in the
// naming chain's overview as an external collaborator (§10.4 "DNS answer
// path"): a thin resolver answering A/TXT queries for "label.zone" names
// straight out of the chain store, with no recursion, caching, or upstream
// forwarding. Grounded on the teacher's internal/network package (the only
// network-facing component in the teacher repo) for its
// listen/serve/shutdown shape, generalized from a gossip listener into a
// request/response DNS handler built on github.com/miekg/dns.
package dnsserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"nameledger.dev/nameledger/internal/block"
)

// ChainView is the read-only surface the resolver needs from the chain
// store.
type ChainView interface {
	GetDomainTransaction(name string, nowUnix int64) (*block.Transaction, error)
}

// NowFunc returns the current Unix time; overridable in tests.
type NowFunc func() int64

// Server answers DNS queries for names committed to the chain.
type Server struct {
	chain ChainView
	now   NowFunc
	log   *zap.Logger
	dns   *dns.Server
}

// New constructs a Server bound to addr (host:port, UDP). now defaults to
// time.Now().Unix() when nil.
func New(addr string, chain ChainView, now NowFunc, log *zap.Logger) *Server {
	if now == nil {
		now = defaultNow
	}
	s := &Server{chain: chain, now: now, log: log}
	mux := dns.NewServeMux()
	mux.HandleFunc(".", s.handleQuery)
	s.dns = &dns.Server{Addr: addr, Net: "udp", Handler: mux}
	return s
}

// ListenAndServe blocks serving DNS queries until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.log.Info("dns server starting", zap.String("addr", s.dns.Addr))
	if err := s.dns.ListenAndServe(); err != nil {
		return fmt.Errorf("dnsserver: listen and serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.dns.ShutdownContext(ctx)
}

func (s *Server) handleQuery(w dns.ResponseWriter, req *dns.Msg) {
	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = true

	for _, q := range req.Question {
		s.answerQuestion(resp, q)
	}

	if err := w.WriteMsg(resp); err != nil {
		s.log.Warn("failed to write dns response", zap.Error(err))
	}
}

func (s *Server) answerQuestion(resp *dns.Msg, q dns.Question) {
	name := normalizeName(q.Name)

	tx, err := s.chain.GetDomainTransaction(name, s.now())
	if err != nil {
		s.log.Error("chain lookup failed", zap.String("name", name), zap.Error(err))
		resp.Rcode = dns.RcodeServerFailure
		return
	}
	if tx == nil {
		resp.Rcode = dns.RcodeNameError // NXDOMAIN: no live commitment for this name
		return
	}

	record, err := block.DecodeDomainRecord(tx.Data)
	if err != nil {
		s.log.Warn("malformed domain record on chain", zap.String("name", name), zap.Error(err))
		resp.Rcode = dns.RcodeServerFailure
		return
	}

	switch q.Qtype {
	case dns.TypeA:
		if value, ok := record.Records["A"]; ok {
			if rr, err := dns.NewRR(fmt.Sprintf("%s 60 IN A %s", q.Name, value)); err == nil {
				resp.Answer = append(resp.Answer, rr)
			}
		}
	case dns.TypeTXT:
		if value, ok := record.Records["TXT"]; ok {
			if rr, err := dns.NewRR(fmt.Sprintf("%s 60 IN TXT %q", q.Name, value)); err == nil {
				resp.Answer = append(resp.Answer, rr)
			}
		}
	}
}

// normalizeName strips the trailing root dot and lowercases a DNS wire
// name into the chain's domain-name form ("label.zone").
func normalizeName(wireName string) string {
	return strings.ToLower(strings.TrimSuffix(wireName, "."))
}

func defaultNow() int64 {
	return time.Now().Unix()
}

package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

const (
	queryID = 1

	// maxReplySize only bounds the read buffer; replies are never parsed.
	maxReplySize = 1232
)

type DNSConfig struct {
	Domain  string
	Port    int
	Timeout time.Duration
	Grace   time.Duration
}

// Prober sends single-question A queries over UDP and times the first
// datagram that comes back. Safe for concurrent use.
type Prober struct {
	port   int
	bound  time.Duration
	packet []byte
	lc     net.ListenConfig
}

func NewProber(cfg DNSConfig) (*Prober, error) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("dns port out of range: %d", cfg.Port)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("dns timeout must be > 0")
	}
	if cfg.Grace < 0 {
		return nil, fmt.Errorf("dns grace must be >= 0")
	}

	packet, err := BuildQuery(cfg.Domain)
	if err != nil {
		return nil, err
	}

	return &Prober{
		port:   cfg.Port,
		bound:  cfg.Timeout + cfg.Grace,
		packet: packet,
	}, nil
}

// BuildQuery packs a recursion-desired A/IN query for domain with a fixed
// transaction id and no additional records.
func BuildQuery(domain string) ([]byte, error) {
	name, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return nil, fmt.Errorf("encode test domain %q: %w", domain, err)
	}
	if name == "" {
		return nil, fmt.Errorf("test domain is empty")
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeA)
	msg.Id = queryID
	msg.RecursionDesired = true

	b, err := msg.Pack()
	if err != nil {
		return nil, fmt.Errorf("pack dns query: %w", err)
	}

	return b, nil
}

// Bound is the hard upper limit on how long a single Probe call can take.
func (p *Prober) Bound() time.Duration {
	return p.bound
}

// Probe never fails: timeouts and socket errors are folded into an
// Unreachable result. The socket is closed before Probe returns.
//
// The socket is unconnected and the first datagram from any source counts as
// the reply. Neither the transaction id nor the payload is checked.
func (p *Prober) Probe(ctx context.Context, ip string) Result {
	conn, err := p.lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return Result{IP: ip, RTT: Unreachable, Outcome: OutcomeSocketError}
	}
	defer conn.Close()

	dst, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(ip, strconv.Itoa(p.port)))
	if err != nil {
		return Result{IP: ip, RTT: Unreachable, Outcome: OutcomeSocketError}
	}

	start := time.Now()
	if err := conn.SetDeadline(start.Add(p.bound)); err != nil {
		return Result{IP: ip, RTT: Unreachable, Outcome: OutcomeSocketError}
	}
	if _, err := conn.WriteTo(p.packet, dst); err != nil {
		return Result{IP: ip, RTT: Unreachable, Outcome: outcomeFor(err)}
	}

	buf := make([]byte, maxReplySize)
	if _, _, err := conn.ReadFrom(buf); err != nil {
		return Result{IP: ip, RTT: Unreachable, Outcome: outcomeFor(err)}
	}
	elapsed := time.Since(start)

	return Result{IP: ip, RTT: elapsed.Truncate(time.Millisecond), Outcome: OutcomeReplied}
}

func outcomeFor(err error) Outcome {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return OutcomeTimedOut
	}
	return OutcomeSocketError
}

package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/iaserrat/dnsspeed/internal/speedtest"
	"github.com/tidwall/gjson"
)

const (
	DNSCryptURL  = "https://download.dnscrypt.info/resolvers-list/json/public-resolvers.json"
	PublicDNSURL = "https://public-dns.info/nameservers.json"

	minReliability = 0.95
)

// Builtin is the list of well-known public resolvers that is always merged
// into the collected list.
var Builtin = []string{
	"8.8.8.8",         // Google
	"8.8.4.4",         // Google
	"1.1.1.1",         // Cloudflare
	"1.0.0.1",         // Cloudflare
	"223.5.5.5",       // AliDNS
	"223.6.6.6",       // AliDNS
	"119.29.29.29",    // DNSPod
	"180.76.76.76",    // Baidu
	"114.114.114.114", // 114DNS
}

var errNotArray = errors.New("directory document is not a json array")

type Source interface {
	Name() string
	Servers(ctx context.Context) ([]string, error)
}

type StaticSource struct {
	name    string
	servers []string
}

func NewStaticSource(name string, servers []string) *StaticSource {
	return &StaticSource{name: name, servers: append([]string(nil), servers...)}
}

func (s *StaticSource) Name() string { return s.name }

func (s *StaticSource) Servers(context.Context) ([]string, error) {
	return append([]string(nil), s.servers...), nil
}

// Transform extracts IPv4 candidates from a downloaded directory document.
type Transform func(doc gjson.Result) []string

type URLSource struct {
	url       string
	fetcher   *Fetcher
	transform Transform
}

func NewURLSource(url string, fetcher *Fetcher, transform Transform) *URLSource {
	return &URLSource{url: url, fetcher: fetcher, transform: transform}
}

func (s *URLSource) Name() string { return s.url }

func (s *URLSource) Servers(ctx context.Context) ([]string, error) {
	body, err := s.fetcher.Fetch(ctx, s.url)
	if err != nil {
		return nil, err
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsArray() {
		return nil, errNotArray
	}

	return s.transform(doc), nil
}

// DefaultSources returns the public directories followed by Builtin.
func DefaultSources(fetcher *Fetcher) []Source {
	return []Source{
		NewURLSource(DNSCryptURL, fetcher, DNSCryptTransform),
		NewURLSource(PublicDNSURL, fetcher, PublicDNSTransform),
		NewStaticSource("builtin", Builtin),
	}
}

// DNSCryptTransform flattens the addrs of every dnscrypt resolver entry and
// keeps the IPv4 ones.
func DNSCryptTransform(doc gjson.Result) []string {
	var out []string
	doc.ForEach(func(_, entry gjson.Result) bool {
		entry.Get("addrs").ForEach(func(_, addr gjson.Result) bool {
			if ip := addr.String(); addr.Type == gjson.String && speedtest.IsValidIP(ip) {
				out = append(out, ip)
			}
			return true
		})
		return true
	})
	return out
}

// PublicDNSTransform keeps public-dns.info IPv4 nameservers whose
// reliability is unknown or at least 95% and which carry no error.
func PublicDNSTransform(doc gjson.Result) []string {
	var out []string
	doc.ForEach(func(_, entry gjson.Result) bool {
		ip := entry.Get("ip")
		if ip.Type != gjson.String || strings.Contains(ip.Str, ":") {
			return true
		}
		if rel := entry.Get("reliability"); rel.Exists() && rel.Type != gjson.Null && rel.Float() < minReliability {
			return true
		}
		if truthy(entry.Get("error")) {
			return true
		}
		if speedtest.IsValidIP(ip.Str) {
			out = append(out, ip.Str)
		}
		return true
	})
	return out
}

func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.String:
		return r.Str != ""
	case gjson.Number:
		return r.Num != 0
	default:
		return true
	}
}

package security

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// ErrUpstreamNotAllowed is wrapped by every ValidateUpstreamURL failure.
var ErrUpstreamNotAllowed = errors.New("upstream URL not allowed")

// metadataHosts serve cloud instance credentials and are never upstreams.
var metadataHosts = []string{"metadata.google.internal", "metadata.google", "metadata"}

// ValidateUpstreamURL checks a configured upstream endpoint (explorer,
// protocol directory, RPC node) without resolving it. The URL must be
// absolute http(s) with no credentials, and must not point at a cloud
// metadata service.
//
// In strict mode, used in production, it must also be https and IP
// literals must be publicly routable. Outside strict mode a local node
// such as http://127.0.0.1:8545 is accepted.
func ValidateUpstreamURL(rawURL string, strict bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamNotAllowed, err)
	}
	reject := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrUpstreamNotAllowed}, args...)...)
	}

	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return reject("scheme must be http or https")
	case u.Host == "":
		return reject("missing host")
	case u.User != nil:
		return reject("credentials must not be embedded")
	case strict && u.Scheme != "https":
		return reject("%q must use https", redact(u))
	}

	host := strings.ToLower(u.Hostname())
	for _, m := range metadataHosts {
		if host == m {
			return reject("host %q is a metadata service", host)
		}
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		if strict && host == "localhost" {
			return reject("loopback host %q", host)
		}
		return nil // a DNS name
	}
	if reason := addrProblem(addr.Unmap(), strict); reason != "" {
		return reject("%s address %s", reason, addr)
	}
	return nil
}

// addrProblem names why addr cannot be an upstream, or returns "".
// Link-local covers 169.254.169.254, the usual metadata address.
func addrProblem(addr netip.Addr, strict bool) string {
	switch {
	case addr.IsUnspecified():
		return "unspecified"
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return "link-local"
	case strict && addr.IsLoopback():
		return "loopback"
	case strict && addr.IsPrivate():
		return "private"
	}
	return ""
}

// redact drops the query, which may carry an API key.
func redact(u *url.URL) string {
	cp := *u
	cp.RawQuery = ""
	return cp.String()
}

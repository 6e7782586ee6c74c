// Package security implements the URL security validator: a side-effect-free
// predicate applied before every outbound fetch to block SSRF-prone
// destinations.
package security

import (
	"context"
	"net"
	"net/url"
	"strings"

	"github.com/ngoclaw/toolorch/internal/apperr"
)

var dangerousSchemes = []string{
	"file:", "ftp:", "ftps:", "data:", "javascript:", "vbscript:",
	"about:", "blob:", "gopher:", "dict:", "tftp:",
}

var metadataHosts = map[string]bool{
	"169.254.169.254":        true,
	"metadata.google.internal": true,
	"100.100.100.200":        true,
	"fd00:ec2::254":          true,
	"metadata":               true,
	"metadata.azure.com":     true,
}

var publicSuffixAllowlist = []string{
	"google.com", "github.com", "stackoverflow.com", "wikipedia.org",
	"medium.com", "arxiv.org",
}

var privateIPv4Ranges = []*net.IPNet{
	mustCIDR("10.0.0.0/8"),
	mustCIDR("172.16.0.0/12"),
	mustCIDR("192.168.0.0/16"),
	mustCIDR("127.0.0.0/8"),
	mustCIDR("169.254.0.0/16"),
}

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic("security: invalid CIDR literal " + s)
	}
	return n
}

// Resolver is the DNS lookup used by Validate; swappable for tests.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

var defaultResolver Resolver = net.DefaultResolver

// Validate applies the rejection rules of spec §4.1 in order, returning an
// *apperr.AppError with code SecurityError on the first rule that fires, or
// nil if the URL may proceed.
func Validate(ctx context.Context, rawURL string) error {
	return validateWithResolver(ctx, rawURL, defaultResolver)
}

func validateWithResolver(ctx context.Context, rawURL string, resolver Resolver) error {
	lower := strings.ToLower(rawURL)
	for _, scheme := range dangerousSchemes {
		if strings.HasPrefix(lower, scheme) {
			return apperr.NewSecurityError("Dangerous URL scheme: " + scheme)
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return apperr.NewSecurityError("Invalid URL: " + rawURL)
	}

	if !strings.EqualFold(u.Scheme, "https") {
		return apperr.NewSecurityError("Only HTTPS URLs are allowed")
	}

	host := u.Hostname()
	if isMetadataHost(host) {
		return apperr.NewSecurityError("Blocked cloud metadata endpoint")
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIPv4(ip) {
			return apperr.NewSecurityError("Blocked private network address")
		}
		return nil
	}

	if isAllowlistedSuffix(host) {
		return nil
	}

	// DNS failure is NOT an error — let the fetch proceed and fail naturally.
	addrs, err := resolver.LookupHost(ctx, host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIPv4(ip) {
			return apperr.NewSecurityError("Blocked private network address")
		}
	}
	return nil
}

// ValidateRedirect additionally rejects cross-host redirects.
func ValidateRedirect(ctx context.Context, original, next string) error {
	origURL, err := url.Parse(original)
	if err != nil {
		return apperr.NewSecurityError("Invalid URL: " + original)
	}
	nextURL, err := url.Parse(next)
	if err != nil {
		return apperr.NewSecurityError("Invalid redirect URL: " + next)
	}
	if !strings.EqualFold(origURL.Hostname(), nextURL.Hostname()) {
		return apperr.NewSecurityError("Cross-host redirect blocked")
	}
	return Validate(ctx, next)
}

func isMetadataHost(host string) bool {
	host = strings.ToLower(host)
	if metadataHosts[host] {
		return true
	}
	for h := range metadataHosts {
		if strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func isAllowlistedSuffix(host string) bool {
	host = strings.ToLower(host)
	for _, suffix := range publicSuffixAllowlist {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

func isPrivateIPv4(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	for _, n := range privateIPv4Ranges {
		if n.Contains(v4) {
			return true
		}
	}
	return false
}

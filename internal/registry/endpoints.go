package registry

import (
	"net"
	"net/url"
	"strings"
)

const (
	JupiterLiteBaseURL = "https://lite-api.jup.ag/swap/v1"
	JupiterProBaseURL  = "https://api.jup.ag/swap/v1"
	JupiterAPIKeyEnv   = "JUPITER_API_KEY"

	// Validator fetch source written into [test.validator] when none is set.
	DefaultValidatorURL = "https://api.mainnet-beta.solana.com"
)

// JupiterBaseURL picks the keyed endpoint when an API key is configured.
func JupiterBaseURL(apiKey string) string {
	if strings.TrimSpace(apiKey) != "" {
		return JupiterProBaseURL
	}
	return JupiterLiteBaseURL
}

// IsAllowedEndpoint reports whether an endpoint override may be used. Remote
// endpoints must use https; loopback hosts may use http for tests and local
// proxies.
func IsAllowedEndpoint(endpoint string) bool {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if isLoopbackHost(parsed.Hostname()) {
		return scheme == "http" || scheme == "https"
	}
	return scheme == "https"
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

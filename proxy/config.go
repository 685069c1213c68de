package proxy

// DefaultUpstreamURL is the Anthropic API endpoint the proxy fronts.
const DefaultUpstreamURL = "https://api.anthropic.com"

// Config is the configuration for the capture proxy.
type Config struct {
	// ListenAddr is the address the proxy listens on, e.g. ":8080".
	ListenAddr string

	// UpstreamURL is the API origin requests are forwarded to.
	// Defaults to DefaultUpstreamURL.
	UpstreamURL string

	// OnBearerToken, when set, is invoked with the token of every Bearer
	// Authorization header observed on an outbound request. Used by the
	// one-shot token extraction mode.
	OnBearerToken func(token string)
}

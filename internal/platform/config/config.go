package config

import (
	"os"
	"strconv"
	"time"
)

// Network selects the identity network the service verifies against.
type Network string

const (
	NetworkTestnet Network = "testnet"
	NetworkMainnet Network = "mainnet"
)

// Per-network chain identifiers for the peer pairing namespace.
var chains = map[Network]string{
	NetworkTestnet: "ccd:4221332d34e1694168c2a0c0b3fd0f27",
	NetworkMainnet: "ccd:9dd9ca4d19e9393877d2c44b70f89acb",
}

// Static trusted-issuer allowlist per network. Multi-tenant issuer
// management is out of scope; this list is fixed per deployment.
var trustedIssuers = map[Network][]string{
	NetworkTestnet: {
		"did:ccd:testnet:idp:0",
		"did:ccd:testnet:idp:1",
		"did:ccd:testnet:idp:2",
		"did:ccd:testnet:idp:3",
	},
	NetworkMainnet: {
		"did:ccd:mainnet:idp:0",
		"did:ccd:mainnet:idp:1",
		"did:ccd:mainnet:idp:2",
		"did:ccd:mainnet:idp:3",
	},
}

// DeepLinkScheme is the identity-app deep link scheme. Both mobile
// platforms register the same scheme.
const DeepLinkScheme = "concordiumidapp"

// Server captures service-level configuration.
type Server struct {
	Addr    string
	Network Network

	RequiredAge   int
	SessionTTL    time.Duration
	SweepInterval time.Duration

	VerifierServiceURL string
	ResourceID         string
	ContextString      string

	SessionSigningKey string
	CredentialTTL     time.Duration
	AdminTokenHash    string

	TracingEnabled bool

	GNewsAPIKey    string
	GuardianAPIKey string
	NewsCacheTTL   time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:               envOr("AGEGATE_ADDR", ":8080"),
		Network:            NetworkTestnet,
		RequiredAge:        envInt("REQUIRED_AGE", 18),
		SessionTTL:         time.Duration(envInt("VERIFICATION_SESSION_TTL", 300)) * time.Second,
		SweepInterval:      30 * time.Second,
		VerifierServiceURL: envOr("VERIFIER_SERVICE_URL", "http://localhost:8000"),
		ResourceID:         envOr("RESOURCE_ID", "/news"),
		ContextString:      envOr("CONTEXT_STRING", "Age verification for age-gated news"),
		SessionSigningKey:  envOr("SESSION_SIGNING_KEY", "dev-secret-key-change-in-production"),
		CredentialTTL:      24 * time.Hour,
		AdminTokenHash:     os.Getenv("ADMIN_TOKEN_HASH"),
		TracingEnabled:     os.Getenv("OTEL_TRACING_ENABLED") == "true",
		GNewsAPIKey:        os.Getenv("GNEWS_API_KEY"),
		GuardianAPIKey:     os.Getenv("GUARDIAN_API_KEY"),
		NewsCacheTTL:       time.Duration(envInt("NEWS_CACHE_TTL", 1800)) * time.Second,
	}

	if Network(os.Getenv("AGEGATE_NETWORK")) == NetworkMainnet {
		cfg.Network = NetworkMainnet
	}

	return cfg
}

// ChainID returns the pairing chain identifier for the configured network.
func (s Server) ChainID() string {
	return chains[s.Network]
}

// TrustedIssuers returns a copy of the issuer allowlist for the configured network.
func (s Server) TrustedIssuers() []string {
	issuers := trustedIssuers[s.Network]
	out := make([]string, len(issuers))
	copy(out, issuers)
	return out
}

// DOBUpperBound computes the latest birth date that still satisfies the
// configured minimum age at the given time, formatted YYYYMMDD.
// Anyone born on or before this date is at least RequiredAge years old.
// The cutoff is computed from calendar fields so the result does not
// drift across time zones at midnight boundaries.
func (s Server) DOBUpperBound(now time.Time) string {
	year, month, day := now.Date()
	cutoff := time.Date(year-s.RequiredAge, month, day, 0, 0, 0, 0, time.UTC)
	return cutoff.Format("20060102")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

// Config holds the application configuration for both the API server and
// the chain watcher daemon. All values come from environment variables.
type Config struct {
	Environment string

	// DatabaseURL selects Postgres when set. When empty the service falls
	// back to an embedded SQLite database at SQLitePath.
	DatabaseURL string
	SQLitePath  string

	ChainGRPCAddr string

	// CustodyGRPCAddr selects the remote custody signing backend when set;
	// otherwise signer keys live sealed in the embedded database.
	CustodyGRPCAddr string

	KeyStorePath string
	ListenAddr   string
	RedisAddr    string

	TLSCertFile  string
	TLSKeyFile   string
	TLSClientCA  string
	IPAllowlist  []string
	MaxBodyBytes int64

	AuditSink string
	KMSSigner string
}

// Load reads configuration from environment variables. Development and
// testing environments get permissive defaults; production and staging
// require secret indirection for key material.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:     os.Getenv("APP_ENV"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SQLitePath:      os.Getenv("SQLITE_PATH"),
		ChainGRPCAddr:   os.Getenv("CHAIN_GRPC_ADDR"),
		CustodyGRPCAddr: os.Getenv("CUSTODY_GRPC_ADDR"),
		KeyStorePath:    os.Getenv("KEY_STORE_PATH"),
		ListenAddr:      os.Getenv("LISTEN_ADDR"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		TLSCertFile:     os.Getenv("TLS_CERT_FILE"),
		TLSKeyFile:      os.Getenv("TLS_KEY_FILE"),
		TLSClientCA:     os.Getenv("TLS_CLIENT_CA"),
		AuditSink:       os.Getenv("AUDIT_SINK"),
		KMSSigner:       os.Getenv("KMS_SIGNER"),
		MaxBodyBytes:    1 << 20,
	}

	if v := os.Getenv("IP_ALLOWLIST"); v != "" {
		for _, cidr := range strings.Split(v, ",") {
			if cidr = strings.TrimSpace(cidr); cidr != "" {
				cfg.IPAllowlist = append(cfg.IPAllowlist, cidr)
			}
		}
	}
	if v := os.Getenv("MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.New("MAX_BODY_BYTES must be an integer")
		}
		cfg.MaxBodyBytes = n
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = "confidential-ledger.db"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is complete for the current
// environment.
func (c *Config) Validate() error {
	var missing []string

	if c.Environment == "" {
		missing = append(missing, "APP_ENV")
	}
	if c.KeyStorePath == "" {
		missing = append(missing, "KEY_STORE_PATH")
	}
	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if c.Environment == "production" || c.Environment == "staging" {
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
		if c.ChainGRPCAddr == "" {
			missing = append(missing, "CHAIN_GRPC_ADDR")
		}
		if c.KMSSigner == "" {
			missing = append(missing, "KMS_SIGNER")
		}
		if len(missing) > 0 {
			return errors.New("missing required environment variables for " + c.Environment + ": " + strings.Join(missing, ", "))
		}

		// Key material must be referenced through a KMS, never inlined.
		if !isSecretReference(c.KMSSigner) {
			return errors.New("KMS_SIGNER must be a KMS reference (start with aws-kms://, gcp-kms://, or vault://)")
		}
	}

	return nil
}

func isSecretReference(val string) bool {
	prefixes := []string{"aws-kms://", "gcp-kms://", "vault://"}
	for _, p := range prefixes {
		if strings.HasPrefix(val, p) {
			return true
		}
	}
	return false
}

// UsePostgres reports whether the service should connect to Postgres
// rather than the embedded SQLite store.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

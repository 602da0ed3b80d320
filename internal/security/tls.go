package security

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// TLSConfig holds file paths for a TLS endpoint. CAFile is the pool used
// to verify the peer: client certificates on the server side, the server
// certificate on the client side.
type TLSConfig struct {
	CertFile          string
	KeyFile           string
	CAFile            string
	RequireClientAuth bool
}

// LoadServerTLSConfig builds the server-side TLS configuration. TLS 1.3
// only; client certificates are verified against CAFile when
// RequireClientAuth is set.
func LoadServerTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate and key: %w", err)
	}

	clientAuth := tls.NoClientCert
	if cfg.RequireClientAuth {
		clientAuth = tls.RequireAndVerifyClientCert
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		CipherSuites: []uint16{
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_CHACHA20_POLY1305_SHA256,
		},
		ClientAuth: clientAuth,
	}

	if cfg.CAFile != "" {
		caData, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caData) {
			return nil, errors.New("failed to parse CA certificate")
		}

		tlsCfg.ClientCAs = caCertPool
	}

	return tlsCfg, nil
}

// LoadClientTLSConfig builds the client-side TLS configuration used when
// dialing the chain node over mutual TLS.
func LoadClientTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate and key: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		CipherSuites: []uint16{
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_CHACHA20_POLY1305_SHA256,
		},
	}

	if cfg.CAFile != "" {
		caData, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read server CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caData) {
			return nil, errors.New("failed to parse server CA certificate")
		}

		tlsCfg.RootCAs = caCertPool
	}

	return tlsCfg, nil
}

// VerifyTLSFiles verifies that all required TLS files exist.
func VerifyTLSFiles(certFile, keyFile, caFile string) error {
	for _, file := range []string{certFile, keyFile, caFile} {
		if file == "" {
			return errors.New("TLS file path must not be empty")
		}
		if _, err := os.Stat(file); err != nil {
			return fmt.Errorf("TLS file not found: %s - %w", file, err)
		}
	}
	return nil
}

// GenerateTLSPaths generates TLS file paths from a base directory.
func GenerateTLSPaths(baseDir string) (certFile, keyFile, caFile string) {
	certFile = filepath.Join(baseDir, "server.crt")
	keyFile = filepath.Join(baseDir, "server.key")
	caFile = filepath.Join(baseDir, "ca.crt")
	return
}

// PeerService extracts the calling service name from a verified client
// certificate. The Common Name identifies the service.
func PeerService(clientCert *x509.Certificate) (string, error) {
	if clientCert == nil {
		return "", errors.New("client certificate is nil")
	}

	service := clientCert.Subject.CommonName
	if service == "" {
		return "", errors.New("certificate Common Name is empty")
	}

	return service, nil
}

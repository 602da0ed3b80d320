package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"testing"
	"time"
)

func generateSelfSignedCert(t *testing.T, commonName string) (certFile, keyFile string) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate private key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName: commonName,
		},
		NotBefore: time.Now(),
		NotAfter:  time.Now().Add(time.Hour),
		KeyUsage:  x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}

	tmpDir := t.TempDir()
	certFile = tmpDir + "/test.crt"
	keyFile = tmpDir + "/test.key"

	certPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: certDER,
	})
	if err := os.WriteFile(certFile, certPEM, 0600); err != nil {
		t.Fatalf("Failed to write certificate: %v", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		t.Fatalf("Failed to marshal private key: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: keyDER,
	})
	if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
		t.Fatalf("Failed to write key: %v", err)
	}

	return certFile, keyFile
}

func TestLoadServerTLSConfig(t *testing.T) {
	certFile, keyFile := generateSelfSignedCert(t, "ledger-api")

	cfg, err := LoadServerTLSConfig(TLSConfig{CertFile: certFile, KeyFile: keyFile})
	if err != nil {
		t.Fatalf("LoadServerTLSConfig failed: %v", err)
	}
	if cfg.MinVersion != 0x0304 { // TLS 1.3
		t.Errorf("expected TLS 1.3 minimum, got %x", cfg.MinVersion)
	}
	if cfg.ClientAuth != 0 {
		t.Errorf("expected no client auth by default, got %v", cfg.ClientAuth)
	}
}

func TestLoadServerTLSConfigClientAuth(t *testing.T) {
	certFile, keyFile := generateSelfSignedCert(t, "ledger-api")

	cfg, err := LoadServerTLSConfig(TLSConfig{
		CertFile:          certFile,
		KeyFile:           keyFile,
		CAFile:            certFile,
		RequireClientAuth: true,
	})
	if err != nil {
		t.Fatalf("LoadServerTLSConfig failed: %v", err)
	}
	if cfg.ClientCAs == nil {
		t.Error("expected client CA pool to be set")
	}
}

func TestVerifyTLSFilesExists(t *testing.T) {
	certFile, keyFile := generateSelfSignedCert(t, "test")
	tmpDir := t.TempDir()
	caFile := tmpDir + "/ca.crt"

	if err := os.WriteFile(caFile, []byte("test"), 0600); err != nil {
		t.Fatalf("Failed to create CA file: %v", err)
	}

	err := VerifyTLSFiles(certFile, keyFile, caFile)
	if err != nil {
		t.Errorf("VerifyTLSFiles should not fail with existing files: %v", err)
	}
}

func TestVerifyTLSFilesMissing(t *testing.T) {
	err := VerifyTLSFiles("/nonexistent/cert.crt", "/nonexistent/key.key", "/nonexistent/ca.crt")
	if err == nil {
		t.Error("VerifyTLSFiles should fail with missing files")
	}
}

func TestVerifyTLSFilesEmpty(t *testing.T) {
	err := VerifyTLSFiles("", "", "")
	if err == nil {
		t.Error("VerifyTLSFiles should fail with empty paths")
	}
}

func TestGenerateTLSPaths(t *testing.T) {
	certFile, keyFile, caFile := GenerateTLSPaths("/var/lib/ledger")

	if certFile != "/var/lib/ledger/server.crt" {
		t.Errorf("Expected cert file path /var/lib/ledger/server.crt, got %s", certFile)
	}
	if keyFile != "/var/lib/ledger/server.key" {
		t.Errorf("Expected key file path /var/lib/ledger/server.key, got %s", keyFile)
	}
	if caFile != "/var/lib/ledger/ca.crt" {
		t.Errorf("Expected CA file path /var/lib/ledger/ca.crt, got %s", caFile)
	}
}

func TestPeerService(t *testing.T) {
	cert := &x509.Certificate{
		Subject: pkix.Name{CommonName: "settlement-coordinator"},
	}

	service, err := PeerService(cert)
	if err != nil {
		t.Fatalf("PeerService failed: %v", err)
	}
	if service != "settlement-coordinator" {
		t.Errorf("Expected service 'settlement-coordinator', got '%s'", service)
	}

	if _, err := PeerService(nil); err == nil {
		t.Error("PeerService should fail with nil certificate")
	}

	if _, err := PeerService(&x509.Certificate{}); err == nil {
		t.Error("PeerService should fail with empty common name")
	}
}

package proxy

import (
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// simpleCertStore implements goproxy.CertStorage for certificate caching
type simpleCertStore struct {
	mu    sync.Mutex
	certs map[string]*tls.Certificate
}

func newCertStore() *simpleCertStore {
	return &simpleCertStore{certs: make(map[string]*tls.Certificate)}
}

// Fetch returns the certificate of hostname, generating it on first use.
// Generation runs under the lock so each host is signed once.
func (s *simpleCertStore) Fetch(hostname string, gen func() (*tls.Certificate, error)) (*tls.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cert, ok := s.certs[hostname]
	if ok {
		return cert, nil
	}

	cert, err := gen()
	if err != nil {
		logrus.Errorf("Failed to generate certificate for hostname '%s': %v", hostname, err)
		return nil, fmt.Errorf("failed to generate certificate for hostname '%s': %w", hostname, err)
	}

	s.certs[hostname] = cert
	return cert, nil
}

package cert

import (
	"bytes"
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// Verification errors.
var (
	ErrCertExpired     = errors.New("certificate has expired")
	ErrCertNotYetValid = errors.New("certificate is not yet valid")
	ErrInvalidChain    = errors.New("invalid certificate chain")
	ErrIssuerMismatch  = errors.New("certificate issuer mismatch")
)

// Verify checks that c is currently valid and chains to one of roots.
func Verify(c *x509.Certificate, roots *x509.CertPool) error {
	if c == nil {
		return ErrInvalidCert
	}
	if roots == nil {
		return fmt.Errorf("%w: no roots", ErrInvalidChain)
	}

	now := time.Now()
	if now.Before(c.NotBefore) {
		return ErrCertNotYetValid
	}
	if now.After(c.NotAfter) {
		return ErrCertExpired
	}

	opts := x509.VerifyOptions{
		Roots:       roots,
		CurrentTime: now,
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}
	if _, err := c.Verify(opts); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChain, err)
	}
	return nil
}

// IssuedBy reports whether c names ca as its issuing key.
func IssuedBy(c, ca *x509.Certificate) error {
	if c == nil || ca == nil {
		return ErrInvalidCert
	}
	if len(c.AuthorityKeyId) == 0 || len(ca.SubjectKeyId) == 0 {
		return fmt.Errorf("%w: missing key identifiers", ErrIssuerMismatch)
	}
	if !bytes.Equal(c.AuthorityKeyId, ca.SubjectKeyId) {
		return ErrIssuerMismatch
	}
	return nil
}

// PeerName returns the CommonName of a peer certificate, used as the
// peer identity in logs.
func PeerName(c *x509.Certificate) (string, error) {
	if c == nil {
		return "", ErrInvalidCert
	}
	if c.Subject.CommonName == "" {
		return "", fmt.Errorf("%w: no CommonName", ErrInvalidCert)
	}
	return c.Subject.CommonName, nil
}

// Info is a printable summary of a certificate.
type Info struct {
	CommonName string
	Issuer     string
	NotBefore  time.Time
	NotAfter   time.Time
	IsCA       bool
	SKI        []byte
	AKI        []byte
}

// Describe summarizes c.
func Describe(c *x509.Certificate) *Info {
	if c == nil {
		return nil
	}
	return &Info{
		CommonName: c.Subject.CommonName,
		Issuer:     c.Issuer.CommonName,
		NotBefore:  c.NotBefore,
		NotAfter:   c.NotAfter,
		IsCA:       c.IsCA,
		SKI:        c.SubjectKeyId,
		AKI:        c.AuthorityKeyId,
	}
}

package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"
)

// Validity periods.
const (
	CAValidity   = 10 * 365 * 24 * time.Hour
	LeafValidity = 365 * 24 * time.Hour
)

// ErrInvalidCert is returned for nil or incomplete certificates.
var ErrInvalidCert = errors.New("invalid certificate")

// Authority issues certificates for routers and peers. Peers presenting a
// certificate of the router's authority are treated as authenticated by
// the TLS and DTLS wires.
type Authority struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// GenerateKey creates an ECDSA P-256 key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// ComputeSKI derives a subject key identifier from the SHA-1 of the
// encoded public key.
func ComputeSKI(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	sum := sha1.Sum(der)
	return sum[:], nil
}

func serialNumber() (*big.Int, error) {
	return rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
}

// NewAuthority creates a self-signed CA named name.
func NewAuthority(name string) (*Authority, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	ski, err := ComputeSKI(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	sn, err := serialNumber()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          sn,
		Subject:               pkix.Name{CommonName: name, Organization: []string{"flake"}},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(CAValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
		SubjectKeyId:          ski,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create CA certificate: %w", err)
	}
	c, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &Authority{Certificate: c, PrivateKey: key}, nil
}

// LoadAuthority reads a CA certificate and key from PEM files.
func LoadAuthority(certFile, keyFile string) (*Authority, error) {
	c, err := ReadCertFile(certFile)
	if err != nil {
		return nil, err
	}
	if !c.IsCA {
		return nil, fmt.Errorf("%w: %s is not a CA", ErrInvalidCert, certFile)
	}
	k, err := ReadKeyFile(keyFile)
	if err != nil {
		return nil, err
	}
	return &Authority{Certificate: c, PrivateKey: k}, nil
}

// Pool returns a pool holding only the authority certificate.
func (a *Authority) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(a.Certificate)
	return pool
}

// Issue creates a leaf certificate for commonName, usable by both TLS
// sides. hosts become DNS or IP subject alternative names.
func (a *Authority) Issue(commonName string, hosts ...string) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	if a == nil || a.Certificate == nil || a.PrivateKey == nil {
		return nil, nil, ErrInvalidCert
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, nil, err
	}
	ski, err := ComputeSKI(&key.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	sn, err := serialNumber()
	if err != nil {
		return nil, nil, err
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:   sn,
		Subject:        pkix.Name{CommonName: commonName},
		NotBefore:      now.Add(-time.Minute),
		NotAfter:       now.Add(LeafValidity),
		KeyUsage:       x509.KeyUsageDigitalSignature,
		ExtKeyUsage:    []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		SubjectKeyId:   ski,
		AuthorityKeyId: a.Certificate.SubjectKeyId,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, a.Certificate, &key.PublicKey, a.PrivateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("issue certificate: %w", err)
	}
	c, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, err
	}
	return c, key, nil
}

// GenerateSelfSigned creates a throwaway authority and a leaf for hosts.
// The returned pool verifies the leaf.
func GenerateSelfSigned(commonName string, hosts ...string) (*x509.Certificate, *ecdsa.PrivateKey, *x509.CertPool, error) {
	ca, err := NewAuthority(commonName + " CA")
	if err != nil {
		return nil, nil, nil, err
	}
	c, k, err := ca.Issue(commonName, hosts...)
	if err != nil {
		return nil, nil, nil, err
	}
	return c, k, ca.Pool(), nil
}

package signing

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"time"

	"github.com/pkg/errors"

	"github.com/defensechain/defensechain/storage/model"
)

// DefaultCertificateLifetime is the validity of issued certificates if
// nothing else is configured
const DefaultCertificateLifetime = 365 * 24 * time.Hour

// IssuedCertificate is the result of Issuer.Issue
type IssuedCertificate struct {
	CertificatePEM string
	PrivateKeyPEM  string
	SerialNumber   string
	OrganizationID string
	EnrollmentID   string
	NotBefore      time.Time
	NotAfter       time.Time
}

// Issuer creates user certificates signed by the organization of the user's role
type Issuer struct {
	keys     KeyProvider
	orgs     model.Organizations
	lifetime time.Duration
	now      func() time.Time
}

// NewIssuer returns an Issuer; a non-positive lifetime selects DefaultCertificateLifetime
func NewIssuer(keys KeyProvider, orgs model.Organizations, lifetime time.Duration) *Issuer {
	if lifetime <= 0 {
		lifetime = DefaultCertificateLifetime
	}
	return &Issuer{
		keys:     keys,
		orgs:     orgs,
		lifetime: lifetime,
		now:      time.Now,
	}
}

// Organization returns the organization that issues certificates for role
func (i *Issuer) Organization(role model.Role) (string, error) {
	return i.orgs.Of(role)
}

// Issue generates a key pair for the user and a certificate for it. The
// enrollment id is the user's email address.
func (i *Issuer) Issue(ctx context.Context, userID, email string, role model.Role) (*IssuedCertificate, error) {
	org, err := i.orgs.Of(role)
	if err != nil {
		return nil, err
	}
	orgKey, err := i.keys.SigningKey(ctx, org)
	if err != nil {
		return nil, err
	}
	orgPriv, err := ecdsaPrivateKey(orgKey)
	if err != nil {
		return nil, err
	}
	orgCert, err := i.keys.Certificate(ctx, org)
	if err != nil {
		return nil, err
	}

	userPriv, err := ecdsa.GenerateKey(orgPriv.Curve, rand.Reader)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}
	now := i.now().UTC()
	notAfter := now.Add(i.lifetime)
	if notAfter.After(orgCert.NotAfter) {
		notAfter = orgCert.NotAfter
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:         userID,
			Organization:       []string{org},
			OrganizationalUnit: []string{string(role)},
		},
		EmailAddresses: []string{email},
		NotBefore:      now,
		NotAfter:       notAfter,
		KeyUsage:       x509.KeyUsageDigitalSignature,
		ExtKeyUsage:    []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, orgCert, &userPriv.PublicKey, orgPriv)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create user certificate")
	}
	keyDER, err := x509.MarshalECPrivateKey(userPriv)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &IssuedCertificate{
		CertificatePEM: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
		PrivateKeyPEM:  string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})),
		SerialNumber:   serial.Text(16),
		OrganizationID: org,
		EnrollmentID:   email,
		NotBefore:      now,
		NotAfter:       notAfter,
	}, nil
}

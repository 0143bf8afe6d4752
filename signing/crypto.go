package signing

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/pkg/errors"
)

// DefaultAlgorithm is used when no algorithm is configured
var DefaultAlgorithm = jwa.ES256()

type algorithmParams struct {
	curve elliptic.Curve
	hash  crypto.Hash
}

func paramsFor(alg jwa.SignatureAlgorithm) (algorithmParams, error) {
	switch alg.String() {
	case jwa.ES256().String():
		return algorithmParams{curve: elliptic.P256(), hash: crypto.SHA256}, nil
	case jwa.ES384().String():
		return algorithmParams{curve: elliptic.P384(), hash: crypto.SHA384}, nil
	case jwa.ES512().String():
		return algorithmParams{curve: elliptic.P521(), hash: crypto.SHA512}, nil
	default:
		return algorithmParams{}, errors.Errorf("unsupported signing algorithm: %s", alg.String())
	}
}

// ParseAlgorithm looks up an ECDSA signature algorithm by name
func ParseAlgorithm(name string) (jwa.SignatureAlgorithm, error) {
	if name == "" {
		return DefaultAlgorithm, nil
	}
	alg, ok := jwa.LookupSignatureAlgorithm(name)
	if !ok {
		return alg, errors.Errorf("invalid signing algorithm: %s", name)
	}
	if _, err := paramsFor(alg); err != nil {
		return alg, err
	}
	return alg, nil
}

func digest(h crypto.Hash, contentHash string) []byte {
	hasher := h.New()
	hasher.Write([]byte(contentHash))
	return hasher.Sum(nil)
}

func ecdsaPrivateKey(key jwk.Key) (*ecdsa.PrivateKey, error) {
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to export signing key")
	}
	switch k := raw.(type) {
	case *ecdsa.PrivateKey:
		return k, nil
	case ecdsa.PrivateKey:
		return &k, nil
	default:
		return nil, errors.Errorf("signing key is %T, not an ecdsa private key", raw)
	}
}

// GenerateKey creates a new ecdsa key for alg and returns it as jwk.Key
func GenerateKey(alg jwa.SignatureAlgorithm) (jwk.Key, error) {
	params, err := paramsFor(alg)
	if err != nil {
		return nil, err
	}
	priv, err := ecdsa.GenerateKey(params.curve, rand.Reader)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	key, err := jwk.Import(priv)
	if err != nil {
		return nil, errors.Wrap(err, "failed to import generated key")
	}
	if err = key.Set(jwk.AlgorithmKey, alg); err != nil {
		return nil, errors.WithStack(err)
	}
	return key, nil
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	return serial, errors.WithStack(err)
}

// SelfSignedCertificate creates a CA certificate for an organization key
func SelfSignedCertificate(org string, key jwk.Key, lifetime time.Duration, now time.Time) (*x509.Certificate, error) {
	priv, err := ecdsaPrivateKey(key)
	if err != nil {
		return nil, err
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   org + " signing authority",
			Organization: []string{org},
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(lifetime),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create organization certificate")
	}
	cert, err := x509.ParseCertificate(der)
	return cert, errors.WithStack(err)
}

// EncodeCertificatePEM returns the PEM encoding of a certificate
func EncodeCertificatePEM(cert *x509.Certificate) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}))
}

// ParseCertificatePEM parses the first certificate of a PEM document
func ParseCertificatePEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("no certificate found in pem data")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	return cert, errors.Wrap(err, "failed to parse certificate")
}

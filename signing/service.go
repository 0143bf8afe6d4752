package signing

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/base64"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/pkg/errors"

	"github.com/defensechain/defensechain/storage/model"
)

// Service signs and verifies content hashes on behalf of the organization
// that represents a role
type Service struct {
	keys   KeyProvider
	orgs   model.Organizations
	alg    jwa.SignatureAlgorithm
	params algorithmParams
}

// NewService returns a Service using ECDSA with the passed algorithm
func NewService(keys KeyProvider, orgs model.Organizations, alg jwa.SignatureAlgorithm) (*Service, error) {
	params, err := paramsFor(alg)
	if err != nil {
		return nil, err
	}
	return &Service{
		keys:   keys,
		orgs:   orgs,
		alg:    alg,
		params: params,
	}, nil
}

// Algorithm returns the signature algorithm of the service
func (s *Service) Algorithm() jwa.SignatureAlgorithm {
	return s.alg
}

// Organizations returns the role to organization mapping
func (s *Service) Organizations() model.Organizations {
	return s.orgs
}

// Sign returns the base64 encoded ASN.1 ECDSA signature of the
// organization of role over contentHash
func (s *Service) Sign(ctx context.Context, contentHash string, role model.Role) (string, error) {
	org, err := s.orgs.Of(role)
	if err != nil {
		return "", err
	}
	key, err := s.keys.SigningKey(ctx, org)
	if err != nil {
		return "", err
	}
	priv, err := ecdsaPrivateKey(key)
	if err != nil {
		return "", err
	}
	if priv.Curve.Params().Name != s.params.curve.Params().Name {
		return "", errors.Errorf("signing key of %s does not match %s", org, s.alg.String())
	}
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest(s.params.hash, contentHash))
	if err != nil {
		return "", errors.Wrap(err, "failed to sign")
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks signature against the certificate of the organization of role
func (s *Service) Verify(ctx context.Context, contentHash, signature string, role model.Role) (bool, error) {
	org, err := s.orgs.Of(role)
	if err != nil {
		return false, err
	}
	cert, err := s.keys.Certificate(ctx, org)
	if err != nil {
		return false, err
	}
	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return false, errors.Errorf("certificate of %s does not carry an ecdsa key", org)
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, nil
	}
	return ecdsa.VerifyASN1(pub, digest(s.params.hash, contentHash), sig), nil
}

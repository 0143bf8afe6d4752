package signing

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/zachmann/go-utils/fileutils"

	"github.com/defensechain/defensechain/storage/model"
)

// KeyProvider gives access to the signing material of an organization.
// There is one key pair per organization, not per user. Missing material is
// reported as model.KeyNotFoundError.
type KeyProvider interface {
	SigningKey(ctx context.Context, org string) (jwk.Key, error)
	Certificate(ctx context.Context, org string) (*x509.Certificate, error)
}

// StaticKeyProvider serves key material held in memory
type StaticKeyProvider struct {
	mu    sync.RWMutex
	keys  map[string]jwk.Key
	certs map[string]*x509.Certificate
}

// NewStaticKeyProvider returns an empty StaticKeyProvider
func NewStaticKeyProvider() *StaticKeyProvider {
	return &StaticKeyProvider{
		keys:  make(map[string]jwk.Key),
		certs: make(map[string]*x509.Certificate),
	}
}

// Add registers the key material of an organization
func (p *StaticKeyProvider) Add(org string, key jwk.Key, cert *x509.Certificate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[org] = key
	p.certs[org] = cert
}

// SigningKey implements KeyProvider
func (p *StaticKeyProvider) SigningKey(_ context.Context, org string) (jwk.Key, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	k, ok := p.keys[org]
	if !ok {
		return nil, model.KeyNotFoundError(org)
	}
	return k, nil
}

// Certificate implements KeyProvider
func (p *StaticKeyProvider) Certificate(_ context.Context, org string) (*x509.Certificate, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.certs[org]
	if !ok || c == nil {
		return nil, model.KeyNotFoundError(org)
	}
	return c, nil
}

// FilesystemKeyProvider reads key material from <Dir>/<org>/key.pem and
// <Dir>/<org>/cert.pem. Files are read once and cached.
type FilesystemKeyProvider struct {
	Dir string

	cache sync.Map
}

// keyMaterial is the key pair and certificate of one organization
type keyMaterial struct {
	key  jwk.Key
	cert *x509.Certificate
}

// NewFilesystemKeyProvider returns a FilesystemKeyProvider for dir
func NewFilesystemKeyProvider(dir string) *FilesystemKeyProvider {
	return &FilesystemKeyProvider{Dir: dir}
}

func (p *FilesystemKeyProvider) load(org string) (*keyMaterial, error) {
	if m, ok := p.cache.Load(org); ok {
		return m.(*keyMaterial), nil
	}
	keyPath := filepath.Join(p.Dir, org, "key.pem")
	certPath := filepath.Join(p.Dir, org, "cert.pem")
	if !fileutils.FileExists(keyPath) || !fileutils.FileExists(certPath) {
		return nil, model.KeyNotFoundError(org)
	}
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	key, err := jwk.ParseKey(keyData, jwk.WithPEM(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse signing key of %s", org)
	}
	certData, err := os.ReadFile(certPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	cert, err := ParseCertificatePEM(certData)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid certificate of %s", org)
	}
	m := &keyMaterial{
		key:  key,
		cert: cert,
	}
	p.cache.Store(org, m)
	return m, nil
}

// SigningKey implements KeyProvider
func (p *FilesystemKeyProvider) SigningKey(_ context.Context, org string) (jwk.Key, error) {
	m, err := p.load(org)
	if err != nil {
		return nil, err
	}
	return m.key, nil
}

// Certificate implements KeyProvider
func (p *FilesystemKeyProvider) Certificate(_ context.Context, org string) (*x509.Certificate, error) {
	m, err := p.load(org)
	if err != nil {
		return nil, err
	}
	return m.cert, nil
}

// StoredKeyProvider keeps organization key material in the database
// key-value store, one record per organization. With AutoGenerate set,
// missing material is created on first use; when several processes race,
// the first stored record wins and the others adopt it.
type StoredKeyProvider struct {
	KV                  model.KeyValueStore
	Alg                 jwa.SignatureAlgorithm
	AutoGenerate        bool
	CertificateLifetime time.Duration

	mu sync.Mutex
}

// storedMaterial is the persisted form of an organization's key material
type storedMaterial struct {
	Key         json.RawMessage `json:"key"`
	Certificate string          `json:"certificate"`
}

// NewStoredKeyProvider returns a StoredKeyProvider
func NewStoredKeyProvider(kv model.KeyValueStore, alg jwa.SignatureAlgorithm, autoGenerate bool, certLifetime time.Duration) *StoredKeyProvider {
	return &StoredKeyProvider{
		KV:                  kv,
		Alg:                 alg,
		AutoGenerate:        autoGenerate,
		CertificateLifetime: certLifetime,
	}
}

func orgKVKey(org string) string {
	return model.KeyValueKeyOrgPrefix + org
}

func (p *StoredKeyProvider) read(org string) (*keyMaterial, error) {
	var stored storedMaterial
	found, err := p.KV.GetAs(model.KeyValueScopeSigning, orgKVKey(org), &stored)
	if err != nil || !found {
		return nil, err
	}
	key, err := jwk.ParseKey(stored.Key)
	if err != nil {
		return nil, errors.Wrapf(err, "stored signing key of %s is invalid", org)
	}
	cert, err := ParseCertificatePEM([]byte(stored.Certificate))
	if err != nil {
		return nil, errors.WithMessagef(err, "stored certificate of %s is invalid", org)
	}
	return &keyMaterial{
		key:  key,
		cert: cert,
	}, nil
}

func encodeMaterial(key jwk.Key, cert *x509.Certificate) (storedMaterial, error) {
	keyJSON, err := json.Marshal(key)
	if err != nil {
		return storedMaterial{}, errors.WithStack(err)
	}
	return storedMaterial{
		Key:         keyJSON,
		Certificate: EncodeCertificatePEM(cert),
	}, nil
}

func (p *StoredKeyProvider) generate(org string) (*keyMaterial, error) {
	log.WithField("organization", org).Info("generating signing key")
	key, err := GenerateKey(p.Alg)
	if err != nil {
		return nil, err
	}
	lifetime := p.CertificateLifetime
	if lifetime <= 0 {
		lifetime = DefaultCertificateLifetime
	}
	cert, err := SelfSignedCertificate(org, key, lifetime, time.Now())
	if err != nil {
		return nil, err
	}
	stored, err := encodeMaterial(key, cert)
	if err != nil {
		return nil, err
	}
	won, err := p.KV.SetIfAbsent(model.KeyValueScopeSigning, orgKVKey(org), stored)
	if err != nil {
		return nil, err
	}
	if !won {
		log.WithField("organization", org).Info("signing key was generated concurrently, using the stored one")
		return p.read(org)
	}
	return &keyMaterial{
		key:  key,
		cert: cert,
	}, nil
}

func (p *StoredKeyProvider) material(org string) (*keyMaterial, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, err := p.read(org)
	if err != nil || m != nil {
		return m, err
	}
	if !p.AutoGenerate {
		return nil, model.KeyNotFoundError(org)
	}
	return p.generate(org)
}

// Import stores externally created key material for an organization,
// replacing what was stored before
func (p *StoredKeyProvider) Import(org string, key jwk.Key, cert *x509.Certificate) error {
	if _, err := ecdsaPrivateKey(key); err != nil {
		return err
	}
	stored, err := encodeMaterial(key, cert)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.KV.SetAny(model.KeyValueScopeSigning, orgKVKey(org), stored)
}

// Organizations lists the organizations with stored key material
func (p *StoredKeyProvider) Organizations() ([]string, error) {
	keys, err := p.KV.Keys(model.KeyValueScopeSigning, model.KeyValueKeyOrgPrefix)
	if err != nil {
		return nil, err
	}
	orgs := make([]string, len(keys))
	for i, k := range keys {
		orgs[i] = strings.TrimPrefix(k, model.KeyValueKeyOrgPrefix)
	}
	return orgs, nil
}

// SigningKey implements KeyProvider
func (p *StoredKeyProvider) SigningKey(_ context.Context, org string) (jwk.Key, error) {
	m, err := p.material(org)
	if err != nil {
		return nil, err
	}
	return m.key, nil
}

// Certificate implements KeyProvider
func (p *StoredKeyProvider) Certificate(_ context.Context, org string) (*x509.Certificate, error) {
	m, err := p.material(org)
	if err != nil {
		return nil, err
	}
	return m.cert, nil
}

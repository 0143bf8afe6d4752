package storage

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
)

const argon2idPrefix = "$argon2id$v=19$"

func defaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        1,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      32,
		SaltLen:     16,
	}
}

// passwordHasher hashes operator passwords as PHC strings:
// $argon2id$v=19$m=<KiB>,t=<time>,p=<threads>$<salt>$<key>
type passwordHasher struct {
	params Argon2idParams
}

func newPasswordHasher(p Argon2idParams) passwordHasher {
	d := defaultArgon2idParams()
	if p.Time == 0 {
		p.Time = d.Time
	}
	if p.MemoryKiB == 0 {
		p.MemoryKiB = d.MemoryKiB
	}
	if p.Parallelism == 0 {
		p.Parallelism = d.Parallelism
	}
	if p.KeyLen == 0 {
		p.KeyLen = d.KeyLen
	}
	if p.SaltLen == 0 {
		p.SaltLen = d.SaltLen
	}
	return passwordHasher{params: p}
}

func (h passwordHasher) hash(password string) (string, error) {
	p := h.params
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.WithStack(err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Time, p.MemoryKiB, p.Parallelism, p.KeyLen)
	return fmt.Sprintf(
		"%sm=%d,t=%d,p=%d$%s$%s", argon2idPrefix, p.MemoryKiB, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt), base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// verify checks password against encoded. rehash is set when the hash was
// created with parameters other than the configured ones.
func (h passwordHasher) verify(encoded, password string) (ok, rehash bool, err error) {
	p, salt, key, err := decodeArgon2id(encoded)
	if err != nil {
		return false, false, err
	}
	derived := argon2.IDKey([]byte(password), salt, p.Time, p.MemoryKiB, p.Parallelism, uint32(len(key)))
	if subtle.ConstantTimeCompare(derived, key) != 1 {
		return false, false, nil
	}
	return true, p != h.params, nil
}

func decodeArgon2id(encoded string) (p Argon2idParams, salt, key []byte, err error) {
	rest, found := strings.CutPrefix(encoded, argon2idPrefix)
	if !found {
		return p, nil, nil, errors.New("unsupported password hash format")
	}
	parts := strings.Split(rest, "$")
	if len(parts) != 3 {
		return p, nil, nil, errors.New("invalid argon2id hash format")
	}
	if _, err = fmt.Sscanf(parts[0], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Time, &p.Parallelism); err != nil {
		return p, nil, nil, errors.Wrap(err, "invalid argon2id parameters")
	}
	if salt, err = base64.RawStdEncoding.DecodeString(parts[1]); err != nil {
		return p, nil, nil, errors.WithStack(err)
	}
	if key, err = base64.RawStdEncoding.DecodeString(parts[2]); err != nil {
		return p, nil, nil, errors.WithStack(err)
	}
	p.SaltLen = uint32(len(salt))
	p.KeyLen = uint32(len(key))
	return p, salt, key, nil
}

// Package contentstore gives access to the content-addressed storage network
// that holds the document artifacts.
package contentstore

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"

	"github.com/defensechain/defensechain/storage/model"
)

const dependencyName = "storage network"

// UploadResult describes a stored file
type UploadResult struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Size    int    `json:"size"`
}

// Health is the connectivity status of the storage network node
type Health struct {
	Status string `json:"status"`
	PeerID string `json:"peerId,omitempty"`
}

// Client is the storage network contract. Connection failures are reported
// as model.DependencyUnavailableError.
type Client interface {
	Upload(ctx context.Context, data []byte, filename string) (*UploadResult, error)
	CalculateAddress(ctx context.Context, data []byte) (string, error)
	Download(ctx context.Context, address string) ([]byte, error)
	HealthCheck(ctx context.Context) (*Health, error)
}

// ParseAddress validates a content address and returns it in canonical form
func ParseAddress(address string) (cid.Cid, error) {
	c, err := cid.Decode(address)
	if err != nil {
		return cid.Undef, model.ValidationErrorFmt("invalid content address %q: %s", address, err)
	}
	return c, nil
}

// RawAddress returns the CIDv1 of data as a single raw block with a sha2-256
// multihash. This matches what the storage network assigns to small files
// added with raw leaves.
func RawAddress(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}

func unavailable(err error) error {
	return model.DependencyUnavailableError{
		Dependency: dependencyName,
		Err:        err,
	}
}

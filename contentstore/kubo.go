package contentstore

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/defensechain/defensechain/internal/version"
	"github.com/defensechain/defensechain/storage/model"
)

// KuboClient talks to the RPC API of a Kubo node
type KuboClient struct {
	client *resty.Client
}

type kuboAddResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

type kuboIDResponse struct {
	ID string `json:"ID"`
}

type kuboError struct {
	Message string `json:"Message"`
	Code    int    `json:"Code"`
}

// NewKuboClient returns a KuboClient for the node RPC API at baseURL
func NewKuboClient(baseURL string, timeout time.Duration) *KuboClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/") + "/api/v0").
		SetTimeout(timeout).
		SetHeader("User-Agent", version.UserAgent())
	return &KuboClient{client: client}
}

func kuboResponseError(resp *resty.Response, op string) error {
	msg := resp.Status()
	if e, ok := resp.Error().(*kuboError); ok && e != nil && e.Message != "" {
		msg = e.Message
	}
	if resp.StatusCode() >= http.StatusInternalServerError && !strings.Contains(msg, "invalid") {
		return unavailable(errors.Errorf("%s: %s", op, msg))
	}
	return errors.Errorf("%s failed: %s", op, msg)
}

func (k *KuboClient) add(ctx context.Context, data []byte, filename string, onlyHash bool) (*kuboAddResponse, error) {
	var out kuboAddResponse
	req := k.client.R().
		SetContext(ctx).
		SetQueryParam("cid-version", "1").
		SetQueryParam("raw-leaves", "true").
		SetFileReader("file", filename, bytes.NewReader(data)).
		SetResult(&out).
		SetError(&kuboError{})
	if onlyHash {
		req.SetQueryParam("only-hash", "true")
	} else {
		req.SetQueryParam("pin", "true")
	}
	resp, err := req.Post("/add")
	if err != nil {
		return nil, unavailable(err)
	}
	if resp.IsError() {
		return nil, kuboResponseError(resp, "add")
	}
	if out.Hash == "" {
		return nil, errors.New("storage node returned no content address")
	}
	return &out, nil
}

// Upload implements Client
func (k *KuboClient) Upload(ctx context.Context, data []byte, filename string) (*UploadResult, error) {
	out, err := k.add(ctx, data, filename, false)
	if err != nil {
		return nil, err
	}
	return &UploadResult{
		Address: out.Hash,
		Name:    filename,
		Size:    len(data),
	}, nil
}

// CalculateAddress implements Client
func (k *KuboClient) CalculateAddress(ctx context.Context, data []byte) (string, error) {
	out, err := k.add(ctx, data, "blob", true)
	if err != nil {
		return "", err
	}
	return out.Hash, nil
}

// Download implements Client
func (k *KuboClient) Download(ctx context.Context, address string) ([]byte, error) {
	c, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	resp, err := k.client.R().
		SetContext(ctx).
		SetQueryParam("arg", c.String()).
		SetError(&kuboError{}).
		Post("/cat")
	if err != nil {
		return nil, unavailable(err)
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*kuboError); ok && e != nil && strings.Contains(e.Message, "not found") {
			return nil, model.NotFoundErrorFmt("content not found: %s", address)
		}
		return nil, kuboResponseError(resp, "cat")
	}
	return resp.Body(), nil
}

// HealthCheck implements Client
func (k *KuboClient) HealthCheck(ctx context.Context) (*Health, error) {
	var out kuboIDResponse
	resp, err := k.client.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&kuboError{}).
		Post("/id")
	if err != nil {
		return nil, unavailable(err)
	}
	if resp.IsError() {
		return nil, kuboResponseError(resp, "id")
	}
	return &Health{
		Status: "ok",
		PeerID: out.ID,
	}, nil
}

package ledger

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/defensechain/defensechain/internal/version"
	"github.com/defensechain/defensechain/storage/model"
)

const dependencyName = "ledger gateway"

// HTTPGateway talks to the ledger gateway REST API
type HTTPGateway struct {
	client *resty.Client
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e apiError) String() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// NewHTTPGateway returns an HTTPGateway for the gateway at baseURL
func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", version.UserAgent())
	return &HTTPGateway{client: client}
}

func unavailable(err error) error {
	return model.DependencyUnavailableError{
		Dependency: dependencyName,
		Err:        err,
	}
}

func responseError(resp *resty.Response, op string) error {
	msg := ""
	if e, ok := resp.Error().(*apiError); ok && e != nil {
		msg = e.String()
	}
	if msg == "" {
		msg = resp.Status()
	}
	switch {
	case resp.StatusCode() >= http.StatusInternalServerError:
		return unavailable(errors.Errorf("%s: %s", op, msg))
	case resp.StatusCode() == http.StatusConflict:
		return model.AlreadyExistsErrorFmt("%s: %s", op, msg)
	case resp.StatusCode() == http.StatusNotFound:
		return model.NotFoundErrorFmt("%s: %s", op, msg)
	default:
		return model.InvalidStateErrorFmt("%s rejected by the ledger gateway: %s", op, msg)
	}
}

// HealthCheck implements Gateway
func (g *HTTPGateway) HealthCheck(ctx context.Context) (*Health, error) {
	var health Health
	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&health).
		SetError(&apiError{}).
		Get("/health")
	if err != nil {
		return nil, unavailable(err)
	}
	if resp.IsError() {
		return nil, responseError(resp, "health check")
	}
	return &health, nil
}

// RegisterDocument implements Gateway
func (g *HTTPGateway) RegisterDocument(ctx context.Context, record DocumentRecord) (*Receipt, error) {
	var receipt Receipt
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(record).
		SetResult(&receipt).
		SetError(&apiError{}).
		Post("/documents")
	if err != nil {
		return nil, unavailable(err)
	}
	if resp.IsError() {
		return nil, responseError(resp, "register document")
	}
	if receipt.TxID == "" {
		return nil, errors.New("ledger gateway returned no transaction id")
	}
	return &receipt, nil
}

// VerifyDocument implements Gateway. An unknown content address is reported
// as an invalid verification, not as an error.
func (g *HTTPGateway) VerifyDocument(ctx context.Context, user, contentAddress string) (*Verification, error) {
	var v Verification
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("cid", contentAddress).
		SetQueryParam("user", user).
		SetResult(&v).
		SetError(&apiError{}).
		Get("/documents/{cid}/verify")
	if err != nil {
		return nil, unavailable(err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		reason := "document is not registered on the ledger"
		if e, ok := resp.Error().(*apiError); ok && e != nil && e.String() != "" {
			reason = e.String()
		}
		return &Verification{
			Valid:  false,
			Reason: reason,
		}, nil
	}
	if resp.IsError() {
		return nil, responseError(resp, "verify document")
	}
	return &v, nil
}

package statuslist

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tbd54566975/oid4vci-issuer/config"
	"github.com/tbd54566975/oid4vci-issuer/internal/util"
)

// ErrStatusServerUnavailable is returned when an allocation yields no list url.
var ErrStatusServerUnavailable = errors.New("unable to contact status server")

// Client talks to the external status-list service, which owns the bitstring encoding.
type Client struct {
	httpClient *http.Client
}

// NewClient uses a traced default client when httpClient is nil.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &Client{httpClient: httpClient}
}

// Allocate reserves an index on the list. expirationDate may be empty.
func (c *Client) Allocate(ctx context.Context, list config.StatusListConfig, expirationDate string) (*Allocation, error) {
	var allocation Allocation
	if err := c.post(ctx, list.URL, list.Token, allocateRequest{ExpirationDate: expirationDate}, &allocation); err != nil {
		logrus.WithError(err).WithField("url", list.URL).Error("allocating status list entry")
		return nil, errors.Wrap(ErrStatusServerUnavailable, err.Error())
	}
	if allocation.URL == "" {
		return nil, ErrStatusServerUnavailable
	}
	return &allocation, nil
}

// SetState asks the service to revoke or unrevoke the entry. An answer the service does not define maps to Unknown.
func (c *Client) SetState(ctx context.Context, list config.StatusListConfig, entry Entry, revoke bool) (RevocationState, error) {
	state := "unrevoke"
	if revoke {
		state = "revoke"
	}
	logrus.Debugf("invoking %s with index %v and request to %s", list.Revoke, entry.StatusListIndex, state)

	var resp setStateResponse
	req := setStateRequest{List: entry.StatusListCredential, Index: entry.StatusListIndex, State: state}
	if err := c.post(ctx, list.Revoke, list.Token, req, &resp); err != nil {
		return Unknown, errors.Wrap(err, "setting status list state")
	}
	return stateFromResponse(resp.State, revoke), nil
}

func (c *Client) post(ctx context.Context, url, token string, body, out any) error {
	if url == "" {
		return errors.New("no url configured")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshalling request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "building http req")
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "client http client")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading body")
	}
	if !util.Is2xxResponse(resp.StatusCode) {
		return fmt.Errorf("status code %v not in the 200s. body: %s", resp.StatusCode, string(respBody))
	}
	if err = json.Unmarshal(respBody, out); err != nil {
		return errors.Wrap(err, "unmarshalling response")
	}
	return nil
}

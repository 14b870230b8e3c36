package middleware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type introspecter struct {
	// Introspection endpoint according to https://www.rfc-editor.org/rfc/rfc7662.
	endpoint string

	// Config of the client credentials to use for authenticating with Endpoint.
	conf clientcredentials.Config

	httpClient *http.Client
}

func newIntrospect(endpoint string, config clientcredentials.Config) *introspecter {
	return &introspecter{
		endpoint:   endpoint,
		conf:       config,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// introspect determines whether the token is active by asking the configured endpoint. A `nil` error represents an
// active token.
func (s introspecter) introspect(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("no bearer")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	client := s.conf.Client(ctx)

	body := make(url.Values)
	body.Set("token", token)
	introspectionReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(body.Encode()))
	if err != nil {
		return err
	}
	introspectionReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	introspectionResp, err := client.Do(introspectionReq)
	if err != nil {
		return err
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			logrus.WithError(err).Warn("closing body")
		}
	}(introspectionResp.Body)

	if introspectionResp.StatusCode != http.StatusOK {
		return fmt.Errorf("status does not indicate success: code: %d", introspectionResp.StatusCode)
	}

	result, err := extractIntrospectResult(introspectionResp.Body)
	if err != nil {
		return err
	}
	if !result.Active {
		return errors.New("invalid token")
	}
	return nil
}

func extractIntrospectResult(r io.Reader) (*result, error) {
	res := result{
		Optionals: make(map[string]json.RawMessage),
	}

	if err := json.NewDecoder(r).Decode(&res.Optionals); err != nil {
		return nil, err
	}

	if val, ok := res.Optionals["active"]; ok {
		if err := json.Unmarshal(val, &res.Active); err != nil {
			return nil, err
		}

		delete(res.Optionals, "active")
	}

	return &res, nil
}

// result is the OAuth2 Introspection Result
type result struct {
	Active bool

	Optionals map[string]json.RawMessage
}

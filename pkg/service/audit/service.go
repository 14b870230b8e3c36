package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbd54566975/oid4vci-issuer/config"
	"github.com/tbd54566975/oid4vci-issuer/internal/util"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/framework"
)

const shipTimeout = 5 * time.Second

// Logger is what the issuer engine needs from the audit service.
type Logger interface {
	Log(ctx context.Context, event Event)
}

type Service struct {
	config     config.AuditConfig
	httpClient *http.Client
}

var _ Logger = (*Service)(nil)

func (s Service) Type() framework.Type {
	return framework.Audit
}

func (s Service) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.httpClient == nil {
		ae.AppendString("no http client configured")
	}

	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("audit service is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

func (s Service) Config() config.AuditConfig {
	return s.config
}

// NewAuditService ships events to the configured log service, or only logs them when no url is set.
func NewAuditService(config config.AuditConfig, httpClient *http.Client) (*Service, error) {
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	service := Service{
		config:     config,
		httpClient: httpClient,
	}
	if !service.Status().IsReady() {
		return nil, errors.New(service.Status().Message)
	}
	return &service, nil
}

// Log never fails the caller. Shipping errors are logged and dropped.
func (s *Service) Log(ctx context.Context, event Event) {
	if s.config.URL == "" {
		logrus.WithFields(logrus.Fields{
			"state":    event.State,
			"endpoint": event.Endpoint,
		}).Debugf("audit: %+v", event.Data)
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logrus.WithError(err).Warn("marshal audit event")
		return
	}
	// detached from the request so a finished handler does not cancel shipping, the span is kept
	shipCtx, cancel := context.WithTimeout(trace.ContextWithSpan(context.Background(), trace.SpanFromContext(ctx)), shipTimeout)
	defer cancel()
	if err = s.post(shipCtx, payload); err != nil {
		logrus.WithError(err).Warnf("posting audit event to %s", util.SanitizeLog(s.config.URL))
	}
}

func (s *Service) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "building http req")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(s.config.User, s.config.Password)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "client http client")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "parsing body")
	}
	if !util.Is2xxResponse(resp.StatusCode) {
		return fmt.Errorf("status code %v not in the 200s. body: %s", resp.StatusCode, string(body))
	}
	return nil
}

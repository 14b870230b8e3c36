package oidc

import (
	"context"
	"net/http"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/oid4vci-issuer/pkg/service/audit"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/oidc/model"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/record"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/statuslist"
)

// SetRevocationState revokes or unrevokes an issued credential on each of its status lists, or only on listName when
// it is set. Lists not configured for the credential type report UNKNOWN. The merged outcome is stored on the record.
func (s *Service) SetRevocationState(ctx context.Context, request model.RevokeRequest) (*model.RevokeResponse, error) {
	issued, err := s.records.Get(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	if issued == nil || issued.Issuer != s.config.Name {
		return nil, ErrNoSuchCredential()
	}
	if len(issued.StatusLists) == 0 {
		return nil, ErrNoStatusList()
	}

	revoke := request.IsRevoke()
	list, configured := s.config.StatusLists[issued.CredentialType]
	states := make([]statuslist.RevocationState, 0, len(issued.StatusLists))
	for _, entry := range issued.StatusLists {
		if request.ListName != "" && request.ListName != entry.ID {
			continue
		}
		if !configured || list.Revoke == "" {
			logrus.Warnf("no revocation endpoint configured for %s, skipping list %s", issued.CredentialType, entry.ID)
			states = append(states, statuslist.Unknown)
			continue
		}
		state, err := s.statusLists.SetState(ctx, list, entry, revoke)
		if err != nil {
			return nil, sdkutil.LoggingErrorMsgf(err, "setting state of credential<%s> on list %s", issued.ID, entry.ID)
		}
		states = append(states, state)
	}

	merged := statuslist.Merge(states...)
	if merged == statuslist.Revoked || merged == statuslist.Unrevoked {
		if _, err = s.records.Update(ctx, issued.ID, func(r *record.IssuedCredential) error {
			r.State = merged.String()
			return nil
		}); err != nil {
			return nil, errors.Wrapf(err, "updating record<%s>", issued.ID)
		}
	}
	s.audit.Log(ctx, audit.Event{State: issued.ID, Endpoint: audit.Revoke, Data: merged})
	return &model.RevokeResponse{State: merged.String()}, nil
}

// ListCredentials lists the credentials this issuer issued that match the request.
func (s *Service) ListCredentials(ctx context.Context, request model.ListCredentialsRequest) ([]record.IssuedCredential, error) {
	issuedAfter, err := record.ParseIssuanceDate(request.IssuanceDate)
	if err != nil {
		return nil, newError(InvalidRequest, http.StatusBadRequest, "%s", err.Error())
	}
	if request.Filter != "" {
		if _, err = record.ParseFilter(request.Filter); err != nil {
			return nil, newError(InvalidRequest, http.StatusBadRequest, "invalid filter: %s", err.Error())
		}
	}
	records, err := s.records.Find(ctx, record.ListRequest{
		Issuer:      s.config.Name,
		PrimaryID:   request.PrimaryID,
		Credential:  request.Credential,
		State:       request.State,
		Holder:      request.Holder,
		IssuedAfter: issuedAfter,
		Filter:      request.Filter,
	})
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "listing credential records")
	}
	return records, nil
}

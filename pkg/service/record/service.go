package record

import (
	"fmt"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/benbjohnson/clock"

	"github.com/tbd54566975/oid4vci-issuer/pkg/service/framework"
	"github.com/tbd54566975/oid4vci-issuer/pkg/storage"
)

// Service exposes the credential records shared by all issuer instances.
type Service struct {
	*Storage
}

func (s Service) Type() framework.Type {
	return framework.Record
}

func (s Service) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.Storage == nil {
		ae.AppendString("no storage configured")
	} else if !s.db.IsOpen() {
		ae.AppendString("storage is not open")
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("record service is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

func NewRecordService(db storage.ServiceStorage, c clock.Clock) (*Service, error) {
	recordStorage, err := NewRecordStorage(db, c)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate storage for the record service")
	}
	return &Service{Storage: recordStorage}, nil
}

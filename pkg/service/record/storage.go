package record

import (
	"context"
	"sort"
	"time"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/oid4vci-issuer/pkg/storage"
)

const namespace = "credential-records"

// Storage is the credential record repository.
type Storage struct {
	db    storage.ServiceStorage
	clock clock.Clock
}

func NewRecordStorage(db storage.ServiceStorage, c clock.Clock) (*Storage, error) {
	if db == nil {
		return nil, errors.New("db reference is nil")
	}
	if c == nil {
		c = clock.New()
	}
	return &Storage{db: db, clock: c}, nil
}

// Save stamps the save and update dates and writes a new record.
func (s *Storage) Save(ctx context.Context, r IssuedCredential) error {
	if r.ID == "" {
		return errors.New("record has no id")
	}
	exists, err := s.db.Exists(ctx, namespace, r.ID)
	if err != nil {
		return sdkutil.LoggingErrorMsg(err, "checking record existence")
	}
	if exists {
		return errors.Errorf("record<%s> already exists", r.ID)
	}
	now := s.clock.Now().UTC()
	r.SaveDate = now
	r.UpdateDate = now
	return s.write(ctx, r)
}

// Get returns nil when no record has the id.
func (s *Storage) Get(ctx context.Context, id string) (*IssuedCredential, error) {
	recordBytes, err := s.db.Read(ctx, namespace, id)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "reading record<%s>", id)
	}
	if len(recordBytes) == 0 {
		return nil, nil
	}
	var r IssuedCredential
	if err = json.Unmarshal(recordBytes, &r); err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "unmarshalling record<%s>", id)
	}
	return &r, nil
}

// Update applies f to the stored record. Holder, claims and save date are restored after f runs.
func (s *Storage) Update(ctx context.Context, id string, f func(r *IssuedCredential) error) (*IssuedCredential, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errors.Errorf("record<%s> not found", id)
	}
	holder, claims, saveDate := existing.Holder, existing.Claims, existing.SaveDate

	if err = f(existing); err != nil {
		return nil, err
	}
	existing.ID = id
	existing.Holder = holder
	existing.Claims = claims
	existing.SaveDate = saveDate
	existing.UpdateDate = s.clock.Now().UTC()
	if err = s.write(ctx, *existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Find returns the records matching every set field of the request, oldest save first.
func (s *Storage) Find(ctx context.Context, request ListRequest) ([]IssuedCredential, error) {
	include, err := evaluatorFor(request.Filter)
	if err != nil {
		return nil, err
	}

	all, err := s.db.ReadAll(ctx, namespace)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not get all records")
	}

	records := make([]IssuedCredential, 0, len(all))
	for id, recordBytes := range all {
		var r IssuedCredential
		if err = json.Unmarshal(recordBytes, &r); err != nil {
			logrus.WithError(err).Warnf("unmarshal record<%s>", id)
			continue
		}
		if matches(request, r) && include(r) {
			records = append(records, r)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].SaveDate.Equal(records[j].SaveDate) {
			return records[i].ID < records[j].ID
		}
		return records[i].SaveDate.Before(records[j].SaveDate)
	})
	return records, nil
}

func (s *Storage) write(ctx context.Context, r IssuedCredential) error {
	recordBytes, err := json.Marshal(r)
	if err != nil {
		return sdkutil.LoggingErrorMsg(err, "record marshal")
	}
	return s.db.Write(ctx, namespace, r.ID, recordBytes)
}

func matches(request ListRequest, r IssuedCredential) bool {
	if request.Issuer != "" && r.Issuer != request.Issuer {
		return false
	}
	if request.PrimaryID != "" && r.PrincipalCredentialID != request.PrimaryID {
		return false
	}
	if request.Credential != "" && r.CredentialType != request.Credential {
		return false
	}
	if request.State != "" && r.State != request.State {
		return false
	}
	if request.Holder != "" && r.Holder != request.Holder {
		return false
	}
	if request.IssuedAfter != nil && !r.IssuanceDate.After(*request.IssuedAfter) {
		return false
	}
	return true
}

// ParseIssuanceDate accepts an RFC 3339 timestamp or a plain YYYY-MM-DD date.
func ParseIssuanceDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, errors.Errorf("unparseable issuance date: %s", value)
}

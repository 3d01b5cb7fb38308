package licensing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"licentia.dev/internal/audit"
	"licentia.dev/internal/domain"
	"licentia.dev/internal/ledger"
	"licentia.dev/internal/obs"
	"licentia.dev/internal/stream"
)

const (
	minDurationDays = 1
	maxDurationDays = 365
)

// errNotVisible marks a visibility-wait attempt that found no row yet.
// Retryable, unlike genuine repository failures.
var errNotVisible = errors.New("licensing: contract not yet visible in read-model")

// Service orchestrates the license lifecycle: it validates input, mutates
// ledger state through the client, then reconciles against the read-model
// before reporting success. Ledger writes are never retried here; only the
// visibility wait is, because lag is expected behavior rather than failure.
type Service struct {
	ledger ledger.Client
	repo   Repository
	events *stream.Stream

	visibilityDeadline time.Duration
	visibilityInterval time.Duration
	now                func() time.Time
}

// Option configures optional Service behavior.
type Option func(*Service)

// WithVisibilityPolicy overrides the read-back deadline and initial retry
// interval.
func WithVisibilityPolicy(deadline, interval time.Duration) Option {
	return func(s *Service) {
		if deadline > 0 {
			s.visibilityDeadline = deadline
		}
		if interval > 0 {
			s.visibilityInterval = interval
		}
	}
}

// WithEvents attaches a stream that receives an event for every license that
// became visible after a create or renew.
func WithEvents(events *stream.Stream) Option {
	return func(s *Service) { s.events = events }
}

// WithClock overrides the wall clock. Test use.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the service. The ledger client already acts on behalf of
// the backend's party; per-request provider parties are passed explicitly.
func NewService(client ledger.Client, repo Repository, opts ...Option) *Service {
	s := &Service{
		ledger:             client,
		repo:               repo,
		visibilityDeadline: 10 * time.Second,
		visibilityInterval: 100 * time.Millisecond,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateLicense validates the request, submits the contract, then waits for
// the read-model to observe it before answering with the canonical row.
func (s *Service) CreateLicense(ctx context.Context, providerParty string, req CreateLicenseRequest) domain.Result[License] {
	if req.Duration < minDurationDays || req.Duration > maxDurationDays {
		return domain.Err[License](domain.Validation(
			fmt.Sprintf("duration must be between %d and %d days", minDurationDays, maxDurationDays)))
	}
	if req.UserID == "" {
		return domain.Err[License](domain.Validation("userId is required"))
	}
	if req.ProductID == "" {
		return domain.Err[License](domain.Validation("productId is required"))
	}
	if providerParty == "" {
		return domain.Err[License](domain.Validation("provider party is required"))
	}

	submittedAt := s.now().UTC()
	expiresAt := submittedAt.AddDate(0, 0, req.Duration)

	payload, err := EncodePayload(providerParty, req.UserID, req.ProductID, expiresAt, req.Metadata)
	if err != nil {
		return domain.Err[License](domain.Ledger("encode license payload", err))
	}

	created := s.ledger.Create(ctx, Template, payload)
	obs.ObserveLedgerOp("create", created.IsOk())
	_ = audit.LogEvent(ctx, "license.create.submitted", map[string]any{
		"userId": req.UserID, "productId": req.ProductID, "duration": req.Duration,
		"accepted": created.IsOk(),
	})
	if !created.IsOk() {
		return domain.MapErr[License](created)
	}

	license := s.awaitVisibility(ctx, string(created.Value()))
	if license.IsOk() {
		s.publish(stream.EventLicenseCreated, "", license.Value())
	}
	return license
}

// RenewLicense exercises the Renew choice on an existing license and waits
// for the successor contract to surface in the read-model.
func (s *Service) RenewLicense(ctx context.Context, req RenewLicenseRequest) domain.Result[License] {
	if req.LicenseID == "" {
		return domain.Err[License](domain.Validation("licenseId is required"))
	}
	if req.AdditionalDuration < minDurationDays || req.AdditionalDuration > maxDurationDays {
		return domain.Err[License](domain.Validation(
			fmt.Sprintf("additionalDuration must be between %d and %d days", minDurationDays, maxDurationDays)))
	}

	existing := s.repo.FindByID(ctx, req.LicenseID)
	if !existing.IsOk() {
		return domain.MapErr[License](existing)
	}
	if existing.Value() == nil {
		return domain.Err[License](domain.NotFound("License", req.LicenseID))
	}

	argument, err := json.Marshal(map[string]int{"additionalDays": req.AdditionalDuration})
	if err != nil {
		return domain.Err[License](domain.Ledger("encode renew argument", err))
	}

	exercised := s.ledger.Exercise(ctx, Template, ChoiceRenew, ledger.ContractID(req.LicenseID), argument)
	obs.ObserveLedgerOp("exercise", exercised.IsOk())
	_ = audit.LogEvent(ctx, "license.renew.submitted", map[string]any{
		"licenseId": req.LicenseID, "additionalDuration": req.AdditionalDuration,
		"accepted": exercised.IsOk(),
	})
	if !exercised.IsOk() {
		return domain.MapErr[License](exercised)
	}

	successorID, derr := successorContractID(exercised.Value())
	if derr != nil {
		return domain.Err[License](derr)
	}

	license := s.awaitVisibility(ctx, successorID)
	if license.IsOk() {
		s.publish(stream.EventLicenseRenewed, req.LicenseID, license.Value())
	}
	return license
}

// GetLicense is a pure read-through. Absence maps to NOT_FOUND; repository
// failures keep their DB_ERROR code and are never conflated with absence.
func (s *Service) GetLicense(ctx context.Context, contractID string) domain.Result[License] {
	if contractID == "" {
		return domain.Err[License](domain.Validation("contract id is required"))
	}
	res := s.repo.FindByID(ctx, contractID)
	if !res.IsOk() {
		return domain.MapErr[License](res)
	}
	if res.Value() == nil {
		return domain.Err[License](domain.NotFound("License", contractID))
	}
	return domain.Ok(*res.Value())
}

// GetUserLicenses returns the user's currently active licenses.
func (s *Service) GetUserLicenses(ctx context.Context, userID string) domain.Result[[]License] {
	if userID == "" {
		return domain.Err[[]License](domain.Validation("user id is required"))
	}
	return s.repo.FindActiveByUser(ctx, userID)
}

// QueryLicenses exposes the repository's filtered, paginated lookup.
func (s *Service) QueryLicenses(ctx context.Context, q Query) domain.Result[[]License] {
	return s.repo.FindByQuery(ctx, q)
}

// awaitVisibility bridges the write/read gap: the ledger has accepted the
// contract but the read-model may not have indexed it yet. Retries with
// exponential backoff inside its own deadline, which also respects caller
// cancellation; no attempt outlives the wait.
func (s *Service) awaitVisibility(ctx context.Context, contractID string) domain.Result[License] {
	waitCtx, cancel := context.WithTimeout(ctx, s.visibilityDeadline)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.visibilityInterval
	bo.MaxInterval = s.visibilityDeadline / 4
	bo.MaxElapsedTime = s.visibilityDeadline

	start := time.Now()
	var found *License
	err := backoff.Retry(func() error {
		res := s.repo.FindByID(waitCtx, contractID)
		if !res.IsOk() {
			// Genuine store failure: surface immediately, do not burn the
			// deadline retrying something that is not indexing lag.
			return backoff.Permanent(res.Err())
		}
		if res.Value() == nil {
			return errNotVisible
		}
		found = res.Value()
		return nil
	}, backoff.WithContext(bo, waitCtx))

	timedOut := err != nil && (errors.Is(err, errNotVisible) || errors.Is(err, context.DeadlineExceeded))
	obs.ObserveVisibilityWait(time.Since(start), timedOut)

	switch {
	case err == nil && found != nil:
		return domain.Ok(*found)
	case errors.Is(err, errNotVisible), errors.Is(err, context.DeadlineExceeded):
		return domain.Err[License](domain.IndexingDelay(
			fmt.Sprintf("contract %s accepted by the ledger but not observed in the read-model within %s", contractID, s.visibilityDeadline)))
	default:
		return domain.Err[License](domain.AsError(err))
	}
}

// successorContractID extracts the renewed contract's id from the exercise
// result, preferring the created event and falling back to the choice's
// return value.
func successorContractID(res ledger.ExerciseResult) (string, *domain.Error) {
	if succ, ok := res.FirstCreated(Template); ok {
		return string(succ.ContractID), nil
	}
	var id string
	if len(res.Value) > 0 && json.Unmarshal(res.Value, &id) == nil && id != "" {
		return id, nil
	}
	return "", domain.Ledger("renewal accepted but no successor contract reported", nil)
}

func (s *Service) publish(eventType, predecessor string, l License) {
	if s.events == nil {
		return
	}
	s.events.Publish(stream.LicenseEvent{
		Type:        eventType,
		ContractID:  l.ContractID,
		Predecessor: predecessor,
		User:        l.User,
		ProductID:   l.ProductID,
		ExpiresAt:   l.ExpiresAt,
		Timestamp:   s.now().UTC(),
	})
}

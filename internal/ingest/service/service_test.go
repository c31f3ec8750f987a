package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"tidemark/internal/ingest/models"
	deadletterstore "tidemark/internal/ingest/store/deadletter"
	eventstore "tidemark/internal/ingest/store/event"
	"tidemark/internal/pii"
	id "tidemark/pkg/domain"
	dErrors "tidemark/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	events  *eventstore.InMemory
	dead    *deadletterstore.InMemory
	service *Service
	tenant  id.TenantID
}

func (s *ServiceSuite) SetupTest() {
	s.events = eventstore.NewInMemory()
	s.dead = deadletterstore.NewInMemory()
	s.service = New(s.events, s.dead)
	s.tenant = id.NewTenantID()
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func webhookPayload(overrides map[string]any) []byte {
	doc := map[string]any{
		"event_type":      "purchase",
		"event_timestamp": "2026-08-14T10:30:00Z",
		"session_id":      "sess-4481",
		"utm_source":      "google",
		"utm_medium":      "cpc",
	}
	for k, v := range overrides {
		doc[k] = v
	}
	raw, _ := json.Marshal(doc)
	return raw
}

func (s *ServiceSuite) TestAdmit_AcceptsCanonicalEvent() {
	ctx := context.Background()

	outcome, err := s.service.Admit(ctx, s.tenant, models.SourceWebhook, webhookPayload(nil))
	s.Require().NoError(err)
	s.Equal(models.AdmissionAccepted, outcome.Status)
	s.False(outcome.EventID.IsNil())

	ev, err := s.events.FindByID(ctx, outcome.EventID)
	s.Require().NoError(err)
	s.Equal(s.tenant, ev.TenantID)
	s.Equal("purchase", ev.EventType)
	s.Equal("google_search_paid", ev.Channel)
	s.False(ev.SessionID.IsNil())
}

func (s *ServiceSuite) TestAdmit_RedeliveryCollapsesToDuplicate() {
	ctx := context.Background()
	payload := webhookPayload(map[string]any{"idempotency_key": "order-1001"})

	first, err := s.service.Admit(ctx, s.tenant, models.SourceWebhook, payload)
	s.Require().NoError(err)
	s.Equal(models.AdmissionAccepted, first.Status)

	second, err := s.service.Admit(ctx, s.tenant, models.SourceWebhook, payload)
	s.Require().NoError(err)
	s.Equal(models.AdmissionDuplicate, second.Status)

	count, err := s.events.CountByTenant(ctx, s.tenant)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *ServiceSuite) TestAdmit_DerivedKeyIsStableAcrossRetries() {
	ctx := context.Background()
	// No idempotency_key supplied: the derived key must still collapse
	// byte-identical redeliveries.
	payload := webhookPayload(map[string]any{"external_event_id": "evt-77"})

	first, err := s.service.Admit(ctx, s.tenant, models.SourceWebhook, payload)
	s.Require().NoError(err)
	s.Equal(models.AdmissionAccepted, first.Status)

	second, err := s.service.Admit(ctx, s.tenant, models.SourceWebhook, payload)
	s.Require().NoError(err)
	s.Equal(models.AdmissionDuplicate, second.Status)
}

func (s *ServiceSuite) TestAdmit_ConcurrentRedeliveryStorm() {
	ctx := context.Background()
	payload := webhookPayload(map[string]any{"idempotency_key": "storm-key"})

	const attempts = 250
	var wg sync.WaitGroup
	outcomes := make([]*models.AdmissionOutcome, attempts)
	errs := make([]error, attempts)

	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = s.service.Admit(ctx, s.tenant, models.SourceWebhook, payload)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for i := 0; i < attempts; i++ {
		s.Require().NoError(errs[i], "attempt %d", i)
		switch outcomes[i].Status {
		case models.AdmissionAccepted:
			accepted++
		case models.AdmissionDuplicate:
		default:
			s.Failf("unexpected outcome", "attempt %d: %s", i, outcomes[i].Status)
		}
	}
	s.Equal(1, accepted)

	count, err := s.events.CountByTenant(ctx, s.tenant)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *ServiceSuite) TestAdmit_SameKeyDistinctTenants() {
	ctx := context.Background()
	otherTenant := id.NewTenantID()
	payload := webhookPayload(map[string]any{"idempotency_key": "shared-key"})

	first, err := s.service.Admit(ctx, s.tenant, models.SourceWebhook, payload)
	s.Require().NoError(err)
	s.Equal(models.AdmissionAccepted, first.Status)

	second, err := s.service.Admit(ctx, otherTenant, models.SourceWebhook, payload)
	s.Require().NoError(err)
	s.Equal(models.AdmissionAccepted, second.Status)

	for _, tenant := range []id.TenantID{s.tenant, otherTenant} {
		count, err := s.events.CountByTenant(ctx, tenant)
		s.Require().NoError(err)
		s.Equal(1, count)
	}
}

func (s *ServiceSuite) TestAdmit_NestedPIIQuarantined() {
	ctx := context.Background()
	raw, _ := json.Marshal(map[string]any{
		"type":    "charge.succeeded",
		"id":      "evt_123",
		"created": float64(1765700000),
		"data": map[string]any{
			"object": map[string]any{
				"payment_intent": "pi_991",
				"billing_details": map[string]any{
					"email": "jane@example.com",
				},
			},
		},
	})

	outcome, err := s.service.Admit(ctx, s.tenant, models.SourceStripe, raw)
	s.Require().NoError(err)
	s.Equal(models.AdmissionQuarantined, outcome.Status)
	s.Equal(models.ErrorCodePII, outcome.ErrorCode)
	s.Contains(outcome.Detail, "email")
	s.Contains(outcome.Detail, "data.object.billing_details.email")

	count, err := s.events.CountByTenant(ctx, s.tenant)
	s.Require().NoError(err)
	s.Equal(0, count)

	quarantined, err := s.dead.ListByTenant(ctx, s.tenant)
	s.Require().NoError(err)
	s.Require().Len(quarantined, 1)
	s.Equal(models.RemediationPending, quarantined[0].RemediationStatus)

	// The stored payload must carry the marker, never the live value.
	stored := quarantined[0].RawPayload.(map[string]any)
	details := stored["data"].(map[string]any)["object"].(map[string]any)["billing_details"].(map[string]any)
	s.Equal(pii.Marker, details["email"])
}

func (s *ServiceSuite) TestAdmit_PIIWinsOverValidation() {
	ctx := context.Background()
	// Missing every required field AND carrying PII: the stricter outcome wins.
	raw, _ := json.Marshal(map[string]any{"customer_email": "jane@example.com"})

	outcome, err := s.service.Admit(ctx, s.tenant, models.SourceWebhook, raw)
	s.Require().NoError(err)
	s.Equal(models.AdmissionQuarantined, outcome.Status)
	s.Equal(models.ErrorCodePII, outcome.ErrorCode)
}

func (s *ServiceSuite) TestAdmit_MissingFieldsQuarantinedAsValidation() {
	ctx := context.Background()
	raw, _ := json.Marshal(map[string]any{"event_type": "purchase"})

	outcome, err := s.service.Admit(ctx, s.tenant, models.SourceWebhook, raw)
	s.Require().NoError(err)
	s.Equal(models.AdmissionQuarantined, outcome.Status)
	s.Equal(models.ErrorCodeValidation, outcome.ErrorCode)
	s.Contains(outcome.Detail, "event_timestamp")
	s.Contains(outcome.Detail, "session_reference")

	quarantined, err := s.dead.ListByTenant(ctx, s.tenant)
	s.Require().NoError(err)
	s.Require().Len(quarantined, 1)
	s.Equal(models.ErrorCodeValidation, quarantined[0].ErrorCode)
}

func (s *ServiceSuite) TestAdmit_NonJSONQuarantinedAsMalformed() {
	ctx := context.Background()

	outcome, err := s.service.Admit(ctx, s.tenant, models.SourceWebhook, []byte("not json at all"))
	s.Require().NoError(err)
	s.Equal(models.AdmissionQuarantined, outcome.Status)
	s.Equal(models.ErrorCodeMalformed, outcome.ErrorCode)

	quarantined, err := s.dead.ListByTenant(ctx, s.tenant)
	s.Require().NoError(err)
	s.Require().Len(quarantined, 1)
	s.Equal("not json at all", quarantined[0].RawPayload)
}

func (s *ServiceSuite) TestAdmit_NonObjectJSONQuarantinedAsMalformed() {
	ctx := context.Background()

	outcome, err := s.service.Admit(ctx, s.tenant, models.SourceWebhook, []byte(`[1, 2, 3]`))
	s.Require().NoError(err)
	s.Equal(models.AdmissionQuarantined, outcome.Status)
	s.Equal(models.ErrorCodeMalformed, outcome.ErrorCode)
}

func (s *ServiceSuite) TestAdmit_UnknownSourceQuarantinedAsMalformed() {
	ctx := context.Background()

	outcome, err := s.service.Admit(ctx, s.tenant, models.Source("telegraph"), webhookPayload(nil))
	s.Require().NoError(err)
	s.Equal(models.AdmissionQuarantined, outcome.Status)
	s.Equal(models.ErrorCodeMalformed, outcome.ErrorCode)
}

func (s *ServiceSuite) TestAdmit_MissingTenantRejected() {
	ctx := context.Background()

	_, err := s.service.Admit(ctx, id.TenantID{}, models.SourceWebhook, webhookPayload(nil))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))
}

func (s *ServiceSuite) TestAdmit_QuarantineEachAttemptCaptured() {
	ctx := context.Background()
	raw, _ := json.Marshal(map[string]any{"event_type": "purchase"})

	for i := 0; i < 3; i++ {
		outcome, err := s.service.Admit(ctx, s.tenant, models.SourceWebhook, raw)
		s.Require().NoError(err)
		s.Equal(models.AdmissionQuarantined, outcome.Status)
	}

	// Quarantine is not idempotent: every failed attempt leaves its own row.
	quarantined, err := s.dead.ListByTenant(ctx, s.tenant)
	s.Require().NoError(err)
	s.Len(quarantined, 3)
}

type stubDedupe struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newStubDedupe() *stubDedupe { return &stubDedupe{seen: make(map[string]bool)} }

func (c *stubDedupe) Seen(_ context.Context, tenantID id.TenantID, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[tenantID.String()+"/"+key]
}

func (c *stubDedupe) MarkSeen(_ context.Context, tenantID id.TenantID, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[tenantID.String()+"/"+key] = true
}

func (s *ServiceSuite) TestAdmit_DedupeHintShortCircuits() {
	ctx := context.Background()
	cache := newStubDedupe()
	svc := New(s.events, s.dead, WithDedupeCache(cache))
	payload := webhookPayload(map[string]any{"idempotency_key": "hinted-key"})

	first, err := svc.Admit(ctx, s.tenant, models.SourceWebhook, payload)
	s.Require().NoError(err)
	s.Equal(models.AdmissionAccepted, first.Status)
	s.True(cache.Seen(ctx, s.tenant, "hinted-key"))

	second, err := svc.Admit(ctx, s.tenant, models.SourceWebhook, payload)
	s.Require().NoError(err)
	s.Equal(models.AdmissionDuplicate, second.Status)
}

type failingEventStore struct{}

func (failingEventStore) Insert(context.Context, *models.CanonicalEvent) error {
	return fmt.Errorf("connection refused")
}

func (s *ServiceSuite) TestAdmit_StoreFailureSurfacesAsUnavailable() {
	ctx := context.Background()
	svc := New(failingEventStore{}, s.dead)

	_, err := svc.Admit(ctx, s.tenant, models.SourceWebhook, webhookPayload(nil))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	// A storage failure must not leave a quarantine record behind.
	quarantined, listErr := s.dead.ListByTenant(ctx, s.tenant)
	s.Require().NoError(listErr)
	s.Empty(quarantined)
}

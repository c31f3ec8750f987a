package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	allocationmodels "tidemark/internal/allocation/models"
	allocationstore "tidemark/internal/allocation/store/allocation"
	correctionmodels "tidemark/internal/correction/models"
	correctionstore "tidemark/internal/correction/store/correction"
	eventmodels "tidemark/internal/ingest/models"
	eventstore "tidemark/internal/ingest/store/event"
	taxonomymodels "tidemark/internal/taxonomy/models"
	taxonomyservice "tidemark/internal/taxonomy/service"
	taxonomystore "tidemark/internal/taxonomy/store/taxonomy"
	id "tidemark/pkg/domain"
	dErrors "tidemark/pkg/domain-errors"
	"tidemark/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	events      *eventstore.InMemory
	allocations *allocationstore.InMemory
	channels    *taxonomystore.InMemory
	audit       *correctionstore.InMemory
	service     *Service
	tenant      id.TenantID
}

func (s *ServiceSuite) SetupTest() {
	s.events = eventstore.NewInMemory()
	s.allocations = allocationstore.NewInMemory()
	s.channels = taxonomystore.NewInMemory()
	s.audit = correctionstore.NewInMemory()
	s.service = New(s.events, s.allocations, s.channels, s.audit, taxonomyservice.NewMemoryTx())
	s.tenant = id.NewTenantID()

	s.seedChannel("direct", taxonomymodels.StateActive)
	s.seedChannel("google_search_paid", taxonomymodels.StateActive)
	s.seedChannel("fax_blast", taxonomymodels.StateDeprecated)
	s.seedChannel("carrier_pigeon", taxonomymodels.StateDraft)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) seedChannel(code string, state taxonomymodels.State) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	entry, err := taxonomymodels.NewEntry(code, code, "", false, now)
	s.Require().NoError(err)
	entry.State = state
	s.Require().NoError(s.channels.Create(context.Background(), entry))
}

func (s *ServiceSuite) seedEvent(tenantID id.TenantID, channel string) *eventmodels.CanonicalEvent {
	ev := &eventmodels.CanonicalEvent{
		ID:             id.NewEventID(),
		TenantID:       tenantID,
		SessionID:      id.NewSessionID(),
		IdempotencyKey: fmt.Sprintf("k-%s", id.NewEventID()),
		EventType:      "purchase",
		Channel:        channel,
		EventTimestamp: time.Date(2026, 8, 14, 10, 30, 0, 0, time.UTC),
		IngestedAt:     time.Now().UTC(),
		RawPayload:     map[string]any{"event_type": "purchase"},
	}
	s.Require().NoError(s.events.Insert(context.Background(), ev))
	return ev
}

func (s *ServiceSuite) seedAllocation(tenantID id.TenantID, channel string) *allocationmodels.Allocation {
	a := &allocationmodels.Allocation{
		ID:        id.NewAllocationID(),
		TenantID:  tenantID,
		EventID:   id.NewEventID(),
		Channel:   channel,
		Weight:    1.0,
		CreatedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.allocations.Insert(context.Background(), a))
	return a
}

func (s *ServiceSuite) auditCount() int {
	n, err := s.audit.Count(context.Background())
	s.Require().NoError(err)
	return n
}

func (s *ServiceSuite) TestCorrectEvent() {
	ctx := requestcontext.WithActor(context.Background(), "analyst@example.com")
	ev := s.seedEvent(s.tenant, "direct")

	result, err := s.service.CorrectAssignment(ctx, s.tenant, "event", ev.ID.String(), "google_search_paid", "misattributed by UTM loss")
	s.Require().NoError(err)
	s.True(result.Changed)
	s.Equal("direct", result.FromChannel)

	got, err := s.events.FindByID(ctx, ev.ID)
	s.Require().NoError(err)
	s.Equal("google_search_paid", got.Channel)

	corrections, err := s.service.ListCorrections(ctx, s.tenant)
	s.Require().NoError(err)
	s.Require().Len(corrections, 1)
	s.Equal("direct", corrections[0].FromChannel)
	s.Equal("google_search_paid", corrections[0].ToChannel)
	s.Equal("analyst@example.com", corrections[0].Actor)
	s.Equal("misattributed by UTM loss", corrections[0].Reason)
}

func (s *ServiceSuite) TestCorrectAllocation() {
	ctx := context.Background()
	a := s.seedAllocation(s.tenant, "direct")

	result, err := s.service.CorrectAssignment(ctx, s.tenant, "allocation", a.ID.String(), "google_search_paid", "rebalance")
	s.Require().NoError(err)
	s.True(result.Changed)

	got, err := s.allocations.FindByID(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal("google_search_paid", got.Channel)

	corrections, err := s.service.ListCorrections(ctx, s.tenant)
	s.Require().NoError(err)
	s.Require().Len(corrections, 1)
	s.Equal(correctionmodels.EntityAllocation, corrections[0].EntityType)
	// Actor context absent: attributed to the system sentinel.
	s.Equal(taxonomymodels.SystemActor, corrections[0].Actor)
}

func (s *ServiceSuite) TestCorrect_ReasonMandatory() {
	ctx := context.Background()
	ev := s.seedEvent(s.tenant, "direct")

	_, err := s.service.CorrectAssignment(ctx, s.tenant, "event", ev.ID.String(), "google_search_paid", "")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	s.Equal(0, s.auditCount())
}

func (s *ServiceSuite) TestCorrect_NonActiveChannelRejectedBeforeAnyWrite() {
	ctx := context.Background()
	ev := s.seedEvent(s.tenant, "direct")

	for _, target := range []string{"fax_blast", "carrier_pigeon", "never_heard_of_it"} {
		_, err := s.service.CorrectAssignment(ctx, s.tenant, "event", ev.ID.String(), target, "reason")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest), "target %s", target)
	}

	got, err := s.events.FindByID(ctx, ev.ID)
	s.Require().NoError(err)
	s.Equal("direct", got.Channel)
	s.Equal(0, s.auditCount())
}

func (s *ServiceSuite) TestCorrect_CrossTenantRejected() {
	ctx := context.Background()
	ev := s.seedEvent(s.tenant, "direct")
	otherTenant := id.NewTenantID()

	_, err := s.service.CorrectAssignment(ctx, otherTenant, "event", ev.ID.String(), "google_search_paid", "theft")
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))

	got, findErr := s.events.FindByID(ctx, ev.ID)
	s.Require().NoError(findErr)
	s.Equal("direct", got.Channel)
	s.Equal(0, s.auditCount())
}

func (s *ServiceSuite) TestCorrect_EntityNotFound() {
	ctx := context.Background()

	_, err := s.service.CorrectAssignment(ctx, s.tenant, "event", id.NewEventID().String(), "google_search_paid", "reason")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.CorrectAssignment(ctx, s.tenant, "allocation", id.NewAllocationID().String(), "google_search_paid", "reason")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestCorrect_NoOpProducesNoAudit() {
	ctx := context.Background()
	ev := s.seedEvent(s.tenant, "google_search_paid")

	result, err := s.service.CorrectAssignment(ctx, s.tenant, "event", ev.ID.String(), "google_search_paid", "already right")
	s.Require().NoError(err)
	s.False(result.Changed)
	s.Equal(0, s.auditCount())
}

func (s *ServiceSuite) TestCorrect_ConcurrentIdenticalCorrections() {
	ctx := context.Background()
	ev := s.seedEvent(s.tenant, "direct")

	const workers = 50
	var wg sync.WaitGroup
	results := make([]*Result, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.service.CorrectAssignment(ctx, s.tenant, "event", ev.ID.String(), "google_search_paid", "utm loss")
		}(i)
	}
	wg.Wait()

	changed := 0
	for i := range results {
		s.Require().NoError(errs[i])
		if results[i].Changed {
			changed++
		}
	}
	s.Equal(1, changed, "exactly one correction applies the change")
	s.Equal(1, s.auditCount(), "identical concurrent corrections must not duplicate audit rows")

	got, err := s.events.FindByID(ctx, ev.ID)
	s.Require().NoError(err)
	s.Equal("google_search_paid", got.Channel)
}

func (s *ServiceSuite) TestCorrect_ConcurrentDivergentCorrectionsConflict() {
	ctx := context.Background()
	s.seedChannel("email", taxonomymodels.StateActive)
	ev := s.seedEvent(s.tenant, "direct")

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	for i, target := range []string{"google_search_paid", "email"} {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			results[i], errs[i] = s.service.CorrectAssignment(ctx, s.tenant, "event", ev.ID.String(), target, "divergent")
		}(i, target)
	}
	wg.Wait()

	// One correction wins; the other either loses the race with a conflict
	// or ran strictly second against the updated row and succeeded. Either
	// way the audit trail records exactly the corrections that changed the
	// row, each with the channel it actually replaced.
	changed := 0
	for i := range results {
		if errs[i] != nil {
			s.True(dErrors.HasCode(errs[i], dErrors.CodeConflict))
			continue
		}
		if results[i].Changed {
			changed++
		}
	}
	s.GreaterOrEqual(changed, 1)
	s.Equal(changed, s.auditCount())

	corrections, err := s.service.ListCorrections(ctx, s.tenant)
	s.Require().NoError(err)
	prev := "direct"
	for _, c := range corrections {
		s.Equal(prev, c.FromChannel, "audit rows must chain without stale from_channel values")
		prev = c.ToChannel
	}
}

func (s *ServiceSuite) TestCorrect_ConcurrentAllocationCorrections() {
	ctx := context.Background()
	a := s.seedAllocation(s.tenant, "direct")

	const workers = 20
	var wg sync.WaitGroup
	results := make([]*Result, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.service.CorrectAssignment(ctx, s.tenant, "allocation", a.ID.String(), "google_search_paid", "rebalance")
		}(i)
	}
	wg.Wait()

	changed := 0
	for i := range results {
		s.Require().NoError(errs[i])
		if results[i].Changed {
			changed++
		}
	}
	s.Equal(1, changed)
	s.Equal(1, s.auditCount())
}

func (s *ServiceSuite) TestCorrect_BadInputs() {
	ctx := context.Background()

	_, err := s.service.CorrectAssignment(ctx, s.tenant, "invoice", "x", "direct", "reason")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.service.CorrectAssignment(ctx, s.tenant, "event", "not-a-uuid", "direct", "reason")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.service.CorrectAssignment(ctx, id.TenantID{}, "event", id.NewEventID().String(), "direct", "reason")
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tidemark/internal/ingest/models"
	deadletterstore "tidemark/internal/ingest/store/deadletter"
	id "tidemark/pkg/domain"
	dErrors "tidemark/pkg/domain-errors"
)

type RemediationSuite struct {
	suite.Suite
	store   *deadletterstore.InMemory
	service *Remediation
	tenant  id.TenantID
}

func (s *RemediationSuite) SetupTest() {
	s.store = deadletterstore.NewInMemory()
	s.service = NewRemediation(s.store, nil)
	s.tenant = id.NewTenantID()
}

func TestRemediationSuite(t *testing.T) {
	suite.Run(t, new(RemediationSuite))
}

func (s *RemediationSuite) seed(tenantID id.TenantID) *models.DeadEvent {
	de := &models.DeadEvent{
		ID:                id.NewDeadEventID(),
		TenantID:          tenantID,
		IngestedAt:        time.Now().UTC(),
		Source:            models.SourceWebhook,
		ErrorCode:         models.ErrorCodeValidation,
		ErrorDetail:       "missing required fields: event_timestamp",
		RawPayload:        map[string]any{"event_type": "purchase"},
		RemediationStatus: models.RemediationPending,
	}
	s.Require().NoError(s.store.Insert(context.Background(), de))
	return de
}

func (s *RemediationSuite) TestUpdateStatus_WorkflowToResolution() {
	ctx := context.Background()
	de := s.seed(s.tenant)

	got, err := s.service.UpdateStatus(ctx, s.tenant, de.ID, models.RemediationInProgress, "investigating upstream outage")
	s.Require().NoError(err)
	s.Equal(models.RemediationInProgress, got.RemediationStatus)
	s.Nil(got.ResolvedAt)

	got, err = s.service.UpdateStatus(ctx, s.tenant, de.ID, models.RemediationResolved, "replayed after vendor fix")
	s.Require().NoError(err)
	s.Equal(models.RemediationResolved, got.RemediationStatus)
	s.Require().NotNil(got.ResolvedAt)
	s.Equal("replayed after vendor fix", got.RemediationNotes)
}

func (s *RemediationSuite) TestUpdateStatus_TerminalIsFinal() {
	ctx := context.Background()
	de := s.seed(s.tenant)

	_, err := s.service.UpdateStatus(ctx, s.tenant, de.ID, models.RemediationAbandoned, "unparseable")
	s.Require().NoError(err)

	for _, to := range []models.RemediationStatus{models.RemediationPending, models.RemediationInProgress, models.RemediationResolved} {
		_, err := s.service.UpdateStatus(ctx, s.tenant, de.ID, to, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation), "abandoned -> %s", to)
	}
}

func (s *RemediationSuite) TestUpdateStatus_Rejections() {
	ctx := context.Background()
	de := s.seed(s.tenant)

	_, err := s.service.UpdateStatus(ctx, s.tenant, de.ID, models.RemediationStatus("snoozed"), "")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.service.UpdateStatus(ctx, s.tenant, id.NewDeadEventID(), models.RemediationResolved, "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.UpdateStatus(ctx, id.NewTenantID(), de.ID, models.RemediationResolved, "")
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))

	// Self-transition is not monotone progress.
	_, err = s.service.UpdateStatus(ctx, s.tenant, de.ID, models.RemediationPending, "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *RemediationSuite) TestListQuarantined_TenantScoped() {
	ctx := context.Background()
	s.seed(s.tenant)
	s.seed(s.tenant)
	s.seed(id.NewTenantID())

	out, err := s.service.ListQuarantined(ctx, s.tenant)
	s.Require().NoError(err)
	s.Len(out, 2)
}

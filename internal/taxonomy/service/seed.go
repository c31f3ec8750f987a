package service

import (
	"context"
	"errors"

	"tidemark/internal/taxonomy/models"
	id "tidemark/pkg/domain"
	dErrors "tidemark/pkg/domain-errors"
	"tidemark/pkg/platform/sentinel"
	"tidemark/pkg/requestcontext"
)

// defaultChannels is the canonical starter taxonomy. Bootstrap installs
// these so ingestion has assignable channels on a fresh deployment.
var defaultChannels = []struct {
	Code        string
	DisplayName string
	Family      string
	Paid        bool
}{
	{"unknown", "Unknown", "unknown", false},
	{"direct", "Direct", "direct", false},
	{"email", "Email", "email", false},
	{"facebook_brand", "Facebook Brand", "social", false},
	{"facebook_paid", "Facebook Paid", "social", true},
	{"google_display_paid", "Google Display Paid", "display", true},
	{"google_search_paid", "Google Search Paid", "search", true},
	{"organic", "Organic Search", "search", false},
	{"referral", "Referral", "referral", false},
	{"tiktok_paid", "TikTok Paid", "social", true},
}

// Bootstrap installs any default channels not already present. Seeded
// entries go straight to active with a creation audit row attributed to
// the system actor. Safe to run on every startup; concurrent instances
// race harmlessly on the code uniqueness constraint.
func (s *Service) Bootstrap(ctx context.Context) error {
	now := requestcontext.Now(ctx)
	for _, def := range defaultChannels {
		_, err := s.channels.FindByCode(ctx, def.Code)
		if err == nil {
			continue
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "bootstrap lookup failed")
		}

		entry, err := models.NewEntry(def.Code, def.DisplayName, def.Family, def.Paid, now)
		if err != nil {
			return err
		}
		entry.State = models.StateActive

		err = s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
			if err := s.channels.Create(ctx, entry); err != nil {
				if errors.Is(err, sentinel.ErrConflict) {
					// Another instance seeded it first.
					return nil
				}
				return dErrors.Wrap(err, dErrors.CodeUnavailable, "bootstrap create failed")
			}
			return s.audit.Insert(ctx, &models.StateTransition{
				ID:          id.NewTransitionID(),
				ChannelCode: entry.Code,
				ToState:     entry.State,
				Actor:       models.SystemActor,
				Reason:      "bootstrap",
				OccurredAt:  now,
			})
		})
		if err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "channel seeded", "channel_code", entry.Code)
	}
	return nil
}

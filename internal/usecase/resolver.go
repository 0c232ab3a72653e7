package usecase

import (
	"context"
	"errors"

	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/ports"
)

// SectorResolver maps each sector to a single agreement id, "ccnl-<sector>".
type SectorResolver struct{}

var _ ports.AgreementResolver = SectorResolver{}

// ResolveAgreement fails when the classifier could not name a sector.
func (SectorResolver) ResolveAgreement(_ context.Context, sector string, _ domain.FeedItem) (string, error) {
	if sector == "" {
		return "", errors.New("no sector classified")
	}
	return "ccnl-" + sector, nil
}

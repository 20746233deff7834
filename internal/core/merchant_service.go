package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lattice/backend/internal/provider"
)

// MerchantService exposes the provider's merchant catalog.
type MerchantService struct {
	selector *provider.Selector
	logger   *zap.Logger
}

// NewMerchantService creates a merchant service.
func NewMerchantService(selector *provider.Selector, logger *zap.Logger) *MerchantService {
	return &MerchantService{
		selector: selector,
		logger:   logger.Named("merchant_service"),
	}
}

// List returns the merchants supporting the given product type
// (transaction_link or card_switcher), mode-aware per call.
func (s *MerchantService) List(ctx context.Context, merchantType string) ([]provider.Merchant, error) {
	if merchantType == "" {
		merchantType = provider.SessionTypeTransactionLink
	}

	client, mode := s.selector.Pick()
	merchants, err := client.ListMerchants(ctx, merchantType)
	if err != nil {
		return nil, fmt.Errorf("failed to list merchants: %w", err)
	}

	s.logger.Debug("Merchant catalog fetched",
		zap.String("type", merchantType),
		zap.String("mode", string(mode)),
		zap.Int("count", len(merchants)))

	return merchants, nil
}

// Package events publishes linkage notifications to NATS so interested
// product surfaces (chat, insights) can react without polling. Publishing is
// best-effort: a missing connection or a publish failure never fails the
// request that triggered it.
package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subjects for linkage notifications.
const (
	SubjectAccountsLinked     = "lattice.accounts.linked"
	SubjectTransactionsSynced = "lattice.transactions.synced"
)

// Publisher emits notifications to NATS. A nil Publisher or one created
// without a connection is a no-op, so callers never branch on configuration.
type Publisher struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// NewPublisher creates a publisher over an optional NATS connection.
func NewPublisher(nc *nats.Conn, logger *zap.Logger) *Publisher {
	return &Publisher{nc: nc, logger: logger.Named("events")}
}

// AccountsLinked announces that a reconciliation linked new accounts.
func (p *Publisher) AccountsLinked(userID string, accountsLinked int) {
	p.publish(SubjectAccountsLinked, map[string]interface{}{
		"user_id":         userID,
		"accounts_linked": accountsLinked,
		"timestamp":       time.Now().UTC(),
	})
}

// TransactionsSynced announces that a transaction sync merged new rows.
func (p *Publisher) TransactionsSynced(userID string, total int) {
	p.publish(SubjectTransactionsSynced, map[string]interface{}{
		"user_id":   userID,
		"total":     total,
		"timestamp": time.Now().UTC(),
	})
}

func (p *Publisher) publish(subject string, payload map[string]interface{}) {
	if p == nil || p.nc == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("Failed to marshal notification", zap.String("subject", subject), zap.Error(err))
		return
	}

	if err := p.nc.Publish(subject, data); err != nil {
		// Don't fail the request if notification fails
		p.logger.Warn("Failed to publish notification", zap.String("subject", subject), zap.Error(err))
	}
}

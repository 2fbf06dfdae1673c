package conversation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"researchchat/internal/domain"
	"researchchat/internal/logging"
)

// Exchange sends one question and returns the messages the server produced
// for it, in order. Citations are passed through untouched.
type Exchange struct {
	api     domain.ConversationAPI
	timeout time.Duration
	logger  *zap.Logger
}

// NewExchange returns an exchange bounding each send by timeout.
func NewExchange(api domain.ConversationAPI, timeout time.Duration, logger *zap.Logger) *Exchange {
	return &Exchange{api: api, timeout: timeout, logger: logging.OrNop(logger).Named("exchange")}
}

func (e *Exchange) Send(ctx context.Context, conversationID, question string) ([]domain.Message, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	start := time.Now()
	msgs, err := e.api.SendMessage(ctx, conversationID, question)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("exchange completed",
		zap.String("conversation_id", conversationID),
		zap.Int("messages", len(msgs)),
		zap.Duration("took", time.Since(start)))
	return msgs, nil
}

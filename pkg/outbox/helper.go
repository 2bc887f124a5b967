package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// NewEvent payload 序列化失败时返回错误，事件初始状态为 pending
func NewEvent(aggregateType string, aggregateID int64, routingKey string, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", routingKey, err)
	}
	id := aggregateID
	return &Event{
		AggregateType: aggregateType,
		AggregateID:   &id,
		RoutingKey:    routingKey,
		Payload:       raw,
		Status:        StatusPending,
	}, nil
}

// Enqueue 在调用方事务中追加事件，与业务写入一同提交或回滚
func (r *Repository) Enqueue(ctx context.Context, tx pgx.Tx, aggregateType string, aggregateID int64, routingKey string, payload any) error {
	event, err := NewEvent(aggregateType, aggregateID, routingKey, payload)
	if err != nil {
		return err
	}
	return r.InsertEvent(ctx, tx, event)
}

// Package repository PostgreSQL 持久化：训练邮件、模式向量、模板、生成历史
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sprintmail/pkg/otel"
	"sprintmail/pkg/outbox"
	"sprintmail/pkg/trace"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
	// ErrConflict 记录状态已被并发修改（例如训练邮件已被处理）
	ErrConflict = errors.New("conflict")
)

// Store 基于 pgxpool 的实现，写操作与 outbox 事件在同一事务中提交
type Store struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db, outbox: outbox.NewRepository(db)}
}

// Ping 检查数据库连通性
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// inTx 在事务中执行 fn，fn 返回错误时回滚
func (s *Store) inTx(ctx context.Context, operation, table string, fn func(tx pgx.Tx) error) (err error) {
	ctx, span := otel.DBSpan(ctx, operation, table)
	defer func() { otel.EndSpan(span, err) }()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// emit 在事务中写入 outbox 事件，payload 由调用方构造（含 trace_id）
func (s *Store) emit(ctx context.Context, tx pgx.Tx, aggregateType string, aggregateID int64, routingKey string, payload any) error {
	return s.outbox.Enqueue(ctx, tx, aggregateType, aggregateID, routingKey, payload)
}

// mapError 将 pgx 错误映射为包内哨兵错误
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

func traceID(ctx context.Context) string {
	return trace.FromContext(ctx)
}

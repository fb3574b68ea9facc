// Package checkpoint は上流サービスごとの購読カーソル（最後に適用したシーケンス番号）を管理する。
// 書き込みは書き込みストア、読み取りはリードレプリカに対して行う。
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hitoshi/skygate/internal/model"
	"github.com/hitoshi/skygate/internal/repository"
)

var (
	// ErrNotFound はサービスのカーソルがリードレプリカに存在しないことを示す。
	ErrNotFound = errors.New("cursor state not found")
	// ErrInvalidState はサービス名またはシーケンス番号が不正であることを示す。
	ErrInvalidState = errors.New("invalid cursor state")
)

var tracer = otel.Tracer("github.com/hitoshi/skygate/internal/checkpoint")

// Service は購読カーソルの保存と取得を提供する。
type Service struct {
	writer repository.CursorStateWriter
	reader repository.CursorStateReader
}

// NewService はServiceを生成する。
func NewService(writer repository.CursorStateWriter, reader repository.CursorStateReader) *Service {
	return &Service{writer: writer, reader: reader}
}

// SetCursor はサービスのカーソルを書き込みストアに保存する。最後の書き込みが優先される。
func (s *Service) SetCursor(ctx context.Context, service string, sequence int64) error {
	ctx, span := tracer.Start(ctx, "checkpoint.SetCursor")
	defer span.End()

	service = strings.TrimSpace(service)
	if service == "" {
		return fmt.Errorf("%w: service is required", ErrInvalidState)
	}
	if sequence < 0 {
		return fmt.Errorf("%w: sequence must not be negative", ErrInvalidState)
	}
	span.SetAttributes(
		attribute.String("checkpoint.service", service),
		attribute.Int64("checkpoint.sequence", sequence),
	)

	if err := s.writer.Upsert(ctx, model.CursorState{Service: service, Sequence: sequence}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save cursor for %s: %w", service, err)
	}

	slog.Debug("cursor saved",
		slog.String("service", service),
		slog.Int64("sequence", sequence),
	)
	return nil
}

// GetCursor はサービスのカーソルをリードレプリカから取得する。
// レプリカの遅延により直前の書き込みが見えないことがある。存在しない場合はErrNotFound。
func (s *Service) GetCursor(ctx context.Context, service string) (*model.CursorState, error) {
	service = strings.TrimSpace(service)
	if service == "" {
		return nil, fmt.Errorf("%w: service is required", ErrInvalidState)
	}

	state, err := s.reader.FindByService(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("failed to read cursor for %s: %w", service, err)
	}
	if state == nil {
		return nil, ErrNotFound
	}
	return state, nil
}

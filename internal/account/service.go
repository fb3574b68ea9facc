// Package account はアカウント操作トークン（メール確認・アカウント削除）の発行を提供する。
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hitoshi/skygate/internal/mailer"
	"github.com/hitoshi/skygate/internal/metrics"
	"github.com/hitoshi/skygate/internal/model"
	"github.com/hitoshi/skygate/internal/repository"
)

var (
	// ErrAccountNotFound はアカウントが存在しないことを示す。
	ErrAccountNotFound = errors.New("account not found")
	// ErrNoEmailOnFile はアカウントにメールアドレスが登録されていないことを示す。
	ErrNoEmailOnFile = errors.New("account does not have an email address")
	// ErrDeliveryFailure はトークンのメール送信に失敗したことを示す。
	ErrDeliveryFailure = errors.New("failed to deliver token")
	// ErrInvalidPurpose は未定義の用途が指定されたことを示す。
	ErrInvalidPurpose = errors.New("invalid token purpose")
)

var tracer = otel.Tracer("github.com/hitoshi/skygate/internal/account")

// Service はアカウント操作トークンの発行サービス層。
type Service struct {
	accounts repository.AccountRepository
	tokens   repository.EmailTokenRepository
	mailer   mailer.Mailer
	metrics  metrics.MetricsCollector

	now      func() time.Time
	generate func() (string, error)
}

// NewService はServiceを生成する。
func NewService(
	accounts repository.AccountRepository,
	tokens repository.EmailTokenRepository,
	m mailer.Mailer,
	mc metrics.MetricsCollector,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		mailer:   m,
		metrics:  mc,
		now:      time.Now,
		generate: GenerateToken,
	}
}

// RequestEmailConfirmation はメール確認用トークンを発行して送る。
func (s *Service) RequestEmailConfirmation(ctx context.Context, did string) error {
	return s.Issue(ctx, did, model.TokenPurposeConfirmEmail)
}

// RequestAccountDelete はアカウント削除用トークンを発行して送る。
func (s *Service) RequestAccountDelete(ctx context.Context, did string) error {
	return s.Issue(ctx, did, model.TokenPurposeDeleteAccount)
}

// Issue は(did, purpose)のトークンを発行し、アカウント自身のメールアドレスに送る。
// フロー: アカウント取得（無効化・テイクダウン済みを含む） → メール有無確認 → トークン保存 → 送信
// メールアドレスがない場合はトークンを作らない。
func (s *Service) Issue(ctx context.Context, did string, purpose model.TokenPurpose) error {
	ctx, span := tracer.Start(ctx, "account.Issue")
	defer span.End()
	span.SetAttributes(attribute.String("account.purpose", string(purpose)))

	err := s.issue(ctx, did, purpose)
	if err != nil {
		result := failureResult(err)
		s.metrics.RecordAccountToken(string(purpose), result)
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		slog.Warn("account action token was not issued",
			slog.String("did", did),
			slog.String("purpose", string(purpose)),
			slog.String("reason", result),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.metrics.RecordAccountToken(string(purpose), "issued")
	slog.Info("account action token issued",
		slog.String("did", did),
		slog.String("purpose", string(purpose)),
	)
	return nil
}

func (s *Service) issue(ctx context.Context, did string, purpose model.TokenPurpose) error {
	if !purpose.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPurpose, purpose)
	}

	// 1. アカウント取得
	acct, err := s.accounts.GetAccount(ctx, did, model.AvailabilityFlags{
		IncludeDeactivated: true,
		IncludeTakenDown:   true,
	})
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}
	if acct == nil {
		return ErrAccountNotFound
	}

	// 2. メールアドレス確認
	if !acct.HasEmail() {
		return ErrNoEmailOnFile
	}

	// 3. トークン保存（同じ用途の既存トークンは置き換える）
	value, err := s.generate()
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	token := &model.AccountActionToken{DID: did, Purpose: purpose, Value: value}
	if err := s.tokens.Upsert(ctx, token, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	// 4. アカウント自身のアドレスにのみ送る
	if err := s.mailer.SendToken(ctx, purpose, acct.Email, token.Value); err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailure, err)
	}

	return nil
}

// failureResult はメトリクス・ログ用に失敗理由を分類する。
func failureResult(err error) string {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrNoEmailOnFile):
		return "no_email"
	case errors.Is(err, ErrDeliveryFailure):
		return "delivery_failed"
	case errors.Is(err, ErrInvalidPurpose):
		return "invalid_purpose"
	default:
		return "store_error"
	}
}

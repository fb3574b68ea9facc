package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/skygate/internal/model"
)

// PostgresAccountRepo はアカウント管理テーブル（actor, account）の読み取りリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// GetAccount はDIDでアカウントを取得する。見つからない場合はnilを返す。
// flagsで許可されていない無効化・テイクダウン済みのアカウントも見つからない扱いにする。
func (r *PostgresAccountRepo) GetAccount(ctx context.Context, did string, flags model.AvailabilityFlags) (*model.Account, error) {
	query := `SELECT actor.did, account.email, actor.deactivated_at, actor.takedown_ref
		 FROM actor
		 JOIN account ON account.did = actor.did
		 WHERE actor.did = $1`
	if !flags.IncludeTakenDown {
		query += ` AND actor.takedown_ref IS NULL`
	}
	if !flags.IncludeDeactivated {
		query += ` AND actor.deactivated_at IS NULL`
	}

	account := &model.Account{}
	var email, takedownRef sql.NullString
	var deactivatedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, did).Scan(&account.DID, &email, &deactivatedAt, &takedownRef)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}

	account.Email = nullStringValue(email)
	account.Deactivated = deactivatedAt.Valid
	account.TakenDown = takedownRef.Valid
	return account, nil
}

var _ AccountRepository = (*PostgresAccountRepo)(nil)

// PostgresEmailTokenRepo はアカウント操作トークンのリポジトリ。
type PostgresEmailTokenRepo struct {
	db *sql.DB
}

// NewPostgresEmailTokenRepo はPostgresEmailTokenRepoを生成する。
func NewPostgresEmailTokenRepo(db *sql.DB) *PostgresEmailTokenRepo {
	return &PostgresEmailTokenRepo{db: db}
}

// Upsert は(purpose, did)のトークンを作成または置き換える。
func (r *PostgresEmailTokenRepo) Upsert(ctx context.Context, token *model.AccountActionToken, requestedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO email_token (purpose, did, token, requested_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (purpose, did) DO UPDATE SET
		   token = EXCLUDED.token,
		   requested_at = EXCLUDED.requested_at`,
		string(token.Purpose), token.DID, token.Value, requestedAt,
	)
	if err != nil {
		return fmt.Errorf("トークンの保存に失敗しました: %w", err)
	}
	return nil
}

// DeleteRequestedBefore は指定時刻より前に発行されたトークンを削除する。
func (r *PostgresEmailTokenRepo) DeleteRequestedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM email_token WHERE requested_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("期限切れトークンの削除に失敗しました: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

var _ EmailTokenRepository = (*PostgresEmailTokenRepo)(nil)

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/storefront/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const profileColumns = `id, email, role, full_name, phone, address, avatar_url, created_at, updated_at`

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	profile, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return profile, nil
}

// UpdateContact は氏名・電話番号・住所を更新し、更新後のプロフィールを返す。
// 見つからない場合はnilを返す。
func (r *PostgresProfileRepo) UpdateContact(ctx context.Context, id, fullName, phone, address string) (*model.Profile, error) {
	profile, err := scanProfile(r.db.QueryRowContext(ctx,
		`UPDATE profiles
		 SET full_name = $2, phone = $3, address = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING `+profileColumns,
		id, nullString(fullName), nullString(phone), nullString(address),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return profile, nil
}

// Count はプロフィール総数を返す。
func (r *PostgresProfileRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return count, nil
}

func scanProfile(row *sql.Row) (*model.Profile, error) {
	var (
		p                                   model.Profile
		role                                string
		fullName, phone, address, avatarURL sql.NullString
	)
	err := row.Scan(&p.ID, &p.Email, &role, &fullName, &phone, &address, &avatarURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Role = model.Role(role)
	p.FullName = fullName.String
	p.Phone = phone.String
	p.Address = address.String
	p.AvatarURL = avatarURL.String
	return &p, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)

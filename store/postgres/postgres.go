// Package postgres implements authcore.CredentialStore on top of a pgx
// connection pool. Schema setup is handled by [RunMigrations] from the
// embedded migration files.
package postgres

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightfolio/authcore"
)

// Store is a CredentialStore backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing connection pool. The caller owns the pool's
// lifecycle.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ authcore.CredentialStore = (*Store)(nil)

// storeErr wraps infrastructure failures so callers can detect them with
// errors.Is(err, authcore.ErrStoreUnavailable).
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", authcore.ErrStoreUnavailable, op, err)
}

// Refresh hashes are stored hex-encoded; the zero hash maps to the empty
// string so a never-rotated session can never match a real lookup.
func encodeHash(hash [32]byte) string {
	if hash == ([32]byte{}) {
		return ""
	}
	return hex.EncodeToString(hash[:])
}

func decodeHash(s string) [32]byte {
	var out [32]byte
	if s == "" {
		return out
	}
	b, err := hex.DecodeString(s)
	if err == nil && len(b) == 32 {
		copy(out[:], b)
	}
	return out
}

// Zero times travel as NULL so the schema stays queryable by humans.
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}

const sessionColumns = `id, user_id, email, refresh_token_hash, previous_refresh_token_hash,
	is_revoked, revoked_reason, revoked_at, expires_at, refresh_expires_at,
	rotation_count, last_rotated_at, last_activity, created_at,
	ip, user_agent, device_name, entry_point`

func scanSession(row pgx.Row) (*authcore.SessionRecord, error) {
	var (
		rec                      authcore.SessionRecord
		currentHash, previousHash string
		revokedAt, lastRotatedAt sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Email, &currentHash, &previousHash,
		&rec.IsRevoked, &rec.RevokedReason, &revokedAt, &rec.ExpiresAt, &rec.RefreshExpiresAt,
		&rec.RotationCount, &lastRotatedAt, &rec.LastActivity, &rec.CreatedAt,
		&rec.IP, &rec.UserAgent, &rec.DeviceName, &rec.EntryPoint,
	)
	if err != nil {
		return nil, err
	}
	rec.RefreshTokenHash = decodeHash(currentHash)
	rec.PreviousRefreshTokenHash = decodeHash(previousHash)
	rec.RevokedAt = fromNullTime(revokedAt)
	rec.LastRotatedAt = fromNullTime(lastRotatedAt)
	return &rec, nil
}

func (s *Store) CreateSession(ctx context.Context, rec *authcore.SessionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth_sessions (`+sessionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		rec.ID, rec.UserID, rec.Email, encodeHash(rec.RefreshTokenHash), encodeHash(rec.PreviousRefreshTokenHash),
		rec.IsRevoked, rec.RevokedReason, nullTime(rec.RevokedAt), rec.ExpiresAt, rec.RefreshExpiresAt,
		rec.RotationCount, nullTime(rec.LastRotatedAt), rec.LastActivity, rec.CreatedAt,
		rec.IP, rec.UserAgent, rec.DeviceName, rec.EntryPoint,
	)
	if err != nil {
		return storeErr("create session", err)
	}
	return nil
}

func (s *Store) getSessionWhere(ctx context.Context, where string, arg any) (*authcore.SessionRecord, error) {
	rec, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM auth_sessions WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get session", err)
	}
	return rec, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*authcore.SessionRecord, error) {
	return s.getSessionWhere(ctx, `id = $1`, sessionID)
}

func (s *Store) GetSessionByRefreshHash(ctx context.Context, hash [32]byte) (*authcore.SessionRecord, error) {
	encoded := encodeHash(hash)
	if encoded == "" {
		return nil, nil
	}
	return s.getSessionWhere(ctx, `refresh_token_hash = $1`, encoded)
}

func (s *Store) GetSessionByPreviousRefreshHash(ctx context.Context, hash [32]byte) (*authcore.SessionRecord, error) {
	encoded := encodeHash(hash)
	if encoded == "" {
		return nil, nil
	}
	return s.getSessionWhere(ctx, `previous_refresh_token_hash = $1`, encoded)
}

func (s *Store) RotateSessionRefreshHash(ctx context.Context, sessionID string, expected, next [32]byte, now time.Time, newExpiry time.Time) (*authcore.SessionRecord, error) {
	rec, err := scanSession(s.pool.QueryRow(ctx, `
		UPDATE auth_sessions
		SET previous_refresh_token_hash = refresh_token_hash,
		    refresh_token_hash = $3,
		    rotation_count = rotation_count + 1,
		    last_rotated_at = $4,
		    last_activity = $4,
		    expires_at = $5
		WHERE id = $1 AND refresh_token_hash = $2 AND NOT is_revoked
		RETURNING `+sessionColumns,
		sessionID, encodeHash(expected), encodeHash(next), now, newExpiry,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, authcore.ErrRefreshHashConflict
	}
	if err != nil {
		return nil, storeErr("rotate session", err)
	}
	return rec, nil
}

func (s *Store) ReissueRefreshHashInGrace(ctx context.Context, sessionID string, expectedPrevious, next [32]byte, now time.Time, newExpiry time.Time) (*authcore.SessionRecord, error) {
	rec, err := scanSession(s.pool.QueryRow(ctx, `
		UPDATE auth_sessions
		SET refresh_token_hash = $3,
		    last_activity = $4,
		    expires_at = $5
		WHERE id = $1 AND previous_refresh_token_hash = $2 AND NOT is_revoked
		RETURNING `+sessionColumns,
		sessionID, encodeHash(expectedPrevious), encodeHash(next), now, newExpiry,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, authcore.ErrRefreshHashConflict
	}
	if err != nil {
		return nil, storeErr("grace reissue", err)
	}
	return rec, nil
}

func (s *Store) RevokeSession(ctx context.Context, sessionID, reason string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE auth_sessions
		SET is_revoked = TRUE, revoked_reason = $2, revoked_at = $3
		WHERE id = $1 AND NOT is_revoked`,
		sessionID, reason, at,
	)
	if err != nil {
		return storeErr("revoke session", err)
	}
	return nil
}

func (s *Store) RevokeUserSessions(ctx context.Context, userID, reason string, at time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE auth_sessions
		SET is_revoked = TRUE, revoked_reason = $2, revoked_at = $3
		WHERE user_id = $1 AND NOT is_revoked`,
		userID, reason, at,
	)
	if err != nil {
		return 0, storeErr("revoke user sessions", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) TouchSessionActivity(ctx context.Context, sessionID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE auth_sessions SET last_activity = $2 WHERE id = $1`,
		sessionID, at,
	)
	if err != nil {
		return storeErr("touch session", err)
	}
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time, revokedRetention time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM auth_sessions
		WHERE refresh_expires_at < $1
		   OR (is_revoked AND revoked_at < $2)`,
		now, now.Add(-revokedRetention),
	)
	if err != nil {
		return 0, storeErr("delete expired sessions", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) GetLockout(ctx context.Context, scope authcore.LockScope, key string) (*authcore.LockoutRecord, error) {
	var (
		rec                                    authcore.LockoutRecord
		lockedUntil, lastAttempt, windowReset sql.NullTime
	)
	err := s.pool.QueryRow(ctx, `
		SELECT scope, key, locked_until, lock_count, last_attempt, window_reset_at
		FROM auth_lockouts WHERE scope = $1 AND key = $2`,
		string(scope), key,
	).Scan(&rec.Scope, &rec.Key, &lockedUntil, &rec.LockCount, &lastAttempt, &windowReset)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get lockout", err)
	}
	rec.LockedUntil = fromNullTime(lockedUntil)
	rec.LastAttempt = fromNullTime(lastAttempt)
	rec.WindowResetAt = fromNullTime(windowReset)
	return &rec, nil
}

func (s *Store) UpsertLockout(ctx context.Context, rec *authcore.LockoutRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth_lockouts (scope, key, locked_until, lock_count, last_attempt, window_reset_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (scope, key) DO UPDATE SET
			locked_until = EXCLUDED.locked_until,
			lock_count = EXCLUDED.lock_count,
			last_attempt = EXCLUDED.last_attempt,
			window_reset_at = EXCLUDED.window_reset_at`,
		string(rec.Scope), rec.Key, nullTime(rec.LockedUntil), rec.LockCount,
		nullTime(rec.LastAttempt), nullTime(rec.WindowResetAt),
	)
	if err != nil {
		return storeErr("upsert lockout", err)
	}
	return nil
}

func (s *Store) InsertLoginAttempt(ctx context.Context, rec *authcore.LoginAttemptRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth_login_attempts (email, ip, success, reason, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		rec.Email, rec.IP, rec.Success, rec.Reason, rec.CreatedAt,
	)
	if err != nil {
		return storeErr("insert login attempt", err)
	}
	return nil
}

func (s *Store) CountFailedAttempts(ctx context.Context, scope authcore.LockScope, key string, since time.Time) (int, error) {
	column := "email"
	if scope == authcore.ScopeIP {
		column = "ip"
	}
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM auth_login_attempts
		WHERE `+column+` = $1 AND NOT success AND created_at >= $2`,
		key, since,
	).Scan(&count)
	if err != nil {
		return 0, storeErr("count failed attempts", err)
	}
	return count, nil
}

func (s *Store) DeleteLoginAttemptsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM auth_login_attempts WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, storeErr("delete login attempts", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) CreatePendingSecondFactor(ctx context.Context, rec *authcore.PendingSecondFactorRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth_pending_second_factor (id, user_id, email, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		rec.ID, rec.UserID, rec.Email, rec.ExpiresAt, rec.CreatedAt,
	)
	if err != nil {
		return storeErr("create pending second factor", err)
	}
	return nil
}

func (s *Store) GetPendingSecondFactor(ctx context.Context, id string) (*authcore.PendingSecondFactorRecord, error) {
	var rec authcore.PendingSecondFactorRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, email, expires_at, created_at
		FROM auth_pending_second_factor WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.UserID, &rec.Email, &rec.ExpiresAt, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get pending second factor", err)
	}
	return &rec, nil
}

func (s *Store) DeletePendingSecondFactor(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM auth_pending_second_factor WHERE id = $1`, id)
	if err != nil {
		return false, storeErr("delete pending second factor", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) DeleteExpiredPendingSecondFactor(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM auth_pending_second_factor WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, storeErr("delete expired pending", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) GetSecondFactor(ctx context.Context, userID string) (*authcore.SecondFactorRecord, error) {
	var (
		rec         authcore.SecondFactorRecord
		confirmedAt sql.NullTime
	)
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, encrypted_secret, enabled, created_at, confirmed_at
		FROM auth_second_factors WHERE user_id = $1`, userID,
	).Scan(&rec.UserID, &rec.EncryptedSecret, &rec.Enabled, &rec.CreatedAt, &confirmedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get second factor", err)
	}
	rec.ConfirmedAt = fromNullTime(confirmedAt)
	return &rec, nil
}

func (s *Store) SaveSecondFactor(ctx context.Context, rec *authcore.SecondFactorRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth_second_factors (user_id, encrypted_secret, enabled, created_at, confirmed_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id) DO UPDATE SET
			encrypted_secret = EXCLUDED.encrypted_secret,
			enabled = EXCLUDED.enabled,
			created_at = EXCLUDED.created_at,
			confirmed_at = EXCLUDED.confirmed_at`,
		rec.UserID, rec.EncryptedSecret, rec.Enabled, rec.CreatedAt, nullTime(rec.ConfirmedAt),
	)
	if err != nil {
		return storeErr("save second factor", err)
	}
	return nil
}

func (s *Store) SetSecondFactorEnabled(ctx context.Context, userID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE auth_second_factors SET enabled = TRUE, confirmed_at = $2
		WHERE user_id = $1`,
		userID, at,
	)
	if err != nil {
		return storeErr("enable second factor", err)
	}
	return nil
}

func (s *Store) DeleteSecondFactor(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM auth_second_factors WHERE user_id = $1`, userID)
	if err != nil {
		return storeErr("delete second factor", err)
	}
	return nil
}

func (s *Store) GetBackupCodes(ctx context.Context, userID string) ([]authcore.BackupCodeRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, salt, hash, used, used_at
		FROM auth_backup_codes WHERE user_id = $1`, userID)
	if err != nil {
		return nil, storeErr("get backup codes", err)
	}
	defer rows.Close()

	var out []authcore.BackupCodeRecord
	for rows.Next() {
		var (
			rec    authcore.BackupCodeRecord
			usedAt sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Salt, &rec.Hash, &rec.Used, &usedAt); err != nil {
			return nil, storeErr("scan backup code", err)
		}
		rec.UsedAt = fromNullTime(usedAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("get backup codes", err)
	}
	return out, nil
}

func (s *Store) ReplaceBackupCodes(ctx context.Context, userID string, codes []authcore.BackupCodeRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storeErr("replace backup codes", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM auth_backup_codes WHERE user_id = $1`, userID); err != nil {
		return storeErr("replace backup codes", err)
	}
	for _, rec := range codes {
		if _, err := tx.Exec(ctx, `
			INSERT INTO auth_backup_codes (id, user_id, salt, hash, used, used_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			rec.ID, rec.UserID, rec.Salt, rec.Hash, rec.Used, nullTime(rec.UsedAt),
		); err != nil {
			return storeErr("replace backup codes", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storeErr("replace backup codes", err)
	}
	return nil
}

func (s *Store) MarkBackupCodeUsed(ctx context.Context, userID, codeID string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE auth_backup_codes SET used = TRUE, used_at = $3
		WHERE user_id = $1 AND id = $2 AND NOT used`,
		userID, codeID, at,
	)
	if err != nil {
		return false, storeErr("mark backup code used", err)
	}
	return tag.RowsAffected() > 0, nil
}

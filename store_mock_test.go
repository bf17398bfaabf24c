package authcore

import (
	"context"
	"sync"
	"time"
)

// mockStore is an in-memory CredentialStore with the same conditional-update
// semantics a relational implementation provides. failures maps an operation
// name to an injected error for the next call.
type mockStore struct {
	mu       sync.Mutex
	sessions map[string]*SessionRecord
	lockouts map[string]*LockoutRecord
	attempts []LoginAttemptRecord
	pending  map[string]*PendingSecondFactorRecord
	factors  map[string]*SecondFactorRecord
	backup   map[string][]BackupCodeRecord
	failures map[string]error
}

func newMockStore() *mockStore {
	return &mockStore{
		sessions: map[string]*SessionRecord{},
		lockouts: map[string]*LockoutRecord{},
		pending:  map[string]*PendingSecondFactorRecord{},
		factors:  map[string]*SecondFactorRecord{},
		backup:   map[string][]BackupCodeRecord{},
		failures: map[string]error{},
	}
}

func (m *mockStore) failOnce(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

func (m *mockStore) injected(op string) error {
	if err, ok := m.failures[op]; ok {
		delete(m.failures, op)
		return err
	}
	return nil
}

func copySession(rec *SessionRecord) *SessionRecord {
	out := *rec
	return &out
}

func (m *mockStore) CreateSession(_ context.Context, rec *SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("CreateSession"); err != nil {
		return err
	}
	m.sessions[rec.ID] = copySession(rec)
	return nil
}

func (m *mockStore) GetSession(_ context.Context, sessionID string) (*SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("GetSession"); err != nil {
		return nil, err
	}
	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return copySession(rec), nil
}

func (m *mockStore) GetSessionByRefreshHash(_ context.Context, hash [32]byte) (*SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("GetSessionByRefreshHash"); err != nil {
		return nil, err
	}
	for _, rec := range m.sessions {
		if rec.RefreshTokenHash == hash {
			return copySession(rec), nil
		}
	}
	return nil, nil
}

func (m *mockStore) GetSessionByPreviousRefreshHash(_ context.Context, hash [32]byte) (*SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("GetSessionByPreviousRefreshHash"); err != nil {
		return nil, err
	}
	if hash == ([32]byte{}) {
		return nil, nil
	}
	for _, rec := range m.sessions {
		if rec.PreviousRefreshTokenHash == hash {
			return copySession(rec), nil
		}
	}
	return nil, nil
}

func (m *mockStore) RotateSessionRefreshHash(_ context.Context, sessionID string, expected, next [32]byte, now time.Time, newExpiry time.Time) (*SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("RotateSessionRefreshHash"); err != nil {
		return nil, err
	}
	rec, ok := m.sessions[sessionID]
	if !ok || rec.IsRevoked || rec.RefreshTokenHash != expected {
		return nil, ErrRefreshHashConflict
	}
	rec.PreviousRefreshTokenHash = rec.RefreshTokenHash
	rec.RefreshTokenHash = next
	rec.RotationCount++
	rec.LastRotatedAt = now
	rec.LastActivity = now
	rec.ExpiresAt = newExpiry
	return copySession(rec), nil
}

func (m *mockStore) ReissueRefreshHashInGrace(_ context.Context, sessionID string, expectedPrevious, next [32]byte, now time.Time, newExpiry time.Time) (*SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("ReissueRefreshHashInGrace"); err != nil {
		return nil, err
	}
	rec, ok := m.sessions[sessionID]
	if !ok || rec.IsRevoked || rec.PreviousRefreshTokenHash != expectedPrevious {
		return nil, ErrRefreshHashConflict
	}
	rec.RefreshTokenHash = next
	rec.LastActivity = now
	rec.ExpiresAt = newExpiry
	return copySession(rec), nil
}

func (m *mockStore) RevokeSession(_ context.Context, sessionID, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("RevokeSession"); err != nil {
		return err
	}
	rec, ok := m.sessions[sessionID]
	if ok && !rec.IsRevoked {
		rec.IsRevoked = true
		rec.RevokedReason = reason
		rec.RevokedAt = at
	}
	return nil
}

func (m *mockStore) RevokeUserSessions(_ context.Context, userID, reason string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("RevokeUserSessions"); err != nil {
		return 0, err
	}
	count := 0
	for _, rec := range m.sessions {
		if rec.UserID == userID && !rec.IsRevoked {
			rec.IsRevoked = true
			rec.RevokedReason = reason
			rec.RevokedAt = at
			count++
		}
	}
	return count, nil
}

func (m *mockStore) TouchSessionActivity(_ context.Context, sessionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("TouchSessionActivity"); err != nil {
		return err
	}
	if rec, ok := m.sessions[sessionID]; ok {
		rec.LastActivity = at
	}
	return nil
}

func (m *mockStore) DeleteExpiredSessions(_ context.Context, now time.Time, revokedRetention time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("DeleteExpiredSessions"); err != nil {
		return 0, err
	}
	count := 0
	for id, rec := range m.sessions {
		expired := now.After(rec.RefreshExpiresAt)
		revokedOld := rec.IsRevoked && rec.RevokedAt.Before(now.Add(-revokedRetention))
		if expired || revokedOld {
			delete(m.sessions, id)
			count++
		}
	}
	return count, nil
}

func lockoutKey(scope LockScope, key string) string {
	return string(scope) + "|" + key
}

func (m *mockStore) GetLockout(_ context.Context, scope LockScope, key string) (*LockoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("GetLockout"); err != nil {
		return nil, err
	}
	rec, ok := m.lockouts[lockoutKey(scope, key)]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (m *mockStore) UpsertLockout(_ context.Context, rec *LockoutRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("UpsertLockout"); err != nil {
		return err
	}
	out := *rec
	m.lockouts[lockoutKey(rec.Scope, rec.Key)] = &out
	return nil
}

func (m *mockStore) InsertLoginAttempt(_ context.Context, rec *LoginAttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("InsertLoginAttempt"); err != nil {
		return err
	}
	m.attempts = append(m.attempts, *rec)
	return nil
}

func (m *mockStore) CountFailedAttempts(_ context.Context, scope LockScope, key string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("CountFailedAttempts"); err != nil {
		return 0, err
	}
	count := 0
	for _, rec := range m.attempts {
		if rec.Success || rec.CreatedAt.Before(since) {
			continue
		}
		if scope == ScopeAccount && rec.Email == key {
			count++
		}
		if scope == ScopeIP && rec.IP == key {
			count++
		}
	}
	return count, nil
}

func (m *mockStore) DeleteLoginAttemptsBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("DeleteLoginAttemptsBefore"); err != nil {
		return 0, err
	}
	kept := m.attempts[:0]
	count := 0
	for _, rec := range m.attempts {
		if rec.CreatedAt.Before(cutoff) {
			count++
			continue
		}
		kept = append(kept, rec)
	}
	m.attempts = kept
	return count, nil
}

func (m *mockStore) CreatePendingSecondFactor(_ context.Context, rec *PendingSecondFactorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("CreatePendingSecondFactor"); err != nil {
		return err
	}
	out := *rec
	m.pending[rec.ID] = &out
	return nil
}

func (m *mockStore) GetPendingSecondFactor(_ context.Context, id string) (*PendingSecondFactorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("GetPendingSecondFactor"); err != nil {
		return nil, err
	}
	rec, ok := m.pending[id]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (m *mockStore) DeletePendingSecondFactor(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("DeletePendingSecondFactor"); err != nil {
		return false, err
	}
	if _, ok := m.pending[id]; !ok {
		return false, nil
	}
	delete(m.pending, id)
	return true, nil
}

func (m *mockStore) DeleteExpiredPendingSecondFactor(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("DeleteExpiredPendingSecondFactor"); err != nil {
		return 0, err
	}
	count := 0
	for id, rec := range m.pending {
		if !now.Before(rec.ExpiresAt) {
			delete(m.pending, id)
			count++
		}
	}
	return count, nil
}

func (m *mockStore) GetSecondFactor(_ context.Context, userID string) (*SecondFactorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("GetSecondFactor"); err != nil {
		return nil, err
	}
	rec, ok := m.factors[userID]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (m *mockStore) SaveSecondFactor(_ context.Context, rec *SecondFactorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("SaveSecondFactor"); err != nil {
		return err
	}
	out := *rec
	m.factors[rec.UserID] = &out
	return nil
}

func (m *mockStore) SetSecondFactorEnabled(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("SetSecondFactorEnabled"); err != nil {
		return err
	}
	if rec, ok := m.factors[userID]; ok {
		rec.Enabled = true
		rec.ConfirmedAt = at
	}
	return nil
}

func (m *mockStore) DeleteSecondFactor(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("DeleteSecondFactor"); err != nil {
		return err
	}
	delete(m.factors, userID)
	return nil
}

func (m *mockStore) GetBackupCodes(_ context.Context, userID string) ([]BackupCodeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("GetBackupCodes"); err != nil {
		return nil, err
	}
	out := make([]BackupCodeRecord, len(m.backup[userID]))
	copy(out, m.backup[userID])
	return out, nil
}

func (m *mockStore) ReplaceBackupCodes(_ context.Context, userID string, codes []BackupCodeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("ReplaceBackupCodes"); err != nil {
		return err
	}
	out := make([]BackupCodeRecord, len(codes))
	copy(out, codes)
	m.backup[userID] = out
	return nil
}

func (m *mockStore) MarkBackupCodeUsed(_ context.Context, userID, codeID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("MarkBackupCodeUsed"); err != nil {
		return false, err
	}
	for i, rec := range m.backup[userID] {
		if rec.ID == codeID && !rec.Used {
			m.backup[userID][i].Used = true
			m.backup[userID][i].UsedAt = at
			return true, nil
		}
	}
	return false, nil
}

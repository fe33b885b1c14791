package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/docrelay/internal/credentials"
)

// CredentialRepository implements [credentials.Store] on the credentials table.
//
// Used by the web relay when sessions should survive a restart.
type CredentialRepository struct {
	db *sql.DB
}

var _ credentials.Store = (*CredentialRepository)(nil)

// NewCredentialRepository creates a new CredentialRepository with the given database connection
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Save inserts or replaces the credential stored for sessionID.
func (r *CredentialRepository) Save(ctx context.Context, sessionID string, cred *credentials.Credential) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if err := cred.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	var expiry sql.NullTime
	if !cred.Expiry.IsZero() {
		expiry = sql.NullTime{Time: cred.Expiry.UTC(), Valid: true}
	}

	query := `
		INSERT INTO credentials (session_id, access_token, refresh_token, token_type, token_uri, client_id, client_secret, scopes, expiry, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			token_uri = excluded.token_uri,
			client_id = excluded.client_id,
			client_secret = excluded.client_secret,
			scopes = excluded.scopes,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		sessionID,
		cred.AccessToken,
		cred.RefreshToken,
		cred.TokenType,
		cred.TokenURI,
		cred.ClientID,
		cred.ClientSecret,
		strings.Join(cred.Scopes, " "),
		expiry,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Load returns the credential for sessionID, or (nil, false, nil) when none is stored.
func (r *CredentialRepository) Load(ctx context.Context, sessionID string) (*credentials.Credential, bool, error) {
	query := `
		SELECT access_token, refresh_token, token_type, token_uri, client_id, client_secret, scopes, expiry
		FROM credentials
		WHERE session_id = ?
	`

	var (
		cred   credentials.Credential
		scopes string
		expiry sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&cred.AccessToken,
		&cred.RefreshToken,
		&cred.TokenType,
		&cred.TokenURI,
		&cred.ClientID,
		&cred.ClientSecret,
		&scopes,
		&expiry,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load credential: %w", err)
	}

	cred.Scopes = strings.Fields(scopes)
	if expiry.Valid {
		cred.Expiry = expiry.Time
	}
	return &cred, true, nil
}

// Clear deletes the credential for sessionID. Clearing an absent session is not an error.
func (r *CredentialRepository) Clear(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM credentials WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

// Sessions returns the ids of every session with a stored credential.
func (r *CredentialRepository) Sessions(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT session_id FROM credentials ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ids, nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bluecore-io/bluecore/internal/profile"
)

// Preferences is the persisted preferred-audio-profile bundle for a
// device: which profile should carry each audio role. An empty ID means
// no preference is recorded for that role.
type Preferences struct {
	Output profile.ID `json:"output"`
	Duplex profile.ID `json:"duplex"`
}

// Repository defines the interface for policy and preference
// persistence. This abstraction allows for different implementations
// (SQLite, mock) and enables unit testing without database
// dependencies.
type Repository interface {
	// ConnectionPolicy retrieves the connection policy for a
	// (device, profile) pair. A pair with no recorded policy reports
	// PolicyUnknown, not an error.
	ConnectionPolicy(ctx context.Context, address string, p profile.ID) (profile.Policy, error)

	// SetConnectionPolicy records the connection policy for a
	// (device, profile) pair, replacing any previous value.
	SetConnectionPolicy(ctx context.Context, address string, p profile.ID, policy profile.Policy) error

	// PreferredProfiles retrieves the preferred-audio-profile bundle
	// for a device. A device with no recorded bundle reports the zero
	// Preferences, not an error.
	PreferredProfiles(ctx context.Context, address string) (Preferences, error)

	// SetPreferredProfiles records the bundle for every listed device.
	// Used for coordinated sets: all members carry the same bundle.
	SetPreferredProfiles(ctx context.Context, addresses []string, prefs Preferences) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ConnectionPolicy retrieves the connection policy for a
// (device, profile) pair.
func (r *SQLiteRepository) ConnectionPolicy(ctx context.Context, address string, p profile.ID) (profile.Policy, error) {
	query := `
		SELECT policy
		FROM device_profile_policies
		WHERE address = ? AND profile = ?`

	var policy int
	err := r.db.QueryRowContext(ctx, query, address, string(p)).Scan(&policy)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.PolicyUnknown, nil
	}
	if err != nil {
		return profile.PolicyUnknown, fmt.Errorf("querying connection policy: %w", err)
	}
	return profile.Policy(policy), nil
}

// SetConnectionPolicy records the connection policy for a
// (device, profile) pair.
func (r *SQLiteRepository) SetConnectionPolicy(ctx context.Context, address string, p profile.ID, policy profile.Policy) error {
	if address == "" {
		return ErrInvalidAddress
	}
	if !p.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidProfile, p)
	}

	query := `
		INSERT INTO device_profile_policies (address, profile, policy, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (address, profile) DO UPDATE SET
			policy = excluded.policy,
			updated_at = excluded.updated_at`

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := r.db.ExecContext(ctx, query, address, string(p), int(policy), now); err != nil {
		return fmt.Errorf("storing connection policy: %w", err)
	}
	return nil
}

// PreferredProfiles retrieves the preferred-audio-profile bundle for a
// device.
func (r *SQLiteRepository) PreferredProfiles(ctx context.Context, address string) (Preferences, error) {
	query := `
		SELECT output_profile, duplex_profile
		FROM preferred_audio_profiles
		WHERE address = ?`

	var output, duplex string
	err := r.db.QueryRowContext(ctx, query, address).Scan(&output, &duplex)
	if errors.Is(err, sql.ErrNoRows) {
		return Preferences{}, nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("querying preferred profiles: %w", err)
	}
	return Preferences{Output: profile.ID(output), Duplex: profile.ID(duplex)}, nil
}

// SetPreferredProfiles records the bundle for every listed device in a
// single transaction, so a coordinated set never ends up half-updated.
func (r *SQLiteRepository) SetPreferredProfiles(ctx context.Context, addresses []string, prefs Preferences) error {
	if len(addresses) == 0 {
		return ErrInvalidAddress
	}
	if prefs.Output != "" && !prefs.Output.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidProfile, prefs.Output)
	}
	if prefs.Duplex != "" && !prefs.Duplex.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidProfile, prefs.Duplex)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	query := `
		INSERT INTO preferred_audio_profiles (address, output_profile, duplex_profile, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (address) DO UPDATE SET
			output_profile = excluded.output_profile,
			duplex_profile = excluded.duplex_profile,
			updated_at = excluded.updated_at`

	now := time.Now().UTC().Format(time.RFC3339)
	for _, address := range addresses {
		if address == "" {
			return ErrInvalidAddress
		}
		if _, err := tx.ExecContext(ctx, query, address, string(prefs.Output), string(prefs.Duplex), now); err != nil {
			return fmt.Errorf("storing preferred profiles for %s: %w", address, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing preferred profiles: %w", err)
	}
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bluecore-io/bluecore/internal/profile"
)

const testAddr = "AA:BB:CC:DD:EE:FF"

// setupTestDB creates an in-memory SQLite database with the policy and
// preference tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE device_profile_policies (
			address     TEXT NOT NULL,
			profile     TEXT NOT NULL,
			policy      INTEGER NOT NULL DEFAULT 0,
			updated_at  TEXT NOT NULL,
			PRIMARY KEY (address, profile)
		);
		CREATE TABLE preferred_audio_profiles (
			address         TEXT PRIMARY KEY,
			output_profile  TEXT NOT NULL DEFAULT '',
			duplex_profile  TEXT NOT NULL DEFAULT '',
			updated_at      TEXT NOT NULL
		);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestConnectionPolicy_Default(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	policy, err := repo.ConnectionPolicy(context.Background(), testAddr, profile.A2DP)
	if err != nil {
		t.Fatalf("ConnectionPolicy() error = %v", err)
	}
	if policy != profile.PolicyUnknown {
		t.Errorf("policy = %v, want unknown", policy)
	}
}

func TestSetConnectionPolicy_RoundTrip(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.SetConnectionPolicy(ctx, testAddr, profile.LEAudio, profile.PolicyForbidden); err != nil {
		t.Fatalf("SetConnectionPolicy() error = %v", err)
	}

	policy, err := repo.ConnectionPolicy(ctx, testAddr, profile.LEAudio)
	if err != nil {
		t.Fatalf("ConnectionPolicy() error = %v", err)
	}
	if policy != profile.PolicyForbidden {
		t.Errorf("policy = %v, want forbidden", policy)
	}

	// Policies are per-profile: the other profile is untouched.
	policy, err = repo.ConnectionPolicy(ctx, testAddr, profile.A2DP)
	if err != nil {
		t.Fatalf("ConnectionPolicy() error = %v", err)
	}
	if policy != profile.PolicyUnknown {
		t.Errorf("a2dp policy = %v, want unknown", policy)
	}
}

func TestSetConnectionPolicy_Replaces(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.SetConnectionPolicy(ctx, testAddr, profile.A2DP, profile.PolicyForbidden); err != nil {
		t.Fatalf("SetConnectionPolicy() error = %v", err)
	}
	if err := repo.SetConnectionPolicy(ctx, testAddr, profile.A2DP, profile.PolicyAllowed); err != nil {
		t.Fatalf("SetConnectionPolicy() error = %v", err)
	}

	policy, _ := repo.ConnectionPolicy(ctx, testAddr, profile.A2DP)
	if policy != profile.PolicyAllowed {
		t.Errorf("policy = %v, want allowed", policy)
	}
}

func TestSetConnectionPolicy_Validation(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.SetConnectionPolicy(ctx, "", profile.A2DP, profile.PolicyAllowed); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("empty address error = %v, want ErrInvalidAddress", err)
	}
	if err := repo.SetConnectionPolicy(ctx, testAddr, profile.ID("opp"), profile.PolicyAllowed); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("unknown profile error = %v, want ErrInvalidProfile", err)
	}
}

func TestPreferredProfiles_Default(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	prefs, err := repo.PreferredProfiles(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("PreferredProfiles() error = %v", err)
	}
	if prefs != (Preferences{}) {
		t.Errorf("prefs = %+v, want zero value", prefs)
	}
}

func TestSetPreferredProfiles_FanOut(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	members := []string{"AA:BB:CC:DD:EE:01", "AA:BB:CC:DD:EE:02"}
	prefs := Preferences{Output: profile.LEAudio, Duplex: profile.Headset}

	if err := repo.SetPreferredProfiles(ctx, members, prefs); err != nil {
		t.Fatalf("SetPreferredProfiles() error = %v", err)
	}

	for _, addr := range members {
		got, err := repo.PreferredProfiles(ctx, addr)
		if err != nil {
			t.Fatalf("PreferredProfiles(%s) error = %v", addr, err)
		}
		if got != prefs {
			t.Errorf("prefs for %s = %+v, want %+v", addr, got, prefs)
		}
	}
}

func TestSetPreferredProfiles_PartialBundle(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.SetPreferredProfiles(ctx, []string{testAddr}, Preferences{Output: profile.A2DP}); err != nil {
		t.Fatalf("SetPreferredProfiles() error = %v", err)
	}

	got, _ := repo.PreferredProfiles(ctx, testAddr)
	if got.Output != profile.A2DP || got.Duplex != "" {
		t.Errorf("prefs = %+v, want output-only bundle", got)
	}
}

func TestSetPreferredProfiles_Validation(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.SetPreferredProfiles(ctx, nil, Preferences{}); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("empty member list error = %v, want ErrInvalidAddress", err)
	}
	err := repo.SetPreferredProfiles(ctx, []string{testAddr}, Preferences{Output: profile.ID("opp")})
	if !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("unknown profile error = %v, want ErrInvalidProfile", err)
	}
}

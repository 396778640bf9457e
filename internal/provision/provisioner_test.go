package provision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/meshresearch/cilogon-rp/internal/auth"
	"github.com/meshresearch/cilogon-rp/internal/config"
	"github.com/meshresearch/cilogon-rp/internal/directory"
	"github.com/meshresearch/cilogon-rp/internal/user"
)

func testProvisioner(store user.Store) *Provisioner {
	return New(store, config.LoginConfig{
		DefaultRole:       "subscriber",
		UsernameFallback:  "cilogon_user",
		MaxUsernameProbes: 100,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func aliceProfile() *directory.Profile {
	return &directory.Profile{
		Username:  "alice",
		Email:     "alice@example.edu",
		FirstName: "Alice",
		LastName:  "Liddell",
		Name:      "Alice Liddell",
		Sub:       "abc123",
		Iss:       "https://cilogon.org",
		EPPN:      "alice@example.edu",
	}
}

func TestProvisionCreatesUser(t *testing.T) {
	ctx := context.Background()
	store := user.NewMemoryStore()
	p := testProvisioner(store)

	created, err := p.Provision(ctx, aliceProfile())
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	if created.Username != "alice" {
		t.Errorf("Username = %q, want %q", created.Username, "alice")
	}
	if created.Role != "subscriber" {
		t.Errorf("Role = %q, want configured default", created.Role)
	}
	if created.Sub != "abc123" || created.Iss != "https://cilogon.org" || created.EPPN != "alice@example.edu" {
		t.Errorf("identity metadata not synced: %+v", created)
	}
	if !strings.HasPrefix(created.PasswordHash, "$2") {
		t.Errorf("password hash does not look like bcrypt: %q", created.PasswordHash)
	}
}

func TestProvisionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := user.NewMemoryStore()
	p := testProvisioner(store)

	first, err := p.Provision(ctx, aliceProfile())
	if err != nil {
		t.Fatalf("first Provision failed: %v", err)
	}
	second, err := p.Provision(ctx, aliceProfile())
	if err != nil {
		t.Fatalf("second Provision failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("second Provision returned user %d, want %d", second.ID, first.ID)
	}
	if exists, _ := store.UsernameExists(ctx, "alice_1"); exists {
		t.Error("second Provision created a duplicate account")
	}
}

func TestProvisionUsernameCollision(t *testing.T) {
	ctx := context.Background()
	store := user.NewMemoryStore()
	p := testProvisioner(store)

	// An unrelated local "alice" already linked to a different subject.
	if _, err := store.Create(ctx, &user.LocalUser{
		Username:     "alice",
		Email:        "other-alice@elsewhere.edu",
		Role:         "subscriber",
		PasswordHash: "x",
		Sub:          "different-sub",
	}); err != nil {
		t.Fatalf("seed Create failed: %v", err)
	}

	created, err := p.Provision(ctx, aliceProfile())
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if created.Username != "alice_1" {
		t.Errorf("Username = %q, want %q", created.Username, "alice_1")
	}

	// The unrelated account keeps its own identity metadata.
	other, err := store.ByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("ByUsername failed: %v", err)
	}
	if other.Sub != "different-sub" {
		t.Errorf("unrelated account's sub was overwritten: %q", other.Sub)
	}
}

func TestProvisionReusesSuffixedAccountOnRelogin(t *testing.T) {
	ctx := context.Background()
	store := user.NewMemoryStore()
	p := testProvisioner(store)

	// "alice" is taken by someone else, so the first login lands on alice_1.
	if _, err := store.Create(ctx, &user.LocalUser{
		Username:     "alice",
		Email:        "other-alice@elsewhere.edu",
		Role:         "subscriber",
		PasswordHash: "x",
		Sub:          "different-sub",
	}); err != nil {
		t.Fatalf("seed Create failed: %v", err)
	}

	first, err := p.Provision(ctx, aliceProfile())
	if err != nil {
		t.Fatalf("first Provision failed: %v", err)
	}
	if first.Username != "alice_1" {
		t.Fatalf("Username = %q, want %q", first.Username, "alice_1")
	}

	second, err := p.Provision(ctx, aliceProfile())
	if err != nil {
		t.Fatalf("second Provision failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("relogin returned user %d, want %d", second.ID, first.ID)
	}
	if exists, _ := store.UsernameExists(ctx, "alice_2"); exists {
		t.Error("relogin created another suffixed account")
	}
}

func TestProvisionUsernameDerivation(t *testing.T) {
	tests := []struct {
		name    string
		profile *directory.Profile
		want    string
	}{
		{
			"from email local part",
			&directory.Profile{Email: "bob@example.edu", Sub: "s1", Iss: "i"},
			"bob",
		},
		{
			"fallback literal",
			&directory.Profile{Sub: "s2", Iss: "i", Email: "@"},
			"cilogon_user",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := user.NewMemoryStore()
			p := testProvisioner(store)

			created, err := p.Provision(context.Background(), tc.profile)
			if err != nil {
				t.Fatalf("Provision failed: %v", err)
			}
			if created.Username != tc.want {
				t.Errorf("Username = %q, want %q", created.Username, tc.want)
			}
		})
	}
}

func TestProvisionBoundedProbeFallsBackToRandomSuffix(t *testing.T) {
	ctx := context.Background()
	store := user.NewMemoryStore()
	p := New(store, config.LoginConfig{
		DefaultRole:       "subscriber",
		UsernameFallback:  "cilogon_user",
		MaxUsernameProbes: 2,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for i, name := range []string{"alice", "alice_1", "alice_2"} {
		if _, err := store.Create(ctx, &user.LocalUser{
			Username:     name,
			Email:        name + "@taken.edu",
			Role:         "subscriber",
			PasswordHash: "x",
			Sub:          "taken-" + string(rune('a'+i)),
		}); err != nil {
			t.Fatalf("seed Create failed: %v", err)
		}
	}

	created, err := p.Provision(ctx, aliceProfile())
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	if !strings.HasPrefix(created.Username, "alice_") {
		t.Fatalf("Username = %q, want alice_ prefix", created.Username)
	}
	suffix := strings.TrimPrefix(created.Username, "alice_")
	if suffix == "1" || suffix == "2" || len(suffix) != 6 {
		t.Errorf("suffix = %q, want a 6-character random token", suffix)
	}
}

func TestProvisionDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := user.NewMemoryStore()
	p := testProvisioner(store)

	// Same email already taken by a different username.
	if _, err := store.Create(ctx, &user.LocalUser{
		Username:     "someone_else",
		Email:        "alice@example.edu",
		Role:         "subscriber",
		PasswordHash: "x",
		Sub:          "other",
	}); err != nil {
		t.Fatalf("seed Create failed: %v", err)
	}

	_, err := p.Provision(ctx, aliceProfile())
	if !errors.Is(err, auth.ErrProvisioning) {
		t.Errorf("Provision error = %v, want ErrProvisioning", err)
	}
}

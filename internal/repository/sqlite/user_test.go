package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sakif/account-portal/internal/apperror"
	"github.com/sakif/account-portal/internal/model"
)

// newTestDB returns a fresh in-memory database closed at the end of the test.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testUser(username string) *model.User {
	return &model.User{
		Username:     username,
		PasswordHash: "$2a$04$notarealhashnotarealhashnotarealhashnotarealhashnot",
		FirstName:    "Test",
		LastName:     "User",
		Email:        username + "@example.com",
		BirthDate:    "1990-01-01",
		ImageRef:     "1700000000000_" + username + ".png",
	}
}

// createTestUser creates a user and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, username string) *model.User {
	t.Helper()
	user := testUser(username)
	if err := db.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func countUsers(t *testing.T, db *DB, username string) int {
	t.Helper()
	var n int
	err := db.conn.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&n)
	if err != nil {
		t.Fatalf("counting users: %v", err)
	}
	return n
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestUserCreate(t *testing.T) {
	db := newTestDB(t)

	user := testUser("alice")
	if err := db.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if user.ID == "" {
		t.Error("Create() did not set user.ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("Create() did not set user.CreatedAt")
	}
}

func TestUserCreate_DuplicateUsername(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "alice")

	err := db.Create(context.Background(), testUser("alice"))
	if err == nil {
		t.Fatal("Create() should fail for a duplicate username")
	}
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Create() error = %v, want ErrConflict", err)
	}
	if n := countUsers(t, db, "alice"); n != 1 {
		t.Errorf("rows for alice = %d, want 1", n)
	}
}

func TestUserCreate_UsernameIsCaseSensitive(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "alice")

	if err := db.Create(context.Background(), testUser("Alice")); err != nil {
		t.Fatalf("Create() for a differently-cased username error = %v", err)
	}
}

// TestUserCreate_ConcurrentDuplicates races several registrations for the
// same username against a file-backed database. Exactly one must win.
func TestUserCreate_ConcurrentDuplicates(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "race.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Create(context.Background(), testUser("racer"))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperror.ErrConflict):
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	if len(others) > 0 {
		t.Fatalf("unexpected errors: %v", others)
	}
	if successes != 1 {
		t.Errorf("successes = %d, want 1", successes)
	}
	if conflicts != attempts-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, attempts-1)
	}
	if n := countUsers(t, db, "racer"); n != 1 {
		t.Errorf("rows for racer = %d, want 1", n)
	}
}

// =========================================================================
// GET BY USERNAME TESTS
// =========================================================================

func TestUserGetByUsername(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "bob")

	found, err := db.GetByUsername(context.Background(), "bob")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}

	if found.ID != created.ID {
		t.Errorf("ID = %q, want %q", found.ID, created.ID)
	}
	if found.PasswordHash != created.PasswordHash {
		t.Errorf("PasswordHash = %q, want %q", found.PasswordHash, created.PasswordHash)
	}
	if found.ImageRef != created.ImageRef {
		t.Errorf("ImageRef = %q, want %q", found.ImageRef, created.ImageRef)
	}
	if found.Email != "bob@example.com" {
		t.Errorf("Email = %q, want %q", found.Email, "bob@example.com")
	}
	if found.BirthDate != "1990-01-01" {
		t.Errorf("BirthDate = %q, want %q", found.BirthDate, "1990-01-01")
	}
}

func TestUserGetByUsername_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByUsername(context.Background(), "nobody")
	if err == nil {
		t.Fatal("GetByUsername() should return an error for an unknown username")
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByUsername() error = %v, want ErrNotFound", err)
	}
}

func TestUserGetByUsername_ExactMatchOnly(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "carol")

	for _, name := range []string{"Carol", "carol ", "caro", "%"} {
		if _, err := db.GetByUsername(context.Background(), name); !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("GetByUsername(%q) error = %v, want ErrNotFound", name, err)
		}
	}
}

func TestNew_MigrationIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.db")

	first, err := New(path)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	createTestUser(t, first, "dave")
	first.Close()

	second, err := New(path)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer second.Close()

	if _, err := second.GetByUsername(context.Background(), "dave"); err != nil {
		t.Errorf("user did not survive reopen: %v", err)
	}
}

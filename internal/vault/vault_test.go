package vault

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/gander-tools/owntracks-dataviewer/internal/store"
)

func testCredentials() Credentials {
	return Credentials{
		Username:        "viewer",
		Password:        "db-secret",
		DecryptPassword: "payload-secret",
		URL:             "ws://127.0.0.1:8000/rpc",
		Namespace:       "owntracks",
		Database:        "owntracks",
		Table:           "locations",
	}
}

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db.Slot("credentials"))
}

func TestVault_SaveLoadRoundtrip(t *testing.T) {
	v := newTestVault(t)
	want := testCredentials()

	if err := v.Save(want, "master"); err != nil {
		t.Fatal(err)
	}
	if !v.Unlocked() {
		t.Fatal("vault should be unlocked after save")
	}

	got, err := v.Load("master")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestVault_LoadSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	want := testCredentials()
	if err := New(db.Slot("credentials")).Save(want, "master"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db2, err := store.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db2.Close()

	got, err := New(db2.Slot("credentials")).Load("master")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestVault_LoadWrongPassword(t *testing.T) {
	v := newTestVault(t)
	if err := v.Save(testCredentials(), "master"); err != nil {
		t.Fatal(err)
	}

	_, err := v.Load("not-master")
	if !errors.Is(err, ErrIncorrectPassword) {
		t.Fatalf("expected ErrIncorrectPassword, got %v", err)
	}
}

func TestVault_LoadNoStoredCredentials(t *testing.T) {
	v := newTestVault(t)

	_, err := v.Load("master")
	if !errors.Is(err, ErrNoStoredCredentials) {
		t.Fatalf("expected ErrNoStoredCredentials, got %v", err)
	}
}

func TestVault_FailedLoadKeepsPriorState(t *testing.T) {
	v := newTestVault(t)
	want := testCredentials()
	if err := v.Save(want, "master"); err != nil {
		t.Fatal(err)
	}

	if _, err := v.Load("not-master"); err == nil {
		t.Fatal("expected load failure")
	}
	if !v.Unlocked() {
		t.Fatal("failed load should not lock an unlocked vault")
	}
	got, err := v.Credentials()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("failed load mutated credentials: %+v", got)
	}
}

func TestVault_Clear(t *testing.T) {
	v := newTestVault(t)
	if err := v.Save(testCredentials(), "master"); err != nil {
		t.Fatal(err)
	}

	if err := v.Clear(); err != nil {
		t.Fatal(err)
	}
	if v.Unlocked() {
		t.Fatal("vault should be locked after clear")
	}
	if v.HasStoredCredentials() {
		t.Fatal("blob should be gone after clear")
	}
	if _, err := v.Load("master"); !errors.Is(err, ErrNoStoredCredentials) {
		t.Fatalf("expected ErrNoStoredCredentials after clear, got %v", err)
	}

	// Idempotent.
	if err := v.Clear(); err != nil {
		t.Fatal(err)
	}
}

func TestVault_CredentialsWhileLocked(t *testing.T) {
	v := newTestVault(t)

	_, err := v.Credentials()
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestVault_HasStoredCredentials(t *testing.T) {
	v := newTestVault(t)
	if v.HasStoredCredentials() {
		t.Fatal("fresh vault should have no stored credentials")
	}

	if err := v.Save(testCredentials(), "master"); err != nil {
		t.Fatal(err)
	}
	if !v.HasStoredCredentials() {
		t.Fatal("expected stored credentials after save")
	}
}

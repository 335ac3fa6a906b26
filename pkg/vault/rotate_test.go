package vault

import (
	"bytes"
	"errors"
	"testing"

	"github.com/hifurukawa/vaultctl/pkg/store"
)

func TestRotateMaster(t *testing.T) {
	v := newReadyVault(t, "old master")
	seed := []struct{ s, u, p string }{
		{"github", "alice", "s3cret"},
		{"aws", "bob", "hunter2"},
		{"gitlab", "carol", "pa55"},
	}
	for _, c := range seed {
		if err := v.Add(c.s, c.u, c.p, "old master"); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	if err := v.RotateMaster("old master", "new master"); err != nil {
		t.Fatalf("RotateMaster failed: %v", err)
	}

	// The old master no longer authenticates anywhere.
	if _, err := v.Get("github", "alice", "old master"); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("old master still works: %v", err)
	}
	// Every password is intact under the new master.
	for _, c := range seed {
		got, err := v.Get(c.s, c.u, "new master")
		if err != nil {
			t.Fatalf("Get %s/%s failed: %v", c.s, c.u, err)
		}
		if got != c.p {
			t.Errorf("%s/%s: got %q, want %q", c.s, c.u, got, c.p)
		}
	}
}

func TestRotateWrongOldMaster(t *testing.T) {
	v := newReadyVault(t, "master")
	if err := v.Add("github", "alice", "pw", "master"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := v.RotateMaster("wrong", "new"); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if _, err := v.Get("github", "alice", "master"); err != nil {
		t.Errorf("failed rotation damaged the store: %v", err)
	}
}

func TestRotateEmptyNewMaster(t *testing.T) {
	v := newReadyVault(t, "master")
	if err := v.RotateMaster("master", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestRotateSamePasswordIsNoOp(t *testing.T) {
	v := newReadyVault(t, "master")
	if err := v.Add("github", "alice", "pw", "master"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	before, err := snapshot(v.store)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	if err := v.RotateMaster("master", "master"); err != nil {
		t.Fatalf("RotateMaster failed: %v", err)
	}

	after, err := snapshot(v.store)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if !before.equal(after) {
		t.Error("no-op rotation rewrote the store")
	}
}

func TestRotateAtomicOnFailure(t *testing.T) {
	v := newReadyVault(t, "old master")
	seed := []struct{ s, u, p string }{
		{"a", "u1", "p1"},
		{"b", "u2", "p2"},
		{"c", "u3", "p3"},
		{"d", "u4", "p4"},
	}
	for _, c := range seed {
		if err := v.Add(c.s, c.u, c.p, "old master"); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	before, err := snapshot(v.store)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	// Fail after half the envelopes have been rewritten inside the transaction.
	v.rotateCheckpoint = func(updated int) error {
		if updated == 2 {
			return errors.New("simulated crash")
		}
		return nil
	}
	if err := v.RotateMaster("old master", "new master"); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	v.rotateCheckpoint = nil

	// Nothing was committed: the master row and every envelope are unchanged.
	after, err := snapshot(v.store)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if !before.equal(after) {
		t.Error("failed rotation left a partially rewritten store")
	}

	if _, err := v.Get("a", "u1", "new master"); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("new master works after failed rotation: %v", err)
	}
	for _, c := range seed {
		got, err := v.Get(c.s, c.u, "old master")
		if err != nil {
			t.Fatalf("Get %s/%s with old master failed: %v", c.s, c.u, err)
		}
		if got != c.p {
			t.Errorf("%s/%s: got %q, want %q", c.s, c.u, got, c.p)
		}
	}
}

// storeSnapshot captures the master row and all envelopes for comparison.
type storeSnapshot struct {
	master store.Master
	creds  []store.Credential
}

func snapshot(s *store.Store) (storeSnapshot, error) {
	m, err := s.GetMaster()
	if err != nil {
		return storeSnapshot{}, err
	}
	creds, err := s.AllCredentials()
	if err != nil {
		return storeSnapshot{}, err
	}
	return storeSnapshot{master: m, creds: creds}, nil
}

func (a storeSnapshot) equal(b storeSnapshot) bool {
	if a.master.PasswordHash != b.master.PasswordHash || !bytes.Equal(a.master.Salt, b.master.Salt) {
		return false
	}
	if len(a.creds) != len(b.creds) {
		return false
	}
	for i := range a.creds {
		if a.creds[i].Service != b.creds[i].Service ||
			a.creds[i].Username != b.creds[i].Username ||
			!bytes.Equal(a.creds[i].Envelope, b.creds[i].Envelope) {
			return false
		}
	}
	return true
}

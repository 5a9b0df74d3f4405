package store

import (
	"errors"
	"testing"
)

func TestFleetLookup(t *testing.T) {
	a := NewInstance("instance-1", "db-1", nil)
	b := NewInstance("instance-2", "db-2", nil)
	fleet := NewFleetFromInstances(a, b)

	got, err := fleet.Get("instance-2")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != b {
		t.Error("Get returned wrong instance")
	}

	got, err = fleet.GetByHost("db-1")
	if err != nil {
		t.Fatalf("GetByHost failed: %v", err)
	}
	if got != a {
		t.Error("GetByHost returned wrong instance")
	}
}

func TestFleetGetUnknown(t *testing.T) {
	fleet := NewFleetFromInstances(NewInstance("instance-1", "db-1", nil))

	_, err := fleet.Get("instance-9")
	if !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("Expected ErrInstanceNotFound, got %v", err)
	}

	_, err = fleet.GetByHost("db-9")
	if !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("Expected ErrInstanceNotFound for host, got %v", err)
	}
}

func TestFleetAddReplaces(t *testing.T) {
	a := NewInstance("instance-1", "db-1", nil)
	fleet := NewFleetFromInstances(a)

	replacement := NewInstance("instance-1", "db-1", nil)
	fleet.Add(replacement)

	got, err := fleet.Get("instance-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != replacement {
		t.Error("Add should replace the existing instance")
	}

	ids := fleet.IDs()
	if len(ids) != 1 {
		t.Errorf("Expected 1 instance after replacement, got %d", len(ids))
	}
}

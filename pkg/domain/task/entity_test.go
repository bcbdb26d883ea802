package task

import (
	"testing"
	"time"

	"github.com/taskforge/api/pkg/domain/shared"
)

func TestNewTask(t *testing.T) {
	projectID := shared.NewID()
	orgID := shared.NewID()
	creator := shared.NewID()

	tk, err := NewTask(projectID, orgID, "Ship the launch page", creator)
	if err != nil {
		t.Fatalf("NewTask() unexpected error: %v", err)
	}
	if tk.Status() != StatusOpen {
		t.Errorf("Status = %v, want %v", tk.Status(), StatusOpen)
	}

	if _, err := NewTask(shared.ID{}, orgID, "x", creator); err == nil {
		t.Error("NewTask() should reject zero project ID")
	}
	if _, err := NewTask(projectID, orgID, "", creator); err == nil {
		t.Error("NewTask() should reject empty title")
	}
}

func TestTask_UpdateStatus(t *testing.T) {
	tk, _ := NewTask(shared.NewID(), shared.NewID(), "Ship it", shared.NewID())

	if err := tk.UpdateStatus(StatusDone); err != nil {
		t.Fatalf("UpdateStatus() unexpected error: %v", err)
	}
	if tk.Status() != StatusDone {
		t.Errorf("Status = %v, want %v", tk.Status(), StatusDone)
	}
	if err := tk.UpdateStatus(Status("archived")); err == nil {
		t.Error("UpdateStatus() should reject unknown status")
	}
}

func TestTask_Lifecycle(t *testing.T) {
	tk, _ := NewTask(shared.NewID(), shared.NewID(), "Ship it", shared.NewID())

	stamp := time.Now().UTC()
	if err := tk.SoftDelete(stamp); err != nil {
		t.Fatalf("SoftDelete() unexpected error: %v", err)
	}
	if got := tk.DeletedAt(); got == nil || !got.Equal(stamp) {
		t.Errorf("DeletedAt = %v, want %v", got, stamp)
	}
	if err := tk.SoftDelete(stamp); err == nil {
		t.Error("second SoftDelete() should fail")
	}
	if err := tk.Recover(); err != nil {
		t.Fatalf("Recover() unexpected error: %v", err)
	}
	if err := tk.Recover(); err == nil {
		t.Error("Recover() on active task should fail")
	}
}

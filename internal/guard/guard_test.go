package guard

import "testing"

type fakeCoord struct {
	pid          int
	shouldExit   bool
	allowRemoves bool
	allowReads   bool
}

func (f *fakeCoord) MasterPID() int                   { return f.pid }
func (f *fakeCoord) WorkersShouldExit() bool           { return f.shouldExit }
func (f *fakeCoord) AllowRemoves() bool                { return f.allowRemoves }
func (f *fakeCoord) AllowDependencyTableReads() bool   { return f.allowReads }

func TestAssertMasterPanicsForWorker(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for worker calling master-only op")
		}
	}()
	AssertMaster(Role{IsMaster: false, Pid: 123})
}

func TestAssertMasterOKForMaster(t *testing.T) {
	AssertMaster(Role{IsMaster: true})
}

func TestAssertAllowRemoves(t *testing.T) {
	c := &fakeCoord{allowRemoves: false}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when allow_removes is false")
		}
	}()
	AssertAllowRemoves(c)
}

func TestCheckShouldExit(t *testing.T) {
	c := &fakeCoord{shouldExit: true}
	SetWorkerCanExit(true)
	defer SetWorkerCanExit(true)

	if err := CheckShouldExit(c); err != ErrWorkerShouldExit {
		t.Fatalf("CheckShouldExit = %v, want ErrWorkerShouldExit", err)
	}

	SetWorkerCanExit(false)
	if err := CheckShouldExit(c); err != nil {
		t.Fatalf("CheckShouldExit with exit disabled = %v, want nil", err)
	}
}

func TestAssertWritesEnabled(t *testing.T) {
	SetAllowHashtableWritesByCurrentProcess(true)
	defer SetAllowHashtableWritesByCurrentProcess(true)
	AssertWritesEnabled() // must not panic

	SetAllowHashtableWritesByCurrentProcess(false)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when writes are disabled")
		}
	}()
	AssertWritesEnabled()
}

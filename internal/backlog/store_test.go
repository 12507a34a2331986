package backlog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test backlog store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type namedStore struct {
	name  string
	store Store
}

func testStores(t *testing.T) []namedStore {
	t.Helper()
	return []namedStore{
		{name: "memory", store: NewMemoryStore()},
		{name: "sqlite", store: newTestSQLiteStore(t)},
	}
}

func TestStore_GetUnknownSessionIsEmpty(t *testing.T) {
	for _, ns := range testStores(t) {
		t.Run(ns.name, func(t *testing.T) {
			tasks, err := ns.store.Get(context.Background(), "missing")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if tasks == nil {
				t.Fatal("Get returned nil slice, want empty")
			}
			if len(tasks) != 0 {
				t.Errorf("got %d tasks, want 0", len(tasks))
			}
		})
	}
}

func TestStore_UpdateReplacesWholeList(t *testing.T) {
	ctx := context.Background()
	created := time.Unix(1700000000, 0)

	for _, ns := range testStores(t) {
		t.Run(ns.name, func(t *testing.T) {
			first := []Task{
				{ID: "t1", Content: "write docs", Status: StatusPending, Priority: PriorityHigh, CreatedAt: created},
				{ID: "t2", Content: "review", Status: StatusCompleted, Priority: PriorityMedium},
			}
			if err := ns.store.Update(ctx, "s1", first); err != nil {
				t.Fatalf("Update failed: %v", err)
			}

			second := []Task{
				{ID: "t2", Content: "review", Status: StatusCompleted, Priority: PriorityMedium},
				{ID: "auto-1", Content: "follow up", Status: StatusPending, Priority: PriorityLow},
			}
			if err := ns.store.Update(ctx, "s1", second); err != nil {
				t.Fatalf("Update failed: %v", err)
			}

			got, err := ns.store.Get(ctx, "s1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("got %d tasks, want 2", len(got))
			}
			if got[0].ID != "t2" || got[1].ID != "auto-1" {
				t.Errorf("order = [%s %s], want [t2 auto-1]", got[0].ID, got[1].ID)
			}
			if got[1].Priority != PriorityLow {
				t.Errorf("Priority = %s, want %s", got[1].Priority, PriorityLow)
			}
		})
	}
}

func TestStore_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	for _, ns := range testStores(t) {
		t.Run(ns.name, func(t *testing.T) {
			_ = ns.store.Update(ctx, "a", []Task{{ID: "t1", Status: StatusPending, Priority: PriorityLow}})
			_ = ns.store.Update(ctx, "b", []Task{{ID: "t2", Status: StatusPending, Priority: PriorityLow}})

			got, err := ns.store.Get(ctx, "a")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if len(got) != 1 || got[0].ID != "t1" {
				t.Errorf("session a = %+v, want only t1", got)
			}
		})
	}
}

func TestStore_EmptySessionRejected(t *testing.T) {
	ctx := context.Background()
	for _, ns := range testStores(t) {
		t.Run(ns.name, func(t *testing.T) {
			if _, err := ns.store.Get(ctx, " "); !errors.Is(err, ErrSessionRequired) {
				t.Errorf("Get error = %v, want ErrSessionRequired", err)
			}
			if err := ns.store.Update(ctx, "", nil); !errors.Is(err, ErrSessionRequired) {
				t.Errorf("Update error = %v, want ErrSessionRequired", err)
			}
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	tasks := []Task{{ID: "t1", Content: "original"}}
	_ = store.Update(ctx, "s1", tasks)
	tasks[0].Content = "mutated by caller"

	got, _ := store.Get(ctx, "s1")
	got[0].Content = "mutated by reader"

	again, _ := store.Get(ctx, "s1")
	if again[0].Content != "original" {
		t.Errorf("Content = %q, want %q", again[0].Content, "original")
	}
}

func TestSQLiteStore_CreatedAtRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)
	created := time.Unix(1700000000, 500)

	_ = store.Update(ctx, "s1", []Task{{ID: "t1", CreatedAt: created}, {ID: "t2"}})

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got[0].CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got[0].CreatedAt, created)
	}
	if !got[1].CreatedAt.IsZero() {
		t.Errorf("CreatedAt = %v, want zero", got[1].CreatedAt)
	}
}

func TestSQLiteStore_ListSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	_ = store.Update(ctx, "b", []Task{{ID: "t1"}})
	_ = store.Update(ctx, "a", []Task{{ID: "t2"}})
	_ = store.Update(ctx, "empty", nil)

	ids, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("ListSessions = %v, want [a b]", ids)
	}
}

func TestOpenSQLite_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "backlog.db")

	store, err := OpenSQLite(DriverSQLite, path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	_ = store.Update(context.Background(), "s1", []Task{{ID: "t1"}})
	_ = store.Close()

	reopened, err := OpenSQLite(DriverSQLite, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d tasks after reopen, want 1", len(got))
	}
}

func TestOpenSQLite_UnknownDriver(t *testing.T) {
	if _, err := OpenSQLite("postgres", ":memory:"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	jasimID = "123456789012345"
	saraID  = "222222222222222"
)

func newTestService(t *testing.T, records ...Record) (*Service, *memStore) {
	t.Helper()
	store := newMemStore(records...)
	svc := NewService(store, WithAuditRecorder(&captureAudit{}))
	if _, err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	return svc, store
}

func strPtr(s string) *string { return &s }

func ids(records []Record) []string {
	var out []string
	for _, r := range records {
		out = append(out, r.ExternalID)
	}
	return out
}

func TestService_UpsertThenLookup(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Upsert(ctx, "Jasim Al-Salmi", "c-61", jasimID)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if rec.Name != "jasim al salmi" || rec.Code != "c-61" {
		t.Errorf("Upsert() = %+v, want canonical name and code", rec)
	}

	if got := svc.Lookup(ctx, "جاسم"); len(got) != 0 {
		t.Errorf("Lookup(unrelated) = %v, want empty", got)
	}
	for _, q := range []string{"c-61", "jasim al salmi"} {
		got := svc.Lookup(ctx, q)
		if len(got) != 1 || got[0].ExternalID != jasimID {
			t.Errorf("Lookup(%q) = %v, want one record with %s", q, got, jasimID)
		}
	}
	if got := svc.Lookup(ctx, "Jasim Al-Salmi c-61"); len(got) != 1 {
		t.Errorf("Lookup(phrase + code) = %v, want one deduplicated record", got)
	}
}

func TestService_UpsertValidation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name, rname, id string
		wantErr         error
	}{
		{"short id", "sara", "123", ErrInvalidIdentifier},
		{"letters in id", "sara", "12345678901234a", ErrInvalidIdentifier},
		{"empty name", " _ ", saraID, ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upsert(ctx, tt.rname, "c-1", tt.id)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Upsert() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if n := len(store.snapshot()); n != 0 {
		t.Errorf("store has %d rows after rejected upserts, want 0", n)
	}
}

func TestService_UpsertCodeConflictLastWriterWins(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "sara", "c-1", saraID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Upsert(ctx, "noura", "c-1", "333333333333333"); err != nil {
		t.Fatal(err)
	}

	got := svc.Lookup(ctx, "c-1")
	if len(got) != 1 || got[0].Name != "noura" {
		t.Errorf("Lookup(c-1) = %v, want noura", got)
	}
	rows := store.snapshot()
	if rows["sara"].Code != "" {
		t.Errorf("store sara.Code = %q, want empty", rows["sara"].Code)
	}
	if sara := svc.Lookup(ctx, "sara"); len(sara) != 1 || sara[0].HasCode() {
		t.Errorf("Lookup(sara) = %v, want record without code", sara)
	}
}

func TestService_FindByKeyRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "Sara Faisal", "C 2", saraID); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"Sara Faisal", "sara_faisal", "c2", "C 2"} {
		rec, err := svc.FindByKey(ctx, key)
		if err != nil {
			t.Errorf("FindByKey(%q) error = %v", key, err)
			continue
		}
		if rec.ExternalID != saraID {
			t.Errorf("FindByKey(%q).ExternalID = %q", key, rec.ExternalID)
		}
	}
	if _, err := svc.FindByKey(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByKey(nobody) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.FindByKey(ctx, "   "); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByKey(blank) error = %v, want ErrNotFound", err)
	}
}

func TestService_EditCode(t *testing.T) {
	svc, _ := newTestService(t, Record{Name: "jasim al salmi", Code: "c-61", ExternalID: jasimID})
	ctx := context.Background()

	res, err := svc.Edit(ctx, "c-61", EditRequest{Code: strPtr("c-70")})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if res.After.Name != "jasim al salmi" || res.After.ExternalID != jasimID {
		t.Errorf("Edit() changed untouched fields: %+v", res.After)
	}
	if res.Before.Code != "c-61" || res.After.Code != "c-70" {
		t.Errorf("Edit() before/after codes = %q/%q", res.Before.Code, res.After.Code)
	}
	if got := svc.Lookup(ctx, "c-70"); len(got) != 1 {
		t.Errorf("Lookup(c-70) = %v, want one record", got)
	}
	if got := svc.Lookup(ctx, "c-61"); len(got) != 0 {
		t.Errorf("Lookup(c-61) = %v, want empty", got)
	}
}

func TestService_EditInvalidIDLeavesStoreUntouched(t *testing.T) {
	orig := Record{Name: "jasim al salmi", Code: "c-61", ExternalID: jasimID}
	svc, store := newTestService(t, orig)
	ctx := context.Background()

	_, err := svc.Edit(ctx, "c-61", EditRequest{ExternalID: strPtr("abc"), Code: strPtr("c-99")})
	if !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("Edit() error = %v, want ErrInvalidIdentifier", err)
	}

	rec, err := svc.FindByKey(ctx, "jasim al salmi")
	if err != nil {
		t.Fatal(err)
	}
	if rec != orig {
		t.Errorf("record after failed edit = %+v, want %+v", rec, orig)
	}
	if len(store.snapshot()) != 1 {
		t.Error("store row count changed")
	}
}

func TestService_EditRejectsStoredInvalidID(t *testing.T) {
	orig := Record{Name: "ahmed", ExternalID: "123"}
	svc, store := newTestService(t, orig)
	ctx := context.Background()

	_, err := svc.Edit(ctx, "ahmed", EditRequest{Code: strPtr("c-9")})
	if !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("Edit() error = %v, want ErrInvalidIdentifier", err)
	}

	rows := store.snapshot()
	if len(rows) != 1 || rows["ahmed"] != orig {
		t.Errorf("store after failed edit = %+v, want only %+v", rows, orig)
	}
	if got := svc.Lookup(ctx, "c-9"); len(got) != 0 {
		t.Errorf("Lookup(c-9) = %v, want empty", got)
	}

	res, err := svc.Edit(ctx, "ahmed", EditRequest{ExternalID: strPtr("111111111111111"), Code: strPtr("c-9")})
	if err != nil {
		t.Fatalf("Edit() with a valid replacement ID error = %v", err)
	}
	if res.After.ExternalID != "111111111111111" || res.After.Code != "c-9" {
		t.Errorf("Edit() after = %+v", res.After)
	}
}

func TestService_EditRename(t *testing.T) {
	svc, store := newTestService(t, Record{Name: "sara", Code: "c-2", ExternalID: saraID})
	ctx := context.Background()

	res, err := svc.Edit(ctx, "sara", EditRequest{Name: strPtr("Sara_Faisal"), Code: strPtr("  ")})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if res.After.Name != "sara faisal" || res.After.Code != "c-2" {
		t.Errorf("Edit() after = %+v", res.After)
	}
	if _, ok := store.snapshot()["sara"]; ok {
		t.Error("old name still in store")
	}
	if got := svc.Lookup(ctx, "sara"); len(got) != 0 {
		t.Errorf("Lookup(old name) = %v, want empty", got)
	}
	if got := svc.Lookup(ctx, "c-2"); len(got) != 1 || got[0].Name != "sara faisal" {
		t.Errorf("Lookup(c-2) = %v", got)
	}
}

func TestService_EditNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Edit(context.Background(), "ghost", EditRequest{Code: strPtr("x")})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Edit() error = %v, want ErrNotFound", err)
	}
}

func TestService_DeleteOne(t *testing.T) {
	svc, store := newTestService(t,
		Record{Name: "sara", Code: "c-2", ExternalID: saraID},
		Record{Name: "noura", ExternalID: "333333333333333"},
	)
	ctx := context.Background()

	rec, err := svc.DeleteOne(ctx, "C-2")
	if err != nil {
		t.Fatalf("DeleteOne() error = %v", err)
	}
	if rec.Name != "sara" {
		t.Errorf("DeleteOne() = %+v, want sara", rec)
	}
	if got := svc.Lookup(ctx, "sara c-2"); len(got) != 0 {
		t.Errorf("Lookup after delete = %v", got)
	}
	if len(store.snapshot()) != 1 {
		t.Error("store should keep one row")
	}
	if _, err := svc.DeleteOne(ctx, "sara"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteOne() error = %v, want ErrNotFound", err)
	}
}

func TestService_DeleteAllThenReload(t *testing.T) {
	svc, _ := newTestService(t,
		Record{Name: "sara", Code: "c-2", ExternalID: saraID},
		Record{Name: "noura", ExternalID: "333333333333333"},
	)
	ctx := context.Background()

	n, err := svc.DeleteAll(ctx)
	if err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteAll() = %d, want 2", n)
	}
	if _, err := svc.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := svc.Lookup(ctx, "sara noura c-2"); len(got) != 0 {
		t.Errorf("Lookup after clear = %v", got)
	}
	if st := svc.Stats(); st.Names != 0 || st.Codes != 0 {
		t.Errorf("Stats() = %+v, want empty", st)
	}
}

func TestService_BulkUpsert(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	res, err := svc.BulkUpsert(ctx, "111111111111111 Ahmed Al Salmi c-1\n222222222222222 Sara Faisal c-2")
	if err != nil {
		t.Fatalf("BulkUpsert() error = %v", err)
	}
	if res.Accepted != 2 || res.Rejected != 0 {
		t.Errorf("BulkUpsert() = %+v, want 2 accepted, 0 rejected", res)
	}
	if res.BatchID == "" {
		t.Error("BatchID should be set")
	}
	if len(store.snapshot()) != 2 {
		t.Errorf("store rows = %d, want 2", len(store.snapshot()))
	}
	if got := svc.Lookup(ctx, "ahmed al salmi"); len(got) != 1 || got[0].ExternalID != "111111111111111" {
		t.Errorf("Lookup(ahmed al salmi) = %v", got)
	}
}

func TestService_BulkUpsertRejectsWithoutAborting(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var lines []string
	lines = append(lines, "111111111111111 Ahmed c-1")
	for i := 0; i < 7; i++ {
		lines = append(lines, fmt.Sprintf("bad%d line", i))
	}
	lines = append(lines, "222222222222222 Sara c-2")

	res, err := svc.BulkUpsert(ctx, strings.Join(lines, "\n"))
	if err != nil {
		t.Fatalf("BulkUpsert() error = %v", err)
	}
	if res.Accepted != 2 || res.Rejected != 7 {
		t.Errorf("BulkUpsert() = %+v, want 2 accepted, 7 rejected", res)
	}
	if len(res.RejectedSamples) != DefaultMaxRejectedSamples {
		t.Errorf("len(RejectedSamples) = %d, want %d", len(res.RejectedSamples), DefaultMaxRejectedSamples)
	}
	if res.RejectedSamples[0] != "(missing fields) bad0 line" {
		t.Errorf("RejectedSamples[0] = %q", res.RejectedSamples[0])
	}
	if got := svc.Lookup(ctx, "c-2"); len(got) != 1 {
		t.Error("line after rejections should be applied")
	}
}

func TestService_BulkUpsertStoreFailureReturnsPartial(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	store.setFailure(errDiskGone)

	res, err := svc.BulkUpsert(ctx, "111111111111111 Ahmed c-1\n222222222222222 Sara c-2")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("BulkUpsert() error = %v, want ErrStoreUnavailable", err)
	}
	if !errors.Is(err, errDiskGone) {
		t.Errorf("driver error not reachable through %v", err)
	}
	if res.Accepted != 0 {
		t.Errorf("Accepted = %d, want 0", res.Accepted)
	}
	if st := svc.Stats(); st.Names != 0 {
		t.Errorf("Index changed after failed write: %+v", st)
	}
}

func TestService_BulkUpsertLimiterBusy(t *testing.T) {
	limiter := NewBulkLimiter(1, 10*time.Millisecond)
	svc := NewService(newMemStore(), WithBulkLimits(5, limiter), WithAuditRecorder(&captureAudit{}))

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer limiter.Release()

	_, err := svc.BulkUpsert(context.Background(), "111111111111111 Ahmed c-1")
	if !errors.Is(err, ErrTooManyBulkImports) {
		t.Errorf("BulkUpsert() error = %v, want ErrTooManyBulkImports", err)
	}
}

func TestService_StoreFailureKeepsIndex(t *testing.T) {
	svc, store := newTestService(t, Record{Name: "sara", Code: "c-2", ExternalID: saraID})
	ctx := context.Background()
	store.setFailure(errDiskGone)

	if _, err := svc.Upsert(ctx, "noura", "c-3", "333333333333333"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Upsert() error = %v, want ErrStoreUnavailable", err)
	}
	if _, err := svc.Reload(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Reload() error = %v, want ErrStoreUnavailable", err)
	}
	if _, err := svc.DeleteAll(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("DeleteAll() error = %v, want ErrStoreUnavailable", err)
	}
	if err := svc.Ping(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Ping() error = %v, want ErrStoreUnavailable", err)
	}

	if got := svc.Lookup(ctx, "sara"); len(got) != 1 {
		t.Errorf("Lookup(sara) = %v, want served from the Index", got)
	}
	if got := svc.Lookup(ctx, "noura"); len(got) != 0 {
		t.Errorf("Lookup(noura) = %v, failed write leaked into the Index", got)
	}
}

func TestService_IndexMirrorsStore(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	steps := []func() error{
		func() error { _, err := svc.Upsert(ctx, "a", "x1", "111111111111111"); return err },
		func() error { _, err := svc.Upsert(ctx, "b", "x1", "222222222222222"); return err },
		func() error { _, err := svc.Edit(ctx, "a", EditRequest{Name: strPtr("c"), Code: strPtr("x2")}); return err },
		func() error { _, err := svc.Edit(ctx, "c", EditRequest{Name: strPtr("b")}); return err },
		func() error { _, err := svc.BulkUpsert(ctx, "333333333333333 d x2\n444444444444444 e x3"); return err },
		func() error { _, err := svc.DeleteOne(ctx, "x3"); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		stored, err := store.ListAll(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got, want := fmt.Sprint(svc.Index().Snapshot()), fmt.Sprint(stored); got != want {
			t.Fatalf("step %d: index %s != store %s", i, got, want)
		}
	}
}

func TestService_ConcurrentMutationsAndLookups(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				id := fmt.Sprintf("%015d", w*100+i)
				if _, err := svc.Upsert(ctx, fmt.Sprintf("user %d %d", w, i), fmt.Sprintf("c%d", i), id); err != nil {
					t.Errorf("Upsert: %v", err)
				}
				svc.Lookup(ctx, fmt.Sprintf("c%d", i))
			}
		}(w)
	}
	wg.Wait()

	stored, _ := store.ListAll(ctx)
	if got, want := fmt.Sprint(svc.Index().Snapshot()), fmt.Sprint(stored); got != want {
		t.Errorf("index and store diverged after concurrent writes")
	}
	if st := svc.Stats(); st.Names != 200 || st.Codes != 25 {
		t.Errorf("Stats() = %+v, want 200 names, 25 codes", st)
	}
}

func TestService_ReloadCoalesces(t *testing.T) {
	svc, _ := newTestService(t, Record{Name: "sara", ExternalID: saraID})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := svc.Reload(context.Background())
			if err != nil {
				t.Errorf("Reload() error = %v", err)
			}
			if st.Names != 1 {
				t.Errorf("Reload() stats = %+v", st)
			}
		}()
	}
	wg.Wait()
}

func TestService_AuditAndMetrics(t *testing.T) {
	audit := &captureAudit{}
	metrics := &captureMetrics{}
	svc := NewService(newMemStore(), WithAuditRecorder(audit), WithMetricsRecorder(metrics))
	ctx := ContextWithPrivileged(ContextWithIPAddress(context.Background(), "10.0.0.1"), true)

	if _, err := svc.Upsert(ctx, "sara", "c-2", saraID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Upsert(ctx, "sara", "c-2", "12"); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := svc.BulkUpsert(ctx, "111111111111111 Ahmed c-1\nbad line"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.DeleteAll(ctx); err != nil {
		t.Fatal(err)
	}

	want := []AuditAction{ActionAdd, ActionBulkAdd, ActionClear}
	if got := audit.actions(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("audit actions = %v, want %v", got, want)
	}
	first := audit.entries[0]
	if !first.Privileged || first.IPAddress != "10.0.0.1" || first.Severity != SeverityMedium {
		t.Errorf("audit entry = %+v", first)
	}
	if audit.entries[2].Severity != SeverityCritical {
		t.Errorf("clear severity = %s, want critical", audit.entries[2].Severity)
	}

	if !metrics.has(OpUpsert, true) || !metrics.has(OpUpsert, false) {
		t.Error("upsert success and failure should both be observed")
	}
	if metrics.accepted != 1 || metrics.rejected != 1 {
		t.Errorf("bulk metrics = %d/%d, want 1/1", metrics.accepted, metrics.rejected)
	}
	if metrics.names != 0 || metrics.codes != 0 {
		t.Errorf("index size after clear = %d/%d, want 0/0", metrics.names, metrics.codes)
	}
}

func TestService_ReloadScheduler(t *testing.T) {
	svc, store := newTestService(t)
	store.Upsert(context.Background(), Record{Name: "seeded", ExternalID: saraID})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartReloadScheduler(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(time.Second)
	for svc.Stats().Names != 1 {
		select {
		case <-deadline:
			t.Fatal("scheduler never picked up the external write")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

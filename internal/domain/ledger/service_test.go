package ledger

import (
	"context"
	"strings"
	"testing"
	"time"

	"invcore/internal/core/apperror"
	"invcore/internal/core/clock"
	"invcore/internal/core/id"
	"invcore/internal/core/types"
)

type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeRepo struct {
	entries  map[id.ID]*MovementEntry
	inserted []*MovementEntry
	lastPage Page
	deleted  []id.ID
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{entries: make(map[id.ID]*MovementEntry)}
}

func (r *fakeRepo) Insert(ctx context.Context, entry *MovementEntry) error {
	r.entries[entry.ID] = entry
	r.inserted = append(r.inserted, entry)
	return nil
}

func (r *fakeRepo) InsertBatch(ctx context.Context, entries []*MovementEntry) error {
	for _, e := range entries {
		if err := r.Insert(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, entryID id.ID) (*MovementEntry, error) {
	entry, ok := r.entries[entryID]
	if !ok {
		return nil, apperror.NewNotFound("movement entry", entryID.String())
	}
	return entry, nil
}

func (r *fakeRepo) List(ctx context.Context, filter Filter, page Page) (EntryPage, error) {
	r.lastPage = page
	return EntryPage{Limit: page.Limit, Offset: page.Offset}, nil
}

func (r *fakeRepo) SoftDelete(ctx context.Context, entryID id.ID, deletedBy string, at time.Time) error {
	if _, ok := r.entries[entryID]; !ok {
		return apperror.NewNotFound("movement entry", entryID.String())
	}
	r.deleted = append(r.deleted, entryID)
	return nil
}

func (r *fakeRepo) ActiveBatchesForUpdate(ctx context.Context, item ItemRef) ([]*MovementEntry, error) {
	return nil, nil
}

func (r *fakeRepo) UpdateBatchConsumption(ctx context.Context, batchID id.ID, remaining types.Quantity, status EntryStatus, at time.Time) error {
	return nil
}

func (r *fakeRepo) AvailableQuantity(ctx context.Context, item ItemRef) (types.Quantity, error) {
	return 0, nil
}

type recordingRefresher struct {
	scheduled []ItemRef
}

func (r *recordingRefresher) Schedule(items ...ItemRef) {
	r.scheduled = append(r.scheduled, items...)
}

var testNow = time.Date(2026, 4, 15, 10, 30, 0, 0, time.UTC)

func newTestService(repo *fakeRepo, refresher *recordingRefresher) *Service {
	return NewService(repo, fakeTxManager{}, refresher, clock.At(testNow))
}

func validEntry() *MovementEntry {
	return &MovementEntry{
		ItemType:     ItemTypeMaterial,
		FkID:         id.New(),
		SKU:          "SUGAR-02",
		MovementType: MovementIn,
		Source:       SourcePurchase,
		Quantity:     types.NewQuantityFromInt(10),
		UnitCost:     types.MustMoney("3.50"),
	}
}

func TestAppend_FillsDefaults(t *testing.T) {
	repo := newFakeRepo()
	refresher := &recordingRefresher{}
	svc := newTestService(repo, refresher)

	entry := validEntry()
	entryID, err := svc.Append(context.Background(), entry)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if id.IsNil(entryID) {
		t.Error("entry id must be generated")
	}
	if entry.Status != StatusActive {
		t.Errorf("status = %s, want ACTIVE", entry.Status)
	}
	if entry.RemainingQty != entry.Quantity {
		t.Errorf("remaining = %s, want full quantity for IN", entry.RemainingQty)
	}
	if entry.CreatedBy != "system" {
		t.Errorf("created_by = %q, want system", entry.CreatedBy)
	}
	want := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	if !entry.EffectiveDate.Equal(want) {
		t.Errorf("effective_date = %s, want %s", entry.EffectiveDate, want)
	}
	if len(refresher.scheduled) != 1 {
		t.Errorf("scheduled refreshes = %d, want 1", len(refresher.scheduled))
	}
}

func TestAppend_TruncatesEffectiveDate(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &recordingRefresher{})

	entry := validEntry()
	entry.EffectiveDate = time.Date(2026, 2, 3, 17, 45, 12, 0, time.UTC)
	if _, err := svc.Append(context.Background(), entry); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	want := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	if !entry.EffectiveDate.Equal(want) {
		t.Errorf("effective_date = %s, want %s", entry.EffectiveDate, want)
	}
}

func TestAppend_OutEntryHasZeroRemaining(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &recordingRefresher{})

	entry := validEntry()
	entry.MovementType = MovementOut
	entry.Source = SourceSales
	if _, err := svc.Append(context.Background(), entry); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if !entry.RemainingQty.IsZero() {
		t.Errorf("remaining = %s, want 0 for OUT", entry.RemainingQty)
	}
}

func TestAppend_RejectsInvalidEntry(t *testing.T) {
	repo := newFakeRepo()
	refresher := &recordingRefresher{}
	svc := newTestService(repo, refresher)

	entry := validEntry()
	entry.Source = "TELEPORT"
	_, err := svc.Append(context.Background(), entry)
	if !apperror.IsCode(err, apperror.CodeValidation) {
		t.Fatalf("error = %v, want VALIDATION", err)
	}
	if len(repo.inserted) != 0 {
		t.Error("invalid entry must not reach the repository")
	}
	if len(refresher.scheduled) != 0 {
		t.Error("invalid entry must not schedule a refresh")
	}
}

func TestAppendBatch_SharesBatchNumber(t *testing.T) {
	repo := newFakeRepo()
	refresher := &recordingRefresher{}
	svc := newTestService(repo, refresher)

	first := validEntry()
	second := validEntry()
	second.FkID = first.FkID // same item
	third := validEntry()
	third.SKU = "FLOUR-01"
	third.BatchNumber = "CUSTOM-7"

	ids, err := svc.AppendBatch(context.Background(), []*MovementEntry{first, second, third})
	if err != nil {
		t.Fatalf("AppendBatch failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("ids = %d, want 3", len(ids))
	}

	if first.BatchNumber == "" || !strings.HasPrefix(first.BatchNumber, "MOV-") {
		t.Errorf("batch number = %q, want generated MOV- prefix", first.BatchNumber)
	}
	if first.BatchNumber != second.BatchNumber {
		t.Error("entries without a batch number must share one")
	}
	if third.BatchNumber != "CUSTOM-7" {
		t.Errorf("explicit batch number overwritten: %q", third.BatchNumber)
	}
}

func TestAppendBatch_DeduplicatesRefreshItems(t *testing.T) {
	repo := newFakeRepo()
	refresher := &recordingRefresher{}
	svc := newTestService(repo, refresher)

	first := validEntry()
	second := validEntry()
	second.FkID = first.FkID

	if _, err := svc.AppendBatch(context.Background(), []*MovementEntry{first, second}); err != nil {
		t.Fatalf("AppendBatch failed: %v", err)
	}
	if len(refresher.scheduled) != 1 {
		t.Errorf("scheduled refreshes = %d, want 1 for the same item", len(refresher.scheduled))
	}
}

func TestAppendBatch_Empty(t *testing.T) {
	svc := newTestService(newFakeRepo(), &recordingRefresher{})

	_, err := svc.AppendBatch(context.Background(), nil)
	if !apperror.IsCode(err, apperror.CodeValidation) {
		t.Fatalf("error = %v, want VALIDATION", err)
	}
}

func TestAppendBatch_ReportsFailingIndex(t *testing.T) {
	svc := newTestService(newFakeRepo(), &recordingRefresher{})

	ok := validEntry()
	bad := validEntry()
	bad.SKU = ""

	_, err := svc.AppendBatch(context.Background(), []*MovementEntry{ok, bad})
	appErr, isApp := apperror.AsAppError(err)
	if !isApp || appErr.Code != apperror.CodeValidation {
		t.Fatalf("error = %v, want VALIDATION", err)
	}
	if appErr.Details["index"] != 1 {
		t.Errorf("index detail = %v, want 1", appErr.Details["index"])
	}
}

func TestQuery_ClampsPagination(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &recordingRefresher{})

	tests := []struct {
		name       string
		page       Page
		wantLimit  int
		wantOffset int
	}{
		{"zero limit", Page{}, 100, 0},
		{"over cap", Page{Limit: 1000}, 100, 0},
		{"negative offset", Page{Limit: 20, Offset: -5}, 20, 0},
		{"in range", Page{Limit: 50, Offset: 10}, 50, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Query(context.Background(), Filter{}, tt.page); err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if repo.lastPage.Limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", repo.lastPage.Limit, tt.wantLimit)
			}
			if repo.lastPage.Offset != tt.wantOffset {
				t.Errorf("offset = %d, want %d", repo.lastPage.Offset, tt.wantOffset)
			}
		})
	}
}

func TestDelete_SchedulesRefresh(t *testing.T) {
	repo := newFakeRepo()
	refresher := &recordingRefresher{}
	svc := newTestService(repo, refresher)

	entry := validEntry()
	entryID, err := svc.Append(context.Background(), entry)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	refresher.scheduled = nil

	if err := svc.Delete(context.Background(), entryID, "auditor"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != entryID {
		t.Errorf("deleted = %v, want [%s]", repo.deleted, entryID)
	}
	if len(refresher.scheduled) != 1 {
		t.Errorf("scheduled refreshes = %d, want 1", len(refresher.scheduled))
	}
}

func TestDelete_NotFound(t *testing.T) {
	svc := newTestService(newFakeRepo(), &recordingRefresher{})

	err := svc.Delete(context.Background(), id.New(), "auditor")
	if !apperror.IsNotFound(err) {
		t.Fatalf("error = %v, want NOT_FOUND", err)
	}
}

func TestAvailability_ValidatesItem(t *testing.T) {
	svc := newTestService(newFakeRepo(), &recordingRefresher{})

	_, err := svc.Availability(context.Background(), ItemRef{SKU: "X"})
	if !apperror.IsCode(err, apperror.CodeValidation) {
		t.Fatalf("error = %v, want VALIDATION", err)
	}
}

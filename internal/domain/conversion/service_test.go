package conversion

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"testing"
	"time"

	"invcore/internal/core/apperror"
	"invcore/internal/core/clock"
	"invcore/internal/core/id"
	"invcore/internal/core/types"
	"invcore/internal/domain/fifo"
	"invcore/internal/domain/ledger"
)

type fakeTxManager struct {
	conflictsLeft int
	runs          int
}

func (m *fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.runs++
	if m.conflictsLeft > 0 {
		m.conflictsLeft--
		return apperror.NewConcurrencyConflict("ledger batch", "test")
	}
	return fn(ctx)
}

// memLedger is an in-memory ledger with working FIFO batch semantics.
type memLedger struct {
	entries  map[id.ID]*ledger.MovementEntry
	inserted []*ledger.MovementEntry
}

func newMemLedger() *memLedger {
	return &memLedger{entries: make(map[id.ID]*ledger.MovementEntry)}
}

func (r *memLedger) Insert(ctx context.Context, entry *ledger.MovementEntry) error {
	r.entries[entry.ID] = entry
	r.inserted = append(r.inserted, entry)
	return nil
}

func (r *memLedger) InsertBatch(ctx context.Context, entries []*ledger.MovementEntry) error {
	for _, e := range entries {
		if err := r.Insert(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *memLedger) GetByID(ctx context.Context, entryID id.ID) (*ledger.MovementEntry, error) {
	entry, ok := r.entries[entryID]
	if !ok {
		return nil, apperror.NewNotFound("movement entry", entryID.String())
	}
	return entry, nil
}

func (r *memLedger) List(ctx context.Context, filter ledger.Filter, page ledger.Page) (ledger.EntryPage, error) {
	return ledger.EntryPage{}, nil
}

func (r *memLedger) SoftDelete(ctx context.Context, entryID id.ID, deletedBy string, at time.Time) error {
	return nil
}

func (r *memLedger) ActiveBatchesForUpdate(ctx context.Context, item ledger.ItemRef) ([]*ledger.MovementEntry, error) {
	var batches []*ledger.MovementEntry
	for _, e := range r.entries {
		if e.Item().Key() == item.Key() &&
			e.MovementType == ledger.MovementIn &&
			e.Status == ledger.StatusActive &&
			e.RemainingQty.IsPositive() {
			batches = append(batches, e)
		}
	}
	sort.Slice(batches, func(i, j int) bool {
		if !batches[i].EffectiveDate.Equal(batches[j].EffectiveDate) {
			return batches[i].EffectiveDate.Before(batches[j].EffectiveDate)
		}
		return batches[i].ID.String() < batches[j].ID.String()
	})
	return batches, nil
}

func (r *memLedger) UpdateBatchConsumption(ctx context.Context, batchID id.ID, remaining types.Quantity, status ledger.EntryStatus, at time.Time) error {
	entry, ok := r.entries[batchID]
	if !ok {
		return apperror.NewNotFound("movement entry", batchID.String())
	}
	entry.RemainingQty = remaining
	entry.Status = status
	return nil
}

func (r *memLedger) AvailableQuantity(ctx context.Context, item ledger.ItemRef) (types.Quantity, error) {
	var sum types.Quantity
	for _, e := range r.entries {
		if e.Item().Key() == item.Key() &&
			e.MovementType == ledger.MovementIn &&
			e.Status == ledger.StatusActive {
			sum += e.RemainingQty
		}
	}
	return sum, nil
}

// countByType counts inserted entries of a movement type tagged with refCode.
func (r *memLedger) countByType(mt ledger.MovementType, refCode string) int {
	n := 0
	for _, e := range r.inserted {
		if e.MovementType == mt && e.BatchNumber == refCode {
			n++
		}
	}
	return n
}

type memRecords struct {
	records []*Record
}

func (r *memRecords) Insert(ctx context.Context, record *Record) error {
	r.records = append(r.records, record)
	return nil
}

func (r *memRecords) GetByID(ctx context.Context, recordID id.ID) (*Record, error) {
	for _, rec := range r.records {
		if rec.ID == recordID {
			return rec, nil
		}
	}
	return nil, apperror.NewNotFound("conversion record", recordID.String())
}

func (r *memRecords) GetByReference(ctx context.Context, referenceCode string) (*Record, error) {
	for _, rec := range r.records {
		if rec.ReferenceCode == referenceCode {
			return rec, nil
		}
	}
	return nil, apperror.NewNotFound("conversion record", referenceCode)
}

func (r *memRecords) List(ctx context.Context, filter RecordFilter) ([]*Record, error) {
	return r.records, nil
}

type memTemplates struct {
	templates map[id.ID]*Template
}

func (r *memTemplates) GetByID(ctx context.Context, templateID id.ID) (*Template, error) {
	tmpl, ok := r.templates[templateID]
	if !ok {
		return nil, apperror.NewNotFound("conversion template", templateID.String())
	}
	return tmpl, nil
}

func (r *memTemplates) List(ctx context.Context, filter TemplateFilter) ([]*Template, error) {
	var out []*Template
	for _, t := range r.templates {
		out = append(out, t)
	}
	return out, nil
}

type seqRefCodes struct {
	n int
}

func (c *seqRefCodes) Next(ctx context.Context, prefix string) (string, error) {
	c.n++
	return fmt.Sprintf("%s-2026-%05d", prefix, c.n), nil
}

type recordingRefresher struct {
	scheduled []ledger.ItemRef
}

func (r *recordingRefresher) Schedule(items ...ledger.ItemRef) {
	r.scheduled = append(r.scheduled, items...)
}

var (
	flourID = id.MustParse("11111111-1111-1111-1111-111111111111")
	yeastID = id.MustParse("22222222-2222-2222-2222-222222222222")
	breadID = id.MustParse("33333333-3333-3333-3333-333333333333")
)

func flourRef() ledger.ItemRef {
	return ledger.ItemRef{ItemType: ledger.ItemTypeMaterial, FkID: flourID, SKU: "FLOUR-01"}
}

func breadRef() ledger.ItemRef {
	return ledger.ItemRef{ItemType: ledger.ItemTypeProduct, FkID: breadID, SKU: "BREAD-01"}
}

func seedBatch(t *testing.T, store *memLedger, item ledger.ItemRef, qty int64, cost string, day int) {
	t.Helper()
	q := types.NewQuantityFromInt(qty)
	err := store.Insert(context.Background(), &ledger.MovementEntry{
		ID:            id.New(),
		ItemType:      item.ItemType,
		FkID:          item.FkID,
		SKU:           item.SKU,
		VariantID:     item.VariantID,
		MovementType:  ledger.MovementIn,
		Source:        ledger.SourcePurchase,
		Quantity:      q,
		RemainingQty:  q,
		UnitCost:      types.MustMoney(cost),
		EffectiveDate: time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC),
		Status:        ledger.StatusActive,
	})
	if err != nil {
		t.Fatalf("seed batch: %v", err)
	}
}

type fixture struct {
	svc       *Service
	ledger    *memLedger
	records   *memRecords
	templates *memTemplates
	txm       *fakeTxManager
	refresher *recordingRefresher
}

func newFixture() *fixture {
	store := newMemLedger()
	records := &memRecords{}
	templates := &memTemplates{templates: make(map[id.ID]*Template)}
	txm := &fakeTxManager{}
	refresher := &recordingRefresher{}
	clk := clock.At(time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC))
	engine := fifo.NewEngine(store, clk)

	return &fixture{
		svc:       NewService(records, templates, store, engine, txm, &seqRefCodes{}, refresher, clk),
		ledger:    store,
		records:   records,
		templates: templates,
		txm:       txm,
		refresher: refresher,
	}
}

func inputLine(item ledger.ItemRef, qty int64) ItemLine {
	return ItemLine{
		SKU:       item.SKU,
		Quantity:  types.NewQuantityFromInt(qty),
		Unit:      "kg",
		ItemType:  item.ItemType,
		FkID:      item.FkID,
		VariantID: item.VariantID,
	}
}

func TestExecute_ConsumesAndCredits(t *testing.T) {
	f := newFixture()
	seedBatch(t, f.ledger, flourRef(), 100, "5.00", 1)
	seedBatch(t, f.ledger, flourRef(), 50, "6.00", 10)
	seeded := len(f.ledger.inserted)

	record, err := f.svc.Execute(context.Background(), ExecuteCommand{
		Inputs:  Lines{inputLine(flourRef(), 120)},
		Outputs: Lines{inputLine(breadRef(), 10)},
		Actor:   "baker",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if record.Status != RecordCompleted {
		t.Errorf("status = %s, want COMPLETED", record.Status)
	}
	if record.ReferenceCode != "CNV-2026-00001" {
		t.Errorf("reference code = %s", record.ReferenceCode)
	}
	// 100 x 5.00 + 20 x 6.00
	if want := types.MustMoney("620.00"); !record.TotalInputCost.Equal(want) {
		t.Errorf("TotalInputCost = %s, want %s", record.TotalInputCost, want)
	}

	// One OUT per batch touched, one IN per output, all tagged with the code.
	if got := f.ledger.countByType(ledger.MovementOut, record.ReferenceCode); got != 2 {
		t.Errorf("OUT entries = %d, want 2", got)
	}
	if got := f.ledger.countByType(ledger.MovementIn, record.ReferenceCode); got != 1 {
		t.Errorf("IN entries = %d, want 1", got)
	}

	// Output cost derives from total input cost: 620 / 10 units.
	for _, e := range f.ledger.inserted[seeded:] {
		if e.MovementType != ledger.MovementIn {
			continue
		}
		if want := types.MustMoney("62.00"); !e.UnitCost.Equal(want) {
			t.Errorf("output unit cost = %s, want %s", e.UnitCost, want)
		}
		if e.RemainingQty != e.Quantity {
			t.Errorf("output remaining = %s, want full quantity", e.RemainingQty)
		}
		if e.CreatedBy != "baker" {
			t.Errorf("created_by = %q, want baker", e.CreatedBy)
		}
	}

	// Record snapshots the realized weighted input cost.
	if record.Inputs[0].UnitCost == nil {
		t.Error("input snapshot must carry realized unit cost")
	}

	if len(f.records.records) != 1 {
		t.Errorf("records stored = %d, want 1", len(f.records.records))
	}
	if len(f.refresher.scheduled) != 2 {
		t.Errorf("scheduled refreshes = %d, want 2 items", len(f.refresher.scheduled))
	}
}

func TestExecute_HonorsProvidedOutputCost(t *testing.T) {
	f := newFixture()
	seedBatch(t, f.ledger, flourRef(), 100, "5.00", 1)
	seeded := len(f.ledger.inserted)

	priced := inputLine(breadRef(), 10)
	cost := types.MustMoney("9.99")
	priced.UnitCost = &cost

	_, err := f.svc.Execute(context.Background(), ExecuteCommand{
		Inputs:  Lines{inputLine(flourRef(), 50)},
		Outputs: Lines{priced},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	for _, e := range f.ledger.inserted[seeded:] {
		if e.MovementType == ledger.MovementIn && !e.UnitCost.Equal(cost) {
			t.Errorf("output unit cost = %s, want %s", e.UnitCost, cost)
		}
	}
}

func TestExecute_ShortfallLeavesNoTrace(t *testing.T) {
	f := newFixture()
	seedBatch(t, f.ledger, flourRef(), 30, "5.00", 1)
	seeded := len(f.ledger.inserted)

	yeast := ledger.ItemRef{ItemType: ledger.ItemTypeMaterial, FkID: yeastID, SKU: "YEAST-01"}

	_, err := f.svc.Execute(context.Background(), ExecuteCommand{
		Inputs:  Lines{inputLine(flourRef(), 120), inputLine(yeast, 5)},
		Outputs: Lines{inputLine(breadRef(), 10)},
	})
	if !apperror.IsInsufficientStock(err) {
		t.Fatalf("error = %v, want INSUFFICIENT_STOCK", err)
	}

	// Both shortfalls reported together.
	appErr, _ := apperror.AsAppError(err)
	shortages := reflect.ValueOf(appErr.Details["inputs"])
	if shortages.Kind() != reflect.Slice || shortages.Len() != 2 {
		t.Errorf("shortage details = %#v, want 2 entries", appErr.Details["inputs"])
	}

	if len(f.ledger.inserted) != seeded {
		t.Error("shortfall must not write ledger entries")
	}
	if len(f.records.records) != 0 {
		t.Error("shortfall must not write a record")
	}
	if len(f.refresher.scheduled) != 0 {
		t.Error("shortfall must not schedule refreshes")
	}
	// Seeded batch untouched.
	if qty, _ := f.ledger.AvailableQuantity(context.Background(), flourRef()); qty != types.NewQuantityFromInt(30) {
		t.Errorf("availability after shortfall = %s, want 30", qty)
	}
}

func TestExecute_RetriesOnceOnConflict(t *testing.T) {
	f := newFixture()
	seedBatch(t, f.ledger, flourRef(), 100, "5.00", 1)
	f.txm.conflictsLeft = 1

	_, err := f.svc.Execute(context.Background(), ExecuteCommand{
		Inputs:  Lines{inputLine(flourRef(), 50)},
		Outputs: Lines{inputLine(breadRef(), 5)},
	})
	if err != nil {
		t.Fatalf("Execute failed after retry: %v", err)
	}
	if f.txm.runs != 2 {
		t.Errorf("transaction runs = %d, want 2", f.txm.runs)
	}
}

func TestExecute_GivesUpAfterSecondConflict(t *testing.T) {
	f := newFixture()
	seedBatch(t, f.ledger, flourRef(), 100, "5.00", 1)
	f.txm.conflictsLeft = 2

	_, err := f.svc.Execute(context.Background(), ExecuteCommand{
		Inputs:  Lines{inputLine(flourRef(), 50)},
		Outputs: Lines{inputLine(breadRef(), 5)},
	})
	if !apperror.IsConcurrencyConflict(err) {
		t.Fatalf("error = %v, want CONCURRENCY_CONFLICT", err)
	}
	if f.txm.runs != 2 {
		t.Errorf("transaction runs = %d, want exactly 2", f.txm.runs)
	}
}

func TestExecute_ValidatesLines(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Execute(context.Background(), ExecuteCommand{
		Outputs: Lines{inputLine(breadRef(), 10)},
	})
	if !apperror.IsCode(err, apperror.CodeValidation) {
		t.Fatalf("error = %v, want VALIDATION for empty inputs", err)
	}

	_, err = f.svc.Execute(context.Background(), ExecuteCommand{
		Inputs: Lines{inputLine(flourRef(), 10)},
	})
	if !apperror.IsCode(err, apperror.CodeValidation) {
		t.Fatalf("error = %v, want VALIDATION for empty outputs", err)
	}
}

func newTemplate(f *fixture, status TemplateStatus, inputQty, outputQty int64) *Template {
	tmpl := &Template{
		ID:      id.New(),
		Code:    "TPL-1",
		Name:    "Bread loaf",
		Inputs:  Lines{inputLine(flourRef(), inputQty)},
		Outputs: Lines{inputLine(breadRef(), outputQty)},
		Status:  status,
	}
	f.templates.templates[tmpl.ID] = tmpl
	return tmpl
}

func TestCalculateRequirements(t *testing.T) {
	f := newFixture()
	seedBatch(t, f.ledger, flourRef(), 100, "5.00", 1)
	tmpl := newTemplate(f, TemplateActive, 60, 10)

	reqs, err := f.svc.CalculateRequirements(context.Background(), []PlanItem{
		{TemplateID: tmpl.ID, Count: 2},
	})
	if err != nil {
		t.Fatalf("CalculateRequirements failed: %v", err)
	}

	if reqs.Feasible {
		t.Error("plan requiring 120 of 100 available must not be feasible")
	}
	if len(reqs.Lines) != 1 {
		t.Fatalf("lines = %d, want 1 aggregated input", len(reqs.Lines))
	}
	line := reqs.Lines[0]
	if line.Required != types.NewQuantityFromInt(120) {
		t.Errorf("required = %s, want 120", line.Required)
	}
	if line.Available != types.NewQuantityFromInt(100) {
		t.Errorf("available = %s, want 100", line.Available)
	}
	if line.Shortfall != types.NewQuantityFromInt(20) {
		t.Errorf("shortfall = %s, want 20", line.Shortfall)
	}

	// Dry run: nothing consumed.
	if qty, _ := f.ledger.AvailableQuantity(context.Background(), flourRef()); qty != types.NewQuantityFromInt(100) {
		t.Errorf("availability after dry run = %s, want 100", qty)
	}
}

func TestExecuteBulk_AggregatesAcrossPlans(t *testing.T) {
	f := newFixture()
	seedBatch(t, f.ledger, flourRef(), 100, "5.00", 1)
	tmpl := newTemplate(f, TemplateActive, 60, 10)

	// Two runs need 120 in total; individually each would pass.
	_, err := f.svc.ExecuteBulk(context.Background(), BulkCommand{
		Plans: []PlanItem{{TemplateID: tmpl.ID, Count: 1}, {TemplateID: tmpl.ID, Count: 1}},
	})
	if !apperror.IsInsufficientStock(err) {
		t.Fatalf("error = %v, want INSUFFICIENT_STOCK on aggregated demand", err)
	}
}

func TestExecuteBulk_SharedReferenceCode(t *testing.T) {
	f := newFixture()
	seedBatch(t, f.ledger, flourRef(), 200, "5.00", 1)
	tmpl := newTemplate(f, TemplateActive, 60, 10)

	records, err := f.svc.ExecuteBulk(context.Background(), BulkCommand{
		Plans: []PlanItem{{TemplateID: tmpl.ID, Count: 1}, {TemplateID: tmpl.ID, Count: 2}},
	})
	if err != nil {
		t.Fatalf("ExecuteBulk failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want one per plan", len(records))
	}
	if records[0].ReferenceCode != records[1].ReferenceCode {
		t.Error("bulk records must share one reference code")
	}

	// Cost splits proportionally: 60 and 120 units at 5.00.
	if want := types.MustMoney("300.00"); !records[0].TotalInputCost.Equal(want) {
		t.Errorf("first record cost = %s, want %s", records[0].TotalInputCost, want)
	}
	if want := types.MustMoney("600.00"); !records[1].TotalInputCost.Equal(want) {
		t.Errorf("second record cost = %s, want %s", records[1].TotalInputCost, want)
	}

	if qty, _ := f.ledger.AvailableQuantity(context.Background(), flourRef()); qty != types.NewQuantityFromInt(20) {
		t.Errorf("availability = %s, want 20 left", qty)
	}
}

func TestExecuteBulk_RejectsInactiveTemplate(t *testing.T) {
	f := newFixture()
	tmpl := newTemplate(f, TemplateInactive, 10, 1)

	_, err := f.svc.ExecuteBulk(context.Background(), BulkCommand{
		Plans: []PlanItem{{TemplateID: tmpl.ID, Count: 1}},
	})
	if !apperror.IsCode(err, apperror.CodeValidation) {
		t.Fatalf("error = %v, want VALIDATION", err)
	}
}

func TestExecuteBulk_RejectsBadCount(t *testing.T) {
	f := newFixture()
	tmpl := newTemplate(f, TemplateActive, 10, 1)

	for _, count := range []int{0, -1} {
		_, err := f.svc.ExecuteBulk(context.Background(), BulkCommand{
			Plans: []PlanItem{{TemplateID: tmpl.ID, Count: count}},
		})
		if !apperror.IsCode(err, apperror.CodeValidation) {
			t.Errorf("count %d: error = %v, want VALIDATION", count, err)
		}
	}
}

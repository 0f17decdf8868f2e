package summary

import (
	"context"
	"errors"
	"testing"
	"time"

	"invcore/internal/core/apperror"
	"invcore/internal/core/clock"
	"invcore/internal/core/id"
	"invcore/internal/core/types"
	"invcore/internal/domain/ledger"
)

type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type flowEntry struct {
	item  ledger.ItemRef
	mt    ledger.MovementType
	qty   types.Quantity
	value types.Money
	date  time.Time
}

// fakeRepo folds an in-memory ledger the way the SQL aggregates do.
type fakeRepo struct {
	entries   []flowEntry
	summaries map[string]*MonthlySummary

	// failAggregateIn makes AggregateRange fail for ranges starting in the
	// given period, to exercise failure isolation.
	failAggregateIn map[string]bool
}

func newRepo() *fakeRepo {
	return &fakeRepo{
		summaries:       make(map[string]*MonthlySummary),
		failAggregateIn: make(map[string]bool),
	}
}

func summaryKey(item ledger.ItemRef, period Period) string {
	return item.Key() + "@" + period.String()
}

func (r *fakeRepo) Get(ctx context.Context, item ledger.ItemRef, period Period) (*MonthlySummary, error) {
	s, ok := r.summaries[summaryKey(item, period)]
	if !ok {
		return nil, apperror.NewNotFound("monthly summary", summaryKey(item, period))
	}
	return s, nil
}

func (r *fakeRepo) Exists(ctx context.Context, item ledger.ItemRef, period Period) (bool, error) {
	_, ok := r.summaries[summaryKey(item, period)]
	return ok, nil
}

func (r *fakeRepo) Upsert(ctx context.Context, s *MonthlySummary) error {
	r.summaries[summaryKey(s.Item(), s.Period())] = s
	return nil
}

func (r *fakeRepo) List(ctx context.Context, filter ListFilter) ([]*MonthlySummary, error) {
	var out []*MonthlySummary
	for _, s := range r.summaries {
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeRepo) HasHistoryBefore(ctx context.Context, item ledger.ItemRef, before time.Time) (bool, error) {
	for _, e := range r.entries {
		if e.item.Key() == item.Key() && e.date.Before(before) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) AggregateRange(ctx context.Context, item ledger.ItemRef, from, to time.Time) (Flows, error) {
	if r.failAggregateIn[PeriodOf(from).String()] {
		return Flows{}, apperror.NewDatabase(errors.New("aggregate blew up"))
	}
	flows := Flows{InValue: types.ZeroMoney(), OutValue: types.ZeroMoney()}
	for _, e := range r.entries {
		if e.item.Key() != item.Key() || e.date.Before(from) || !e.date.Before(to) {
			continue
		}
		if e.mt == ledger.MovementIn {
			flows.InQty += e.qty
			flows.InValue = flows.InValue.Add(e.value)
		} else {
			flows.OutQty += e.qty
			flows.OutValue = flows.OutValue.Add(e.value)
		}
	}
	return flows, nil
}

func (r *fakeRepo) OpeningBefore(ctx context.Context, item ledger.ItemRef, before time.Time) (Opening, error) {
	opening := Opening{Value: types.ZeroMoney()}
	for _, e := range r.entries {
		if e.item.Key() != item.Key() || !e.date.Before(before) {
			continue
		}
		if e.mt == ledger.MovementIn {
			opening.Qty += e.qty
			opening.Value = opening.Value.Add(e.value)
		} else {
			opening.Qty -= e.qty
			opening.Value = opening.Value.Sub(e.value)
		}
	}
	return opening, nil
}

func (r *fakeRepo) DistinctItems(ctx context.Context) ([]ledger.ItemRef, error) {
	seen := make(map[string]struct{})
	var items []ledger.ItemRef
	for _, e := range r.entries {
		if _, ok := seen[e.item.Key()]; ok {
			continue
		}
		seen[e.item.Key()] = struct{}{}
		items = append(items, e.item)
	}
	return items, nil
}

func (r *fakeRepo) FirstEntryDate(ctx context.Context, item ledger.ItemRef) (time.Time, error) {
	var first time.Time
	for _, e := range r.entries {
		if e.item.Key() != item.Key() {
			continue
		}
		if first.IsZero() || e.date.Before(first) {
			first = e.date
		}
	}
	if first.IsZero() {
		return time.Time{}, apperror.NewNotFound("ledger entry", item.SKU)
	}
	return first, nil
}

func (r *fakeRepo) addFlow(item ledger.ItemRef, mt ledger.MovementType, qty int64, value string, year int, month time.Month, day int) {
	r.entries = append(r.entries, flowEntry{
		item:  item,
		mt:    mt,
		qty:   types.NewQuantityFromInt(qty),
		value: types.MustMoney(value),
		date:  time.Date(year, month, day, 0, 0, 0, 0, time.UTC),
	})
}

func sugar() ledger.ItemRef {
	return ledger.ItemRef{
		ItemType: ledger.ItemTypeMaterial,
		FkID:     id.MustParse("aaaaaaaa-1111-1111-1111-111111111111"),
		SKU:      "SUGAR-02",
	}
}

func bread() ledger.ItemRef {
	return ledger.ItemRef{
		ItemType: ledger.ItemTypeProduct,
		FkID:     id.MustParse("bbbbbbbb-2222-2222-2222-222222222222"),
		SKU:      "BREAD-01",
	}
}

func newTestService(repo *fakeRepo) *Service {
	return NewService(repo, fakeTxManager{}, clock.At(time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)))
}

func march() Period { return Period{Year: 2026, Month: time.March} }

func TestGenerate_ClosingIdentity(t *testing.T) {
	repo := newRepo()
	repo.addFlow(sugar(), ledger.MovementIn, 100, "500.00", 2026, time.March, 5)
	repo.addFlow(sugar(), ledger.MovementOut, 30, "150.00", 2026, time.March, 20)
	svc := newTestService(repo)

	s, err := svc.Generate(context.Background(), sugar(), march())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if s.OpeningQty != 0 {
		t.Errorf("opening = %s, want 0", s.OpeningQty)
	}
	if s.ClosingQty != types.NewQuantityFromInt(70) {
		t.Errorf("closing = %s, want 70", s.ClosingQty)
	}
	if got := s.OpeningQty + s.InQty - s.OutQty; got != s.ClosingQty {
		t.Errorf("quantity identity broken: %s != %s", got, s.ClosingQty)
	}
	if want := types.MustMoney("350.00"); !s.ClosingValue.Equal(want) {
		t.Errorf("closing value = %s, want %s", s.ClosingValue, want)
	}
	wantValue := s.OpeningValue.Add(s.InValue).Sub(s.OutValue)
	if !s.ClosingValue.Equal(wantValue) {
		t.Errorf("value identity broken: %s != %s", s.ClosingValue, wantValue)
	}
}

func TestGenerate_IdentityHoldsWithSubCentValues(t *testing.T) {
	repo := newRepo()
	repo.addFlow(sugar(), ledger.MovementIn, 1, "0.005", 2026, time.February, 10)
	repo.addFlow(sugar(), ledger.MovementIn, 1, "0.005", 2026, time.March, 10)
	svc := newTestService(repo)

	feb := Period{Year: 2026, Month: time.February}
	if _, err := svc.Generate(context.Background(), sugar(), feb); err != nil {
		t.Fatalf("Generate February failed: %v", err)
	}

	s, err := svc.Generate(context.Background(), sugar(), march())
	if err != nil {
		t.Fatalf("Generate March failed: %v", err)
	}

	// Both sub-cent inflows round up to 0.01; the closing value is built
	// from the rounded components, so the persisted row balances.
	if want := types.MustMoney("0.01"); !s.OpeningValue.Equal(want) {
		t.Errorf("opening value = %s, want %s", s.OpeningValue, want)
	}
	if want := types.MustMoney("0.02"); !s.ClosingValue.Equal(want) {
		t.Errorf("closing value = %s, want %s", s.ClosingValue, want)
	}
	identity := s.OpeningValue.Add(s.InValue).Sub(s.OutValue)
	if !s.ClosingValue.Equal(identity) {
		t.Errorf("value identity broken: %s + %s - %s = %s, but closing = %s",
			s.OpeningValue, s.InValue, s.OutValue, identity, s.ClosingValue)
	}
}

func TestGenerate_CarriesForwardPreviousClosing(t *testing.T) {
	repo := newRepo()
	repo.addFlow(sugar(), ledger.MovementIn, 10, "60.00", 2026, time.March, 3)
	svc := newTestService(repo)

	feb := Period{Year: 2026, Month: time.February}
	prev := &MonthlySummary{
		ItemType:     sugar().ItemType,
		FkID:         sugar().FkID,
		SKU:          sugar().SKU,
		Year:         feb.Year,
		Month:        int(feb.Month),
		ClosingQty:   types.NewQuantityFromInt(50),
		ClosingValue: types.MustMoney("250.00"),
	}
	if err := repo.Upsert(context.Background(), prev); err != nil {
		t.Fatal(err)
	}

	s, err := svc.Generate(context.Background(), sugar(), march())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if s.OpeningQty != types.NewQuantityFromInt(50) {
		t.Errorf("opening = %s, want previous closing 50", s.OpeningQty)
	}
	if s.ClosingQty != types.NewQuantityFromInt(60) {
		t.Errorf("closing = %s, want 60", s.ClosingQty)
	}
	if want := types.MustMoney("310.00"); !s.ClosingValue.Equal(want) {
		t.Errorf("closing value = %s, want %s", s.ClosingValue, want)
	}
}

func TestGenerate_RecomputesOpeningFromLedger(t *testing.T) {
	repo := newRepo()
	repo.addFlow(sugar(), ledger.MovementIn, 80, "400.00", 2026, time.January, 10)
	repo.addFlow(sugar(), ledger.MovementOut, 20, "100.00", 2026, time.February, 15)
	repo.addFlow(sugar(), ledger.MovementIn, 5, "25.00", 2026, time.March, 1)
	svc := newTestService(repo)

	s, err := svc.Generate(context.Background(), sugar(), march())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if s.OpeningQty != types.NewQuantityFromInt(60) {
		t.Errorf("opening = %s, want 60 from raw history", s.OpeningQty)
	}
	if want := types.MustMoney("300.00"); !s.OpeningValue.Equal(want) {
		t.Errorf("opening value = %s, want %s", s.OpeningValue, want)
	}
}

func TestGenerate_ClampsNegativeOpening(t *testing.T) {
	repo := newRepo()
	// Out-of-order history: more OUT than IN before March.
	repo.addFlow(sugar(), ledger.MovementOut, 40, "200.00", 2026, time.January, 10)
	repo.addFlow(sugar(), ledger.MovementIn, 10, "50.00", 2026, time.March, 2)
	svc := newTestService(repo)

	s, err := svc.Generate(context.Background(), sugar(), march())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if s.OpeningQty != 0 {
		t.Errorf("opening = %s, want clamped to 0", s.OpeningQty)
	}
	if !s.OpeningValue.IsZero() {
		t.Errorf("opening value = %s, want clamped to 0", s.OpeningValue)
	}
}

func TestGenerate_AlreadyExistsLeavesRowUntouched(t *testing.T) {
	repo := newRepo()
	repo.addFlow(sugar(), ledger.MovementIn, 10, "50.00", 2026, time.March, 1)
	svc := newTestService(repo)

	first, err := svc.Generate(context.Background(), sugar(), march())
	if err != nil {
		t.Fatalf("first Generate failed: %v", err)
	}

	_, err = svc.Generate(context.Background(), sugar(), march())
	if !apperror.IsAlreadyExists(err) {
		t.Fatalf("error = %v, want ALREADY_EXISTS", err)
	}

	stored, err := repo.Get(context.Background(), sugar(), march())
	if err != nil {
		t.Fatal(err)
	}
	if stored.ID != first.ID {
		t.Error("existing summary must not be replaced")
	}
}

func TestGenerate_NoHistory(t *testing.T) {
	svc := newTestService(newRepo())

	_, err := svc.Generate(context.Background(), sugar(), march())
	if !apperror.IsNoHistory(err) {
		t.Fatalf("error = %v, want NO_HISTORY", err)
	}
}

func TestGenerate_ValidatesPeriod(t *testing.T) {
	svc := newTestService(newRepo())

	_, err := svc.Generate(context.Background(), sugar(), Period{Year: 2026, Month: 13})
	if !apperror.IsCode(err, apperror.CodeValidation) {
		t.Fatalf("error = %v, want VALIDATION", err)
	}
}

func TestGenerateAll_WalksMonthsPerItem(t *testing.T) {
	repo := newRepo()
	repo.addFlow(sugar(), ledger.MovementIn, 100, "500.00", 2026, time.January, 5)
	repo.addFlow(sugar(), ledger.MovementOut, 40, "200.00", 2026, time.February, 10)
	repo.addFlow(bread(), ledger.MovementIn, 20, "400.00", 2026, time.February, 1)
	svc := newTestService(repo)

	result, err := svc.GenerateAll(context.Background(), Period{Year: 2026, Month: time.March})
	if err != nil {
		t.Fatalf("GenerateAll failed: %v", err)
	}

	// sugar: Jan, Feb, Mar; bread: Feb, Mar.
	if result.Generated != 5 {
		t.Errorf("generated = %d, want 5", result.Generated)
	}
	if result.Failed != 0 {
		t.Errorf("failed = %d, want 0", result.Failed)
	}

	// March chains from February for sugar.
	s, err := repo.Get(context.Background(), sugar(), Period{Year: 2026, Month: time.March})
	if err != nil {
		t.Fatal(err)
	}
	if s.OpeningQty != types.NewQuantityFromInt(60) {
		t.Errorf("march opening = %s, want 60", s.OpeningQty)
	}
	if s.ClosingQty != types.NewQuantityFromInt(60) {
		t.Errorf("march closing = %s, want 60", s.ClosingQty)
	}
}

func TestGenerateAll_IsolatesFailuresPerItem(t *testing.T) {
	repo := newRepo()
	repo.addFlow(sugar(), ledger.MovementIn, 100, "500.00", 2026, time.January, 5)
	repo.addFlow(bread(), ledger.MovementIn, 20, "400.00", 2026, time.February, 1)
	// Only January aggregation fails; only sugar has January history.
	repo.failAggregateIn["2026-01"] = true
	svc := newTestService(repo)

	result, err := svc.GenerateAll(context.Background(), Period{Year: 2026, Month: time.February})
	if err != nil {
		t.Fatalf("GenerateAll failed: %v", err)
	}

	// sugar fails in January and its walk stops; bread still generates.
	if result.Failed != 1 {
		t.Errorf("failed = %d, want 1", result.Failed)
	}
	if result.Generated != 1 {
		t.Errorf("generated = %d, want 1 (bread February)", result.Generated)
	}
	if _, err := repo.Get(context.Background(), sugar(), Period{Year: 2026, Month: time.February}); !apperror.IsNotFound(err) {
		t.Error("a failed month must stop that item's walk")
	}
	if _, err := repo.Get(context.Background(), bread(), Period{Year: 2026, Month: time.February}); err != nil {
		t.Errorf("bread February missing: %v", err)
	}
}

func TestGenerateAll_SkipsExisting(t *testing.T) {
	repo := newRepo()
	repo.addFlow(sugar(), ledger.MovementIn, 10, "50.00", 2026, time.March, 1)
	svc := newTestService(repo)

	target := march()
	if _, err := svc.Generate(context.Background(), sugar(), target); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	result, err := svc.GenerateAll(context.Background(), target)
	if err != nil {
		t.Fatalf("GenerateAll failed: %v", err)
	}
	if result.Generated != 0 || result.Skipped != 1 {
		t.Errorf("generated=%d skipped=%d, want 0/1", result.Generated, result.Skipped)
	}
}

package conversion

import (
	"context"
	"fmt"

	"invcore/internal/core/apperror"
	"invcore/internal/core/clock"
	"invcore/internal/core/id"
	"invcore/internal/core/tx"
	"invcore/internal/core/types"
	"invcore/internal/domain/fifo"
	"invcore/internal/domain/ledger"
	"invcore/pkg/logger"
)

// RefCodes issues unique, human-readable reference codes (CNV-2026-00001).
type RefCodes interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// Service coordinates conversion/production executions.
//
// One execution is a state machine VALIDATE -> CONSUME_INPUTS ->
// CREDIT_OUTPUTS -> RECORD -> COMMIT run inside a single transaction; any
// failure rolls back every ledger entry and the record written so far. A
// conversion either fully happens or leaves no trace.
type Service struct {
	records    RecordRepository
	templates  TemplateRepository
	ledgerRepo ledger.Repository
	engine     *fifo.Engine
	txManager  tx.Manager
	refCodes   RefCodes
	refresher  ledger.Refresher
	clk        clock.Clock
}

// NewService creates the conversion coordinator.
func NewService(
	records RecordRepository,
	templates TemplateRepository,
	ledgerRepo ledger.Repository,
	engine *fifo.Engine,
	txManager tx.Manager,
	refCodes RefCodes,
	refresher ledger.Refresher,
	clk clock.Clock,
) *Service {
	return &Service{
		records:    records,
		templates:  templates,
		ledgerRepo: ledgerRepo,
		engine:     engine,
		txManager:  txManager,
		refCodes:   refCodes,
		refresher:  refresher,
		clk:        clk,
	}
}

// ExecuteCommand describes one conversion execution.
type ExecuteCommand struct {
	Inputs     Lines  `json:"inputs"`
	Outputs    Lines  `json:"outputs"`
	TemplateID *id.ID `json:"templateId,omitempty"`
	Notes      string `json:"notes,omitempty"`
	Actor      string `json:"-"`
}

// Execute runs one conversion atomically and returns its record.
// On a concurrency conflict the whole transaction is retried exactly once.
func (s *Service) Execute(ctx context.Context, cmd ExecuteCommand) (*Record, error) {
	if err := cmd.Inputs.Validate("input"); err != nil {
		return nil, err
	}
	if err := cmd.Outputs.Validate("output"); err != nil {
		return nil, err
	}
	if cmd.TemplateID != nil {
		if _, err := s.templates.GetByID(ctx, *cmd.TemplateID); err != nil {
			return nil, err
		}
	}

	refCode, err := s.refCodes.Next(ctx, "CNV")
	if err != nil {
		return nil, fmt.Errorf("generate reference code: %w", err)
	}

	var record *Record
	var touched []ledger.ItemRef
	run := func() error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			rec, items, err := s.executeInTx(ctx, cmd, refCode)
			if err != nil {
				return err
			}
			record = rec
			touched = items
			return nil
		})
	}

	err = run()
	if apperror.IsConcurrencyConflict(err) {
		logger.Warn(ctx, "conversion hit concurrency conflict, retrying once", "reference_code", refCode)
		err = run()
	}
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "conversion executed",
		"reference_code", record.ReferenceCode,
		"inputs", len(record.Inputs),
		"outputs", len(record.Outputs),
		"total_input_cost", record.TotalInputCost,
	)

	// Best-effort, outside the atomic boundary.
	s.refresher.Schedule(touched...)
	return record, nil
}

// executeInTx runs the VALIDATE .. RECORD steps inside the caller transaction.
func (s *Service) executeInTx(ctx context.Context, cmd ExecuteCommand, refCode string) (*Record, []ledger.ItemRef, error) {
	inputs := aggregateLines(cmd.Inputs)

	// VALIDATE: report every short input together, before touching the ledger.
	if err := s.checkAvailability(ctx, inputs); err != nil {
		return nil, nil, err
	}

	// CONSUME_INPUTS: one engine pass per aggregated input; one OUT entry per
	// batch actually touched, tagged with the shared reference code.
	entries, totalCost, consumptions, err := s.consumeInputs(ctx, inputs, refCode, cmd.Actor)
	if err != nil {
		return nil, nil, err
	}

	// CREDIT_OUTPUTS: one IN entry per output at the provided or derived cost.
	outEntries, err := s.creditOutputs(cmd.Outputs, totalCost, refCode, cmd.Actor)
	if err != nil {
		return nil, nil, err
	}
	entries = append(entries, outEntries...)

	if err := s.ledgerRepo.InsertBatch(ctx, entries); err != nil {
		return nil, nil, err
	}

	// RECORD: snapshot resolved lines and total input cost.
	record := &Record{
		ID:             id.New(),
		ReferenceCode:  refCode,
		TemplateID:     cmd.TemplateID,
		Inputs:         snapshotInputs(cmd.Inputs, consumptions),
		Outputs:        cmd.Outputs,
		TotalInputCost: totalCost,
		Status:         RecordCompleted,
		Notes:          cmd.Notes,
		CreatedAt:      s.clk.Now(),
		CreatedBy:      actorOrSystem(cmd.Actor),
	}
	if err := s.records.Insert(ctx, record); err != nil {
		return nil, nil, err
	}

	touched := make([]ledger.ItemRef, 0, len(inputs)+len(cmd.Outputs))
	for _, in := range inputs {
		touched = append(touched, in.item)
	}
	for _, out := range cmd.Outputs {
		touched = append(touched, out.Item())
	}
	return record, touched, nil
}

// CalculateRequirements is the dry-run feasibility check for a production
// plan. Same-item requirements from different templates are summed before
// comparison, mirroring how ExecuteBulk consumes. No mutation.
func (s *Service) CalculateRequirements(ctx context.Context, plans []PlanItem) (Requirements, error) {
	scaled, _, err := s.resolvePlans(ctx, plans)
	if err != nil {
		return Requirements{}, err
	}

	inputs := aggregateLines(scaled)
	result := Requirements{Feasible: true}
	for _, in := range inputs {
		available, err := s.engine.Availability(ctx, in.item)
		if err != nil {
			return Requirements{}, err
		}
		line := RequirementLine{
			Item:      in.item,
			Unit:      in.unit,
			Required:  in.qty,
			Available: available,
		}
		if available < in.qty {
			line.Shortfall = in.qty - available
			result.Feasible = false
		}
		result.Lines = append(result.Lines, line)
	}
	return result, nil
}

// ExecuteBulk runs a multi-template production plan as one atomic unit:
// aggregated availability check and consumption, one shared reference code,
// one record per template for audit granularity.
func (s *Service) ExecuteBulk(ctx context.Context, cmd BulkCommand) ([]*Record, error) {
	scaledInputs, resolved, err := s.resolvePlans(ctx, cmd.Plans)
	if err != nil {
		return nil, err
	}

	refCode, err := s.refCodes.Next(ctx, "CNV")
	if err != nil {
		return nil, fmt.Errorf("generate reference code: %w", err)
	}

	var records []*Record
	var touched []ledger.ItemRef
	run := func() error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			recs, items, err := s.executeBulkInTx(ctx, cmd, scaledInputs, resolved, refCode)
			if err != nil {
				return err
			}
			records = recs
			touched = items
			return nil
		})
	}

	err = run()
	if apperror.IsConcurrencyConflict(err) {
		logger.Warn(ctx, "bulk production hit concurrency conflict, retrying once", "reference_code", refCode)
		err = run()
	}
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "bulk production executed",
		"reference_code", refCode,
		"templates", len(records),
	)

	s.refresher.Schedule(touched...)
	return records, nil
}

func (s *Service) executeBulkInTx(
	ctx context.Context,
	cmd BulkCommand,
	scaledInputs Lines,
	resolved []resolvedPlan,
	refCode string,
) ([]*Record, []ledger.ItemRef, error) {
	inputs := aggregateLines(scaledInputs)

	if err := s.checkAvailability(ctx, inputs); err != nil {
		return nil, nil, err
	}

	entries, _, consumptions, err := s.consumeInputs(ctx, inputs, refCode, cmd.Actor)
	if err != nil {
		return nil, nil, err
	}

	// Per-item weighted average unit cost over the plan-level consumption;
	// each template's record carries its proportional share.
	avgUnitCost := make(map[string]types.Money, len(consumptions))
	for key, c := range consumptions {
		avgUnitCost[key] = c.TotalCost.Div(aggregateQty(inputs, key).Decimal())
	}

	touched := make([]ledger.ItemRef, 0, len(inputs))
	for _, in := range inputs {
		touched = append(touched, in.item)
	}

	records := make([]*Record, 0, len(resolved))
	for _, plan := range resolved {
		templateCost := types.ZeroMoney()
		for _, in := range plan.inputs {
			templateCost = templateCost.Add(avgUnitCost[in.Item().Key()].Mul(in.Quantity.Decimal()))
		}

		outEntries, err := s.creditOutputs(plan.outputs, templateCost, refCode, cmd.Actor)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, outEntries...)
		for _, out := range plan.outputs {
			touched = append(touched, out.Item())
		}

		templateID := plan.template.ID
		records = append(records, &Record{
			ID:             id.New(),
			ReferenceCode:  refCode,
			TemplateID:     &templateID,
			Inputs:         plan.inputs,
			Outputs:        plan.outputs,
			TotalInputCost: templateCost,
			Status:         RecordCompleted,
			Notes:          cmd.Notes,
			CreatedAt:      s.clk.Now(),
			CreatedBy:      actorOrSystem(cmd.Actor),
		})
	}

	if err := s.ledgerRepo.InsertBatch(ctx, entries); err != nil {
		return nil, nil, err
	}
	for _, record := range records {
		if err := s.records.Insert(ctx, record); err != nil {
			return nil, nil, err
		}
	}
	return records, touched, nil
}

// GetRecord retrieves one conversion record.
func (s *Service) GetRecord(ctx context.Context, recordID id.ID) (*Record, error) {
	return s.records.GetByID(ctx, recordID)
}

// GetTemplate retrieves one template.
func (s *Service) GetTemplate(ctx context.Context, templateID id.ID) (*Template, error) {
	return s.templates.GetByID(ctx, templateID)
}

// ListTemplates lists templates.
func (s *Service) ListTemplates(ctx context.Context, filter TemplateFilter) ([]*Template, error) {
	return s.templates.List(ctx, filter)
}

// --- plan resolution ---

// PlanItem is one template execution in a production plan.
type PlanItem struct {
	TemplateID id.ID `json:"templateId"`
	Count      int   `json:"count"`
}

// BulkCommand describes a multi-template production run.
type BulkCommand struct {
	Plans []PlanItem `json:"plans"`
	Notes string     `json:"notes,omitempty"`
	Actor string     `json:"-"`
}

// RequirementLine reports required vs available for one aggregated input.
type RequirementLine struct {
	Item      ledger.ItemRef `json:"item"`
	Unit      string         `json:"unit"`
	Required  types.Quantity `json:"required"`
	Available types.Quantity `json:"available"`
	Shortfall types.Quantity `json:"shortfall"`
}

// Requirements is the dry-run feasibility result for a plan.
type Requirements struct {
	Lines    []RequirementLine `json:"lines"`
	Feasible bool              `json:"feasible"`
}

type resolvedPlan struct {
	template *Template
	inputs   Lines
	outputs  Lines
}

// resolvePlans loads the plan's templates and scales their recipes by count.
func (s *Service) resolvePlans(ctx context.Context, plans []PlanItem) (Lines, []resolvedPlan, error) {
	if len(plans) == 0 {
		return nil, nil, apperror.NewValidation("at least one plan item is required")
	}

	var allInputs Lines
	resolved := make([]resolvedPlan, 0, len(plans))
	for i, plan := range plans {
		if plan.Count <= 0 {
			return nil, nil, apperror.NewValidation("plan count must be positive").
				WithDetail("plan", i)
		}
		tmpl, err := s.templates.GetByID(ctx, plan.TemplateID)
		if err != nil {
			return nil, nil, err
		}
		if tmpl.Status != TemplateActive {
			return nil, nil, apperror.NewValidation("template is not active").
				WithDetail("template_id", tmpl.ID).
				WithDetail("status", string(tmpl.Status))
		}

		inputs := scaleLines(tmpl.Inputs, int64(plan.Count))
		outputs := scaleLines(tmpl.Outputs, int64(plan.Count))
		allInputs = append(allInputs, inputs...)
		resolved = append(resolved, resolvedPlan{template: tmpl, inputs: inputs, outputs: outputs})
	}
	return allInputs, resolved, nil
}

// --- shared execution steps ---

type aggregatedInput struct {
	item ledger.ItemRef
	unit string
	qty  types.Quantity
}

// aggregateLines sums same-item quantities, preserving first-seen order.
// Aggregation before consumption prevents double-counting availability when
// multiple lines (or templates) require the same item.
func aggregateLines(lines Lines) []aggregatedInput {
	index := make(map[string]int, len(lines))
	var result []aggregatedInput
	for _, line := range lines {
		key := line.Item().Key()
		if i, ok := index[key]; ok {
			result[i].qty += line.Quantity
			continue
		}
		index[key] = len(result)
		result = append(result, aggregatedInput{item: line.Item(), unit: line.Unit, qty: line.Quantity})
	}
	return result
}

func aggregateQty(inputs []aggregatedInput, key string) types.Quantity {
	for _, in := range inputs {
		if in.item.Key() == key {
			return in.qty
		}
	}
	return 0
}

// checkAvailability pre-checks every aggregated input and reports all
// shortfalls together.
func (s *Service) checkAvailability(ctx context.Context, inputs []aggregatedInput) error {
	type shortage struct {
		SKU       string `json:"sku"`
		Required  string `json:"required"`
		Available string `json:"available"`
	}
	var shortages []shortage
	for _, in := range inputs {
		available, err := s.engine.Availability(ctx, in.item)
		if err != nil {
			return err
		}
		if available < in.qty {
			shortages = append(shortages, shortage{
				SKU:       in.item.SKU,
				Required:  in.qty.String(),
				Available: available.String(),
			})
		}
	}
	if len(shortages) > 0 {
		err := apperror.NewInsufficientStock(shortages[0].SKU, shortages[0].Required, shortages[0].Available)
		return err.WithDetail("inputs", shortages)
	}
	return nil
}

// consumeInputs drives the FIFO engine per aggregated input and materializes
// one OUT entry per batch touched, each carrying that batch's unit cost.
func (s *Service) consumeInputs(
	ctx context.Context,
	inputs []aggregatedInput,
	refCode string,
	actor string,
) ([]*ledger.MovementEntry, types.Money, map[string]fifo.Consumption, error) {
	now := s.clk.Now()
	today := clock.Today(s.clk)
	totalCost := types.ZeroMoney()
	consumptions := make(map[string]fifo.Consumption, len(inputs))
	var entries []*ledger.MovementEntry

	for _, in := range inputs {
		consumption, err := s.engine.Consume(ctx, in.item, in.qty)
		if err != nil {
			return nil, types.ZeroMoney(), nil, err
		}
		consumptions[in.item.Key()] = consumption
		totalCost = totalCost.Add(consumption.TotalCost)

		for _, alloc := range consumption.Allocations {
			entries = append(entries, &ledger.MovementEntry{
				ID:            id.New(),
				ItemType:      in.item.ItemType,
				FkID:          in.item.FkID,
				SKU:           in.item.SKU,
				VariantID:     in.item.VariantID,
				BatchNumber:   refCode,
				MovementType:  ledger.MovementOut,
				Source:        ledger.SourceProduction,
				Quantity:      alloc.QtyTaken,
				UnitCost:      alloc.UnitCost,
				EffectiveDate: today,
				Status:        ledger.StatusActive,
				CreatedAt:     now,
				CreatedBy:     actorOrSystem(actor),
				UpdatedAt:     now,
			})
		}
	}
	return entries, totalCost, consumptions, nil
}

// creditOutputs builds one IN entry per output. Outputs without a provided
// unit cost share the total input cost evenly per unit of unpriced output.
func (s *Service) creditOutputs(outputs Lines, totalInputCost types.Money, refCode, actor string) ([]*ledger.MovementEntry, error) {
	now := s.clk.Now()
	today := clock.Today(s.clk)

	var unpricedQty types.Quantity
	for _, out := range outputs {
		if out.UnitCost == nil {
			unpricedQty += out.Quantity
		}
	}

	derivedUnitCost := types.ZeroMoney()
	if unpricedQty.IsPositive() {
		derivedUnitCost = totalInputCost.Div(unpricedQty.Decimal())
	}

	entries := make([]*ledger.MovementEntry, 0, len(outputs))
	for _, out := range outputs {
		unitCost := derivedUnitCost
		if out.UnitCost != nil {
			unitCost = *out.UnitCost
		}
		entries = append(entries, &ledger.MovementEntry{
			ID:            id.New(),
			ItemType:      out.ItemType,
			FkID:          out.FkID,
			SKU:           out.SKU,
			VariantID:     out.VariantID,
			BatchNumber:   refCode,
			MovementType:  ledger.MovementIn,
			Source:        ledger.SourceProduction,
			Quantity:      out.Quantity,
			RemainingQty:  out.Quantity,
			UnitCost:      unitCost,
			EffectiveDate: today,
			Status:        ledger.StatusActive,
			CreatedAt:     now,
			CreatedBy:     actorOrSystem(actor),
			UpdatedAt:     now,
		})
	}
	return entries, nil
}

// snapshotInputs enriches the command's input lines with the realized FIFO
// unit cost so the record reflects what the execution actually cost.
func snapshotInputs(inputs Lines, consumptions map[string]fifo.Consumption) Lines {
	snapshot := make(Lines, len(inputs))
	copy(snapshot, inputs)
	for i, line := range snapshot {
		c, ok := consumptions[line.Item().Key()]
		if !ok || line.Quantity.IsZero() {
			continue
		}
		// Weighted average over the batches this execution touched.
		agg := c.Required
		if agg.IsPositive() {
			unit := c.TotalCost.Div(agg.Decimal())
			snapshot[i].UnitCost = &unit
		}
	}
	return snapshot
}

func scaleLines(lines Lines, count int64) Lines {
	scaled := make(Lines, len(lines))
	copy(scaled, lines)
	for i := range scaled {
		scaled[i].Quantity = types.NewQuantityFromInt64Scaled(scaled[i].Quantity.Int64Scaled() * count)
	}
	return scaled
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}

package dto

import (
	"invcore/internal/core/apperror"
	"invcore/internal/domain/conversion"
)

// ExecuteConversionRequest runs one conversion.
type ExecuteConversionRequest struct {
	Inputs     conversion.Lines `json:"inputs" binding:"required"`
	Outputs    conversion.Lines `json:"outputs" binding:"required"`
	TemplateID string           `json:"templateId"`
	Notes      string           `json:"notes"`
}

// ToCommand converts the request into a domain command.
func (r ExecuteConversionRequest) ToCommand(actor string) (conversion.ExecuteCommand, error) {
	cmd := conversion.ExecuteCommand{
		Inputs:  r.Inputs,
		Outputs: r.Outputs,
		Notes:   r.Notes,
		Actor:   actor,
	}
	if r.TemplateID != "" {
		templateID, err := parseID(r.TemplateID, "templateId")
		if err != nil {
			return cmd, err
		}
		cmd.TemplateID = &templateID
	}
	return cmd, nil
}

// PlanItemRequest is one template execution in a production plan.
type PlanItemRequest struct {
	TemplateID string `json:"templateId" binding:"required"`
	Count      int    `json:"count" binding:"required"`
}

// BulkProductionRequest runs a multi-template production plan.
type BulkProductionRequest struct {
	Plans []PlanItemRequest `json:"plans" binding:"required"`
	Notes string            `json:"notes"`
}

// ToCommand converts the request into a domain bulk command.
func (r BulkProductionRequest) ToCommand(actor string) (conversion.BulkCommand, error) {
	cmd := conversion.BulkCommand{Notes: r.Notes, Actor: actor}
	plans, err := toPlanItems(r.Plans)
	if err != nil {
		return cmd, err
	}
	cmd.Plans = plans
	return cmd, nil
}

// RequirementsRequest is the dry-run feasibility check for a plan.
type RequirementsRequest struct {
	Plans []PlanItemRequest `json:"plans" binding:"required"`
}

// ToPlanItems converts the request plans.
func (r RequirementsRequest) ToPlanItems() ([]conversion.PlanItem, error) {
	return toPlanItems(r.Plans)
}

func toPlanItems(reqs []PlanItemRequest) ([]conversion.PlanItem, error) {
	if len(reqs) == 0 {
		return nil, apperror.NewValidation("at least one plan item is required")
	}
	plans := make([]conversion.PlanItem, 0, len(reqs))
	for i, p := range reqs {
		templateID, err := parseID(p.TemplateID, "templateId")
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				return nil, appErr.WithDetail("plan", i)
			}
			return nil, err
		}
		plans = append(plans, conversion.PlanItem{TemplateID: templateID, Count: p.Count})
	}
	return plans, nil
}

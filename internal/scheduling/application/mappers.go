package application

import (
	"time"

	"github.com/marimovDEV/tipografiya/internal/scheduling/domain"
)

func minutes(d time.Duration) float64 {
	return d.Minutes()
}

// ToStepDTO converts a step
func ToStepDTO(s *domain.ProductionStep) StepDTO {
	return StepDTO{
		ID:               s.ID,
		OrderID:          s.OrderID,
		Kind:             s.Kind,
		Sequence:         s.Sequence,
		Status:           s.Status,
		Priority:         s.Priority,
		QueuePosition:    s.QueuePosition,
		MachineID:        s.MachineID,
		DependsOn:        s.DependsOn,
		EstimatedStart:   s.EstimatedStart,
		EstimatedEnd:     s.EstimatedEnd,
		EstimatedMinutes: minutes(s.EstimatedDuration),
		ActualStart:      s.ActualStart,
		ActualEnd:        s.ActualEnd,
		Quantity:         s.Quantity,
		Sheets:           s.Sheets,
	}
}

// ToStepDTOs converts steps
func ToStepDTOs(steps []*domain.ProductionStep) []StepDTO {
	out := make([]StepDTO, 0, len(steps))
	for _, s := range steps {
		out = append(out, ToStepDTO(s))
	}
	return out
}

// ToMachineDTO converts a machine
func ToMachineDTO(m *domain.Machine) *MachineDTO {
	return &MachineDTO{
		ID:             m.ID,
		Name:           m.Name,
		Type:           m.Type,
		HourlyRate:     m.HourlyRate,
		SetupMinutes:   m.SetupMinutes,
		MinutesPerUnit: m.MinutesPerUnit,
		IsActive:       m.IsActive,
	}
}

// ToDowntimeDTO converts a downtime window
func ToDowntimeDTO(d *domain.MachineDowntime) *DowntimeDTO {
	return &DowntimeDTO{
		ID:          d.ID,
		MachineID:   d.MachineID,
		Reason:      d.Reason,
		StartedAt:   d.StartedAt,
		ExpectedEnd: d.ExpectedEnd,
		Resolved:    d.Resolved,
		ResolvedAt:  d.ResolvedAt,
	}
}

// ToTemplateDTO converts a product template
func ToTemplateDTO(t *domain.ProductTemplate) *TemplateDTO {
	return &TemplateDTO{ID: t.ID, Name: t.Name, Routing: t.Routing}
}

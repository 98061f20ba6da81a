package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Machine is a production resource with its own queue
type Machine struct {
	ID             string    `bson:"_id" json:"id"`
	Name           string    `bson:"name" json:"name"`
	Type           string    `bson:"type" json:"type"`
	HourlyRate     float64   `bson:"hourlyRate" json:"hourlyRate"`
	SetupMinutes   float64   `bson:"setupMinutes" json:"setupMinutes"`
	MinutesPerUnit float64   `bson:"minutesPerUnit" json:"minutesPerUnit"`
	IsActive       bool      `bson:"isActive" json:"isActive"`
	CreatedAt      time.Time `bson:"createdAt" json:"createdAt"`
}

// MatchesType reports whether the machine serves a required machine type.
// Matching is a case-insensitive substring test, so "printer" matches
// "Offset Printer".
func (m *Machine) MatchesType(required string) bool {
	if required == "" {
		return false
	}
	return strings.Contains(strings.ToLower(m.Type), strings.ToLower(required))
}

// Duration estimates the machine time for units, or false when the machine
// carries no rate
func (m *Machine) Duration(units int) (float64, bool) {
	if m == nil || m.MinutesPerUnit <= 0 {
		return 0, false
	}
	return m.MinutesPerUnit*float64(units) + m.SetupMinutes, true
}

// MachineDowntime is a window in which a machine cannot work
type MachineDowntime struct {
	ID          string     `bson:"_id" json:"id"`
	MachineID   string     `bson:"machineId" json:"machineId"`
	Reason      string     `bson:"reason" json:"reason"`
	StartedAt   time.Time  `bson:"startedAt" json:"startedAt"`
	ExpectedEnd *time.Time `bson:"expectedEnd,omitempty" json:"expectedEnd,omitempty"`
	Resolved    bool       `bson:"resolved" json:"resolved"`
	ResolvedAt  *time.Time `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
}

// NewMachineDowntime opens a downtime window
func NewMachineDowntime(machineID, reason string, startedAt time.Time, expectedEnd *time.Time) *MachineDowntime {
	return &MachineDowntime{
		ID:          uuid.NewString(),
		MachineID:   machineID,
		Reason:      reason,
		StartedAt:   startedAt,
		ExpectedEnd: expectedEnd,
	}
}

// Resolve closes the window
func (d *MachineDowntime) Resolve(now time.Time) {
	d.Resolved = true
	d.ResolvedAt = &now
}

// AvailableAt is when the machine is expected back. Unknown ends count as
// now plus fallback.
func (d *MachineDowntime) AvailableAt(now time.Time, fallback time.Duration) time.Time {
	if d.ExpectedEnd != nil {
		return *d.ExpectedEnd
	}
	return now.Add(fallback)
}

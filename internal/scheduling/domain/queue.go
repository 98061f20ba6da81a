package domain

import (
	"sort"
	"time"
)

// SortQueue orders steps by queue position, then priority, then estimated
// start. Steps without an estimate sort last among equals.
func SortQueue(steps []*ProductionStep) {
	sort.SliceStable(steps, func(i, j int) bool {
		a, b := steps[i], steps[j]
		if a.QueuePosition != b.QueuePosition {
			return a.QueuePosition < b.QueuePosition
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		switch {
		case a.EstimatedStart == nil:
			return false
		case b.EstimatedStart == nil:
			return true
		}
		return a.EstimatedStart.Before(*b.EstimatedStart)
	})
}

// PlanQueue reorders the pending steps of one machine. Ready steps come
// first by priority then deadline; blocked steps follow in their given
// order. Positions are renumbered from 1 and the new order is returned.
func PlanQueue(pending []*ProductionStep, ready func(*ProductionStep) bool, deadline func(*ProductionStep) time.Time) []*ProductionStep {
	var readySteps, blocked []*ProductionStep
	for _, s := range pending {
		if ready(s) {
			readySteps = append(readySteps, s)
		} else {
			blocked = append(blocked, s)
		}
	}

	sort.SliceStable(readySteps, func(i, j int) bool {
		a, b := readySteps[i], readySteps[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return deadline(a).Before(deadline(b))
	})

	ordered := append(readySteps, blocked...)
	for i, s := range ordered {
		s.QueuePosition = i + 1
	}
	return ordered
}

// NextPosition is one past the highest position among active steps
func NextPosition(steps []*ProductionStep) int {
	maxPos := 0
	for _, s := range steps {
		if s.Active() && s.QueuePosition > maxPos {
			maxPos = s.QueuePosition
		}
	}
	return maxPos + 1
}

// LatestEnd returns the latest estimated end among active steps
func LatestEnd(steps []*ProductionStep) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, s := range steps {
		if !s.Active() || s.EstimatedEnd == nil {
			continue
		}
		if !found || s.EstimatedEnd.After(latest) {
			latest = *s.EstimatedEnd
			found = true
		}
	}
	return latest, found
}

// Ahead returns the active steps that run before step on its machine:
// everything in progress and pending steps with a lower queue position
func Ahead(step *ProductionStep, queue []*ProductionStep) []*ProductionStep {
	var out []*ProductionStep
	for _, s := range queue {
		if s.ID == step.ID || !s.Active() {
			continue
		}
		if s.Status == StepInProgress || s.QueuePosition < step.QueuePosition {
			out = append(out, s)
		}
	}
	return out
}

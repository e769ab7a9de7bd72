package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Recognized phase names.
const (
	PhaseStatic      = "static"
	PhaseInteractive = "interactive"
	PhaseFinetuned   = "finetuned"
)

// KnownPhase reports whether the phase name is one of the three conditions.
func KnownPhase(phase string) bool {
	switch phase {
	case PhaseStatic, PhaseInteractive, PhaseFinetuned:
		return true
	}
	return false
}

// FullType builds the composite "{phase}_{batch_id}" key used for ordering
// and passcode lookup.
func FullType(phase, batchID string) string {
	return phase + "_" + batchID
}

// SplitFullType parses a full_type token back into phase and batch id.
func SplitFullType(fullType string) (phase, batchID string, err error) {
	i := strings.LastIndex(fullType, "_")
	if i <= 0 || i == len(fullType)-1 {
		return "", "", fmt.Errorf("malformed full_type %q", fullType)
	}
	phase, batchID = fullType[:i], fullType[i+1:]
	if !KnownPhase(phase) {
		return "", "", fmt.Errorf("full_type %q references unknown phase %q", fullType, phase)
	}
	return phase, batchID, nil
}

// BatchTimeReport is the participant's self-reported timing for a batch.
type BatchTimeReport struct {
	BatchTimeSeconds float64   `bson:"batch_time_seconds" json:"batch_time_seconds"`
	SataTimeSeconds  float64   `bson:"sata_time_seconds" json:"sata_time_seconds"`
	Feedback         string    `bson:"feedback" json:"feedback"`
	Timestamp        time.Time `bson:"timestamp" json:"timestamp"`
}

// Batch is an ordered, passcode-gated grouping of units within a phase.
type Batch struct {
	Completed        bool             `bson:"completed" json:"completed"`
	Unlocked         bool             `bson:"unlocked" json:"unlocked"`
	SeenInstructions bool             `bson:"seen_instructions" json:"seen_instructions"`
	Abstracts        map[string]*Unit `bson:"abstracts" json:"abstracts"`

	TimeCompletion      *BatchTimeReport `bson:"time_completion,omitempty" json:"time_completion,omitempty"`
	ConfirmedCompletion *bool            `bson:"confirmed_completion,omitempty" json:"confirmed_completion,omitempty"`
}

// OrderedUnitIDs returns the batch's unit ids in presentation order: numeric
// when every id parses as an integer, lexical otherwise.
func (b *Batch) OrderedUnitIDs() []string {
	ids := make([]string, 0, len(b.Abstracts))
	for id := range b.Abstracts {
		ids = append(ids, id)
	}
	numeric := true
	for _, id := range ids {
		if _, err := strconv.Atoi(id); err != nil {
			numeric = false
			break
		}
	}
	if numeric {
		sort.Slice(ids, func(i, j int) bool {
			a, _ := strconv.Atoi(ids[i])
			c, _ := strconv.Atoi(ids[j])
			return a < c
		})
	} else {
		sort.Strings(ids)
	}
	return ids
}

// NextIncompleteUnit returns the first incomplete unit in presentation order.
func (b *Batch) NextIncompleteUnit() (string, *Unit) {
	for _, id := range b.OrderedUnitIDs() {
		if !b.Abstracts[id].Completed {
			return id, b.Abstracts[id]
		}
	}
	return "", nil
}

// CompletedUnitCount counts finished units in the batch.
func (b *Batch) CompletedUnitCount() int {
	n := 0
	for _, u := range b.Abstracts {
		if u.Completed {
			n++
		}
	}
	return n
}

// AllUnitsCompleted reports whether every unit in the batch is done.
func (b *Batch) AllUnitsCompleted() bool {
	for _, u := range b.Abstracts {
		if !u.Completed {
			return false
		}
	}
	return true
}

// Phase holds one experimental condition's batches.
type Phase struct {
	Batches   map[string]*Batch `bson:"batches" json:"batches"`
	Completed bool              `bson:"completed" json:"completed"`
}

// AllBatchesCompleted reports whether every batch in the phase is done.
func (p *Phase) AllBatchesCompleted() bool {
	for _, b := range p.Batches {
		if !b.Completed {
			return false
		}
	}
	return true
}

// ParticipantRecord is the persistent per-participant document. Identity is
// stored lowercased; the allow-list match is case-insensitive.
type ParticipantRecord struct {
	ParticipantID string    `bson:"participant_id" json:"participant_id"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	AcceptedTerms bool      `bson:"accepted_terms" json:"accepted_terms"`

	Phases map[string]*Phase `bson:"phases" json:"phases"`

	// Resumption pointer, flushed at sub-stage transitions and logout.
	LastPage   *string `bson:"last_page" json:"last_page"`
	LastBatch  *string `bson:"last_batch" json:"last_batch"`
	LastUnitID *string `bson:"last_unit_id" json:"last_unit_id"`

	CompletedStudy bool       `bson:"completed_study" json:"completed_study"`
	CompletedAt    *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// Batch resolves the batch for a full_type's phase and batch id, nil when the
// participant was not assigned it.
func (r *ParticipantRecord) Batch(phase, batchID string) *Batch {
	p, ok := r.Phases[phase]
	if !ok || p == nil {
		return nil
	}
	return p.Batches[batchID]
}

// Unit resolves one unit, nil when absent.
func (r *ParticipantRecord) Unit(phase, batchID, unitID string) *Unit {
	b := r.Batch(phase, batchID)
	if b == nil {
		return nil
	}
	return b.Abstracts[unitID]
}

// UnitLocator addresses one unit inside a participant record.
type UnitLocator struct {
	Phase   string
	BatchID string
	UnitID  string
}

// FullType returns the locator's composite batch key.
func (l UnitLocator) FullType() string {
	return FullType(l.Phase, l.BatchID)
}

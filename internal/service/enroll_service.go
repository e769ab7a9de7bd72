package service

import (
	"context"
	"log"
	"strings"
	"time"

	"plstudy/internal/models"
	"plstudy/internal/roster"
	"plstudy/internal/study"
)

// EnrollService is the identity gate. It checks supplied identities against
// the allow-list and, on first entry, pivots the participant's roster rows
// into the nested phase/batch/unit record.
type EnrollService struct {
	store       ParticipantStore
	cfg         *study.Config
	approved    map[string]bool
	assignments map[string][]roster.AssignmentRow
}

// NewEnrollService creates an enroll service. approved holds lowercased
// identities; rows is the full roster.
func NewEnrollService(store ParticipantStore, cfg *study.Config, approved map[string]bool, rows []roster.AssignmentRow) *EnrollService {
	assignments := make(map[string][]roster.AssignmentRow)
	for _, row := range rows {
		assignments[row.ParticipantID] = append(assignments[row.ParticipantID], row)
	}
	return &EnrollService{
		store:       store,
		cfg:         cfg,
		approved:    approved,
		assignments: assignments,
	}
}

// Enroll validates the identity and returns the participant's record,
// creating it from the roster on first entry. The identity match is
// case-insensitive; the stored identity is lowercase. returning reports
// whether the record already existed.
func (s *EnrollService) Enroll(ctx context.Context, rawID string) (rec *models.ParticipantRecord, returning bool, err error) {
	id := strings.ToLower(strings.TrimSpace(rawID))
	if id == "" {
		return nil, false, invalid("participant_id", "please enter your participant ID")
	}
	if !s.approved[id] {
		return nil, false, ErrNotApproved
	}

	rec, err = s.store.Find(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if rec != nil {
		return rec, true, nil
	}

	rows := s.assignments[id]
	if len(rows) == 0 {
		return nil, false, ErrNoAssignments
	}

	rec, err = s.buildRecord(id, rows)
	if err != nil {
		return nil, false, err
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return nil, false, err
	}
	log.Printf("Enrolled participant %s with %d roster rows", id, len(rows))
	return rec, false, nil
}

// buildRecord pivots roster rows into the nested record. Rows referencing
// unknown phases are logged and skipped, never silently dropped.
func (s *EnrollService) buildRecord(id string, rows []roster.AssignmentRow) (*models.ParticipantRecord, error) {
	rec := &models.ParticipantRecord{
		ParticipantID: id,
		CreatedAt:     time.Now().UTC(),
		AcceptedTerms: true,
		Phases: map[string]*models.Phase{
			models.PhaseStatic:      {Batches: map[string]*models.Batch{}},
			models.PhaseInteractive: {Batches: map[string]*models.Batch{}},
			models.PhaseFinetuned:   {Batches: map[string]*models.Batch{}},
		},
	}

	built := 0
	for _, row := range rows {
		phase, batchID, err := models.SplitFullType(row.FullType)
		if err != nil {
			log.Printf("Roster row %d for %s skipped: %v", row.Line, id, err)
			continue
		}
		variant, err := s.cfg.VariantFor(phase)
		if err != nil {
			log.Printf("Roster row %d for %s skipped: %v", row.Line, id, err)
			continue
		}

		batch := rec.Phases[phase].Batches[batchID]
		if batch == nil {
			batch = &models.Batch{
				// Only a batch without a configured passcode is open at
				// creation time; in practice that is the first batch of the
				// global order.
				Unlocked:  s.cfg.PasscodeFor(row.FullType) == nil,
				Abstracts: map[string]*models.Unit{},
			}
			rec.Phases[phase].Batches[batchID] = batch
		}

		batch.Abstracts[row.AbstractID] = buildUnit(row, variant)
		built++
	}

	if built == 0 {
		return nil, integrity("every roster row for %s was unusable", id)
	}
	return rec, nil
}

func buildUnit(row roster.AssignmentRow, variant models.PipelineVariant) *models.Unit {
	unit := &models.Unit{
		AbstractTitle:  row.AbstractTitle,
		AbstractText:   row.AbstractText,
		HumanReference: row.HumanRef,

		MainIdeaQuestion: row.MainIdeaQuestion,
		MethodQuestion:   row.MethodQuestion,
		ResultQuestion:   row.ResultQuestion,

		Stage: variant.Initial(),
	}

	for _, term := range row.Terms {
		unit.TermFamiliarity = append(unit.TermFamiliarity, models.TermEntry{Term: term})
	}

	for i, kp := range row.SataPrompts {
		unit.SataQuestions = append(unit.SataQuestions, models.SataQuestion{
			Key:     kp[0],
			Prompt:  kp[1],
			Choices: row.SataChoices[i],
			Correct: row.SataCorrect[i],
		})
	}

	return unit
}

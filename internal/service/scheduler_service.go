package service

import (
	"context"
	"errors"
	"time"

	"plstudy/internal/models"
	"plstudy/internal/study"
	"plstudy/internal/validation"
)

// WorkItem is the scheduler's answer to "what should this participant do
// next": the first incomplete batch in the global order.
type WorkItem struct {
	Phase    string
	BatchID  string
	FullType string
	Unlocked bool
	// Index is the batch's position in the global order.
	Index int
}

// SchedulerService walks the fixed ordered list of (phase, batch) pairs and
// enforces the passcode gate in front of each batch.
type SchedulerService struct {
	store ParticipantStore
	cfg   *study.Config
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(store ParticipantStore, cfg *study.Config) *SchedulerService {
	return &SchedulerService{store: store, cfg: cfg}
}

// NextUnitOfWork returns the first batch in the global order that the
// participant holds and has not completed, or nil when the study is
// finished. Batches the roster never assigned are skipped; completed batches
// are never revisited.
func (s *SchedulerService) NextUnitOfWork(rec *models.ParticipantRecord) *WorkItem {
	for _, fullType := range s.cfg.BatchOrder {
		phase, batchID, err := models.SplitFullType(fullType)
		if err != nil {
			// Order entries are validated at config load.
			continue
		}
		batch := rec.Batch(phase, batchID)
		if batch == nil {
			continue
		}
		if !batch.Completed {
			return &WorkItem{
				Phase:    phase,
				BatchID:  batchID,
				FullType: fullType,
				Unlocked: batch.Unlocked,
				Index:    s.cfg.IndexOf(fullType),
			}
		}
	}
	return nil
}

// AttemptUnlock compares the supplied code case-sensitively against the
// configured passcode for the batch. Success persists unlocked=true and is
// idempotent; failure leaves state unchanged.
func (s *SchedulerService) AttemptUnlock(ctx context.Context, rec *models.ParticipantRecord, fullType, code string) (bool, error) {
	phase, batchID, err := models.SplitFullType(fullType)
	if err != nil {
		return false, integrity("unlock attempt for malformed full_type %q", fullType)
	}
	batch := rec.Batch(phase, batchID)
	if batch == nil {
		return false, integrity("participant %s has no batch %s", rec.ParticipantID, fullType)
	}
	if batch.Unlocked {
		return true, nil
	}

	if want := s.cfg.PasscodeFor(fullType); want != nil {
		if err := validation.ValidatePasscodeShape(code); err != nil {
			var shapeErr validation.ValidationError
			if errors.As(err, &shapeErr) {
				return false, invalid(shapeErr.Field, "%s", shapeErr.Message)
			}
			return false, invalid("passcode", "%s", err)
		}
		if code != *want {
			return false, invalid("passcode", "incorrect passcode for %s", fullType)
		}
	}

	if err := s.store.SetBatchUnlocked(ctx, rec.ParticipantID, phase, batchID); err != nil {
		return false, err
	}
	batch.Unlocked = true
	return true, nil
}

// OnUnitCompleted runs the completion cascade after a unit's terminal
// transition: batch completed when every unit is, phase completed when every
// batch is, study completed when no work remains. Returns whether the whole
// study just finished.
func (s *SchedulerService) OnUnitCompleted(ctx context.Context, rec *models.ParticipantRecord, loc models.UnitLocator) (bool, error) {
	batch := rec.Batch(loc.Phase, loc.BatchID)
	if batch == nil {
		return false, integrity("participant %s has no batch %s", rec.ParticipantID, loc.FullType())
	}

	if !batch.Completed && batch.AllUnitsCompleted() {
		if err := s.store.SetBatchCompleted(ctx, rec.ParticipantID, loc.Phase, loc.BatchID); err != nil {
			return false, err
		}
		batch.Completed = true
	}

	phase := rec.Phases[loc.Phase]
	if phase != nil && !phase.Completed && phase.AllBatchesCompleted() {
		if err := s.store.SetPhaseCompleted(ctx, rec.ParticipantID, loc.Phase); err != nil {
			return false, err
		}
		phase.Completed = true
	}

	if s.NextUnitOfWork(rec) != nil {
		return false, nil
	}
	if !rec.CompletedStudy {
		now := time.Now().UTC()
		if err := s.store.SetStudyCompleted(ctx, rec.ParticipantID, now); err != nil {
			return false, err
		}
		rec.CompletedStudy = true
		rec.CompletedAt = &now
	}
	return true, nil
}

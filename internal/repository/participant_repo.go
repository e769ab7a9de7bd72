package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"plstudy/internal/database"
	"plstudy/internal/models"
)

// ParticipantRepository handles participant record database operations. All
// writes are partial-path updates against the nested
// phases.<phase>.batches.<batch>.abstracts.<unit> document shape; callers
// never rewrite the whole document.
type ParticipantRepository struct {
	coll *mongo.Collection
}

// NewParticipantRepository creates a new participant repository
func NewParticipantRepository(db *database.DB) *ParticipantRepository {
	return &ParticipantRepository{coll: db.Participants()}
}

// unitPath builds the dotted path to a field of one unit.
func unitPath(loc models.UnitLocator, field string) string {
	return fmt.Sprintf("phases.%s.batches.%s.abstracts.%s.%s", loc.Phase, loc.BatchID, loc.UnitID, field)
}

// batchPath builds the dotted path to a field of one batch.
func batchPath(phase, batchID, field string) string {
	return fmt.Sprintf("phases.%s.batches.%s.%s", phase, batchID, field)
}

// Find retrieves a participant record by identity. Returns (nil, nil) when
// no record exists.
func (r *ParticipantRepository) Find(ctx context.Context, participantID string) (*models.ParticipantRecord, error) {
	var rec models.ParticipantRecord
	err := r.coll.FindOne(ctx, bson.M{"participant_id": participantID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load participant %s: %w", participantID, err)
	}
	return &rec, nil
}

// Insert stores a freshly enrolled participant record.
func (r *ParticipantRepository) Insert(ctx context.Context, rec *models.ParticipantRecord) error {
	if _, err := r.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("failed to insert participant %s: %w", rec.ParticipantID, err)
	}
	return nil
}

// setFields applies a partial-field $set update. A missing record is an
// error: a failed write must block the stage transition.
func (r *ParticipantRepository) setFields(ctx context.Context, participantID string, fields bson.M) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"participant_id": participantID}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to update participant %s: %w", participantID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("participant %s not found for update", participantID)
	}
	return nil
}

// SetStage persists a unit's pipeline stage.
func (r *ParticipantRepository) SetStage(ctx context.Context, participantID string, loc models.UnitLocator, stage models.Stage) error {
	return r.setFields(ctx, participantID, bson.M{unitPath(loc, "stage"): stage})
}

// SetTermFamiliarity persists the full ordered term list of a unit.
func (r *ParticipantRepository) SetTermFamiliarity(ctx context.Context, participantID string, loc models.UnitLocator, terms []models.TermEntry) error {
	return r.setFields(ctx, participantID, bson.M{unitPath(loc, "term_familiarity"): terms})
}

// SetStageSeconds records elapsed time for one pipeline stage of a unit.
func (r *ParticipantRepository) SetStageSeconds(ctx context.Context, participantID string, loc models.UnitLocator, stage models.Stage, seconds float64) error {
	return r.setFields(ctx, participantID, bson.M{unitPath(loc, "stage_seconds."+string(stage)): seconds})
}

// AppendConversationTurn appends one turn to a unit's conversation log.
func (r *ParticipantRepository) AppendConversationTurn(ctx context.Context, participantID string, loc models.UnitLocator, turn models.ChatTurn) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"participant_id": participantID},
		bson.M{"$push": bson.M{unitPath(loc, "conversation_log"): turn}},
	)
	if err != nil {
		return fmt.Errorf("failed to append conversation turn for %s: %w", participantID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("participant %s not found for update", participantID)
	}
	return nil
}

// SetGeneratedSummary persists the rewritten text for a unit.
func (r *ParticipantRepository) SetGeneratedSummary(ctx context.Context, participantID string, loc models.UnitLocator, summary string) error {
	return r.setFields(ctx, participantID, bson.M{unitPath(loc, "generated_summary"): summary})
}

// SetShortAnswers persists the free-text comprehension answers of a unit.
func (r *ParticipantRepository) SetShortAnswers(ctx context.Context, participantID string, loc models.UnitLocator, answers *models.ShortAnswerSet) error {
	return r.setFields(ctx, participantID, bson.M{unitPath(loc, "short_answers"): answers})
}

// SetSataAnswers persists the select-many selections of a unit.
func (r *ParticipantRepository) SetSataAnswers(ctx context.Context, participantID string, loc models.UnitLocator, answers map[string]*models.SataAnswer) error {
	return r.setFields(ctx, participantID, bson.M{unitPath(loc, "sata_answers"): answers})
}

// SetLikert persists the comparison ratings of a unit.
func (r *ParticipantRepository) SetLikert(ctx context.Context, participantID string, loc models.UnitLocator, report *models.LikertReport) error {
	return r.setFields(ctx, participantID, bson.M{unitPath(loc, "likert"): report})
}

// SetUnitCompleted marks a unit completed. The flag is monotonic; it is only
// ever set to true, at the terminal pipeline transition.
func (r *ParticipantRepository) SetUnitCompleted(ctx context.Context, participantID string, loc models.UnitLocator) error {
	return r.setFields(ctx, participantID, bson.M{
		unitPath(loc, "completed"): true,
		unitPath(loc, "stage"):     models.StageCompleted,
	})
}

// SetBatchCompleted marks a batch completed.
func (r *ParticipantRepository) SetBatchCompleted(ctx context.Context, participantID, phase, batchID string) error {
	return r.setFields(ctx, participantID, bson.M{batchPath(phase, batchID, "completed"): true})
}

// SetPhaseCompleted marks a phase completed.
func (r *ParticipantRepository) SetPhaseCompleted(ctx context.Context, participantID, phase string) error {
	return r.setFields(ctx, participantID, bson.M{"phases." + phase + ".completed": true})
}

// SetBatchUnlocked marks a batch unlocked after a successful passcode attempt.
func (r *ParticipantRepository) SetBatchUnlocked(ctx context.Context, participantID, phase, batchID string) error {
	return r.setFields(ctx, participantID, bson.M{batchPath(phase, batchID, "unlocked"): true})
}

// SetSeenInstructions records that the batch instructions were shown.
func (r *ParticipantRepository) SetSeenInstructions(ctx context.Context, participantID, phase, batchID string) error {
	return r.setFields(ctx, participantID, bson.M{batchPath(phase, batchID, "seen_instructions"): true})
}

// SetBatchTimeReport persists the self-reported batch timing survey.
func (r *ParticipantRepository) SetBatchTimeReport(ctx context.Context, participantID, phase, batchID string, report *models.BatchTimeReport) error {
	return r.setFields(ctx, participantID, bson.M{batchPath(phase, batchID, "time_completion"): report})
}

// SetConfirmedCompletion persists the participant's completion confirmation.
func (r *ParticipantRepository) SetConfirmedCompletion(ctx context.Context, participantID, phase, batchID string, confirmed bool) error {
	return r.setFields(ctx, participantID, bson.M{batchPath(phase, batchID, "confirmed_completion"): confirmed})
}

// SetResumePointer flushes the resumption pointer.
func (r *ParticipantRepository) SetResumePointer(ctx context.Context, participantID string, page, batch, unitID *string) error {
	return r.setFields(ctx, participantID, bson.M{
		"last_page":    page,
		"last_batch":   batch,
		"last_unit_id": unitID,
	})
}

// SetStudyCompleted marks the whole study finished for a participant.
func (r *ParticipantRepository) SetStudyCompleted(ctx context.Context, participantID string, at time.Time) error {
	return r.setFields(ctx, participantID, bson.M{
		"completed_study": true,
		"completed_at":    at,
	})
}

// ListAll retrieves every participant record, for export tooling.
func (r *ParticipantRepository) ListAll(ctx context.Context) ([]models.ParticipantRecord, error) {
	cursor, err := r.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer cursor.Close(ctx)

	var records []models.ParticipantRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode participants: %w", err)
	}
	return records, nil
}

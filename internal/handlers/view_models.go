package handlers

import (
	"plstudy/internal/models"
	"plstudy/internal/service"
)

// TermView is one vocabulary term with the participant's recorded ratings.
type TermView struct {
	Term             string   `json:"term"`
	FamiliarityScore *int     `json:"familiarity_score,omitempty"`
	ExtraInformation []string `json:"extra_information,omitempty"`
}

// QuestionView is one question without its answer key.
type QuestionView struct {
	Key     string   `json:"key"`
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices,omitempty"`
}

// ChatTurnView is one conversation turn.
type ChatTurnView struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UnitView is the abstract the participant is currently working through.
// Answer keys never leave the server; the summary field is only populated
// once the unit has passed the generation stage.
type UnitView struct {
	UnitID         string              `json:"unit_id"`
	Title          string              `json:"title"`
	Abstract       string              `json:"abstract"`
	Stage          string              `json:"stage"`
	Terms          []TermView          `json:"terms,omitempty"`
	ShortQuestions []QuestionView      `json:"short_questions,omitempty"`
	SataQuestions  []QuestionView      `json:"sata_questions,omitempty"`
	Conversation   []ChatTurnView      `json:"conversation,omitempty"`
	Summary        string              `json:"summary,omitempty"`
	QuestionIndex  int                 `json:"question_index"`
	Drafts         map[string]string   `json:"drafts,omitempty"`
	SataDrafts     map[string][]string `json:"sata_drafts,omitempty"`
}

// BatchView describes where the participant stands in the batch order.
type BatchView struct {
	FullType       string `json:"full_type"`
	Phase          string `json:"phase"`
	Position       int    `json:"position"`
	Unlocked       bool   `json:"unlocked"`
	NeedsPasscode  bool   `json:"needs_passcode"`
	Instructions   bool   `json:"seen_instructions"`
	UnitsCompleted int    `json:"units_completed"`
	UnitsTotal     int    `json:"units_total"`
}

// StateView is the full answer to GET /study/state: everything the client
// needs to render the current screen after login or refresh.
type StateView struct {
	ParticipantID    string     `json:"participant_id"`
	StudyCompleted   bool       `json:"study_completed"`
	ComparisonScales []string   `json:"comparison_scales,omitempty"`
	Batch            *BatchView `json:"batch,omitempty"`
	Unit             *UnitView  `json:"unit,omitempty"`
	CSRFToken        string     `json:"csrf_token,omitempty"`
}

func newUnitView(unit *models.Unit, unitID string, state *service.SessionState) *UnitView {
	v := &UnitView{
		UnitID:   unitID,
		Title:    unit.AbstractTitle,
		Abstract: unit.AbstractText,
		Stage:    string(unit.Stage),
	}
	for _, term := range unit.TermFamiliarity {
		v.Terms = append(v.Terms, TermView{
			Term:             term.Term,
			FamiliarityScore: term.FamiliarityScore,
			ExtraInformation: term.ExtraInformation,
		})
	}
	if unit.UsesSata() {
		for _, q := range unit.SataQuestions {
			v.SataQuestions = append(v.SataQuestions, QuestionView{Key: q.Key, Prompt: q.Prompt, Choices: q.Choices})
		}
	} else {
		prompts := unit.ShortAnswerQuestions()
		for _, key := range models.ShortAnswerKeys {
			v.ShortQuestions = append(v.ShortQuestions, QuestionView{Key: key, Prompt: prompts[key]})
		}
	}
	for _, turn := range unit.ConversationLog {
		v.Conversation = append(v.Conversation, ChatTurnView{Role: turn.Role, Content: turn.Content})
	}
	switch unit.Stage {
	case models.StageQuestions, models.StageComparison:
		v.Summary = unit.SummaryText()
	}
	if state != nil {
		v.QuestionIndex = state.QuestionIndex()
		v.Drafts = state.Drafts()
		v.SataDrafts = state.SataDrafts()
	}
	return v
}

func newBatchView(rec *models.ParticipantRecord, work *service.WorkItem, needsPasscode bool) *BatchView {
	view := &BatchView{
		FullType:      work.FullType,
		Phase:         work.Phase,
		Position:      work.Index,
		Unlocked:      work.Unlocked,
		NeedsPasscode: needsPasscode,
	}
	if batch := rec.Batch(work.Phase, work.BatchID); batch != nil {
		view.Instructions = batch.SeenInstructions
		view.UnitsCompleted = batch.CompletedUnitCount()
		view.UnitsTotal = len(batch.Abstracts)
	}
	return view
}

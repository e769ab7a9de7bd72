package models

import (
	"strings"
	"time"
)

// Extra-information options a participant can request for a term.
const (
	ExtraInfoDefinition = "Definition"
	ExtraInfoExample    = "Example"
	ExtraInfoBackground = "Background"
	ExtraInfoNone       = "None"
)

// Short-answer question keys, in presentation order.
var ShortAnswerKeys = []string{"main_idea", "method", "result"}

// TermEntry is one vocabulary item rated during the familiarity stage.
type TermEntry struct {
	Term             string   `bson:"term" json:"term"`
	FamiliarityScore *int     `bson:"familiarity_score" json:"familiarity_score"`
	ExtraInformation []string `bson:"extra_information" json:"extra_information"`
}

// Scored reports whether the participant has rated this term.
func (t *TermEntry) Scored() bool {
	return t.FamiliarityScore != nil
}

// ChatTurn is one message in a unit's conversation log.
type ChatTurn struct {
	Role      string    `bson:"role" json:"role"`
	Content   string    `bson:"content" json:"content"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// SataQuestion is a select-all-that-apply comprehension question.
type SataQuestion struct {
	Key     string   `bson:"key" json:"key"`
	Prompt  string   `bson:"prompt" json:"prompt"`
	Choices []string `bson:"choices" json:"choices"`
	Correct []string `bson:"correct" json:"-"`
}

// SataAnswer holds a participant's selections for one SATA question.
type SataAnswer struct {
	Selected    []string `bson:"selected" json:"selected"`
	TimeSeconds float64  `bson:"time_seconds" json:"time_seconds"`
}

// ShortAnswerSet holds the three free-text comprehension answers and the
// per-question time accumulated across navigation.
type ShortAnswerSet struct {
	MainIdea      string    `bson:"main_idea" json:"main_idea"`
	Method        string    `bson:"method" json:"method"`
	Result        string    `bson:"result" json:"result"`
	SubmittedAt   time.Time `bson:"submitted_at" json:"submitted_at"`
	TimeMainIdea  float64   `bson:"time_main_idea" json:"time_main_idea"`
	TimeMethod    float64   `bson:"time_method" json:"time_method"`
	TimeResult    float64   `bson:"time_result" json:"time_result"`
}

// LikertReport holds the comparison-stage ratings.
type LikertReport struct {
	Timestamp        time.Time      `bson:"timestamp" json:"timestamp"`
	TimeSpentSeconds float64        `bson:"time_spent_seconds" json:"time_spent_seconds"`
	Responses        map[string]int `bson:"responses" json:"responses"`
}

// Unit is one scientific abstract and its task state for one participant.
type Unit struct {
	AbstractTitle  string `bson:"abstract_title" json:"abstract_title"`
	AbstractText   string `bson:"abstract_text" json:"abstract_text"`
	HumanReference string `bson:"human_reference" json:"-"`

	MainIdeaQuestion string `bson:"main_idea_question,omitempty" json:"main_idea_question,omitempty"`
	MethodQuestion   string `bson:"method_question,omitempty" json:"method_question,omitempty"`
	ResultQuestion   string `bson:"result_question,omitempty" json:"result_question,omitempty"`

	SataQuestions []SataQuestion `bson:"sata_questions,omitempty" json:"sata_questions,omitempty"`

	TermFamiliarity  []TermEntry            `bson:"term_familiarity,omitempty" json:"term_familiarity,omitempty"`
	ConversationLog  []ChatTurn             `bson:"conversation_log,omitempty" json:"conversation_log,omitempty"`
	GeneratedSummary *string                `bson:"generated_summary" json:"generated_summary"`
	ShortAnswers     *ShortAnswerSet        `bson:"short_answers,omitempty" json:"short_answers,omitempty"`
	SataAnswers      map[string]*SataAnswer `bson:"sata_answers,omitempty" json:"sata_answers,omitempty"`
	Likert           *LikertReport          `bson:"likert,omitempty" json:"likert,omitempty"`

	Stage        Stage              `bson:"stage" json:"stage"`
	StageSeconds map[string]float64 `bson:"stage_seconds,omitempty" json:"-"`
	Completed    bool               `bson:"completed" json:"completed"`
}

// UserTurnCount counts participant-authored turns in the conversation log.
func (u *Unit) UserTurnCount() int {
	n := 0
	for _, t := range u.ConversationLog {
		if t.Role == "user" {
			n++
		}
	}
	return n
}

// UserTurns returns the ordered participant-authored messages.
func (u *Unit) UserTurns() []string {
	var turns []string
	for _, t := range u.ConversationLog {
		if t.Role == "user" {
			turns = append(turns, t.Content)
		}
	}
	return turns
}

// AllTermsScored reports whether every term has a familiarity score.
func (u *Unit) AllTermsScored() bool {
	for i := range u.TermFamiliarity {
		if !u.TermFamiliarity[i].Scored() {
			return false
		}
	}
	return true
}

// AllTermsDetailed reports whether every term has a non-empty
// extra-information set.
func (u *Unit) AllTermsDetailed() bool {
	for i := range u.TermFamiliarity {
		if len(u.TermFamiliarity[i].ExtraInformation) == 0 {
			return false
		}
	}
	return true
}

// UsesSata reports whether this unit's comprehension check is select-many.
func (u *Unit) UsesSata() bool {
	return len(u.SataQuestions) > 0
}

// ShortAnswerQuestions returns the free-text prompts keyed by answer field.
func (u *Unit) ShortAnswerQuestions() map[string]string {
	return map[string]string{
		"main_idea": u.MainIdeaQuestion,
		"method":    u.MethodQuestion,
		"result":    u.ResultQuestion,
	}
}

// SummaryText returns the text shown during the comprehension stages: the
// generated summary when present, otherwise the reference summary.
func (u *Unit) SummaryText() string {
	if u.GeneratedSummary != nil && strings.TrimSpace(*u.GeneratedSummary) != "" {
		return *u.GeneratedSummary
	}
	return u.HumanReference
}

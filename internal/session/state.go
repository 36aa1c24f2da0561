// Package session holds the single in-progress assessment and its stage machine.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/adhd-assessment-server/internal/domain"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Stage is a position in the collection workflow
type Stage int

const (
	StageIntake Stage = iota
	StageHistory
	StageQuestionnaire
	StageEEGUpload
	StageResults
)

// String returns the stage name used in logs and API payloads
func (s Stage) String() string {
	switch s {
	case StageIntake:
		return "intake"
	case StageHistory:
		return "history"
	case StageQuestionnaire:
		return "questionnaire"
	case StageEEGUpload:
		return "eeg_upload"
	case StageResults:
		return "results"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Snapshot is a deep copy of the session for readers
type Snapshot struct {
	ID             string                      `json:"id"`
	Stage          Stage                       `json:"stage"`
	StageName      string                      `json:"stage_name"`
	UserInfo       domain.UserInfo             `json:"user_info"`
	MedicalHistory domain.MedicalHistory       `json:"medical_history"`
	Answers        domain.QuestionnaireAnswers `json:"answers"`
	EEG            domain.ChannelMap           `json:"eeg,omitempty"`
	EEGFilename    string                      `json:"eeg_filename,omitempty"`
	Result         *domain.AssessmentResult    `json:"result,omitempty"`
	StartedAt      time.Time                   `json:"started_at"`
	CompletedAt    time.Time                   `json:"completed_at,omitempty"`
}

// State is the mutex-guarded assessment session. The zero value is not usable; call New.
type State struct {
	mu     sync.Mutex
	logger *logrus.Logger
	now    func() time.Time

	id          string
	stage       Stage
	userInfo    domain.UserInfo
	history     domain.MedicalHistory
	answers     domain.QuestionnaireAnswers
	eeg         domain.ChannelMap
	eegFilename string
	result      *domain.AssessmentResult
	startedAt   time.Time
	completedAt time.Time
}

// New creates a session in its initial state
func New(logger *logrus.Logger) *State {
	if logger == nil {
		logger = logrus.New()
	}
	s := &State{logger: logger, now: time.Now}
	s.clear()
	return s
}

// clear must be called with mu held
func (s *State) clear() {
	s.id = uuid.New().String()
	s.stage = StageIntake
	s.userInfo = domain.UserInfo{}
	s.history = domain.MedicalHistory{}
	s.answers = domain.QuestionnaireAnswers{}
	s.eeg = nil
	s.eegFilename = ""
	s.result = nil
	s.startedAt = s.now().UTC()
	s.completedAt = time.Time{}
}

// ID returns the session correlation identifier
func (s *State) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Stage returns the current stage
func (s *State) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *State) requireStage(want Stage) error {
	if s.stage != want {
		return fmt.Errorf("%w: %s requires %s", domain.ErrStageMismatch, s.stage, want)
	}
	return nil
}

// SetUserInfo replaces the intake record
func (s *State) SetUserInfo(info domain.UserInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStage(StageIntake); err != nil {
		return err
	}
	s.userInfo = info
	return nil
}

// SetMedicalHistory replaces the history record
func (s *State) SetMedicalHistory(history domain.MedicalHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStage(StageHistory); err != nil {
		return err
	}
	s.history = history.Clone()
	return nil
}

// SetAnswer records a single questionnaire response after range checks
func (s *State) SetAnswer(question, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStage(StageQuestionnaire); err != nil {
		return err
	}
	if err := domain.ValidateAnswer(question, value); err != nil {
		return err
	}
	s.answers[question] = value
	return nil
}

// SetAnswers records several responses; nothing is stored if any pair is out of range
func (s *State) SetAnswers(answers domain.QuestionnaireAnswers) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStage(StageQuestionnaire); err != nil {
		return err
	}
	var errs domain.ValidationErrors
	for q, v := range answers {
		if err := domain.ValidateAnswer(q, v); err != nil {
			errs = append(errs, err.(*domain.ValidationError))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	for q, v := range answers {
		s.answers[q] = v
	}
	return nil
}

// SetEEG stores a validated channel map
func (s *State) SetEEG(filename string, channels domain.ChannelMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStage(StageEEGUpload); err != nil {
		return err
	}
	if len(channels) == 0 {
		return domain.NewInvalidEEGDataError("empty channel map")
	}
	s.eeg = channels.Clone()
	s.eegFilename = filename
	return nil
}

// Advance validates the current stage and moves forward one stage
func (s *State) Advance() (Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	switch s.stage {
	case StageIntake:
		err = s.userInfo.Validate()
	case StageHistory:
		err = s.history.Validate()
	case StageQuestionnaire:
		if missing := s.answers.Missing(); len(missing) > 0 {
			errs := make(domain.ValidationErrors, 0, len(missing))
			for _, q := range missing {
				errs = append(errs, domain.NewValidationError(fmt.Sprintf("q%d", q), "Please answer all questions", nil))
			}
			err = errs
		}
	case StageEEGUpload:
		return s.stage, fmt.Errorf("%w: results are reached by submission", domain.ErrStageMismatch)
	case StageResults:
		return s.stage, fmt.Errorf("%w: results stage is terminal", domain.ErrStageMismatch)
	}
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"session_id": s.id,
			"stage":      s.stage.String(),
		}).Debug("Stage advance blocked by validation")
		return s.stage, err
	}

	from := s.stage
	s.stage++
	s.logger.WithFields(logrus.Fields{
		"session_id": s.id,
		"from":       from.String(),
		"to":         s.stage.String(),
	}).Info("Session advanced")
	return s.stage, nil
}

// Back moves one stage backward; collected data is kept
func (s *State) Back() (Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.stage {
	case StageIntake:
		return s.stage, fmt.Errorf("%w: already at the first stage", domain.ErrStageMismatch)
	case StageResults:
		return s.stage, fmt.Errorf("%w: results stage requires reset", domain.ErrStageMismatch)
	}
	s.stage--
	return s.stage, nil
}

// Finalize stores the prediction and enters the results stage
func (s *State) Finalize(result domain.AssessmentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStage(StageEEGUpload); err != nil {
		return err
	}
	if s.eeg == nil {
		return fmt.Errorf("%w: no EEG sample uploaded", domain.ErrStageMismatch)
	}
	r := result.Clone()
	s.result = &r
	s.stage = StageResults
	s.completedAt = s.now().UTC()
	s.logger.WithFields(logrus.Fields{
		"session_id": s.id,
		"prediction": r.Prediction,
	}).Info("Session finalized")
	return nil
}

// Reset discards every collected entity and returns to intake
func (s *State) Reset() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.id
	s.clear()
	s.logger.WithFields(logrus.Fields{
		"previous_session_id": old,
		"session_id":          s.id,
	}).Info("Session reset")
	return s.id
}

// Snapshot returns a deep copy of the session
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:             s.id,
		Stage:          s.stage,
		StageName:      s.stage.String(),
		UserInfo:       s.userInfo,
		MedicalHistory: s.history.Clone(),
		Answers:        s.answers.Clone(),
		EEG:            s.eeg.Clone(),
		EEGFilename:    s.eegFilename,
		StartedAt:      s.startedAt,
		CompletedAt:    s.completedAt,
	}
	if s.result != nil {
		r := s.result.Clone()
		snap.Result = &r
	}
	return snap
}

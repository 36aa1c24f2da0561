package domain

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// QuestionCount is the number of items in the screening questionnaire
const QuestionCount = 30

// NeutralAnswer is substituted for unanswered items at submission and scoring time
const NeutralAnswer = 3

// Answer bounds for a single questionnaire response
const (
	MinAnswer = 1
	MaxAnswer = 5
)

// Age bounds accepted at intake
const (
	MinAge = 6
	MaxAge = 100
)

// MinPatientIDLength is the shortest accepted patient identifier
const MinPatientIDLength = 3

// Channels lists the 19 electrode sites of the 10-20 layout in canonical order
var Channels = []string{
	"Fp1", "Fp2", "F7", "F3", "Fz", "F4", "F8",
	"T7", "C3", "Cz", "C4", "T8",
	"P7", "P3", "Pz", "P4", "P8",
	"O1", "O2",
}

// Gender represents the intake gender selection
type Gender string

const (
	GenderMale           Gender = "male"
	GenderFemale         Gender = "female"
	GenderOther          Gender = "other"
	GenderPreferNotToSay Gender = "prefer-not-to-say"
)

// Valid reports whether g is one of the accepted selections
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther, GenderPreferNotToSay:
		return true
	}
	return false
}

// Education represents the highest completed education level
type Education string

const (
	EducationElementary  Education = "elementary"
	EducationMiddle      Education = "middle-school"
	EducationHigh        Education = "high-school"
	EducationSomeCollege Education = "some-college"
	EducationAssociates  Education = "associates"
	EducationBachelors   Education = "bachelors"
	EducationMasters     Education = "masters"
	EducationDoctorate   Education = "doctorate"
)

// Valid reports whether e is one of the accepted levels
func (e Education) Valid() bool {
	switch e {
	case EducationElementary, EducationMiddle, EducationHigh, EducationSomeCollege,
		EducationAssociates, EducationBachelors, EducationMasters, EducationDoctorate:
		return true
	}
	return false
}

// UserInfo holds patient demographics collected at intake
type UserInfo struct {
	PatientID          string    `json:"patient_id"`
	Age                int       `json:"age"`
	Gender             Gender    `json:"gender"`
	Education          Education `json:"education"`
	Occupation         string    `json:"occupation,omitempty"`
	ReferringPhysician string    `json:"referring_physician,omitempty"`
}

// Validate checks every required intake field
func (u UserInfo) Validate() error {
	var errs ValidationErrors
	id := strings.TrimSpace(u.PatientID)
	switch {
	case id == "":
		errs = append(errs, NewValidationError("patient_id", "Patient ID is required for record keeping", u.PatientID))
	case len(id) < MinPatientIDLength:
		errs = append(errs, NewValidationError("patient_id", "Patient ID must be at least 3 characters", u.PatientID))
	}
	if u.Age < MinAge || u.Age > MaxAge {
		errs = append(errs, NewValidationError("age", "Age must be between 6 and 100", u.Age))
	}
	if !u.Gender.Valid() {
		errs = append(errs, NewValidationError("gender", "Gender selection is required", u.Gender))
	}
	if !u.Education.Valid() {
		errs = append(errs, NewValidationError("education", "Education level is required", u.Education))
	}
	return errs.OrNil()
}

// WireUserInfo is the user-info subset sent to the predictor
type WireUserInfo struct {
	PatientID          string `json:"patientId"`
	Age                string `json:"age"`
	Gender             string `json:"gender"`
	Education          string `json:"education"`
	Occupation         string `json:"occupation"`
	ReferringPhysician string `json:"referringPhysician"`
}

// ToWire converts the intake record into the predictor's field naming
func (u UserInfo) ToWire() WireUserInfo {
	age := ""
	if u.Age > 0 {
		age = strconv.Itoa(u.Age)
	}
	return WireUserInfo{
		PatientID:          strings.TrimSpace(u.PatientID),
		Age:                age,
		Gender:             string(u.Gender),
		Education:          string(u.Education),
		Occupation:         u.Occupation,
		ReferringPhysician: u.ReferringPhysician,
	}
}

// Diagnosis options offered in the history stage
var DiagnosisOptions = []string{
	"ADHD",
	"Anxiety Disorder",
	"Depression",
	"Bipolar Disorder",
	"OCD",
	"PTSD",
	"Learning Disability",
	"Autism Spectrum Disorder",
	"Other",
}

// Enumerated history answers
var (
	familyADHDOptions    = []string{"yes", "yes-extended", "no", "unknown"}
	familyHistoryOptions = []string{"yes", "no", "unknown"}
	substanceUseOptions  = []string{"none", "past", "occasional", "regular", "prefer-not-say"}
	sleepIssueOptions    = []string{"none", "insomnia", "sleep-apnea", "irregular", "hypersomnia"}
	headTraumaOptions    = []string{"none", "mild", "moderate", "severe"}
)

// MedicalHistory is the fixed clinical background record.
// Extensions carries site-specific fields that have no dedicated slot.
type MedicalHistory struct {
	FamilyADHD              string            `json:"family_adhd"`
	FamilyLearningDisorders string            `json:"family_learning_disorders"`
	FamilyASD               string            `json:"family_asd,omitempty"`
	PreviousDiagnoses       []string          `json:"previous_diagnosis,omitempty"`
	CurrentMedications      string            `json:"current_medications,omitempty"`
	SubstanceUse            string            `json:"substance_use,omitempty"`
	SleepIssues             string            `json:"sleep_issues,omitempty"`
	HeadTrauma              string            `json:"head_trauma,omitempty"`
	NeurologicalConditions  string            `json:"neurological_conditions,omitempty"`
	PsychiatricHistory      string            `json:"psychiatric_history,omitempty"`
	AdditionalNotes         string            `json:"additional_notes,omitempty"`
	Extensions              map[string]string `json:"extensions,omitempty"`
}

// Validate checks required and enumerated history fields
func (h MedicalHistory) Validate() error {
	var errs ValidationErrors
	if h.FamilyADHD == "" {
		errs = append(errs, NewValidationError("family_adhd", "Family history of ADHD is required", h.FamilyADHD))
	} else if !oneOf(h.FamilyADHD, familyADHDOptions) {
		errs = append(errs, NewValidationError("family_adhd", "Unrecognized option", h.FamilyADHD))
	}
	if h.FamilyLearningDisorders == "" {
		errs = append(errs, NewValidationError("family_learning_disorders", "Family history of learning disorders is required", h.FamilyLearningDisorders))
	} else if !oneOf(h.FamilyLearningDisorders, familyHistoryOptions) {
		errs = append(errs, NewValidationError("family_learning_disorders", "Unrecognized option", h.FamilyLearningDisorders))
	}

	optional := []struct {
		field, value string
		options      []string
	}{
		{"family_asd", h.FamilyASD, familyHistoryOptions},
		{"substance_use", h.SubstanceUse, substanceUseOptions},
		{"sleep_issues", h.SleepIssues, sleepIssueOptions},
		{"head_trauma", h.HeadTrauma, headTraumaOptions},
	}
	for _, o := range optional {
		if o.value != "" && !oneOf(o.value, o.options) {
			errs = append(errs, NewValidationError(o.field, "Unrecognized option", o.value))
		}
	}

	seen := make(map[string]bool, len(h.PreviousDiagnoses))
	for _, d := range h.PreviousDiagnoses {
		if !oneOf(d, DiagnosisOptions) {
			errs = append(errs, NewValidationError("previous_diagnosis", "Unrecognized diagnosis", d))
			continue
		}
		if seen[d] {
			errs = append(errs, NewValidationError("previous_diagnosis", "Duplicate diagnosis", d))
		}
		seen[d] = true
	}

	for key := range h.Extensions {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, NewValidationError("extensions", "Extension keys must not be blank", key))
		}
	}
	return errs.OrNil()
}

// ToWire flattens the record into the string-keyed map the predictor stores
func (h MedicalHistory) ToWire() map[string]string {
	out := make(map[string]string, 12+len(h.Extensions))
	for k, v := range h.Extensions {
		out[k] = v
	}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("family_adhd", h.FamilyADHD)
	set("family_learning_disorders", h.FamilyLearningDisorders)
	set("family_asd", h.FamilyASD)
	set("current_medications", h.CurrentMedications)
	set("substance_use", h.SubstanceUse)
	set("sleep_issues", h.SleepIssues)
	set("head_trauma", h.HeadTrauma)
	set("neurological_conditions", h.NeurologicalConditions)
	set("psychiatric_history", h.PsychiatricHistory)
	set("additional_notes", h.AdditionalNotes)

	diagnoses := h.PreviousDiagnoses
	if diagnoses == nil {
		diagnoses = []string{}
	}
	encoded, _ := json.Marshal(diagnoses)
	out["previous_diagnosis"] = string(encoded)
	return out
}

// Clone returns a deep copy
func (h MedicalHistory) Clone() MedicalHistory {
	c := h
	if h.PreviousDiagnoses != nil {
		c.PreviousDiagnoses = append([]string(nil), h.PreviousDiagnoses...)
	}
	if h.Extensions != nil {
		c.Extensions = make(map[string]string, len(h.Extensions))
		for k, v := range h.Extensions {
			c.Extensions[k] = v
		}
	}
	return c
}

// QuestionnaireAnswers maps question index (1..30) to a response (1..5)
type QuestionnaireAnswers map[int]int

// ValidateAnswer checks a single question/answer pair
func ValidateAnswer(question, value int) error {
	if question < 1 || question > QuestionCount {
		return NewValidationError("question", "Question index must be between 1 and 30", question)
	}
	if value < MinAnswer || value > MaxAnswer {
		return NewValidationError(questionField(question), "Answer must be between 1 and 5", value)
	}
	return nil
}

// ParseAnswers converts question keys ("7" or "q7") to indices and checks every pair
func ParseAnswers(raw map[string]int) (QuestionnaireAnswers, error) {
	answers := make(QuestionnaireAnswers, len(raw))
	var errs ValidationErrors
	for key, v := range raw {
		q, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(key), "q"))
		if err != nil {
			errs = append(errs, NewValidationError(key, "Question key must be a number", key))
			continue
		}
		if err := ValidateAnswer(q, v); err != nil {
			errs = append(errs, err.(*ValidationError))
			continue
		}
		answers[q] = v
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}
	return answers, nil
}

// Complete reports whether every question has an in-range answer
func (a QuestionnaireAnswers) Complete() bool {
	return len(a.Missing()) == 0
}

// Missing returns the unanswered question indices in ascending order
func (a QuestionnaireAnswers) Missing() []int {
	var missing []int
	for q := 1; q <= QuestionCount; q++ {
		v, ok := a[q]
		if !ok || v < MinAnswer || v > MaxAnswer {
			missing = append(missing, q)
		}
	}
	return missing
}

// Ordered assembles the 30-entry submission array.
// Unanswered items become NeutralAnswer here and nowhere earlier.
func (a QuestionnaireAnswers) Ordered() []int {
	out := make([]int, QuestionCount)
	for i := range out {
		v, ok := a[i+1]
		if !ok {
			v = NeutralAnswer
		}
		out[i] = v
	}
	return out
}

// Clone returns a copy of the answers
func (a QuestionnaireAnswers) Clone() QuestionnaireAnswers {
	if a == nil {
		return QuestionnaireAnswers{}
	}
	c := make(QuestionnaireAnswers, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

// ChannelMap holds one amplitude per required channel
type ChannelMap map[string]float64

// Clone returns a copy of the map, or nil for a nil map
func (m ChannelMap) Clone() ChannelMap {
	if m == nil {
		return nil
	}
	c := make(ChannelMap, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Ordered returns the values in canonical channel order
func (m ChannelMap) Ordered() []ChannelValue {
	out := make([]ChannelValue, 0, len(Channels))
	for _, ch := range Channels {
		if v, ok := m[ch]; ok {
			out = append(out, ChannelValue{Channel: ch, Value: v})
		}
	}
	return out
}

// ChannelValue is a single channel reading
type ChannelValue struct {
	Channel string  `json:"channel"`
	Value   float64 `json:"value"`
}

// Prediction labels returned by the classification service
const (
	LabelADHD     = "ADHD"
	LabelNonADHD  = "Non_ADHD"
	LabelHealthy  = "Healthy"
	LabelODD      = "ODD"
	LabelASD      = "ASD"
	LabelDyslexia = "Dyslexia"
)

// KnownLabels is the recognized prediction label set
var KnownLabels = []string{LabelADHD, LabelNonADHD, LabelHealthy, LabelODD, LabelASD, LabelDyslexia}

// RiskLevel is the three-level severity derived from a prediction label
type RiskLevel string

const (
	RiskHigh     RiskLevel = "high"
	RiskModerate RiskLevel = "moderate"
	RiskLow      RiskLevel = "low"
)

// RiskLevels lists the levels from most to least severe
var RiskLevels = []RiskLevel{RiskHigh, RiskModerate, RiskLow}

// ParseRiskLevel maps free text onto the taxonomy; anything unrecognized is low
func ParseRiskLevel(s string) RiskLevel {
	switch RiskLevel(strings.ToLower(strings.TrimSpace(s))) {
	case RiskHigh:
		return RiskHigh
	case RiskModerate:
		return RiskModerate
	default:
		return RiskLow
	}
}

// Title returns the capitalized display form
func (r RiskLevel) Title() string {
	switch r {
	case RiskHigh:
		return "High"
	case RiskModerate:
		return "Moderate"
	default:
		return "Low"
	}
}

// RecommendationCategory groups recommendations for presentation
type RecommendationCategory string

const (
	CategoryTherapy   RecommendationCategory = "therapy"
	CategoryLifestyle RecommendationCategory = "lifestyle"
	CategoryMedical   RecommendationCategory = "medical"
	CategoryEducation RecommendationCategory = "education"
)

// Label returns the section heading for the category
func (c RecommendationCategory) Label() string {
	switch c {
	case CategoryTherapy:
		return "Behavioral Therapy"
	case CategoryLifestyle:
		return "Lifestyle & Wellness"
	case CategoryMedical:
		return "Medical Follow-up"
	case CategoryEducation:
		return "Educational Support"
	}
	return string(c)
}

// Recommendation is one piece of clinical guidance
type Recommendation struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Category    RecommendationCategory `json:"category"`
}

// Text renders the recommendation as a single line of prose
func (r Recommendation) Text() string {
	return r.Title + ": " + r.Description
}

// AssessmentResult is the predictor's answer for one submission
type AssessmentResult struct {
	Prediction       string             `json:"prediction"`
	RiskLevel        string             `json:"risk_level,omitempty"`
	Confidence       *float64           `json:"confidence,omitempty"`
	ConfidenceScores map[string]float64 `json:"confidence_scores,omitempty"`
	SavedToDatabase  *bool              `json:"saved_to_database,omitempty"`
}

// Clone returns a deep copy
func (r AssessmentResult) Clone() AssessmentResult {
	c := r
	if r.Confidence != nil {
		v := *r.Confidence
		c.Confidence = &v
	}
	if r.SavedToDatabase != nil {
		v := *r.SavedToDatabase
		c.SavedToDatabase = &v
	}
	if r.ConfidenceScores != nil {
		c.ConfidenceScores = make(map[string]float64, len(r.ConfidenceScores))
		for k, v := range r.ConfidenceScores {
			c.ConfidenceScores[k] = v
		}
	}
	return c
}

// LabelScore is one entry of a confidence breakdown
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// SortedScores returns the confidence breakdown ordered by label
func (r AssessmentResult) SortedScores() []LabelScore {
	out := make([]LabelScore, 0, len(r.ConfidenceScores))
	for k, v := range r.ConfidenceScores {
		out = append(out, LabelScore{Label: k, Score: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// AssessmentRecord is a historical assessment from the record service
type AssessmentRecord struct {
	ID                 string    `json:"id"`
	PatientID          string    `json:"patient_id"`
	Age                string    `json:"age"`
	Gender             string    `json:"gender"`
	Education          string    `json:"education"`
	Occupation         string    `json:"occupation"`
	ReferringPhysician string    `json:"referring_physician"`
	Prediction         string    `json:"prediction"`
	RiskLevel          string    `json:"risk_level"`
	AssessmentDate     time.Time `json:"assessment_date"`
	CreatedAt          time.Time `json:"created_at"`
}

// AssessmentStats is the record service's precomputed summary
type AssessmentStats struct {
	TotalAssessments     int            `json:"total_assessments"`
	PredictionsBreakdown map[string]int `json:"predictions_breakdown"`
	RiskLevelsBreakdown  map[string]int `json:"risk_levels_breakdown"`
}

func oneOf(v string, options []string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func questionField(q int) string {
	return "q" + strconv.Itoa(q)
}

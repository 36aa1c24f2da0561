package service

import (
	"fmt"

	"github.com/adhd-assessment-server/internal/domain"
)

// SymptomGroup names a questionnaire sub-scale
type SymptomGroup string

const (
	GroupInattention   SymptomGroup = "inattention"
	GroupHyperactivity SymptomGroup = "hyperactivity"
	GroupExecutive     SymptomGroup = "executive"
	GroupEmotional     SymptomGroup = "emotional"
)

// SymptomGroups lists the sub-scales in presentation order
var SymptomGroups = []SymptomGroup{GroupInattention, GroupHyperactivity, GroupExecutive, GroupEmotional}

// groupItems partitions questions 1..30 with no overlap
var groupItems = map[SymptomGroup][]int{
	GroupInattention:   {1, 2, 3, 5, 11, 13, 14, 15, 19, 23},
	GroupHyperactivity: {6, 7, 8, 9, 10, 16, 22, 24, 27, 30},
	GroupExecutive:     {4, 12, 20, 21, 25, 28, 29},
	GroupEmotional:     {17, 18, 26},
}

// GroupItems returns the question indices belonging to a group
func GroupItems(g SymptomGroup) []int {
	return append([]int(nil), groupItems[g]...)
}

// SubScores holds normalized sub-scale scores in [0,1]
type SubScores struct {
	Inattention   float64 `json:"inattention"`
	Hyperactivity float64 `json:"hyperactivity"`
	Executive     float64 `json:"executive"`
	Emotional     float64 `json:"emotional"`
}

// Get returns the score for a group
func (s SubScores) Get(g SymptomGroup) float64 {
	switch g {
	case GroupInattention:
		return s.Inattention
	case GroupHyperactivity:
		return s.Hyperactivity
	case GroupExecutive:
		return s.Executive
	case GroupEmotional:
		return s.Emotional
	}
	return 0
}

// Evaluation is the full scoring output for one assessment
type Evaluation struct {
	Prediction      string                  `json:"prediction"`
	SubScores       SubScores               `json:"sub_scores"`
	RiskLevel       domain.RiskLevel        `json:"risk_level"`
	Recommendations []domain.Recommendation `json:"recommendations"`
}

// ScoringEngine derives sub-scores, risk and recommendations. It holds no state.
type ScoringEngine struct{}

// NewScoringEngine creates a scoring engine
func NewScoringEngine() *ScoringEngine {
	return &ScoringEngine{}
}

// SubScores computes each group's mean response divided by the maximum response.
// Unanswered items count as the neutral answer.
func (e *ScoringEngine) SubScores(answers domain.QuestionnaireAnswers) SubScores {
	score := func(g SymptomGroup) float64 {
		items := groupItems[g]
		sum := 0
		for _, q := range items {
			v, ok := answers[q]
			if !ok {
				v = domain.NeutralAnswer
			}
			sum += v
		}
		return float64(sum) / float64(len(items)*domain.MaxAnswer)
	}
	return SubScores{
		Inattention:   score(GroupInattention),
		Hyperactivity: score(GroupHyperactivity),
		Executive:     score(GroupExecutive),
		Emotional:     score(GroupEmotional),
	}
}

// RiskLevelFor maps any prediction label onto the risk taxonomy
func (e *ScoringEngine) RiskLevelFor(label string) domain.RiskLevel {
	switch label {
	case domain.LabelADHD:
		return domain.RiskHigh
	case domain.LabelODD, domain.LabelASD, domain.LabelDyslexia:
		return domain.RiskModerate
	default:
		return domain.RiskLow
	}
}

// Recommendations produces guidance for a label, grouped by category.
// confidence is a 0-100 percentage and may be nil.
func (e *ScoringEngine) Recommendations(label string, scores SubScores, confidence *float64) []domain.Recommendation {
	var recs []domain.Recommendation
	switch label {
	case domain.LabelADHD:
		recs = adhdRecommendations(scores, confidence)
	case domain.LabelODD, domain.LabelASD, domain.LabelDyslexia:
		recs = comorbidRecommendations(label, scores)
	case domain.LabelHealthy, domain.LabelNonADHD:
		recs = typicalRecommendations(scores)
	default:
		recs = []domain.Recommendation{{
			Title:       "Continued Monitoring",
			Description: "The screening returned an unrecognized result. Review the assessment with a qualified clinician and monitor for attention, hyperactivity, or impulsivity symptoms.",
			Category:    domain.CategoryMedical,
		}}
	}
	return groupByCategory(recs)
}

// Evaluate runs the whole scoring pipeline
func (e *ScoringEngine) Evaluate(label string, answers domain.QuestionnaireAnswers, confidence *float64) Evaluation {
	scores := e.SubScores(answers)
	return Evaluation{
		Prediction:      label,
		SubScores:       scores,
		RiskLevel:       e.RiskLevelFor(label),
		Recommendations: e.Recommendations(label, scores, confidence),
	}
}

func adhdRecommendations(scores SubScores, confidence *float64) []domain.Recommendation {
	evaluation := "A formal DSM-5 diagnostic evaluation is recommended to confirm ADHD diagnosis and assess for comorbid conditions."
	if confidence != nil {
		evaluation = fmt.Sprintf("With %.1f%% model confidence, a formal DSM-5 diagnostic evaluation is recommended to confirm ADHD diagnosis and assess for comorbid conditions.", *confidence)
	}

	recs := []domain.Recommendation{
		{
			Title:       "Cognitive Behavioral Therapy (CBT)",
			Description: "Evidence-based CBT targeting ADHD-specific thought patterns and executive function deficits. Focus on organizational skills, time management, and emotion regulation strategies.",
			Category:    domain.CategoryTherapy,
		},
		{
			Title:       "Comprehensive Clinical Evaluation",
			Description: evaluation,
			Category:    domain.CategoryMedical,
		},
	}

	if scores.Inattention > 0.6 {
		recs = append(recs, domain.Recommendation{
			Title:       "Attention Training Program",
			Description: "High inattention markers detected. Consider computerized attention training combined with mindfulness-based cognitive therapy (MBCT) for attention improvement.",
			Category:    domain.CategoryTherapy,
		})
	}
	if scores.Hyperactivity > 0.6 {
		recs = append(recs, domain.Recommendation{
			Title:       "Structured Physical Activity",
			Description: "Elevated hyperactivity indicators. Regular aerobic exercise (30+ min daily) has shown significant benefits. Consider martial arts, swimming, or team sports for structured energy channeling.",
			Category:    domain.CategoryLifestyle,
		})
	}
	if scores.Executive > 0.5 {
		recs = append(recs, domain.Recommendation{
			Title:       "Executive Function Coaching",
			Description: "Executive function challenges identified. Implement external organizational systems: digital planners, reminder apps, task-breaking strategies, and the Pomodoro technique for focus management.",
			Category:    domain.CategoryEducation,
		})
	}
	if scores.Emotional > 0.6 {
		recs = append(recs, emotionalRegulation())
	}

	return append(recs,
		domain.Recommendation{
			Title:       "Sleep Hygiene Optimization",
			Description: "ADHD frequently co-occurs with sleep disturbances. Establish a consistent sleep schedule, limit screen time before bed, and consider a sleep study if insomnia persists.",
			Category:    domain.CategoryLifestyle,
		},
		domain.Recommendation{
			Title:       "Support Group & Psychoeducation",
			Description: "Connect with ADHD support communities. Family psychoeducation about ADHD can improve understanding, reduce stigma, and enhance treatment compliance.",
			Category:    domain.CategoryEducation,
		},
	)
}

func comorbidRecommendations(label string, scores SubScores) []domain.Recommendation {
	var referral, support domain.Recommendation
	switch label {
	case domain.LabelODD:
		referral = domain.Recommendation{
			Title:       "Child & Adolescent Psychiatry Referral",
			Description: "Screening indicators are consistent with oppositional defiant patterns. Refer for a structured behavioral assessment to confirm the presentation and rule out co-occurring ADHD.",
			Category:    domain.CategoryMedical,
		}
		support = domain.Recommendation{
			Title:       "Parent Management Training",
			Description: "Structured parent training programs focus on consistent limits, positive reinforcement, and de-escalation techniques for oppositional behavior.",
			Category:    domain.CategoryTherapy,
		}
	case domain.LabelASD:
		referral = domain.Recommendation{
			Title:       "Developmental Specialist Referral",
			Description: "Screening indicators suggest features of the autism spectrum. Refer for a standardized diagnostic assessment by a developmental specialist.",
			Category:    domain.CategoryMedical,
		}
		support = domain.Recommendation{
			Title:       "Social Communication Support",
			Description: "Social skills groups and speech-language therapy targeting pragmatic communication can support day-to-day functioning.",
			Category:    domain.CategoryTherapy,
		}
	case domain.LabelDyslexia:
		referral = domain.Recommendation{
			Title:       "Psychoeducational Assessment",
			Description: "Screening indicators suggest a specific reading difficulty. Refer for a psychoeducational assessment of reading, spelling, and phonological processing.",
			Category:    domain.CategoryMedical,
		}
		support = domain.Recommendation{
			Title:       "Structured Literacy Intervention",
			Description: "Explicit, systematic phonics-based literacy instruction and classroom accommodations such as extended time and audio materials.",
			Category:    domain.CategoryEducation,
		}
	}

	recs := []domain.Recommendation{referral, support}
	if scores.Emotional > 0.6 {
		recs = append(recs, emotionalRegulation())
	}
	return append(recs, domain.Recommendation{
		Title:       "Scheduled Follow-up",
		Description: "Re-assess in 3 to 6 months to review progress and check for emerging attention or hyperactivity symptoms.",
		Category:    domain.CategoryMedical,
	})
}

func typicalRecommendations(scores SubScores) []domain.Recommendation {
	recs := []domain.Recommendation{
		{
			Title:       "Routine Developmental Monitoring",
			Description: "No significant ADHD indicators detected in this screening. Continue routine check-ups and monitor for any emerging symptoms over time.",
			Category:    domain.CategoryMedical,
		},
		{
			Title:       "Maintain Healthy Lifestyle",
			Description: "Continue regular physical activity, balanced nutrition, adequate sleep (7-9 hours), and stress management practices to support optimal cognitive function.",
			Category:    domain.CategoryLifestyle,
		},
		{
			Title:       "Cognitive Wellness Activities",
			Description: "Engage in brain-healthy activities: reading, puzzles, learning new skills, social interaction, and regular exercise to maintain cognitive sharpness.",
			Category:    domain.CategoryLifestyle,
		},
	}
	if scores.Inattention > 0.5 || scores.Executive > 0.5 {
		recs = append(recs, domain.Recommendation{
			Title:       "Mild Attention Enhancement",
			Description: "Some attention and executive function responses suggest minor challenges. Consider mindfulness meditation practice and organizational tools.",
			Category:    domain.CategoryEducation,
		})
	}
	return append(recs, domain.Recommendation{
		Title:       "Follow-up if Symptoms Arise",
		Description: "Re-evaluate if attention, hyperactivity, or impulsivity symptoms develop or worsen. Early detection enables more effective interventions.",
		Category:    domain.CategoryMedical,
	})
}

func emotionalRegulation() domain.Recommendation {
	return domain.Recommendation{
		Title:       "Emotional Regulation Support",
		Description: "Emotional dysregulation markers elevated. Dialectical behavior therapy (DBT) skills training, particularly distress tolerance and emotion regulation modules.",
		Category:    domain.CategoryTherapy,
	}
}

// groupByCategory is a stable partition keyed on first appearance
func groupByCategory(recs []domain.Recommendation) []domain.Recommendation {
	var order []domain.RecommendationCategory
	buckets := make(map[domain.RecommendationCategory][]domain.Recommendation)
	for _, r := range recs {
		if _, ok := buckets[r.Category]; !ok {
			order = append(order, r.Category)
		}
		buckets[r.Category] = append(buckets[r.Category], r)
	}
	out := make([]domain.Recommendation, 0, len(recs))
	for _, c := range order {
		out = append(out, buckets[c]...)
	}
	return out
}

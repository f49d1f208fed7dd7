package worker

import (
	"fmt"
	"strconv"
	"strings"

	"jobmate/orchestrator/internal/domain"
)

// answeredQuestion is the outcome of classifyQuestion: an answer plus the
// confidence the deterministic classifier has in it. A zero-value
// answeredQuestion with ok=false means "halt with needsApproval" (spec
// §4.4.2c).
type answeredQuestion struct {
	Answer     string
	Confidence float64
}

// classifyQuestion implements the custom-question policy of spec §4.4.2:
// (a) an explicit custom_answers entry always wins; (b) otherwise attempt a
// deterministic answer from profile data (years of experience, salary
// range, yes/no availability); (c) otherwise the caller halts with
// needsApproval.
func classifyQuestion(question string, customAnswers map[string]string, ud domain.UserData) (answeredQuestion, bool) {
	if a, ok := customAnswers[question]; ok {
		return answeredQuestion{Answer: a, Confidence: 1.0}, true
	}

	q := strings.ToLower(question)

	switch {
	case strings.Contains(q, "years of experience") || strings.Contains(q, "years experience"):
		if ud.ExperienceYears != nil {
			return answeredQuestion{Answer: strconv.Itoa(*ud.ExperienceYears), Confidence: 0.9}, true
		}

	case strings.Contains(q, "salary") || strings.Contains(q, "compensation"):
		if ud.SalaryExpectation != "" {
			return answeredQuestion{Answer: ud.SalaryExpectation, Confidence: 0.8}, true
		}

	case strings.Contains(q, "sponsor"), strings.Contains(q, "visa"):
		// No profile signal exists for sponsorship status; never guess on a
		// legally consequential question.
		return answeredQuestion{}, false

	case strings.Contains(q, "start") && strings.Contains(q, "available"):
		if ud.Availability != "" {
			return answeredQuestion{Answer: ud.Availability, Confidence: 0.7}, true
		}

	case strings.Contains(q, "remote") || strings.Contains(q, "relocat") || strings.Contains(q, "hybrid") || strings.Contains(q, "onsite"):
		if ud.PreferredWorkArrangement != "" {
			return answeredQuestion{
				Answer:     yesNoForWorkArrangement(q, ud.PreferredWorkArrangement),
				Confidence: 0.75,
			}, true
		}
	}

	return answeredQuestion{}, false
}

func yesNoForWorkArrangement(question, preferred string) string {
	if strings.Contains(question, preferred) {
		return "Yes"
	}
	if preferred == "remote" && (strings.Contains(question, "onsite") || strings.Contains(question, "relocat")) {
		return "No"
	}
	return fmt.Sprintf("I prefer %s work", preferred)
}

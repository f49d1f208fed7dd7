package worker

import (
	"testing"

	"jobmate/orchestrator/internal/domain"
)

func TestClassifyQuestionPrefersCustomAnswer(t *testing.T) {
	custom := map[string]string{"Expected salary?": "120k"}
	got, ok := classifyQuestion("Expected salary?", custom, domain.UserData{SalaryExpectation: "150k"})
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Answer != "120k" {
		t.Errorf("answer = %q, want the explicit custom_answers value", got.Answer)
	}
	if got.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0 for an explicit answer", got.Confidence)
	}
}

func TestClassifyQuestionYearsOfExperience(t *testing.T) {
	years := 7
	got, ok := classifyQuestion("How many years of experience do you have?", nil, domain.UserData{ExperienceYears: &years})
	if !ok || got.Answer != "7" {
		t.Errorf("got = %+v, ok = %v, want answer 7", got, ok)
	}
}

func TestClassifyQuestionSalaryFromPreferences(t *testing.T) {
	got, ok := classifyQuestion("What is your salary expectation?", nil, domain.UserData{SalaryExpectation: "$140,000"})
	if !ok || got.Answer != "$140,000" {
		t.Errorf("got = %+v, ok = %v", got, ok)
	}
}

func TestClassifyQuestionSponsorshipNeverGuesses(t *testing.T) {
	_, ok := classifyQuestion("Will you require visa sponsorship?", nil, domain.UserData{})
	if ok {
		t.Error("expected sponsorship questions to always halt with needsApproval")
	}
}

func TestClassifyQuestionUnknownHaltsForApproval(t *testing.T) {
	_, ok := classifyQuestion("What is your favorite programming language?", nil, domain.UserData{})
	if ok {
		t.Error("expected an unclassifiable question to require approval")
	}
}

func TestClassifyQuestionAvailability(t *testing.T) {
	got, ok := classifyQuestion("When are you available to start?", nil, domain.UserData{Availability: "2 weeks notice"})
	if !ok || got.Answer != "2 weeks notice" {
		t.Errorf("got = %+v, ok = %v", got, ok)
	}
}

func TestClassifyQuestionWorkArrangementMatch(t *testing.T) {
	got, ok := classifyQuestion("Are you open to remote work?", nil, domain.UserData{PreferredWorkArrangement: "remote"})
	if !ok || got.Answer != "Yes" {
		t.Errorf("got = %+v, ok = %v, want Yes", got, ok)
	}
}

func TestClassifyQuestionWorkArrangementMismatch(t *testing.T) {
	got, ok := classifyQuestion("Are you willing to relocate onsite?", nil, domain.UserData{PreferredWorkArrangement: "remote"})
	if !ok || got.Answer != "No" {
		t.Errorf("got = %+v, ok = %v, want No", got, ok)
	}
}

package hitl

import "testing"

func TestIsURL(t *testing.T) {
	cases := map[string]bool{
		"https://boards.greenhouse.io/acme/jobs/123": true,
		"http://example.com/job":                     true,
		"stop":                                        false,
		"help":                                        false,
		"I think 3 years is fine":                     false,
		"ftp://example.com/job":                       false,
	}
	for input, want := range cases {
		if got := isURL(input); got != want {
			t.Errorf("isURL(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestIsCommand(t *testing.T) {
	for _, c := range []string{"help", "STATUS", "Report", "stop", "start"} {
		if !isCommand(c) {
			t.Errorf("isCommand(%q) = false, want true", c)
		}
	}
	if isCommand("please stop bugging me") {
		t.Error("expected a sentence containing a command word not to match")
	}
}

func TestHashURLIsDeterministic(t *testing.T) {
	a := hashURL("https://example.com/job/1")
	b := hashURL("https://example.com/job/1")
	if a != b {
		t.Error("expected hashURL to be deterministic")
	}
	if a == hashURL("https://example.com/job/2") {
		t.Error("expected different URLs to hash differently")
	}
}

func TestRedactPhone(t *testing.T) {
	if got := redactPhone("+15551234567"); got != "***4567" {
		t.Errorf("redactPhone = %q", got)
	}
	if got := redactPhone("55"); got != "***" {
		t.Errorf("redactPhone(short) = %q", got)
	}
}

func TestHostnameOf(t *testing.T) {
	if got := hostnameOf("https://boards.greenhouse.io/acme/jobs/123"); got != "boards.greenhouse.io" {
		t.Errorf("hostnameOf = %q", got)
	}
}

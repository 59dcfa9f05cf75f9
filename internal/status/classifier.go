// Package status infers a hiring-pipeline stage from email text.
package status

import (
	"regexp"
	"strings"

	"jobtrack-engine/internal/domain"
)

type rule struct {
	pattern *regexp.Regexp
	status  domain.Status
}

// rules are evaluated in order and the first match wins. Applied must stay
// ahead of Interview: acknowledgment templates often mention interviews.
var rules = []rule{
	{regexp.MustCompile(`thanks? (you )?for applying|received your application|application (has been |was )?submitted|we have received`), domain.StatusApplied},
	{regexp.MustCompile(`phone screen|recruiter call|initial (conversation|call|chat)|screening call`), domain.StatusPhoneScreen},
	{regexp.MustCompile(`interview|onsite|on-site|virtual interview|schedule.*interview`), domain.StatusInterview},
	{regexp.MustCompile(`offer|offer letter|compensation package|employment offer`), domain.StatusOffer},
	{regexp.MustCompile(`regret|unfortunately|not moving forward|decided to pursue|decided to move forward with other|not (been )?selected|application.*unsuccessful`), domain.StatusRejected},
}

// DetectStatus returns the stage implied by text, or domain.StatusNone.
func DetectStatus(text string) domain.Status {
	if text == "" {
		return domain.StatusNone
	}
	lower := strings.ToLower(text)
	for _, r := range rules {
		if r.pattern.MatchString(lower) {
			return r.status
		}
	}
	return domain.StatusNone
}

// Classify inspects subject and snippet only; bodies are never read.
func Classify(subject, snippet string) domain.Status {
	return DetectStatus(subject + " " + snippet)
}

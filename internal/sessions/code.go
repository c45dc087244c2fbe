package sessions

import (
	"regexp"
	"strings"
	"time"
)

// Phrases that mark a service message as carrying a login code. The
// service account writes them in English or Russian depending on the
// account language.
var codeTriggers = []string{"Login code", "Код"}

var codePattern = regexp.MustCompile(`\b(\d{5})\b`)

type foundCode struct {
	Code       string
	ReceivedAt time.Time
}

// scanForCode walks messages in the given order (callers pass newest
// first) and returns the first login code it finds.
func scanForCode(messages []Message) (foundCode, bool) {
	for _, msg := range messages {
		if !hasTrigger(msg.Text) {
			continue
		}
		if m := codePattern.FindStringSubmatch(msg.Text); m != nil {
			return foundCode{Code: m[1], ReceivedAt: msg.Date}, true
		}
	}
	return foundCode{}, false
}

func hasTrigger(text string) bool {
	for _, t := range codeTriggers {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

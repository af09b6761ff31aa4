package relay

import (
	"regexp"
	"strings"

	"github.com/zhouzirui/z-call/backend/internal/model/character"
)

var endCallPattern = regexp.MustCompile(`\s*` + regexp.QuoteMeta(character.EndCallMarker) + `\s*`)

// StripEndCall trims text and removes every end-call marker with the
// whitespace around it.
// A marker between words leaves a single space. found reports whether any
// marker was present.
func StripEndCall(text string) (cleaned string, found bool) {
	if !strings.Contains(text, character.EndCallMarker) {
		return strings.TrimSpace(text), false
	}
	return strings.TrimSpace(endCallPattern.ReplaceAllString(text, " ")), true
}

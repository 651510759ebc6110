package hub

import (
	"strings"
	"time"

	"github.com/erikbeerepoot/bramble/internal/protocol"
)

// DefaultQuietPeriod is how long the engine waits after the last received
// line before assuming a response without a terminal marker is complete.
const DefaultQuietPeriod = 500 * time.Millisecond

// CompletionPredicate reports whether the lines collected so far form a
// complete response
type CompletionPredicate func(lines []protocol.ResponseLine) bool

// QuietPeriodPolicy is the implicit completion fallback: once at least one
// line has arrived, a gap of Period with no further lines ends the response.
type QuietPeriodPolicy struct {
	Period time.Duration
}

func (p QuietPeriodPolicy) period() time.Duration {
	if p.Period <= 0 {
		return DefaultQuietPeriod
	}
	return p.Period
}

var completionRules = map[string]CompletionPredicate{
	protocol.VerbSetSchedule:     lastLineQueued,
	protocol.VerbRemoveSchedule:  lastLineQueued,
	protocol.VerbSetWakeInterval: lastLineQueued,
	protocol.VerbSetDateTime:     lastLineQueued,
	protocol.VerbListNodes:       headerThenItems(protocol.TagNodeListHeader, protocol.TokenNode+" "),
	protocol.VerbGetQueue:        headerThenItems(protocol.TagQueueHeader, protocol.TokenUpdate+" "),
}

// CompletionFor returns the predicate for command's verb, or nil when the
// response relies on the quiet period alone
func CompletionFor(command string) CompletionPredicate {
	return completionRules[protocol.Verb(command)]
}

func lastLineQueued(lines []protocol.ResponseLine) bool {
	if len(lines) == 0 {
		return false
	}
	return strings.HasPrefix(lines[len(lines)-1].Text, protocol.TokenQueued)
}

// headerThenItems completes once the first line is a header of kind header
// and it is followed by at least Count lines carrying itemPrefix
func headerThenItems(header protocol.ResponseTag, itemPrefix string) CompletionPredicate {
	return func(lines []protocol.ResponseLine) bool {
		if len(lines) == 0 || lines[0].Tag != header {
			return false
		}
		items := 0
		for _, l := range lines[1:] {
			if strings.HasPrefix(l.Text, itemPrefix) {
				items++
			}
		}
		return items >= lines[0].Count
	}
}

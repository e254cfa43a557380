// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"fmt"
	"strings"
)

// smartCompressResponse implements spec §4.6's truncation rule: when a
// response exceeds maxChars, keep the first 70% and last 20% of the budget,
// joined by an omission marker naming how many characters were dropped.
func smartCompressResponse(response string, maxChars int) string {
	if maxChars <= 0 || len(response) <= maxChars {
		return response
	}
	head := int(float64(maxChars) * 0.7)
	tail := int(float64(maxChars) * 0.2)
	if head+tail >= len(response) {
		return response
	}
	omitted := len(response) - head - tail
	marker := fmt.Sprintf("[... %d characters omitted ...]", omitted)
	return response[:head] + marker + response[len(response)-tail:]
}

// renderTurns selects the last numRuns RunRecords from runs (filtered to
// leader runs only when leaderOnly is set), applying smart-compress per
// response when requested.
func renderTurns(runs []*RunRecord, numRuns int, maxResponseChars int, smartCompress bool, leaderOnly bool) []HistoryTurn {
	selected := runs
	if leaderOnly {
		selected = leaderRuns(runs)
	}

	if numRuns > 0 && len(selected) > numRuns {
		selected = selected[len(selected)-numRuns:]
	}

	turns := make([]HistoryTurn, 0, len(selected))
	for _, r := range selected {
		response := r.Response
		if smartCompress && maxResponseChars > 0 {
			response = smartCompressResponse(response, maxResponseChars)
		} else if maxResponseChars > 0 && len(response) > maxResponseChars {
			response = response[:maxResponseChars]
		}
		turns = append(turns, HistoryTurn{UserMessage: r.UserMessage, Response: response})
	}
	return turns
}

// renderHistoryContext builds the XML-tagged block for system-prompt
// injection (spec §4.6). tag is "conversation_history" for agent sessions
// and "team_history" for team ones.
func renderHistoryContext(tag string, turns []HistoryTurn, maxChars int, truncateResponse bool) string {
	if len(turns) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<%s>\n", tag)
	for _, t := range turns {
		response := t.Response
		if truncateResponse && maxChars > 0 && len(response) > maxChars {
			response = response[:maxChars] + "..."
		}
		b.WriteString("<turn>\n")
		fmt.Fprintf(&b, "<user>%s</user>\n", t.UserMessage)
		fmt.Fprintf(&b, "<assistant>%s</assistant>\n", response)
		b.WriteString("</turn>\n")
	}
	fmt.Fprintf(&b, "</%s>\n", tag)
	return b.String()
}

// Package mention parses a leading "@agent" prefix in composer input.
package mention

import (
	"regexp"
	"strings"

	"github.com/linlay/agent-webclient/pkg/api"
)

var (
	leadingRe = regexp.MustCompile(`^\s*@(\S+)\s*`)
	draftRe   = regexp.MustCompile(`^\s*@(\S*)$`)
	emptyRe   = regexp.MustCompile(`^\s*@\s*$`)
)

// Result is the outcome of parsing a message for a leading mention.
type Result struct {
	CleanMessage string
	AgentKey     string
	Token        string
	Err          string
	HasMention   bool
}

// Parse strips a leading "@key" that names a known agent. Unknown or empty
// mentions are reported in Err and the message is left whole.
func Parse(message string, agents []api.Agent) Result {
	trimmed := strings.TrimSpace(message)

	if emptyRe.MatchString(message) {
		return Result{Err: "agent mention is empty", HasMention: true}
	}

	m := leadingRe.FindStringSubmatch(message)
	if m == nil {
		return Result{CleanMessage: trimmed}
	}

	token := m[1]
	for _, a := range NormalizeAgents(agents) {
		if a.Key == token {
			return Result{
				CleanMessage: strings.TrimSpace(message[len(m[0]):]),
				AgentKey:     a.Key,
				Token:        token,
				HasMention:   true,
			}
		}
	}
	return Result{
		CleanMessage: trimmed,
		Token:        token,
		Err:          "unknown agent: " + token,
		HasMention:   true,
	}
}

// Draft returns the partial agent key while the user is still typing the
// mention, e.g. "@da" yields "da".
func Draft(message string) (string, bool) {
	m := draftRe.FindStringSubmatch(message)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// NormalizeAgents trims keys and names and drops agents without a key.
func NormalizeAgents(agents []api.Agent) []api.Agent {
	out := make([]api.Agent, 0, len(agents))
	for _, a := range agents {
		a.Key = strings.TrimSpace(a.Key)
		a.Name = strings.TrimSpace(a.Name)
		if a.Key == "" {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Suggest returns the agents whose key or name starts with the draft token.
func Suggest(token string, agents []api.Agent) []api.Agent {
	token = strings.ToLower(token)
	var out []api.Agent
	for _, a := range NormalizeAgents(agents) {
		if strings.HasPrefix(strings.ToLower(a.Key), token) || strings.HasPrefix(strings.ToLower(a.Name), token) {
			out = append(out, a)
		}
	}
	return out
}

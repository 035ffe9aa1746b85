package plan

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ziadkadry99/lanne/internal/agent"
	"github.com/ziadkadry99/lanne/internal/intent"
)

// ErrUnparseable is returned when no field of a plan could be recovered.
var ErrUnparseable = errors.New("planner reply is not a plan")

// Tier records which parsing path produced a plan.
type Tier string

const (
	TierStrict Tier = "strict"
	TierRepair Tier = "repair"
	TierFields Tier = "fields"
)

const planSchema = `{
  "type": "object",
  "properties": {
    "intent":         {"type": "string"},
    "use_agent":      {"type": "boolean"},
    "agent_commands": {"type": "array", "items": {"type": "string"}},
    "use_rag":        {"type": "boolean"},
    "use_web":        {"type": "boolean"},
    "response_style": {"type": "string"},
    "reasoning":      {"type": "string"}
  },
  "anyOf": [
    {"required": ["use_agent"]},
    {"required": ["use_rag"]},
    {"required": ["use_web"]}
  ]
}`

var schema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(planSchema))
	if err != nil {
		panic("plan schema: " + err.Error())
	}
	return s
}()

type rawPlan struct {
	UseAgent      bool     `json:"use_agent"`
	AgentCommands []string `json:"agent_commands"`
	UseRAG        bool     `json:"use_rag"`
	UseWeb        bool     `json:"use_web"`
	ResponseStyle string   `json:"response_style"`
	Reasoning     string   `json:"reasoning"`
}

// Parse extracts a technical plan from a planner reply. It tries a strict
// schema-validated decode, then a repaired decode, then per-field
// extraction. Commands outside the agent catalogue are dropped and an
// unknown style becomes CHAT.
func Parse(reply string) (Plan, Tier, error) {
	if raw, ok := parseStrict(reply); ok {
		return raw.toPlan(), TierStrict, nil
	}
	repaired := repair(reply)
	if raw, ok := parseRepaired(repaired); ok {
		return raw.toPlan(), TierRepair, nil
	}
	if raw, ok := parseFields(repaired); ok {
		return raw.toPlan(), TierFields, nil
	}
	return Plan{}, "", ErrUnparseable
}

func (r rawPlan) toPlan() Plan {
	cmds := make([]string, 0, len(r.AgentCommands))
	seen := map[string]bool{}
	for _, c := range r.AgentCommands {
		c = strings.TrimSpace(c)
		if agent.Known(c) && !seen[c] {
			seen[c] = true
			cmds = append(cmds, c)
		}
	}
	return Plan{
		Intent:        intent.Technical,
		UseAgent:      r.UseAgent,
		AgentCommands: cmds,
		UseRetrieval:  r.UseRAG,
		UseWebSearch:  r.UseWeb,
		ResponseStyle: parseStyle(strings.ToUpper(strings.TrimSpace(r.ResponseStyle))),
		Reasoning:     r.Reasoning,
	}
}

func parseStrict(reply string) (rawPlan, bool) {
	s := strings.TrimSpace(reply)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	res, err := schema.Validate(gojsonschema.NewStringLoader(s))
	if err != nil || !res.Valid() {
		return rawPlan{}, false
	}
	var raw rawPlan
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return rawPlan{}, false
	}
	return raw, true
}

// Look-alike letters some local models emit inside JSON keys.
var cyrillic = strings.NewReplacer(
	"а", "a", "е", "e", "о", "o", "р", "p", "с", "c", "у", "y", "х", "x",
	"А", "A", "Е", "E", "О", "O", "Р", "P", "С", "C", "У", "Y", "Х", "X",
	"В", "B", "К", "K", "М", "M", "Н", "H", "Т", "T", "і", "i", "І", "I",
)

var (
	reKeyTrue     = regexp.MustCompile(`(?i)"(\w+)\s+true"\s*:\s*"?true"?`)
	reKeyFalse    = regexp.MustCompile(`(?i)"(\w+)\s+false"\s*:\s*"?false"?`)
	reParenKey    = regexp.MustCompile(`"\((\w+)\)"`)
	reQuotedTrue  = regexp.MustCompile(`(?i):\s*"true"`)
	reQuotedFalse = regexp.MustCompile(`(?i):\s*"false"`)
	reBareTrue    = regexp.MustCompile(`:\s*True\b`)
	reBareFalse   = regexp.MustCompile(`:\s*False\b`)
	reValues      = []struct {
		re   *regexp.Regexp
		with string
	}{
		{regexp.MustCompile(`(?i)"TECH?NICO"`), `"TECHNICAL"`},
		{regexp.MustCompile(`(?i)"SAUDACAO"`), `"GREETING"`},
		{regexp.MustCompile(`(?i)"ANALIS(E|AR)"`), `"ANALYZE"`},
		{regexp.MustCompile(`(?i)"CONVERSA"`), `"CHAT"`},
	}
)

// repair applies the textual fixes for common malformed planner output.
func repair(reply string) string {
	s := cyrillic.Replace(strings.TrimSpace(reply))

	// Replies primed after `{"use_agent":` arrive without their head.
	if !strings.Contains(s, "{") && (strings.HasPrefix(s, "true") || strings.HasPrefix(s, "false")) {
		s = `{"use_agent":` + s
	}

	if i := strings.LastIndex(s, "}"); i >= 0 {
		s = s[:i+1]
	}

	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `\'`, `'`)
	s = reKeyTrue.ReplaceAllString(s, `"$1":true`)
	s = reKeyFalse.ReplaceAllString(s, `"$1":false`)
	s = reParenKey.ReplaceAllString(s, `"$1"`)
	s = reQuotedTrue.ReplaceAllString(s, ": true")
	s = reQuotedFalse.ReplaceAllString(s, ": false")
	s = reBareTrue.ReplaceAllString(s, ": true")
	s = reBareFalse.ReplaceAllString(s, ": false")
	for _, v := range reValues {
		s = v.re.ReplaceAllString(s, v.with)
	}
	return s
}

func parseRepaired(s string) (rawPlan, bool) {
	start := strings.Index(s, "{")
	if start < 0 {
		return rawPlan{}, false
	}
	candidate := s[start:]

	var raw rawPlan
	if err := json.Unmarshal([]byte(candidate), &raw); err == nil {
		return raw, true
	}

	candidate = strings.TrimRight(candidate, " \t\r\n,")
	candidate += strings.Repeat("]", max(0, strings.Count(candidate, "[")-strings.Count(candidate, "]")))
	candidate += strings.Repeat("}", max(0, strings.Count(candidate, "{")-strings.Count(candidate, "}")))
	if err := json.Unmarshal([]byte(candidate), &raw); err == nil {
		return raw, true
	}
	return rawPlan{}, false
}

var (
	reUseAgent  = regexp.MustCompile(`(?i)"use_agent"\s*:\s*"?(true|false)"?`)
	reUseRAG    = regexp.MustCompile(`(?i)"use_rag"\s*:\s*"?(true|false)"?`)
	reUseWeb    = regexp.MustCompile(`(?i)"use_web"\s*:\s*"?(true|false)"?`)
	reCommands  = regexp.MustCompile(`(?s)"agent_commands"\s*:\s*\[(.*?)(\]|$)`)
	reQuoted    = regexp.MustCompile(`"(\w+)"`)
	reStyle     = regexp.MustCompile(`(?i)"response_style"\s*:\s*"(\w+)"`)
	reReasoning = regexp.MustCompile(`"reasoning"\s*:\s*"([^"]*)"`)
)

func parseFields(s string) (rawPlan, bool) {
	var raw rawPlan
	found := false

	if m := reUseAgent.FindStringSubmatch(s); m != nil {
		raw.UseAgent, found = strings.EqualFold(m[1], "true"), true
	}
	if m := reUseRAG.FindStringSubmatch(s); m != nil {
		raw.UseRAG, found = strings.EqualFold(m[1], "true"), true
	}
	if m := reUseWeb.FindStringSubmatch(s); m != nil {
		raw.UseWeb, found = strings.EqualFold(m[1], "true"), true
	}
	if m := reCommands.FindStringSubmatch(s); m != nil {
		for _, c := range reQuoted.FindAllStringSubmatch(m[1], -1) {
			raw.AgentCommands = append(raw.AgentCommands, c[1])
		}
		found = true
	}
	if m := reStyle.FindStringSubmatch(s); m != nil {
		raw.ResponseStyle = m[1]
	}
	if m := reReasoning.FindStringSubmatch(s); m != nil {
		raw.Reasoning = m[1]
	}
	return raw, found
}

package classifier

import (
	"encoding/json"
	"fmt"
	"strings"
)

// rawResult mirrors the model's JSON output. Reasoning is deferred because
// models sometimes return an array of bullets instead of a string, and
// older prompts used "topic" where current ones use "interest".
type rawResult struct {
	Interest  *string         `json:"interest"`
	Topic     *string         `json:"topic"`
	IsSignal  bool            `json:"is_signal"`
	Reasoning json.RawMessage `json:"reasoning"`
}

// ParseResponse parses the model's classification JSON. Markdown code fences
// around the object are tolerated; anything that still doesn't parse is an
// error and the entry stays unclassified.
func ParseResponse(response string) (*Result, error) {
	payload := extractJSON(response)

	var raw rawResult
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("invalid classification JSON: %w", err)
	}

	interest := raw.Interest
	if interest == nil {
		interest = raw.Topic // legacy key
	}
	if interest != nil && (*interest == "" || *interest == "null") {
		interest = nil
	}

	reasoning, err := parseReasoning(raw.Reasoning)
	if err != nil {
		return nil, err
	}

	return &Result{
		Interest:  interest,
		IsSignal:  raw.IsSignal,
		Reasoning: reasoning,
	}, nil
}

// extractJSON pulls the JSON object out of a response that may be wrapped in
// markdown code fences or surrounding prose.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	start := strings.Index(response, "{")
	if start == -1 {
		return response
	}
	end := strings.LastIndex(response, "}")
	if end == -1 || end < start {
		return response
	}
	return response[start : end+1]
}

// parseReasoning accepts reasoning as a string or an array of bullets and
// normalizes to bullet-prefixed lines.
func parseReasoning(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "No reasoning provided", nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		var bullets []string
		if err := json.Unmarshal(raw, &bullets); err != nil {
			return "", fmt.Errorf("invalid reasoning field: %s", string(raw))
		}
		for i, b := range bullets {
			bullets[i] = "• " + b
		}
		return strings.Join(bullets, "\n"), nil
	}

	if text == "" {
		return "No reasoning provided", nil
	}
	return normalizeBullets(text), nil
}

// normalizeBullets ensures every non-empty line carries a bullet prefix
func normalizeBullets(text string) string {
	if strings.HasPrefix(text, "•") || strings.HasPrefix(text, "-") {
		return text
	}

	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "•") && !strings.HasPrefix(line, "-") {
			line = "• " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

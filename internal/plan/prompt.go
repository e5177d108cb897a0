// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vinforge/SAM-sub002/internal/skill"
)

// maxResponseSize bounds planner output accepted by ParseResponse.
const maxResponseSize = 1024 * 1024

// =============================================================================
// PROMPT
// =============================================================================

// BuildPrompt constructs the planner prompt: the available skills with their
// contracts, the request, and the required JSON response shape.
func BuildPrompt(query, profile string, skills []skill.Descriptor, maxPlanLength int) string {
	var b strings.Builder

	b.WriteString("You are a planning assistant. Choose an ordered sequence of skills that answers the request.\n\n")
	b.WriteString("Available skills:\n")
	for _, d := range skills {
		fmt.Fprintf(&b, "- %s", d.Name)
		if d.Category != "" {
			fmt.Fprintf(&b, " [%s]", d.Category)
		}
		if d.Description != "" {
			fmt.Fprintf(&b, ": %s", d.Description)
		}
		b.WriteString("\n")
		if len(d.RequiredInputs) > 0 {
			fmt.Fprintf(&b, "    requires: %s\n", strings.Join(d.RequiredInputs, ", "))
		}
		if len(d.OptionalInputs) > 0 {
			fmt.Fprintf(&b, "    optional: %s\n", strings.Join(d.OptionalInputs, ", "))
		}
		if len(d.OutputKeys) > 0 {
			fmt.Fprintf(&b, "    produces: %s\n", strings.Join(d.OutputKeys, ", "))
		}
	}

	b.WriteString("\n")
	if profile != "" {
		fmt.Fprintf(&b, "User profile: %s\n", profile)
	}
	fmt.Fprintf(&b, "Request: %s\n\n", query)

	fmt.Fprintf(&b, `Use only the skill names listed above, at most %d steps. A skill may appear more than once.

Format your response as JSON with this structure:
{
  "plan": ["SkillName", "..."],
  "reasoning": "Why this sequence answers the request",
  "confidence": 0.0
}

Respond with ONLY the JSON, no additional text.`, maxPlanLength)

	return b.String()
}

// =============================================================================
// RESPONSE PARSING
// =============================================================================

// Response is the decoded planner output.
type Response struct {
	Plan       []string
	Reasoning  string
	Confidence float64
}

// ParseResponse decodes planner output. Markdown code fences and prose around
// the JSON object are tolerated. It fails with ErrMalformedPlan when the
// output is not JSON or "plan" is missing or not a list of strings.
func ParseResponse(response string) (Response, error) {
	if len(response) > maxResponseSize {
		return Response{}, fmt.Errorf("%w: response too large: %d bytes (max: %d)", ErrMalformedPlan, len(response), maxResponseSize)
	}

	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	// Models often wrap the object in prose.
	if start, end := strings.IndexByte(response, '{'), strings.LastIndexByte(response, '}'); start >= 0 && end > start {
		response = response[start : end+1]
	}

	var data struct {
		Plan       json.RawMessage `json:"plan"`
		Reasoning  string          `json:"reasoning"`
		Confidence float64         `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(response), &data); err != nil {
		return Response{}, fmt.Errorf("%w: failed to parse JSON response: %v", ErrMalformedPlan, err)
	}

	raw := bytes.TrimSpace(data.Plan)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Response{}, fmt.Errorf("%w: missing \"plan\"", ErrMalformedPlan)
	}
	var steps []string
	if err := json.Unmarshal(raw, &steps); err != nil {
		return Response{}, fmt.Errorf("%w: \"plan\" is not a list of skill names", ErrMalformedPlan)
	}
	for i := range steps {
		steps[i] = strings.TrimSpace(steps[i])
	}

	return Response{
		Plan:       steps,
		Reasoning:  strings.TrimSpace(data.Reasoning),
		Confidence: data.Confidence,
	}, nil
}

package tools

import (
	"encoding/json"
	"strings"
)

// Payload is the machine-readable context an agent sends with wf_next.
// Two wire forms are accepted: a JSON object, or the legacy string
// "choose: <node>".
type Payload struct {
	// Choose names the target node for the transition.
	Choose string `json:"choose"`
	// CriteriaEvidence maps criterion name → evidence text for the
	// current node's acceptance criteria.
	CriteriaEvidence map[string]string `json:"criteria_evidence"`
	// UserApproval confirms the user approved leaving an
	// approval-gated node.
	UserApproval bool `json:"user_approval"`
	// Workflow, when set, switches the session to the external
	// workflow at this path instead of transitioning within the
	// current one.
	Workflow string `json:"workflow"`
	// Return pops the workflow stack back to the calling workflow.
	Return bool `json:"return_from_workflow"`
}

// ParsePayload decodes the context argument. Unparseable input yields
// an empty payload rather than an error — the tool renders a "Missing
// Choice" guidance in that case.
func ParsePayload(raw string) Payload {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{}
	}

	if strings.HasPrefix(raw, "{") {
		var p Payload
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			return p
		}
		// Evidence values are occasionally sent as non-strings;
		// retry with a loose shape before giving up.
		var loose struct {
			Choose           string         `json:"choose"`
			CriteriaEvidence map[string]any `json:"criteria_evidence"`
			UserApproval     bool           `json:"user_approval"`
			Workflow         string         `json:"workflow"`
			Return           bool           `json:"return_from_workflow"`
		}
		if err := json.Unmarshal([]byte(raw), &loose); err == nil {
			p = Payload{
				Choose:       loose.Choose,
				UserApproval: loose.UserApproval,
				Workflow:     loose.Workflow,
				Return:       loose.Return,
			}
			if len(loose.CriteriaEvidence) > 0 {
				p.CriteriaEvidence = make(map[string]string, len(loose.CriteriaEvidence))
				for k, v := range loose.CriteriaEvidence {
					if s, ok := v.(string); ok {
						p.CriteriaEvidence[k] = s
					} else {
						data, _ := json.Marshal(v)
						p.CriteriaEvidence[k] = string(data)
					}
				}
			}
			return p
		}
		return Payload{}
	}

	// Legacy form: "choose: <node>".
	if rest, ok := strings.CutPrefix(raw, "choose:"); ok {
		return Payload{Choose: strings.TrimSpace(rest)}
	}
	return Payload{}
}

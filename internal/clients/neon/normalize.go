package neon

import (
	"encoding/json"
	"strings"
	"time"
)

// The control plane is not consistent about response envelopes across
// versions: lists arrive bare or under "branches"/"items"/"data", items
// arrive flat or nested under "branch", ids arrive at the top level or under
// "project". Everything entering the client goes through these functions and
// nothing partially normalized gets past them.

func normalizeBranchList(raw json.RawMessage) []Branch {
	if len(raw) == 0 {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil
		}
		for _, key := range []string{"branches", "items", "data"} {
			if inner, ok := envelope[key]; ok {
				if err := json.Unmarshal(inner, &items); err == nil {
					break
				}
			}
		}
	}

	out := make([]Branch, 0, len(items))
	for _, item := range items {
		if b, ok := normalizeBranch(item); ok {
			out = append(out, b)
		}
	}
	return out
}

func normalizeBranch(raw json.RawMessage) (Branch, bool) {
	var flat struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		ParentID  string          `json:"parent_id"`
		CreatedAt *time.Time      `json:"created_at"`
		Branch    json.RawMessage `json:"branch"`
	}
	if err := json.Unmarshal(raw, &flat); err != nil {
		return Branch{}, false
	}
	if len(flat.Branch) > 0 && strings.TrimSpace(flat.ID) == "" {
		return normalizeBranch(flat.Branch)
	}
	id := strings.TrimSpace(flat.ID)
	if id == "" {
		return Branch{}, false
	}
	return Branch{
		ID:        id,
		Name:      strings.TrimSpace(flat.Name),
		ParentID:  strings.TrimSpace(flat.ParentID),
		CreatedAt: flat.CreatedAt,
	}, true
}

// extractProjectID accepts {"project": {"id": ...}} and {"id": ...}.
func extractProjectID(raw json.RawMessage) string {
	var body struct {
		ID      string `json:"id"`
		Project struct {
			ID string `json:"id"`
		} `json:"project"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if id := strings.TrimSpace(body.Project.ID); id != "" {
		return id
	}
	return strings.TrimSpace(body.ID)
}

func extractConnectionURI(raw json.RawMessage) string {
	var body struct {
		URI            string `json:"uri"`
		ConnectionURIs []struct {
			ConnectionURI string `json:"connection_uri"`
		} `json:"connection_uris"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	for _, c := range body.ConnectionURIs {
		if uri := strings.TrimSpace(c.ConnectionURI); uri != "" {
			return uri
		}
	}
	return strings.TrimSpace(body.URI)
}

func extractOperations(raw json.RawMessage) []Operation {
	var body struct {
		Operations []Operation `json:"operations"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil
	}
	out := make([]Operation, 0, len(body.Operations))
	for _, op := range body.Operations {
		if strings.TrimSpace(op.ID) != "" {
			out = append(out, op)
		}
	}
	return out
}

func normalizeOperation(raw json.RawMessage) (Operation, bool) {
	var flat struct {
		ID        string          `json:"id"`
		Status    OperationStatus `json:"status"`
		Action    string          `json:"action"`
		Operation json.RawMessage `json:"operation"`
	}
	if err := json.Unmarshal(raw, &flat); err != nil {
		return Operation{}, false
	}
	if len(flat.Operation) > 0 && strings.TrimSpace(flat.ID) == "" {
		return normalizeOperation(flat.Operation)
	}
	if strings.TrimSpace(flat.ID) == "" {
		return Operation{}, false
	}
	return Operation{ID: flat.ID, Status: flat.Status, Action: flat.Action}, true
}

func extractSnapshotID(raw json.RawMessage) string {
	var body struct {
		ID       string `json:"id"`
		Snapshot struct {
			ID string `json:"id"`
		} `json:"snapshot"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if id := strings.TrimSpace(body.Snapshot.ID); id != "" {
		return id
	}
	return strings.TrimSpace(body.ID)
}

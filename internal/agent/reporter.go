package agent

import (
	"context"

	"github.com/sutra-db/sutra/internal/clustermeta"
	"github.com/sutra-db/sutra/internal/eventlog"
)

// EventReporter forwards lifecycle events to the master's /events endpoint.
// Agents carry no local events shard, so this is how node-crash and
// node-restart occurrences still end up persisted as concepts.
type EventReporter struct {
	MasterAddr string
}

type eventPostBody struct {
	Type     eventlog.Type     `json:"type"`
	EntityID string            `json:"entity_id"`
	Details  map[string]string `json:"details,omitempty"`
}

// Report posts one event, best-effort: failures are swallowed by the
// caller (a background supervisor loop has nowhere useful to propagate
// them) and left to the next heartbeat/poll cycle to notice via node
// status instead.
func (r EventReporter) Report(ctx context.Context, typ eventlog.Type, entityID string, details map[string]string) {
	if r.MasterAddr == "" {
		return
	}
	body := eventPostBody{Type: typ, EntityID: entityID, Details: details}
	_ = clustermeta.PostJSON(ctx, "http://"+r.MasterAddr+"/events", body, nil)
}

package master

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sutra-db/sutra/internal/concept"
	"github.com/sutra-db/sutra/internal/sutraerr"
	"github.com/sutra-db/sutra/internal/txn"
	"github.com/sutra-db/sutra/internal/wireproto"
)

// dialTimeout bounds how long the master waits to open a fresh connection
// to a shard's storage node before giving up on the whole transaction.
const dialTimeout = 5 * time.Second

// ConceptOpJSON is the HTTP-facing shape of a txn.ConceptOp.
type ConceptOpJSON struct {
	Content  string            `json:"content"`
	Tenant   string             `json:"tenant,omitempty"`
	Vector   []float32          `json:"vector"`
	Metadata map[string]string  `json:"metadata,omitempty"`
}

// AssociationOpJSON is the HTTP-facing shape of a txn.AssociationOp.
type AssociationOpJSON struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Type       string  `json:"type"`
	Weight     float64 `json:"weight"`
	Confidence float64 `json:"confidence"`
}

// TxOpJSON names the shard an op belongs to, alongside exactly one of a
// concept or association op.
type TxOpJSON struct {
	ShardID     string              `json:"shard_id"`
	Concept     *ConceptOpJSON      `json:"concept,omitempty"`
	Association *AssociationOpJSON  `json:"association,omitempty"`
}

type beginTxRequest struct {
	Ops []TxOpJSON `json:"ops"`
}

type beginTxResponse struct {
	TxID      string `json:"tx_id"`
	Committed bool   `json:"committed"`
}

func toTxOp(j TxOpJSON) (txn.Op, error) {
	switch {
	case j.Concept != nil:
		tenant, ok := concept.ParseTenant(j.Concept.Tenant)
		if !ok {
			return txn.Op{}, sutraerr.MalformedFrame("invalid tenant")
		}
		return txn.Op{Concept: &txn.ConceptOp{
			Content: j.Concept.Content, Tenant: tenant, Vector: j.Concept.Vector, Metadata: j.Concept.Metadata,
		}}, nil
	case j.Association != nil:
		src, ok := concept.ParseID(j.Association.Source)
		if !ok {
			return txn.Op{}, sutraerr.MalformedFrame("invalid source id")
		}
		tgt, ok := concept.ParseID(j.Association.Target)
		if !ok {
			return txn.Op{}, sutraerr.MalformedFrame("invalid target id")
		}
		typ, ok := concept.ParseAssocType(j.Association.Type)
		if !ok {
			return txn.Op{}, sutraerr.InvalidAssociationType(j.Association.Type)
		}
		return txn.Op{Association: &txn.AssociationOp{
			Source: src, Target: tgt, Type: typ, Weight: j.Association.Weight, Confidence: j.Association.Confidence,
		}}, nil
	default:
		return txn.Op{}, sutraerr.MalformedFrame("tx op carries neither concept nor association payload")
	}
}

// handleBeginTx runs the two-phase commit protocol across
// whichever shards req.Ops names, dialing each shard's storage node fresh
// for the duration of the call and tearing the connections down once the
// decision is broadcast.
func (m *Master) handleBeginTx(w http.ResponseWriter, r *http.Request) {
	var req beginTxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	plan := make(map[string][]txn.Op)
	for _, j := range req.Ops {
		op, err := toTxOp(j)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		plan[j.ShardID] = append(plan[j.ShardID], op)
	}

	participants := make(map[string]txn.Participant, len(plan))
	var clients []*wireproto.Client
	defer func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}()

	for shardID := range plan {
		node, ok := m.Nodes.ByShard(shardID)
		if !ok {
			http.Error(w, "no storage node for shard "+shardID, http.StatusBadGateway)
			return
		}
		client, err := wireproto.Dial(node.Endpoint, dialTimeout)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		clients = append(clients, client)
		participants[shardID] = &txn.RemoteParticipant{Client: client}
	}

	txID, err := m.Coordinator.Begin()
	if err != nil {
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	}
	committed, err := m.Coordinator.Run(r.Context(), txID, plan, participants)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, beginTxResponse{TxID: txID, Committed: committed})
}

package storagenode

import (
	"time"

	"github.com/sutra-db/sutra/internal/concept"
	"github.com/sutra-db/sutra/internal/sutraerr"
	"github.com/sutra-db/sutra/internal/walog"
)

// PrepareTx validates one participant's slice of a cross-shard write and, if
// every item is valid, durably records it in the WAL without making it
// visible. The returned bool is the participant's
// yes/no vote; an error means validation could not even be attempted (a
// protocol-level problem, not a "no" vote).
func (n *Node) PrepareTx(txID string, items []BatchItem) (bool, error) {
	encoded := make([][]byte, 0, len(items))
	staged := map[concept.ID]concept.Tenant{}

	for _, item := range items {
		switch {
		case item.Concept != nil:
			req := item.Concept
			if len(req.Content) > concept.MaxContentBytes {
				return false, nil
			}
			if len(req.Vector) != n.store.Dimension() {
				return false, nil
			}
			id := concept.DeriveID(req.Tenant, req.Content)
			now := time.Now()
			strength, confidence, accessCount := concept.MinStrength, concept.MinConfidence, uint64(1)
			if existing, ok := n.store.Index().GetConcept(id); ok {
				if existing.Tenant != req.Tenant {
					return false, nil
				}
				strength = concept.ClampStrength(existing.Strength + 0.02)
				confidence = existing.Confidence
				accessCount = existing.AccessCount + 1
			}
			staged[id] = req.Tenant
			payload, err := walog.EncodeTxOpConcept(walog.ConceptPayload{
				ID: id, Tenant: req.Tenant, Content: req.Content, Embedding: req.Vector, Metadata: req.Metadata,
				Strength: strength, Confidence: confidence, AccessCount: accessCount,
				CreatedNs: now.UnixNano(), AccessNs: now.UnixNano(),
			})
			if err != nil {
				return false, err
			}
			encoded = append(encoded, payload)

		case item.Association != nil:
			req := item.Association
			srcTenant, srcOK := staged[req.Source]
			if !srcOK {
				src, ok := n.store.Index().GetConcept(req.Source)
				if !ok {
					return false, nil
				}
				srcTenant = src.Tenant
			}
			tgtTenant, tgtOK := staged[req.Target]
			if !tgtOK {
				tgt, ok := n.store.Index().GetConcept(req.Target)
				if !ok {
					return false, nil
				}
				tgtTenant = tgt.Tenant
			}
			if srcTenant != tgtTenant {
				return false, nil
			}
			weight := req.Weight
			if weight == 0 {
				weight = 1
			}
			now := time.Now()
			payload, err := walog.EncodeTxOpAssociation(walog.AssociationPayload{
				Source: req.Source, Target: req.Target, Tenant: srcTenant, Type: uint8(req.Type),
				Weight: concept.ClampWeight(weight), Confidence: concept.ClampConfidence(req.Confidence),
				CreatedNs: now.UnixNano(), UsedNs: now.UnixNano(),
			})
			if err != nil {
				return false, err
			}
			encoded = append(encoded, payload)

		default:
			return false, nil
		}
	}

	if err := n.store.PrepareTx(txID, encoded); err != nil {
		return false, sutraerr.WALWriteFailed(err)
	}
	return true, nil
}

// CommitTx makes a previously prepared transaction's ops visible.
func (n *Node) CommitTx(txID string) error {
	if err := n.store.CommitTx(txID); err != nil {
		return sutraerr.WALWriteFailed(err)
	}
	return nil
}

// AbortTx discards a previously prepared transaction.
func (n *Node) AbortTx(txID string) error {
	if err := n.store.AbortTx(txID); err != nil {
		return sutraerr.WALWriteFailed(err)
	}
	return nil
}

// InDoubtTxIDs reports transactions this node's WAL prepared but never saw
// resolved, left over from a crash between prepare and commit/abort.
func (n *Node) InDoubtTxIDs() []string {
	return n.store.InDoubtTxIDs()
}

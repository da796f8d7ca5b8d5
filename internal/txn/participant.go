package txn

import (
	"context"

	"github.com/sutra-db/sutra/internal/concept"
	"github.com/sutra-db/sutra/internal/storagenode"
)

// ConceptOp is one concept-learn operation within a cross-shard transaction.
type ConceptOp struct {
	Content  string
	Tenant   concept.Tenant
	Vector   []float32
	Metadata map[string]string
}

// AssociationOp is one association-learn operation within a transaction.
type AssociationOp struct {
	Source     concept.ID
	Target     concept.ID
	Type       concept.AssocType
	Weight     float64
	Confidence float64
}

// Op is a shard-agnostic unit of work the coordinator assigns to whichever
// participant owns it; exactly one field is set.
type Op struct {
	Concept     *ConceptOp
	Association *AssociationOp
}

// Participant is anything that can vote on and apply one shard's slice of a
// transaction. internal/storagenode.Node implements it via LocalParticipant;
// a remote shard would implement it by speaking internal/wireproto's
// transaction opcodes instead.
type Participant interface {
	Prepare(ctx context.Context, txID string, ops []Op) (bool, error)
	Commit(ctx context.Context, txID string) error
	Abort(ctx context.Context, txID string) error
}

// LocalParticipant adapts an in-process storagenode.Node to Participant,
// the path taken when the coordinator and the participant shard share a
// process (the common case for this engine's single-binary deployment).
type LocalParticipant struct {
	Node *storagenode.Node
}

func (p *LocalParticipant) Prepare(_ context.Context, txID string, ops []Op) (bool, error) {
	items := make([]storagenode.BatchItem, len(ops))
	for i, op := range ops {
		switch {
		case op.Concept != nil:
			items[i] = storagenode.BatchItem{Concept: &storagenode.LearnConceptRequest{
				Content: op.Concept.Content, Tenant: op.Concept.Tenant,
				Vector: op.Concept.Vector, Metadata: op.Concept.Metadata,
			}}
		case op.Association != nil:
			items[i] = storagenode.BatchItem{Association: &storagenode.LearnAssociationRequest{
				Source: op.Association.Source, Target: op.Association.Target, Type: op.Association.Type,
				Weight: op.Association.Weight, Confidence: op.Association.Confidence,
			}}
		}
	}
	return p.Node.PrepareTx(txID, items)
}

func (p *LocalParticipant) Commit(_ context.Context, txID string) error { return p.Node.CommitTx(txID) }
func (p *LocalParticipant) Abort(_ context.Context, txID string) error  { return p.Node.AbortTx(txID) }

// RecoverInDoubt resolves every transaction left in-doubt by a crash
// between prepare and commit/abort, consulting the coordinator's commit
// log for each. Call this once after a participant's store has finished
// recovery.
func RecoverInDoubt(ctx context.Context, p *LocalParticipant, resolver DecisionResolver) {
	for _, txID := range p.Node.InDoubtTxIDs() {
		committed, found := resolver.Decision(txID)
		if !found {
			continue // coordinator itself has no record; stays in-doubt until it does
		}
		if committed {
			_ = p.Commit(ctx, txID)
		} else {
			_ = p.Abort(ctx, txID)
		}
	}
}

// DecisionResolver is the read side of CommitLog, split out so a recovering
// participant needs only to ask "what did the coordinator decide", not link
// against the full coordinator implementation.
type DecisionResolver interface {
	Decision(txID string) (committed bool, found bool)
}

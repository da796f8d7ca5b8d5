package txn

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/sutra-db/sutra/internal/wireproto"
)

// RemoteParticipant adapts a *wireproto.Client dialed to another shard's
// storage node into a Participant, the path a cross-host master or
// coordinator node takes for every shard but the one it happens to host
// in-process (LocalParticipant covers that case). It speaks the same
// prepare_tx/commit_tx/abort_tx opcodes internal/wireproto's NodeHandler
// answers, so from the participant's point of view a remote and a local
// coordinator look identical.
type RemoteParticipant struct {
	Client *wireproto.Client
}

func toWireItems(ops []Op) []wireproto.BatchItem {
	items := make([]wireproto.BatchItem, len(ops))
	for i, op := range ops {
		switch {
		case op.Concept != nil:
			items[i] = wireproto.BatchItem{Concept: &wireproto.LearnConceptRequest{
				Content: op.Concept.Content, Tenant: op.Concept.Tenant.String(),
				Vector: op.Concept.Vector, Metadata: op.Concept.Metadata,
			}}
		case op.Association != nil:
			items[i] = wireproto.BatchItem{Association: &wireproto.LearnAssociationRequest{
				Source: op.Association.Source.String(), Target: op.Association.Target.String(),
				Type: op.Association.Type.String(), Weight: op.Association.Weight, Confidence: op.Association.Confidence,
			}}
		}
	}
	return items
}

// Prepare sends a prepare_tx frame and returns the participant's vote. A
// transport or decode failure is returned as an error rather than a vote;
// Coordinator.Run counts a Prepare error as a "no" vote.
func (p *RemoteParticipant) Prepare(ctx context.Context, txID string, ops []Op) (bool, error) {
	payload, err := p.Client.Call(ctx, wireproto.OpPrepareTx, wireproto.PrepareTxRequest{
		TxID: txID, Items: toWireItems(ops),
	})
	if err != nil {
		return false, err
	}
	var resp wireproto.PrepareTxResponse
	if err := msgpack.Unmarshal(payload, &resp); err != nil {
		return false, fmt.Errorf("txn: decode prepare_tx response: %w", err)
	}
	return resp.Vote, nil
}

// Commit sends a commit_tx frame, making the transaction's ops visible on
// the remote shard.
func (p *RemoteParticipant) Commit(ctx context.Context, txID string) error {
	_, err := p.Client.Call(ctx, wireproto.OpCommitTx, wireproto.CommitTxRequest{TxID: txID})
	return err
}

// Abort sends an abort_tx frame, discarding the transaction's prepared ops
// on the remote shard.
func (p *RemoteParticipant) Abort(ctx context.Context, txID string) error {
	_, err := p.Client.Call(ctx, wireproto.OpAbortTx, wireproto.AbortTxRequest{TxID: txID})
	return err
}

package store

import "github.com/sutra-db/sutra/internal/walog"

// PrepareTx durably records a transaction's validated ops without applying them to the in-memory index. Commit or
// Abort resolves it later, possibly after a crash and restart.
func (s *Store) PrepareTx(txID string, ops [][]byte) error {
	payload, err := walog.EncodeTxPayload(walog.TxPayload{TxID: txID, Ops: ops})
	if err != nil {
		return err
	}
	if _, err := s.wal.Append(walog.OpPrepare, payload); err != nil {
		return err
	}
	s.txMu.Lock()
	s.pending[txID] = ops
	s.txMu.Unlock()
	s.metrics.txPrepares.Inc()
	return nil
}

// CommitTx writes the commit record and applies the prepared ops to the
// in-memory index atomically at that write.
func (s *Store) CommitTx(txID string) error {
	s.txMu.Lock()
	ops, ok := s.pending[txID]
	delete(s.pending, txID)
	s.txMu.Unlock()
	if !ok {
		return walog.ErrUnknownTx
	}

	payload, err := walog.EncodeTxPayload(walog.TxPayload{TxID: txID})
	if err != nil {
		return err
	}
	if _, err := s.wal.Append(walog.OpCommit, payload); err != nil {
		return err
	}
	s.applyTxOps(ops)
	s.metrics.txCommits.Inc()
	return nil
}

// AbortTx writes the abort record and discards the prepared ops; on
// recovery, a prepare with no matching commit/abort is the transaction's
// "in-doubt" state this removes.
func (s *Store) AbortTx(txID string) error {
	s.txMu.Lock()
	delete(s.pending, txID)
	s.txMu.Unlock()

	payload, err := walog.EncodeTxPayload(walog.TxPayload{TxID: txID})
	if err != nil {
		return err
	}
	if _, err := s.wal.Append(walog.OpAbort, payload); err != nil {
		return err
	}
	s.metrics.txAborts.Inc()
	return nil
}

// InDoubtTxIDs returns the ids of transactions whose WAL carries a prepare
// record with no matching commit or abort, discovered during recovery. A
// participant in this state must consult the coordinator to resolve it.
func (s *Store) InDoubtTxIDs() []string {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	return ids
}

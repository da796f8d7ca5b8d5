package storagenode

import "github.com/sutra-db/sutra/internal/sutraerr"

// BatchItem is one sub-payload of a learn_batch request: exactly one of
// Concept or Association is set.
type BatchItem struct {
	Concept     *LearnConceptRequest
	Association *LearnAssociationRequest
}

// BatchResult is one sub-result of a learn_batch response. Exactly one of
// ConceptID/AssociationKey is set unless Err is non-nil; errors are
// returned per item, in order.
type BatchResult struct {
	Err           error
	ConceptID     string
	AssociationKey string
}

// LearnBatch applies N learn_concept/learn_association sub-payloads in one
// call, amortizing round-trips while preserving per-item error
// reporting. A failure in one item does not abort the rest.
func (n *Node) LearnBatch(items []BatchItem) ([]BatchResult, error) {
	if len(items) > MaxBatchItems {
		return nil, sutraerr.BatchTooLarge(len(items), MaxBatchItems)
	}

	results := make([]BatchResult, len(items))
	for i, item := range items {
		switch {
		case item.Concept != nil:
			id, err := n.LearnConcept(*item.Concept)
			if err != nil {
				results[i] = BatchResult{Err: err}
				continue
			}
			results[i] = BatchResult{ConceptID: id.String()}
		case item.Association != nil:
			key, err := n.LearnAssociation(*item.Association)
			if err != nil {
				results[i] = BatchResult{Err: err}
				continue
			}
			results[i] = BatchResult{AssociationKey: key.Source.String() + "->" + key.Target.String() + ":" + key.Type.String()}
		default:
			results[i] = BatchResult{Err: sutraerr.MalformedFrame("batch item carries neither concept nor association payload")}
		}
	}
	return results, nil
}

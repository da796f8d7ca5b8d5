package wireproto

import (
	"context"

	"github.com/sutra-db/sutra/internal/concept"
	"github.com/sutra-db/sutra/internal/storagenode"
	"github.com/sutra-db/sutra/internal/sutraerr"
)

// Handler processes one request frame and returns its response frame.
// Implementations never return an error themselves: a failure becomes an
// error response frame via errorResponse, keeping connection handling
// (conn.go) oblivious to what any given opcode does.
type Handler interface {
	Handle(ctx context.Context, req Frame) Frame
}

// NodeHandler dispatches wire frames directly against a single
// storagenode.Node, the shape every primary/events storage-node process
// runs.
type NodeHandler struct {
	Node *storagenode.Node
}

// Handle implements Handler by decoding req.Payload per its opcode,
// calling the matching Node method, and encoding the result. Unknown
// opcodes are answered with an unknown_opcode error response, which
// Server writes like any other response; the connection stays open.
func (h *NodeHandler) Handle(_ context.Context, req Frame) Frame {
	switch req.Opcode {
	case OpLearnConcept:
		return h.learnConcept(req)
	case OpLearnAssociation:
		return h.learnAssociation(req)
	case OpLearnBatch:
		return h.learnBatch(req)
	case OpQueryConcept:
		return h.queryConcept(req)
	case OpGetNeighbors:
		return h.getNeighbors(req)
	case OpGetNeighborsDepth:
		return h.getNeighborsDepth(req)
	case OpFindPath:
		return h.findPath(req)
	case OpVectorSearch:
		return h.vectorSearch(req)
	case OpPrepareTx:
		return h.prepareTx(req)
	case OpCommitTx:
		return h.commitTx(req)
	case OpAbortTx:
		return h.abortTx(req)
	case OpStats:
		return h.stats(req)
	case OpPing:
		return response(req, encode(PingResponse{}))
	default:
		return errorResponse(req, sutraerr.UnknownOpcode(byte(req.Opcode)))
	}
}

func (h *NodeHandler) learnConcept(req Frame) Frame {
	var body LearnConceptRequest
	if err := decode(req.Payload, &body); err != nil {
		return errorResponse(req, err)
	}
	sr, err := toStorageLearnConcept(body)
	if err != nil {
		return errorResponse(req, err)
	}
	id, err := h.Node.LearnConcept(sr)
	if err != nil {
		return errorResponse(req, err)
	}
	return response(req, encode(LearnConceptResponse{ID: id.String()}))
}

func (h *NodeHandler) learnAssociation(req Frame) Frame {
	var body LearnAssociationRequest
	if err := decode(req.Payload, &body); err != nil {
		return errorResponse(req, err)
	}
	sr, err := toStorageLearnAssociation(body)
	if err != nil {
		return errorResponse(req, err)
	}
	key, err := h.Node.LearnAssociation(sr)
	if err != nil {
		return errorResponse(req, err)
	}
	return response(req, encode(LearnAssociationResponse{
		Source: key.Source.String(), Target: key.Target.String(), Type: key.Type.String(),
	}))
}

func (h *NodeHandler) learnBatch(req Frame) Frame {
	var body LearnBatchRequest
	if err := decode(req.Payload, &body); err != nil {
		return errorResponse(req, err)
	}
	items := make([]storagenode.BatchItem, len(body.Items))
	for i, it := range body.Items {
		switch {
		case it.Concept != nil:
			sr, err := toStorageLearnConcept(*it.Concept)
			if err != nil {
				return errorResponse(req, err)
			}
			items[i] = storagenode.BatchItem{Concept: &sr}
		case it.Association != nil:
			sr, err := toStorageLearnAssociation(*it.Association)
			if err != nil {
				return errorResponse(req, err)
			}
			items[i] = storagenode.BatchItem{Association: &sr}
		}
	}
	results, err := h.Node.LearnBatch(items)
	if err != nil {
		return errorResponse(req, err)
	}
	out := make([]BatchResult, len(results))
	for i, r := range results {
		br := BatchResult{ConceptID: r.ConceptID, AssociationKey: r.AssociationKey}
		if r.Err != nil {
			ep := errorPayload(r.Err)
			br.Error = &ep
		}
		out[i] = br
	}
	return response(req, encode(LearnBatchResponse{Results: out}))
}

func (h *NodeHandler) queryConcept(req Frame) Frame {
	var body QueryConceptRequest
	if err := decode(req.Payload, &body); err != nil {
		return errorResponse(req, err)
	}
	id, ok := concept.ParseID(body.ID)
	if !ok {
		return errorResponse(req, sutraerr.MalformedFrame("invalid concept id"))
	}
	c, err := h.Node.QueryConcept(id)
	if err != nil {
		return errorResponse(req, err)
	}
	return response(req, encode(conceptToPayload(c)))
}

func (h *NodeHandler) getNeighbors(req Frame) Frame {
	var body GetNeighborsRequest
	if err := decode(req.Payload, &body); err != nil {
		return errorResponse(req, err)
	}
	id, ok := concept.ParseID(body.ID)
	if !ok {
		return errorResponse(req, sutraerr.MalformedFrame("invalid concept id"))
	}
	typeFilter, err := parseOptionalType(body.Type)
	if err != nil {
		return errorResponse(req, err)
	}
	neighbors, err := h.Node.GetNeighbors(id, typeFilter)
	if err != nil {
		return errorResponse(req, err)
	}
	out := make([]NeighborPayload, len(neighbors))
	for i, nb := range neighbors {
		out[i] = NeighborPayload{
			Concept: conceptToPayload(nb.Concept), Type: nb.Association.Type.String(),
			Weight: nb.Association.Weight, Confidence: nb.Association.Confidence, Outbound: nb.Outbound,
		}
	}
	return response(req, encode(GetNeighborsResponse{Neighbors: out}))
}

func (h *NodeHandler) getNeighborsDepth(req Frame) Frame {
	var body GetNeighborsDepthRequest
	if err := decode(req.Payload, &body); err != nil {
		return errorResponse(req, err)
	}
	id, ok := concept.ParseID(body.ID)
	if !ok {
		return errorResponse(req, sutraerr.MalformedFrame("invalid concept id"))
	}
	typeFilter, err := parseOptionalType(body.Type)
	if err != nil {
		return errorResponse(req, err)
	}
	hops, err := h.Node.GetNeighborsDepth(id, typeFilter, body.Depth)
	if err != nil {
		return errorResponse(req, err)
	}
	out := make([]HopPayload, len(hops))
	for i, hop := range hops {
		out[i] = HopPayload{Concept: conceptToPayload(hop.Concept), Type: hop.Association.Type.String(), Depth: hop.Depth}
	}
	return response(req, encode(GetNeighborsDepthResponse{Hops: out}))
}

func (h *NodeHandler) findPath(req Frame) Frame {
	var body FindPathRequest
	if err := decode(req.Payload, &body); err != nil {
		return errorResponse(req, err)
	}
	src, ok := concept.ParseID(body.Source)
	if !ok {
		return errorResponse(req, sutraerr.MalformedFrame("invalid source id"))
	}
	tgt, ok := concept.ParseID(body.Target)
	if !ok {
		return errorResponse(req, sutraerr.MalformedFrame("invalid target id"))
	}
	path, err := h.Node.FindPath(src, tgt, body.MaxDepth)
	if err != nil {
		return errorResponse(req, err)
	}
	ids := make([]string, len(path.Concepts))
	for i, id := range path.Concepts {
		ids[i] = id.String()
	}
	return response(req, encode(FindPathResponse{Concepts: ids, Confidence: path.Confidence}))
}

func (h *NodeHandler) vectorSearch(req Frame) Frame {
	var body VectorSearchRequest
	if err := decode(req.Payload, &body); err != nil {
		return errorResponse(req, err)
	}
	sr := storagenode.VectorSearchRequest{Query: body.Query, K: body.K, Ef: body.Ef}
	if body.Tenant != "" {
		tenant, ok := concept.ParseTenant(body.Tenant)
		if !ok {
			return errorResponse(req, sutraerr.MalformedFrame("invalid tenant"))
		}
		sr.Tenant = &tenant
	}
	results, err := h.Node.VectorSearch(sr)
	if err != nil {
		return errorResponse(req, err)
	}
	out := make([]SearchHit, len(results))
	for i, r := range results {
		out[i] = SearchHit{ID: r.ID.String(), Distance: r.Distance}
	}
	return response(req, encode(VectorSearchResponse{Results: out}))
}

func (h *NodeHandler) prepareTx(req Frame) Frame {
	var body PrepareTxRequest
	if err := decode(req.Payload, &body); err != nil {
		return errorResponse(req, err)
	}
	items := make([]storagenode.BatchItem, len(body.Items))
	for i, it := range body.Items {
		switch {
		case it.Concept != nil:
			sr, err := toStorageLearnConcept(*it.Concept)
			if err != nil {
				return errorResponse(req, err)
			}
			items[i] = storagenode.BatchItem{Concept: &sr}
		case it.Association != nil:
			sr, err := toStorageLearnAssociation(*it.Association)
			if err != nil {
				return errorResponse(req, err)
			}
			items[i] = storagenode.BatchItem{Association: &sr}
		}
	}
	vote, err := h.Node.PrepareTx(body.TxID, items)
	if err != nil {
		return errorResponse(req, err)
	}
	return response(req, encode(PrepareTxResponse{Vote: vote}))
}

func (h *NodeHandler) commitTx(req Frame) Frame {
	var body CommitTxRequest
	if err := decode(req.Payload, &body); err != nil {
		return errorResponse(req, err)
	}
	if err := h.Node.CommitTx(body.TxID); err != nil {
		return errorResponse(req, err)
	}
	return response(req, encode(struct{}{}))
}

func (h *NodeHandler) abortTx(req Frame) Frame {
	var body AbortTxRequest
	if err := decode(req.Payload, &body); err != nil {
		return errorResponse(req, err)
	}
	if err := h.Node.AbortTx(body.TxID); err != nil {
		return errorResponse(req, err)
	}
	return response(req, encode(struct{}{}))
}

func (h *NodeHandler) stats(req Frame) Frame {
	s := h.Node.Stats()
	return response(req, encode(StatsResponse{
		LearnConcepts: s.Ops.LearnConcepts, LearnAssociations: s.Ops.LearnAssociations,
		Queries: s.Ops.Queries, Neighbors: s.Ops.Neighbors, VectorSearches: s.Ops.VectorSearches,
		PathFinds: s.Ops.PathFinds, ConceptCount: s.ConceptCount, AssociationCount: s.AssociationCount,
		WALSeq: s.WALSeq, WALBytes: s.WALBytes,
	}))
}

func parseOptionalType(s string) (concept.AssocType, error) {
	if s == "" {
		return 0, nil
	}
	t, ok := concept.ParseAssocType(s)
	if !ok {
		return 0, sutraerr.InvalidAssociationType(s)
	}
	return t, nil
}

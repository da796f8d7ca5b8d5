package wireproto

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/sutra-db/sutra/internal/concept"
	"github.com/sutra-db/sutra/internal/storagenode"
	"github.com/sutra-db/sutra/internal/sutraerr"
)

// encode/decode are thin msgpack wrappers kept in one place so every
// request/response type below goes through the same codec.
func encode(v any) []byte {
	b, err := msgpack.Marshal(v)
	if err != nil {
		// Every type below is a plain struct of primitives/slices/maps;
		// msgpack only fails on unsupported types, which would be a
		// programming error caught in review, not a runtime condition.
		panic("wireproto: msgpack marshal of a wire type failed: " + err.Error())
	}
	return b
}

func decode(b []byte, v any) error {
	if err := msgpack.Unmarshal(b, v); err != nil {
		return sutraerr.MalformedFrame(err.Error())
	}
	return nil
}

// ErrorPayload is the wire shape every error response carries.
type ErrorPayload struct {
	Details map[string]any `msgpack:"details,omitempty"`
	Code    string         `msgpack:"code"`
	Message string         `msgpack:"message"`
}

func errorPayload(err error) ErrorPayload {
	if e, ok := sutraerr.As(err); ok {
		return ErrorPayload{Code: e.Code, Message: e.Message, Details: e.Details}
	}
	return ErrorPayload{Code: "internal", Message: err.Error()}
}

func encodeError(err error) []byte {
	return encode(errorPayload(err))
}

// DecodeError parses an error response frame's payload back into an
// ErrorPayload, for clients rendering or matching on err.Code.
func DecodeError(payload []byte) (ErrorPayload, error) {
	var p ErrorPayload
	err := decode(payload, &p)
	return p, err
}

// --- learn_concept ---

type LearnConceptRequest struct {
	Content  string            `msgpack:"content"`
	Tenant   string            `msgpack:"tenant,omitempty"`
	Vector   []float32         `msgpack:"vector"`
	Metadata map[string]string `msgpack:"metadata,omitempty"`
}

type LearnConceptResponse struct {
	ID string `msgpack:"id"`
}

func toStorageLearnConcept(r LearnConceptRequest) (storagenode.LearnConceptRequest, error) {
	tenant, ok := concept.ParseTenant(r.Tenant)
	if !ok {
		return storagenode.LearnConceptRequest{}, sutraerr.MalformedFrame("invalid tenant")
	}
	return storagenode.LearnConceptRequest{Content: r.Content, Tenant: tenant, Vector: r.Vector, Metadata: r.Metadata}, nil
}

// --- learn_association ---

type LearnAssociationRequest struct {
	Source     string  `msgpack:"source"`
	Target     string  `msgpack:"target"`
	Type       string  `msgpack:"type"`
	Weight     float64 `msgpack:"weight"`
	Confidence float64 `msgpack:"confidence"`
}

type LearnAssociationResponse struct {
	Source string `msgpack:"source"`
	Target string `msgpack:"target"`
	Type   string `msgpack:"type"`
}

func toStorageLearnAssociation(r LearnAssociationRequest) (storagenode.LearnAssociationRequest, error) {
	src, ok := concept.ParseID(r.Source)
	if !ok {
		return storagenode.LearnAssociationRequest{}, sutraerr.MalformedFrame("invalid source id")
	}
	tgt, ok := concept.ParseID(r.Target)
	if !ok {
		return storagenode.LearnAssociationRequest{}, sutraerr.MalformedFrame("invalid target id")
	}
	typ, ok := concept.ParseAssocType(r.Type)
	if !ok {
		return storagenode.LearnAssociationRequest{}, sutraerr.InvalidAssociationType(r.Type)
	}
	return storagenode.LearnAssociationRequest{
		Source: src, Target: tgt, Type: typ, Weight: r.Weight, Confidence: r.Confidence,
	}, nil
}

// --- learn_batch ---

type BatchItem struct {
	Concept     *LearnConceptRequest     `msgpack:"concept,omitempty"`
	Association *LearnAssociationRequest `msgpack:"association,omitempty"`
}

type LearnBatchRequest struct {
	Items []BatchItem `msgpack:"items"`
}

type BatchResult struct {
	Error          *ErrorPayload `msgpack:"error,omitempty"`
	ConceptID      string        `msgpack:"concept_id,omitempty"`
	AssociationKey string        `msgpack:"association_key,omitempty"`
}

type LearnBatchResponse struct {
	Results []BatchResult `msgpack:"results"`
}

// --- query_concept ---

type QueryConceptRequest struct {
	ID string `msgpack:"id"`
}

type ConceptPayload struct {
	Metadata    map[string]string `msgpack:"metadata,omitempty"`
	ID          string            `msgpack:"id"`
	Content     string            `msgpack:"content"`
	Strength    float64           `msgpack:"strength"`
	Confidence  float64           `msgpack:"confidence"`
	AccessCount uint64            `msgpack:"access_count"`
}

func conceptToPayload(c *concept.Concept) ConceptPayload {
	return ConceptPayload{
		ID: c.ID.String(), Content: c.Content, Metadata: c.Metadata,
		Strength: c.Strength, Confidence: c.Confidence, AccessCount: c.AccessCount,
	}
}

// --- get_neighbors / get_neighbors_depth ---

type GetNeighborsRequest struct {
	ID   string `msgpack:"id"`
	Type string `msgpack:"type,omitempty"`
}

type NeighborPayload struct {
	Concept    ConceptPayload `msgpack:"concept"`
	Type       string         `msgpack:"type"`
	Weight     float64        `msgpack:"weight"`
	Confidence float64        `msgpack:"confidence"`
	Outbound   bool           `msgpack:"outbound"`
}

type GetNeighborsResponse struct {
	Neighbors []NeighborPayload `msgpack:"neighbors"`
}

type GetNeighborsDepthRequest struct {
	ID    string `msgpack:"id"`
	Type  string `msgpack:"type,omitempty"`
	Depth int    `msgpack:"depth"`
}

type HopPayload struct {
	Concept ConceptPayload `msgpack:"concept"`
	Type    string         `msgpack:"type"`
	Depth   int            `msgpack:"depth"`
}

type GetNeighborsDepthResponse struct {
	Hops []HopPayload `msgpack:"hops"`
}

// --- find_path ---

type FindPathRequest struct {
	Source   string `msgpack:"source"`
	Target   string `msgpack:"target"`
	MaxDepth int    `msgpack:"max_depth"`
}

type FindPathResponse struct {
	Concepts   []string `msgpack:"concepts"`
	Confidence float64  `msgpack:"confidence"`
}

// --- vector_search ---

type VectorSearchRequest struct {
	Tenant string    `msgpack:"tenant,omitempty"`
	Query  []float32 `msgpack:"query"`
	K      int       `msgpack:"k"`
	Ef     int       `msgpack:"ef,omitempty"`
}

type SearchHit struct {
	ID       string  `msgpack:"id"`
	Distance float64 `msgpack:"distance"`
}

type VectorSearchResponse struct {
	Results []SearchHit `msgpack:"results"`
}

// --- prepare_tx / commit_tx / abort_tx ---

type PrepareTxRequest struct {
	TxID  string      `msgpack:"tx_id"`
	Items []BatchItem `msgpack:"items"`
}

type PrepareTxResponse struct {
	Vote bool `msgpack:"vote"`
}

type CommitTxRequest struct {
	TxID string `msgpack:"tx_id"`
}

type AbortTxRequest struct {
	TxID string `msgpack:"tx_id"`
}

// --- stats ---

type StatsRequest struct{}

type StatsResponse struct {
	LearnConcepts     uint64 `msgpack:"learn_concepts"`
	LearnAssociations uint64 `msgpack:"learn_associations"`
	Queries           uint64 `msgpack:"queries"`
	Neighbors         uint64 `msgpack:"neighbors"`
	VectorSearches    uint64 `msgpack:"vector_searches"`
	PathFinds         uint64 `msgpack:"path_finds"`
	ConceptCount      int    `msgpack:"concept_count"`
	AssociationCount  int    `msgpack:"association_count"`
	WALSeq            uint64 `msgpack:"wal_seq"`
	WALBytes          int64  `msgpack:"wal_bytes"`
}

// --- ping ---

type PingRequest struct{}

type PingResponse struct{}

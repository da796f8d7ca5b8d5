package walog

import "github.com/vmihailenco/msgpack/v5"

// ConceptPayload is the msgpack-encoded body of an OpAddConcept/OpUpdateConcept record.
type ConceptPayload struct {
	ID          [16]byte          `msgpack:"id"`
	Tenant      [16]byte          `msgpack:"tenant"`
	Content     string            `msgpack:"content"`
	Embedding   []float32         `msgpack:"embedding"`
	Metadata    map[string]string `msgpack:"metadata,omitempty"`
	Strength    float64           `msgpack:"strength"`
	Confidence  float64           `msgpack:"confidence"`
	AccessCount uint64            `msgpack:"access_count"`
	CreatedNs   int64             `msgpack:"created_ns"`
	AccessNs    int64             `msgpack:"access_ns"`
}

// AssociationPayload is the msgpack-encoded body of an
// OpAddAssociation/OpStrengthenAssociation/OpPrune record.
type AssociationPayload struct {
	Source     [16]byte `msgpack:"source"`
	Target     [16]byte `msgpack:"target"`
	Tenant     [16]byte `msgpack:"tenant"`
	Type       uint8    `msgpack:"type"`
	Weight     float64  `msgpack:"weight"`
	Confidence float64  `msgpack:"confidence"`
	CreatedNs  int64    `msgpack:"created_ns"`
	UsedNs     int64    `msgpack:"used_ns"`
}

// TxPayload is the body of OpBeginTx/OpPrepare/OpCommit/OpAbort records. Ops
// holds the pre-encoded ConceptPayload/AssociationPayload blobs the
// transaction covers so a participant recovering an in-doubt prepare can
// re-derive exactly what it would apply on commit.
type TxPayload struct {
	TxID string   `msgpack:"tx_id"`
	Ops  [][]byte `msgpack:"ops,omitempty"`
}

func EncodeConceptPayload(p ConceptPayload) ([]byte, error) {
	return msgpack.Marshal(p)
}

func DecodeConceptPayload(b []byte) (ConceptPayload, error) {
	var p ConceptPayload
	err := msgpack.Unmarshal(b, &p)
	return p, err
}

func EncodeAssociationPayload(p AssociationPayload) ([]byte, error) {
	return msgpack.Marshal(p)
}

func DecodeAssociationPayload(b []byte) (AssociationPayload, error) {
	var p AssociationPayload
	err := msgpack.Unmarshal(b, &p)
	return p, err
}

func EncodeTxPayload(p TxPayload) ([]byte, error) { return msgpack.Marshal(p) }
func DecodeTxPayload(b []byte) (TxPayload, error) {
	var p TxPayload
	err := msgpack.Unmarshal(b, &p)
	return p, err
}

// Tx op kinds, tagging each blob in TxPayload.Ops so a prepared transaction
// can be replayed (or committed) without a side schema: the first byte of
// each entry names which payload type follows.
const (
	TxOpConcept     byte = 1
	TxOpAssociation byte = 2
)

// EncodeTxOpConcept wraps a concept payload as one prepared tx operation.
func EncodeTxOpConcept(p ConceptPayload) ([]byte, error) {
	body, err := EncodeConceptPayload(p)
	if err != nil {
		return nil, err
	}
	return append([]byte{TxOpConcept}, body...), nil
}

// EncodeTxOpAssociation wraps an association payload as one prepared tx operation.
func EncodeTxOpAssociation(p AssociationPayload) ([]byte, error) {
	body, err := EncodeAssociationPayload(p)
	if err != nil {
		return nil, err
	}
	return append([]byte{TxOpAssociation}, body...), nil
}

// DecodeTxOp splits a tagged tx-op blob back into its kind and payload body.
func DecodeTxOp(b []byte) (kind byte, payload []byte) {
	if len(b) == 0 {
		return 0, nil
	}
	return b[0], b[1:]
}

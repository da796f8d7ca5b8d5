package wireproto

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sutra-db/sutra/internal/storagenode"
	"github.com/sutra-db/sutra/internal/store"
	"github.com/sutra-db/sutra/internal/vectorindex"
)

func startTestServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	s, err := store.Open(store.Options{Dir: t.TempDir(), ShardName: "primary", Dimension: 4, Metric: vectorindex.Cosine})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	node := storagenode.New("primary", s, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ln, &NodeHandler{Node: node}, ConnOptions{IdleTimeout: 2 * time.Second})
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })

	cl, err := Dial(ln.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { cl.Close() })

	return srv, cl
}

func TestClientServerLearnAndQueryConcept(t *testing.T) {
	_, cl := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	learnResp, err := cl.Call(ctx, OpLearnConcept, LearnConceptRequest{
		Content: "paris is the capital of france", Vector: []float32{1, 0, 0, 0},
	})
	require.NoError(t, err)
	var learned LearnConceptResponse
	require.NoError(t, decode(learnResp, &learned))
	require.NotEmpty(t, learned.ID)

	queryResp, err := cl.Call(ctx, OpQueryConcept, QueryConceptRequest{ID: learned.ID})
	require.NoError(t, err)
	var c ConceptPayload
	require.NoError(t, decode(queryResp, &c))
	require.Equal(t, "paris is the capital of france", c.Content)
}

func TestClientServerUnknownConceptIsErrorResponse(t *testing.T) {
	_, cl := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := cl.Call(ctx, OpQueryConcept, QueryConceptRequest{ID: strings.Repeat("0", 32)})
	require.Error(t, err)
}

func TestClientServerPing(t *testing.T) {
	_, cl := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, cl.Ping(ctx))
}

func TestClientServerConcurrentRequestsMultiplex(t *testing.T) {
	_, cl := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			vec := []float32{float32(i), 0, 0, 0}
			_, err := cl.Call(ctx, OpLearnConcept, LearnConceptRequest{Content: contentFor(i), Vector: vec})
			errs <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
}

func contentFor(i int) string {
	b := make([]byte, 0, 8)
	for i > 0 || len(b) == 0 {
		b = append(b, byte('a'+i%26))
		i /= 26
	}
	return string(b)
}

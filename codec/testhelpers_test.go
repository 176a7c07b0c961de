package codec

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/jonwraymond/diagramops/diagram"
)

func newTestCodec(t *testing.T, cfg Config, opts ...Option) *Codec {
	t.Helper()
	c, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func smallSpec() *diagram.Spec {
	return &diagram.Spec{
		Version: 1,
		Title:   "tiny",
		Nodes:   []diagram.Node{{ID: "a", Label: "Start"}, {ID: "b", Label: "End", Shape: "circle"}},
		Edges:   []diagram.Edge{{From: "a", To: "b"}},
	}
}

// verboseSpec builds n nodes with long, repetitive labels and a chain of
// edges between them.
func verboseSpec(n int) *diagram.Spec {
	s := &diagram.Spec{Version: 2, Title: "pipeline", Direction: "LR"}
	for i := 0; i < n; i++ {
		s.Nodes = append(s.Nodes, diagram.Node{
			ID:       fmt.Sprintf("node-%d", i),
			Label:    fmt.Sprintf("Step %d: validate the incoming order, reserve inventory and notify the fulfilment service", i),
			Shape:    "rounded",
			Position: &diagram.Position{X: float64(i) * 120.5, Y: float64(i%7) * 80.25},
		})
		if i > 0 {
			s.Edges = append(s.Edges, diagram.Edge{
				From:  fmt.Sprintf("node-%d", i-1),
				To:    fmt.Sprintf("node-%d", i),
				Label: "next",
				Style: "dashed",
			})
		}
	}
	s.Groups = []diagram.Group{{ID: "g", Label: "first", NodeIDs: []string{"node-0", "node-1"}}}
	return s
}

// noisySpec builds n nodes whose labels are base64 of random bytes, which
// gzip cannot shrink enough to pay for the base64 expansion.
func noisySpec(n int) *diagram.Spec {
	rng := rand.New(rand.NewSource(42))
	s := &diagram.Spec{}
	buf := make([]byte, 96)
	for i := 0; i < n; i++ {
		rng.Read(buf)
		s.Nodes = append(s.Nodes, diagram.Node{
			ID:    fmt.Sprintf("n%d", i),
			Label: base64.StdEncoding.EncodeToString(buf),
		})
	}
	return s
}

func gzipBytes(t testing.TB, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// zeroBomb gzips size zero bytes without holding them in memory.
func zeroBomb(t testing.TB, size int) string {
	t.Helper()
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		t.Fatalf("gzip writer: %v", err)
	}
	block := make([]byte, 1<<20)
	for written := 0; written < size; {
		n := min(len(block), size-written)
		if _, err := zw.Write(block[:n]); err != nil {
			t.Fatalf("gzip write: %v", err)
		}
		written += n
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return Prefix + base64.StdEncoding.EncodeToString(buf.Bytes())
}

type recordingMetrics struct {
	encodes  []string
	outcomes []string
}

func (m *recordingMetrics) RecordEncode(_ context.Context, kind string, _, _ int) {
	m.encodes = append(m.encodes, kind)
}

func (m *recordingMetrics) RecordDecode(_ context.Context, _ string, outcome string, _ int64) {
	m.outcomes = append(m.outcomes, outcome)
}

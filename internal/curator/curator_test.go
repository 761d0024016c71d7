package curator

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/agent-memory/internal/model"
	"github.com/nidhogg/agent-memory/internal/provider"
	"github.com/nidhogg/agent-memory/internal/signal"
)

func TestConsolidationPromptIncludesCombinedText(t *testing.T) {
	out := consolidationPrompt("memory one\nmemory two")
	if !strings.Contains(out, "memory one\nmemory two") {
		t.Fatalf("expected prompt to include combined text, got %q", out)
	}
}

func indexOf(calls []string, want string) int {
	for i, c := range calls {
		if c == want {
			return i
		}
	}
	return -1
}

// TestProcessCandidateUpdatesAnchorThenDeletesDuplicates is a regression
// test for §4.3.f-h's ordering: the anchor's merge must be written before
// duplicates are deleted from either store, so a crash mid-consolidation
// leaves redundant-but-findable data (self-healing on the next run)
// instead of a gap.
func TestProcessCandidateUpdatesAnchorThenDeletesDuplicates(t *testing.T) {
	anchor := model.Memory{ID: "anchor", Text: "likes espresso", Status: model.StatusRaw, CreatedAt: 1000}
	dup1 := model.Memory{ID: "dup1", Text: "prefers espresso", Status: model.StatusProcessed, CreatedAt: 900}
	dup2 := model.Memory{ID: "dup2", Text: "enjoys espresso drinks", Status: model.StatusProcessed, CreatedAt: 800}

	st := newFakeMemoryStore(anchor, dup1, dup2)
	vectors := newFakeVectorStore()
	vectors.points[anchor.ID] = []float32{0.1, 0.2, 0.3}
	vectors.points[dup1.ID] = []float32{0.1, 0.2, 0.3}
	vectors.points[dup2.ID] = []float32{0.1, 0.2, 0.3}

	gw, err := provider.NewGateway(zap.NewNop())
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	gw.Register(stubCuratorBackend{})

	logs := signal.New(zap.NewNop())
	cur := New(st, vectors, gw, logs, Config{
		BatchSize:           10,
		SimilarTopK:         3,
		SimilarityThreshold: 0.9,
		MaxConsolidations:   10,
		RunDeadline:         5 * time.Second,
	}, zap.NewNop())

	summary := cur.FireNow(context.Background())
	if summary.Consolidations != 1 {
		t.Fatalf("expected 1 consolidation, got %+v", summary)
	}

	anchorRow, ok := st.rows["anchor"]
	if !ok {
		t.Fatal("expected anchor row to survive")
	}
	if anchorRow.Text != "merged memory" || anchorRow.Status != model.StatusConsolidated {
		t.Fatalf("anchor not merged correctly: %+v", anchorRow)
	}
	if _, ok := st.rows["dup1"]; ok {
		t.Fatal("expected dup1 row to be deleted")
	}
	if _, ok := st.rows["dup2"]; ok {
		t.Fatal("expected dup2 row to be deleted")
	}
	if _, ok := vectors.points["anchor"]; !ok {
		t.Fatal("expected anchor vector point to survive")
	}
	if _, ok := vectors.points["dup1"]; ok {
		t.Fatal("expected dup1 vector point to be deleted")
	}

	updateIdx := indexOf(st.calls, "update:anchor")
	dup1DeleteIdx := indexOf(st.calls, "delete:dup1")
	dup2DeleteIdx := indexOf(st.calls, "delete:dup2")
	if updateIdx < 0 || dup1DeleteIdx < 0 || dup2DeleteIdx < 0 {
		t.Fatalf("missing expected store calls: %v", st.calls)
	}
	if updateIdx > dup1DeleteIdx || updateIdx > dup2DeleteIdx {
		t.Fatalf("anchor update did not happen before duplicate deletes: %v", st.calls)
	}

	upsertIdx := indexOf(vectors.calls, "upsert:anchor")
	vecDup1Idx := indexOf(vectors.calls, "delete:dup1")
	vecDup2Idx := indexOf(vectors.calls, "delete:dup2")
	if upsertIdx < 0 || vecDup1Idx < 0 || vecDup2Idx < 0 {
		t.Fatalf("missing expected vector calls: %v", vectors.calls)
	}
	if upsertIdx > vecDup1Idx || upsertIdx > vecDup2Idx {
		t.Fatalf("anchor vector upsert did not happen before duplicate vector deletes: %v", vectors.calls)
	}
}

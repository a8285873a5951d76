package analysis

import (
	"testing"

	"github.com/leo-levin/weft/ir"
)

func TestClassifyStrandPure(t *testing.T) {
	e := ir.BinaryOp{Op: "+", Left: ir.Num{Value: 1}, Right: ir.Num{Value: 2}}
	if got := ClassifyStrand(ir.Strand{Expr: e}); got != Pure {
		t.Errorf("expected Pure, got %v", got)
	}
}

func TestClassifyStrandStateful(t *testing.T) {
	e := ir.Builtin{Name: "cache", Args: []ir.Expr{
		ir.Num{Value: 1}, ir.Num{Value: 2}, ir.Num{Value: 1}, ir.Num{Value: 0},
	}}
	if got := ClassifyStrand(ir.Strand{Expr: e}); got != Stateful {
		t.Errorf("expected Stateful, got %v", got)
	}
}

func TestClassifyStrandExternalDominates(t *testing.T) {
	e := ir.Builtin{Name: "cache", Args: []ir.Expr{
		ir.Builtin{Name: "camera"}, ir.Num{Value: 2}, ir.Num{Value: 1}, ir.Num{Value: 0},
	}}
	if got := ClassifyStrand(ir.Strand{Expr: e}); got != External {
		t.Errorf("expected External to dominate Stateful, got %v", got)
	}
}

func TestOwnerBackendCoversSingleDomain(t *testing.T) {
	visual, err := OwnerBackend(map[string]bool{"camera": true, "gpu": true})
	if err != nil || visual != Visual {
		t.Errorf("expected Visual ownership, got %v, %v", visual, err)
	}

	audio, err := OwnerBackend(map[string]bool{"microphone": true})
	if err != nil || audio != Audio {
		t.Errorf("expected Audio ownership, got %v, %v", audio, err)
	}

	pure, err := OwnerBackend(map[string]bool{})
	if err != nil || pure != Either {
		t.Errorf("expected Either for an empty hardware set, got %v, %v", pure, err)
	}
}

func TestOwnerBackendRejectsMixedHardware(t *testing.T) {
	_, err := OwnerBackend(map[string]bool{"camera": true, "microphone": true})
	if err == nil {
		t.Errorf("expected an error for hardware spanning both backends")
	}
}

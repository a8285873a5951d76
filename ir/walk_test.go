package ir

import "testing"

func TestTransformBottomUp(t *testing.T) {
	field := "x"
	e := BinaryOp{
		Op:   "+",
		Left: Num{Value: 1},
		Right: UnaryOp{
			Op:      "-",
			Operand: Index{Bundle: "me", Field: &field},
		},
	}

	doubled := Transform(e, func(n Expr) Expr {
		if num, ok := n.(Num); ok {
			return Num{Value: num.Value * 2}
		}
		return n
	})

	bin, ok := doubled.(BinaryOp)
	if !ok {
		t.Fatalf("expected BinaryOp, got %T", doubled)
	}
	num, ok := bin.Left.(Num)
	if !ok || num.Value != 2 {
		t.Errorf("expected doubled Num(2), got %#v", bin.Left)
	}
}

func TestFreeVarsCollectsIndexNodes(t *testing.T) {
	field := "v"
	pos := 0
	e := BinaryOp{
		Op:   "+",
		Left: Index{Bundle: "trail", Field: &field},
		Right: Extract{
			Call:  Call{Spindle: "mix", Args: []Expr{Index{Bundle: "color", PosIndex: &pos}}},
			Index: 0,
		},
	}

	fv := FreeVars(e)
	if !fv.Has("trail", "v") {
		t.Errorf("expected free var trail.v")
	}
	if !fv.Has("color", "0") {
		t.Errorf("expected free var color.0")
	}
}

func TestBuiltinNamesRecursesThroughTree(t *testing.T) {
	e := BinaryOp{
		Op:   "+",
		Left: Builtin{Name: "sin", Args: []Expr{Num{Value: 1}}},
		Right: Builtin{Name: "cache", Args: []Expr{
			Builtin{Name: "camera", Args: nil},
			Num{Value: 2}, Num{Value: 1}, Num{Value: 0},
		}},
	}

	names := BuiltinNames(e)
	for _, want := range []string{"sin", "cache", "camera"} {
		if !names[want] {
			t.Errorf("expected builtin %q to be found, got %v", want, names)
		}
	}
}

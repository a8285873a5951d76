package ir

import (
	"encoding/json"
	"fmt"

	"github.com/leo-levin/weft/wefterr"
)

// ParseProgram decodes the IR's wire JSON shape. It is the only place in
// the core allowed to see raw JSON — everything downstream works on the
// typed Program/Expr tree.
func ParseProgram(data []byte) (*Program, error) {
	var raw rawProgram
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &wefterr.ParseError{Msg: err.Error()}
	}

	prog := &Program{
		Bundles:   map[string]*Bundle{},
		Spindles:  map[string]*Spindle{},
		Resources: raw.Resources,
	}

	for name, rb := range raw.Bundles {
		b, err := rb.decode(name, fmt.Sprintf("bundles.%s", name))
		if err != nil {
			return nil, err
		}
		prog.Bundles[name] = b
	}

	for name, rs := range raw.Spindles {
		s, err := rs.decode(name, fmt.Sprintf("spindles.%s", name))
		if err != nil {
			return nil, err
		}
		prog.Spindles[name] = s
	}

	for i, ro := range raw.Order {
		prog.Order = append(prog.Order, OrderEntry{Bundle: ro.Bundle, Strands: ro.Strands})
		if ro.Bundle == "" {
			return nil, &wefterr.ParseError{Path: fmt.Sprintf("order[%d]", i), Msg: "missing bundle name"}
		}
	}

	return prog, nil
}

type rawProgram struct {
	Bundles   map[string]rawBundle  `json:"bundles"`
	Spindles  map[string]rawSpindle `json:"spindles"`
	Order     []rawOrderEntry       `json:"order"`
	Resources []interface{}         `json:"resources"`
}

type rawOrderEntry struct {
	Bundle  string   `json:"bundle"`
	Strands []string `json:"strands,omitempty"`
}

type rawBundle struct {
	Name    string      `json:"name"`
	Strands []rawStrand `json:"strands"`
}

func (rb rawBundle) decode(fallbackName, path string) (*Bundle, error) {
	name := rb.Name
	if name == "" {
		name = fallbackName
	}
	b := &Bundle{Name: name}
	for i, rs := range rb.Strands {
		s, err := rs.decode(fmt.Sprintf("%s.strands[%d]", path, i))
		if err != nil {
			return nil, err
		}
		b.Strands = append(b.Strands, s)
	}
	return b, nil
}

type rawStrand struct {
	Name  string          `json:"name"`
	Index int             `json:"index"`
	Expr  json.RawMessage `json:"expr"`
}

func (rs rawStrand) decode(path string) (Strand, error) {
	e, err := decodeExpr(rs.Expr, path+".expr")
	if err != nil {
		return Strand{}, err
	}
	return Strand{Name: rs.Name, Index: rs.Index, Expr: e}, nil
}

type rawSpindle struct {
	Params  []string          `json:"params"`
	Locals  []rawBundle       `json:"locals"`
	Returns []json.RawMessage `json:"returns"`
}

func (rs rawSpindle) decode(name, path string) (*Spindle, error) {
	s := &Spindle{Name: name, Params: rs.Params}
	for i, rb := range rs.Locals {
		lb, err := rb.decode(fmt.Sprintf("local%d", i), fmt.Sprintf("%s.locals[%d]", path, i))
		if err != nil {
			return nil, err
		}
		s.Locals = append(s.Locals, *lb)
	}
	for i, rr := range rs.Returns {
		e, err := decodeExpr(rr, fmt.Sprintf("%s.returns[%d]", path, i))
		if err != nil {
			return nil, err
		}
		s.Returns = append(s.Returns, e)
	}
	return s, nil
}

type rawExpr struct {
	Type string `json:"type"`

	Value *float64 `json:"value,omitempty"`
	Name  string   `json:"name,omitempty"`

	Bundle string `json:"bundle,omitempty"`
	Index  *int   `json:"index,omitempty"`
	Field  *string `json:"field,omitempty"`

	Op      string          `json:"op,omitempty"`
	Left    json.RawMessage `json:"left,omitempty"`
	Right   json.RawMessage `json:"right,omitempty"`
	Operand json.RawMessage `json:"operand,omitempty"`

	Args []json.RawMessage `json:"args,omitempty"`

	Spindle string `json:"spindle,omitempty"`

	Call json.RawMessage `json:"call,omitempty"`

	Base          json.RawMessage            `json:"base,omitempty"`
	Substitutions map[string]json.RawMessage `json:"substitutions,omitempty"`
}

func decodeExpr(data json.RawMessage, path string) (Expr, error) {
	if len(data) == 0 {
		return nil, &wefterr.ParseError{Path: path, Msg: "missing expression"}
	}
	var re rawExpr
	if err := json.Unmarshal(data, &re); err != nil {
		return nil, &wefterr.ParseError{Path: path, Msg: err.Error()}
	}

	switch re.Type {
	case "num":
		if re.Value == nil {
			return nil, &wefterr.ParseError{Path: path, Msg: "num: missing value"}
		}
		return Num{Value: *re.Value}, nil

	case "param":
		if re.Name == "" {
			return nil, &wefterr.ParseError{Path: path, Msg: "param: missing name"}
		}
		return Param{Name: re.Name}, nil

	case "index":
		if re.Bundle == "" {
			return nil, &wefterr.ParseError{Path: path, Msg: "index: missing bundle"}
		}
		switch {
		case re.Index != nil:
			v := *re.Index
			return Index{Bundle: re.Bundle, PosIndex: &v}, nil
		case re.Field != nil:
			v := *re.Field
			return Index{Bundle: re.Bundle, Field: &v}, nil
		default:
			return nil, &wefterr.ParseError{Path: path, Msg: "index: exactly one of index/field required"}
		}

	case "binary":
		left, err := decodeExpr(re.Left, path+".left")
		if err != nil {
			return nil, err
		}
		right, err := decodeExpr(re.Right, path+".right")
		if err != nil {
			return nil, err
		}
		return BinaryOp{Op: re.Op, Left: left, Right: right}, nil

	case "unary":
		operand, err := decodeExpr(re.Operand, path+".operand")
		if err != nil {
			return nil, err
		}
		return UnaryOp{Op: re.Op, Operand: operand}, nil

	case "builtin":
		args, err := decodeExprList(re.Args, path+".args")
		if err != nil {
			return nil, err
		}
		return Builtin{Name: re.Name, Args: args}, nil

	case "call":
		args, err := decodeExprList(re.Args, path+".args")
		if err != nil {
			return nil, err
		}
		return Call{Spindle: re.Spindle, Args: args}, nil

	case "extract":
		call, err := decodeExpr(re.Call, path+".call")
		if err != nil {
			return nil, err
		}
		if re.Index == nil {
			return nil, &wefterr.ParseError{Path: path, Msg: "extract: missing index"}
		}
		return Extract{Call: call, Index: *re.Index}, nil

	case "remap":
		base, err := decodeExpr(re.Base, path+".base")
		if err != nil {
			return nil, err
		}
		subs := make(map[string]Expr, len(re.Substitutions))
		for k, raw := range re.Substitutions {
			se, err := decodeExpr(raw, fmt.Sprintf("%s.substitutions[%s]", path, k))
			if err != nil {
				return nil, err
			}
			subs[k] = se
		}
		return Remap{Base: base, Subs: subs}, nil

	default:
		return nil, &wefterr.ParseError{Path: path, Msg: "unknown expression tag: " + re.Type}
	}
}

func decodeExprList(raws []json.RawMessage, path string) ([]Expr, error) {
	out := make([]Expr, len(raws))
	for i, raw := range raws {
		e, err := decodeExpr(raw, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

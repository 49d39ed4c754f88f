// Package codegen models the initialization program produced from a validated
// configuration: a flat, ordered list of instructions that construct objects,
// register them with the component lifecycle and call their setters.
package codegen

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the type of an instruction.
type Kind string

const (
	// KindNew constructs an object of Class and binds it to Target.
	KindNew Kind = "new"
	// KindRegisterComponent registers Target with the application lifecycle.
	KindRegisterComponent Kind = "register_component"
	// KindCall invokes Method on Target with Args.
	KindCall Kind = "call"
)

// ArgKind identifies the type of an argument value.
type ArgKind string

const (
	ArgString ArgKind = "string"
	ArgInt    ArgKind = "int"
	ArgFloat  ArgKind = "float"
	ArgBool   ArgKind = "bool"
	// ArgRef refers to another variable of the program by ID.
	ArgRef ArgKind = "ref"
)

// Arg is a single typed call argument.
type Arg struct {
	Kind   ArgKind `json:"kind" yaml:"kind" cbor:"kind"`
	String string  `json:"string,omitempty" yaml:"string,omitempty" cbor:"string,omitempty"`
	Int    int64   `json:"int,omitempty" yaml:"int,omitempty" cbor:"int,omitempty"`
	Float  float64 `json:"float,omitempty" yaml:"float,omitempty" cbor:"float,omitempty"`
	Bool   bool    `json:"bool,omitempty" yaml:"bool,omitempty" cbor:"bool,omitempty"`
	Ref    string  `json:"ref,omitempty" yaml:"ref,omitempty" cbor:"ref,omitempty"`
}

// String returns a string argument.
func String(v string) Arg { return Arg{Kind: ArgString, String: v} }

// Int returns an integer argument.
func Int(v int64) Arg { return Arg{Kind: ArgInt, Int: v} }

// Float returns a floating point argument.
func Float(v float64) Arg { return Arg{Kind: ArgFloat, Float: v} }

// Bool returns a boolean argument.
func Bool(v bool) Arg { return Arg{Kind: ArgBool, Bool: v} }

// Ref returns an argument referring to the variable behind h.
func Ref(h Handle) Arg { return Arg{Kind: ArgRef, Ref: h.ID} }

// Literal renders the argument as a C++ expression.
func (a Arg) Literal() string {
	switch a.Kind {
	case ArgString:
		return strconv.Quote(a.String)
	case ArgInt:
		return strconv.FormatInt(a.Int, 10)
	case ArgFloat:
		text := strconv.FormatFloat(a.Float, 'f', -1, 64)
		if !strings.ContainsAny(text, ".eE") {
			text += ".0"
		}
		return text + "f"
	case ArgBool:
		return strconv.FormatBool(a.Bool)
	case ArgRef:
		return a.Ref
	default:
		return fmt.Sprintf("/* unknown argument kind %q */", a.Kind)
	}
}

// Handle identifies a variable of the generated program.
type Handle struct {
	ID    string `json:"id" yaml:"id" cbor:"id"`
	Class string `json:"class" yaml:"class" cbor:"class"`
}

// Instruction is one statement of the initialization program.
type Instruction struct {
	Kind   Kind   `json:"kind" yaml:"kind" cbor:"kind"`
	Target string `json:"target" yaml:"target" cbor:"target"`
	Class  string `json:"class,omitempty" yaml:"class,omitempty" cbor:"class,omitempty"`
	Method string `json:"method,omitempty" yaml:"method,omitempty" cbor:"method,omitempty"`
	Args   []Arg  `json:"args,omitempty" yaml:"args,omitempty" cbor:"args,omitempty"`
}

// Plan is the complete initialization program.
type Plan struct {
	BuildID      string        `json:"build_id,omitempty" yaml:"build_id,omitempty" cbor:"build_id,omitempty"`
	Globals      []string      `json:"globals,omitempty" yaml:"globals,omitempty" cbor:"globals,omitempty"`
	Variables    []Handle      `json:"variables" yaml:"variables" cbor:"variables"`
	Instructions []Instruction `json:"instructions" yaml:"instructions" cbor:"instructions"`
}

// Calls returns the call instructions that target id, in program order.
func (p *Plan) Calls(id string) []Instruction {
	if p == nil {
		return nil
	}
	var calls []Instruction
	for _, inst := range p.Instructions {
		if inst.Kind == KindCall && inst.Target == id {
			calls = append(calls, inst)
		}
	}
	return calls
}

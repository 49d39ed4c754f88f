package codegen

import "fmt"

// Builder accumulates a Plan. It is not safe for concurrent use.
type Builder struct {
	globals      []string
	seenGlobals  map[string]struct{}
	variables    []Handle
	byID         map[string]Handle
	instructions []Instruction
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		seenGlobals: make(map[string]struct{}),
		byID:        make(map[string]Handle),
	}
}

// AddGlobal adds a top-level statement once; repeated statements are ignored.
func (b *Builder) AddGlobal(statement string) {
	if _, ok := b.seenGlobals[statement]; ok {
		return
	}
	b.seenGlobals[statement] = struct{}{}
	b.globals = append(b.globals, statement)
}

// New declares a variable of the given class and emits its construction.
func (b *Builder) New(id, class string) (Handle, error) {
	if _, exists := b.byID[id]; exists {
		return Handle{}, fmt.Errorf("variable %q declared twice", id)
	}
	h := Handle{ID: id, Class: class}
	b.byID[id] = h
	b.variables = append(b.variables, h)
	b.instructions = append(b.instructions, Instruction{Kind: KindNew, Target: id, Class: class})
	return h, nil
}

// Variable looks up a previously declared variable.
func (b *Builder) Variable(id string) (Handle, bool) {
	h, ok := b.byID[id]
	return h, ok
}

// RegisterComponent emits the lifecycle registration of h.
func (b *Builder) RegisterComponent(h Handle) {
	b.instructions = append(b.instructions, Instruction{Kind: KindRegisterComponent, Target: h.ID})
}

// Call emits h->method(args...).
func (b *Builder) Call(h Handle, method string, args ...Arg) {
	b.instructions = append(b.instructions, Instruction{
		Kind:   KindCall,
		Target: h.ID,
		Method: method,
		Args:   append([]Arg(nil), args...),
	})
}

// Plan returns a snapshot of the program built so far.
func (b *Builder) Plan() *Plan {
	return &Plan{
		Globals:      append([]string(nil), b.globals...),
		Variables:    append([]Handle(nil), b.variables...),
		Instructions: append([]Instruction(nil), b.instructions...),
	}
}

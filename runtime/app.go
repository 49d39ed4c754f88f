// Package runtime is an in-process host model for initialization plans. It
// interprets a plan the way the generated setup function would run on the
// device: objects are constructed, registered and configured through their
// setters, so a plan can be inspected and dumped without a C++ toolchain.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/timzifer/modbustcp/codegen"
	"github.com/timzifer/modbustcp/modbustcp"
)

// Object is anything a plan can construct. Invoke dispatches a setter by
// name; arguments are string, int64, float64, bool or Object.
type Object interface {
	ID() string
	Invoke(method string, args []any) error
}

// Component takes part in the application lifecycle.
type Component interface {
	Object
	SetupPriority() float64
	Setup(ctx context.Context) error
	DumpConfig(logger zerolog.Logger)
}

// Constructor creates the object declared as id.
type Constructor func(id string, logger zerolog.Logger) Object

// App holds the objects of an applied plan and its registered components.
type App struct {
	logger     zerolog.Logger
	classes    map[string]Constructor
	objects    map[string]Object
	components []Component
}

// NewApp returns an application that knows the master class. Device classes
// are added with DefineClass.
func NewApp(logger zerolog.Logger) *App {
	app := &App{
		logger:  logger,
		classes: make(map[string]Constructor),
		objects: make(map[string]Object),
	}
	app.classes[modbustcp.MasterClass] = func(id string, logger zerolog.Logger) Object {
		return NewMaster(id, logger)
	}
	return app
}

// DefineClass makes class constructible by plans.
func (a *App) DefineClass(class string, ctor Constructor) error {
	if class == "" {
		return errors.New("class must not be empty")
	}
	if ctor == nil {
		return fmt.Errorf("class %s: constructor must not be nil", class)
	}
	if _, exists := a.classes[class]; exists {
		return fmt.Errorf("class %s already defined", class)
	}
	a.classes[class] = ctor
	return nil
}

// Apply runs every instruction of plan in order. It stops at the first
// failing instruction.
func (a *App) Apply(plan *codegen.Plan) error {
	if plan == nil {
		return errors.New("plan must not be nil")
	}
	for i, inst := range plan.Instructions {
		if err := a.apply(inst); err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	return nil
}

func (a *App) apply(inst codegen.Instruction) error {
	switch inst.Kind {
	case codegen.KindNew:
		ctor, ok := a.classes[inst.Class]
		if !ok {
			return fmt.Errorf("new %s: unknown class %s", inst.Target, inst.Class)
		}
		if _, exists := a.objects[inst.Target]; exists {
			return fmt.Errorf("new %s: already constructed", inst.Target)
		}
		a.objects[inst.Target] = ctor(inst.Target, a.logger)
		return nil
	case codegen.KindRegisterComponent:
		obj, err := a.object(inst.Target)
		if err != nil {
			return err
		}
		component, ok := obj.(Component)
		if !ok {
			return fmt.Errorf("register %s: not a component", inst.Target)
		}
		a.components = append(a.components, component)
		return nil
	case codegen.KindCall:
		obj, err := a.object(inst.Target)
		if err != nil {
			return err
		}
		args := make([]any, len(inst.Args))
		for i, arg := range inst.Args {
			if args[i], err = a.value(arg); err != nil {
				return fmt.Errorf("%s->%s: %w", inst.Target, inst.Method, err)
			}
		}
		if err := obj.Invoke(inst.Method, args); err != nil {
			return fmt.Errorf("%s->%s: %w", inst.Target, inst.Method, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown instruction kind %q", inst.Kind)
	}
}

func (a *App) value(arg codegen.Arg) (any, error) {
	switch arg.Kind {
	case codegen.ArgString:
		return arg.String, nil
	case codegen.ArgInt:
		return arg.Int, nil
	case codegen.ArgFloat:
		return arg.Float, nil
	case codegen.ArgBool:
		return arg.Bool, nil
	case codegen.ArgRef:
		return a.object(arg.Ref)
	default:
		return nil, fmt.Errorf("unknown argument kind %q", arg.Kind)
	}
}

func (a *App) object(id string) (Object, error) {
	obj, ok := a.objects[id]
	if !ok {
		return nil, fmt.Errorf("unknown variable %s", id)
	}
	return obj, nil
}

// Lookup returns the object constructed as id.
func (a *App) Lookup(id string) (Object, bool) {
	obj, ok := a.objects[id]
	return obj, ok
}

// Components returns the registered components in registration order.
func (a *App) Components() []Component {
	return append([]Component(nil), a.components...)
}

// Masters returns every constructed master in registration order.
func (a *App) Masters() []*Master {
	var masters []*Master
	for _, c := range a.components {
		if m, ok := c.(*Master); ok {
			masters = append(masters, m)
		}
	}
	return masters
}

// Setup runs the components by descending setup priority. Components of
// equal priority keep their registration order.
func (a *App) Setup(ctx context.Context) error {
	ordered := a.Components()
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SetupPriority() > ordered[j].SetupPriority()
	})
	for _, c := range ordered {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.Setup(ctx); err != nil {
			return fmt.Errorf("setup %s: %w", c.ID(), err)
		}
	}
	return nil
}

// DumpConfig logs the configuration of every registered component.
func (a *App) DumpConfig() {
	for _, c := range a.components {
		c.DumpConfig(a.logger)
	}
}

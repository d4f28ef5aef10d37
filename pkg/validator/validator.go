// Package validator validates submitted application parameters against a
// per-application option schema and synthesizes the argument vector a
// scheduler adapter will execute. Validation is pure: it never touches the
// job store or the filesystem.
package validator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cuemby/warren/pkg/types"
)

// OptKind is the closed set of option shapes a descriptor can take,
// following the same plain-struct-plus-enum preference the rest of this
// codebase uses for closed variant sets instead of an interface hierarchy.
type OptKind string

const (
	OptFlag  OptKind = "flag"  // presence-only, no value
	OptValue OptKind = "value" // typed scalar value
	OptEnum  OptKind = "enum"  // value restricted to AllowedValues
)

// Descriptor is one named, typed application option.
type Descriptor struct {
	Name          string
	Kind          OptKind
	Mandatory     bool
	ValueType     types.ValueType
	AllowedValues []string
	Min           *float64
	Max           *float64
	Default       any
	Category      string
	Subcategory   string
	Advanced      bool
	Description   string
	Transform     types.OptionTransformer
}

// AppDescriptor is one application's full option registry.
type AppDescriptor struct {
	Name    string
	Options map[string]Descriptor
}

// RuntimeLimits bounds the parallelism a validated job may request; values
// are clamped rather than rejected.
type RuntimeLimits struct {
	MaxNThreads int
	MaxNProc    int
}

// Result is the outcome of a successful validation.
type Result struct {
	Command      string
	Args         []string
	RuntimeHints types.RuntimeHints
}

// Registry holds every registered application's descriptors.
type Registry struct {
	apps map[string]AppDescriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{apps: make(map[string]AppDescriptor)}
}

// Register adds or replaces an application's descriptor set.
func (r *Registry) Register(app AppDescriptor) {
	r.apps = cloneMapSet(r.apps)
	r.apps[app.Name] = app
}

func cloneMapSet(m map[string]AppDescriptor) map[string]AppDescriptor {
	out := make(map[string]AppDescriptor, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Describe returns the option schema for an app, for the HTTP describe
// endpoint. ok is false when the app is not registered.
func (r *Registry) Describe(app string) (AppDescriptor, bool) {
	d, ok := r.apps[app]
	return d, ok
}

// Apps returns every registered application name, sorted, for the HTTP
// app-listing endpoint.
func (r *Registry) Apps() []string {
	names := make([]string, 0, len(r.apps))
	for name := range r.apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate implements spec step (i)-(viii): it rejects malformed input,
// enforces mandatory presence, type and enum matching, numeric bounds,
// runs per-option transformers, synthesizes the argument vector, appends
// the data-input argument, and derives runtime hints by introspecting the
// emitted flags.
func (r *Registry) Validate(app string, inputs map[string]any, dataRef string, limits RuntimeLimits) (Result, error) {
	if len(inputs) == 0 {
		return Result{}, fmt.Errorf("validation failed: inputs must be a non-empty map")
	}

	descriptor, ok := r.apps[app]
	if !ok {
		return Result{}, fmt.Errorf("validation failed: unknown application %q", app)
	}

	for name, opt := range descriptor.Options {
		if opt.Mandatory {
			if _, present := inputs[name]; !present {
				return Result{}, fmt.Errorf("validation failed: missing mandatory option %q", name)
			}
		}
	}

	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	var args []string
	for _, name := range names {
		raw := inputs[name]
		opt, ok := descriptor.Options[name]
		if !ok {
			return Result{}, fmt.Errorf("validation failed: unknown option %q for app %q", name, app)
		}

		arg, err := renderOption(opt, raw)
		if err != nil {
			return Result{}, err
		}
		if arg != "" {
			args = append(args, arg)
		}
	}

	if dataRef != "" {
		args = append(args, dataRef)
	}

	hints := deriveRuntimeHints(args, limits)

	return Result{
		Command:      app,
		Args:         args,
		RuntimeHints: hints,
	}, nil
}

func renderOption(opt Descriptor, raw any) (string, error) {
	if opt.Kind == OptFlag {
		b, ok := raw.(bool)
		if !ok {
			return "", fmt.Errorf("validation failed: option %q must be a boolean flag", opt.Name)
		}
		if !b {
			return "", nil
		}
		return "--" + opt.Name, nil
	}

	value, err := typedString(opt, raw)
	if err != nil {
		return "", err
	}

	if opt.Kind == OptEnum {
		if !contains(opt.AllowedValues, value) {
			return "", fmt.Errorf("validation failed: option %q value %q not in allowed values %v", opt.Name, value, opt.AllowedValues)
		}
	}

	if err := checkBounds(opt, raw); err != nil {
		return "", err
	}

	if opt.Transform != nil {
		value = opt.Transform(value)
		if value == "" {
			return "", fmt.Errorf("validation failed: option %q rejected by transform", opt.Name)
		}
	}

	return fmt.Sprintf("--%s=%s", opt.Name, value), nil
}

// formatFloat renders v the way Python's str() renders a float: the
// shortest decimal that round-trips, but never bare digits — a whole
// value like 5.0 must keep its decimal point so the emitted argument
// reads as a float rather than an int.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func typedString(opt Descriptor, raw any) (string, error) {
	switch opt.ValueType {
	case types.ValueInt:
		switch v := raw.(type) {
		case int:
			return fmt.Sprintf("%d", v), nil
		case float64:
			if v != float64(int64(v)) {
				return "", fmt.Errorf("validation failed: option %q must be an int", opt.Name)
			}
			return fmt.Sprintf("%d", int64(v)), nil
		default:
			return "", fmt.Errorf("validation failed: option %q must be an int", opt.Name)
		}
	case types.ValueFloat:
		switch v := raw.(type) {
		case float64:
			return formatFloat(v), nil
		case int:
			return formatFloat(float64(v)), nil
		default:
			return "", fmt.Errorf("validation failed: option %q must be a float", opt.Name)
		}
	case types.ValueString:
		v, ok := raw.(string)
		if !ok {
			return "", fmt.Errorf("validation failed: option %q must be a string", opt.Name)
		}
		return v, nil
	default:
		return "", fmt.Errorf("validation failed: option %q has no value type", opt.Name)
	}
}

func checkBounds(opt Descriptor, raw any) error {
	if opt.Min == nil && opt.Max == nil {
		return nil
	}
	var n float64
	switch v := raw.(type) {
	case int:
		n = float64(v)
	case float64:
		n = v
	default:
		return nil
	}
	if opt.Min != nil && n < *opt.Min {
		return fmt.Errorf("validation failed: option %q value %v below minimum %v", opt.Name, n, *opt.Min)
	}
	if opt.Max != nil && n > *opt.Max {
		return fmt.Errorf("validation failed: option %q value %v above maximum %v", opt.Name, n, *opt.Max)
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

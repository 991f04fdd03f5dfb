package rbac

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// CapabilitySet maps modules to the actions an identity holds. It is never
// modified after construction.
type CapabilitySet struct {
	modules map[string]map[Action]struct{}
}

// NewCapabilitySet builds a set from explicit grants. Invalid actions and
// blank modules are ignored.
func NewCapabilitySet(grants map[string][]Action) *CapabilitySet {
	set := &CapabilitySet{modules: make(map[string]map[Action]struct{}, len(grants))}
	for module, actions := range grants {
		for _, action := range actions {
			set.add(module, action)
		}
	}
	return set
}

// ResolveCapabilities derives the set for an identity holding roleID from the
// catalog permissions attached to that role plus any direct grants.
func ResolveCapabilities(catalog []Permission, roleID shared.ID, direct []Permission) *CapabilitySet {
	set := &CapabilitySet{modules: make(map[string]map[Action]struct{})}
	if !roleID.IsZero() {
		for _, p := range catalog {
			if p.AssignedTo(roleID) {
				set.add(p.Module, p.Action)
			}
		}
	}
	for _, p := range direct {
		set.add(p.Module, p.Action)
	}
	return set
}

func (s *CapabilitySet) add(module string, action Action) {
	key := ModuleKey(module)
	if key == "" || !action.Valid() {
		return
	}
	actions, ok := s.modules[key]
	if !ok {
		actions = make(map[Action]struct{}, len(Actions))
		s.modules[key] = actions
	}
	actions[action] = struct{}{}
}

// Modules returns the sorted modules with at least one action.
func (s *CapabilitySet) Modules() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.modules))
	for module, actions := range s.modules {
		if len(actions) > 0 {
			out = append(out, module)
		}
	}
	sort.Strings(out)
	return out
}

// Actions returns the actions held in module, in display order.
func (s *CapabilitySet) Actions(module string) []Action {
	if s == nil {
		return nil
	}
	held := s.modules[ModuleKey(module)]
	out := make([]Action, 0, len(held))
	for _, action := range Actions {
		if _, ok := held[action]; ok {
			out = append(out, action)
		}
	}
	return out
}

// MarshalJSON renders the set as {module: [actions]}.
func (s *CapabilitySet) MarshalJSON() ([]byte, error) {
	out := make(map[string][]Action)
	for _, module := range s.Modules() {
		out[module] = s.Actions(module)
	}
	return json.Marshal(out)
}

// Evaluator answers capability questions synchronously. The zero value, or one
// built from a nil set, denies everything.
type Evaluator struct {
	set *CapabilitySet
}

// NewEvaluator wraps a resolved set.
func NewEvaluator(set *CapabilitySet) Evaluator {
	return Evaluator{set: set}
}

// Loaded reports whether a resolved set backs the evaluator.
func (e Evaluator) Loaded() bool {
	return e.set != nil
}

// Set returns the underlying capability set, nil when not loaded.
func (e Evaluator) Set() *CapabilitySet {
	return e.set
}

// HasModuleAccess is true iff module holds at least one action.
func (e Evaluator) HasModuleAccess(module string) bool {
	if e.set == nil {
		return false
	}
	return len(e.set.modules[ModuleKey(module)]) > 0
}

// Can is true iff action is held in module.
func (e Evaluator) Can(module string, action Action) bool {
	if e.set == nil {
		return false
	}
	_, ok := e.set.modules[ModuleKey(module)][action]
	return ok
}

func (e Evaluator) CanCreate(module string) bool { return e.Can(module, ActionCreate) }
func (e Evaluator) CanView(module string) bool   { return e.Can(module, ActionView) }
func (e Evaluator) CanEdit(module string) bool   { return e.Can(module, ActionEdit) }
func (e Evaluator) CanDelete(module string) bool { return e.Can(module, ActionDelete) }

// Modules lists the modules the caller can reach at all.
func (e Evaluator) Modules() []string {
	if e.set == nil {
		return nil
	}
	return e.set.Modules()
}

type evaluatorContextKey struct{}

// ContextWithEvaluator stores the evaluator in context.
func ContextWithEvaluator(ctx context.Context, e Evaluator) context.Context {
	return context.WithValue(ctx, evaluatorContextKey{}, e)
}

// EvaluatorFromContext extracts the evaluator; missing means deny-all.
func EvaluatorFromContext(ctx context.Context) Evaluator {
	e, _ := ctx.Value(evaluatorContextKey{}).(Evaluator)
	return e
}

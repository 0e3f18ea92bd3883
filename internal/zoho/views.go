package zoho

import (
	"fmt"
	"strings"
)

// View is one of the report views this service is allowed to export.
type View int

const (
	ViewExtranetPedidos View = iota + 1
	ViewExtranetPotenciais
	ViewExtranetTitulos
)

// Views lists every known view in declaration order.
func Views() []View {
	return []View{ViewExtranetPedidos, ViewExtranetPotenciais, ViewExtranetTitulos}
}

// String returns the view name as the platform and callers know it.
func (v View) String() string {
	switch v {
	case ViewExtranetPedidos:
		return "Extranet_Pedidos"
	case ViewExtranetPotenciais:
		return "Extranet_Potenciais"
	case ViewExtranetTitulos:
		return "Extranet_Titulos"
	}
	return fmt.Sprintf("View(%d)", int(v))
}

// ParseView maps a caller-supplied name to a known view. Matching is exact.
func ParseView(name string) (View, error) {
	for _, v := range Views() {
		if v.String() == name {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidView, name)
}

// ViewIDs are the platform identifiers locating a view.
type ViewIDs struct {
	WorkspaceID string `mapstructure:"workspace_id"`
	ViewID      string `mapstructure:"view_id"`
}

// ViewBinding ties a view to its platform identifiers.
type ViewBinding struct {
	View View
	ViewIDs
}

// Registry resolves views to their identifiers. It is read-only after construction.
type Registry struct {
	bindings map[View]ViewBinding
}

// NewRegistry builds the registry from identifiers keyed by view name. Every known view must be
// bound with both identifiers. Names are matched case-insensitively because config keys are;
// an unknown name is an error.
func NewRegistry(ids map[string]ViewIDs) (*Registry, error) {
	bindings := make(map[View]ViewBinding, len(Views()))
	for name, id := range ids {
		v, ok := lookupFold(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q in view bindings", ErrInvalidView, name)
		}
		bindings[v] = ViewBinding{View: v, ViewIDs: id}
	}

	for _, v := range Views() {
		b, ok := bindings[v]
		if !ok || b.WorkspaceID == "" || b.ViewID == "" {
			return nil, fmt.Errorf("view %s: workspace_id and view_id are required", v)
		}
	}

	return &Registry{bindings: bindings}, nil
}

// Resolve returns the binding for v.
func (r *Registry) Resolve(v View) (ViewBinding, error) {
	b, ok := r.bindings[v]
	if !ok {
		return ViewBinding{}, fmt.Errorf("%w: %s", ErrInvalidView, v)
	}
	return b, nil
}

func lookupFold(name string) (View, bool) {
	for _, v := range Views() {
		if strings.EqualFold(v.String(), name) {
			return v, true
		}
	}
	return 0, false
}

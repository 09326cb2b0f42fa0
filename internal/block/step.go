package block

// DispatchKind is the discriminator carried by a tagged dispatch object
// (spec.md §3, §9 "Dynamic dispatch and duck typing").
type DispatchKind string

const (
	KindDisplay DispatchKind = "zDisplay"
	KindData    DispatchKind = "zData"
	KindFunc    DispatchKind = "zFunc"
	KindLink    DispatchKind = "zLink"
	KindDialog  DispatchKind = "zDialog"
)

// DispatchObject is a tagged-variant step value: one of the five recognised
// shapes, carrying an arbitrary field map plus any attached zRBAC metadata.
type DispatchObject struct {
	Kind   DispatchKind
	Fields map[string]interface{}
	RBAC   *RBACRequirement
}

// RBACRequirement is the access-control metadata attached to a step or a
// block (spec.md §3 RBAC Requirement).
type RBACRequirement struct {
	RequireAuth       bool
	RequireRole       []string
	RequirePermission []string
	ZGuest            bool
}

// Step is the tagged union of the three shapes a block value can take:
// a bare scalar string, a nested Block, or a DispatchObject.
type Step struct {
	Scalar  *string
	Nested  *Block
	Dispatch *DispatchObject
}

// ScalarStep builds a scalar Step.
func ScalarStep(s string) Step { return Step{Scalar: &s} }

// NestedStep builds a nested-block Step.
func NestedStep(b *Block) Step { return Step{Nested: b} }

// DispatchStep builds a tagged dispatch Step.
func DispatchStep(d *DispatchObject) Step { return Step{Dispatch: d} }

// IsScalar, IsNested, IsDispatch classify a Step's active variant.
func (s Step) IsScalar() bool   { return s.Scalar != nil }
func (s Step) IsNested() bool   { return s.Nested != nil }
func (s Step) IsDispatch() bool { return s.Dispatch != nil }

// RBAC extracts the RBAC requirement attached to this step, if any, wherever
// it was modeled (nested block's "zRBAC" key, or a DispatchObject's RBAC
// field). Returns nil when the step carries no access control.
func (s Step) RBAC() *RBACRequirement {
	if s.Dispatch != nil {
		return s.Dispatch.RBAC
	}
	if s.Nested != nil {
		if rbacStep, ok := s.Nested.Get("zRBAC"); ok && rbacStep.Dispatch != nil {
			return rbacStep.Dispatch.RBAC
		}
	}
	return nil
}

package executors

import (
	"fmt"

	"github.com/quillflow/quillflow/pkg/domain"
	"github.com/quillflow/quillflow/pkg/ports"
)

// Binding maps node types (and optionally executor_config.kind) to
// concrete executors. Resolution order: "type/kind" override first,
// then the type default. The binding is assembled once at startup and
// read-only afterwards.
type Binding struct {
	executors map[string]ports.NodeExecutor
}

// NewBinding creates an empty binding.
func NewBinding() *Binding {
	return &Binding{executors: make(map[string]ports.NodeExecutor)}
}

// NewDefaultBinding wires the five reference executors over a shared
// generation registry.
func NewDefaultBinding(generators *Registry) *Binding {
	b := NewBinding()
	b.Register(domain.NodeTypeTask, NewTask(generators))
	b.Register(domain.NodeTypeGate, NewGate())
	b.Register(domain.NodeTypeConcierge, NewConcierge())
	b.Register(domain.NodeTypeQA, NewQA(generators))
	b.Register(domain.NodeTypeEnd, NewEnd())
	return b
}

// Register binds the default executor for a node type.
func (b *Binding) Register(nodeType string, exec ports.NodeExecutor) {
	b.executors[nodeType] = exec
}

// RegisterKind binds an executor for a specific executor_config.kind
// within a node type, overriding the type default.
func (b *Binding) RegisterKind(nodeType, kind string, exec ports.NodeExecutor) {
	b.executors[nodeType+"/"+kind] = exec
}

// Resolve implements ports.ExecutorBinding.
func (b *Binding) Resolve(node domain.Node) (ports.NodeExecutor, error) {
	if kind, ok := node.ExecutorConfig["kind"].(string); ok && kind != "" {
		if exec, ok := b.executors[node.Type+"/"+kind]; ok {
			return exec, nil
		}
	}
	if exec, ok := b.executors[node.Type]; ok {
		return exec, nil
	}
	return nil, fmt.Errorf("no executor bound for node %q (type %q)", node.ID, node.Type)
}

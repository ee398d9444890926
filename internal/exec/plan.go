package exec

import "fmt"

// Plan describes a tree of operators.
type Plan struct {
	Root *PlanNode `json:"root"`
}

// PlanNode is an individual operator in the execution tree.
type PlanNode struct {
	Name     string                 `json:"name"`
	Detail   map[string]interface{} `json:"detail,omitempty"`
	Children []*PlanNode            `json:"children,omitempty"`
}

// Explain describes the operator tree rooted at op.
func Explain(op OpIterator) *Plan {
	return &Plan{Root: explainNode(op)}
}

func explainNode(op OpIterator) *PlanNode {
	switch n := op.(type) {
	case *Aggregate:
		detail := map[string]interface{}{
			"op":        n.AggregateOp().String(),
			"aggregate": n.AggregateFieldName(),
		}
		if n.GroupField() != NoGrouping {
			detail["group_by"] = n.GroupFieldName()
		}
		node := &PlanNode{Name: "Aggregate", Detail: detail}
		for _, child := range n.Children() {
			node.Children = append(node.Children, explainNode(child))
		}
		return node
	case *SeqScan:
		detail := map[string]interface{}{
			"table_id": n.TableID(),
			"columns":  n.Schema().NumFields(),
		}
		if n.Alias() != "" {
			detail["alias"] = n.Alias()
		}
		return &PlanNode{Name: "SeqScan", Detail: detail}
	default:
		return &PlanNode{Name: "Values", Detail: map[string]interface{}{"type": fmt.Sprintf("%T", op)}}
	}
}

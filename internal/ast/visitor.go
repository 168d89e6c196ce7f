package ast

// Visitor is the pre-order-with-skip visitor contract (spec.md §9): Walk
// calls Visit(node); if the returned Visitor is non-nil, Walk recurses
// into node's children with that visitor, then (for nodes whose children
// were visited) Walk does not call Visit again on the way out. This
// mirrors go/ast.Walk rather than the source's virtual-dispatch visitor,
// since tagged-variant Go has no per-type override mechanism — the
// exhaustive type switch in Walk stands in for it.
type Visitor interface {
	Visit(node Node) (w Visitor)
}

// Walk traverses node in pre-order, calling v.Visit at each step. Returning
// nil from Visit stops descent into that node's children.
func Walk(v Visitor, node Node) {
	if node == nil {
		return
	}
	v = v.Visit(node)
	if v == nil {
		return
	}
	switch n := node.(type) {
	case *Group:
		Walk(v, n.Inner)
	case *ConstantNil, *ConstantBool, *ConstantNumber, *ConstantString, *LocalRef, *GlobalRef, *Varargs:
		// leaves
	case *Call:
		Walk(v, n.Func)
		for _, a := range n.Args {
			Walk(v, a)
		}
	case *IndexName:
		Walk(v, n.Expr)
	case *IndexExpr:
		Walk(v, n.Expr)
		Walk(v, n.Index)
	case *Function:
		if n.Body != nil {
			Walk(v, n.Body)
		}
	case *Table:
		for _, p := range n.Pairs {
			if p.Key != nil {
				Walk(v, p.Key)
			}
			Walk(v, p.Value)
		}
	case *Unary:
		Walk(v, n.Expr)
	case *Binary:
		Walk(v, n.Left)
		Walk(v, n.Right)
	case *Logical:
		Walk(v, n.Left)
		Walk(v, n.Right)

	case *Block:
		for _, s := range n.Body {
			Walk(v, s)
		}
	case *If:
		Walk(v, n.Condition)
		Walk(v, n.Then)
		for _, ei := range n.ElseIfs {
			Walk(v, ei.Condition)
			Walk(v, ei.Then)
		}
		if n.Else != nil {
			Walk(v, n.Else)
		}
	case *While:
		Walk(v, n.Condition)
		Walk(v, n.Body)
	case *Repeat:
		Walk(v, n.Body)
		Walk(v, n.Condition)
	case *Break:
		// leaf
	case *Return:
		for _, e := range n.Values {
			Walk(v, e)
		}
	case *ExprStatement:
		Walk(v, n.Expr)
	case *LocalStatement:
		for _, e := range n.Values {
			Walk(v, e)
		}
	case *LocalFunction:
		Walk(v, n.Body)
	case *For:
		Walk(v, n.From)
		Walk(v, n.To)
		if n.Step != nil {
			Walk(v, n.Step)
		}
		Walk(v, n.Body)
	case *ForIn:
		for _, e := range n.Values {
			Walk(v, e)
		}
		Walk(v, n.Body)
	case *Assign:
		for _, e := range n.Lvalues {
			Walk(v, e)
		}
		for _, e := range n.Rvalues {
			Walk(v, e)
		}
	case *FunctionStatement:
		Walk(v, n.Target)
		Walk(v, n.Body)
	default:
		panic("ast.Walk: unhandled node type")
	}
}

// VisitorFunc adapts a plain function to the Visitor interface, always
// continuing descent with itself.
type VisitorFunc func(Node) bool

func (f VisitorFunc) Visit(node Node) Visitor {
	if f(node) {
		return f
	}
	return nil
}

package expr

// Node is a parsed expression fragment. Nodes are immutable after
// parsing so cached ASTs can be evaluated concurrently.
type Node interface {
	node()
}

type literalNode struct {
	value any
}

type identNode struct {
	name string
}

type unaryNode struct {
	op string
	x  Node
}

type binaryNode struct {
	op    string
	left  Node
	right Node
}

type ternaryNode struct {
	cond Node
	then Node
	alt  Node
}

type memberNode struct {
	x    Node
	name string
}

type indexNode struct {
	x     Node
	index Node
}

type callNode struct {
	name string
	args []Node
}

func (*literalNode) node() {}
func (*identNode) node()   {}
func (*unaryNode) node()   {}
func (*binaryNode) node()  {}
func (*ternaryNode) node() {}
func (*memberNode) node()  {}
func (*indexNode) node()   {}
func (*callNode) node()    {}

package scoring

// Cycle is a closed dependency loop; the first and last identifiers are equal.
type Cycle []string

type visitState int

const (
	unvisited visitState = iota
	inProgress
	done
)

// frame is one level of the explicit DFS stack: the node and the index of the
// next dependency edge to follow.
type frame struct {
	node string
	next int
}

// FindCycles reports every back-edge in the dependency graph as a cycle.
//
// Dependencies on identifiers outside the batch are ignored. Roots are visited
// in order of first appearance, edges in declaration order. The same loop may
// be reported more than once, rotated, when it is entered through different
// back-edges.
func FindCycles(tasks []Task) []Cycle {
	order := make([]string, 0, len(tasks))
	adjacency := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		if _, seen := adjacency[t.ID]; !seen {
			order = append(order, t.ID)
		}
		adjacency[t.ID] = t.Dependencies
	}

	state := make(map[string]visitState, len(order))
	pathIndex := make(map[string]int)
	var path []string
	cycles := []Cycle{}

	for _, root := range order {
		if state[root] != unvisited {
			continue
		}

		state[root] = inProgress
		pathIndex[root] = len(path)
		path = append(path, root)
		stack := []frame{{node: root}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := adjacency[top.node]

			if top.next >= len(deps) {
				node := top.node
				stack = stack[:len(stack)-1]
				path = path[:len(path)-1]
				delete(pathIndex, node)
				state[node] = done
				continue
			}

			dep := deps[top.next]
			top.next++
			if _, known := adjacency[dep]; !known {
				continue
			}

			switch state[dep] {
			case inProgress:
				start := pathIndex[dep]
				cycle := make(Cycle, 0, len(path)-start+1)
				cycle = append(cycle, path[start:]...)
				cycle = append(cycle, dep)
				cycles = append(cycles, cycle)
			case done:
			default:
				state[dep] = inProgress
				pathIndex[dep] = len(path)
				path = append(path, dep)
				stack = append(stack, frame{node: dep})
			}
		}
	}
	return cycles
}

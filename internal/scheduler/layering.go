package scheduler

// buildLayers computes topological layers over the steps in order that
// are not in done, using Kahn's algorithm with insertion-order as the
// tie-break. edges is the union of explicit and implicit precedence
// pairs (workflowctx.Context.Edges). Residual unvisited steps (a cycle)
// are appended as singleton layers in order, and cyclic is reported true
// so the caller can warn.
func buildLayers(order []string, edges [][2]string, done map[string]bool) (layers [][]string, cyclic bool) {
	remaining := make(map[string]bool, len(order))
	for _, id := range order {
		if !done[id] {
			remaining[id] = true
		}
	}

	indegree := make(map[string]int, len(remaining))
	adj := make(map[string][]string)
	for id := range remaining {
		indegree[id] = 0
	}
	for _, e := range edges {
		from, to := e[0], e[1]
		if remaining[from] && remaining[to] {
			indegree[to]++
			adj[from] = append(adj[from], to)
		}
	}

	visited := make(map[string]bool, len(remaining))

	for {
		var layer []string
		for _, id := range order {
			if remaining[id] && !visited[id] && indegree[id] == 0 {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			break
		}
		for _, id := range layer {
			visited[id] = true
		}
		layers = append(layers, layer)
		for _, id := range layer {
			for _, next := range adj[id] {
				indegree[next]--
			}
		}
	}

	var residual []string
	for _, id := range order {
		if remaining[id] && !visited[id] {
			residual = append(residual, id)
		}
	}
	for _, id := range residual {
		layers = append(layers, []string{id})
	}

	return layers, len(residual) > 0
}

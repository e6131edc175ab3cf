package routing

import "testing"

func TestRouteDirect(t *testing.T) {
	g := NewGraph()
	g.AddEdge(Edge{From: "lustre", To: "irods", Cost: On})

	path, err := g.Route("lustre", "irods")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(path) != 1 || path[0].To != "irods" {
		t.Fatalf("unexpected path: %+v", path)
	}
}

func TestRouteMultiHopPicksCheapest(t *testing.T) {
	g := NewGraph()
	g.AddEdge(Edge{From: "a", To: "b", Cost: On2})
	g.AddEdge(Edge{From: "a", To: "c", Cost: On})
	g.AddEdge(Edge{From: "c", To: "b", Cost: On})

	path, err := g.Route("a", "b")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(path) != 2 || path[0].To != "c" || path[1].To != "b" {
		t.Fatalf("expected a->c->b, got %+v", path)
	}
}

func TestRouteNoPath(t *testing.T) {
	g := NewGraph()
	g.AddEdge(Edge{From: "a", To: "b", Cost: On})

	if _, err := g.Route("b", "a"); err == nil {
		t.Fatalf("expected error for unreachable vertex")
	}
}

func TestCostCombineIsMax(t *testing.T) {
	if On2.Combine(On) != On2 {
		t.Fatalf("expected max(On2, On) == On2")
	}
	if O1.Combine(On) != On {
		t.Fatalf("expected max(O1, On) == On")
	}
}

package planner

import (
	"context"
	"testing"

	"github.com/wtsi-hgi/shepherd/filesystem"
	"github.com/wtsi-hgi/shepherd/routing"
	"github.com/wtsi-hgi/shepherd/transform"
)

func TestPlanByDataHappyPath(t *testing.T) {
	src := filesystem.NewMemory("lustre", 4, map[string][]byte{"/lustre/a/b.dat": []byte("hello")})
	tgt := filesystem.NewMemory("irods", 4, nil)

	route := New(src, tgt, "cp {{source.address}} {{target.address}}", routing.On)
	route.AddIO(transform.Prefix("/irods/base/coll"))
	route.AddIO(transform.LastNComponents(1))
	route.AddIO(transform.Prefix("/irods/base/coll"))

	tasks, err := route.PlanByData([]string{"/lustre/a/b.dat"})
	if err != nil {
		t.Fatalf("PlanByData: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Target.Address != "/irods/base/coll/b.dat" {
		t.Fatalf("unexpected target address: %q", tasks[0].Target.Address)
	}
	if tasks[0].Source.Address != "/lustre/a/b.dat" {
		t.Fatalf("unexpected source address: %q", tasks[0].Source.Address)
	}
}

func TestPlanByQueryEmptyFoFNYieldsZeroTasks(t *testing.T) {
	src := filesystem.NewMemory("lustre", 4, map[string][]byte{"fofn.txt": []byte("")})
	tgt := filesystem.NewMemory("irods", 4, nil)

	route := New(src, tgt, "cp {{source.address}} {{target.address}}", routing.On)
	var tasks []Task
	err := route.PlanByQuery(context.Background(), "fofn.txt", '\n', false, func(t Task) error {
		tasks = append(tasks, t)
		return nil
	})
	if err != nil {
		t.Fatalf("PlanByQuery: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected zero tasks on empty fofn, got %d", len(tasks))
	}
}

func TestPlanByQueryStreamsWithoutBuffering(t *testing.T) {
	src := filesystem.NewMemory("lustre", 4, map[string][]byte{
		"fofn.txt":        []byte("/lustre/a/b.dat\n/lustre/a/c.dat\n"),
		"/lustre/a/b.dat": []byte("hello"),
		"/lustre/a/c.dat": []byte("world"),
	})
	tgt := filesystem.NewMemory("irods", 4, nil)

	route := New(src, tgt, "cp {{source.address}} {{target.address}}", routing.On)
	route.AddIO(transform.Prefix("/irods/base"))

	var tasks []Task
	err := route.PlanByQuery(context.Background(), "fofn.txt", '\n', false, func(t Task) error {
		tasks = append(tasks, t)
		return nil
	})
	if err != nil {
		t.Fatalf("PlanByQuery: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].Target.Address != "/irods/base/lustre/a/b.dat" {
		t.Fatalf("unexpected target address: %q", tasks[0].Target.Address)
	}
}

func TestPlanByQueryBuffersForStripCommonPrefix(t *testing.T) {
	src := filesystem.NewMemory("lustre", 4, map[string][]byte{
		"fofn.txt": []byte("/a/b/c\n/a/b/d\n/a/e/f\n"),
	})
	tgt := filesystem.NewMemory("irods", 4, nil)

	route := New(src, tgt, "cp {{source.address}} {{target.address}}", routing.On)
	route.AddIO(transform.StripCommonPrefix())

	var tasks []Task
	err := route.PlanByQuery(context.Background(), "fofn.txt", '\n', false, func(t Task) error {
		tasks = append(tasks, t)
		return nil
	})
	if err != nil {
		t.Fatalf("PlanByQuery: %v", err)
	}
	want := []string{"/b/c", "/b/d", "/e/f"}
	if len(tasks) != len(want) {
		t.Fatalf("expected %d tasks, got %d", len(want), len(tasks))
	}
	for i, w := range want {
		if tasks[i].Target.Address != w {
			t.Fatalf("task %d: expected target %q, got %q", i, w, tasks[i].Target.Address)
		}
	}
}

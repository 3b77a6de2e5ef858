package health

import (
	"context"
	"testing"
)

func TestEmptyRegistryIsHealthy(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("empty registry should report healthy")
	}
	if len(statuses) != 0 {
		t.Fatalf("expected no statuses, got %d", len(statuses))
	}
}

func TestAggregateHealth(t *testing.T) {
	r := NewRegistry()
	r.Register("feed", func(ctx context.Context) Status {
		return Status{Name: "feed", Healthy: true}
	})
	r.Register("engine", func(ctx context.Context) Status {
		return Status{Name: "engine", Healthy: false, Detail: "saturated"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Fatal("one unhealthy subsystem must fail the aggregate")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].Name != "feed" || statuses[1].Name != "engine" {
		t.Fatalf("statuses must follow registration order: %+v", statuses)
	}
	if statuses[1].Detail != "saturated" {
		t.Fatalf("detail lost: %+v", statuses[1])
	}
}

func TestStuckCheckerTimesOut(t *testing.T) {
	r := NewRegistry()
	block := make(chan struct{})
	r.Register("stuck", func(ctx context.Context) Status {
		<-block
		return Status{Name: "stuck", Healthy: true}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Fatal("stuck checker must be reported unhealthy")
	}
	if statuses[0].Detail != "check timed out" {
		t.Fatalf("unexpected detail: %q", statuses[0].Detail)
	}
}

package services_test

import (
	"context"
	"testing"

	"reelpipe/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithItemID(ctx, 42)
	ctx = services.WithStage(ctx, "transform")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.ItemIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected item id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "transform" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}

func TestTriggerRoundTrip(t *testing.T) {
	ctx := services.WithTrigger(context.Background(), "schedule")
	if trigger, ok := services.TriggerFromContext(ctx); !ok || trigger != "schedule" {
		t.Fatalf("unexpected trigger: %v %v", trigger, ok)
	}
	if _, ok := services.TriggerFromContext(services.WithTrigger(context.Background(), "")); ok {
		t.Fatal("expected blank trigger to be ignored")
	}
}

func TestZeroItemIDIsNotStored(t *testing.T) {
	if _, ok := services.ItemIDFromContext(services.WithItemID(context.Background(), 0)); ok {
		t.Fatal("expected item id 0 to be ignored")
	}
}

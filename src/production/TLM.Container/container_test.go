package container

import (
	"context"
	"testing"

	config "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Config"
	logger "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Logger"
)

func TestMemoryDriverWiresRepositories(t *testing.T) {
	cfg := &config.Config{StorageDriver: config.StorageDriverMemory}
	ctr := NewContainer(cfg, logger.NewNop())

	repos, err := ctr.GetRepositories(context.Background())
	if err != nil {
		t.Fatalf("GetRepositories: %v", err)
	}
	if repos.Users == nil || repos.Devices == nil || repos.Pins == nil || repos.Readings == nil || repos.AlertRules == nil {
		t.Fatalf("expected every repository to be wired, got %+v", repos)
	}

	again, _ := ctr.GetRepositories(context.Background())
	if again != repos {
		t.Error("expected repositories to be built once")
	}

	status, healthy := ctr.GetHealthChecker().GetHealthStatus(context.Background())
	if !healthy || status["status"] != "ok" {
		t.Errorf("expected healthy status for memory driver, got %v", status)
	}
}

func TestShutdownRunsCleanupInReverse(t *testing.T) {
	ctr := NewContainer(&config.Config{StorageDriver: config.StorageDriverMemory}, logger.NewNop())

	var order []int
	ctr.AddCleanupFunc(func() error { order = append(order, 1); return nil })
	ctr.AddCleanupFunc(func() error { order = append(order, 2); return nil })

	_ = ctr.Shutdown(context.Background())
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("expected reverse cleanup order, got %v", order)
	}
}

func TestUnknownDriverFails(t *testing.T) {
	ctr := NewContainer(&config.Config{StorageDriver: "bolt"}, logger.NewNop())
	if _, err := ctr.GetRepositories(context.Background()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

package registry_ext_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/autowire"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/config"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/registry"
	bizConfig "github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/config"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	_ "github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/registry_ext" // builders registered via init
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/service"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/store"
)

const testConfig = `
app_info:
  app_name: taskmanager-test
logging:
  enabled: true
  level: ERROR
  output: stderr
http_server:
  enabled: false
biz_config:
  node_id: node-test
  claiming:
    strategy: mget
    run_loop: false
  definitions:
    - type: report
      max_concurrency: 1
      max_attempts: 3
  dead_letter:
    enabled: true
  store:
    driver: memory
`

func loadConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(testConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	cm := config.NewConfigManager("test", path)
	if err := cm.SetBizConfig(bizConfig.GetBizConfig()); err != nil {
		t.Fatal(err)
	}
	if err := cm.LoadConfig(); err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	return cm.GetConfig()
}

func TestAutowireClaimingComponents(t *testing.T) {
	cfg := loadConfig(t)
	if b := bizConfig.GetBizConfig(); b.NodeID != "node-test" || b.Claiming.Strategy != "mget" {
		t.Fatalf("biz_config not decoded: %+v", b)
	}
	c := core.NewContainer()
	if err := registry.BuildAndRegisterAll(cfg, c); err != nil {
		t.Fatalf("registry build failed: %v", err)
	}
	if err := autowire.InjectAll(c); err != nil {
		t.Fatalf("autowire failed: %v", err)
	}

	engine, err := core.ResolveAs[*service.ClaimingEngine](c, consts.COMP_SVC_CLAIMING)
	if err != nil {
		t.Fatal(err)
	}
	if engine.Store == nil || engine.Definitions == nil || engine.Partitioner == nil || engine.Events == nil {
		t.Fatalf("engine dependencies not injected: %+v", engine)
	}
	if _, ok := engine.Store.(*store.MemoryStore); !ok {
		t.Fatalf("store driver memory resolved to %T", engine.Store)
	}
	sweeper, err := core.ResolveAs[*service.DeadLetterSweeper](c, consts.COMP_SVC_DEAD_LETTER)
	if err != nil {
		t.Fatal(err)
	}
	if sweeper.Store != engine.Store {
		t.Fatal("sweeper and engine must share the task store")
	}
	if _, err := c.Resolve(consts.COMP_CTRL_CLAIM); err == nil {
		t.Fatal("claim controller registered with http_server disabled")
	}

	lm := core.NewLifecycleManager(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := lm.StartAll(ctx); err != nil {
		t.Fatalf("lifecycle start failed: %v", err)
	}
	defer lm.StopAll(context.Background())

	res := engine.RunRound(ctx)
	if res.Stats.TasksErrors != 0 {
		t.Fatalf("empty store round reported errors: %+v", res.Stats)
	}
}

func TestStartOrderFollowsInferredDependencies(t *testing.T) {
	cfg := loadConfig(t)
	c := core.NewContainer()
	if err := registry.BuildAndRegisterAll(cfg, c); err != nil {
		t.Fatalf("build/register failed: %v", err)
	}
	if err := autowire.InjectAll(c); err != nil {
		t.Fatalf("autowire failed: %v", err)
	}
	ordered, err := c.ValidateDependencies()
	if err != nil {
		t.Fatalf("validate deps failed: %v", err)
	}
	idx := map[string]int{}
	for i, comp := range ordered {
		idx[comp.Name()] = i
	}
	checkBefore := func(a, b string) {
		ia, okA := idx[a]
		ib, okB := idx[b]
		if !okA || !okB {
			t.Fatalf("missing %s or %s in %v", a, b, idx)
		}
		if ia > ib {
			t.Fatalf("expected %s before %s, got %d > %d", a, b, ia, ib)
		}
	}
	checkBefore(consts.COMP_STORE_TASK, consts.COMP_SVC_CLAIMING)
	checkBefore(consts.COMP_SVC_DEFINITIONS, consts.COMP_SVC_CLAIMING)
	checkBefore(consts.COMP_SVC_PARTITIONER, consts.COMP_SVC_CLAIMING)
	checkBefore(consts.COMP_SVC_EVENTS, consts.COMP_SVC_CLAIMING)
	checkBefore(consts.COMP_SVC_EVENTS, consts.COMP_SVC_DEAD_LETTER)
}

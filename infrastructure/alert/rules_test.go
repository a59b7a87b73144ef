package alert

import (
	"testing"
	"time"
)

func TestCheckRunPositionRule(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, time.Minute)

	fired := CheckRun(mgr, RuleConfig{MaxAbsPosition: 100}, []RunStats{
		{MakerID: "MM_0", FinalPosition: -250},
		{MakerID: "MM_1", FinalPosition: 40},
	})
	if fired != 1 {
		t.Fatalf("expected 1 rule fired, got %d", fired)
	}
	if mock.Count() != 1 {
		t.Fatalf("expected 1 alert, got %d", mock.Count())
	}
	a := mock.GetAlerts()[0]
	if a.Level != LevelWarning {
		t.Errorf("level = %s, want WARNING", a.Level)
	}
	if a.Rule != RulePositionLimit {
		t.Errorf("rule = %s, want %s", a.Rule, RulePositionLimit)
	}
	if a.Fields["maker"] != "MM_0" {
		t.Errorf("maker = %v, want MM_0", a.Fields["maker"])
	}
}

func TestCheckRunFallbackRule(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, time.Minute)

	// 计数来源是 MarketMaker.SolverStats，保持 int64 赋值路径。
	var solves, fails int64 = 100, 30
	fired := CheckRun(mgr, RuleConfig{MaxFallbackRate: 0.1}, []RunStats{
		{MakerID: "MM_0", SolverSolves: solves, SolverFails: fails},
		{MakerID: "MM_1", SolverSolves: 100, SolverFails: 5},
	})
	if fired != 1 {
		t.Fatalf("expected 1 rule fired, got %d", fired)
	}
	if a := mock.GetAlerts()[0]; a.Level != LevelError || a.Rule != RuleSolverFallback {
		t.Errorf("fallback breach must be ERROR/%s, got %s/%s", RuleSolverFallback, a.Level, a.Rule)
	}
}

func TestCheckRunDisabledRules(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, time.Minute)

	fired := CheckRun(mgr, RuleConfig{}, []RunStats{
		{MakerID: "MM_0", FinalPosition: 1e9, SolverSolves: 10, SolverFails: 10},
	})
	if fired != 0 || mock.Count() != 0 {
		t.Fatalf("zero-valued rules must stay disabled, fired=%d alerts=%d", fired, mock.Count())
	}
}

func TestCheckRunNoSolvesSkipsRate(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, time.Minute)

	fired := CheckRun(mgr, RuleConfig{MaxFallbackRate: 0.1}, []RunStats{
		{MakerID: "MM_0"},
	})
	if fired != 0 {
		t.Fatalf("no solver calls must not fire rate rule, got %d", fired)
	}
}

package conductor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/conductor-sh/conductor/internal/chief"
	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/internal/tick"
	"github.com/conductor-sh/conductor/internal/trajectory"
	"github.com/conductor-sh/conductor/pkg/models"
)

// fakeChief is a scriptable chief for conductor tests.
type fakeChief struct {
	domain       string
	observePanic bool
	observeErr   error
	action       models.Action
	applyErr     error
	reward       float64
	space        []models.Capability

	observed int
	applied  int
	reported int
	// appliedActions records every action dispatched to ApplyAction.
	appliedActions []models.Action
}

func (f *fakeChief) Domain() string { return f.domain }

func (f *fakeChief) ObserveState(ctx *chief.DomainContext) (models.Observation, error) {
	f.observed++
	if f.observePanic {
		panic("observe blew up")
	}
	if f.observeErr != nil {
		return models.Observation{}, f.observeErr
	}
	return models.Observation{
		Features: map[string]any{"observed": f.observed},
	}, nil
}

func (f *fakeChief) ChooseAction(obs models.Observation) models.Action {
	if f.action.Tag == "" {
		return models.NewAction("noop")
	}
	return f.action
}

func (f *fakeChief) ApplyAction(action models.Action, ctx *chief.DomainContext) error {
	f.applied++
	f.appliedActions = append(f.appliedActions, action)
	return f.applyErr
}

func (f *fakeChief) ReportOutcome(ctx *chief.DomainContext) chief.Outcome {
	f.reported++
	return chief.Outcome{Reward: f.reward}
}

func (f *fakeChief) ActionSpace() []models.Capability { return f.space }

// fakeSource is a manually driven tick source.
type fakeSource struct {
	ch chan tick.Tick
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan tick.Tick)}
}

func (s *fakeSource) Ticks() <-chan tick.Tick { return s.ch }
func (s *fakeSource) Stop() error             { close(s.ch); return nil }

var _ tick.Source = (*fakeSource)(nil)

func newTestConductor(sink trajectory.Sink) *Conductor {
	return New(Options{Sink: sink})
}

func TestIsolationInvariant(t *testing.T) {
	c := newTestConductor(nil)
	defer c.Close()

	healthy1 := &fakeChief{domain: "queue", action: models.NewAction("act"), reward: 1}
	broken := &fakeChief{domain: "memory", observePanic: true}
	healthy2 := &fakeChief{domain: "bridge", action: models.NewAction("act"), reward: 1}

	c.RegisterChief(healthy1)
	c.RegisterChief(broken)
	c.RegisterChief(healthy2)

	summary := c.Tick()

	if len(summary.Turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(summary.Turns))
	}
	if healthy1.reported != 1 || healthy2.reported != 1 {
		t.Errorf("healthy chiefs did not complete full turns: reported %d, %d",
			healthy1.reported, healthy2.reported)
	}

	failed := summary.FailedTurns()
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed turn, got %d", len(failed))
	}
	if failed[0].Chief != "memory" {
		t.Errorf("failed chief = %s, want memory", failed[0].Chief)
	}
	if failed[0].Err.Stage != chief.StageObserve {
		t.Errorf("failure stage = %s, want %s", failed[0].Err.Stage, chief.StageObserve)
	}

	// Failed turns contribute zero actions.
	if summary.ActionsTaken != 2 {
		t.Errorf("actions taken = %d, want 2", summary.ActionsTaken)
	}
}

func TestApplyErrorAbortsOnlyThatTurn(t *testing.T) {
	c := newTestConductor(nil)
	defer c.Close()

	failing := &fakeChief{domain: "queue", action: models.NewAction("act"), applyErr: errors.New("disk full")}
	healthy := &fakeChief{domain: "bridge", action: models.NewAction("act")}
	c.RegisterChief(failing)
	c.RegisterChief(healthy)

	summary := c.Tick()

	failed := summary.FailedTurns()
	if len(failed) != 1 || failed[0].Err.Stage != chief.StageApply {
		t.Fatalf("expected one action_failure turn, got %+v", failed)
	}
	// ReportOutcome is skipped after a failed apply.
	if failing.reported != 0 {
		t.Errorf("failing chief reported %d times, want 0", failing.reported)
	}
	if healthy.reported != 1 {
		t.Errorf("healthy chief reported %d times, want 1", healthy.reported)
	}
}

func TestRegistrationOrderAndReplacement(t *testing.T) {
	c := newTestConductor(nil)
	defer c.Close()

	first := &fakeChief{domain: "queue"}
	second := &fakeChief{domain: "memory"}
	c.RegisterChief(first)
	c.RegisterChief(second)

	replacement := &fakeChief{domain: "queue", reward: 5}
	c.RegisterChief(replacement)

	domains := c.Chiefs()
	if len(domains) != 2 {
		t.Fatalf("expected 2 registered chiefs, got %d", len(domains))
	}
	if domains[0] != "queue" || domains[1] != "memory" {
		t.Errorf("order = %v, want [queue memory]", domains)
	}

	c.Tick()
	if first.observed != 0 {
		t.Error("replaced chief still ran")
	}
	if replacement.observed != 1 {
		t.Error("replacement chief did not run")
	}
}

func TestRewardClampAndTrajectoryKeying(t *testing.T) {
	sink := trajectory.NewMemorySink()
	c := newTestConductor(sink)
	defer c.Close()

	c.RegisterChief(&fakeChief{domain: "queue", action: models.NewAction("act"), reward: 1000})
	c.Tick()
	c.Tick()

	records := sink.ByChief("queue")
	if len(records) != 2 {
		t.Fatalf("expected 2 trajectory records, got %d", len(records))
	}
	if records[0].Tick != 1 || records[1].Tick != 2 {
		t.Errorf("ticks = %d, %d, want 1, 2", records[0].Tick, records[1].Tick)
	}
	for _, r := range records {
		if r.Step.Reward != trajectory.RewardCeil {
			t.Errorf("reward = %v, want clamped to %v", r.Step.Reward, trajectory.RewardCeil)
		}
		if r.Step.Metadata["domain"] != "queue" {
			t.Errorf("metadata domain = %v", r.Step.Metadata["domain"])
		}
	}
}

func TestFailedTurnRecordsNoTrajectory(t *testing.T) {
	sink := trajectory.NewMemorySink()
	c := newTestConductor(sink)
	defer c.Close()

	c.RegisterChief(&fakeChief{domain: "queue", observeErr: errors.New("sensor offline")})
	c.Tick()

	if sink.Len() != 0 {
		t.Errorf("expected no trajectory records from failed turn, got %d", sink.Len())
	}
}

func TestWaitActionDoesNotDispatch(t *testing.T) {
	c := newTestConductor(nil)
	defer c.Close()

	waiting := &fakeChief{domain: "queue", action: models.Wait(500)}
	c.RegisterChief(waiting)

	summary := c.Tick()

	if waiting.applied != 0 {
		t.Errorf("wait action reached ApplyAction %d times", waiting.applied)
	}
	if summary.ActionsTaken != 0 {
		t.Errorf("actions taken = %d, want 0", summary.ActionsTaken)
	}
	if !summary.Turns[0].OK {
		t.Error("wait turn should complete successfully")
	}
	// The turn still reports its outcome.
	if waiting.reported != 1 {
		t.Errorf("reported %d times, want 1", waiting.reported)
	}
}

func TestActionSpaceConformance(t *testing.T) {
	c := newTestConductor(nil)
	defer c.Close()

	rogue := &fakeChief{
		domain: "queue",
		action: models.NewAction("explode"),
		space: []models.Capability{
			{ActionTag: "shuffle", Domain: "queue"},
		},
	}
	c.RegisterChief(rogue)

	summary := c.Tick()

	// Outside the declared space: logged no-op, not a failure.
	if rogue.applied != 0 {
		t.Errorf("nonconforming action reached ApplyAction %d times", rogue.applied)
	}
	if !summary.Turns[0].OK {
		t.Error("unknown action should not fail the turn")
	}
	if summary.ActionsTaken != 0 {
		t.Errorf("actions taken = %d, want 0", summary.ActionsTaken)
	}
}

func TestDeferDispatchesToTargetChief(t *testing.T) {
	c := newTestConductor(nil)
	defer c.Close()

	deferring := &fakeChief{domain: "bridge", action: models.Defer("queue")}
	target := &fakeChief{domain: "queue", action: models.Wait(100)}
	c.RegisterChief(target)
	c.RegisterChief(deferring)

	c.Tick()

	if len(target.appliedActions) != 1 {
		t.Fatalf("defer target applied %d actions, want 1", len(target.appliedActions))
	}
	if !target.appliedActions[0].IsDefer() {
		t.Errorf("target received %s, want the defer action", target.appliedActions[0])
	}
	// The deferring chief's own ApplyAction is bypassed.
	if deferring.applied != 0 {
		t.Errorf("deferring chief applied %d actions, want 0", deferring.applied)
	}
}

func TestDeferToUnknownDomainIsNoOp(t *testing.T) {
	c := newTestConductor(nil)
	defer c.Close()

	deferring := &fakeChief{domain: "bridge", action: models.Defer("nonexistent")}
	c.RegisterChief(deferring)

	summary := c.Tick()
	if !summary.Turns[0].OK {
		t.Error("defer to unknown domain should not fail the turn")
	}
	if deferring.applied != 0 {
		t.Error("defer to unknown domain should not dispatch")
	}
}

func TestGetStatesRetainsLastObservation(t *testing.T) {
	c := newTestConductor(nil)
	defer c.Close()

	c.RegisterChief(&fakeChief{domain: "queue"})
	c.Tick()
	c.Tick()

	states := c.GetStates()
	obs, ok := states["queue"]
	if !ok {
		t.Fatal("expected a retained state for queue")
	}
	if obs.Tick != 2 {
		t.Errorf("state tick = %d, want 2", obs.Tick)
	}
	if obs.Int("observed", 0) != 2 {
		t.Errorf("observed feature = %v, want 2", obs.Features["observed"])
	}
}

func TestPausedTicksAreNoOps(t *testing.T) {
	c := newTestConductor(nil)
	defer c.Close()

	worker := &fakeChief{domain: "queue"}
	c.RegisterChief(worker)

	src := newFakeSource()
	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { done <- c.Run(ctx, src) }()

	send := func(seq uint64) {
		src.ch <- tick.Tick{Seq: seq, At: time.Now()}
	}
	waitFor := func(want int) {
		deadline := time.Now().Add(2 * time.Second)
		for worker.observed != want {
			if time.Now().After(deadline) {
				t.Fatalf("observed = %d, want %d", worker.observed, want)
			}
			time.Sleep(time.Millisecond)
		}
	}

	send(1)
	waitFor(1)

	c.Pause()
	send(2)
	send(3)

	c.Resume()
	send(4)
	waitFor(2)

	// Paused ticks ran no cycles; the state is from tick 1 or 4 only.
	if got := c.TickCount(); got != 4 {
		t.Errorf("tick count = %d, want 4", got)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("run returned %v, want context.Canceled", err)
	}
}

func TestPolicySkipsOffCadenceTicks(t *testing.T) {
	policies := config.NewPolicySet()
	policies.Put(&config.ChiefPolicy{Domain: "memory", TickEvery: 2})

	c := New(Options{Policies: policies})
	defer c.Close()

	every := &fakeChief{domain: "queue"}
	sparse := &fakeChief{domain: "memory"}
	c.RegisterChief(every)
	c.RegisterChief(sparse)

	for i := 0; i < 4; i++ {
		c.Tick()
	}

	if every.observed != 4 {
		t.Errorf("queue observed %d ticks, want 4", every.observed)
	}
	// Ticks 2 and 4 match tick_every: 2.
	if sparse.observed != 2 {
		t.Errorf("memory observed %d ticks, want 2", sparse.observed)
	}
}

func TestCycleEMAUpdates(t *testing.T) {
	c := newTestConductor(nil)
	defer c.Close()

	c.RegisterChief(&fakeChief{domain: "queue"})
	c.Tick()

	if c.CycleEMA() <= 0 {
		t.Error("expected a positive cycle-duration EMA after one cycle")
	}
}

func TestActionLogLifecycle(t *testing.T) {
	c := newTestConductor(nil)
	defer c.Close()

	c.RegisterChief(&fakeChief{domain: "queue", action: models.NewAction("act")})
	c.Tick()

	recent := c.ActionLog().Recent(10)
	if len(recent) != 1 {
		t.Fatalf("expected 1 action record, got %d", len(recent))
	}
	rec := recent[0]
	if rec.Chief != "queue" || rec.Tick != 1 {
		t.Errorf("record = %+v", rec)
	}
	if rec.State != models.ActionStateCompleted {
		t.Errorf("record state = %s, want completed", rec.State)
	}
}

func TestActionLogStateTransitions(t *testing.T) {
	l := NewActionLog(4)

	idx := l.Begin("queue", 1, models.NewAction("act"))
	if got := l.Recent(1)[0]; got.State != models.ActionStatePending {
		t.Fatalf("after begin: state = %s, want pending", got.State)
	}
	if got := l.Recent(1)[0]; !got.StartedAt.IsZero() {
		t.Fatalf("after begin: StartedAt = %v, want zero", got.StartedAt)
	}

	l.Start(idx)
	got := l.Recent(1)[0]
	if got.State != models.ActionStateExecuting || got.StartedAt.IsZero() {
		t.Fatalf("after start: state = %s started = %v, want executing with start time", got.State, got.StartedAt)
	}

	l.Finish(idx, models.ActionStateFailed, "apply exploded")
	got = l.Recent(1)[0]
	if got.State != models.ActionStateFailed || got.Error != "apply exploded" {
		t.Errorf("after finish: %+v", got)
	}
	if got.FinishedAt.IsZero() {
		t.Error("after finish: FinishedAt not set")
	}
}

package conductor

import (
	"errors"
	"fmt"
	"time"

	"github.com/conductor-sh/conductor/internal/chief"
	"github.com/conductor-sh/conductor/internal/trajectory"
	"github.com/conductor-sh/conductor/pkg/models"
)

// runTurn executes one chief's full turn: observe, decide, act, report.
// Every contract call is wrapped in a recover boundary; any fault
// aborts only this chief's turn.
func (c *Conductor) runTurn(domain string, impl chief.Chief, dctx *chief.DomainContext, tickSeq uint64) TurnSummary {
	obs, err := c.safeObserve(impl, dctx)
	if err != nil {
		return c.failTurn(domain, chief.StageObserve, tickSeq, err)
	}
	if obs.Domain == "" {
		obs.Domain = domain
	}
	obs.Tick = tickSeq
	if obs.ContextRef == "" {
		obs.ContextRef = dctx.Ref()
	}

	c.stateMu.Lock()
	c.states[domain] = obs
	c.stateMu.Unlock()

	action, err := c.safeChoose(impl, obs)
	if err != nil {
		return c.failTurn(domain, chief.StageDecide, tickSeq, err)
	}

	dispatched, err := c.dispatch(domain, impl, dctx, action, tickSeq)
	if err != nil {
		return c.failTurn(domain, chief.StageApply, tickSeq, err)
	}

	outcome, err := c.safeReport(impl, dctx)
	if err != nil {
		return c.failTurn(domain, chief.StageReport, tickSeq, err)
	}

	reward := trajectory.ClampReward(outcome.Reward)
	c.metrics.SetReward(domain, reward)
	c.recordStep(domain, tickSeq, action, obs, dctx, outcome, reward)

	if dispatched {
		c.metrics.CountAction(domain, action.Tag)
	}

	c.emitter.Emit(ConductorEvent{
		Type:      EventTurnCompleted,
		Chief:     domain,
		Tick:      tickSeq,
		Action:    action,
		Reward:    reward,
		Timestamp: time.Now(),
	})
	debugLog("[conductor] turn %s tick=%d action=%s reward=%.2f",
		domain, tickSeq, action, reward)

	return TurnSummary{Chief: domain, OK: true, Action: action, Dispatched: dispatched, Reward: reward}
}

// dispatch applies a chosen action. Returns whether the action was
// actually dispatched to an ApplyAction implementation.
//
// Wait actions never dispatch: the conductor does not sleep, the next
// tick re-evaluates the condition. Defer actions dispatch to the target
// domain's chief with that chief's own context. An action outside the
// chief's declared action space, or rejected as unknown by the chief
// itself, is logged and treated as a no-op, not a failure.
func (c *Conductor) dispatch(domain string, impl chief.Chief, dctx *chief.DomainContext, action models.Action, tickSeq uint64) (bool, error) {
	if action.IsWait() {
		idx := c.actionLog.Begin(domain, tickSeq, action)
		c.actionLog.Finish(idx, models.ActionStateCompleted, "")
		return false, nil
	}

	if !c.conforms(impl, action) {
		c.logUnknownAction(domain, action, tickSeq, "outside declared action space")
		return false, nil
	}

	target := impl
	targetCtx := dctx
	if action.IsDefer() {
		deferDomain := action.DeferDomain()
		target = c.registry.Get(deferDomain)
		targetCtx = c.registry.Context(deferDomain)
		if target == nil || targetCtx == nil {
			c.logUnknownAction(domain, action, tickSeq,
				fmt.Sprintf("defer target %q not registered", deferDomain))
			return false, nil
		}
	}

	idx := c.actionLog.Begin(domain, tickSeq, action)
	c.actionLog.Start(idx)
	err := c.safeApply(target, action, targetCtx)
	if err != nil {
		if errors.Is(err, chief.ErrUnknownAction) {
			c.actionLog.Finish(idx, models.ActionStateCompleted, "")
			c.logUnknownAction(domain, action, tickSeq, "rejected by chief")
			return false, nil
		}
		c.actionLog.Finish(idx, models.ActionStateFailed, err.Error())
		return false, err
	}
	c.actionLog.Finish(idx, models.ActionStateCompleted, "")

	c.emitter.Emit(ConductorEvent{
		Type:      EventActionApplied,
		Chief:     domain,
		Tick:      tickSeq,
		Action:    action,
		Timestamp: time.Now(),
	})
	return true, nil
}

// conforms checks a chosen action against the chief's declared action
// space. Chiefs without a declared space accept everything.
func (c *Conductor) conforms(impl chief.Chief, action models.Action) bool {
	spaced, ok := impl.(chief.ActionSpaced)
	if !ok {
		return true
	}
	caps := spaced.ActionSpace()
	if len(caps) == 0 {
		return true
	}
	return models.NewCapabilitySet(caps).Allows(action)
}

// recordStep appends the turn's trajectory step to the sink, tagged
// with (chief, tick). Missing state maps fall back to the observation
// and the post-action context snapshot.
func (c *Conductor) recordStep(domain string, tickSeq uint64, action models.Action, obs models.Observation, dctx *chief.DomainContext, outcome chief.Outcome, reward float64) {
	if c.sink == nil {
		return
	}

	step := outcome.Step
	step.Reward = reward
	if step.State == nil {
		step.State = obs.Features
	}
	if step.NextState == nil {
		step.NextState = dctx.Snapshot()
	}
	if step.Action.Tag == "" {
		step.Action = action
	}
	if step.Metadata == nil {
		step.Metadata = make(map[string]any, 2)
	}
	step.Metadata["domain"] = domain
	step.Metadata["tick"] = tickSeq

	if !step.Valid() {
		debugLog("[conductor] dropping invalid trajectory step for %s tick=%d", domain, tickSeq)
		return
	}
	if err := c.sink.Append(domain, tickSeq, step); err != nil {
		debugLog("[conductor] trajectory append failed for %s tick=%d: %v", domain, tickSeq, err)
	}
}

// failTurn records an aborted turn. The failure is logged and counted;
// the cycle continues with the remaining chiefs.
func (c *Conductor) failTurn(domain string, stage chief.Stage, tickSeq uint64, err error) TurnSummary {
	turnErr := chief.NewTurnError(domain, stage, err)
	c.metrics.CountTurnError(domain, string(stage))
	c.emitter.Emit(ConductorEvent{
		Type:      EventTurnFailed,
		Chief:     domain,
		Tick:      tickSeq,
		Error:     turnErr,
		Timestamp: time.Now(),
	})
	debugLog("[conductor] %v", turnErr)
	return TurnSummary{Chief: domain, Err: turnErr}
}

// logUnknownAction handles the unknown-action fallback path.
func (c *Conductor) logUnknownAction(domain string, action models.Action, tickSeq uint64, reason string) {
	c.emitter.Emit(ConductorEvent{
		Type:      EventUnknownAction,
		Chief:     domain,
		Tick:      tickSeq,
		Action:    action,
		Message:   reason,
		Timestamp: time.Now(),
	})
	debugLog("[conductor] unknown action %s from %s: %s", action, domain, reason)
}

// safeObserve calls ObserveState behind a recover boundary.
func (c *Conductor) safeObserve(impl chief.Chief, dctx *chief.DomainContext) (obs models.Observation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return impl.ObserveState(dctx)
}

// safeChoose calls ChooseAction behind a recover boundary.
func (c *Conductor) safeChoose(impl chief.Chief, obs models.Observation) (action models.Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return impl.ChooseAction(obs), nil
}

// safeApply calls ApplyAction behind a recover boundary.
func (c *Conductor) safeApply(impl chief.Chief, action models.Action, dctx *chief.DomainContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return impl.ApplyAction(action, dctx)
}

// safeReport calls ReportOutcome behind a recover boundary.
func (c *Conductor) safeReport(impl chief.Chief, dctx *chief.DomainContext) (outcome chief.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return impl.ReportOutcome(dctx), nil
}

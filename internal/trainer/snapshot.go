package trainer

import (
	"fmt"

	"seqlabel/internal/checkpoint"
	"seqlabel/internal/model"
)

// Snapshot captures parameters, velocities and state after epoch.
func (t *Trainer) Snapshot(epoch int) *checkpoint.Snapshot {
	snap := &checkpoint.Snapshot{
		RunID:      t.cfg.RunID,
		Epoch:      epoch,
		GlobalStep: t.state.GlobalStep,
		Momentum:   t.state.Momentum,
		AvgLoss:    t.state.AvgLoss,
		AvgAcc:     t.state.AvgAcc,
		Classes:    append([]string(nil), t.cfg.Classes...),
	}
	for i, p := range t.net.Params() {
		snap.Params = append(snap.Params, checkpoint.FromDense(p.Name, p.Value))
		snap.Velocity = append(snap.Velocity, checkpoint.FromDense(p.Name, t.step.Velocities()[i]))
	}
	return snap
}

// Restore loads a snapshot into the trainer so training continues from it.
func (t *Trainer) Restore(snap *checkpoint.Snapshot) error {
	if err := RestoreParams(t.net, snap); err != nil {
		return err
	}
	vel := t.step.Velocities()
	if len(snap.Velocity) != len(vel) {
		return fmt.Errorf("restore: checkpoint has %d velocities, optimizer %d", len(snap.Velocity), len(vel))
	}
	for i, v := range snap.Velocity {
		if err := v.CopyTo(vel[i]); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}
	t.state.GlobalStep = snap.GlobalStep
	t.state.Momentum = snap.Momentum
	t.state.AvgLoss = snap.AvgLoss
	t.state.AvgAcc = snap.AvgAcc
	return nil
}

// RestoreParams copies checkpointed parameter values into net, matching by
// position and name.
func RestoreParams(net model.Network, snap *checkpoint.Snapshot) error {
	params := net.Params()
	if len(snap.Params) != len(params) {
		return fmt.Errorf("restore: checkpoint has %d params, network %d", len(snap.Params), len(params))
	}
	for i, p := range params {
		if snap.Params[i].Name != p.Name {
			return fmt.Errorf("restore: param %d is %q in checkpoint, %q in network", i, snap.Params[i].Name, p.Name)
		}
		if err := snap.Params[i].CopyTo(p.Value); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}
	return nil
}

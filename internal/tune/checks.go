package tune

import (
	"context"

	"github.com/pkg/errors"
)

// check runs every candidate of set on in and hands the outputs of those that succeeded to
// the set's checker. Candidates that fail are skipped: they lose the benchmark the same way.
func (lt *LocalTuner[K, ID, In, Out]) check(ctx context.Context, set *TunableSet[K, In, Out], key K, in In) error {
	if set.checker == nil {
		return nil
	}
	outs := make([]Out, 0, set.Len())
	for i := 0; i < set.Len(); i++ {
		op := set.Fastest(i)
		out, err := op.Execute(ctx, in)
		if err != nil {
			lt.cfg.log.Debug("check: candidate failed", "tuner", lt.name, "key", key.String(), "candidate", op.Name(), "error", err)
			continue
		}
		outs = append(outs, out)
	}
	if len(outs) < 2 {
		return nil
	}
	if err := set.checker(outs); err != nil {
		return errors.Wrapf(ErrOutputMismatch, "%s key %s: %v", lt.name, key, err)
	}
	return nil
}

package processing

import (
	"context"

	"github.com/menta2k/leaf-doctor/pkg/types"
)

// Job is a single in-flight normalization. Its result is set once and never changes.
type Job struct {
	done     chan struct{}
	artifact types.Artifact
	err      error
}

// Go starts normalizing src in the background.
func (p *Processor) Go(ctx context.Context, src Source) *Job {
	j := &Job{done: make(chan struct{})}
	go func() {
		defer close(j.done)
		j.artifact, j.err = p.Normalize(ctx, src)
	}()
	return j
}

// Done is closed when the result is available.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx ends.
// Giving up on the wait does not stop the job.
func (j *Job) Wait(ctx context.Context) (types.Artifact, error) {
	select {
	case <-j.done:
		return j.artifact, j.err
	case <-ctx.Done():
		return types.Artifact{}, ctx.Err()
	}
}

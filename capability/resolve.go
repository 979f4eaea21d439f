package capability

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/toolink/backplane/metrics"
)

// Outcome is the result of probing one candidate.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeInapplicable
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeInapplicable:
		return "inapplicable"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Attempt records how one candidate answered during a resolution.
type Attempt struct {
	Candidate string
	Outcome   Outcome
	Err       error
}

func (a Attempt) String() string {
	if a.Err == nil {
		return a.Candidate + ": " + a.Outcome.String()
	}
	return fmt.Sprintf("%s: %s: %v", a.Candidate, a.Outcome, a.Err)
}

type resolveOptions struct {
	prefs     []string
	strict    bool
	exclusive bool
}

// ResolveOption configures a single resolution.
type ResolveOption func(*resolveOptions)

// WithPreference probes the candidates named in list (names or shortcuts,
// comma-separated) first and in that order. The keyword "any" appends all
// remaining candidates, "none" stops the list. Unless WithStrict is given the
// list is implicitly followed by "any".
func WithPreference(list string) ResolveOption {
	return func(o *resolveOptions) {
		o.prefs = append(o.prefs, ParsePreference(list)...)
	}
}

// WithNames is WithPreference for an already split list.
func WithNames(names ...string) ResolveOption {
	return func(o *resolveOptions) {
		o.prefs = append(o.prefs, names...)
	}
}

// WithStrict restricts probing to the candidates named by the preference list.
func WithStrict() ResolveOption {
	return func(o *resolveOptions) {
		o.strict = true
	}
}

// WithExclusive keeps probing after the first acceptor. If another candidate
// also accepts the context, every accepted backend is closed and the
// resolution fails with ErrAmbiguous.
func WithExclusive() ResolveOption {
	return func(o *resolveOptions) {
		o.exclusive = true
	}
}

// Resolve probes the candidates of this capability with ctx and returns the
// first backend that accepts it. Declining and failing candidates are
// absorbed; if none accepts, the error matches ErrNotFound and carries the
// probe report as a *NotFoundError.
func (c Capability[C, B]) Resolve(r *Registry, ctx C, opts ...ResolveOption) (*Instance[B], error) {
	if err := c.name.Validate(); err != nil {
		return nil, err
	}
	o := &resolveOptions{}
	for _, opt := range opts {
		opt(o)
	}

	l := log.With().Str("capability", string(c.name)).Logger()
	start := time.Now()

	entries := probeOrder(c.name, r.snapshot(c.name), o.prefs, o.strict)
	attempts := make([]Attempt, 0, len(entries))
	var accepted []*Instance[B]

	for _, e := range entries {
		init, ok := e.init.(Initializer[C, B])
		if !ok {
			// register rejects mixed types per name, so this is a handle with other type parameters
			return nil, fmt.Errorf("%w: %q resolved as %T, registered as %s", ErrTypeMismatch, c.name, init, e.initType)
		}

		b, err := probe(init, ctx, e.info.Name)
		attempt := Attempt{Candidate: e.info.Name, Err: err}
		switch {
		case err == nil:
			attempt.Outcome = OutcomeAccepted
		case errors.Is(err, ErrInapplicable):
			attempt.Outcome = OutcomeInapplicable
			l.Debug().Str("candidate", e.info.Name).Err(err).Msg("candidate declined context")
		default:
			attempt.Outcome = OutcomeFailed
			attempt.Err = &InitError{Candidate: e.info.Name, Err: err}
			l.Warn().Str("candidate", e.info.Name).Int("priority", e.info.Priority).Err(err).Msg("candidate failed to initialize")
		}
		attempts = append(attempts, attempt)
		metrics.RecordProbe(string(c.name), e.info.Name, attempt.Outcome.String())

		if err != nil {
			if any(b) != nil {
				// the initializer broke its contract; do not leak what it handed back
				closeBackend(l, e.info.Name, b)
			}
			continue
		}

		accepted = append(accepted, newInstance(e.info, b))
		if !o.exclusive {
			break
		}
	}

	switch len(accepted) {
	case 0:
		metrics.RecordResolution(string(c.name), "not_found", time.Since(start))
		l.Info().Int("probed", len(attempts)).Msg("no suitable backend")
		return nil, &NotFoundError{Capability: c.name, Attempts: attempts}
	case 1:
		inst := accepted[0]
		metrics.RecordResolution(string(c.name), "accepted", time.Since(start))
		l.Debug().Str("candidate", inst.info.Name).Str("instance", inst.id).Dur("duration", time.Since(start)).Msg("backend resolved")
		return inst, nil
	default:
		names := make([]string, 0, len(accepted))
		for _, inst := range accepted {
			names = append(names, inst.info.Name)
			if err := inst.Close(); err != nil {
				l.Warn().Str("candidate", inst.info.Name).Err(err).Msg("failed to close ambiguous backend")
			}
		}
		metrics.RecordResolution(string(c.name), "ambiguous", time.Since(start))
		l.Error().Strs("candidates", names).Msg("ambiguous backends accepted the same context")
		return nil, &AmbiguousError{Capability: c.name, Candidates: names}
	}
}

// probe runs one initializer. A panicking initializer counts as failed.
func probe[C any, B Backend](init Initializer[C, B], ctx C, name string) (b B, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("candidate", name).Interface("panic_value", rec).Msg("panic recovered during candidate initialization")
			var zero B
			b, err = zero, fmt.Errorf("initializer panicked: %v", rec)
		}
	}()
	b, err = init(ctx)
	if err == nil && any(b) == nil {
		err = errors.New("initializer returned no backend")
	}
	return b, err
}

func closeBackend(l zerolog.Logger, name string, b Backend) {
	if err := b.Close(); err != nil {
		l.Warn().Str("candidate", name).Err(err).Msg("failed to close backend returned with an error")
	}
}

package capability

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/toolink/backplane/metrics"
)

// Instance is an accepted backend owned by the caller that resolved it.
// It is not safe for concurrent use.
type Instance[B Backend] struct {
	id      string
	info    Info
	backend B
	closed  bool
}

func newInstance[B Backend](info Info, b B) *Instance[B] {
	inst := &Instance[B]{
		id:      uuid.NewString(),
		info:    info,
		backend: b,
	}
	metrics.InstanceOpened(string(info.Capability), info.Name)
	return inst
}

// ID returns a unique identifier of this instance, used in logs.
func (i *Instance[B]) ID() string {
	return i.id
}

// Info returns the metadata of the accepted candidate. It is meant for
// diagnostics; callers should drive the backend only through Backend.
func (i *Instance[B]) Info() Info {
	return i.info
}

// Backend returns the operation table, or the zero value once closed.
func (i *Instance[B]) Backend() B {
	return i.backend
}

// Closed reports whether Close has been called.
func (i *Instance[B]) Closed() bool {
	return i.closed
}

// Close releases the backend. It may be called once; later calls return
// ErrAlreadyClosed without touching the backend.
func (i *Instance[B]) Close() error {
	if i.closed {
		log.Error().Str("capability", string(i.info.Capability)).Str("candidate", i.info.Name).Str("instance", i.id).Msg("instance closed twice")
		return ErrAlreadyClosed
	}
	i.closed = true

	b := i.backend
	var zero B
	i.backend = zero
	metrics.InstanceClosed(string(i.info.Capability), i.info.Name)

	if err := b.Close(); err != nil {
		log.Warn().Str("capability", string(i.info.Capability)).Str("candidate", i.info.Name).Str("instance", i.id).Err(err).Msg("backend close reported an error")
		return err
	}
	log.Debug().Str("capability", string(i.info.Capability)).Str("candidate", i.info.Name).Str("instance", i.id).Msg("instance closed")
	return nil
}

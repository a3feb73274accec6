package partition

import "errors"

// Sentinel error kinds (spec §7). Call sites wrap these with fmt.Errorf's
// %w so errors.Is still matches while the wrapped message carries the
// offending dn/id.
var (
	ErrNotInitialized      = errors.New("partition: not initialized")
	ErrAlreadyInitialized  = errors.New("partition: already initialized")
	ErrNoSuchObject        = errors.New("partition: no such object")
	ErrNoSuchParent        = errors.New("partition: no such parent")
	ErrSchemaViolation     = errors.New("partition: schema violation")
	ErrAliasCycle          = errors.New("partition: alias cycle")
	ErrAliasChain          = errors.New("partition: alias chain")
	ErrAliasToSelf         = errors.New("partition: alias to self")
	ErrAliasExternal       = errors.New("partition: alias target outside partition")
	ErrAliasTargetMissing  = errors.New("partition: alias target does not exist")
	ErrIndexNotFound       = errors.New("partition: index not found")
	ErrIndexInconsistent   = errors.New("partition: index inconsistent")
	ErrIOFailure           = errors.New("partition: io failure")
	ErrUnknownModification = errors.New("partition: unknown modification op")
)

package frame

// VarEnvSuspender is the suspension hand-off to the fallback dynamic-scope
// store: retarget bindings from a live caller frame to the activation record
// of a freshly created resumable block. It is invoked at most once per fresh
// creation and never on the clone path.
type VarEnvSuspender interface {
	// Suspend retargets bindings from the live frame at callerFP (whose
	// locals span callerFrameSize bytes below it) to the new record at
	// dstAR.
	Suspend(callerFP, callerFrameSize, dstAR uint32) error
}

// VarEnvResolver resolves the var-env identity stored in an activation
// record to its store.
type VarEnvResolver interface {
	Lookup(id uint32) (VarEnvSuspender, bool)
}

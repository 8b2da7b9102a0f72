package hotwire

import (
	"errors"
)

var (
	// ErrInvalidMetadata occurs when the ModuleInfo surface is missing, ambiguous or malformed.
	ErrInvalidMetadata = errors.New("invalid module metadata")
	// ErrIllegalIdentifier occurs when a name or build string is empty or starts with a reserved character.
	ErrIllegalIdentifier = errors.New("illegal identifier")
	// ErrUnsupportedSchema occurs when a module requires a newer metadata schema than this loader implements.
	ErrUnsupportedSchema = errors.New("unsupported metadata schema version")
	// ErrHookFailure occurs when a Load, Init or Start hook fails or panics.
	ErrHookFailure = errors.New("lifecycle hook failure")
	// ErrMissingTarget occurs when a declared dependency symbol does not exist on its provider.
	ErrMissingTarget = errors.New("missing dependency target")
	// ErrPatchFailure occurs when a redirection cannot be installed.
	ErrPatchFailure = errors.New("patch application failure")
	// ErrDuplicateModule occurs when a module name is already held by a live module.
	ErrDuplicateModule = errors.New("module already registered")
	// ErrImageLoad occurs when the container cannot produce a module image.
	ErrImageLoad = errors.New("module image load failure")

	// ErrProvidersSealed occurs when a core provider is registered after the first module.
	ErrProvidersSealed = errors.New("core providers are sealed once a module is registered")
	// ErrProviderExists occurs when a core provider name is registered twice.
	ErrProviderExists = errors.New("core provider already registered")
	// ErrActivated occurs when Activate is called more than once.
	ErrActivated = errors.New("loader already activated")
	// ErrModuleNotFound occurs when no live module has the requested name.
	ErrModuleNotFound = errors.New("module not found")

	errUnloading = errors.New("module unloading")
)

// ErrorKind classifies load failures.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindInvalidMetadata
	KindIllegalIdentifier
	KindUnsupportedSchema
	KindHookFailure
	KindMissingTarget
	KindPatchFailure
	KindDuplicateModule
	KindImageLoad
	KindOther
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidMetadata, KindInvalidMetadata},
	{ErrIllegalIdentifier, KindIllegalIdentifier},
	{ErrUnsupportedSchema, KindUnsupportedSchema},
	{ErrHookFailure, KindHookFailure},
	{ErrMissingTarget, KindMissingTarget},
	{ErrPatchFailure, KindPatchFailure},
	{ErrDuplicateModule, KindDuplicateModule},
	{ErrImageLoad, KindImageLoad},
}

// KindOf classifies err. A nil error is KindNone.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindOther
}

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindInvalidMetadata:
		return "InvalidMetadata"
	case KindIllegalIdentifier:
		return "IllegalIdentifier"
	case KindUnsupportedSchema:
		return "UnsupportedSchemaVersion"
	case KindHookFailure:
		return "LifecycleHookFailure"
	case KindMissingTarget:
		return "MissingDependencyTarget"
	case KindPatchFailure:
		return "PatchApplicationFailure"
	case KindDuplicateModule:
		return "DuplicateModule"
	case KindImageLoad:
		return "ImageLoadFailure"
	default:
		return "Other"
	}
}

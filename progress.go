package pkgload

// ProgressEvent reports a step taken by the loader.
type ProgressEvent struct {
	// Stage identifies the step.
	Stage ProgressStage

	// Name is the key of the package the step applies to.
	Name string

	// Path is the path or stream name the package came from, if known.
	Path string
}

// ProgressStage identifies a loader step.
type ProgressStage uint8

// Loader steps.
const (
	// StageReading indicates package bytes are being read from the file reader.
	StageReading ProgressStage = iota

	// StageParsing indicates a package header is being deserialized.
	StageParsing

	// StageInitializing indicates exports are being read and imports linked.
	StageInitializing

	// StageCacheHit indicates a request was served from a registry.
	StageCacheHit

	// StageResolvingImport indicates an imported package is being located.
	StageResolvingImport
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageReading:
		return "reading"
	case StageParsing:
		return "parsing"
	case StageInitializing:
		return "initializing"
	case StageCacheHit:
		return "cache hit"
	case StageResolvingImport:
		return "resolving import"
	default:
		return "unknown"
	}
}

// ProgressFunc receives loader steps.
// Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent)

func (l *Loader) emit(stage ProgressStage, name, path string) {
	if l.progress == nil {
		return
	}
	l.progress(ProgressEvent{Stage: stage, Name: name, Path: path})
}

package model

// Job states
type JobState string

const (
	JobStateCreated    JobState = "created"
	JobStateExtracted  JobState = "extracted"
	JobStateGenerating JobState = "generating"
	JobStateComplete   JobState = "complete"
	JobStateFailed     JobState = "failed"
)

var jobStateOrder = map[JobState]int{
	JobStateCreated:    0,
	JobStateExtracted:  1,
	JobStateGenerating: 2,
	JobStateComplete:   3,
	JobStateFailed:     3,
}

// IsTerminal reports whether no further transition is possible
func (s JobState) IsTerminal() bool {
	return s == JobStateComplete || s == JobStateFailed
}

// CanTransitionTo reports whether moving from s to next keeps the job moving
// forward through created, extracted, generating, then complete or failed.
// complete and failed are only reachable from generating.
func (s JobState) CanTransitionTo(next JobState) bool {
	from, ok := jobStateOrder[s]
	if !ok {
		return false
	}
	to, ok := jobStateOrder[next]
	if !ok || s.IsTerminal() {
		return false
	}
	if next.IsTerminal() {
		return s == JobStateGenerating
	}
	return to > from
}

// Pipeline stages, used to tag failures
type Stage string

const (
	StageExtract     Stage = "extract"
	StageMaterialize Stage = "materialize"
	StageInstall     Stage = "install"
	StageRender      Stage = "render"
	StagePackage     Stage = "package"
)

// Error kinds
type ErrorKind string

const (
	KindExtractionDefault ErrorKind = "ExtractionDefault"
	KindMaterialization   ErrorKind = "MaterializationError"
	KindDependencyInstall ErrorKind = "DependencyInstallFailure"
	KindRender            ErrorKind = "RenderFailure"
	KindNoArtifact        ErrorKind = "NoArtifactProduced"
	KindPackaging         ErrorKind = "PackagingError"
)

// Extraction strategies
type ExtractStrategy string

const (
	StrategyAuto     ExtractStrategy = "auto"
	StrategyText     ExtractStrategy = "text"
	StrategyMetadata ExtractStrategy = "metadata"
)

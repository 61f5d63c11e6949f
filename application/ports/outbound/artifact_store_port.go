package outbound

import "github.com/lzcjsyr/AIGC-Video/domain"

// ArtifactStorePort maps a project's on-disk layout to typed artifacts.
// Inspect is a pure read; writes are atomic (temp file then rename).
type ArtifactStorePort interface {
	// CreateProject scaffolds the directory tree and writes project.json.
	CreateProject(dir string, project domain.Project) error

	// Inspect scans the fixed layout and reports per-stage completion.
	// Present-but-invalid artifacts are reported Missing with a warning.
	Inspect(dir string) (domain.StageCompletion, error)

	ReadProject(dir string) (domain.Project, error)
	WriteProject(dir string, project domain.Project) error

	// ReadDocument returns the accepted source document text; stage 1
	// consumes it on every run, including resumes.
	ReadDocument(dir string) (string, error)
	WriteDocument(dir string, text string) error

	ReadRawScript(dir string) (domain.RawScript, error)
	WriteRawScript(dir string, raw domain.RawScript) error

	ReadScript(dir string) (domain.Script, error)
	WriteScript(dir string, script domain.Script) error

	ReadKeywords(dir string) (domain.Keywords, error)
	WriteKeywords(dir string, kw domain.Keywords) error

	// WriteMedia persists one per-segment artifact under its
	// deterministic index-based name and returns the final path.
	WriteMedia(dir string, ref domain.MediaRef, data []byte) (string, error)
	// MediaPath returns the deterministic path for a per-segment
	// artifact without touching the filesystem.
	MediaPath(dir string, ref domain.MediaRef) string

	// FinalVideoPath is where the composer's output must land.
	FinalVideoPath(dir string) string

	// AcquireLock marks the project as having an in-progress run.
	// It fails when another run holds the marker.
	AcquireLock(dir string, runID string) error
	ReleaseLock(dir string, runID string) error

	// ListProjects enumerates project directories under a workspace root.
	ListProjects(root string) ([]string, error)
}

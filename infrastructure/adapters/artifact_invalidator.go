package adapters

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/lzcjsyr/AIGC-Video/application/ports/outbound"
	"github.com/lzcjsyr/AIGC-Video/domain"
)

type artifactInvalidator struct {
	logger outbound.LoggerPort
}

func NewArtifactInvalidator(logger outbound.LoggerPort) outbound.ArtifactInvalidatorPort {
	return &artifactInvalidator{logger: logger}
}

// Invalidate clears every stage artifact at or above fromStep. Each
// artifact is renamed into a trash directory inside the project before
// anything is deleted, so a crash leaves artifacts either in place or
// in trash, never half-removed in place where Inspect could misread a
// stale file as Complete.
//
// fromStep <= 2 also clears the script, since re-segmenting may change
// the segment count; stages below fromStep are untouched.
func (a *artifactInvalidator) Invalidate(dir string, fromStep domain.Step) error {
	if fromStep < domain.StepSummarize || fromStep > domain.StepCompose {
		return domain.NewValidationError("from_step %d out of range 1..5", fromStep)
	}

	// Sweep trash left behind by an earlier crash before starting a new
	// round; those artifacts were already condemned.
	a.sweepTrash(dir)

	trash := filepath.Join(dir, trashDirPrefix+uuid.NewString())
	if err := os.MkdirAll(trash, 0o755); err != nil {
		return domain.NewIOError("failed to create trash directory", err)
	}

	var targets []string
	textDir := filepath.Join(dir, textDirName)
	if fromStep <= domain.StepSummarize {
		targets = append(targets, filepath.Join(textDir, rawFileName))
	}
	if fromStep <= domain.StepSegment {
		targets = append(targets, filepath.Join(textDir, scriptFileName))
	}
	if fromStep <= domain.StepExtractKeywords {
		targets = append(targets, filepath.Join(textDir, keywordsFileName))
	}
	if fromStep <= domain.StepGenerateMedia {
		targets = append(targets,
			a.mediaFiles(filepath.Join(dir, imagesDirName))...)
		targets = append(targets,
			a.mediaFiles(filepath.Join(dir, voiceDirName))...)
	}
	if fromStep <= domain.StepCompose {
		targets = append(targets, filepath.Join(dir, finalVideoName))
	}

	for _, path := range targets {
		dest := filepath.Join(trash, filepath.Base(filepath.Dir(path))+"_"+filepath.Base(path))
		if err := os.Rename(path, dest); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return domain.NewIOError("failed to move artifact to trash", err)
		}
	}

	if err := os.RemoveAll(trash); err != nil {
		// Artifacts are already out of the stage layout; Inspect will
		// not see them. The leftover trash dir is swept next time.
		a.logger.ErrorWithFields(err, "failed to remove trash directory", map[string]interface{}{
			"trash": trash,
		})
	}
	return nil
}

func (a *artifactInvalidator) mediaFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files
}

func (a *artifactInvalidator) sweepTrash(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), trashDirPrefix) {
			if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
				a.logger.Error(err, "failed to sweep leftover trash directory")
			}
		}
	}
}

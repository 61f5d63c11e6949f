package adapters

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lzcjsyr/AIGC-Video/application/ports/outbound"
	"github.com/lzcjsyr/AIGC-Video/domain"
)

const (
	projectFileName  = "project.json"
	documentFileName = "document.txt"
	textDirName      = "text"
	imagesDirName    = "images"
	voiceDirName     = "voice"
	rawFileName      = "raw.json"
	scriptFileName   = "script.json"
	keywordsFileName = "keywords.json"
	finalVideoName   = "final_video.mp4"
	lockFileName     = ".lock"
	trashDirPrefix   = ".trash-"
)

type artifactStore struct {
	logger outbound.LoggerPort
}

func NewArtifactStore(logger outbound.LoggerPort) outbound.ArtifactStorePort {
	return &artifactStore{logger: logger}
}

func (s *artifactStore) CreateProject(dir string, project domain.Project) error {
	for _, sub := range []string{textDirName, imagesDirName, voiceDirName} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return domain.NewIOError("failed to create project directory", err)
		}
	}
	return s.WriteProject(dir, project)
}

// Inspect scans the fixed layout and reports per-stage completion. It
// never mutates the project directory; present-but-invalid artifacts
// are reported Missing with a distinct warning.
func (s *artifactStore) Inspect(dir string) (domain.StageCompletion, error) {
	completion := domain.StageCompletion{Stages: make(map[domain.Step]domain.StageState)}

	warn := func(stage domain.Step, path, reason string) {
		completion.Warnings = append(completion.Warnings, domain.ArtifactWarning{
			Stage:  stage,
			Path:   path,
			Reason: reason,
		})
		s.logger.WarnWithFields("artifact present but invalid, treating as missing", map[string]interface{}{
			"stage":  stage.String(),
			"path":   path,
			"reason": reason,
		})
	}

	// Stage 1: text/raw.json
	rawPath := filepath.Join(dir, textDirName, rawFileName)
	var raw domain.RawScript
	switch err := readJSONFile(rawPath, &raw); {
	case err == nil && strings.TrimSpace(raw.Content) != "":
		completion.Stages[domain.StepSummarize] = domain.StageState{Status: domain.StageComplete}
	case err == nil:
		warn(domain.StepSummarize, rawPath, "content field is empty")
		completion.Stages[domain.StepSummarize] = domain.StageState{Status: domain.StageMissing}
	case errors.Is(err, os.ErrNotExist):
		completion.Stages[domain.StepSummarize] = domain.StageState{Status: domain.StageMissing}
	default:
		warn(domain.StepSummarize, rawPath, err.Error())
		completion.Stages[domain.StepSummarize] = domain.StageState{Status: domain.StageMissing}
	}

	// Stage 2: text/script.json
	scriptPath := filepath.Join(dir, textDirName, scriptFileName)
	var script domain.Script
	scriptOK := false
	switch err := readJSONFile(scriptPath, &script); {
	case err == nil:
		if reason := validateScript(script); reason == "" {
			scriptOK = true
			completion.Stages[domain.StepSegment] = domain.StageState{Status: domain.StageComplete}
		} else {
			warn(domain.StepSegment, scriptPath, reason)
			completion.Stages[domain.StepSegment] = domain.StageState{Status: domain.StageMissing}
		}
	case errors.Is(err, os.ErrNotExist):
		completion.Stages[domain.StepSegment] = domain.StageState{Status: domain.StageMissing}
	default:
		warn(domain.StepSegment, scriptPath, err.Error())
		completion.Stages[domain.StepSegment] = domain.StageState{Status: domain.StageMissing}
	}

	// Stage 3: text/keywords.json, validated against the script's
	// segment count. Without a valid script there is nothing to align
	// to, so a present keywords file counts as stale.
	kwPath := filepath.Join(dir, textDirName, keywordsFileName)
	var kw domain.Keywords
	switch err := readJSONFile(kwPath, &kw); {
	case err == nil && !scriptOK:
		warn(domain.StepExtractKeywords, kwPath, "keywords present without a valid script")
		completion.Stages[domain.StepExtractKeywords] = domain.StageState{Status: domain.StageMissing}
	case err == nil && len(kw.Segments) != len(script.Segments):
		warn(domain.StepExtractKeywords, kwPath,
			fmt.Sprintf("keyword count %d does not match segment count %d", len(kw.Segments), len(script.Segments)))
		completion.Stages[domain.StepExtractKeywords] = domain.StageState{Status: domain.StageMissing}
	case err == nil:
		completion.Stages[domain.StepExtractKeywords] = domain.StageState{Status: domain.StageComplete}
	case errors.Is(err, os.ErrNotExist):
		completion.Stages[domain.StepExtractKeywords] = domain.StageState{Status: domain.StageMissing}
	default:
		warn(domain.StepExtractKeywords, kwPath, err.Error())
		completion.Stages[domain.StepExtractKeywords] = domain.StageState{Status: domain.StageMissing}
	}

	// Stage 4: images/segment_{i}.png and voice/segment_{i}.wav for
	// every index. Expected count comes from the script; without it the
	// stage cannot be judged and reports Missing.
	if scriptOK {
		n := len(script.Segments)
		state := domain.StageState{Expected: 2 * n}
		for i := 1; i <= n; i++ {
			for _, kind := range []domain.MediaKind{domain.ImageMedia, domain.AudioMedia} {
				ref := domain.MediaRef{Index: i, Kind: kind}
				path := s.MediaPath(dir, ref)
				switch ok, reason := mediaFileValid(path); {
				case ok:
					state.Done++
				case reason != "":
					warn(domain.StepGenerateMedia, path, reason)
					state.Missing = append(state.Missing, ref)
				default:
					state.Missing = append(state.Missing, ref)
				}
			}
		}
		switch {
		case state.Done == state.Expected:
			state.Status = domain.StageComplete
		case state.Done > 0:
			state.Status = domain.StagePartial
		default:
			state.Status = domain.StageMissing
		}
		completion.Stages[domain.StepGenerateMedia] = state
	} else {
		completion.Stages[domain.StepGenerateMedia] = domain.StageState{Status: domain.StageMissing}
	}

	// Stage 5: final_video.mp4
	finalPath := s.FinalVideoPath(dir)
	switch ok, reason := mediaFileValid(finalPath); {
	case ok:
		completion.Stages[domain.StepCompose] = domain.StageState{Status: domain.StageComplete}
	case reason != "":
		warn(domain.StepCompose, finalPath, reason)
		completion.Stages[domain.StepCompose] = domain.StageState{Status: domain.StageMissing}
	default:
		completion.Stages[domain.StepCompose] = domain.StageState{Status: domain.StageMissing}
	}

	return completion, nil
}

func validateScript(script domain.Script) string {
	if len(script.Segments) == 0 {
		return "script has no segments"
	}
	if script.NumSegments != len(script.Segments) {
		return fmt.Sprintf("num_segments %d does not match segment list length %d", script.NumSegments, len(script.Segments))
	}
	for pos, seg := range script.Segments {
		if seg.Index != pos+1 {
			return fmt.Sprintf("segment at position %d has index %d", pos, seg.Index)
		}
		if strings.TrimSpace(seg.Content) == "" {
			return fmt.Sprintf("segment %d has empty content", seg.Index)
		}
	}
	return ""
}

// mediaFileValid reports (true, "") for a usable file, (false, "") when
// absent, and (false, reason) when present but invalid.
func mediaFileValid(path string) (bool, string) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, ""
	}
	if err != nil {
		return false, err.Error()
	}
	if info.Size() == 0 {
		return false, "file is empty"
	}
	return true, ""
}

func (s *artifactStore) ReadProject(dir string) (domain.Project, error) {
	var p domain.Project
	if err := readJSONFile(filepath.Join(dir, projectFileName), &p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, domain.NewValidationError("not a project directory: %s", dir)
		}
		return p, domain.NewCorruptArtifactError(filepath.Join(dir, projectFileName), err.Error())
	}
	return p, nil
}

func (s *artifactStore) WriteProject(dir string, project domain.Project) error {
	return writeJSONAtomic(filepath.Join(dir, projectFileName), project)
}

func (s *artifactStore) ReadDocument(dir string) (string, error) {
	path := filepath.Join(dir, documentFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", domain.NewValidationError("project has no source document: %s", dir)
		}
		return "", domain.NewIOError("failed to read source document", err)
	}
	return string(data), nil
}

func (s *artifactStore) WriteDocument(dir string, text string) error {
	return writeFileAtomic(filepath.Join(dir, documentFileName), []byte(text))
}

func (s *artifactStore) ReadRawScript(dir string) (domain.RawScript, error) {
	var raw domain.RawScript
	path := filepath.Join(dir, textDirName, rawFileName)
	if err := readJSONFile(path, &raw); err != nil {
		return raw, domain.NewCorruptArtifactError(path, err.Error())
	}
	return raw, nil
}

func (s *artifactStore) WriteRawScript(dir string, raw domain.RawScript) error {
	return writeJSONAtomic(filepath.Join(dir, textDirName, rawFileName), raw)
}

func (s *artifactStore) ReadScript(dir string) (domain.Script, error) {
	var script domain.Script
	path := filepath.Join(dir, textDirName, scriptFileName)
	if err := readJSONFile(path, &script); err != nil {
		return script, domain.NewCorruptArtifactError(path, err.Error())
	}
	if reason := validateScript(script); reason != "" {
		return script, domain.NewCorruptArtifactError(path, reason)
	}
	return script, nil
}

func (s *artifactStore) WriteScript(dir string, script domain.Script) error {
	return writeJSONAtomic(filepath.Join(dir, textDirName, scriptFileName), script)
}

func (s *artifactStore) ReadKeywords(dir string) (domain.Keywords, error) {
	var kw domain.Keywords
	path := filepath.Join(dir, textDirName, keywordsFileName)
	if err := readJSONFile(path, &kw); err != nil {
		return kw, domain.NewCorruptArtifactError(path, err.Error())
	}
	return kw, nil
}

func (s *artifactStore) WriteKeywords(dir string, kw domain.Keywords) error {
	return writeJSONAtomic(filepath.Join(dir, textDirName, keywordsFileName), kw)
}

func (s *artifactStore) MediaPath(dir string, ref domain.MediaRef) string {
	if ref.Kind == domain.ImageMedia {
		return filepath.Join(dir, imagesDirName, fmt.Sprintf("segment_%d.png", ref.Index))
	}
	return filepath.Join(dir, voiceDirName, fmt.Sprintf("segment_%d.wav", ref.Index))
}

func (s *artifactStore) WriteMedia(dir string, ref domain.MediaRef, data []byte) (string, error) {
	path := s.MediaPath(dir, ref)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

func (s *artifactStore) FinalVideoPath(dir string) string {
	return filepath.Join(dir, finalVideoName)
}

// AcquireLock creates the run marker with O_EXCL so two runs can never
// both think they own the project directory.
func (s *artifactStore) AcquireLock(dir string, runID string) error {
	path := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return domain.NewValidationError("a run is already active on %s", dir)
		}
		return domain.NewIOError("failed to create lock marker", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Error(cerr, "failed to close lock marker")
		}
	}()
	if _, err := f.WriteString(runID + "\n"); err != nil {
		return domain.NewIOError("failed to write lock marker", err)
	}
	return nil
}

func (s *artifactStore) ReleaseLock(dir string, runID string) error {
	path := filepath.Join(dir, lockFileName)
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return domain.NewIOError("failed to read lock marker", err)
	}
	if strings.TrimSpace(string(content)) != runID {
		return domain.NewValidationError("lock marker held by another run")
	}
	if err := os.Remove(path); err != nil {
		return domain.NewIOError("failed to remove lock marker", err)
	}
	return nil
}

func (s *artifactStore) ListProjects(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, domain.NewIOError("failed to read workspace root", err)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		candidate := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(candidate, projectFileName)); err == nil {
			dirs = append(dirs, candidate)
		}
	}
	return dirs, nil
}

func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return domain.NewIOError("failed to marshal artifact", err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes to a temp file in the target directory and
// renames it into place, so readers never observe a torn artifact.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.NewIOError("failed to create artifact directory", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return domain.NewIOError("failed to create temp file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return domain.NewIOError("failed to write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return domain.NewIOError("failed to close temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return domain.NewIOError("failed to rename temp file into place", err)
	}
	return nil
}

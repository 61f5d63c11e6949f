package adapters

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lzcjsyr/AIGC-Video/application/ports/outbound"
	"github.com/lzcjsyr/AIGC-Video/domain"
)

type ffmpegVideoComposer struct {
	logger outbound.LoggerPort
}

// NewFFmpegVideoComposer renders one clip per segment (still image plus
// narration audio), concatenates the clips and optionally mixes in
// background music. The final file is written to a temp path and
// renamed into place, so a failed composition never leaves a torn
// final video.
func NewFFmpegVideoComposer(logger outbound.LoggerPort) outbound.VideoComposerPort {
	return &ffmpegVideoComposer{logger: logger}
}

func compositionError(msg string, err error) error {
	return domain.NewServiceError(true, "composition failed: "+msg, err)
}

func (v *ffmpegVideoComposer) Compose(ctx context.Context, req outbound.ComposeVideoRequest) (string, error) {
	if len(req.Segments) == 0 {
		return "", domain.NewValidationError("nothing to compose: no segments with media")
	}

	workDir, err := os.MkdirTemp("", "compose-*")
	if err != nil {
		return "", domain.NewIOError("failed to create composition workspace", err)
	}
	defer func() {
		if rerr := os.RemoveAll(workDir); rerr != nil {
			v.logger.Error(rerr, "failed to remove composition workspace")
		}
	}()

	segments := make([]domain.SegmentMedia, len(req.Segments))
	copy(segments, req.Segments)
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Segment.Index < segments[j].Segment.Index
	})

	clipPaths := make([]string, 0, len(segments))
	for _, seg := range segments {
		clipPath := filepath.Join(workDir, fmt.Sprintf("clip_%d.mp4", seg.Segment.Index))
		if err := v.renderClip(ctx, seg, clipPath, req.EnableSubtitles); err != nil {
			return "", err
		}
		clipPaths = append(clipPaths, clipPath)
	}

	concatPath := filepath.Join(workDir, "concat.mp4")
	if err := v.concatenate(ctx, workDir, clipPaths, concatPath); err != nil {
		return "", err
	}

	assembled := concatPath
	if req.BGMPath != "" {
		mixedPath := filepath.Join(workDir, "mixed.mp4")
		if err := v.mixBGM(ctx, concatPath, req.BGMPath, mixedPath); err != nil {
			// Music is an enhancement; ship the video without it.
			v.logger.Error(err, "background music mixing failed, using plain narration")
		} else {
			assembled = mixedPath
		}
	}

	tmpFinal := req.OutputPath + ".tmp-" + uuid.NewString()
	if err := copyFile(assembled, tmpFinal); err != nil {
		return "", err
	}
	if err := os.Rename(tmpFinal, req.OutputPath); err != nil {
		_ = os.Remove(tmpFinal)
		return "", domain.NewIOError("failed to move final video into place", err)
	}

	return req.OutputPath, nil
}

func (v *ffmpegVideoComposer) renderClip(ctx context.Context, seg domain.SegmentMedia, outputPath string, subtitles bool) error {
	args := []string{
		"-y",
		"-loop", "1",
		"-i", seg.ImagePath,
		"-i", seg.AudioPath,
		"-c:v", "libx264",
		"-tune", "stillimage",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-shortest",
	}
	if subtitles {
		args = append(args, "-vf", subtitleFilter(seg.Segment.Content))
	}
	args = append(args, outputPath)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		v.logger.ErrorWithFields(err, "error rendering segment clip", map[string]interface{}{
			"segment": seg.Segment.Index,
			"output":  string(out),
		})
		return compositionError(fmt.Sprintf("rendering segment %d", seg.Segment.Index), err)
	}
	return nil
}

func (v *ffmpegVideoComposer) concatenate(ctx context.Context, workDir string, clipPaths []string, outputPath string) error {
	listPath := filepath.Join(workDir, "clips.txt")
	listFile, err := os.Create(listPath)
	if err != nil {
		return domain.NewIOError("failed to create clip list file", err)
	}

	writer := bufio.NewWriter(listFile)
	for _, p := range clipPaths {
		if _, err := writer.WriteString("file '" + p + "'\n"); err != nil {
			_ = listFile.Close()
			return domain.NewIOError("failed to write clip list file", err)
		}
	}
	if err := writer.Flush(); err != nil {
		_ = listFile.Close()
		return domain.NewIOError("failed to flush clip list file", err)
	}
	if err := listFile.Close(); err != nil {
		return domain.NewIOError("failed to close clip list file", err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", "-y", "-f", "concat", "-safe", "0",
		"-i", listPath, "-c", "copy", outputPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		v.logger.ErrorWithFields(err, "error concatenating clips", map[string]interface{}{
			"output": string(out),
		})
		return compositionError("concatenating clips", err)
	}
	return nil
}

func (v *ffmpegVideoComposer) mixBGM(ctx context.Context, videoPath, bgmPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-i", videoPath,
		"-stream_loop", "-1", "-i", bgmPath,
		"-filter_complex", "[1:a]volume=0.2[bgm];[0:a][bgm]amix=inputs=2:duration=first[a]",
		"-map", "0:v", "-map", "[a]",
		"-c:v", "copy", "-c:a", "aac",
		"-shortest",
		outputPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		v.logger.ErrorWithFields(err, "error mixing background music", map[string]interface{}{
			"output": string(out),
		})
		return compositionError("mixing background music", err)
	}
	return nil
}

func subtitleFilter(text string) string {
	escaped := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	).Replace(text)
	return fmt.Sprintf("drawtext=text='%s':fontsize=28:fontcolor=white:borderw=2:x=(w-text_w)/2:y=h-120", escaped)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return domain.NewIOError("failed to read assembled video", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return domain.NewIOError("failed to write final video", err)
	}
	return nil
}

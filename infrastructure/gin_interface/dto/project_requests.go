package dto

import "github.com/lzcjsyr/AIGC-Video/domain"

type CreateProjectRequest struct {
	DocumentText string `json:"document_text" binding:"required"`
	TargetLength int    `json:"target_length" binding:"required"`
	NumSegments  int    `json:"num_segments" binding:"required"`
	LLMModel     string `json:"llm_model" binding:"required"`
	ImageModel   string `json:"image_model" binding:"required"`
	Voice        string `json:"voice" binding:"required"`
	ImageSize    string `json:"image_size"`
}

type CreateProjectResponse struct {
	ProjectDir string `json:"project_dir"`
}

type RunRequest struct {
	ProjectDir      string `json:"project_dir" binding:"required"`
	Mode            string `json:"mode"`
	EnableSubtitles bool   `json:"enable_subtitles"`
	BGMPath         string `json:"bgm_path"`
}

type RerunProjectRequest struct {
	ProjectDir      string `json:"project_dir" binding:"required"`
	FromStep        int    `json:"from_step" binding:"required"`
	Mode            string `json:"mode"`
	EnableSubtitles bool   `json:"enable_subtitles"`
	BGMPath         string `json:"bgm_path"`
}

type AbortRequest struct {
	ProjectDir string `json:"project_dir" binding:"required"`
}

type StatusResponse struct {
	CurrentStep      int               `json:"current_step"`
	StepStatus       string            `json:"step_status"`
	ProgressFraction float64           `json:"progress_fraction"`
	LastError        *domain.ErrorInfo `json:"last_error,omitempty"`
	Warnings         []WarningDTO      `json:"warnings,omitempty"`
}

type WarningDTO struct {
	Stage  int    `json:"stage"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

type ListProjectsResponse struct {
	Projects []string `json:"projects"`
}

// NewStatusResponse flattens the domain status for transport.
func NewStatusResponse(status domain.ProjectStatus) StatusResponse {
	resp := StatusResponse{
		CurrentStep:      int(status.CurrentStep),
		StepStatus:       string(status.StepStatus),
		ProgressFraction: status.ProgressFraction,
		LastError:        status.LastError,
	}
	for _, w := range status.Warnings {
		resp.Warnings = append(resp.Warnings, WarningDTO{
			Stage:  int(w.Stage),
			Path:   w.Path,
			Reason: w.Reason,
		})
	}
	return resp
}

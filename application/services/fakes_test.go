package services

import (
	"context"
	"sync"

	"github.com/lzcjsyr/AIGC-Video/application/ports/outbound"
	"github.com/lzcjsyr/AIGC-Video/domain"
)

type nopLogger struct{}

func (nopLogger) Info(string)                                           {}
func (nopLogger) InfoWithFields(string, map[string]interface{})         {}
func (nopLogger) Error(error, string)                                   {}
func (nopLogger) ErrorWithFields(error, string, map[string]interface{}) {}
func (nopLogger) Debug(string)                                          {}
func (nopLogger) DebugWithFields(string, map[string]interface{})        {}
func (nopLogger) Warn(string)                                           {}
func (nopLogger) WarnWithFields(string, map[string]interface{})         {}

// goDispatcher runs each task on its own goroutine; the coordinator's
// semaphore still bounds how many run at once.
type goDispatcher struct{}

func (goDispatcher) Submit(task func()) error {
	go task()
	return nil
}

type fakeRegistry struct {
	text   outbound.TextGeneratorPort
	image  outbound.ImageGeneratorPort
	speech outbound.SpeechSynthesizerPort
}

func (r *fakeRegistry) TextGenerator(model string) (outbound.TextGeneratorPort, error) {
	if r.text == nil {
		return nil, domain.NewValidationError("no text generator registered for model %q", model)
	}
	return r.text, nil
}

func (r *fakeRegistry) ImageGenerator(model string) (outbound.ImageGeneratorPort, error) {
	if r.image == nil {
		return nil, domain.NewValidationError("no image generator registered for model %q", model)
	}
	return r.image, nil
}

func (r *fakeRegistry) SpeechSynthesizer(model string) (outbound.SpeechSynthesizerPort, error) {
	if r.speech == nil {
		return nil, domain.NewValidationError("no speech synthesizer registered for model %q", model)
	}
	return r.speech, nil
}

type fakeTextGenerator struct {
	mu      sync.Mutex
	calls   []outbound.GenerateTextRequest
	respond func(req outbound.GenerateTextRequest) (string, error)
}

func (g *fakeTextGenerator) GenerateText(_ context.Context, req outbound.GenerateTextRequest) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()
	return g.respond(req)
}

func (g *fakeTextGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fakeImageGenerator struct {
	mu      sync.Mutex
	prompts []string
	respond func(prompt string) ([]byte, error)
}

func (g *fakeImageGenerator) GenerateImage(_ context.Context, req outbound.GenerateImageRequest) ([]byte, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, req.Prompt)
	g.mu.Unlock()
	if g.respond != nil {
		return g.respond(req.Prompt)
	}
	return []byte("png"), nil
}

func (g *fakeImageGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type fakeSpeechSynthesizer struct {
	mu    sync.Mutex
	texts []string
	// respond overrides the default success; keyed on the segment text.
	respond func(text string) ([]byte, error)
}

func (s *fakeSpeechSynthesizer) SynthesizeSpeech(_ context.Context, req outbound.SynthesizeSpeechRequest) ([]byte, error) {
	s.mu.Lock()
	s.texts = append(s.texts, req.Text)
	s.mu.Unlock()
	if s.respond != nil {
		return s.respond(req.Text)
	}
	return []byte("wav"), nil
}

func (s *fakeSpeechSynthesizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.texts)
}

type fakeComposer struct {
	mu    sync.Mutex
	calls []outbound.ComposeVideoRequest
	fail  error
	write func(path string) error
}

func (f *fakeComposer) Compose(_ context.Context, req outbound.ComposeVideoRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	if f.write != nil {
		if err := f.write(req.OutputPath); err != nil {
			return "", err
		}
	}
	return req.OutputPath, nil
}

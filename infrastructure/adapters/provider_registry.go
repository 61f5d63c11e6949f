package adapters

import (
	"sync"

	"github.com/lzcjsyr/AIGC-Video/application/ports/outbound"
	"github.com/lzcjsyr/AIGC-Video/domain"
)

// providerRegistry maps model identifiers to capability adapters.
// Selection is a lookup keyed on the identifier a project recorded at
// creation, never conditional branching at the call sites.
type providerRegistry struct {
	mu     sync.RWMutex
	text   map[string]outbound.TextGeneratorPort
	image  map[string]outbound.ImageGeneratorPort
	speech map[string]outbound.SpeechSynthesizerPort
}

func NewProviderRegistry() *providerRegistry {
	return &providerRegistry{
		text:   make(map[string]outbound.TextGeneratorPort),
		image:  make(map[string]outbound.ImageGeneratorPort),
		speech: make(map[string]outbound.SpeechSynthesizerPort),
	}
}

var _ outbound.ProviderRegistryPort = (*providerRegistry)(nil)

func (r *providerRegistry) RegisterTextGenerator(model string, g outbound.TextGeneratorPort) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text[model] = g
}

func (r *providerRegistry) RegisterImageGenerator(model string, g outbound.ImageGeneratorPort) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.image[model] = g
}

func (r *providerRegistry) RegisterSpeechSynthesizer(model string, s outbound.SpeechSynthesizerPort) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speech[model] = s
}

func (r *providerRegistry) TextGenerator(model string) (outbound.TextGeneratorPort, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if g, ok := r.text[model]; ok {
		return g, nil
	}
	return nil, domain.NewValidationError("no text generator registered for model %q", model)
}

func (r *providerRegistry) ImageGenerator(model string) (outbound.ImageGeneratorPort, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if g, ok := r.image[model]; ok {
		return g, nil
	}
	return nil, domain.NewValidationError("no image generator registered for model %q", model)
}

func (r *providerRegistry) SpeechSynthesizer(model string) (outbound.SpeechSynthesizerPort, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.speech[model]; ok {
		return s, nil
	}
	return nil, domain.NewValidationError("no speech synthesizer registered for model %q", model)
}

package outbound

// ProviderRegistryPort resolves a model identifier to the adapter
// implementing the requested capability. Selection is a lookup, never
// string matching at call sites; an unknown identifier is a validation
// error.
type ProviderRegistryPort interface {
	TextGenerator(model string) (TextGeneratorPort, error)
	ImageGenerator(model string) (ImageGeneratorPort, error)
	SpeechSynthesizer(model string) (SpeechSynthesizerPort, error)
}

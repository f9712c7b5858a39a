package core

import (
	"context"
	"fmt"
	"log"

	"github.com/thinhkhuat/scribe/internal/provider"
)

// TranslatorAgent translates the assembled document. Translation is
// best-effort: callers fall back to the untranslated document when it
// fails.
type TranslatorAgent struct {
	invoker Invoker
	logger  *log.Logger
}

func NewTranslatorAgent(invoker Invoker, logger *log.Logger) *TranslatorAgent {
	return &TranslatorAgent{invoker: invoker, logger: logger}
}

func (a *TranslatorAgent) Run(ctx context.Context, language, document string) (string, error) {
	res := a.invoker.Generate(ctx, provider.GenRequest{
		System: translatorSystemPrompt,
		Prompt: fmt.Sprintf(translatorUserPrompt, language, document),
	})
	if !res.Success {
		return "", fmt.Errorf("translation to %s failed after %d attempts: %w", language, res.AttemptCount, res.Err)
	}
	a.logger.Printf("document translated to %s via %s", language, res.ProviderUsed)
	return res.Text, nil
}

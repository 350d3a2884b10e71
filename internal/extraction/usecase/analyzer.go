package usecase

import (
	"context"
	"log"

	ingestdomain "github.com/kowsik11/abhivan/internal/ingest/domain"
)

// Generator is a text-in/text-out model call, e.g. *gemini.GeminiService.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Analyzer turns a message into a raw model response, and asks for repairs.
type Analyzer struct {
	generator Generator
}

func NewAnalyzer(generator Generator) *Analyzer {
	return &Analyzer{generator: generator}
}

func (a *Analyzer) Analyze(ctx context.Context, msg *ingestdomain.Message) (string, error) {
	log.Printf("[Extraction] Analyzing message %s", msg.ID)
	return a.generator.Generate(ctx, AnalysisPrompt(msg))
}

func (a *Analyzer) Repair(ctx context.Context, msg *ingestdomain.Message, problem string) (string, error) {
	log.Printf("[Extraction] Requesting repair for message %s: %s", msg.ID, problem)
	return a.generator.Generate(ctx, RepairPrompt(msg, problem))
}

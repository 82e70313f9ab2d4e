// Package pipeline enriches fetched pages before persistence. Stages are a
// closed set composed in a fixed, explicit order.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kbryner/webfrontier/internal/metrics"
)

// Record is the unit of work flowing through the pipeline. Stages read the
// fields earlier stages populated and add their own.
type Record struct {
	URL  string
	Body []byte

	// Populated by the content cleaner.
	Title         string
	Description   string
	Text          string
	ContentLength int
	Links         []string
	HasH1         bool

	// Populated by the keyword extractor.
	Keywords      []string
	KeywordScores map[string]float64

	// Populated by the link analyzer.
	InternalLinks []string
	ExternalLinks []string
	LinkScores    map[string]float64

	// Populated by the content classifier.
	ContentType  string
	QualityScore float64
	WordCount    int
}

// Stage transforms a record in place.
type Stage interface {
	Name() string
	Transform(ctx context.Context, rec *Record) error
}

// Pipeline runs records through its stages in order.
type Pipeline struct {
	stages []Stage
	logger *zap.Logger
}

// New composes the default stage order: clean, keywords, links, classify.
func New(logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		stages: []Stage{
			&Cleaner{},
			&KeywordExtractor{},
			&LinkAnalyzer{},
			&Classifier{},
		},
		logger: logger,
	}
}

// Run processes the record through every stage. The first stage error aborts
// the run; processing time is observed either way.
func (p *Pipeline) Run(ctx context.Context, rec *Record) error {
	start := time.Now()
	defer func() {
		metrics.ObserveProcessing(time.Since(start))
	}()

	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline canceled: %w", err)
		}
		if err := stage.Transform(ctx, rec); err != nil {
			p.logger.Warn("pipeline stage failed",
				zap.String("stage", stage.Name()),
				zap.String("url", rec.URL),
				zap.Error(err),
			)
			return fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
	}
	return nil
}

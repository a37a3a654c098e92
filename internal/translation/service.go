package translation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/loqa-translate/translation"

// Service is the backend of POST /translate. With a nil provider it serves
// mock translations tagged mock_unavailable.
type Service struct {
	provider Provider
	logger   *slog.Logger
	tracer   trace.Tracer
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

func NewService(provider Provider, logger *slog.Logger) *Service {
	s := &Service{
		provider: provider,
		logger:   logger.With(slog.String("component", "translation-service")),
		tracer:   otel.Tracer(instrumentationName),
	}
	meter := otel.Meter(instrumentationName)
	var err error
	if s.requests, err = meter.Int64Counter("loqa_translate.requests",
		metric.WithDescription("Translation requests by result source")); err != nil {
		s.logger.Warn("failed to create request counter", slogError(err))
	}
	if s.latency, err = meter.Float64Histogram("loqa_translate.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Translation latency")); err != nil {
		s.logger.Warn("failed to create latency histogram", slogError(err))
	}
	return s
}

// Available reports whether a real provider is configured.
func (s *Service) Available() bool {
	return s.provider != nil
}

// Translate never fails: provider errors degrade to a mock result tagged
// mock_api_error.
func (s *Service) Translate(ctx context.Context, req Request) Result {
	ctx, span := s.tracer.Start(ctx, "translation.translate", trace.WithAttributes(
		attribute.String("source_lang", req.SourceLang),
		attribute.String("target_lang", req.TargetLang),
	))
	defer span.End()

	start := time.Now()
	res := s.translate(ctx, req, span)
	elapsed := time.Since(start)

	attrs := metric.WithAttributes(attribute.String("translation_source", res.Source.String()))
	if s.requests != nil {
		s.requests.Add(ctx, 1, attrs)
	}
	if s.latency != nil {
		s.latency.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	}
	span.SetAttributes(attribute.String("translation_source", res.Source.String()))
	return res
}

func (s *Service) translate(ctx context.Context, req Request, span trace.Span) Result {
	sourceBase := BaseCode(req.SourceLang)
	targetBase := BaseCode(req.TargetLang)

	if s.provider == nil {
		s.logger.Info("translation provider unavailable, using mock", slog.String("text", req.Text))
		if sourceBase == targetBase {
			return Result{TranslatedText: req.Text, Source: SourceMockNoTranslationNeeded}
		}
		return Result{
			TranslatedText: fmt.Sprintf("Mock: \"%s\" (to %s)", req.Text, targetBase),
			Source:         SourceMockUnavailable,
		}
	}

	if sourceBase == targetBase {
		return Result{TranslatedText: req.Text, Source: SourceNoTranslationNeeded}
	}

	translated, err := s.provider.Translate(ctx, req.Text, sourceBase, targetBase)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("translation provider failed, falling back to mock", slogError(err))
		return Result{
			TranslatedText: fmt.Sprintf("Mock (API Error): \"%s\" (to %s)", req.Text, targetBase),
			Source:         SourceMockAPIError,
		}
	}
	s.logger.Info("translated",
		slog.String("source", s.provider.Source().String()),
		slog.String("source_lang", sourceBase),
		slog.String("target_lang", targetBase))
	return Result{TranslatedText: translated, Source: s.provider.Source()}
}

// Close releases the provider.
func (s *Service) Close() error {
	if s.provider == nil {
		return nil
	}
	return s.provider.Close()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

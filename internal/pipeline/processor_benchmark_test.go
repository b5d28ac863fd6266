package pipeline

import (
	"context"
	"testing"

	"github.com/dunamismax/webopt/internal/domain"
)

func BenchmarkProcessorResizeJPEG(b *testing.B) {
	benchmarkProcessor(b, buildTestJPEG(b, 1920, 1280), "bench.jpg")
}

func BenchmarkProcessorPassThroughPNG(b *testing.B) {
	benchmarkProcessor(b, buildTestPNG(b, 640, 480), "bench.png")
}

func benchmarkProcessor(b *testing.B, source []byte, name string) {
	processor, err := NewProcessor(discardEmitter{}, domain.DefaultTransformParams())
	if err != nil {
		b.Fatalf("new processor: %v", err)
	}
	processor.fetcher = staticFetcher{data: source}

	req := Request{Name: name, SourcePath: "ignored/" + name}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := processor.Process(context.Background(), req); err != nil {
			b.Fatalf("process: %v", err)
		}
	}
}

type staticFetcher struct {
	data []byte
}

func (f staticFetcher) Fetch(_ context.Context, _ Request) ([]byte, error) {
	return f.data, nil
}

type discardEmitter struct{}

func (discardEmitter) Prepare(context.Context) error {
	return nil
}

func (discardEmitter) Emit(_ context.Context, req Request, _ Output) (string, error) {
	return req.Name, nil
}

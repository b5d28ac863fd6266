package output

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dunamismax/webopt/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestFileDoneWithoutColors(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPrinter(&out, &errOut, false)

	p.FileDone(domain.FileResult{
		Name:       "shoe.jpg",
		Status:     domain.FileStatusSucceeded,
		OrigWidth:  4000,
		OrigHeight: 2000,
		Width:      1080,
		Height:     540,
	})
	p.FileDone(domain.FileResult{
		Name:   "broken.png",
		Status: domain.FileStatusFailed,
		Reason: domain.ReasonDecode,
		Error:  "decode image: png: invalid format",
	})

	assert.Equal(t, "[OK] Optimized: shoe.jpg (Original: 4000x2000, New: 1080x540)\n", out.String())
	assert.Equal(t, "[ERROR] Error processing broken.png: decode image: png: invalid format\n", errOut.String())
}

func TestFileDoneConcurrentLinesStayWhole(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPrinter(&out, &errOut, false)

	const n = 64
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.FileDone(domain.FileResult{
				Name:       fmt.Sprintf("img%02d.jpg", i),
				Status:     domain.FileStatusSucceeded,
				OrigWidth:  20,
				OrigHeight: 20,
				Width:      10,
				Height:     10,
			})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	assert.Len(t, lines, n)
	for _, line := range lines {
		assert.Regexp(t, `^\[OK\] Optimized: img\d{2}\.jpg \(Original: 20x20, New: 10x10\)$`, line)
	}
	assert.Empty(t, errOut.String())
}

func TestSummaryListsFailures(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(&out, &out, false)

	var s domain.Summary
	s.Add(domain.FileResult{Name: "a.jpg", Status: domain.FileStatusSucceeded})
	s.Add(domain.FileResult{Name: "bad.jpg", Status: domain.FileStatusFailed, Reason: domain.ReasonDecode, Error: "corrupt"})
	s.Duration = 1500 * time.Millisecond
	p.Summary(s)

	text := out.String()
	assert.Contains(t, text, "Finished: 1 optimized, 1 failed of 2")
	assert.Contains(t, text, "bad.jpg")
	assert.Contains(t, text, "corrupt")
}

func TestSummaryAllSucceeded(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(&out, &out, false)

	var s domain.Summary
	s.Add(domain.FileResult{Name: "a.jpg", Status: domain.FileStatusSucceeded})
	p.Summary(s)

	assert.Contains(t, out.String(), "All images have been optimized!")
}

func TestResultsTable(t *testing.T) {
	var out bytes.Buffer
	ResultsTable(&out, []domain.FileResult{
		{Name: "a.jpg", Status: domain.FileStatusSucceeded, OrigWidth: 4000, OrigHeight: 2000, Width: 1080, Height: 540, SourceBytes: 900, OutputBytes: 300},
		{Name: "b.png", Status: domain.FileStatusFailed, Reason: domain.ReasonIO},
	})

	text := out.String()
	assert.Contains(t, text, "4000x2000")
	assert.Contains(t, text, "1080x540")
	assert.Contains(t, text, "900 -> 300")
	assert.Contains(t, text, "b.png")
}

package pipeline

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/dunamismax/webopt/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProcessor_FileInTransformFileOut(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "wide.jpg")
	outputDir := filepath.Join(tmp, "out", "web_ready")

	srcBytes := buildTestJPEG(t, 240, 120)
	require.NoError(t, os.WriteFile(inputPath, srcBytes, 0o644))

	processor, err := NewLocalProcessor(outputDir, domain.TransformParams{MaxResolution: 80, Quality: 75})
	require.NoError(t, err)
	require.NoError(t, processor.Prepare(context.Background()))

	result, err := processor.Process(context.Background(), Request{Name: "wide.jpg", SourcePath: inputPath})
	require.NoError(t, err)

	assert.Equal(t, domain.FileStatusSucceeded, result.Status)
	assert.Equal(t, FormatJPEG, result.Format)
	assert.Equal(t, filepath.Join(outputDir, "wide.jpg"), result.OutputPath)
	assert.Equal(t, 240, result.OrigWidth)
	assert.Equal(t, 120, result.OrigHeight)
	assert.Equal(t, 80, result.Width)
	assert.Equal(t, 40, result.Height)
	assert.Equal(t, len(srcBytes), result.SourceBytes)
	assert.True(t, result.Resized())

	verifyImageSize(t, result.OutputPath, "jpeg", 80, 40)
}

func TestLocalProcessor_PNGPassThroughKeepsContainer(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "small.PNG")
	require.NoError(t, os.WriteFile(inputPath, buildTestPNG(t, 64, 48), 0o644))

	processor, err := NewLocalProcessor(filepath.Join(tmp, "out"), domain.DefaultTransformParams())
	require.NoError(t, err)
	require.NoError(t, processor.Prepare(context.Background()))

	result, err := processor.Process(context.Background(), Request{Name: "small.PNG", SourcePath: inputPath})
	require.NoError(t, err)
	assert.False(t, result.Resized())
	verifyImageSize(t, result.OutputPath, "png", 64, 48)
}

func TestLocalProcessor_CorruptFileIsTaggedDecode(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "broken.jpg")
	require.NoError(t, os.WriteFile(inputPath, []byte("not a jpeg"), 0o644))

	processor, err := NewLocalProcessor(filepath.Join(tmp, "out"), domain.DefaultTransformParams())
	require.NoError(t, err)
	require.NoError(t, processor.Prepare(context.Background()))

	result, err := processor.Process(context.Background(), Request{Name: "broken.jpg", SourcePath: inputPath})
	require.ErrorIs(t, err, domain.ErrDecode)
	assert.Equal(t, domain.FileStatusFailed, result.Status)
	assert.Equal(t, domain.ReasonDecode, result.Reason)
	assert.Equal(t, "broken.jpg", result.Name)

	_, statErr := os.Stat(filepath.Join(tmp, "out", "broken.jpg"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLocalProcessor_MissingFileIsTaggedIO(t *testing.T) {
	processor, err := NewLocalProcessor(t.TempDir(), domain.DefaultTransformParams())
	require.NoError(t, err)

	result, err := processor.Process(context.Background(), Request{Name: "gone.png", SourcePath: "/nonexistent/gone.png"})
	require.ErrorIs(t, err, domain.ErrIO)
	assert.Equal(t, domain.ReasonIO, result.Reason)
}

func TestNewProcessorRejectsInvalidParams(t *testing.T) {
	_, err := NewLocalProcessor(t.TempDir(), domain.TransformParams{MaxResolution: 1080, Quality: 0})
	require.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestLocalFileEmitterPrepareFailsOnFile(t *testing.T) {
	tmp := t.TempDir()
	blocker := filepath.Join(tmp, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := LocalFileEmitter{OutputDir: filepath.Join(blocker, "out")}.Prepare(context.Background())
	require.ErrorIs(t, err, domain.ErrIO)
}

func verifyImageSize(t *testing.T, path, wantFormat string, wantW, wantH int) {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	img, format, err := image.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, wantFormat, format)
	assert.Equal(t, wantW, img.Bounds().Dx())
	assert.Equal(t, wantH, img.Bounds().Dy())
}

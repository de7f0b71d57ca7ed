package service

import (
	"ai_interview_backend/internal/util"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDetector 固定返回给定数量人脸的检测桩
type stubDetector struct {
	faces int
}

func (d stubDetector) Enabled() bool { return true }

func (d stubDetector) Detect(gray *image.Gray) []image.Rectangle {
	bounds := gray.Bounds()
	rects := make([]image.Rectangle, 0, d.faces)
	for i := 0; i < d.faces; i++ {
		rects = append(rects, image.Rect(i*10, 0, i*10+bounds.Dx()/2, bounds.Dy()/2))
	}
	return rects
}

// encodeFrame 生成指定亮度的纯色 PNG 帧
func encodeFrame(t *testing.T, brightness uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 320, 180))
	for i := range img.Pix {
		img.Pix[i] = brightness
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestAnalyzeFirstFrameHasZeroMotion(t *testing.T) {
	analyzer := NewFrameAnalyzer(stubDetector{faces: 1})

	analysis, err := analyzer.Analyze(encodeFrame(t, 128), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, analysis.FacesCount)
	assert.Zero(t, analysis.MotionScore)
	assert.True(t, analysis.ChecksEnabled)
	assert.NotNil(t, analysis.SmallFrame)
}

func TestAnalyzeMotionScore(t *testing.T) {
	analyzer := NewFrameAnalyzer(stubDetector{faces: 1})

	first, err := analyzer.Analyze(encodeFrame(t, 0), nil)
	require.NoError(t, err)

	// 相同帧之间没有运动
	same, err := analyzer.Analyze(encodeFrame(t, 0), first.SmallFrame)
	require.NoError(t, err)
	assert.Zero(t, same.MotionScore)

	// 全黑到全白是满幅运动
	jump, err := analyzer.Analyze(encodeFrame(t, 255), first.SmallFrame)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, jump.MotionScore, 1e-9)
}

func TestAnalyzeFaceSignature(t *testing.T) {
	analyzer := NewFrameAnalyzer(stubDetector{faces: 1})

	analysis, err := analyzer.Analyze(encodeFrame(t, 200), nil)
	require.NoError(t, err)
	require.Len(t, analysis.FaceSignature, signatureBins)

	// L2 归一化
	var norm float64
	for _, v := range analysis.FaceSignature {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)

	// 多脸帧不产生签名
	multiAnalyzer := NewFrameAnalyzer(stubDetector{faces: 2})
	analysis, err = multiAnalyzer.Analyze(encodeFrame(t, 200), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, analysis.FacesCount)
	assert.Nil(t, analysis.FaceSignature)
}

func TestAnalyzeInvalidPayload(t *testing.T) {
	analyzer := NewFrameAnalyzer(stubDetector{faces: 1})

	_, err := analyzer.Analyze([]byte("not an image"), nil)
	assert.ErrorIs(t, err, util.ErrInvalidFramePayload)

	_, err = analyzer.Analyze(nil, nil)
	assert.ErrorIs(t, err, util.ErrInvalidFramePayload)
}

func TestAnalyzeDegradedMode(t *testing.T) {
	analyzer := NewFrameAnalyzer(NoopFaceDetector{})

	// 检测能力缺失时不解码，恒报单脸零运动
	analysis, err := analyzer.Analyze([]byte("whatever"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, analysis.FacesCount)
	assert.Zero(t, analysis.MotionScore)
	assert.False(t, analysis.ChecksEnabled)
	assert.Nil(t, analysis.FaceSignature)
}

func TestCompareSignatures(t *testing.T) {
	a := []float64{1, 0, 0}
	b := []float64{1, 0, 0}
	c := []float64{0, 1, 0}

	sim, ok := CompareSignatures(a, b)
	require.True(t, ok)
	assert.InDelta(t, 1.0, sim, 1e-9)

	sim, ok = CompareSignatures(a, c)
	require.True(t, ok)
	assert.InDelta(t, 0.0, sim, 1e-9)

	// 未定义的情况：缺失、长度不一致、零模长
	_, ok = CompareSignatures(nil, b)
	assert.False(t, ok)
	_, ok = CompareSignatures(a, []float64{1, 0})
	assert.False(t, ok)
	_, ok = CompareSignatures(a, []float64{0, 0, 0})
	assert.False(t, ok)
}

func TestResizeGrayDimensions(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 320, 180))
	src.SetGray(0, 0, color.Gray{Y: 255})

	dst := resizeGray(src, motionCols, motionRows)
	assert.Equal(t, motionCols, dst.Bounds().Dx())
	assert.Equal(t, motionRows, dst.Bounds().Dy())
	assert.Equal(t, uint8(255), dst.GrayAt(0, 0).Y)
}

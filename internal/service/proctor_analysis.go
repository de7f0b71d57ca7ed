package service

import (
	"ai_interview_backend/internal/util"
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	pigo "github.com/esimov/pigo/core"
)

const (
	signatureBins = 32
	faceCropSize  = 64
	motionCols    = 160
	motionRows    = 90
)

// FaceDetector 人脸检测能力接口。运行时可能没有可用的级联模型，
// 此时注入 NoopFaceDetector，分析结果降级但请求不失败。
type FaceDetector interface {
	Detect(gray *image.Gray) []image.Rectangle
	Enabled() bool
}

// PigoFaceDetector 基于 pigo 级联分类器的检测实现
type PigoFaceDetector struct {
	classifier *pigo.Pigo
}

func NewPigoFaceDetector(cascadePath string) (*PigoFaceDetector, error) {
	cascade, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, err
	}
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, err
	}
	return &PigoFaceDetector{classifier: classifier}, nil
}

func (d *PigoFaceDetector) Enabled() bool { return true }

func (d *PigoFaceDetector) Detect(gray *image.Gray) []image.Rectangle {
	bounds := gray.Bounds()
	rows, cols := bounds.Dy(), bounds.Dx()

	params := pigo.CascadeParams{
		MinSize:     50,
		MaxSize:     cols,
		ShiftFactor: 0.1,
		ScaleFactor: 1.2,
		ImageParams: pigo.ImageParams{
			Pixels: gray.Pix,
			Rows:   rows,
			Cols:   cols,
			Dim:    gray.Stride,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, 0.2)

	var faces []image.Rectangle
	for _, det := range dets {
		if det.Q < 5.0 {
			continue
		}
		half := det.Scale / 2
		faces = append(faces, image.Rect(det.Col-half, det.Row-half, det.Col+half, det.Row+half))
	}
	return faces
}

// NoopFaceDetector 检测能力缺失时的透传实现：恒报一张脸、不产生签名
type NoopFaceDetector struct{}

func (NoopFaceDetector) Enabled() bool { return false }

func (NoopFaceDetector) Detect(gray *image.Gray) []image.Rectangle {
	return []image.Rectangle{gray.Bounds()}
}

// FrameAnalysis 单帧分析结果
type FrameAnalysis struct {
	FacesCount    int
	MotionScore   float64
	FaceSignature []float64 // 仅单脸时存在
	SmallFrame    *image.Gray
	ChecksEnabled bool
}

// FrameAnalyzer 解码帧并提取人脸数、运动分与人脸签名
type FrameAnalyzer struct {
	detector FaceDetector
}

func NewFrameAnalyzer(detector FaceDetector) *FrameAnalyzer {
	return &FrameAnalyzer{detector: detector}
}

func (a *FrameAnalyzer) ChecksEnabled() bool {
	return a.detector.Enabled()
}

// Analyze 解码并分析一帧；previous 为同会话上一帧的降采样缓存，可为 nil。
// 无法解码的负载返回 ErrInvalidFramePayload，属于客户端错误而非监考信号。
func (a *FrameAnalyzer) Analyze(raw []byte, previous *image.Gray) (*FrameAnalysis, error) {
	if !a.detector.Enabled() {
		// 能力降级：恒报单脸零运动，调用方据此跳过完整性检查
		return &FrameAnalysis{FacesCount: 1, MotionScore: 0, ChecksEnabled: false}, nil
	}

	if len(raw) == 0 {
		return nil, util.ErrInvalidFramePayload
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, util.ErrInvalidFramePayload
	}

	gray := toGray(img)
	faces := a.detector.Detect(gray)

	analysis := &FrameAnalysis{
		FacesCount:    len(faces),
		SmallFrame:    resizeGray(gray, motionCols, motionRows),
		ChecksEnabled: true,
	}
	if len(faces) == 1 {
		analysis.FaceSignature = faceSignature(gray, faces[0])
	}
	analysis.MotionScore = motionScore(previous, analysis.SmallFrame)

	return analysis, nil
}

func toGray(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok {
		return gray
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, img.At(x, y))
		}
	}
	return gray
}

// resizeGray 最近邻缩放，足够用于运动估计和签名直方图
func resizeGray(src *image.Gray, width, height int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, width, height))
	srcBounds := src.Bounds()
	srcW, srcH := srcBounds.Dx(), srcBounds.Dy()
	if srcW == 0 || srcH == 0 {
		return dst
	}
	for y := 0; y < height; y++ {
		sy := srcBounds.Min.Y + y*srcH/height
		for x := 0; x < width; x++ {
			sx := srcBounds.Min.X + x*srcW/width
			dst.SetGray(x, y, src.GrayAt(sx, sy))
		}
	}
	return dst
}

// motionScore 与上一帧降采样图的平均绝对像素差，归一化到 [0,1]；
// 没有上一帧时为 0。
func motionScore(previous, current *image.Gray) float64 {
	if previous == nil || current == nil {
		return 0
	}
	if len(previous.Pix) != len(current.Pix) || len(current.Pix) == 0 {
		return 0
	}
	var sum float64
	for i := range current.Pix {
		diff := int(current.Pix[i]) - int(previous.Pix[i])
		if diff < 0 {
			diff = -diff
		}
		sum += float64(diff)
	}
	return sum / float64(len(current.Pix)) / 255.0
}

// faceSignature 人脸区域缩放到 64x64 后的 32 桶亮度直方图，L2 归一化。
// 仅用于同会话的身份连续性对比，不做跨会话识别。
func faceSignature(gray *image.Gray, face image.Rectangle) []float64 {
	face = face.Intersect(gray.Bounds())
	if face.Dx() <= 0 || face.Dy() <= 0 {
		return nil
	}

	roi := image.NewGray(image.Rect(0, 0, face.Dx(), face.Dy()))
	for y := 0; y < face.Dy(); y++ {
		for x := 0; x < face.Dx(); x++ {
			roi.SetGray(x, y, gray.GrayAt(face.Min.X+x, face.Min.Y+y))
		}
	}
	resized := resizeGray(roi, faceCropSize, faceCropSize)

	hist := make([]float64, signatureBins)
	for _, p := range resized.Pix {
		hist[int(p)*signatureBins/256]++
	}

	var norm float64
	for _, v := range hist {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range hist {
			hist[i] /= norm
		}
	}
	return hist
}

// CompareSignatures 两个签名的余弦相似度。任一为空、长度不一致或
// 模长为零时返回 (0,false)，视为相似度未定义。
func CompareSignatures(a, b []float64) (float64, bool) {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom <= 1e-8 {
		return 0, false
	}
	return dot / denom, true
}

package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/maauso/freecut/internal/frame"
)

// Static errors for media operations.
var (
	// ErrInvalidDimensions is returned when a capture width is not positive.
	ErrInvalidDimensions = errors.New("invalid dimensions: width must be positive")
	// ErrInvalidDuration is returned when a probed or requested duration is not positive.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrNoVideoStream is returned when the probed file has no video stream.
	ErrNoVideoStream = errors.New("no video stream found")
	// ErrNoFrame is returned when ffmpeg produced no image for a capture.
	ErrNoFrame = errors.New("no frame decoded")
	// ErrUnsupportedFormat is returned for an unknown output container.
	ErrUnsupportedFormat = errors.New("unsupported output format")
)

// Output containers understood by Trim.
const (
	FormatMP4 = "mp4"
	FormatGIF = "gif"
)

// gifFilterGraph produces a palette-optimised GIF at a moderate size.
const gifFilterGraph = "fps=10,scale=480:-1:flags=lanczos,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse"

// TrimOptions describes one trim transcode.
type TrimOptions struct {
	// Input is the source media path.
	Input string
	// Output is the destination path; its parent directory must exist.
	Output string
	// Start is the segment start in seconds.
	Start float64
	// Duration is the segment length in seconds.
	Duration float64
	// Format is FormatMP4 or FormatGIF.
	Format string
	// FilterGraph optionally replaces the default video filter graph.
	FilterGraph string
}

// FFmpegProcessor implements Prober, FrameExtractor and Trimmer using the
// ffmpeg and ffprobe CLIs.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
	// defaultFPS is used when the stream frame rate cannot be read.
	defaultFPS float64
}

// Compile-time checks that FFmpegProcessor implements the media ports.
var (
	_ Prober         = (*FFmpegProcessor)(nil)
	_ FrameExtractor = (*FFmpegProcessor)(nil)
	_ Trimmer        = (*FFmpegProcessor)(nil)
)

// Option configures an FFmpegProcessor.
type Option func(*FFmpegProcessor)

// WithFFprobePath sets the ffprobe binary location.
func WithFFprobePath(path string) Option {
	return func(p *FFmpegProcessor) {
		if path != "" {
			p.ffprobePath = path
		}
	}
}

// WithDefaultFPS sets the frame rate assumed when probing cannot detect one.
func WithDefaultFPS(fps float64) Option {
	return func(p *FFmpegProcessor) {
		if fps > 0 {
			p.defaultFPS = fps
		}
	}
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegProcessor(ffmpegPath string, opts ...Option) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	p := &FFmpegProcessor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: "ffprobe",
		defaultFPS:  frame.DefaultFPS,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Available reports whether both binaries can be found.
func (p *FFmpegProcessor) Available() bool {
	if _, err := exec.LookPath(p.ffmpegPath); err != nil {
		return false
	}
	_, err := exec.LookPath(p.ffprobePath)
	return err == nil
}

// ExtractFrame decodes the frame at t seconds as a JPEG scaled to width.
func (p *FFmpegProcessor) ExtractFrame(ctx context.Context, path string, t float64, width int) ([]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("%w: width=%d", ErrInvalidDimensions, width)
	}
	if t < 0 {
		t = 0
	}

	args := []string{
		"-v", "error",
		"-ss", formatSeconds(t), // Input seek: fast, lands on the displayed frame
		"-i", path,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"-",
	}

	var stdout bytes.Buffer
	if err := p.runFFmpeg(ctx, args, &stdout); err != nil {
		return nil, err
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w at %.3fs", ErrNoFrame, t)
	}
	return stdout.Bytes(), nil
}

// Trim cuts the requested segment into opts.Output.
// MP4 output is re-encoded with libx264/aac; GIF output goes through a
// palette filter graph.
func (p *FFmpegProcessor) Trim(ctx context.Context, opts TrimOptions, progress func(outSeconds float64)) error {
	if opts.Duration <= 0 {
		return fmt.Errorf("%w: got %.3f", ErrInvalidDuration, opts.Duration)
	}

	args := []string{
		"-y",                            // Overwrite output file
		"-ss", formatSeconds(opts.Start), // Seek before input for speed
		"-i", opts.Input,
		"-t", formatSeconds(opts.Duration),
		"-progress", "pipe:1", // Machine-readable progress on stdout
		"-nostats",
	}

	switch opts.Format {
	case FormatMP4:
		if opts.FilterGraph != "" {
			args = append(args, "-vf", opts.FilterGraph)
		}
		args = append(args,
			"-c:v", "libx264", // Video codec
			"-preset", "fast", // Encoding speed preset
			"-crf", "23", // Quality (lower = better)
			"-pix_fmt", "yuv420p", // Pixel format for compatibility
			"-c:a", "aac", // Audio codec
			"-b:a", "128k", // Audio bitrate
			"-movflags", "+faststart",
		)
	case FormatGIF:
		graph := opts.FilterGraph
		if graph == "" {
			graph = gifFilterGraph
		}
		args = append(args,
			"-filter_complex", graph,
			"-loop", "0",
		)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, opts.Format)
	}
	args = append(args, opts.Output)

	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanProgress(pr, progress)
	}()

	err := p.runFFmpeg(ctx, args, pw)
	_ = pw.Close()
	<-done

	if err != nil {
		_ = os.Remove(opts.Output)
		return err
	}
	return nil
}

// scanProgress reads ffmpeg "-progress" key=value lines and reports the
// encoded output time. The reader is always drained.
func scanProgress(r io.Reader, progress func(float64)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if progress == nil {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		// out_time_ms is reported in microseconds despite its name.
		if key != "out_time_us" && key != "out_time_ms" {
			continue
		}
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			continue
		}
		progress(float64(us) / 1e6)
	}
	_, _ = io.Copy(io.Discard, r)
}

// runFFmpeg executes ffmpeg with the given arguments, streaming stdout to
// the optional writer, and returns an error containing stderr output if the
// command fails.
func (p *FFmpegProcessor) runFFmpeg(ctx context.Context, args []string, stdout io.Writer) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if stdout != nil {
		cmd.Stdout = stdout
	}

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Duration     string `json:"duration"`
}

type ffprobeFormat struct {
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// Probe runs ffprobe on path and builds a Handle from the first video stream.
func (p *FFmpegProcessor) Probe(ctx context.Context, path string) (*Handle, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	h, err := parseProbe(stdout.Bytes(), p.defaultFPS)
	if err != nil {
		return nil, err
	}
	h.Path = path
	return h, nil
}

// parseProbe converts ffprobe JSON into a Handle.
func parseProbe(output []byte, defaultFPS float64) (*Handle, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var video *ffprobeStream
	for i := range probe.Streams {
		if probe.Streams[i].CodecType == "video" {
			video = &probe.Streams[i]
			break
		}
	}
	if video == nil {
		return nil, ErrNoVideoStream
	}

	h := &Handle{
		Width:      video.Width,
		Height:     video.Height,
		VideoCodec: strings.ToUpper(video.CodecName),
	}

	h.Duration = parseFloat(probe.Format.Duration)
	if h.Duration <= 0 {
		h.Duration = parseFloat(video.Duration)
	}
	if h.Duration <= 0 {
		return nil, fmt.Errorf("%w: ffprobe reported %q", ErrInvalidDuration, probe.Format.Duration)
	}

	if size, err := strconv.ParseInt(probe.Format.Size, 10, 64); err == nil {
		h.Size = size
	}

	fps := parseRate(video.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(video.RFrameRate)
	}
	// Containers sometimes report timebase-like rates (e.g. 90000/1).
	if fps <= 0 || fps > 240 {
		fps = defaultFPS
		h.FrameRateEstimated = true
	}
	h.FrameRate = fps

	return h, nil
}

// parseRate parses ffprobe "num/den" rates such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return parseFloat(s)
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"reelpipe/internal/fingerprint"
	"reelpipe/internal/logging"
	"reelpipe/internal/phash"
	"reelpipe/internal/services"
	"reelpipe/internal/stage"
)

const (
	processedName = "processed.mp4"
	frameName     = "frame.png"
	// ThumbnailName is the still written beside the processed media.
	ThumbnailName  = "thumbnail.jpg"
	thumbnailWidth = 480
)

// Request identifies the media to transform.
type Request struct {
	ItemID     int64
	PayloadRef string
	// Target is the account credited in the overlay.
	Target string
}

// Result is the output of a transform. ThumbnailRef is empty when no
// thumbnail could be written.
type Result struct {
	ProcessedRef string
	ThumbnailRef string
	Fingerprint  fingerprint.Fingerprint
}

// Engine converts raw media into the publishable format and fingerprints it.
type Engine interface {
	Transform(ctx context.Context, req Request) (Result, error)
}

// Branding controls what is added around and on top of the source clip.
// Intro and outro clips are joined only when the files exist and must carry
// an audio track.
type Branding struct {
	Credit        bool
	SubscribeText string
	FontFile      string
	Intro         string
	Outro         string
}

type commandRunner func(ctx context.Context, name string, args ...string) error

// FFmpegEngine re-encodes media to a padded vertical frame with ffmpeg,
// applies Branding and hashes a still taken FrameOffset seconds into the
// source clip.
type FFmpegEngine struct {
	Binary      string
	StagingDir  string
	Width       int
	Height      int
	FrameOffset float64
	Branding    Branding

	logger *slog.Logger
	run    commandRunner
	hash   func(path string) (fingerprint.Fingerprint, error)
}

// NewFFmpegEngine constructs an engine writing into stagingDir.
func NewFFmpegEngine(binary, stagingDir string, width, height int, frameOffset float64, logger *slog.Logger) *FFmpegEngine {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &FFmpegEngine{
		Binary:      binary,
		StagingDir:  stagingDir,
		Width:       width,
		Height:      height,
		FrameOffset: frameOffset,
		logger:      logging.NewComponentLogger(logger, "ffmpeg"),
		run:         defaultCommandRunner,
		hash:        phash.FromFile,
	}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (e *FFmpegEngine) WithCommandRunner(r commandRunner) {
	if e != nil && r != nil {
		e.run = r
	}
}

// Transform writes <staging>/<item>/processed.mp4 and a thumbnail, and
// fingerprints it. The fingerprint frame and the thumbnail are taken from the
// source clip, never from a branded intro or outro.
func (e *FFmpegEngine) Transform(ctx context.Context, req Request) (Result, error) {
	if err := stage.RequireFile("transform", "input", req.PayloadRef); err != nil {
		return Result{}, err
	}
	workDir := filepath.Join(e.StagingDir, strconv.FormatInt(req.ItemID, 10))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "transform", "staging", "create work directory", err)
	}
	logger := logging.WithContext(ctx, e.logger)

	clip := filepath.Join(workDir, ".clip.tmp.mp4")
	defer os.Remove(clip)
	logger.Debug("executing ffmpeg",
		logging.String("input", req.PayloadRef),
		logging.String("output", clip),
		logging.Int("width", e.Width),
		logging.Int("height", e.Height),
	)
	if err := e.run(ctx, e.Binary, e.encodeArgs(req.PayloadRef, clip, req.Target)...); err != nil {
		return Result{}, e.toolError("encode", err)
	}

	frame := filepath.Join(workDir, frameName)
	if err := e.run(ctx, e.Binary, e.frameArgs(clip, frame)...); err != nil {
		return Result{}, e.toolError("frame", err)
	}
	fp, err := e.hash(frame)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "transform", "fingerprint", "hash frame", err)
	}
	_ = os.Remove(frame)

	result := Result{Fingerprint: fp}
	thumbnail := filepath.Join(workDir, ThumbnailName)
	if err := e.run(ctx, e.Binary, e.thumbnailArgs(clip, thumbnail)...); err != nil {
		if ctx.Err() != nil {
			return Result{}, e.toolError("thumbnail", err)
		}
		logging.WarnWithContext(logger, "thumbnail not generated", "thumbnail_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "item is published without a thumbnail"),
		)
	} else {
		result.ThumbnailRef = thumbnail
	}

	processed := filepath.Join(workDir, processedName)
	if err := e.brand(ctx, logger, clip, processed); err != nil {
		return Result{}, err
	}
	result.ProcessedRef = processed
	return result, nil
}

// brand joins the configured intro and outro around clip and writes the
// result to processed. A failed join falls back to the unbranded clip.
func (e *FFmpegEngine) brand(ctx context.Context, logger *slog.Logger, clip, processed string) error {
	clips := make([]string, 0, 3)
	if intro := e.brandingClip(logger, "intro", e.Branding.Intro); intro != "" {
		clips = append(clips, intro)
	}
	clips = append(clips, clip)
	if outro := e.brandingClip(logger, "outro", e.Branding.Outro); outro != "" {
		clips = append(clips, outro)
	}

	source := clip
	if len(clips) > 1 {
		joined := filepath.Join(filepath.Dir(processed), ".joined.tmp.mp4")
		defer os.Remove(joined)
		switch err := e.run(ctx, e.Binary, e.concatArgs(clips, joined)...); {
		case err == nil:
			source = joined
		case ctx.Err() != nil:
			return e.toolError("concat", err)
		default:
			logging.WarnWithContext(logger, "branded intro/outro not joined", "branding_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "branded clips need a video and an audio track"),
				logging.String(logging.FieldImpact, "item is published without intro/outro"),
			)
		}
	}
	if err := os.Rename(source, processed); err != nil {
		return services.Wrap(services.ErrExternalTool, "transform", "encode", "ffmpeg produced no output", err)
	}
	return nil
}

func (e *FFmpegEngine) brandingClip(logger *slog.Logger, kind, path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		logging.WarnWithContext(logger, "branded "+kind+" unavailable", "branding_missing",
			logging.String("path", path),
			logging.String(logging.FieldErrorHint, "fix transform.branded_"+kind+" or clear it"),
		)
		return ""
	}
	return path
}

func (e *FFmpegEngine) scaleFilter() string {
	w, h := e.Width, e.Height
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		w, h, w, h,
	)
}

func (e *FFmpegEngine) encodeArgs(input, output, target string) []string {
	filters := []string{e.scaleFilter()}
	if e.Branding.Credit {
		if account := strings.TrimPrefix(strings.TrimSpace(target), "@"); account != "" {
			filters = append(filters, e.drawtext("Credit: @"+account, "white", "black", 3, e.Height/40, "32", "h-th-64"))
		}
	}
	if text := strings.TrimSpace(e.Branding.SubscribeText); text != "" {
		filters = append(filters, e.drawtext(text, "red", "white", 2, e.Height/48, "w-tw-32", "64"))
	}
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", input,
		"-vf", strings.Join(filters, ","),
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "23",
		"-c:a", "aac", "-b:a", "128k",
		"-movflags", "+faststart",
		output,
	}
}

// drawtext renders text literally; quotes and backslashes are replaced
// because they cannot survive filtergraph quoting.
func (e *FFmpegEngine) drawtext(text, color, border string, borderWidth, size int, x, y string) string {
	text = strings.NewReplacer("'", "\u2019", "\\", "").Replace(text)
	opts := []string{
		"expansion=none",
		"text='" + text + "'",
		"fontcolor=" + color,
		"fontsize=" + strconv.Itoa(max(size, 8)),
		"borderw=" + strconv.Itoa(borderWidth),
		"bordercolor=" + border,
		"x=" + x,
		"y=" + y,
	}
	if font := strings.TrimSpace(e.Branding.FontFile); font != "" {
		opts = append(opts, "fontfile='"+font+"'")
	}
	return "drawtext=" + strings.Join(opts, ":")
}

func (e *FFmpegEngine) concatArgs(clips []string, output string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	var graph, labels strings.Builder
	for i, input := range clips {
		args = append(args, "-i", input)
		fmt.Fprintf(&graph, "[%d:v]%s,fps=30,format=yuv420p[v%d];", i, e.scaleFilter(), i)
		fmt.Fprintf(&graph, "[%d:a]aresample=48000,aformat=channel_layouts=stereo[a%d];", i, i)
		fmt.Fprintf(&labels, "[v%d][a%d]", i, i)
	}
	fmt.Fprintf(&graph, "%sconcat=n=%d:v=1:a=1[v][a]", labels.String(), len(clips))
	return append(args,
		"-filter_complex", graph.String(),
		"-map", "[v]", "-map", "[a]",
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "23",
		"-c:a", "aac", "-b:a", "128k",
		"-movflags", "+faststart",
		output,
	)
}

func (e *FFmpegEngine) frameArgs(input, output string) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(e.FrameOffset, 'f', 3, 64),
		"-i", input,
		"-frames:v", "1",
		output,
	}
}

func (e *FFmpegEngine) thumbnailArgs(input, output string) []string {
	height := thumbnailWidth * e.Height / e.Width
	height += height % 2
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(e.FrameOffset, 'f', 3, 64),
		"-i", input,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:%d", thumbnailWidth, height),
		"-q:v", "3",
		output,
	}
}

func (e *FFmpegEngine) toolError(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return services.Wrap(services.ErrTimeout, "transform", operation, "ffmpeg interrupted", err)
	}
	return services.Wrap(services.ErrExternalTool, "transform", operation, "ffmpeg failed", err)
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

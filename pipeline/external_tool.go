package pipeline

import (
	"context"
	"strconv"

	"github.com/capsulabs/capsule-pipeline/subprocess"
)

// ExternalTool wraps the subprocess.Runner with one method per external
// tool subcommand (§6.1), so that no other package in this module builds
// its argv by hand (§9's redesign note: the external CLI coupling is
// encapsulated behind a single module with four production-facing
// operations, plus the auxiliary conversion subcommands they share).
type ExternalTool struct {
	runner *subprocess.Runner
}

func NewExternalTool(runner *subprocess.Runner) *ExternalTool {
	return &ExternalTool{runner: runner}
}

// ProduceGos runs `produce gos -c {capsuleID} -g {gosIndex}` with the
// descriptor JSON on stdin, with its working directory set to the
// capsule's hydrated local root (§4.6.1, §6.1).
func (t *ExternalTool) ProduceGos(ctx context.Context, requestID, dir, capsuleID string, gosIndex int, stdin []byte, onSpawned func(pid int), onLine subprocess.LineFunc) (subprocess.Result, error) {
	argv := []string{"produce", "gos", "-c", capsuleID, "-g", strconv.Itoa(gosIndex)}
	return t.runner.RunIn(ctx, requestID, dir, argv, stdin, onSpawned, onLine)
}

// ProduceCapsule runs `produce capsule -c {capsuleID}` with the descriptor
// JSON on stdin, with its working directory set to the capsule's hydrated
// local root (§4.6.2, §6.1).
func (t *ExternalTool) ProduceCapsule(ctx context.Context, requestID, dir, capsuleID string, stdin []byte, onSpawned func(pid int), onLine subprocess.LineFunc) (subprocess.Result, error) {
	argv := []string{"produce", "capsule", "-c", capsuleID}
	return t.runner.RunIn(ctx, requestID, dir, argv, stdin, onSpawned, onLine)
}

// Publish runs `publish -i {input} -o {output} -c {capsuleID} [-p]` with
// the structure JSON on stdin; -p is passed iff prompt_subtitles is set on
// the capsule (§4.6.3, §6.1).
func (t *ExternalTool) Publish(ctx context.Context, requestID string, input, output, capsuleID string, promptSubtitles bool, stdin []byte, onSpawned func(pid int), onLine subprocess.LineFunc) (subprocess.Result, error) {
	argv := []string{"publish", "-i", input, "-o", output, "-c", capsuleID}
	if promptSubtitles {
		argv = append(argv, "-p")
	}
	return t.runner.Run(ctx, requestID, argv, stdin, onSpawned, onLine)
}

// Duration runs `duration -f {path}` (§4.6.2, §6.1).
func (t *ExternalTool) Duration(ctx context.Context, requestID, path string, onLine subprocess.LineFunc) (subprocess.Result, error) {
	argv := []string{"duration", "-f", path}
	return t.runner.Run(ctx, requestID, argv, nil, nil, onLine)
}

// ConvertPDF2Webp runs `convert pdf2webp -i {input} -o {output}` for slide
// conversion (§6.1).
func (t *ExternalTool) ConvertPDF2Webp(ctx context.Context, requestID, input, output string, onLine subprocess.LineFunc) (subprocess.Result, error) {
	argv := []string{"convert", "pdf2webp", "-i", input, "-o", output}
	return t.runner.Run(ctx, requestID, argv, nil, nil, onLine)
}

// ConvertRecord runs `convert record -i {input} -o {output}` for
// record-pointer conversion (§6.1).
func (t *ExternalTool) ConvertRecord(ctx context.Context, requestID, input, output string, onLine subprocess.LineFunc) (subprocess.Result, error) {
	argv := []string{"convert", "record", "-i", input, "-o", output}
	return t.runner.Run(ctx, requestID, argv, nil, nil, onLine)
}

// ConvertVideo runs `convert video -i {input} -o {output}`, the transcode
// used by transcode_extra (§4.6.4, §6.1).
func (t *ExternalTool) ConvertVideo(ctx context.Context, requestID, input, output string, onSpawned func(pid int), onLine subprocess.LineFunc) (subprocess.Result, error) {
	argv := []string{"convert", "video", "-i", input, "-o", output}
	return t.runner.Run(ctx, requestID, argv, nil, onSpawned, onLine)
}

// ConvertAudio runs `convert audio -i {input} -o {output}` (§6.1).
func (t *ExternalTool) ConvertAudio(ctx context.Context, requestID, input, output string, onLine subprocess.LineFunc) (subprocess.Result, error) {
	argv := []string{"convert", "audio", "-i", input, "-o", output}
	return t.runner.Run(ctx, requestID, argv, nil, nil, onLine)
}

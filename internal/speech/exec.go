package speech

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"nyaymitra/client/internal/fault"
	"nyaymitra/client/internal/remote"
)

const (
	espeakDefaultWPM   = 175
	espeakDefaultPitch = 50
)

// ExecSynthesizer speaks through an espeak-ng compatible binary.
type ExecSynthesizer struct {
	path string
}

// NewExecSynthesizer resolves command on PATH. A missing binary means the
// capability is unavailable.
func NewExecSynthesizer(command string) (*ExecSynthesizer, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("%w: no speech synthesizer configured", fault.ErrUnsupportedCapability)
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found: %v", fault.ErrUnsupportedCapability, command, err)
	}
	return &ExecSynthesizer{path: path}, nil
}

// Voices lists the installed voices.
func (s *ExecSynthesizer) Voices(ctx context.Context) ([]Voice, error) {
	out, err := exec.CommandContext(ctx, s.path, "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}
	return parseVoices(out), nil
}

// Speak plays u and returns when playback ends. Cancelling ctx kills the process.
func (s *ExecSynthesizer) Speak(ctx context.Context, u Utterance) error {
	cmd := exec.CommandContext(ctx, s.path, speakArgs(u)...)
	cmd.Stdin = strings.NewReader(u.Text)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("speak: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func speakArgs(u Utterance) []string {
	voice := strings.ToLower(u.Lang)
	if u.Voice != nil {
		voice = u.Voice.ID
	}
	args := []string{"-v", voice}
	if u.Rate > 0 {
		args = append(args, "-s", strconv.Itoa(int(u.Rate*espeakDefaultWPM+0.5)))
	}
	if u.Pitch > 0 {
		pitch := int(u.Pitch*espeakDefaultPitch + 0.5)
		if pitch > 99 {
			pitch = 99
		}
		args = append(args, "-p", strconv.Itoa(pitch))
	}
	return append(args, "--stdin")
}

// parseVoices reads the table printed by "espeak-ng --voices":
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  hi              --/M      Hindi              inc/hi
func parseVoices(out []byte) []Voice {
	var voices []Voice
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		if _, err := strconv.Atoi(fields[0]); err != nil {
			continue
		}
		voices = append(voices, Voice{
			ID:   fields[1],
			Name: strings.ReplaceAll(fields[3], "_", " "),
			Lang: fields[1],
		})
	}
	return voices
}

// ExecRecognizer captures one utterance through an external transcription
// command and returns its standard output as the transcript. The command
// line may contain {lang}, replaced by the requested BCP 47 tag.
type ExecRecognizer struct {
	path string
	args []string
}

// NewExecRecognizer parses commandLine and resolves its binary.
func NewExecRecognizer(commandLine string) (*ExecRecognizer, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no speech recognizer configured", fault.ErrUnsupportedCapability)
	}
	path, err := exec.LookPath(fields[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found: %v", fault.ErrUnsupportedCapability, fields[0], err)
	}
	return &ExecRecognizer{path: path, args: fields[1:]}, nil
}

// Listen runs the recognizer once.
func (r *ExecRecognizer) Listen(ctx context.Context, lang remote.Language) (string, error) {
	tag := Locale(lang).String()
	args := make([]string, len(r.args))
	for i, a := range r.args {
		args[i] = strings.ReplaceAll(a, "{lang}", tag)
	}

	out, err := exec.CommandContext(ctx, r.path, args...).Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("recognize speech: %w", err)
	}
	transcript := strings.TrimSpace(string(out))
	if transcript == "" {
		return "", fmt.Errorf("recognize speech: empty transcript")
	}
	return transcript, nil
}

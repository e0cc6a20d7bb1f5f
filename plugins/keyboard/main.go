// Package main provides a keyboard plugin that types each confirmed word
// into the focused application. It uses AppleScript on macOS and xdotool
// on Linux.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Event    string          `json:"event"`
	Word     string          `json:"word"`
	Sentence string          `json:"sentence"`
	Config   json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is read from the manifest's config block.
type Config struct {
	// Suffix is typed after every word. Defaults to a single space.
	Suffix *string `json:"suffix"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Event != "confirmed" {
		writeSuccessResponse(nil)
		return
	}

	text, err := textFor(req)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	name, args, err := typeCommand(runtime.GOOS, text)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}
	if output, err := exec.Command(name, args...).CombinedOutput(); err != nil {
		writeErrorResponse(fmt.Sprintf("%s failed: %v: %s", name, err, output))
		return
	}

	data, _ := json.Marshal(map[string]string{"typed": text})
	writeSuccessResponse(data)
}

// textFor returns the word followed by the configured suffix.
func textFor(req Request) (string, error) {
	if req.Word == "" {
		return "", fmt.Errorf("word is required")
	}

	suffix := " "
	if len(req.Config) > 0 {
		var cfg Config
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return "", fmt.Errorf("failed to parse config: %w", err)
		}
		if cfg.Suffix != nil {
			suffix = *cfg.Suffix
		}
	}
	return req.Word + suffix, nil
}

// typeCommand returns the command that types text on goos.
func typeCommand(goos, text string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "osascript", []string{"-e", buildKeystrokeScript(text)}, nil
	case "linux":
		return "xdotool", []string{"type", "--", text}, nil
	default:
		return "", nil, fmt.Errorf("typing is not supported on %s", goos)
	}
}

// buildKeystrokeScript generates an AppleScript that types text.
func buildKeystrokeScript(text string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(text)
	return fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, escaped)
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse(data json.RawMessage) {
	resp := Response{
		Success: true,
		Data:    data,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

package convert

import "fmt"

// CommandLog captures one external encoder invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stderr   string   `json:"stderr"`
}

// EncodeError is an item-scoped encoder failure with command context.
// Pass is 1 or 2 for the two-pass drivers and 0 for single-pass audio.
type EncodeError struct {
	InputPath  string     `json:"inputPath"`
	Pass       int        `json:"pass"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats encode failures for logs and UI.
func (e *EncodeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Pass == 0 {
		return fmt.Sprintf("%s: %s (exit=%d)", e.InputPath, e.Message, e.CommandLog.ExitCode)
	}
	return fmt.Sprintf("%s: pass %d: %s (exit=%d)", e.InputPath, e.Pass, e.Message, e.CommandLog.ExitCode)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *EncodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

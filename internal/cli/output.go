package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mixelka/mailsync/internal/email"
	"github.com/mixelka/mailsync/internal/mailsync"
)

// errorOutput is printed for failed operations
type errorOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// fprintJSON encodes v as indented JSON to w.
func fprintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// fprintError prints a classified error and returns it for the exit code
func fprintError(w io.Writer, err error) error {
	out := errorOutput{Error: err.Error(), Details: err.Error()}

	var (
		connErr *email.ConnError
		sendErr *mailsync.SendError
	)
	switch {
	case errors.As(err, &sendErr):
		out.Error = sendErr.Kind.Message()
	case errors.As(err, &connErr):
		out.Error = connErr.Kind.Message()
	}

	if printErr := fprintJSON(w, out); printErr != nil {
		return printErr
	}
	return errSilent{err}
}

// errSilent marks an error already reported as JSON
type errSilent struct{ error }

func (e errSilent) Unwrap() error { return e.error }

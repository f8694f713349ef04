package app

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/clonekit/internal/errors"
	"github.com/ggonzalez94/clonekit/internal/model"
	"github.com/ggonzalez94/clonekit/internal/out"
	"github.com/ggonzalez94/clonekit/internal/version"
)

// reply is what a command contributes to its envelope. Only provision
// reports aggregator calls, and only commands that touch the swap cache set
// cache.
type reply struct {
	data      any
	warnings  []string
	cache     *model.CacheStatus
	providers []model.ProviderStatus
}

func (s *session) respond(cmd *cobra.Command, r reply) error {
	env := s.envelope(commandPath(cmd), r)
	env.Success = true
	env.Data = r.data
	return out.Render(s.runner.stdout, env, s.settings)
}

// fail writes the error envelope to stderr, always as a whole envelope. A
// provision run that stopped part way still reports its warnings and
// aggregator calls through s.partial.
func (s *session) fail(err error) {
	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil

	env := s.envelope(s.command, s.partial)
	env.Data = []any{}
	env.Error = errorBody(err)
	_ = out.Render(s.runner.stderr, env, settings)
}

func (s *session) envelope(command string, r reply) model.Envelope {
	if command == "" {
		command = version.CLIName
	}
	return model.Envelope{
		Version:  model.EnvelopeVersion,
		Warnings: r.warnings,
		Meta: model.EnvelopeMeta{
			RequestID: requestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   command,
			Providers: r.providers,
			Cache:     r.cache,
		},
	}
}

func errorBody(err error) *model.ErrorBody {
	body := &model.ErrorBody{
		Code:    clierr.ExitCode(err),
		Type:    "internal_error",
		Message: err.Error(),
	}
	if cErr, ok := clierr.As(err); ok {
		body.Type = clierr.TypeName(cErr.Code)
		body.Message = cErr.Message
		if cErr.Cause != nil {
			body.Message += ": " + cErr.Cause.Error()
		}
	}
	return body
}

func requestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// commandPath is the command's path without the binary name, e.g. "cache show".
func commandPath(cmd *cobra.Command) string {
	return strings.TrimSpace(strings.TrimPrefix(cmd.CommandPath(), cmd.Root().Name()))
}

// cobraUsageErrors are fragments of the argument errors cobra returns without
// passing them through the flag error func.
var cobraUsageErrors = []string{
	"unknown command",
	"accepts ",
	"if any flags in the group",
}

// asCLIError gives errors that escaped the commands an exit code.
func asCLIError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	msg := err.Error()
	for _, fragment := range cobraUsageErrors {
		if strings.Contains(msg, fragment) {
			return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
		}
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

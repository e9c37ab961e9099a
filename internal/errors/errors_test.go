package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := ExternalErrorf(fmt.Errorf("exit status 128"), "list files at %s", "abc123")
	assert.Equal(t, "list files at abc123: exit status 128", err.Error())

	plain := ConfigErrorf("unknown tracker type %q", "svn")
	assert.Equal(t, `unknown tracker type "svn"`, plain.Error())
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeExternal, SeverityHigh, "ignored"))
}

func TestIsMatchesByType(t *testing.T) {
	err := fmt.Errorf("resolve releases: %w", Unreachable(fmt.Errorf("timeout"), "issue tracker"))
	assert.True(t, stderrors.Is(err, ErrNoReleases), "both are configuration errors")
	assert.False(t, stderrors.Is(err, ErrRejectedTicket))

	rejected := Rejectedf("ticket %s rejected", "PROJ-1")
	assert.True(t, stderrors.Is(rejected, ErrRejectedTicket))
}

func TestUnwrapReachesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := FileSystemErrorf(cause, "write dataset")
	assert.True(t, stderrors.Is(err, cause))
}

func TestSeverityAndType(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fatal    bool
		severity Severity
		errType  ErrorType
	}{
		{"config", ConfigErrorf("bad"), true, SeverityCritical, ErrorTypeConfig},
		{"unreachable", Unreachable(fmt.Errorf("refused"), "tracker"), true, SeverityCritical, ErrorTypeConfig},
		{"filesystem", FileSystemErrorf(fmt.Errorf("x"), "write"), true, SeverityCritical, ErrorTypeFileSystem},
		{"external", ExternalErrorf(fmt.Errorf("x"), "git"), false, SeverityHigh, ErrorTypeExternal},
		{"database", DatabaseErrorf(fmt.Errorf("x"), "save"), false, SeverityHigh, ErrorTypeDatabase},
		{"malformed", Malformedf("missing key"), false, SeverityLow, ErrorTypeMalformed},
		{"unresolved", New(ErrorTypeUnresolved, SeverityLow, "a.go"), false, SeverityLow, ErrorTypeUnresolved},
		{"internal", InternalErrorf("broken"), true, SeverityCritical, ErrorTypeInternal},
		{"wrapped", fmt.Errorf("stage: %w", ExternalErrorf(fmt.Errorf("x"), "git")), false, SeverityHigh, ErrorTypeExternal},
		{"plain", fmt.Errorf("plain"), false, SeverityMedium, ErrorTypeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
			assert.Equal(t, tt.severity, GetSeverity(tt.err))
			assert.Equal(t, tt.errType, GetType(tt.err))
		})
	}

	assert.False(t, IsFatal(nil))
	assert.Equal(t, SeverityLow, GetSeverity(nil))
	assert.Equal(t, "CRITICAL", SeverityCritical.String())
	assert.Equal(t, "UNRESOLVED", ErrorTypeUnresolved.String())
}

func TestDetailedString(t *testing.T) {
	err := Rejectedf("ticket rejected").
		WithContext("ticket", "PROJ-7").
		WithContext("reason", "no-fix-version")

	out := err.DetailedString()
	assert.Contains(t, out, "[LOW] [REJECTED] ticket rejected")
	assert.Contains(t, out, "ticket: PROJ-7")
	assert.Contains(t, out, "reason: no-fix-version")
	assert.Contains(t, out, "Stack trace:")

	wrapped := DatabaseErrorf(fmt.Errorf("locked"), "save run")
	require.NotNil(t, wrapped)
	assert.Contains(t, wrapped.DetailedString(), "Caused by: locked")
}

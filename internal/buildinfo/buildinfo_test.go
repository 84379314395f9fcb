package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestUserAgent(t *testing.T) {
	ov := BuildVersion
	t.Cleanup(func() { BuildVersion = ov })

	BuildVersion = ""
	require.Equal(t, "metrics-forwarder/dev", UserAgent())

	BuildVersion = "v1.4.0"
	require.Equal(t, "metrics-forwarder/v1.4.0", UserAgent())
}

func TestLog(t *testing.T) {
	ov, od, oc := BuildVersion, BuildDate, BuildCommit
	t.Cleanup(func() { BuildVersion, BuildDate, BuildCommit = ov, od, oc })

	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core).Sugar()

	BuildVersion, BuildDate, BuildCommit = "", "", ""
	Log(logger)
	BuildVersion, BuildDate, BuildCommit = "v1", "2025-09-06", "deadbeef"
	Log(logger)

	entries := logs.FilterMessage("build info").All()
	require.Len(t, entries, 2)
	require.Equal(t, "N/A", entries[0].ContextMap()["version"])
	require.Equal(t, "N/A", entries[0].ContextMap()["commit"])
	require.Equal(t, "v1", entries[1].ContextMap()["version"])
	require.Equal(t, "deadbeef", entries[1].ContextMap()["commit"])
}

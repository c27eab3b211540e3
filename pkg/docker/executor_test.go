package docker

import (
	"bytes"
	"strings"
	"testing"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/require"
)

func TestHostConfigAppliesSandboxLimits(t *testing.T) {
	e := &DockerExecutor{cfg: Config{WorkingDir: "/workspace", MemoryLimitMB: 256, CPUShares: 512}}

	hostCfg := e.hostConfig(ExecutionRequest{Image: "python:3.11-slim", Workspace: "/tmp/run-1", NetworkDisabled: true})
	require.Equal(t, int64(256*1024*1024), hostCfg.Resources.Memory)
	require.Equal(t, hostCfg.Resources.Memory, hostCfg.Resources.MemorySwap)
	require.Equal(t, int64(512), hostCfg.Resources.CPUShares)
	require.Equal(t, int64(defaultPidsLimit), *hostCfg.Resources.PidsLimit)
	require.Equal(t, "none", string(hostCfg.NetworkMode))
	require.Contains(t, hostCfg.SecurityOpt, "no-new-privileges")
	require.Len(t, hostCfg.Mounts, 1)
	require.Equal(t, "/workspace", hostCfg.Mounts[0].Target)

	override := e.hostConfig(ExecutionRequest{Image: "node:20-alpine", MemoryLimitMB: 64, CPUShares: 128, PidsLimit: 8})
	require.Equal(t, int64(64*1024*1024), override.Resources.Memory)
	require.Equal(t, int64(128), override.Resources.CPUShares)
	require.Equal(t, int64(8), *override.Resources.PidsLimit)
	require.Equal(t, "bridge", string(override.NetworkMode))
	require.Empty(t, override.Mounts)
}

func TestContainerConfigDefaultsWorkingDir(t *testing.T) {
	e := &DockerExecutor{cfg: Config{WorkingDir: "/workspace"}}

	cfg := e.containerConfig(ExecutionRequest{Image: "golang:1.22-alpine", Cmd: []string{"go", "run", "main.go"}, NetworkDisabled: true})
	require.Equal(t, "/workspace", cfg.WorkingDir)
	require.True(t, cfg.NetworkDisabled)

	cfg = e.containerConfig(ExecutionRequest{Image: "golang:1.22-alpine", WorkingDir: "/src"})
	require.Equal(t, "/src", cfg.WorkingDir)
}

func TestSplitDockerLogs(t *testing.T) {
	var buf bytes.Buffer
	_, err := stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte("hello\n"))
	require.NoError(t, err)
	_, err = stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte("oops\n"))
	require.NoError(t, err)

	stdout, stderr, err := splitDockerLogs(&buf)
	require.NoError(t, err)
	require.Equal(t, "hello\n", stdout)
	require.Equal(t, "oops\n", stderr)
}

func TestTruncate(t *testing.T) {
	out, cut := truncate("short", 10)
	require.Equal(t, "short", out)
	require.False(t, cut)

	out, cut = truncate(strings.Repeat("x", 20), 10)
	require.Len(t, out, 10)
	require.True(t, cut)
}

func TestRunRequiresImage(t *testing.T) {
	e := &DockerExecutor{}
	_, err := e.Run(t.Context(), ExecutionRequest{})
	require.EqualError(t, err, "image is required")
}

package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	execDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oelp",
		Subsystem: "sandbox",
		Name:      "execution_duration_seconds",
		Help:      "Duration of sandbox container executions",
		Buckets:   prometheus.DefBuckets,
	}, []string{"image"})

	execTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oelp",
		Subsystem: "sandbox",
		Name:      "execution_timeouts_total",
		Help:      "Number of executions that hit the timeout",
	}, []string{"image"})

	execFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oelp",
		Subsystem: "sandbox",
		Name:      "execution_failures_total",
		Help:      "Number of executions that resulted in an error",
	}, []string{"image"})

	execOOMKills = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oelp",
		Subsystem: "sandbox",
		Name:      "oom_kills_total",
		Help:      "Number of executions killed by the memory limit",
	}, []string{"image"})
)

const (
	defaultPidsLimit      = 64
	defaultMaxOutputBytes = 64 * 1024
)

// Executor runs student code inside a sandboxed container.
type Executor interface {
	Run(ctx context.Context, req ExecutionRequest) (ExecutionResult, error)
}

// ExecutionRequest describes the instruction to run a piece of code inside a container.
type ExecutionRequest struct {
	Image           string
	Cmd             []string
	Env             []string
	Timeout         time.Duration
	Workspace       string
	WorkingDir      string
	MemoryLimitMB   int64
	CPUShares       int64
	NetworkDisabled bool
	ReadOnlyFS      bool
	PidsLimit       int64
}

// ExecutionResult summarises the outcome of a container execution.
type ExecutionResult struct {
	Stdout           string
	Stderr           string
	ExitCode         int
	Duration         time.Duration
	TimedOut         bool
	MemoryUsageBytes int64
	CPUUsageNanosec  uint64
	OOMKilled        bool
	Truncated        bool
}

// Config groups executor configuration values.
type Config struct {
	Host           string
	Timeout        time.Duration
	MemoryLimitMB  int64
	CPUShares      int64
	WorkingDir     string
	MaxOutputBytes int
	Logger         zerolog.Logger
}

// DockerExecutor implements code execution using Docker containers.
type DockerExecutor struct {
	client *client.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewDockerExecutor constructs a Docker backed executor.
func NewDockerExecutor(cfg Config) (*DockerExecutor, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.WorkingDir == "" {
		cfg.WorkingDir = "/workspace"
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}

	tracer := otel.Tracer("github.com/noah-isme/oelp-api/pkg/docker")

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &DockerExecutor{
		client: cli,
		cfg:    cfg,
		tracer: tracer,
		logger: logger,
	}, nil
}

// Run executes req inside a fresh container and always removes it afterwards.
// A run that exceeds its timeout returns the partial result with TimedOut set
// together with an error.
func (e *DockerExecutor) Run(parent context.Context, req ExecutionRequest) (ExecutionResult, error) {
	image := req.Image
	if image == "" {
		return ExecutionResult{}, errors.New("image is required")
	}

	ctx, span := e.tracer.Start(parent, "sandbox.run", trace.WithAttributes(
		attribute.String("docker.image", image),
		attribute.Bool("sandbox.network_disabled", req.NetworkDisabled),
	))
	defer span.End()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	fail := func(stage string, err error) (ExecutionResult, error) {
		execFailures.WithLabelValues(image).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ExecutionResult{}, fmt.Errorf("%s: %w", stage, err)
	}

	start := time.Now()
	resp, err := e.client.ContainerCreate(ctx, e.containerConfig(req), e.hostConfig(req), &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return fail("container create", err)
	}
	containerID := resp.ID
	defer e.remove(containerID)

	if err := e.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fail("container start", err)
	}

	result := ExecutionResult{}
	exitCode, waitErr := e.awaitExit(ctx, containerID)
	result.ExitCode = exitCode
	result.Duration = time.Since(start)
	execDuration.WithLabelValues(image).Observe(result.Duration.Seconds())

	if waitErr != nil {
		switch {
		case errors.Is(waitErr, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
			result.TimedOut = true
			execTimeouts.WithLabelValues(image).Inc()
			e.kill(containerID)
			span.RecordError(waitErr)
			span.SetStatus(codes.Error, "execution timed out")
		case errors.Is(waitErr, context.Canceled):
		default:
			return fail("container wait", waitErr)
		}
	}

	e.collectOutput(parent, containerID, &result)
	if !result.TimedOut && e.oomKilled(parent, containerID) {
		result.OOMKilled = true
		execOOMKills.WithLabelValues(image).Inc()
	}
	e.collectUsage(parent, containerID, &result)

	if result.TimedOut {
		return result, fmt.Errorf("execution timed out after %s", timeout)
	}
	if waitErr != nil {
		return result, waitErr
	}
	return result, nil
}

func (e *DockerExecutor) containerConfig(req ExecutionRequest) *container.Config {
	workingDir := req.WorkingDir
	if workingDir == "" {
		workingDir = e.cfg.WorkingDir
	}
	return &container.Config{
		Image:           req.Image,
		Cmd:             req.Cmd,
		Env:             req.Env,
		WorkingDir:      workingDir,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: req.NetworkDisabled,
	}
}

// hostConfig applies the sandbox limits. Request values win over executor
// defaults and swap is pinned to the memory limit.
func (e *DockerExecutor) hostConfig(req ExecutionRequest) *container.HostConfig {
	memoryMB := req.MemoryLimitMB
	if memoryMB <= 0 {
		memoryMB = e.cfg.MemoryLimitMB
	}
	cpuShares := req.CPUShares
	if cpuShares <= 0 {
		cpuShares = e.cfg.CPUShares
	}
	pidsLimit := req.PidsLimit
	if pidsLimit <= 0 {
		pidsLimit = defaultPidsLimit
	}

	networkMode := container.NetworkMode("bridge")
	if req.NetworkDisabled {
		networkMode = "none"
	}

	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:     memoryMB * 1024 * 1024,
			MemorySwap: memoryMB * 1024 * 1024,
			CPUShares:  cpuShares,
			PidsLimit:  &pidsLimit,
		},
		NetworkMode:    networkMode,
		ReadonlyRootfs: req.ReadOnlyFS,
		SecurityOpt:    []string{"no-new-privileges"},
	}

	if req.Workspace != "" {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: req.Workspace,
			Target: e.cfg.WorkingDir,
		})
	}
	return hostCfg
}

func (e *DockerExecutor) awaitExit(ctx context.Context, containerID string) (int, error) {
	statusCh, errCh := e.client.ContainerWait(ctx, containerID, container.WaitConditionNextExit)
	select {
	case err := <-errCh:
		return 0, err
	case status := <-statusCh:
		return int(status.StatusCode), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (e *DockerExecutor) kill(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.client.ContainerKill(ctx, containerID, "KILL"); err != nil {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
	}
}

func (e *DockerExecutor) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
	}
}

func (e *DockerExecutor) collectOutput(ctx context.Context, containerID string, result *ExecutionResult) {
	logs, err := e.client.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to fetch container logs")
		return
	}
	defer logs.Close()

	stdout, stderr, err := splitDockerLogs(logs)
	if err != nil {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to read container logs")
		return
	}
	var cutOut, cutErr bool
	result.Stdout, cutOut = truncate(stdout, e.cfg.MaxOutputBytes)
	result.Stderr, cutErr = truncate(stderr, e.cfg.MaxOutputBytes)
	result.Truncated = cutOut || cutErr
}

func (e *DockerExecutor) oomKilled(ctx context.Context, containerID string) bool {
	inspectCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	inspect, err := e.client.ContainerInspect(inspectCtx, containerID)
	return err == nil && inspect.State != nil && inspect.State.OOMKilled
}

func (e *DockerExecutor) collectUsage(ctx context.Context, containerID string, result *ExecutionResult) {
	statsCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	stats, err := e.client.ContainerStatsOneShot(statsCtx, containerID)
	if err != nil {
		return
	}
	defer stats.Body.Close()

	var data types.StatsJSON
	if err := json.NewDecoder(stats.Body).Decode(&data); err == nil {
		result.MemoryUsageBytes = int64(data.MemoryStats.Usage)
		result.CPUUsageNanosec = data.CPUStats.CPUUsage.TotalUsage
	}
}

func splitDockerLogs(reader io.Reader) (string, string, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, reader); err != nil {
		return "", "", err
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}

func truncate(value string, limit int) (string, bool) {
	if limit <= 0 || len(value) <= limit {
		return value, false
	}
	return value[:limit], true
}

// Close shuts down the executor's underlying client.
func (e *DockerExecutor) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

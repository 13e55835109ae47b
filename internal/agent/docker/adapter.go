package docker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaycode/taskserver/internal/agent"
	"github.com/relaycode/taskserver/internal/agent/acp"
	"github.com/relaycode/taskserver/internal/common/config"
	"github.com/relaycode/taskserver/internal/common/logger"
	"github.com/relaycode/taskserver/internal/task/models"
)

// Adapter is the Docker-backed implementation of agent.Adapter: each
// connection is a freshly launched container running the agent runtime
// image, with stdin/stdout attached for an ACP JSON-RPC control channel.
// Grounded on the agent lifecycle manager's launch sequence (interactive
// container create/start/attach, then ACP initialize/session-new/prompt).
type Adapter struct {
	docker *Client
	cfg    config.DockerConfig
	agent  config.AgentConfig
	log    *logger.Logger

	containerID string
	attach      *AttachResult
	acpClient   *acp.Client
}

// NewAdapter constructs an unconnected Adapter. Call Connect to launch the
// container and perform the ACP handshake.
func NewAdapter(docker *Client, dockerCfg config.DockerConfig, agentCfg config.AgentConfig, log *logger.Logger) *Adapter {
	if log == nil {
		log = logger.Default()
	}
	return &Adapter{docker: docker, cfg: dockerCfg, agent: agentCfg, log: log}
}

// Connect launches a container for workspace and performs the ACP
// initialize + session/new handshake.
func (a *Adapter) Connect(ctx context.Context, workspace string, opts models.AgentOptions) error {
	name := "taskserver-agent-" + uuid.NewString()

	containerCfg := a.buildContainerConfig(name, workspace, opts)

	containerID, err := a.docker.CreateContainerInteractive(ctx, containerCfg)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	if err := a.docker.StartContainer(ctx, containerID); err != nil {
		_ = a.docker.RemoveContainer(ctx, containerID, true)
		return fmt.Errorf("start container: %w", err)
	}
	a.containerID = containerID

	attachResult, err := a.docker.AttachContainer(ctx, containerID)
	if err != nil {
		a.teardownContainer(ctx)
		return fmt.Errorf("attach container: %w", err)
	}
	a.attach = attachResult

	a.acpClient = acp.NewClient(attachResult.Stdin, attachResult.Stdout, a.log.WithFields(zap.String("container_id", containerID)))
	if err := a.acpClient.Start(ctx); err != nil {
		a.teardownContainer(ctx)
		return fmt.Errorf("acp initialize: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = a.agent.DefaultModel
	}
	maxTurns := opts.MaxTurns
	if maxTurns == 0 {
		maxTurns = a.agent.MaxTurns
	}
	if err := a.acpClient.NewSession(ctx, workspace, maxTurns, model); err != nil {
		a.teardownContainer(ctx)
		return fmt.Errorf("acp session/new: %w", err)
	}

	a.log.Info("agent connection established",
		zap.String("container_id", containerID),
		zap.String("workspace", workspace))
	return nil
}

// Query sends the prompt via session/prompt. Non-blocking.
func (a *Adapter) Query(ctx context.Context, prompt string) error {
	return a.acpClient.Prompt(ctx, prompt)
}

// ReceiveResponse returns the ACP client's normalised message/error streams.
func (a *Adapter) ReceiveResponse(ctx context.Context) (<-chan agent.Message, <-chan error) {
	return a.acpClient.Messages()
}

// Interrupt sends session/cancel as a best-effort request.
func (a *Adapter) Interrupt(ctx context.Context) error {
	return a.acpClient.Cancel("interrupted by client")
}

// Disconnect idempotently tears down the ACP client and the container.
func (a *Adapter) Disconnect(ctx context.Context) error {
	if a.acpClient != nil {
		a.acpClient.Close()
	}
	if a.attach != nil {
		_ = a.attach.Close()
	}
	return a.teardownContainer(ctx)
}

func (a *Adapter) teardownContainer(ctx context.Context) error {
	if a.containerID == "" {
		return nil
	}
	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.docker.StopContainer(stopCtx, a.containerID, 5*time.Second); err != nil {
		a.log.WithError(err).Warn("stop container failed, forcing removal")
	}
	if err := a.docker.RemoveContainer(ctx, a.containerID, true); err != nil {
		return err
	}
	a.containerID = ""
	return nil
}

func (a *Adapter) buildContainerConfig(name, workspace string, opts models.AgentOptions) ContainerConfig {
	env := []string{"ANTHROPIC_API_KEY=" + a.agent.APIKey}
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	return ContainerConfig{
		Name:        name,
		Image:       a.cfg.Image,
		Env:         env,
		WorkingDir:  "/workspace",
		NetworkMode: a.cfg.Network,
		AutoRemove:  false,
		Labels:      map[string]string{"app": "taskserver"},
		Mounts: []MountConfig{
			{Source: workspace, Target: "/workspace", ReadOnly: false},
		},
	}
}

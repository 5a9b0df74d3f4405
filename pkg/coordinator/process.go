package coordinator

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/dd0wney/cluso-sqlgate/pkg/logging"
)

// ProcessController starts and stops database instance processes.
// The coordinator only needs these two verbs: failover stops a master,
// rejoin starts one back up.
type ProcessController interface {
	Stop(ctx context.Context, instanceID string) error
	Start(ctx context.Context, instanceID string) error
}

// DockerController drives instances running as docker containers whose
// names match the instance ids (optionally prefixed).
type DockerController struct {
	prefix string
	logger logging.Logger
}

// NewDockerController creates a controller. prefix is prepended to
// instance ids to form container names, e.g. "sqlgate-".
func NewDockerController(prefix string) *DockerController {
	return &DockerController{
		prefix: prefix,
		logger: logging.With(logging.Component("docker_controller")),
	}
}

// Stop stops the container for an instance.
func (d *DockerController) Stop(ctx context.Context, instanceID string) error {
	return d.run(ctx, "stop", instanceID)
}

// Start starts the container for an instance.
func (d *DockerController) Start(ctx context.Context, instanceID string) error {
	return d.run(ctx, "start", instanceID)
}

func (d *DockerController) run(ctx context.Context, verb, instanceID string) error {
	container := d.prefix + instanceID

	cmd := exec.CommandContext(ctx, "docker", verb, container)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker %s %s: %v: %s", verb, container, err,
			strings.TrimSpace(string(output)))
	}

	d.logger.Info("Instance process command completed",
		logging.InstanceID(instanceID),
		logging.Operation("docker "+verb))
	return nil
}

// NoopController ignores process commands. Used when instances are
// managed externally.
type NoopController struct{}

func (NoopController) Stop(ctx context.Context, instanceID string) error  { return nil }
func (NoopController) Start(ctx context.Context, instanceID string) error { return nil }

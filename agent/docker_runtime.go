package agent

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	evecommon "eve.evalgo.org/common"

	"evalgo.org/phoenix/models"
)

// DockerRuntime runs game servers as Docker containers. The container is
// created from the configured image on first start and reused afterwards.
type DockerRuntime struct {
	docker *dockerclient.Client
	now    func() time.Time
}

// NewDockerRuntime creates a docker runtime connected to the given socket.
// An empty socket uses the default /var/run/docker.sock.
func NewDockerRuntime(dockerSocket string) (*DockerRuntime, error) {
	opts := []dockerclient.Opt{dockerclient.WithAPIVersionNegotiation()}
	if dockerSocket != "" {
		host := dockerSocket
		if !strings.Contains(host, "://") {
			host = "unix://" + host
		}
		opts = append(opts, dockerclient.WithHost(host))
	} else {
		opts = append(opts, dockerclient.FromEnv)
	}

	cli, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	// Verify Docker connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to Docker: %w", err)
	}

	return &DockerRuntime{
		docker: cli,
		now:    time.Now,
	}, nil
}

// containerName derives the managed container name for a server.
func containerName(serverID string, cfg *models.ServerConfig) string {
	if cfg != nil && cfg.ContainerName != "" {
		return cfg.ContainerName
	}
	// Docker names reject colons, so flatten the server ID.
	return "phoenix-" + strings.ReplaceAll(serverID, ":", "-")
}

// findContainer looks up the managed container by name. Returns empty ID if
// the container does not exist.
func (r *DockerRuntime) findContainer(ctx context.Context, name string) (string, *container.Summary, error) {
	args := filters.NewArgs()
	args.Add("name", name)

	containers, err := r.docker.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return "", nil, fmt.Errorf("failed to list containers: %w", err)
	}

	for i, c := range containers {
		for _, n := range c.Names {
			if strings.TrimPrefix(n, "/") == name {
				return c.ID, &containers[i], nil
			}
		}
	}

	return "", nil, nil
}

// Start starts the server container, creating it from the configured image
// if it does not exist yet.
func (r *DockerRuntime) Start(ctx context.Context, serverID string, cfg *models.ServerConfig) (*models.ServerStatus, error) {
	name := containerName(serverID, cfg)

	id, summary, err := r.findContainer(ctx, name)
	if err != nil {
		return nil, err
	}

	if id == "" {
		if cfg == nil || cfg.ContainerImage == "" {
			return nil, fmt.Errorf("no container image configured for server %s", serverID)
		}
		id, err = r.createContainer(ctx, name, cfg)
		if err != nil {
			return nil, err
		}
	} else if summary != nil && summary.State == "running" {
		return nil, fmt.Errorf("server %s: %w (container %s)", serverID, ErrAlreadyRunning, id[:12])
	}

	if err := r.docker.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	log.Printf("Started server %s: container %s", serverID, name)

	return &models.ServerStatus{
		State:       models.StateRunning,
		LastUpdated: r.now().UnixMilli(),
		Message:     fmt.Sprintf("Container %s started", name),
	}, nil
}

// createContainer creates the managed container from the configured image.
func (r *DockerRuntime) createContainer(ctx context.Context, name string, cfg *models.ServerConfig) (string, error) {
	if err := r.pullImage(ctx, cfg.ContainerImage); err != nil {
		return "", err
	}

	exposedPorts := make(nat.PortSet)
	portBindings := make(nat.PortMap)

	for _, mapping := range cfg.Ports {
		hostPort, natPort, err := parsePortMapping(mapping)
		if err != nil {
			return "", fmt.Errorf("invalid port mapping %q: %w", mapping, err)
		}
		exposedPorts[natPort] = struct{}{}
		portBindings[natPort] = []nat.PortBinding{
			{HostIP: "0.0.0.0", HostPort: hostPort},
		}
	}

	containerConfig := &container.Config{
		Image:        cfg.ContainerImage,
		Cmd:          cfg.Arguments,
		WorkingDir:   cfg.WorkingDirectory,
		ExposedPorts: exposedPorts,
	}

	hostConfig := &container.HostConfig{
		PortBindings:  portBindings,
		RestartPolicy: container.RestartPolicy{Name: "no"},
	}

	resp, err := r.docker.ContainerCreate(ctx, containerConfig, hostConfig, &network.NetworkingConfig{}, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	return resp.ID, nil
}

// pullImage pulls the image if it is not present locally.
func (r *DockerRuntime) pullImage(ctx context.Context, imageName string) error {
	_, _, err := r.docker.ImageInspectWithRaw(ctx, imageName)
	if err == nil {
		return nil
	}

	reader, err := r.docker.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	// Consume pull output to ensure pull completes
	_, err = io.Copy(io.Discard, reader)
	return err
}

// parsePortMapping splits "host:container" or "host:container/proto" into a
// host port string and a nat.Port.
func parsePortMapping(mapping string) (string, nat.Port, error) {
	proto := "tcp"
	spec := mapping
	if idx := strings.IndexByte(spec, '/'); idx >= 0 {
		proto = strings.ToLower(spec[idx+1:])
		spec = spec[:idx]
	}

	parts := strings.Split(spec, ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("expected host:container format")
	}

	natPort, err := nat.NewPort(proto, parts[1])
	if err != nil {
		return "", "", err
	}

	return parts[0], natPort, nil
}

// Stop gracefully stops the server container, force-killing after the
// configured stop timeout. A server with no live container fails with
// ErrNotRunning.
func (r *DockerRuntime) Stop(ctx context.Context, serverID string, cfg *models.ServerConfig) (*models.ServerStatus, error) {
	name := containerName(serverID, cfg)

	id, summary, err := r.findContainer(ctx, name)
	if err != nil {
		return nil, err
	}
	if id == "" || (summary != nil && summary.State != "running") {
		return nil, fmt.Errorf("server %s: %w", serverID, ErrNotRunning)
	}

	timeout := int(cfg.StopTimeoutDuration().Seconds())
	if err := evecommon.ContainerStop(ctx, r.docker, id, timeout); err != nil {
		if !strings.Contains(err.Error(), "is already stopped") &&
			!strings.Contains(err.Error(), "No such container") {
			return nil, fmt.Errorf("failed to stop container: %w", err)
		}
	}

	log.Printf("Stopped server %s: container %s", serverID, name)

	return &models.ServerStatus{
		State:       models.StateStopped,
		LastUpdated: r.now().UnixMilli(),
		Message:     fmt.Sprintf("Container %s stopped", name),
	}, nil
}

// Restart restarts the server container through the Docker API.
func (r *DockerRuntime) Restart(ctx context.Context, serverID string, cfg *models.ServerConfig) (*models.ServerStatus, error) {
	name := containerName(serverID, cfg)

	id, _, err := r.findContainer(ctx, name)
	if err != nil {
		return nil, err
	}
	if id == "" {
		// Nothing to restart; treat as a plain start.
		return r.Start(ctx, serverID, cfg)
	}

	timeout := int(cfg.StopTimeoutDuration().Seconds())
	if err := r.docker.ContainerRestart(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return nil, fmt.Errorf("failed to restart container: %w", err)
	}

	log.Printf("Restarted server %s: container %s", serverID, name)

	return &models.ServerStatus{
		State:       models.StateRunning,
		LastUpdated: r.now().UnixMilli(),
		Message:     fmt.Sprintf("Container %s restarted", name),
	}, nil
}

// Status reports the container state mapped onto the server lifecycle.
func (r *DockerRuntime) Status(ctx context.Context, serverID string, cfg *models.ServerConfig) (*models.ServerStatus, error) {
	name := containerName(serverID, cfg)

	id, summary, err := r.findContainer(ctx, name)
	if err != nil {
		return nil, err
	}
	if id == "" || summary == nil {
		return &models.ServerStatus{
			State:       models.StateStopped,
			LastUpdated: r.now().UnixMilli(),
		}, nil
	}

	var state models.ServerState
	switch summary.State {
	case "running":
		state = models.StateRunning
	case "created", "restarting":
		state = models.StateStarting
	case "removing":
		state = models.StateStopping
	case "dead":
		state = models.StateError
	default: // "exited", "paused"
		state = models.StateStopped
	}

	return &models.ServerStatus{
		State:       state,
		LastUpdated: r.now().UnixMilli(),
		Message:     summary.Status,
	}, nil
}

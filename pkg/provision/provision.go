package provision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/eksconfig"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/executor"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/log"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/metrics"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/stream"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/types"
)

// Stage identifies a step of the provisioning state machine
type Stage string

const (
	StagePreflight       Stage = "preflight"
	StageExistence       Stage = "existence-check"
	StageConfig          Stage = "config-generated"
	StageCreating        Stage = "cluster-creating"
	StageStorageClass    Stage = "storage-class"
	StageALB             Stage = "alb-setup"
	StageMonitoringDelay Stage = "monitoring-delay"
	StageDeleting        Stage = "cluster-deleting"
	StageComplete        Stage = "complete"
	StageAborted         Stage = "aborted"
)

// PersistsAfterDisconnect reports whether a subprocess live in this stage
// survives the client going away. Once eksctl has started mutating cloud
// state, killing it would leave half-provisioned infrastructure that is
// costlier to clean up than to let finish.
func (s Stage) PersistsAfterDisconnect() bool {
	switch s {
	case StageCreating, StageStorageClass, StageALB, StageMonitoringDelay, StageDeleting:
		return true
	}
	return false
}

// stageContext returns the context a stage's subprocesses run under.
// Stages that persist after disconnect are detached from the session's
// cancellation so a closed browser tab cannot abort an in-flight mutation.
func stageContext(ctx context.Context, s Stage) context.Context {
	if s.PersistsAfterDisconnect() {
		return context.WithoutCancel(ctx)
	}
	return ctx
}

// Options tunes the orchestrator. Zero values select defaults.
type Options struct {
	// MonitoringDelay is the fixed wait before completion that lets the
	// API server settle. Deliberately a conservative delay, not an active
	// readiness poll.
	MonitoringDelay time.Duration

	// RetryAttempts and RetryDelay govern the cert-manager install, whose
	// webhook readiness is a known transient
	RetryAttempts int
	RetryDelay    time.Duration

	CertManagerManifest   string
	ALBControllerManifest string
}

func (o Options) withDefaults() Options {
	if o.MonitoringDelay == 0 {
		o.MonitoringDelay = 90 * time.Second
	}
	if o.RetryAttempts == 0 {
		o.RetryAttempts = 3
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = 20 * time.Second
	}
	if o.CertManagerManifest == "" {
		o.CertManagerManifest = certManagerManifestURL
	}
	if o.ALBControllerManifest == "" {
		o.ALBControllerManifest = albControllerManifestURL
	}
	return o
}

// Provisioner drives cluster creation and teardown through external CLIs,
// emitting progress frames for the owning session
type Provisioner struct {
	runner executor.Runner
	logger zerolog.Logger
	opts   Options
}

// New creates a provisioner backed by the given runner
func New(runner executor.Runner, opts Options) *Provisioner {
	return &Provisioner{
		runner: runner,
		logger: log.WithComponent("provision"),
		opts:   opts.withDefaults(),
	}
}

// Create runs the full provisioning sequence for one cluster. All steps
// are strictly sequential; every failure before the terminal frame moves
// the session to Aborted with exactly one error frame.
func (p *Provisioner) Create(ctx context.Context, spec types.ClusterSpec, emit stream.Emitter) error {
	logger := log.WithCluster(spec.Name, spec.Region)

	abort := func(err error) error {
		logger.Error().Err(err).Msg("cluster creation aborted")
		metrics.ProvisionOutcomes.WithLabelValues("create", string(StageAborted)).Inc()
		emit.Error(fmt.Sprintf("Failed to create cluster '%s': %v", spec.Name, err))
		return err
	}

	// PreflightCheck: never attempt creation without the IAM baseline. A
	// failure mid-creation leaves a half-provisioned cluster that costs
	// more to clean up than to prevent.
	emit.Log("Validating IAM permissions for cluster creation...")
	identity, err := p.preflight(stageContext(ctx, StagePreflight))
	if err != nil {
		return abort(err)
	}
	emit.Log(fmt.Sprintf("IAM permissions verified for %s", identity.Arn))

	// ExistenceCheck: refuse to collide with a live cluster
	emit.Log(fmt.Sprintf("Checking for an existing cluster named '%s' in %s...", spec.Name, spec.Region))
	if err := p.ensureClusterAbsent(stageContext(ctx, StageExistence), spec.Name, spec.Region); err != nil {
		return abort(err)
	}

	// ConfigGenerated: the rendered document is the sole input to creation
	config, err := eksconfig.Render(spec)
	if err != nil {
		return abort(err)
	}
	emit.Log("Generated cluster configuration")

	// ClusterCreating: long-running streaming subprocess, config on stdin.
	// From here on the operation survives a client disconnect.
	emit.Log(fmt.Sprintf("Creating cluster '%s' (this can take 15-20 minutes)...", spec.Name))
	createCtx := stageContext(ctx, StageCreating)
	res := p.runner.RunStreaming(createCtx, types.ExecutionRequest{
		Command: "eksctl",
		Args:    []string{"create", "cluster", "-f", "-"},
		Stdin:   config,
	}, emit)
	if !res.Success {
		return abort(fmt.Errorf("eksctl create cluster exited with code %d", res.ExitCode))
	}
	logger.Info().Msg("cluster created")

	// Post-creation steps are best-effort: a cluster without them is
	// still usable, so failures warn instead of aborting
	storageOK := p.applyDefaultStorageClass(createCtx, emit)

	albOK := true
	if spec.EnableALB {
		albOK = p.setupALBController(createCtx, spec, identity, emit)
	}

	emit.Log(fmt.Sprintf("Waiting %s for the control plane to settle...", p.opts.MonitoringDelay))
	select {
	case <-time.After(p.opts.MonitoringDelay):
	case <-createCtx.Done():
	}

	metrics.ProvisionOutcomes.WithLabelValues("create", string(StageComplete)).Inc()
	emit.Complete(completionSummary(spec, storageOK, albOK))
	return nil
}

// Delete tears down a cluster. Single streaming step, no pre-flight or
// post-steps; like creation, it survives a client disconnect.
func (p *Provisioner) Delete(ctx context.Context, spec types.DeleteSpec, emit stream.Emitter) error {
	logger := log.WithCluster(spec.Name, spec.Region)

	emit.Log(fmt.Sprintf("Deleting cluster '%s' in %s...", spec.Name, spec.Region))
	res := p.runner.RunStreaming(stageContext(ctx, StageDeleting), types.ExecutionRequest{
		Command: "eksctl",
		Args:    []string{"delete", "cluster", "--name", spec.Name, "--region", spec.Region},
	}, emit)
	if !res.Success {
		err := fmt.Errorf("eksctl delete cluster exited with code %d", res.ExitCode)
		logger.Error().Err(err).Msg("cluster deletion aborted")
		metrics.ProvisionOutcomes.WithLabelValues("delete", string(StageAborted)).Inc()
		emit.Error(fmt.Sprintf("Failed to delete cluster '%s': %v", spec.Name, err))
		return err
	}

	logger.Info().Msg("cluster deleted")
	metrics.ProvisionOutcomes.WithLabelValues("delete", string(StageComplete)).Inc()
	emit.Complete(fmt.Sprintf("Cluster '%s' deleted successfully", spec.Name))
	return nil
}

// ensureClusterAbsent treats a ResourceNotFoundException-shaped failure as
// the expected "does not exist" signal; a successful lookup means the
// cluster exists and creation must not proceed
func (p *Provisioner) ensureClusterAbsent(ctx context.Context, name, region string) error {
	_, err := p.runner.Run(ctx, types.ExecutionRequest{
		Command: "eksctl",
		Args:    []string{"get", "cluster", "--name", name, "--region", region, "-o", "json"},
	})
	if err == nil {
		return fmt.Errorf("cluster '%s' already exists in region %s", name, region)
	}
	if isNotFound(err) {
		return nil
	}
	return fmt.Errorf("could not check for an existing cluster '%s': %v", name, err)
}

func isNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "ResourceNotFoundException") ||
		strings.Contains(msg, "No cluster found") ||
		strings.Contains(msg, "does not exist")
}

func completionSummary(spec types.ClusterSpec, storageOK, albOK bool) string {
	msg := fmt.Sprintf("Cluster '%s' created successfully in %s", spec.Name, spec.Region)
	if spec.EnableALB && albOK {
		msg += " with the ALB ingress controller"
	}
	var caveats []string
	if !storageOK {
		caveats = append(caveats, "default storage class was not applied")
	}
	if spec.EnableALB && !albOK {
		caveats = append(caveats, "ALB controller setup is incomplete")
	}
	if len(caveats) > 0 {
		msg += " (" + strings.Join(caveats, "; ") + " - see logs)"
	}
	return msg
}

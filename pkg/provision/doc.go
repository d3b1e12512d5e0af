/*
Package provision orchestrates EKS cluster creation and teardown through the
eksctl, kubectl, and aws CLIs.

Creation is a strictly sequential state machine. Each stage either advances
or aborts the whole operation with a single terminal error frame; the two
post-creation stages are best-effort and degrade to warnings instead.

# Stages

	PreflightCheck ──► ExistenceCheck ──► ConfigGenerated ──► ClusterCreating
	                                                                │
	      ┌─────────────────────────────────────────────────────────┘
	      ▼
	StorageClass ──► ALBSetup (optional) ──► MonitoringDelay ──► Complete

PreflightCheck resolves the caller identity with `aws sts get-caller-identity`
and simulates the IAM actions cluster creation needs; any denied action
aborts before a single resource is touched. ExistenceCheck refuses to collide
with a live cluster of the same name. ClusterCreating streams
`eksctl create cluster` output to the client line by line, with the rendered
ClusterConfig delivered over stdin.

# Disconnect policy

Stages are split by Stage.PersistsAfterDisconnect. Before ClusterCreating a
client disconnect cancels the running subprocess; from ClusterCreating onward
the subprocess is detached from the session's context and runs to completion,
because killing eksctl mid-flight strands half-provisioned CloudFormation
stacks.

# ALB setup

When requested, the AWS load balancer controller is installed in four
dependent steps: cert-manager (with retries for its webhook warm-up), the
controller IAM policy, an IAM service account bound to that policy via
eksctl, and finally the controller manifest. The first failing step skips
the rest; the cluster itself remains usable.
*/
package provision

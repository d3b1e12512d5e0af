package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/executor"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/stream"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/types"
)

const (
	albPolicyName     = "AWSLoadBalancerControllerIAMPolicy"
	albServiceAccount = "aws-load-balancer-controller"

	certManagerManifestURL   = "https://github.com/cert-manager/cert-manager/releases/download/v1.14.4/cert-manager.yaml"
	albControllerManifestURL = "https://github.com/kubernetes-sigs/aws-load-balancer-controller/releases/download/v2.7.2/v2_7_2_full.yaml"
)

// albPolicyDocument is the controller's IAM policy, condensed to the
// permissions the controller version above actually exercises
const albPolicyDocument = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Action": [
        "iam:CreateServiceLinkedRole"
      ],
      "Resource": "*",
      "Condition": {
        "StringEquals": {
          "iam:AWSServiceName": "elasticloadbalancing.amazonaws.com"
        }
      }
    },
    {
      "Effect": "Allow",
      "Action": [
        "ec2:DescribeAccountAttributes",
        "ec2:DescribeAddresses",
        "ec2:DescribeAvailabilityZones",
        "ec2:DescribeInternetGateways",
        "ec2:DescribeVpcs",
        "ec2:DescribeSubnets",
        "ec2:DescribeSecurityGroups",
        "ec2:DescribeInstances",
        "ec2:DescribeNetworkInterfaces",
        "ec2:DescribeTags",
        "ec2:CreateSecurityGroup",
        "ec2:CreateTags",
        "ec2:DeleteTags",
        "ec2:AuthorizeSecurityGroupIngress",
        "ec2:RevokeSecurityGroupIngress",
        "ec2:DeleteSecurityGroup",
        "elasticloadbalancing:*",
        "acm:ListCertificates",
        "acm:DescribeCertificate",
        "cognito-idp:DescribeUserPoolClient",
        "waf-regional:GetWebACL",
        "waf-regional:AssociateWebACL",
        "waf-regional:DisassociateWebACL",
        "wafv2:GetWebACL",
        "wafv2:AssociateWebACL",
        "wafv2:DisassociateWebACL",
        "shield:GetSubscriptionState",
        "shield:DescribeProtection",
        "shield:CreateProtection",
        "shield:DeleteProtection"
      ],
      "Resource": "*"
    }
  ]
}`

// defaultStorageClassManifest makes gp2 EBS volumes the cluster default so
// PVCs without an explicit class bind out of the box
const defaultStorageClassManifest = `apiVersion: storage.k8s.io/v1
kind: StorageClass
metadata:
  name: gp2-default
  annotations:
    storageclass.kubernetes.io/is-default-class: "true"
provisioner: kubernetes.io/aws-ebs
parameters:
  type: gp2
  fsType: ext4
volumeBindingMode: WaitForFirstConsumer
`

// applyDefaultStorageClass is best-effort: a failure degrades the cluster,
// it does not invalidate it
func (p *Provisioner) applyDefaultStorageClass(ctx context.Context, emit stream.Emitter) bool {
	emit.Log("Applying default storage class...")
	res := p.runner.RunStreaming(ctx, types.ExecutionRequest{
		Command: "kubectl",
		Args:    []string{"apply", "-f", "-"},
		Stdin:   defaultStorageClassManifest,
	}, emit)
	if !res.Success {
		p.logger.Warn().Int("exit_code", res.ExitCode).Msg("default storage class not applied")
		emit.Log(fmt.Sprintf("warning: default storage class could not be applied (exit code %d)", res.ExitCode))
		return false
	}
	return true
}

// setupALBController installs the AWS load balancer controller and its
// prerequisites. The steps are ordered by dependency, and the first failure
// short-circuits the rest: later steps cannot succeed without the earlier
// ones, and the cluster is usable without any of them.
func (p *Provisioner) setupALBController(ctx context.Context, spec types.ClusterSpec, id CallerIdentity, emit stream.Emitter) bool {
	skip := func(step string, err error) bool {
		p.logger.Warn().Err(err).Str("step", step).Msg("ALB setup step failed")
		emit.Log(fmt.Sprintf("warning: %s failed: %v; skipping remaining ALB setup", step, err))
		return false
	}

	// cert-manager's webhook takes a while to admit objects after install,
	// which makes the first apply flaky on a fresh cluster
	emit.Log("Installing cert-manager (ALB controller prerequisite)...")
	res := p.runner.RunWithRetry(ctx, types.ExecutionRequest{
		Command: "kubectl",
		Args:    []string{"apply", "--validate=false", "-f", p.opts.CertManagerManifest},
	}, emit, p.opts.RetryAttempts, p.opts.RetryDelay)
	if !res.Success {
		return skip("cert-manager installation", fmt.Errorf("exit code %d after %d attempts", res.ExitCode, p.opts.RetryAttempts))
	}

	emit.Log("Ensuring IAM policy for the ALB controller...")
	policyArn, err := p.ensureALBPolicy(ctx, id)
	if err != nil {
		return skip("ALB IAM policy creation", err)
	}

	emit.Log("Creating IAM service account for the ALB controller...")
	res = p.runner.RunStreaming(ctx, types.ExecutionRequest{
		Command: "eksctl",
		Args: []string{
			"create", "iamserviceaccount",
			"--cluster", spec.Name,
			"--region", spec.Region,
			"--namespace", "kube-system",
			"--name", albServiceAccount,
			"--attach-policy-arn", policyArn,
			"--approve",
			"--override-existing-serviceaccounts",
		},
	}, emit)
	if !res.Success {
		return skip("IAM service account creation", fmt.Errorf("exit code %d", res.ExitCode))
	}

	emit.Log("Deploying the ALB controller...")
	res = p.runner.RunStreaming(ctx, types.ExecutionRequest{
		Command: "kubectl",
		Args:    []string{"apply", "-f", p.opts.ALBControllerManifest},
	}, emit)
	if !res.Success {
		return skip("ALB controller deployment", fmt.Errorf("exit code %d", res.ExitCode))
	}

	emit.Log("ALB ingress controller installed")
	return true
}

// ensureALBPolicy creates the controller IAM policy if absent and returns
// its ARN. An EntityAlreadyExists failure means a previous run (or another
// cluster in the account) created it, so the well-known ARN is reused.
func (p *Provisioner) ensureALBPolicy(ctx context.Context, id CallerIdentity) (string, error) {
	accountArn := fmt.Sprintf("arn:aws:iam::%s:policy/%s", id.Account, albPolicyName)

	res, err := p.runner.Run(ctx, types.ExecutionRequest{
		Command: "aws",
		Args: []string{
			"iam", "create-policy",
			"--policy-name", albPolicyName,
			"--policy-document", albPolicyDocument,
			"--output", "json",
		},
	})
	if err != nil {
		if strings.Contains(err.Error(), "EntityAlreadyExists") {
			return accountArn, nil
		}
		return "", err
	}

	var created struct {
		Policy struct {
			Arn string `json:"Arn"`
		} `json:"Policy"`
	}
	if perr := executor.ParseJSON(res.Stdout, &created, "create ALB policy"); perr == nil && created.Policy.Arn != "" {
		return created.Policy.Arn, nil
	}
	return accountArn, nil
}

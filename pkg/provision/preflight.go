package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/executor"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/types"
)

// RequiredIAMActions is the minimum set of IAM permissions creation needs.
// eksctl itself requires far more, but these are the ones whose absence
// surfaces only deep into CloudFormation stack creation.
var RequiredIAMActions = []string{
	"iam:CreateRole",
	"iam:AttachRolePolicy",
	"iam:PutRolePolicy",
	"iam:CreateServiceLinkedRole",
}

// CallerIdentity is the relevant subset of `aws sts get-caller-identity`
type CallerIdentity struct {
	Account string `json:"Account"`
	Arn     string `json:"Arn"`
	UserID  string `json:"UserId"`
}

type policySimulation struct {
	EvaluationResults []struct {
		EvalActionName string `json:"EvalActionName"`
		EvalDecision   string `json:"EvalDecision"`
	} `json:"EvaluationResults"`
}

// preflight resolves the caller identity and simulates the required IAM
// actions against it. Any non-allowed decision aborts with the denied
// actions named, so the user learns what to fix before anything is created.
func (p *Provisioner) preflight(ctx context.Context) (CallerIdentity, error) {
	id, err := p.callerIdentity(ctx)
	if err != nil {
		return CallerIdentity{}, err
	}

	args := []string{"iam", "simulate-principal-policy", "--policy-source-arn", id.Arn, "--output", "json", "--action-names"}
	args = append(args, RequiredIAMActions...)
	res, err := p.runner.Run(ctx, types.ExecutionRequest{Command: "aws", Args: args})
	if err != nil {
		return id, fmt.Errorf("could not simulate IAM policy for %s: %v", id.Arn, err)
	}

	var sim policySimulation
	if err := executor.ParseJSON(res.Stdout, &sim, "IAM policy simulation"); err != nil {
		return id, err
	}

	var denied []string
	for _, r := range sim.EvaluationResults {
		if r.EvalDecision != "allowed" {
			denied = append(denied, r.EvalActionName)
		}
	}
	if len(denied) > 0 {
		return id, fmt.Errorf("missing IAM permissions: %s", strings.Join(denied, ", "))
	}
	return id, nil
}

func (p *Provisioner) callerIdentity(ctx context.Context) (CallerIdentity, error) {
	res, err := p.runner.Run(ctx, types.ExecutionRequest{
		Command: "aws",
		Args:    []string{"sts", "get-caller-identity", "--output", "json"},
	})
	if err != nil {
		return CallerIdentity{}, fmt.Errorf("could not resolve AWS caller identity: %v", err)
	}

	var id CallerIdentity
	if err := executor.ParseJSON(res.Stdout, &id, "caller identity"); err != nil {
		return CallerIdentity{}, err
	}
	if id.Arn == "" {
		return CallerIdentity{}, fmt.Errorf("caller identity: response missing principal ARN")
	}
	return id, nil
}

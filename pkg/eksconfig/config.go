package eksconfig

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/types"
)

// ClusterConfig mirrors the eksctl ClusterConfig document. It is the
// canonical boundary between what the user asked for and what eksctl
// executes; the rendered YAML is fed to `eksctl create cluster -f -` over
// stdin.
type ClusterConfig struct {
	APIVersion        string      `yaml:"apiVersion"`
	Kind              string      `yaml:"kind"`
	Metadata          Metadata    `yaml:"metadata"`
	IAM               IAM         `yaml:"iam"`
	ManagedNodeGroups []NodeGroup `yaml:"managedNodeGroups"`
	Addons            []Addon     `yaml:"addons"`
}

// Metadata identifies the cluster
type Metadata struct {
	Name    string `yaml:"name"`
	Region  string `yaml:"region"`
	Version string `yaml:"version,omitempty"`
}

// IAM holds cluster-wide IAM settings. OIDC is always enabled because the
// post-creation IAM-service-account steps (ALB controller, CSI drivers)
// depend on the cluster's OIDC issuer, which only exists after creation.
type IAM struct {
	WithOIDC bool `yaml:"withOIDC"`
}

// NodeGroup is a managed node group definition
type NodeGroup struct {
	Name            string `yaml:"name"`
	InstanceType    string `yaml:"instanceType"`
	MinSize         int    `yaml:"minSize"`
	MaxSize         int    `yaml:"maxSize"`
	DesiredCapacity int    `yaml:"desiredCapacity"`
	VolumeSize      int    `yaml:"volumeSize"`
	SSH             *SSH   `yaml:"ssh,omitempty"`
}

// SSH enables node SSH access with an existing EC2 key pair
type SSH struct {
	Allow         bool   `yaml:"allow"`
	PublicKeyName string `yaml:"publicKeyName"`
}

// Addon names an EKS managed add-on. Service accounts are deliberately not
// declared here; they are created in separate post-creation steps once the
// OIDC issuer is known.
type Addon struct {
	Name string `yaml:"name"`
}

// defaultNodeGroupName is used when the request leaves the group unnamed
const defaultNodeGroupName = "ng-1"

// Render validates the spec and produces the ClusterConfig YAML document
func Render(spec types.ClusterSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", fmt.Errorf("invalid cluster spec: %w", err)
	}

	ngName := spec.NodeGroup.Name
	if ngName == "" {
		ngName = defaultNodeGroupName
	}

	ng := NodeGroup{
		Name:            ngName,
		InstanceType:    spec.NodeGroup.InstanceType,
		MinSize:         spec.NodeGroup.MinSize,
		MaxSize:         spec.NodeGroup.MaxSize,
		DesiredCapacity: spec.NodeGroup.DesiredSize,
		VolumeSize:      spec.NodeGroup.VolumeSize,
	}
	if spec.NodeGroup.SSHKeyName != "" {
		ng.SSH = &SSH{Allow: true, PublicKeyName: spec.NodeGroup.SSHKeyName}
	}

	addons := []Addon{{Name: "vpc-cni"}}
	if spec.EBSCSIDriver {
		addons = append(addons, Addon{Name: "aws-ebs-csi-driver"})
	}
	if spec.EFSCSIDriver {
		addons = append(addons, Addon{Name: "aws-efs-csi-driver"})
	}

	cfg := ClusterConfig{
		APIVersion: "eksctl.io/v1alpha5",
		Kind:       "ClusterConfig",
		Metadata: Metadata{
			Name:    spec.Name,
			Region:  spec.Region,
			Version: spec.Version,
		},
		IAM:               IAM{WithOIDC: true},
		ManagedNodeGroups: []NodeGroup{ng},
		Addons:            addons,
	}

	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return "", fmt.Errorf("failed to render cluster config: %w", err)
	}
	return string(out), nil
}

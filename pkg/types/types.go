package types

import (
	"fmt"
	"regexp"
)

// ExecutionRequest describes a single external CLI invocation.
// It is immutable once issued to the executor.
type ExecutionRequest struct {
	Command string
	Args    []string
	Stdin   string // optional payload piped to the child's stdin
}

// String renders the request as a shell-style command line for logs.
func (r ExecutionRequest) String() string {
	s := r.Command
	for _, a := range r.Args {
		s += " " + a
	}
	return s
}

// ExecutionResult holds the outcome of a completed subprocess.
// Never mutated after the subprocess exits.
type ExecutionResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// CommandType identifies an inbound WebSocket command
type CommandType string

const (
	CommandCreate CommandType = "create"
	CommandDelete CommandType = "delete"
)

// Command is the inbound WebSocket message envelope.
// Payload is decoded per CommandType: ClusterSpec for create,
// DeleteSpec for delete.
type Command struct {
	CommandType CommandType `json:"commandType"`
	Payload     RawPayload  `json:"payload"`
}

// RawPayload defers payload decoding until the command type is known
type RawPayload []byte

// UnmarshalJSON stores the raw bytes verbatim
func (p *RawPayload) UnmarshalJSON(data []byte) error {
	*p = append((*p)[:0], data...)
	return nil
}

// MarshalJSON returns the raw bytes verbatim
func (p RawPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// NodeGroupSpec describes the single managed node group of a cluster
type NodeGroupSpec struct {
	Name         string `json:"name"`
	InstanceType string `json:"instanceType"`
	MinSize      int    `json:"minSize"`
	MaxSize      int    `json:"maxSize"`
	DesiredSize  int    `json:"desiredSize"`
	VolumeSize   int    `json:"volumeSize"` // GiB
	SSHKeyName   string `json:"sshKeyName,omitempty"`
}

// ClusterSpec is the user-facing request to create a cluster
type ClusterSpec struct {
	Name         string        `json:"name"`
	Region       string        `json:"region"`
	Version      string        `json:"version,omitempty"` // Kubernetes version, e.g. "1.29"
	NodeGroup    NodeGroupSpec `json:"nodeGroup"`
	EnableALB    bool          `json:"enableALB"`
	EBSCSIDriver bool          `json:"ebsCSIDriver"`
	EFSCSIDriver bool          `json:"efsCSIDriver"`
}

// DeleteSpec identifies the cluster to tear down
type DeleteSpec struct {
	Name   string `json:"name"`
	Region string `json:"region"`
}

var (
	namePattern    = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]{0,99}$`)
	regionPattern  = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-\d$`)
	versionPattern = regexp.MustCompile(`^\d+\.\d+$`)
)

// Validate performs shape checks on the spec before any CLI is invoked
func (s *ClusterSpec) Validate() error {
	if !namePattern.MatchString(s.Name) {
		return fmt.Errorf("invalid cluster name %q: must start with a letter and contain only letters, digits, and hyphens", s.Name)
	}
	if !regionPattern.MatchString(s.Region) {
		return fmt.Errorf("invalid region %q", s.Region)
	}
	if s.Version != "" && !versionPattern.MatchString(s.Version) {
		return fmt.Errorf("invalid Kubernetes version %q", s.Version)
	}
	return s.NodeGroup.Validate()
}

// Validate checks node group sizing bounds
func (g *NodeGroupSpec) Validate() error {
	if g.Name != "" && !namePattern.MatchString(g.Name) {
		return fmt.Errorf("invalid node group name %q", g.Name)
	}
	if g.InstanceType == "" {
		return fmt.Errorf("node group instance type is required")
	}
	if g.MinSize < 1 {
		return fmt.Errorf("node group min size must be at least 1, got %d", g.MinSize)
	}
	if g.MaxSize < g.MinSize {
		return fmt.Errorf("node group max size %d is below min size %d", g.MaxSize, g.MinSize)
	}
	if g.DesiredSize < g.MinSize || g.DesiredSize > g.MaxSize {
		return fmt.Errorf("node group desired size %d must be within [%d, %d]", g.DesiredSize, g.MinSize, g.MaxSize)
	}
	if g.VolumeSize < 1 {
		return fmt.Errorf("node group volume size must be at least 1 GiB, got %d", g.VolumeSize)
	}
	return nil
}

// Validate performs shape checks on the teardown request
func (s *DeleteSpec) Validate() error {
	if !namePattern.MatchString(s.Name) {
		return fmt.Errorf("invalid cluster name %q", s.Name)
	}
	if !regionPattern.MatchString(s.Region) {
		return fmt.Errorf("invalid region %q", s.Region)
	}
	return nil
}

package api

import (
	"fmt"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/executor"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/types"
)

// resourceKind maps a URL resource segment to the kubectl kind it queries
type resourceKind struct {
	kind       string
	namespaced bool
}

// resources is the whitelist of kinds the REST surface exposes. Anything
// not listed is a 404, never a pass-through to kubectl.
var resources = map[string]resourceKind{
	"pods":                   {"pods", true},
	"deployments":            {"deployments", true},
	"services":               {"services", true},
	"ingresses":              {"ingresses", true},
	"configmaps":             {"configmaps", true},
	"secrets":                {"secrets", true},
	"persistentvolumeclaims": {"persistentvolumeclaims", true},
	"roles":                  {"roles", true},
	"rolebindings":           {"rolebindings", true},
	"events":                 {"events", true},
	"namespaces":             {"namespaces", false},
	"nodes":                  {"nodes", false},
	"persistentvolumes":      {"persistentvolumes", false},
	"storageclasses":         {"storageclasses", false},
}

// k8sNamePattern bounds path and query values interpolated into kubectl
// argument lists
var k8sNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,252}$`)

func fail(c *gin.Context, code int, msg string, err error) {
	body := gin.H{"error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(code, body)
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listResource(c *gin.Context) {
	res, ok := resources[c.Param("resource")]
	if !ok {
		fail(c, http.StatusNotFound, fmt.Sprintf("unknown resource %q", c.Param("resource")), nil)
		return
	}

	key := "list/" + res.kind
	args := []string{"get", res.kind, "-o", "json"}
	if res.namespaced {
		ns := c.DefaultQuery("namespace", "default")
		if !k8sNamePattern.MatchString(ns) {
			fail(c, http.StatusBadRequest, "invalid namespace", nil)
			return
		}
		args = append(args, "-n", ns)
		key += "/" + ns
	}

	force := c.Query("force") == "true"
	if v, hit := s.app.Cache.Get(key, s.app.CacheTTL, force); hit {
		c.Data(http.StatusOK, "application/json", v.([]byte))
		return
	}

	out, err := s.app.Runner.Run(c.Request.Context(), types.ExecutionRequest{Command: "kubectl", Args: args})
	if err != nil {
		fail(c, http.StatusBadGateway, fmt.Sprintf("Failed to list %s", res.kind), err)
		return
	}
	payload, err := executor.ExtractJSON(out.Stdout, "list "+res.kind)
	if err != nil {
		fail(c, http.StatusBadGateway, fmt.Sprintf("Failed to list %s", res.kind), err)
		return
	}

	s.app.Cache.Set(key, payload)
	c.Data(http.StatusOK, "application/json", payload)
}

func (s *Server) getResource(c *gin.Context) {
	res, ok := resources[c.Param("resource")]
	if !ok {
		fail(c, http.StatusNotFound, fmt.Sprintf("unknown resource %q", c.Param("resource")), nil)
		return
	}
	name := c.Param("name")
	if !k8sNamePattern.MatchString(name) {
		fail(c, http.StatusBadRequest, "invalid resource name", nil)
		return
	}

	key := "get/" + res.kind + "/" + name
	args := []string{"get", res.kind, name, "-o", "json"}
	if res.namespaced {
		ns := c.DefaultQuery("namespace", "default")
		if !k8sNamePattern.MatchString(ns) {
			fail(c, http.StatusBadRequest, "invalid namespace", nil)
			return
		}
		args = append(args, "-n", ns)
		key = "get/" + res.kind + "/" + ns + "/" + name
	}

	force := c.Query("force") == "true"
	if v, hit := s.app.Cache.Get(key, s.app.CacheTTL, force); hit {
		c.Data(http.StatusOK, "application/json", v.([]byte))
		return
	}

	out, err := s.app.Runner.Run(c.Request.Context(), types.ExecutionRequest{Command: "kubectl", Args: args})
	if err != nil {
		fail(c, http.StatusBadGateway, fmt.Sprintf("Failed to get %s '%s'", res.kind, name), err)
		return
	}
	payload, err := executor.ExtractJSON(out.Stdout, "get "+res.kind)
	if err != nil {
		fail(c, http.StatusBadGateway, fmt.Sprintf("Failed to get %s '%s'", res.kind, name), err)
		return
	}

	s.app.Cache.Set(key, payload)
	c.Data(http.StatusOK, "application/json", payload)
}

func (s *Server) deleteResource(c *gin.Context) {
	res, ok := resources[c.Param("resource")]
	if !ok {
		fail(c, http.StatusNotFound, fmt.Sprintf("unknown resource %q", c.Param("resource")), nil)
		return
	}
	name := c.Param("name")
	if !k8sNamePattern.MatchString(name) {
		fail(c, http.StatusBadRequest, "invalid resource name", nil)
		return
	}

	args := []string{"delete", res.kind, name}
	if res.namespaced {
		ns := c.DefaultQuery("namespace", "default")
		if !k8sNamePattern.MatchString(ns) {
			fail(c, http.StatusBadRequest, "invalid namespace", nil)
			return
		}
		args = append(args, "-n", ns)
	}

	out, err := s.app.Runner.Run(c.Request.Context(), types.ExecutionRequest{Command: "kubectl", Args: args})
	if err != nil {
		fail(c, http.StatusBadGateway, fmt.Sprintf("Failed to delete %s '%s'", res.kind, name), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("%s '%s' deleted", res.kind, name),
		"output":  out.Stdout,
	})
}

func (s *Server) applyManifest(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		fail(c, http.StatusBadRequest, "request body must contain a manifest", err)
		return
	}

	out, err := s.app.Runner.Run(c.Request.Context(), types.ExecutionRequest{
		Command: "kubectl",
		Args:    []string{"apply", "-f", "-"},
		Stdin:   string(body),
	})
	if err != nil {
		fail(c, http.StatusBadGateway, "Failed to apply manifest", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "manifest applied", "output": out.Stdout})
}

func (s *Server) scaleDeployment(c *gin.Context) {
	name := c.Param("name")
	if !k8sNamePattern.MatchString(name) {
		fail(c, http.StatusBadRequest, "invalid deployment name", nil)
		return
	}

	var req struct {
		Replicas  *int   `json:"replicas"`
		Namespace string `json:"namespace"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid scale request", err)
		return
	}
	if req.Replicas == nil || *req.Replicas < 0 {
		fail(c, http.StatusBadRequest, "replicas must be a non-negative integer", nil)
		return
	}
	ns := req.Namespace
	if ns == "" {
		ns = "default"
	}
	if !k8sNamePattern.MatchString(ns) {
		fail(c, http.StatusBadRequest, "invalid namespace", nil)
		return
	}

	out, err := s.app.Runner.Run(c.Request.Context(), types.ExecutionRequest{
		Command: "kubectl",
		Args:    []string{"scale", "deployment", name, fmt.Sprintf("--replicas=%d", *req.Replicas), "-n", ns},
	})
	if err != nil {
		fail(c, http.StatusBadGateway, fmt.Sprintf("Failed to scale deployment '%s'", name), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("deployment '%s' scaled to %d", name, *req.Replicas),
		"output":  out.Stdout,
	})
}

// getAWSAuth returns the aws-auth config map, the EKS mapping between IAM
// principals and cluster RBAC
func (s *Server) getAWSAuth(c *gin.Context) {
	out, err := s.app.Runner.Run(c.Request.Context(), types.ExecutionRequest{
		Command: "kubectl",
		Args:    []string{"get", "configmap", "aws-auth", "-n", "kube-system", "-o", "yaml"},
	})
	if err != nil {
		fail(c, http.StatusBadGateway, "Failed to read aws-auth config map", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"output": out.Stdout})
}

func (s *Server) portForwardStatus(c *gin.Context) {
	fwd, ok := s.app.Forwards.Active()
	if !ok {
		fail(c, http.StatusNotFound, "no active port-forward", nil)
		return
	}
	c.JSON(http.StatusOK, fwd)
}

func (s *Server) startPortForward(c *gin.Context) {
	var req struct {
		Namespace  string `json:"namespace"`
		Service    string `json:"service"`
		LocalPort  int    `json:"localPort"`
		RemotePort int    `json:"remotePort"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid port-forward request", err)
		return
	}

	fwd, err := s.app.Forwards.Start(c.Request.Context(), req.Namespace, req.Service, req.LocalPort, req.RemotePort)
	if err != nil {
		fail(c, http.StatusBadGateway, "Failed to start port-forward", err)
		return
	}
	c.JSON(http.StatusOK, fwd)
}

func (s *Server) stopPortForward(c *gin.Context) {
	s.app.Forwards.Stop()
	c.JSON(http.StatusOK, gin.H{"message": "port-forward stopped"})
}

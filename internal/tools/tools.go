// Package tools registers the concrete tool catalog (spec.md §4.2's
// worked examples: get_cluster_status, stop/start/reboot vm,
// service_restart, ssh_exec) against the tool registry, wiring each
// handler to the Proxmox and SSH infra clients. Grounded on the
// teacher's internal/tools/nodes.Tool shape: one struct per concern,
// a JSON-schema argument description, and a pure handler function with
// no logging or persistence of its own (that belongs to the executor).
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jarvis-homelab/jarvis/internal/infra/proxmox"
	"github.com/jarvis-homelab/jarvis/internal/infra/sshpool"
	"github.com/jarvis-homelab/jarvis/internal/models"
	"github.com/jarvis-homelab/jarvis/internal/tooling"
)

// sshExecTimeout bounds any single ssh_exec/service_restart call.
const sshExecTimeout = 20 * time.Second

// Deps is what the catalog needs to build working handlers. Either
// client may be nil, in which case the tools that depend on it report
// a clear "not configured" error instead of panicking.
type Deps struct {
	Proxmox *proxmox.Client
	SSH     *sshpool.Pool

	// NodeHosts maps a Proxmox node name to its SSH-reachable host,
	// shared with internal/realtime's terminal channel (spec.md §4.12).
	NodeHosts map[string]string
}

// Register adds the full built-in catalog to registry. Intended to be
// called once at startup, before the registry is handed to the agentic
// loop and the REST API.
func Register(registry *tooling.Registry, deps Deps) error {
	for _, decl := range declarations(deps) {
		if err := tooling.Register(registry, decl); err != nil {
			return fmt.Errorf("tools: register %s: %w", decl.Name, err)
		}
	}
	return nil
}

func declarations(deps Deps) []tooling.Declaration {
	return []tooling.Declaration{
		{
			Name:        "get_cluster_status",
			Description: "Report live Proxmox cluster, node, and VM status.",
			Tier:        models.TierGreen,
			Schema:      json.RawMessage(`{"type":"object","properties":{}}`),
			Handler:     deps.getClusterStatus,
		},
		{
			Name:        "vm_start",
			Description: "Start a stopped VM.",
			Tier:        models.TierYellow,
			Schema:      vmActionSchema,
			Handler:     deps.vmAction("start"),
		},
		{
			Name:        "vm_stop",
			Description: "Power off a running VM.",
			Tier:        models.TierRed,
			Schema:      vmActionSchema,
			Handler:     deps.vmAction("stop"),
		},
		{
			Name:        "vm_reboot",
			Description: "Reboot a running VM.",
			Tier:        models.TierRed,
			Schema:      vmActionSchema,
			Handler:     deps.vmAction("reboot"),
		},
		{
			Name:        "service_restart",
			Description: "Restart a systemd unit on a cluster node over SSH.",
			Tier:        models.TierOrange,
			IsSSHLike:   true,
			Schema:      serviceRestartSchema,
			Handler:     deps.serviceRestart,
		},
		{
			Name:        "ssh_exec",
			Description: "Run one allowlisted command on a cluster node over SSH.",
			Tier:        models.TierYellow,
			IsSSHLike:   true,
			Schema:      sshExecSchema,
			Handler:     deps.sshExec,
		},
	}
}

var vmActionSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"node": {"type": "string", "description": "Proxmox node name"},
		"vmid": {"type": "integer", "description": "VM or container ID"}
	},
	"required": ["node", "vmid"]
}`)

var serviceRestartSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"node": {"type": "string", "description": "Cluster node name"},
		"service": {"type": "string", "description": "systemd unit name"}
	},
	"required": ["node", "service"]
}`)

var sshExecSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"node": {"type": "string", "description": "Cluster node name"},
		"command": {"type": "string", "description": "Allowlisted binary, no arguments requiring shell features"}
	},
	"required": ["node", "command"]
}`)

func (d Deps) getClusterStatus(ctx context.Context, _ map[string]any) (string, error) {
	if d.Proxmox == nil {
		return "", fmt.Errorf("proxmox client not configured")
	}
	resources, err := d.Proxmox.ClusterResources(ctx)
	if err != nil {
		return "", err
	}
	status, err := d.Proxmox.ClusterStatus(ctx)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(map[string]any{
		"resources": resources,
		"status":    status,
	})
	if err != nil {
		return "", fmt.Errorf("tools: encode cluster status: %w", err)
	}
	return string(out), nil
}

// vmAction returns a handler bound to one Proxmox lifecycle action
// (start/stop/reboot), sharing argument parsing across all three tools.
func (d Deps) vmAction(action string) models.ToolHandler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		if d.Proxmox == nil {
			return "", fmt.Errorf("proxmox client not configured")
		}
		node, vmid, err := parseNodeVMID(args)
		if err != nil {
			return "", err
		}
		if err := d.Proxmox.VMAction(ctx, node, vmid, action); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s issued for vm %d on %s", action, vmid, node), nil
	}
}

func parseNodeVMID(args map[string]any) (string, int, error) {
	node, _ := args["node"].(string)
	node = strings.TrimSpace(node)
	if node == "" {
		return "", 0, fmt.Errorf("node is required")
	}
	switch v := args["vmid"].(type) {
	case float64:
		return node, int(v), nil
	case int:
		return node, v, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return "", 0, fmt.Errorf("vmid must be a number")
		}
		return node, n, nil
	default:
		return "", 0, fmt.Errorf("vmid is required")
	}
}

func (d Deps) hostFor(node string) (string, error) {
	host, ok := d.NodeHosts[strings.ToLower(node)]
	if !ok {
		return "", fmt.Errorf("no SSH host configured for node %q", node)
	}
	return host, nil
}

func (d Deps) serviceRestart(ctx context.Context, args map[string]any) (string, error) {
	if d.SSH == nil {
		return "", fmt.Errorf("ssh pool not configured")
	}
	node, _ := args["node"].(string)
	service, _ := args["service"].(string)
	service = strings.TrimSpace(service)
	if node == "" || service == "" {
		return "", fmt.Errorf("node and service are required")
	}
	host, err := d.hostFor(node)
	if err != nil {
		return "", err
	}
	result, err := d.SSH.Exec(ctx, host, "systemctl restart "+service, sshExecTimeout)
	if err != nil {
		return "", err
	}
	if result.Code != 0 {
		return "", fmt.Errorf("systemctl restart %s exited %d: %s", service, result.Code, result.Stderr)
	}
	return fmt.Sprintf("%s restarted on %s", service, node), nil
}

func (d Deps) sshExec(ctx context.Context, args map[string]any) (string, error) {
	if d.SSH == nil {
		return "", fmt.Errorf("ssh pool not configured")
	}
	node, _ := args["node"].(string)
	command, _ := args["command"].(string)
	command = strings.TrimSpace(command)
	if node == "" || command == "" {
		return "", fmt.Errorf("node and command are required")
	}
	host, err := d.hostFor(node)
	if err != nil {
		return "", err
	}
	result, err := d.SSH.Exec(ctx, host, command, sshExecTimeout)
	if err != nil {
		return "", err
	}
	if result.Code != 0 {
		return "", fmt.Errorf("command exited %d: %s", result.Code, result.Stderr)
	}
	return result.Stdout, nil
}

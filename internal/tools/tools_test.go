package tools

import (
	"context"
	"testing"

	"github.com/jarvis-homelab/jarvis/internal/models"
	"github.com/jarvis-homelab/jarvis/internal/tooling"
)

func TestRegister_AddsBuiltinCatalog(t *testing.T) {
	registry := tooling.NewRegistry()
	if err := Register(registry, Deps{}); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"get_cluster_status", "vm_start", "vm_stop", "vm_reboot", "service_restart", "ssh_exec"} {
		if _, ok := registry.Lookup(name); !ok {
			t.Errorf("expected %s to be registered", name)
		}
	}
	if tier := registry.TierOf("vm_stop"); tier != models.TierRed {
		t.Errorf("expected vm_stop to be RED, got %s", tier)
	}
}

func TestGetClusterStatus_RequiresProxmoxClient(t *testing.T) {
	d := Deps{}
	if _, err := d.getClusterStatus(context.Background(), nil); err == nil {
		t.Fatal("expected error with no proxmox client configured")
	}
}

func TestVMAction_RequiresProxmoxClient(t *testing.T) {
	d := Deps{}
	handler := d.vmAction("stop")
	if _, err := handler(context.Background(), map[string]any{"node": "pve", "vmid": 105}); err == nil {
		t.Fatal("expected error with no proxmox client configured")
	}
}

func TestParseNodeVMID(t *testing.T) {
	cases := []struct {
		name    string
		args    map[string]any
		wantErr bool
		wantID  int
	}{
		{"float64 vmid", map[string]any{"node": "pve", "vmid": float64(105)}, false, 105},
		{"string vmid", map[string]any{"node": "pve", "vmid": "105"}, false, 105},
		{"missing node", map[string]any{"vmid": 105}, true, 0},
		{"missing vmid", map[string]any{"node": "pve"}, true, 0},
		{"non-numeric vmid", map[string]any{"node": "pve", "vmid": "abc"}, true, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			node, vmid, err := parseNodeVMID(tc.args)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if node != "pve" || vmid != tc.wantID {
				t.Errorf("got node=%s vmid=%d", node, vmid)
			}
		})
	}
}

func TestServiceRestart_RequiresSSHPool(t *testing.T) {
	d := Deps{}
	if _, err := d.serviceRestart(context.Background(), map[string]any{"node": "pve", "service": "nginx"}); err == nil {
		t.Fatal("expected error with no ssh pool configured")
	}
}

func TestHostFor_UnknownNodeErrors(t *testing.T) {
	d := Deps{NodeHosts: map[string]string{"pve": "10.0.0.1"}}
	if _, err := d.hostFor("unknown"); err == nil {
		t.Fatal("expected error for unmapped node")
	}
	host, err := d.hostFor("PVE")
	if err != nil || host != "10.0.0.1" {
		t.Errorf("expected case-insensitive lookup to succeed, got host=%q err=%v", host, err)
	}
}

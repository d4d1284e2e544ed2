package capability

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		probe Probe
		want  Capability
	}{
		{"absent facility", Probe{Version: 0, MinVersion: 1, PermissionGranted: true}, Unsupported},
		{"below threshold with permission", Probe{Version: 33, MinVersion: 34, PermissionGranted: true}, Unsupported},
		{"below threshold without permission", Probe{Version: 33, MinVersion: 34}, Unsupported},
		{"at threshold without permission", Probe{Version: 34, MinVersion: 34}, SupportedNoPermission},
		{"at threshold granted", Probe{Version: 34, MinVersion: 34, PermissionGranted: true}, SupportedGranted},
		{"above threshold granted", Probe{Version: 35, MinVersion: 34, PermissionGranted: true}, SupportedGranted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.probe); got != tt.want {
				t.Fatalf("Resolve(%+v) = %v, want %v", tt.probe, got, tt.want)
			}
		})
	}
}

func TestCanDetect(t *testing.T) {
	if Unsupported.CanDetect() || SupportedNoPermission.CanDetect() {
		t.Fatal("only granted capability may detect")
	}
	if !SupportedGranted.CanDetect() {
		t.Fatal("granted capability must detect")
	}
}

package version

import "testing"

func TestInfo_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b Info
		want bool
	}{
		{"same commit", Info{GitCommit: "abc123"}, Info{GitCommit: "abc123"}, true},
		{"different commit", Info{GitCommit: "abc123"}, Info{GitCommit: "def456"}, false},
		{"both empty", Info{}, Info{}, true},
		{"ignores other fields", Info{GitCommit: "abc123", GitBranch: "main"}, Info{GitCommit: "abc123", GitBranch: "dev"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGet_PopulatesBuildInfo(t *testing.T) {
	info := Get()
	if info.BuildInfo == nil {
		t.Error("Get().BuildInfo is nil; expected debug.ReadBuildInfo to succeed under go test")
	}
}

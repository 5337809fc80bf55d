package policy

import "testing"

func TestParseApprovalMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    ApprovalMode
		wantErr bool
	}{
		{"default", ModeDefault, false},
		{"auto_edit", ModeAutoEdit, false},
		{"auto-edit", ModeAutoEdit, false},
		{"yolo", ModeYOLO, false},
		{"plan", ModePlan, false},
		{"", ModeDefault, false},
		{"turbo", "", true},
	}

	for _, tt := range tests {
		got, err := ParseApprovalMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseApprovalMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseApprovalMode(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

package models

import "testing"

func TestFindCommand(t *testing.T) {
	def := &ToolDefinition{
		Name: "files",
		Commands: []Command{
			{Name: "read", Classification: ClassificationRead},
			{Name: "delete", Classification: ClassificationDestruct},
		},
	}

	cmd := def.FindCommand("delete")
	if cmd == nil {
		t.Fatal("expected delete command")
	}
	if cmd.Classification != ClassificationDestruct {
		t.Errorf("classification = %q, want %q", cmd.Classification, ClassificationDestruct)
	}

	if def.FindCommand("missing") != nil {
		t.Error("expected nil for unknown command")
	}
}

func TestJobValidate(t *testing.T) {
	tests := []struct {
		name    string
		job     Job
		wantErr bool
	}{
		{"valid run job", Job{ID: "j1", Type: JobTypeRun}, false},
		{"valid memory write", Job{ID: "j2", Type: JobTypeMemoryWrite}, false},
		{"missing id", Job{Type: JobTypeRun}, true},
		{"unknown type", Job{ID: "j3", Type: "reindex"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

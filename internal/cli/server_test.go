package cli

import (
	"testing"

	"inclusion-quiz-service/internal/domain"
)

func TestSampleDefinitionsAreValid(t *testing.T) {
	for id, def := range sampleDefinitions() {
		if def.ID != id {
			t.Fatalf("sample keyed %s carries id %s", id, def.ID)
		}
		if err := domain.ValidateDefinition(def); err != nil {
			t.Fatalf("sample %s invalid: %v", id, err)
		}
	}
}

func TestRootCommandWiresSubcommands(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"start", "migrate"} {
		sub, _, err := cmd.Find([]string{name})
		if err != nil || sub.Name() != name {
			t.Fatalf("expected %s subcommand, got %v (%v)", name, sub, err)
		}
	}
	if cmd.PersistentFlags().Lookup("config") == nil || cmd.PersistentFlags().Lookup("port") == nil {
		t.Fatalf("expected persistent config and port flags")
	}
}

package capabilities

import "testing"

func TestProviderFamily(t *testing.T) {
	tests := map[string]Family{
		"":                   FamilyDefault,
		"anthropic":          FamilyDefault,
		"MiniMax-M2":         FamilyWrapping,
		"xai":                FamilyWrapping,
		"grok-4":             FamilyWrapping,
		"zhipu":              FamilyGLM,
		"chatglm-turbo":      FamilyGLM,
		"openrouter/glm-4.6": FamilyGLM,
	}
	for input, want := range tests {
		if got := ProviderFamily(input); got != want {
			t.Fatalf("ProviderFamily(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestUnwrapKeysPerFamily(t *testing.T) {
	if got := FamilyGLM.UnwrapKeys(); len(got) != 4 || got[0] != "parameters" {
		t.Fatalf("unexpected glm keys: %v", got)
	}
	if got := FamilyWrapping.UnwrapKeys(); len(got) != len(WrapperKeys) {
		t.Fatalf("unexpected wrapping keys: %v", got)
	}
}

func TestRequiresLifecycleEvidence(t *testing.T) {
	if !RequiresLifecycleEvidence("claude-sdk") {
		t.Fatalf("expected claude-sdk to require lifecycle evidence")
	}
	if RequiresLifecycleEvidence("pi-embedded") {
		t.Fatalf("did not expect other runtimes to require lifecycle evidence")
	}
}

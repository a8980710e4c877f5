package auditerr

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapNil(t *testing.T) {
	if err := Wrap(nil, KindInternal); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := WithStage(nil, "extracting"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestKindAndStage(t *testing.T) {
	base := errors.New("connection refused")
	err := WithStage(Wrap(base, KindLLMUnavailable), "reasoning")

	if KindOf(err) != KindLLMUnavailable {
		t.Fatalf("expected %s, got %s", KindLLMUnavailable, KindOf(err))
	}
	if StageOf(err) != "reasoning" {
		t.Fatalf("expected stage reasoning, got %q", StageOf(err))
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped cause to be reachable with errors.Is")
	}
	if CauseOf(err) != base {
		t.Fatalf("expected base cause, got %v", CauseOf(err))
	}
	if !strings.Contains(err.Error(), "reasoning") {
		t.Errorf("expected stage in message, got %q", err.Error())
	}
}

func TestWithStageUnclassified(t *testing.T) {
	err := WithStage(errors.New("boom"), "retrieving")
	if !Is(err, KindInternal) {
		t.Fatalf("expected internal kind, got %s", KindOf(err))
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("plain")) != "" {
		t.Fatal("expected empty kind for unclassified error")
	}
}

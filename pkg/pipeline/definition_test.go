package pipeline

import (
	"context"
	"testing"
)

func noopStep() StepFunc[*site] {
	return func(context.Context, *site, Params) error { return nil }
}

func TestNewDefinition_ValidChain(t *testing.T) {
	def, err := NewDefinition("initial", "done", []Stage[*site]{
		{Name: "first", From: "initial", To: "middle", Step: noopStep()},
		{Name: "second", From: "middle", To: "done", Step: noopStep()},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if def.Initial() != "initial" {
		t.Errorf("Expected initial state, got %s", def.Initial())
	}
	if def.Terminal() != "done" {
		t.Errorf("Expected done terminal, got %s", def.Terminal())
	}
	if len(def.Stages()) != 2 {
		t.Errorf("Expected 2 stages, got %d", len(def.Stages()))
	}
}

func TestNewDefinition_EmptyStages(t *testing.T) {
	if _, err := NewDefinition[*site]("a", "b", nil); err == nil {
		t.Fatal("Expected error for empty stage list")
	}
}

func TestNewDefinition_MissingStep(t *testing.T) {
	_, err := NewDefinition("a", "b", []Stage[*site]{
		{Name: "first", From: "a", To: "b"},
	})
	if err == nil {
		t.Fatal("Expected error for stage without step")
	}
}

func TestNewDefinition_DuplicateName(t *testing.T) {
	_, err := NewDefinition("a", "c", []Stage[*site]{
		{Name: "same", From: "a", To: "b", Step: noopStep()},
		{Name: "same", From: "b", To: "c", Step: noopStep()},
	})
	if err == nil {
		t.Fatal("Expected error for duplicate stage name")
	}
}

func TestNewDefinition_BrokenChain(t *testing.T) {
	_, err := NewDefinition("a", "d", []Stage[*site]{
		{Name: "first", From: "a", To: "b", Step: noopStep()},
		{Name: "second", From: "c", To: "d", Step: noopStep()},
	})
	if err == nil {
		t.Fatal("Expected error for broken chain")
	}
}

func TestNewDefinition_WrongTerminal(t *testing.T) {
	_, err := NewDefinition("a", "z", []Stage[*site]{
		{Name: "first", From: "a", To: "b", Step: noopStep()},
	})
	if err == nil {
		t.Fatal("Expected error when last stage does not reach terminal")
	}
}

func TestDefinition_StageNamed(t *testing.T) {
	def, err := NewDefinition("a", "c", []Stage[*site]{
		{Name: "first", From: "a", To: "b", Step: noopStep()},
		{Name: "second", From: "b", To: "c", Step: noopStep()},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	stage, ok := def.StageNamed("second")
	if !ok {
		t.Fatal("Expected to find stage second")
	}
	if stage.From != "b" || stage.To != "c" {
		t.Errorf("Unexpected stage bounds: %s -> %s", stage.From, stage.To)
	}

	if _, ok := def.StageNamed("missing"); ok {
		t.Error("Expected lookup miss for unknown name")
	}
}

func TestDefinition_StageFrom(t *testing.T) {
	def, err := NewDefinition("a", "c", []Stage[*site]{
		{Name: "first", From: "a", To: "b", Step: noopStep()},
		{Name: "second", From: "b", To: "c", Step: noopStep()},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	stage, ok := def.StageFrom("b")
	if !ok {
		t.Fatal("Expected to find stage from b")
	}
	if stage.Name != "second" {
		t.Errorf("Expected stage second, got %s", stage.Name)
	}

	// The terminal state has no successor.
	if _, ok := def.StageFrom("c"); ok {
		t.Error("Expected no stage from terminal state")
	}
}

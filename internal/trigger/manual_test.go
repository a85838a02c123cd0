package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/safeher/internal/device"
	"github.com/kursadbilgin/safeher/internal/domain"
)

func TestManualTrigger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		confirmed    bool
		prompter     Prompter
		wantOutcome  domain.Outcome
		wantDispatch int
		wantErr      bool
	}{
		{name: "pre-confirmed dispatches", confirmed: true, wantOutcome: domain.OutcomeSucceeded, wantDispatch: 1},
		{name: "prompt yes dispatches", prompter: fakePrompter{answer: device.PromptConfirmed}, wantOutcome: domain.OutcomeSucceeded, wantDispatch: 1},
		{name: "prompt no cancels", prompter: fakePrompter{answer: device.PromptDeclined}, wantOutcome: domain.OutcomeCancelled},
		{name: "prompt expiry cancels", prompter: fakePrompter{answer: device.PromptExpired}, wantOutcome: domain.OutcomeCancelled},
		{name: "no prompter cancels", wantOutcome: domain.OutcomeCancelled},
		{name: "prompt error", prompter: fakePrompter{err: errors.New("offline")}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dispatcher := &countingDispatcher{outcome: domain.OutcomeSucceeded}
			trigger := NewManualTrigger(dispatcher, tt.prompter, time.Second, nil)

			attempt, err := trigger.Trigger(context.Background(), tt.confirmed)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Trigger() error = %v", err)
			}
			if attempt.Outcome != tt.wantOutcome {
				t.Fatalf("Outcome = %s, want %s", attempt.Outcome, tt.wantOutcome)
			}
			if dispatcher.calls() != tt.wantDispatch {
				t.Fatalf("dispatch calls = %d, want %d", dispatcher.calls(), tt.wantDispatch)
			}
		})
	}
}

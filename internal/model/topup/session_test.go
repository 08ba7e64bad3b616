package topup

import "testing"

func TestStageNextIsLinear(t *testing.T) {
	want := []Stage{
		StageAwaitingAccountID,
		StageAwaitingAmount,
		StageAwaitingPayment,
		StageAwaitingVoucher,
		StageExecuting,
	}

	session := NewSession("chat-1")
	for i, stage := range want {
		if session.Stage != stage {
			t.Fatalf("step %d: want %s, got %s", i, stage, session.Stage)
		}
		advanced := session.Advance()
		if i < len(want)-1 && !advanced {
			t.Fatalf("expected %s to advance", stage)
		}
	}

	if session.Stage != StageExecuting {
		t.Fatalf("executing must not advance by input, got %s", session.Stage)
	}
}

func TestStageTerminal(t *testing.T) {
	for _, stage := range []Stage{StageCompleted, StageFailed} {
		if !stage.Terminal() {
			t.Fatalf("expected %s to be terminal", stage)
		}
		if _, ok := stage.Next(); ok {
			t.Fatalf("terminal stage %s must have no next stage", stage)
		}
	}
	if StageExecuting.Terminal() {
		t.Fatal("executing is not terminal")
	}
}

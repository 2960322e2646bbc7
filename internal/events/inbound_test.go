package events

import (
	"reflect"
	"testing"
)

func TestParsePlayerMessage(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{"guess", `{"guess":"Paris"}`, "Paris", false},
		{"empty guess", `{"guess":""}`, "", true},
		{"blank guess", `{"guess":"   "}`, "", true},
		{"missing field", `{}`, "", true},
		{"not json", `guess`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParsePlayerMessage([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePlayerMessage(%s) succeeded, want error", tt.data)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePlayerMessage(%s): %v", tt.data, err)
			}
			if msg.Guess != tt.want {
				t.Errorf("guess = %q, want %q", msg.Guess, tt.want)
			}
		})
	}
}

func TestParseAdminMessageSubmitAnswer(t *testing.T) {
	data := `{"type":"submit_answer","display_answer":"Paris, France","correct_answers":["paris","paris france"]}`

	msg, err := ParseAdminMessage([]byte(data))
	if err != nil {
		t.Fatalf("ParseAdminMessage: %v", err)
	}
	if msg.Kind != KindSubmitAnswer || msg.SubmitAnswer == nil {
		t.Fatalf("parsed = %+v, want submit_answer payload", msg)
	}
	if msg.SubmitAnswer.DisplayAnswer != "Paris, France" {
		t.Errorf("display answer = %q", msg.SubmitAnswer.DisplayAnswer)
	}
	if want := []string{"paris", "paris france"}; !reflect.DeepEqual(msg.SubmitAnswer.CorrectAnswers, want) {
		t.Errorf("correct answers = %v, want %v", msg.SubmitAnswer.CorrectAnswers, want)
	}
}

func TestParseAdminMessageUpdatePhase(t *testing.T) {
	msg, err := ParseAdminMessage([]byte(`{"type":"update_phase"}`))
	if err != nil {
		t.Fatalf("ParseAdminMessage: %v", err)
	}
	if msg.Kind != KindUpdatePhase || msg.SubmitAnswer != nil || msg.AddBatch != nil {
		t.Errorf("parsed = %+v, want bare update_phase", msg)
	}
}

func TestParseAdminMessageAddBatch(t *testing.T) {
	msg, err := ParseAdminMessage([]byte(`{"type":"add_batch","batch_url":"https://indexing.example.org/batch?batchid=b1"}`))
	if err != nil {
		t.Fatalf("ParseAdminMessage: %v", err)
	}
	if msg.Kind != KindAddBatch || msg.AddBatch == nil {
		t.Fatalf("parsed = %+v, want add_batch payload", msg)
	}
	if msg.AddBatch.BatchURL != "https://indexing.example.org/batch?batchid=b1" {
		t.Errorf("batch url = %q", msg.AddBatch.BatchURL)
	}
}

func TestParseAdminMessageRejectsUnknownType(t *testing.T) {
	if _, err := ParseAdminMessage([]byte(`{"type":"drop_tables"}`)); err == nil {
		t.Fatal("unknown admin message type accepted")
	}
	if _, err := ParseAdminMessage([]byte(`not json`)); err == nil {
		t.Fatal("malformed admin frame accepted")
	}
}

package model

import (
	"encoding/json"
	"testing"
)

func TestDepositedEventDataJSONStringFields(t *testing.T) {
	payload := DepositedEventData{
		Account: "0x1111111111111111111111111111111111111111",
		Tick:    "0x00000000000000056bc75e2d6310000000",
		Amount:  "12345678901234567890",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if _, ok := decoded["amount"].(string); !ok {
		t.Fatalf("amount should be string")
	}
	if _, ok := decoded["tick"].(string); !ok {
		t.Fatalf("tick should be string")
	}
}

func TestLoanOriginatedEventDataJSON(t *testing.T) {
	payload := LoanOriginatedEventData{
		LoanID:        "0xaaaa000000000000000000000000000000000000000000000000000000000000",
		Borrower:      "0x2222222222222222222222222222222222222222",
		Principal:     "150000000000000000000",
		DurationClass: 2,
		Multiplier:    "1",
		Ticks: []string{
			"0x00000000000000056bc75e2d6310000000",
			"0x0000000000000ad78ebc5ac6200000000000",
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if _, ok := decoded["principal"].(string); !ok {
		t.Fatalf("principal should be string")
	}
	ticks, ok := decoded["ticks"].([]interface{})
	if !ok || len(ticks) != 2 {
		t.Fatalf("ticks should be a 2-element array, got %v", decoded["ticks"])
	}
}

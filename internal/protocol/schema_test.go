package protocol

import "testing"

func TestValidateAct(t *testing.T) {
	ok := []byte(`{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "instants":[
	    {"id":"I1","type":"TRADE_REQUEST","with":7},
	    {"id":"I2","type":"TRADE_MOVE","item":12,"to":"REQUEST_B"},
	    {"id":"I3","type":"TRADE_ACCEPT","rev":3}
	  ]
	}`)
	if err := ValidateAct(ok); err != nil {
		t.Fatalf("expected valid act: %v", err)
	}

	missingTo := []byte(`{"type":"ACT","protocol_version":"1.0","instants":[{"id":"I1","type":"TRADE_MOVE","item":12}]}`)
	if err := ValidateAct(missingTo); err == nil {
		t.Fatalf("expected TRADE_MOVE without to to be rejected")
	}

	badType := []byte(`{"type":"ACT","protocol_version":"1.0","instants":[{"id":"I1","type":"MINE"}]}`)
	if err := ValidateAct(badType); err == nil {
		t.Fatalf("expected unknown instant type to be rejected")
	}

	missingRev := []byte(`{"type":"ACT","protocol_version":"1.0","instants":[{"id":"I1","type":"TRADE_ACCEPT"}]}`)
	if err := ValidateAct(missingRev); err == nil {
		t.Fatalf("expected TRADE_ACCEPT without rev to be rejected")
	}
}

func TestValidateHello(t *testing.T) {
	if err := ValidateHello([]byte(`{"type":"HELLO","protocol_version":"1.0","party_id":3,"name":"bob"}`)); err != nil {
		t.Fatalf("expected valid hello: %v", err)
	}
	if err := ValidateHello([]byte(`{"type":"HELLO","protocol_version":"1.0"}`)); err == nil {
		t.Fatalf("expected hello without party_id to be rejected")
	}
	if err := ValidateHello([]byte(`not json`)); err == nil {
		t.Fatalf("expected malformed json to be rejected")
	}
}

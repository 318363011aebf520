package signaling

import (
	"encoding/json"
	"testing"
)

func TestDecodeClient(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantErr bool
		want    Kind
	}{
		{name: "open room", payload: `{"type":"open-room","room_id":"appt-1"}`, want: KindOpenRoom},
		{name: "relay with payload", payload: `{"type":"offer","to":"abc","data":{"sdp":"v=0"}}`, want: KindOffer},
		{name: "ping", payload: `{"type":"ping"}`, want: KindPing},
		{name: "truncated json", payload: `{"type":"admit"`, wantErr: true},
		{name: "not an object", payload: `"admit"`, wantErr: true},
		{name: "missing type", payload: `{"room_id":"appt-1"}`, wantErr: true},
		{name: "unknown type", payload: `{"type":"make-coffee"}`, wantErr: true},
		{name: "server kind from client", payload: `{"type":"admitted","room_id":"appt-1"}`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := DecodeClient([]byte(tc.payload))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", env)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if env.Type != tc.want {
				t.Fatalf("got kind %q, want %q", env.Type, tc.want)
			}
		})
	}
}

func TestDecodeClientKeepsPayloadOpaque(t *testing.T) {
	raw := `{"sdp":"v=0\r\na=ice-ufrag:abcd","weird":[1,null,{"x":true}]}`
	env, err := DecodeClient([]byte(`{"type":"answer","to":"abc","data":` + raw + `}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(env.Data) != raw {
		t.Fatalf("payload altered:\n in: %s\nout: %s", raw, env.Data)
	}
}

func TestIsRelay(t *testing.T) {
	for _, k := range []Kind{KindOffer, KindAnswer, KindICECandidate} {
		if !k.IsRelay() {
			t.Fatalf("%q should be a relay kind", k)
		}
	}
	for _, k := range []Kind{KindAdmit, KindSubscribe, KindError, KindPing} {
		if k.IsRelay() {
			t.Fatalf("%q should not be a relay kind", k)
		}
	}
}

func TestEnvelopeOmitsEmptyFields(t *testing.T) {
	b := encode(Envelope{Type: KindMeetingEnded, Room: "appt-1"})
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("encode produced bad JSON: %v", err)
	}
	for _, key := range []string{"to", "from", "data"} {
		if _, ok := m[key]; ok {
			t.Fatalf("empty field %q should be omitted, got %s", key, b)
		}
	}
}

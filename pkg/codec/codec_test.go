package codec

import (
	"bytes"
	"testing"
)

func TestStateNodeRoundTrip(t *testing.T) {
	cases := []StateNode{
		{State: StateRunning},
		{State: StateFailed, Error: &Failure{
			Message: "boom",
			StackTrace: []StackFrame{
				{ClassName: "Worker", MethodName: "start", FileName: "worker.go", LineNumber: 42},
			},
		}},
	}

	for _, n := range cases {
		data, err := EncodeStateNode(n)
		if err != nil {
			t.Fatalf("EncodeStateNode: %v", err)
		}
		decoded := DecodeStateNode(data)
		if decoded == nil {
			t.Fatalf("DecodeStateNode returned nil for %+v", n)
		}
		reencoded, err := EncodeStateNode(*decoded)
		if err != nil {
			t.Fatalf("re-encode: %v", err)
		}
		if !bytes.Equal(data, reencoded) {
			t.Errorf("round trip mismatch: %s != %s", data, reencoded)
		}
	}
}

func TestDecodeStateNodeMalformed(t *testing.T) {
	if got := DecodeStateNode([]byte("not json")); got != nil {
		t.Errorf("expected nil for malformed payload, got %+v", got)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	m := Message{Type: MessageUser, Command: "ping", Payload: []byte("hello")}
	data, err := EncodeMessage(m)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	decoded := DecodeMessage(data)
	if decoded == nil || decoded.Command != "ping" || string(decoded.Payload) != "hello" {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestMessageIsStop(t *testing.T) {
	stop := Message{Type: MessageSystem, Command: CommandStop}
	if !stop.IsStop() {
		t.Error("expected SYSTEM/stop to be IsStop")
	}
	notStop := Message{Type: MessageUser, Command: CommandStop}
	if notStop.IsStop() {
		t.Error("USER message must never be treated as stop")
	}
}

func TestDiscoverableRoundTrip(t *testing.T) {
	d := Discoverable{Service: "foo", Hostname: "h", Port: 1234}
	data, err := EncodeDiscoverable(d)
	if err != nil {
		t.Fatalf("EncodeDiscoverable: %v", err)
	}
	want := `{"service":"foo","hostname":"h","port":1234}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
	decoded := DecodeDiscoverable(data)
	if decoded == nil || *decoded != d {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestDecodeDiscoverableMalformed(t *testing.T) {
	if got := DecodeDiscoverable([]byte("{bad")); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestLiveNodeRoundTrip(t *testing.T) {
	data, err := EncodeLiveNode(map[string]interface{}{"pid": float64(123)})
	if err != nil {
		t.Fatalf("EncodeLiveNode: %v", err)
	}
	got := DecodeLiveNode(data)
	m, ok := got.(map[string]interface{})
	if !ok || m["pid"] != float64(123) {
		t.Errorf("unexpected decode: %+v", got)
	}
}

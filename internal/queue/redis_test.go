package queue

import (
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestIsBusyGroupErr(t *testing.T) {
	if !isBusyGroupErr(errors.New("BUSYGROUP Consumer Group name already exists")) {
		t.Fatal("expected BUSYGROUP error to be recognized")
	}
	if isBusyGroupErr(errors.New("some other error")) {
		t.Fatal("did not expect unrelated error to be recognized as BUSYGROUP")
	}
	if isBusyGroupErr(nil) {
		t.Fatal("did not expect nil error to be recognized as BUSYGROUP")
	}
}

func TestDecodeMessagesSkipsMalformed(t *testing.T) {
	raw := []redis.XMessage{
		{ID: "1-1", Values: map[string]interface{}{"data": `{"text":"hello","version":1}`}},
		{ID: "1-2", Values: map[string]interface{}{"data": `not json`}},
		{ID: "1-3", Values: map[string]interface{}{"other": "field"}},
	}

	msgs := decodeMessages(raw)
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one valid message decoded, got %d", len(msgs))
	}
	if msgs[0].ID != "1-1" || msgs[0].Envelope.Text != "hello" {
		t.Fatalf("unexpected decoded message: %+v", msgs[0])
	}
}

func TestDecodeStreamsFlattensAllStreams(t *testing.T) {
	res := []redis.XStream{
		{Stream: "s1", Messages: []redis.XMessage{
			{ID: "1-1", Values: map[string]interface{}{"data": `{"text":"a","version":1}`}},
		}},
		{Stream: "s2", Messages: []redis.XMessage{
			{ID: "2-1", Values: map[string]interface{}{"data": `{"text":"b","version":1}`}},
		}},
	}

	msgs := decodeStreams(res)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages across streams, got %d", len(msgs))
	}
}

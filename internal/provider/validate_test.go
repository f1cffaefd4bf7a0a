package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validMessage() Message {
	return Message{
		ID:       "m1",
		ThreadID: "t1",
		SentAt:   time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		From:     Address{Address: "sender@example.com"},
	}
}

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Message)
		wantErr string
	}{
		{"valid", func(*Message) {}, ""},
		{"missing id", func(m *Message) { m.ID = "" }, "Message.ID is required"},
		{"missing thread", func(m *Message) { m.ThreadID = "" }, "Message.ThreadID is required"},
		{"missing sentAt", func(m *Message) { m.SentAt = time.Time{} }, "Message.SentAt is required"},
		{"missing sender", func(m *Message) { m.From = Address{} }, "Message.From"},
		{"malformed sender", func(m *Message) { m.From = Address{Address: "nope"} }, "Message.From.Address must be a valid email"},
		{"malformed recipient is not fatal", func(m *Message) { m.CC = []Address{{Address: "undisclosed-recipients:;"}} }, ""},
		{"attachment without id", func(m *Message) { m.Attachments = []Attachment{{Name: "a.pdf"}} }, "Message.Attachments[0].ID is required"},
		{"unknown sensitivity", func(m *Message) { m.Sensitivity = "secret" }, "Message.Sensitivity must be one of"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := validMessage()
			tt.mutate(&msg)

			err := ValidateStruct(&msg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestFilterValidRecords(t *testing.T) {
	bad := validMessage()
	bad.ID = ""
	good := validMessage()
	good.ID = "m2"

	valid, dropped := filterValidRecords([]Message{validMessage(), bad, good})
	assert.Equal(t, 1, dropped)
	if assert.Len(t, valid, 2) {
		assert.Equal(t, "m1", valid[0].ID)
		assert.Equal(t, "m2", valid[1].ID)
	}
}

func TestFilterValidRecordsPrunesRecipients(t *testing.T) {
	msg := validMessage()
	msg.To = []Address{{Address: "bob@example.com"}, {Address: ""}}
	msg.CC = []Address{{Address: "undisclosed-recipients:;"}}
	msg.BCC = []Address{{Address: " carol@example.com "}}
	msg.ReplyTo = []Address{{Address: "nope", Name: "Nope"}}

	valid, dropped := filterValidRecords([]Message{msg})
	assert.Equal(t, 0, dropped)
	if assert.Len(t, valid, 1) {
		kept := valid[0]
		assert.Equal(t, "sender@example.com", kept.From.Address)
		assert.Equal(t, []Address{{Address: "bob@example.com"}}, kept.To)
		assert.Empty(t, kept.CC)
		assert.Equal(t, []Address{{Address: " carol@example.com "}}, kept.BCC)
		assert.Empty(t, kept.ReplyTo)
	}
}

package provider

import "time"

// SyncStartResponse is the reply to a sync-start request. The provider may
// need several calls before it reports Ready.
type SyncStartResponse struct {
	Ready            bool   `json:"ready"`
	SyncUpdatedToken string `json:"syncUpdatedToken"`
}

// FetchParams selects one page of changes. Exactly one field must be set.
type FetchParams struct {
	DeltaToken string
	PageToken  string
}

// SyncUpdatedResponse is one page of changed messages.
type SyncUpdatedResponse struct {
	Records        []Message `json:"records"`
	NextPageToken  string    `json:"nextPageToken"`
	NextDeltaToken string    `json:"nextDeltaToken"`

	// Dropped counts records rejected by validation.
	Dropped int `json:"-"`
}

type Address struct {
	Address string `json:"address" validate:"required,email"`
	Name    string `json:"name"`
	Raw     string `json:"raw"`
}

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Attachment struct {
	ID              string  `json:"id" validate:"required"`
	Name            string  `json:"name"`
	MimeType        string  `json:"mimeType"`
	Size            int64   `json:"size" validate:"gte=0"`
	Inline          bool    `json:"inline"`
	ContentID       *string `json:"contentId"`
	ContentLocation *string `json:"contentLocation"`
}

// Message is a provider message record as delivered by the sync endpoints.
// Recipient lists are not validated here; malformed entries are pruned by
// filterValidRecords without rejecting the message.
type Message struct {
	ID                   string            `json:"id" validate:"required"`
	ThreadID             string            `json:"threadId" validate:"required"`
	Subject              string            `json:"subject"`
	SentAt               time.Time         `json:"sentAt" validate:"required"`
	ReceivedAt           time.Time         `json:"receivedAt"`
	CreatedTime          time.Time         `json:"createdTime"`
	LastModifiedTime     *time.Time        `json:"lastModifiedTime"`
	InternetMessageID    string            `json:"internetMessageId"`
	SysLabels            []string          `json:"sysLabels"`
	SysClassifications   []string          `json:"sysClassifications"`
	Keywords             []string          `json:"keywords"`
	Sensitivity          string            `json:"sensitivity" validate:"omitempty,oneof=normal private personal confidential"`
	MeetingMessageMethod *string           `json:"meetingMessageMethod"`
	InternetHeaders      []Header          `json:"internetHeaders"`
	From                 Address           `json:"from" validate:"required"`
	To                   []Address         `json:"to"`
	CC                   []Address         `json:"cc"`
	BCC                  []Address         `json:"bcc"`
	ReplyTo              []Address         `json:"replyTo"`
	HasAttachments       bool              `json:"hasAttachments"`
	Body                 *string           `json:"body"`
	BodySnippet          *string           `json:"bodySnippet"`
	InReplyTo            *string           `json:"inReplyTo"`
	References           *string           `json:"references"`
	ThreadIndex          *string           `json:"threadIndex"`
	NativeProperties     map[string]string `json:"nativeProperties"`
	FolderID             *string           `json:"folderId"`
	Omitted              []string          `json:"omitted"`
	Attachments          []Attachment      `json:"attachments" validate:"dive"`
}

// AccountInfo describes the mailbox behind an access token.
type AccountInfo struct {
	ID    string `json:"id" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name"`
}

// OutgoingEmail is a message to send through the provider.
type OutgoingEmail struct {
	From       Address   `json:"from" validate:"required"`
	To         []Address `json:"to" validate:"required,min=1,dive"`
	CC         []Address `json:"cc,omitempty" validate:"dive"`
	BCC        []Address `json:"bcc,omitempty" validate:"dive"`
	ReplyTo    []Address `json:"replyTo,omitempty" validate:"dive"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	InReplyTo  string    `json:"inReplyTo,omitempty"`
	References string    `json:"references,omitempty"`
	ThreadID   string    `json:"threadId,omitempty"`
}

// SendResult is the provider's reply to a send request.
type SendResult struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

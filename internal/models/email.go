package models

import "time"

// EmailLabel is the folder classification derived from the provider's system labels.
type EmailLabel string

const (
	EmailLabelInbox EmailLabel = "inbox"
	EmailLabelDraft EmailLabel = "draft"
	EmailLabelSent  EmailLabel = "sent"
)

// RecipientKind names one of the address relations of an email other than from.
type RecipientKind string

const (
	RecipientTo      RecipientKind = "to"
	RecipientCC      RecipientKind = "cc"
	RecipientBCC     RecipientKind = "bcc"
	RecipientReplyTo RecipientKind = "reply_to"
)

type EmailAddress struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Address   string `json:"address"`
	Name      string `json:"name"`
	Raw       string `json:"raw,omitempty"`
}

type Thread struct {
	ID              string     `json:"id"`
	AccountID       string     `json:"account_id"`
	Subject         string     `json:"subject"`
	LastMessageDate *time.Time `json:"last_message_date"`
	Done            bool       `json:"done"`
	InboxStatus     bool       `json:"inbox_status"`
	DraftStatus     bool       `json:"draft_status"`
	SentStatus      bool       `json:"sent_status"`
	ParticipantIDs  []string   `json:"participant_ids"`
	Emails          []Email    `json:"emails,omitempty"`
}

// ThreadStatus holds the folder rollup flags of a thread.
type ThreadStatus struct {
	Inbox bool
	Draft bool
	Sent  bool
}

// ThreadStatusFromLabels computes the rollup flags from the labels of a thread's
// emails given in ascending receipt order. Any inbox email wins, then any draft,
// otherwise the thread counts as sent.
func ThreadStatusFromLabels(labels []EmailLabel) ThreadStatus {
	for _, label := range labels {
		if label == EmailLabelInbox {
			return ThreadStatus{Inbox: true}
		}
	}
	for _, label := range labels {
		if label == EmailLabelDraft {
			return ThreadStatus{Draft: true}
		}
	}
	return ThreadStatus{Sent: true}
}

// Header is a single internet message header.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Email struct {
	ID                   string            `json:"id"`
	ThreadID             string            `json:"thread_id"`
	EmailLabel           EmailLabel        `json:"email_label"`
	Subject              string            `json:"subject"`
	SentAt               time.Time         `json:"sent_at"`
	ReceivedAt           time.Time         `json:"received_at"`
	CreatedTime          time.Time         `json:"created_time"`
	LastModifiedTime     *time.Time        `json:"last_modified_time,omitempty"`
	InternetMessageID    string            `json:"internet_message_id"`
	InternetHeaders      []Header          `json:"internet_headers"`
	Keywords             []string          `json:"keywords"`
	SysLabels            []string          `json:"sys_labels"`
	SysClassifications   []string          `json:"sys_classifications"`
	Sensitivity          string            `json:"sensitivity"`
	MeetingMessageMethod *string           `json:"meeting_message_method,omitempty"`
	FromAddressID        string            `json:"from_address_id"`
	HasAttachments       bool              `json:"has_attachments"`
	Body                 *string           `json:"body,omitempty"`
	BodySnippet          *string           `json:"body_snippet,omitempty"`
	InReplyTo            *string           `json:"in_reply_to,omitempty"`
	References           *string           `json:"references,omitempty"`
	ThreadIndex          *string           `json:"thread_index,omitempty"`
	NativeProperties     map[string]string `json:"native_properties,omitempty"`
	FolderID             *string           `json:"folder_id,omitempty"`
	Omitted              []string          `json:"omitted"`

	// Address relations, keyed by EmailAddress.ID.
	ToAddressIDs      []string `json:"-"`
	CCAddressIDs      []string `json:"-"`
	BCCAddressIDs     []string `json:"-"`
	ReplyToAddressIDs []string `json:"-"`

	// Populated for API responses.
	From        *EmailAddress     `json:"from,omitempty"`
	To          []EmailAddress    `json:"to,omitempty"`
	CC          []EmailAddress    `json:"cc,omitempty"`
	BCC         []EmailAddress    `json:"bcc,omitempty"`
	ReplyTo     []EmailAddress    `json:"reply_to,omitempty"`
	Attachments []EmailAttachment `json:"attachments,omitempty"`
}

type EmailAttachment struct {
	ID              string  `json:"id"`
	EmailID         string  `json:"email_id"`
	Name            string  `json:"name"`
	MimeType        string  `json:"mime_type"`
	Size            int64   `json:"size"`
	Inline          bool    `json:"inline"`
	ContentID       *string `json:"content_id,omitempty"`
	ContentLocation *string `json:"content_location,omitempty"`
}

type PaginationInfo struct {
	TotalCount int `json:"total_count"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
}

type ThreadsResponse struct {
	Threads    []*Thread      `json:"threads"`
	Pagination PaginationInfo `json:"pagination"`
}

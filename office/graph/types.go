package graph

// Tool and API I/O types. Kept flat so they map cleanly onto both MCP tool
// schemas and REST query parameters.

type Account struct {
	// Alias identifies a stored account (e.g. "work", "personal").
	Alias    string `json:"alias" description:"account name"`
	TenantID string `json:"-" internal:"true"`
}

type Message struct {
	ID       string `json:"id"`
	Subject  string `json:"subject"`
	From     string `json:"from,omitempty"`
	Received string `json:"receivedISO,omitempty"`
	Preview  string `json:"preview,omitempty"`
}

type ListMailInput struct {
	Account Account `json:"account"`
	Top     int     `json:"top,omitempty" description:"number of messages to return"`
	// Optional RFC3339 bounds on receivedDateTime.
	SinceISO string `json:"sinceISO,omitempty" description:"receivedDateTime >= this timestamp (inclusive)"`
	UntilISO string `json:"untilISO,omitempty" description:"receivedDateTime <= this timestamp (inclusive)"`
	// Advanced OData options. If set, these override the derived filter/order.
	Filter  string   `json:"filter,omitempty" description:"OData $filter expression"`
	OrderBy []string `json:"orderBy,omitempty" description:"OData $orderby fields (e.g., ['receivedDateTime DESC'])"`
}

type ListMailOutput struct {
	Messages []Message `json:"messages,omitempty"`
}

type SendMailInput struct {
	Account    Account  `json:"account"`
	To         []string `json:"to"`
	Subject    string   `json:"subject"`
	BodyText   string   `json:"bodyText,omitempty"`
	BodyHTML   string   `json:"bodyHtml,omitempty"`
	Importance string   `json:"importance,omitempty"` // Low, Normal, High
}

type CalendarEvent struct {
	ID        string `json:"id"`
	Subject   string `json:"subject"`
	StartISO  string `json:"startISO"`
	EndISO    string `json:"endISO"`
	Location  string `json:"location,omitempty"`
	Organizer string `json:"organizer,omitempty"`
}

type ListEventsInput struct {
	Account Account `json:"account"`
	// List events between now and now+DaysAhead (default 7).
	DaysAhead int      `json:"daysAhead,omitempty"`
	Filter    string   `json:"filter,omitempty" description:"OData $filter for events"`
	OrderBy   []string `json:"orderBy,omitempty" description:"OData $orderby fields (e.g., ['start/dateTime DESC'])"`
}

type ListEventsOutput struct {
	Events []CalendarEvent `json:"events,omitempty"`
}

type CreateEventInput struct {
	Account   Account  `json:"account"`
	Subject   string   `json:"subject"`
	StartISO  string   `json:"startISO"`
	EndISO    string   `json:"endISO"`
	TimeZone  string   `json:"timeZone,omitempty"`
	Location  string   `json:"location,omitempty"`
	Attendees []string `json:"attendees,omitempty"`
	BodyText  string   `json:"bodyText,omitempty"`
}

type DriveItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SizeBytes   int64  `json:"sizeBytes,omitempty"`
	ModifiedISO string `json:"modifiedISO,omitempty"`
	IsFolder    bool   `json:"isFolder,omitempty"`
	WebURL      string `json:"webUrl,omitempty"`
}

type ListFilesInput struct {
	Account Account `json:"account"`
	// FolderID lists a specific folder; empty lists the drive root.
	FolderID string `json:"folderId,omitempty"`
	Top      int    `json:"top,omitempty"`
}

type ListFilesOutput struct {
	Items []DriveItem `json:"items,omitempty"`
}

type DownloadFileInput struct {
	Account Account `json:"account"`
	ItemID  string  `json:"itemId"`
}

type DownloadFileOutput struct {
	Name        string `json:"name"`
	SizeBytes   int64  `json:"sizeBytes,omitempty"`
	DownloadURL string `json:"downloadUrl"`
}

type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Mail        string `json:"mail,omitempty"`
	JobTitle    string `json:"jobTitle,omitempty"`
}

type GetProfileInput struct {
	Account Account `json:"account"`
}

package notion

import "strings"

// Schema names the database properties the store reads and writes
type Schema struct {
	TaskTitle       string
	TaskDescription string
	TaskDueDate     string
	TaskPriority    string
	TaskCategory    string
	TaskAssignee    string
	TaskStatus      string
	PersonUsername  string
}

// DefaultSchema matches the team's Tasks and Team databases. The assignee
// property name carries a trailing space in the live database.
var DefaultSchema = Schema{
	TaskTitle:       "Task name",
	TaskDescription: "Description",
	TaskDueDate:     "Due date",
	TaskPriority:    "Priority",
	TaskCategory:    "Task Category",
	TaskAssignee:    "Assigned To ",
	TaskStatus:      "Status",
	PersonUsername:  "Telegram Username",
}

type richText struct {
	PlainText string `json:"plain_text,omitempty"`
	Text      *struct {
		Content string `json:"content"`
	} `json:"text,omitempty"`
}

func (r richText) content() string {
	if r.PlainText != "" {
		return r.PlainText
	}
	if r.Text != nil {
		return r.Text.Content
	}
	return ""
}

type named struct {
	Name string `json:"name"`
}

type relationRef struct {
	ID string `json:"id"`
}

type dateValue struct {
	Start string `json:"start"`
}

// property decodes the value shapes the store understands; the rest are ignored
type property struct {
	Type        string        `json:"type"`
	Title       []richText    `json:"title,omitempty"`
	RichText    []richText    `json:"rich_text,omitempty"`
	Date        *dateValue    `json:"date,omitempty"`
	Select      *named        `json:"select,omitempty"`
	Status      *named        `json:"status,omitempty"`
	MultiSelect []named       `json:"multi_select,omitempty"`
	Relation    []relationRef `json:"relation,omitempty"`
}

// text joins the property's text fragments, whether it is a title or rich text
func (p property) text() string {
	fragments := p.Title
	if len(fragments) == 0 {
		fragments = p.RichText
	}
	var b strings.Builder
	for _, f := range fragments {
		b.WriteString(f.content())
	}
	return strings.TrimSpace(b.String())
}

// choice returns a select or status value
func (p property) choice() string {
	if p.Status != nil {
		return p.Status.Name
	}
	if p.Select != nil {
		return p.Select.Name
	}
	return ""
}

type page struct {
	ID         string              `json:"id"`
	Archived   bool                `json:"archived,omitempty"`
	Properties map[string]property `json:"properties"`
}

type queryResponse struct {
	Results    []page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

type databaseResponse struct {
	ID         string `json:"id"`
	Properties map[string]struct {
		Type        string `json:"type"`
		MultiSelect *struct {
			Options []named `json:"options"`
		} `json:"multi_select,omitempty"`
		Select *struct {
			Options []named `json:"options"`
		} `json:"select,omitempty"`
	} `json:"properties"`
}

func textValue(content string) []map[string]any {
	if content == "" {
		return []map[string]any{}
	}
	return []map[string]any{{"text": map[string]string{"content": content}}}
}

package graph

import (
	"context"
	"fmt"
	neturl "net/url"
	"strings"
)

type MailService struct{ rest *rest }

func NewMailService(m *Manager) *MailService { return &MailService{rest: newRest(m)} }

func (s *MailService) List(ctx context.Context, in *ListMailInput, scopes []string, prompt func(string)) (*ListMailOutput, error) {
	if in.Top == 0 {
		in.Top = 10
	}
	q := neturl.Values{}
	if in.Top > 0 {
		q.Set("$top", fmt.Sprintf("%d", in.Top))
	}
	if len(in.OrderBy) > 0 {
		q.Set("$orderby", strings.Join(in.OrderBy, ","))
	} else {
		q.Set("$orderby", "receivedDateTime DESC")
	}
	if in.Filter != "" {
		q.Set("$filter", in.Filter)
	} else if in.SinceISO != "" || in.UntilISO != "" {
		filter := ""
		if in.SinceISO != "" {
			filter = fmt.Sprintf("receivedDateTime ge %s", in.SinceISO)
		}
		if in.UntilISO != "" {
			if filter != "" {
				filter += " and "
			}
			filter += fmt.Sprintf("receivedDateTime le %s", in.UntilISO)
		}
		if filter != "" {
			q.Set("$filter", filter)
		}
	}
	var payload struct {
		Value []struct {
			ID       string `json:"id"`
			Subject  string `json:"subject"`
			Received string `json:"receivedDateTime"`
			Preview  string `json:"bodyPreview"`
			From     struct {
				EmailAddress struct {
					Address string `json:"address"`
				} `json:"emailAddress"`
			} `json:"from"`
		} `json:"value"`
	}
	if err := s.rest.getJSON(ctx, in.Account, scopes, prompt, "/me/messages", q, &payload); err != nil {
		return nil, err
	}
	out := &ListMailOutput{}
	for i, m := range payload.Value {
		if in.Top > 0 && i >= in.Top {
			break
		}
		out.Messages = append(out.Messages, Message{
			ID:       m.ID,
			Subject:  m.Subject,
			From:     m.From.EmailAddress.Address,
			Received: m.Received,
			Preview:  m.Preview,
		})
	}
	return out, nil
}

func (s *MailService) Send(ctx context.Context, in *SendMailInput, scopes []string, prompt func(string)) error {
	if len(in.To) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	type emailAddress struct {
		Address string `json:"address"`
	}
	type recipient struct {
		EmailAddress emailAddress `json:"emailAddress"`
	}
	type itemBody struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	}
	msg := map[string]any{"subject": in.Subject}
	if in.BodyHTML != "" {
		msg["body"] = itemBody{ContentType: "HTML", Content: in.BodyHTML}
	} else {
		msg["body"] = itemBody{ContentType: "Text", Content: in.BodyText}
	}
	var tos []recipient
	for _, a := range in.To {
		if a != "" {
			tos = append(tos, recipient{EmailAddress: emailAddress{Address: a}})
		}
	}
	msg["toRecipients"] = tos
	if in.Importance != "" {
		msg["importance"] = in.Importance
	}
	payload := map[string]any{"message": msg, "saveToSentItems": true}
	return s.rest.postJSON(ctx, in.Account, scopes, prompt, "/me/sendMail", payload)
}

package graph

import (
	"context"
	"fmt"
	neturl "net/url"
	"strings"
	"time"

	models "github.com/microsoftgraph/msgraph-sdk-go/models"
)

type CalendarService struct {
	m    *Manager
	rest *rest
}

func NewCalendarService(m *Manager) *CalendarService {
	return &CalendarService{m: m, rest: newRest(m)}
}

func (s *CalendarService) List(ctx context.Context, in *ListEventsInput, scopes []string, prompt func(string)) (*ListEventsOutput, error) {
	if in.DaysAhead <= 0 {
		in.DaysAhead = 7
	}
	q := neturl.Values{}
	if len(in.OrderBy) > 0 {
		q.Set("$orderby", strings.Join(in.OrderBy, ","))
	} else {
		q.Set("$orderby", "start/dateTime DESC")
	}
	if in.Filter != "" {
		q.Set("$filter", in.Filter)
	} else {
		now := time.Now().UTC()
		q.Set("$filter", fmt.Sprintf("start/dateTime ge '%s' and start/dateTime le '%s'",
			now.Format(time.RFC3339), now.Add(time.Duration(in.DaysAhead)*24*time.Hour).Format(time.RFC3339)))
	}
	var payload struct {
		Value []struct {
			ID      string `json:"id"`
			Subject string `json:"subject"`
			Start   struct {
				DateTime string `json:"dateTime"`
			} `json:"start"`
			End struct {
				DateTime string `json:"dateTime"`
			} `json:"end"`
			Location struct {
				DisplayName string `json:"displayName"`
			} `json:"location"`
			Organizer struct {
				EmailAddress struct {
					Address string `json:"address"`
				} `json:"emailAddress"`
			} `json:"organizer"`
		} `json:"value"`
	}
	if err := s.rest.getJSON(ctx, in.Account, scopes, prompt, "/me/events", q, &payload); err != nil {
		return nil, err
	}
	out := &ListEventsOutput{}
	for _, ev := range payload.Value {
		out.Events = append(out.Events, CalendarEvent{
			ID:        ev.ID,
			Subject:   ev.Subject,
			StartISO:  ev.Start.DateTime,
			EndISO:    ev.End.DateTime,
			Location:  ev.Location.DisplayName,
			Organizer: ev.Organizer.EmailAddress.Address,
		})
	}
	return out, nil
}

// Create goes through the SDK models so attendees/body shapes stay correct.
func (s *CalendarService) Create(ctx context.Context, in *CreateEventInput, scopes []string, prompt func(string)) (*CalendarEvent, error) {
	client, err := s.m.Client(ctx, in.Account, scopes, prompt)
	if err != nil {
		return nil, err
	}
	ev := models.NewEvent()
	ev.SetSubject(ptr(in.Subject))
	tz := in.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	start := models.NewDateTimeTimeZone()
	start.SetDateTime(ptr(in.StartISO))
	start.SetTimeZone(ptr(tz))
	end := models.NewDateTimeTimeZone()
	end.SetDateTime(ptr(in.EndISO))
	end.SetTimeZone(ptr(tz))
	ev.SetStart(start)
	ev.SetEnd(end)
	if in.Location != "" {
		loc := models.NewLocation()
		loc.SetDisplayName(ptr(in.Location))
		ev.SetLocation(loc)
	}
	if len(in.Attendees) > 0 {
		var attendees []models.Attendeeable
		for _, a := range in.Attendees {
			email := models.NewEmailAddress()
			email.SetAddress(ptr(a))
			att := models.NewAttendee()
			att.SetEmailAddress(email)
			attendees = append(attendees, att)
		}
		ev.SetAttendees(attendees)
	}
	if in.BodyText != "" {
		body := models.NewItemBody()
		body.SetContentType(ptr(models.TEXT_BODYTYPE))
		body.SetContent(ptr(in.BodyText))
		ev.SetBody(body)
	}
	created, err := client.Me().Events().Post(ctx, ev, nil)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	out := &CalendarEvent{
		ID:        ptrVal(created.GetId()),
		Subject:   ptrVal(created.GetSubject()),
		StartISO:  dateTimeToISO(created.GetStart()),
		EndISO:    dateTimeToISO(created.GetEnd()),
		Location:  locationName(created.GetLocation()),
		Organizer: organizerAddress(created.GetOrganizer()),
	}
	return out, nil
}

func dateTimeToISO(dt models.DateTimeTimeZoneable) string {
	if dt == nil || dt.GetDateTime() == nil {
		return ""
	}
	return *dt.GetDateTime()
}

func locationName(loc models.Locationable) string {
	if loc == nil || loc.GetDisplayName() == nil {
		return ""
	}
	return *loc.GetDisplayName()
}

func organizerAddress(org models.Recipientable) string {
	if org == nil || org.GetEmailAddress() == nil || org.GetEmailAddress().GetAddress() == nil {
		return ""
	}
	return *org.GetEmailAddress().GetAddress()
}

// Package studyroom creates calendar events with a Google Meet link for
// group study sessions.
package studyroom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Code classifies a meet failure for callers.
type Code string

const (
	CodeUnauthenticated    Code = "unauthenticated"
	CodeFailedPrecondition Code = "failed-precondition"
	CodeInvalidArgument    Code = "invalid-argument"
	CodeInternal           Code = "internal"
)

// MeetDuration is the length of every study-room event.
const MeetDuration = time.Hour

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf reports the code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

func fail(code Code, msg string, err error) error {
	return &Error{Code: code, Message: msg, Err: err}
}

type MeetResult struct {
	MeetLink string `json:"meetLink"`
	EventID  string `json:"eventId"`
}

// CalendarClient inserts an event with conference data enabled.
type CalendarClient interface {
	InsertEvent(ctx context.Context, calendarID string, ev *calendar.Event) (*calendar.Event, error)
}

type ClientFactory func(ctx context.Context, credentials []byte) (CalendarClient, error)

type Service struct {
	CalendarID  string
	Credentials string

	newClient ClientFactory
	now       func() time.Time
}

func NewService(credentials, calendarID string) *Service {
	return NewServiceWithFactory(credentials, calendarID, NewGoogleCalendar)
}

func NewServiceWithFactory(credentials, calendarID string, factory ClientFactory) *Service {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Service{
		CalendarID:  calendarID,
		Credentials: credentials,
		newClient:   factory,
		now:         time.Now,
	}
}

// CreateStudyRoomMeet schedules a one-hour event starting now and returns
// its Meet link.
func (s *Service) CreateStudyRoomMeet(ctx context.Context, callerID, subjectName string) (MeetResult, error) {
	if callerID == "" {
		return MeetResult{}, fail(CodeUnauthenticated, "sign in to create a study room", nil)
	}
	if strings.TrimSpace(s.Credentials) == "" {
		return MeetResult{}, fail(CodeFailedPrecondition, "calendar credentials are not configured", nil)
	}
	subject := strings.TrimSpace(subjectName)
	if subject == "" {
		return MeetResult{}, fail(CodeInvalidArgument, "subject name is required", nil)
	}
	creds := []byte(s.Credentials)
	if !json.Valid(creds) {
		return MeetResult{}, fail(CodeInvalidArgument, "calendar credentials are not valid JSON", nil)
	}

	client, err := s.newClient(ctx, creds)
	if err != nil {
		return MeetResult{}, fail(CodeInvalidArgument, "calendar credentials rejected", err)
	}

	start := s.now().UTC()
	ev := &calendar.Event{
		Summary:     "Study room: " + subject,
		Description: "Group study session for " + subject,
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: start.Add(MeetDuration).Format(time.RFC3339)},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}

	created, err := client.InsertEvent(ctx, s.CalendarID, ev)
	if err != nil {
		return MeetResult{}, fail(CodeInternal, "could not create calendar event", err)
	}

	link := meetLink(created)
	if link == "" {
		return MeetResult{}, fail(CodeInternal, "calendar event has no meet link", nil)
	}
	return MeetResult{MeetLink: link, EventID: created.Id}, nil
}

// meetLink prefers the video entry point and falls back to HangoutLink.
func meetLink(ev *calendar.Event) string {
	if ev == nil {
		return ""
	}
	if ev.ConferenceData != nil {
		for _, ep := range ev.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" && ep.Uri != "" {
				return ep.Uri
			}
		}
	}
	return ev.HangoutLink
}

type googleCalendar struct {
	svc *calendar.Service
}

// NewGoogleCalendar authenticates with a service-account JSON document.
func NewGoogleCalendar(ctx context.Context, credentials []byte) (CalendarClient, error) {
	svc, err := calendar.NewService(ctx,
		option.WithCredentialsJSON(credentials),
		option.WithScopes(calendar.CalendarEventsScope),
	)
	if err != nil {
		return nil, err
	}
	return &googleCalendar{svc: svc}, nil
}

func (g *googleCalendar) InsertEvent(ctx context.Context, calendarID string, ev *calendar.Event) (*calendar.Event, error) {
	return g.svc.Events.Insert(calendarID, ev).ConferenceDataVersion(1).Context(ctx).Do()
}

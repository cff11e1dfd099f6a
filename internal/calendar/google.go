package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/frontdesk/internal/models"
	"github.com/xaenox/frontdesk/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleCalendar talks to Google Calendar on behalf of each user, using the
// refresh token stored by the connect flow.
type GoogleCalendar struct {
	oauth       *oauth2.Config
	connections storage.ConnectionStore
	opts        []option.ClientOption
	logger      *zap.Logger
}

// NewGoogleCalendar creates the adapter. Extra client options are appended to
// every service, which tests use to point at a local endpoint.
func NewGoogleCalendar(oauth *oauth2.Config, connections storage.ConnectionStore, logger *zap.Logger, opts ...option.ClientOption) *GoogleCalendar {
	return &GoogleCalendar{
		oauth:       oauth,
		connections: connections,
		opts:        opts,
		logger:      logger,
	}
}

func (g *GoogleCalendar) service(ctx context.Context, userID string) (*gcal.Service, error) {
	conn, err := g.connections.GetConnection(ctx, userID, models.ProviderCalendar)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("loading calendar connection: %w", err)
	}
	if conn.RefreshToken == "" {
		return nil, ErrNotConnected
	}

	ts := g.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: conn.RefreshToken})
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, g.opts...)
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating calendar service: %w", err)
	}
	return svc, nil
}

func (g *GoogleCalendar) FreeBusy(ctx context.Context, userID string, start, end time.Time, timezone string) ([]BusyWindow, error) {
	svc, err := g.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin:  start.Format(time.RFC3339),
		TimeMax:  end.Format(time.RFC3339),
		TimeZone: timezone,
		Items:    []*gcal.FreeBusyRequestItem{{Id: PrimaryCalendar}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, mapError(ctx, "freebusy", err)
	}

	var busy []BusyWindow
	for _, period := range resp.Calendars[PrimaryCalendar].Busy {
		s, err1 := time.Parse(time.RFC3339, period.Start)
		e, err2 := time.Parse(time.RFC3339, period.End)
		if err1 != nil || err2 != nil {
			g.logger.Warn("Skipping unparsable busy window",
				zap.String("start", period.Start),
				zap.String("end", period.End))
			continue
		}
		busy = append(busy, BusyWindow{Start: s, End: e})
	}
	return busy, nil
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, userID string, ev NewEvent) (Event, error) {
	svc, err := g.service(ctx, userID)
	if err != nil {
		return Event{}, err
	}

	body := &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: ev.Timezone},
		End:         &gcal.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: ev.Timezone},
	}
	for _, a := range ev.Attendees {
		body.Attendees = append(body.Attendees, &gcal.EventAttendee{Email: a.Email, DisplayName: a.Name})
	}
	if ev.Conference {
		body.ConferenceData = &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		}
	}

	created, err := svc.Events.Insert(PrimaryCalendar, body).
		ConferenceDataVersion(1).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return Event{}, mapError(ctx, "insert", err)
	}
	return fromGoogle(created), nil
}

func (g *GoogleCalendar) GetEvent(ctx context.Context, userID, eventID string) (Event, error) {
	svc, err := g.service(ctx, userID)
	if err != nil {
		return Event{}, err
	}
	ev, err := svc.Events.Get(PrimaryCalendar, eventID).Context(ctx).Do()
	if err != nil {
		return Event{}, mapError(ctx, "get", err)
	}
	return fromGoogle(ev), nil
}

func (g *GoogleCalendar) UpdateEvent(ctx context.Context, userID, eventID string, start, end time.Time, timezone string) (Event, error) {
	svc, err := g.service(ctx, userID)
	if err != nil {
		return Event{}, err
	}

	updated, err := svc.Events.Patch(PrimaryCalendar, eventID, &gcal.Event{
		Start: &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: timezone},
		End:   &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: timezone},
	}).ConferenceDataVersion(1).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		return Event{}, mapError(ctx, "patch", err)
	}
	return fromGoogle(updated), nil
}

// CancelEvent marks the event cancelled so attendees are notified, keeping the
// reason in the description.
func (g *GoogleCalendar) CancelEvent(ctx context.Context, userID, eventID, reason string) error {
	svc, err := g.service(ctx, userID)
	if err != nil {
		return err
	}

	patch := &gcal.Event{Status: "cancelled"}
	if reason != "" {
		patch.Description = reason
	}
	if _, err := svc.Events.Patch(PrimaryCalendar, eventID, patch).SendUpdates("all").Context(ctx).Do(); err != nil {
		return mapError(ctx, "cancel", err)
	}
	return nil
}

func (g *GoogleCalendar) ListEvents(ctx context.Context, userID string, start, end time.Time) ([]Event, error) {
	svc, err := g.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Events.List(PrimaryCalendar).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapError(ctx, "list", err)
	}

	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Status == "cancelled" {
			continue
		}
		events = append(events, fromGoogle(item))
	}
	return events, nil
}

func fromGoogle(ev *gcal.Event) Event {
	out := Event{
		ID:       ev.Id,
		Summary:  ev.Summary,
		HTMLLink: ev.HtmlLink,
		Status:   ev.Status,
		JoinLink: ev.HangoutLink,
	}
	if out.JoinLink == "" && ev.ConferenceData != nil {
		for _, ep := range ev.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				out.JoinLink = ep.Uri
				break
			}
		}
	}
	if ev.Start != nil {
		if t, err := time.Parse(time.RFC3339, ev.Start.DateTime); err == nil {
			out.Start = t.In(models.PT())
		}
	}
	if ev.End != nil {
		if t, err := time.Parse(time.RFC3339, ev.End.DateTime); err == nil {
			out.End = t.In(models.PT())
		}
	}
	for _, a := range ev.Attendees {
		out.Attendees = append(out.Attendees, a.Email)
	}
	return out
}

// mapError turns provider failures into the package sentinels. Network
// failures count as transient while the caller's context is still live.
func mapError(ctx context.Context, op string, err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.ErrorCode == "invalid_grant" || rerr.ErrorCode == "unauthorized_client" {
			return fmt.Errorf("%s: %w", op, ErrNotConnected)
		}
		return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized:
			return fmt.Errorf("%s: %w", op, ErrNotConnected)
		case gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone:
			return fmt.Errorf("%s: %w", op, ErrEventNotFound)
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
		case gerr.Code == http.StatusForbidden && isRateLimit(gerr):
			return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if strings.Contains(err.Error(), "invalid_grant") {
		return fmt.Errorf("%s: %w", op, ErrNotConnected)
	}
	if ctx.Err() == nil && isNetworkError(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNetworkError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}

func isRateLimit(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}

// Package apiclient is the HTTP client for the unit server of record, used
// by the scanning-station agent.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"rotcunit/internal/model"
)

// Client calls the unit API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a client with a short default timeout.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Register obtains a device token for a scanning station and installs it on
// the client.
func (c *Client) Register(ctx context.Context, stationID string) error {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	req := map[string]string{"station_id": stationID}
	if err := c.do(ctx, http.MethodPost, "/api/stations/register", req, &out); err != nil {
		return err
	}
	c.Token = out.AccessToken
	return nil
}

// MarkRequest is the full-record payload the mark endpoints expect. The
// server upserts idempotently, so the complete state is sent on every call.
type MarkRequest struct {
	DayID    string `json:"day_id"`
	PersonID string `json:"person_id"`
	Status   string `json:"status"`
	Remarks  string `json:"remarks"`
	TimeIn   string `json:"time_in"`
	TimeOut  string `json:"time_out"`
}

// Records fetches the roster of attendance records for one (day, type) pair.
func (c *Client) Records(ctx context.Context, dayID string, personType model.PersonType) ([]model.AttendanceRecord, error) {
	path := "/api/attendance/records/" + dayID
	if personType == model.PersonStaff {
		path += "/staff"
	}
	var out struct {
		Records []model.AttendanceRecord `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// Mark persists one full attendance record.
func (c *Client) Mark(ctx context.Context, rec model.AttendanceRecord) error {
	path := "/api/attendance/mark"
	if rec.PersonType == model.PersonStaff {
		path = "/api/attendance/mark/staff"
	}
	req := MarkRequest{
		DayID:    rec.TrainingDayID,
		PersonID: rec.PersonID,
		Status:   string(rec.Status),
		Remarks:  rec.Remarks,
		TimeIn:   rec.TimeIn,
		TimeOut:  rec.TimeOut,
	}
	return c.do(ctx, http.MethodPost, path, req, nil)
}

// Scan submits a raw decoded QR payload; the server does its own parsing.
func (c *Client) Scan(ctx context.Context, dayID, qrData string, status model.Status, personType model.PersonType) error {
	path := "/api/attendance/scan"
	if personType == model.PersonStaff {
		path = "/api/attendance/staff/scan"
	}
	req := map[string]string{
		"day_id":  dayID,
		"qr_data": qrData,
		"status":  string(status),
	}
	return c.do(ctx, http.MethodPost, path, req, nil)
}

// Roster fetches the active cadet or staff profiles.
func (c *Client) Roster(ctx context.Context, personType model.PersonType) ([]model.RosterMember, error) {
	path := "/api/cadets"
	if personType == model.PersonStaff {
		path = "/api/staff"
	}
	var out struct {
		Members []model.RosterMember `json:"members"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}

// Days lists training days.
func (c *Client) Days(ctx context.Context) ([]model.TrainingDay, error) {
	var out struct {
		Days []model.TrainingDay `json:"days"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/attendance/days", nil, &out); err != nil {
		return nil, err
	}
	return out.Days, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("unit api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unit api error %s: %s", resp.Status, string(raw))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"rotcunit/internal/model"
)

func TestRecordsPicksEndpointByType(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"records": []model.AttendanceRecord{{TrainingDayID: "d1", PersonID: "p1"}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	ctx := context.Background()

	recs, err := c.Records(ctx, "d1", model.PersonCadet)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	_, err = c.Records(ctx, "d1", model.PersonStaff)
	require.NoError(t, err)

	require.Equal(t, []string{
		"/api/attendance/records/d1",
		"/api/attendance/records/d1/staff",
	}, paths)
}

func TestMarkSendsFullRecord(t *testing.T) {
	var got MarkRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	err := c.Mark(context.Background(), model.AttendanceRecord{
		TrainingDayID: "d1",
		PersonID:      "c1",
		PersonType:    model.PersonCadet,
		Status:        model.StatusPresent,
		TimeIn:        "08:00AM",
		TimeOut:       "12:00PM",
		Remarks:       "formation",
	})
	require.NoError(t, err)
	require.Equal(t, "Bearer tok", auth)
	require.Equal(t, MarkRequest{
		DayID: "d1", PersonID: "c1", Status: "present",
		Remarks: "formation", TimeIn: "08:00AM", TimeOut: "12:00PM",
	}, got)
}

func TestErrorResponsesSurfaceBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"day not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	err := c.Mark(context.Background(), model.AttendanceRecord{TrainingDayID: "nope"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "day not found")
}

func TestRosterPicksEndpointByType(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"members": []model.RosterMember{{ID: "c1", LastName: "Smith", FirstName: "Juan"}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	ctx := context.Background()

	members, err := c.Roster(ctx, model.PersonCadet)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, "c1", members[0].ID)

	_, err = c.Roster(ctx, model.PersonStaff)
	require.NoError(t, err)

	require.Equal(t, []string{"/api/cadets", "/api/staff"}, paths)
}

func TestDaysListsTrainingDays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/attendance/days", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"days": []model.TrainingDay{{ID: "d1", Title: "Drill"}, {ID: "d2", Title: "Inspection"}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	days, err := c.Days(context.Background())
	require.NoError(t, err)
	require.Len(t, days, 2)
	require.Equal(t, "d1", days[0].ID)
}

func TestRegisterInstallsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/stations/register", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "fresh"})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	require.NoError(t, c.Register(context.Background(), "gate-1"))
	require.Equal(t, "fresh", c.Token)
}
